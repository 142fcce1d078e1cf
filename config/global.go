package config

import (
	"fmt"
	"math/big"
	"strings"

	"stablecore/crypto"
	"stablecore/native/mintinghub"
)

// Module account names used when an address is left empty.
const (
	ReserveModule = "reserve"
	HubModule     = "mintinghub"
	RollerModule  = "roller"
)

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}

func accountOrModule(raw, module string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return crypto.ModuleAddress(module), nil
	}
	return crypto.ParseAddress(raw)
}

// ReserveAddress returns the configured or derived reserve account.
func (g *Genesis) ReserveAddress() ([20]byte, error) {
	addr, err := accountOrModule(g.Currency.Reserve, ReserveModule)
	if err != nil {
		return addr, fmt.Errorf("invalid currency.Reserve: %w", err)
	}
	return addr, nil
}

// HubAddress returns the configured or derived minting hub account.
func (g *Genesis) HubAddress() ([20]byte, error) {
	addr, err := accountOrModule(g.Hub.Address, HubModule)
	if err != nil {
		return addr, fmt.Errorf("invalid hub.Address: %w", err)
	}
	return addr, nil
}

// RollerAddress returns the configured or derived roller account.
func (g *Genesis) RollerAddress() ([20]byte, error) {
	addr, err := accountOrModule(g.Roller.Address, RollerModule)
	if err != nil {
		return addr, fmt.Errorf("invalid roller.Address: %w", err)
	}
	return addr, nil
}

// HubParams parses the configured hub parameters into runtime values.
func (g *Genesis) HubParams() (mintinghub.Params, error) {
	params := mintinghub.Params{
		MinInitPeriod:       g.Hub.MinInitPeriodSeconds,
		MinChallengePeriod:  g.Hub.MinChallengePeriodSeconds,
		ChallengerRewardPPM: g.Hub.ChallengerRewardPPM,
	}
	fee, err := parseUintAmount(g.Hub.OpeningFee)
	if err != nil {
		return params, fmt.Errorf("invalid hub.OpeningFee: %w", err)
	}
	params.OpeningFee = fee
	minValue, err := parseUintAmount(g.Hub.MinCollateralValue)
	if err != nil {
		return params, fmt.Errorf("invalid hub.MinCollateralValue: %w", err)
	}
	params.MinCollateralValue = minValue
	dust, err := parseUintAmount(g.Hub.DustValue)
	if err != nil {
		return params, fmt.Errorf("invalid hub.DustValue: %w", err)
	}
	params.DustValue = dust
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

// Accounts parses a list of account addresses.
func Accounts(field string, raw []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(raw))
	for i, value := range raw {
		addr, err := crypto.ParseAddress(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s[%d]: %w", field, i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// ParsedAlloc is an allocation with its address and amount decoded.
type ParsedAlloc struct {
	Address [20]byte
	Symbol  string
	Amount  *big.Int
}

// Allocations parses the configured initial balances.
func (g *Genesis) Allocations() ([]ParsedAlloc, error) {
	out := make([]ParsedAlloc, 0, len(g.Alloc))
	for i, entry := range g.Alloc {
		addr, err := crypto.ParseAddress(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc[%d].Address: %w", i, err)
		}
		amount, err := parseUintAmount(entry.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc[%d].Amount: %w", i, err)
		}
		out = append(out, ParsedAlloc{Address: addr, Symbol: entry.Symbol, Amount: amount})
	}
	return out, nil
}
