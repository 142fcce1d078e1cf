// core/genesis/loader.go
package genesis

import (
	"bytes"
	"fmt"
	"sort"

	"stablecore/config"
	"stablecore/core/state"
	"stablecore/native/bank"
	nativecommon "stablecore/native/common"
	"stablecore/native/leadrate"
	"stablecore/native/stablecoin"
)

var appliedKey = []byte("genesis/applied")

// Applied reports whether the state has already been bootstrapped.
func Applied(manager *state.Manager) (bool, error) {
	var marker []byte
	return manager.KVGet(appliedKey, &marker)
}

// Apply writes the genesis configuration into an empty state: tokens,
// allocations, roles and the starting base rate. The caller commits. A state
// that was already bootstrapped is left untouched and Apply returns false.
func Apply(cfg *config.Genesis, manager *state.Manager) (bool, error) {
	if cfg == nil {
		return false, fmt.Errorf("genesis config must not be nil")
	}
	if manager == nil {
		return false, fmt.Errorf("state manager must not be nil")
	}
	if err := config.Validate(cfg); err != nil {
		return false, err
	}
	done, err := Applied(manager)
	if err != nil {
		return false, err
	}
	if done {
		return false, nil
	}
	err = manager.Atomic(func() error {
		if err := registerTokens(cfg, manager); err != nil {
			return err
		}
		if err := allocate(cfg, manager); err != nil {
			return err
		}
		if err := assignRoles(cfg, manager); err != nil {
			return err
		}
		rates := leadrate.NewOracle()
		rates.SetState(manager)
		if err := rates.Initialize(cfg.LeadRate.RatePPM); err != nil {
			return fmt.Errorf("leadrate: %w", err)
		}
		return manager.KVPut(appliedKey, []byte{1})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// 1) Tokens (currency first, then collateral sorted, then the native coin)
func registerTokens(cfg *config.Genesis, manager *state.Manager) error {
	register := func(symbol, name string, decimals uint8) error {
		if name == "" {
			name = symbol
		}
		if err := manager.RegisterToken(symbol, name, decimals); err != nil {
			return fmt.Errorf("register token %s: %w", symbol, err)
		}
		return nil
	}
	if err := register(cfg.Currency.Symbol, cfg.Currency.Name, cfg.Currency.Decimals); err != nil {
		return err
	}
	tokens := append([]config.Token(nil), cfg.Collateral...)
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	for _, token := range tokens {
		if err := register(token.Symbol, token.Name, token.Decimals); err != nil {
			return err
		}
	}
	if cfg.Wrapping.Native != "" {
		return register(cfg.Wrapping.Native, "", 18)
	}
	return nil
}

// 2) Allocations (sorted by address, then symbol)
func allocate(cfg *config.Genesis, manager *state.Manager) error {
	allocs, err := cfg.Allocations()
	if err != nil {
		return err
	}
	sort.SliceStable(allocs, func(i, j int) bool {
		if c := bytes.Compare(allocs[i].Address[:], allocs[j].Address[:]); c != 0 {
			return c < 0
		}
		return allocs[i].Symbol < allocs[j].Symbol
	})
	b := bank.New()
	b.SetState(manager)
	for _, alloc := range allocs {
		if err := b.Credit(alloc.Symbol, alloc.Address, alloc.Amount); err != nil {
			return fmt.Errorf("alloc %x %s: %w", alloc.Address, alloc.Symbol, err)
		}
	}
	return nil
}

// 3) Roles (the hub and the roller always mint)
func assignRoles(cfg *config.Genesis, manager *state.Manager) error {
	hub, err := cfg.HubAddress()
	if err != nil {
		return err
	}
	roller, err := cfg.RollerAddress()
	if err != nil {
		return err
	}
	minters, err := config.Accounts("Minters", cfg.Minters)
	if err != nil {
		return err
	}
	minters = append(minters, hub, roller)
	for _, addr := range minters {
		if err := manager.SetRole(stablecoin.RoleMinter, addr[:]); err != nil {
			return fmt.Errorf("roles[%q]: %w", stablecoin.RoleMinter, err)
		}
	}
	governors, err := config.Accounts("Governance", cfg.Governance)
	if err != nil {
		return err
	}
	for _, addr := range governors {
		if err := manager.SetRole(nativecommon.RoleGovernance, addr[:]); err != nil {
			return fmt.Errorf("roles[%q]: %w", nativecommon.RoleGovernance, err)
		}
	}
	return nil
}
