package config

import (
	"fmt"

	nativecommon "stablecore/native/common"
)

func Validate(g *Genesis) error {
	if g == nil {
		return fmt.Errorf("genesis configuration is missing")
	}
	if g.Currency.Symbol == "" {
		return fmt.Errorf("currency: symbol required")
	}
	if g.LeadRate.RatePPM > nativecommon.PPMDenominator {
		return fmt.Errorf("leadrate: rate_ppm above 1000000")
	}
	if _, err := g.HubParams(); err != nil {
		return fmt.Errorf("hub: %w", err)
	}
	for _, fn := range []func() ([20]byte, error){g.ReserveAddress, g.HubAddress, g.RollerAddress} {
		if _, err := fn(); err != nil {
			return err
		}
	}
	known := map[string]bool{g.Currency.Symbol: true}
	for _, token := range g.Collateral {
		if token.Symbol == "" {
			return fmt.Errorf("collateral: symbol required")
		}
		if known[token.Symbol] {
			return fmt.Errorf("collateral: duplicate symbol %s", token.Symbol)
		}
		known[token.Symbol] = true
	}
	if (g.Wrapping.Native == "") != (g.Wrapping.Wrapped == "") {
		return fmt.Errorf("wrapping: native and wrapped must both be set or both be empty")
	}
	if g.Wrapping.Wrapped != "" {
		if !known[g.Wrapping.Wrapped] || g.Wrapping.Wrapped == g.Currency.Symbol {
			return fmt.Errorf("wrapping: %s is not a collateral token", g.Wrapping.Wrapped)
		}
		if known[g.Wrapping.Native] {
			return fmt.Errorf("wrapping: native %s collides with a configured token", g.Wrapping.Native)
		}
		known[g.Wrapping.Native] = true
	}
	if _, err := Accounts("Governance", g.Governance); err != nil {
		return err
	}
	if _, err := Accounts("Minters", g.Minters); err != nil {
		return err
	}
	allocs, err := g.Allocations()
	if err != nil {
		return err
	}
	for i, alloc := range allocs {
		if !known[alloc.Symbol] {
			return fmt.Errorf("alloc[%d]: unknown symbol %q", i, alloc.Symbol)
		}
	}
	return nil
}
