package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stablecore/crypto"
	nativecommon "stablecore/native/common"
)

var testGovernor = func() string {
	var addr [20]byte
	addr[0] = 0x42
	addr[len(addr)-1] = 0x24
	return crypto.FormatAccount(addr)
}()

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "genesis.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "genesis.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Currency.Symbol != "ZCHF" {
		t.Fatalf("unexpected currency %q", cfg.Currency.Symbol)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Hub.ChallengerRewardPPM != 20_000 {
		t.Fatalf("unexpected reward after reload: %d", reloaded.Hub.ChallengerRewardPPM)
	}
	params, err := reloaded.HubParams()
	if err != nil {
		t.Fatalf("hub params: %v", err)
	}
	if params.OpeningFee.String() != "1000000000000000000000" {
		t.Fatalf("unexpected opening fee %s", params.OpeningFee)
	}
}

func TestLoadParsesGenesis(t *testing.T) {
	contents := `Governance = ["` + testGovernor + `"]

[Currency]
Symbol = " zchf "

[Hub]
OpeningFee = "10"
MinCollateralValue = "50"
DustValue = "100"
MinInitPeriodSeconds = 60
MinChallengePeriodSeconds = 30
ChallengerRewardPPM = 10000

[LeadRate]
RatePPM = 25000

[Wrapping]
Native = "eth"
Wrapped = "weth"

[Pauses]
Roller = true

[[Collateral]]
Symbol = "weth"

[[Alloc]]
Address = "` + testGovernor + `"
Symbol = "eth"
Amount = "1000"
`
	cfg, err := Load(writeConfig(t, contents))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Currency.Symbol != "ZCHF" || cfg.Currency.Decimals != 18 {
		t.Fatalf("currency not normalized: %+v", cfg.Currency)
	}
	if cfg.Wrapping.Wrapped != "WETH" || cfg.Collateral[0].Symbol != "WETH" {
		t.Fatalf("symbols not normalized: %+v %+v", cfg.Wrapping, cfg.Collateral)
	}
	allocs, err := cfg.Allocations()
	if err != nil {
		t.Fatalf("allocations: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Amount.Int64() != 1000 || allocs[0].Symbol != "ETH" {
		t.Fatalf("unexpected allocations %+v", allocs)
	}
	view := cfg.Pauses.View()
	if !view.IsPaused(nativecommon.ModuleRoller) || view.IsPaused(nativecommon.ModuleHub) {
		t.Fatalf("unexpected pause view %+v", view)
	}
	hub, err := cfg.HubAddress()
	if err != nil {
		t.Fatalf("hub address: %v", err)
	}
	if hub != crypto.ModuleAddress(HubModule) {
		t.Fatalf("expected derived hub address")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(g *Genesis){
		"missing currency":   func(g *Genesis) { g.Currency.Symbol = "" },
		"rate too high":      func(g *Genesis) { g.LeadRate.RatePPM = 1_000_001 },
		"bad fee":            func(g *Genesis) { g.Hub.OpeningFee = "ten" },
		"negative dust":      func(g *Genesis) { g.Hub.DustValue = "-1" },
		"zero challenge":     func(g *Genesis) { g.Hub.MinChallengePeriodSeconds = 0 },
		"bad hub address":    func(g *Genesis) { g.Hub.Address = "nope" },
		"duplicate token":    func(g *Genesis) { g.Collateral = append(g.Collateral, Token{Symbol: "WETH"}) },
		"half wrapping":      func(g *Genesis) { g.Wrapping.Native = "" },
		"unwrapped token":    func(g *Genesis) { g.Wrapping.Wrapped = "WBTC" },
		"bad governance":     func(g *Genesis) { g.Governance = []string{"0x01"} },
		"unknown alloc":      func(g *Genesis) { g.Alloc = []Alloc{{Address: testGovernor, Symbol: "XYZ", Amount: "1"}} },
		"negative alloc":     func(g *Genesis) { g.Alloc = []Alloc{{Address: testGovernor, Symbol: "ZCHF", Amount: "-1"}} },
		"native is currency": func(g *Genesis) { g.Wrapping.Native = "ZCHF" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	_, err := Load(writeConfig(t, "[Currency\nSymbol = 1"))
	if err == nil || !strings.Contains(err.Error(), "toml") {
		t.Fatalf("expected toml error, got %v", err)
	}
}
