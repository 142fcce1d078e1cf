package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load loads the genesis configuration from the given path. A missing file
// is created with the default configuration.
func Load(path string) (*Genesis, error) {
	cfg := &Genesis{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a single-collateral development configuration.
func Default() *Genesis {
	return &Genesis{
		Currency: Currency{Symbol: "ZCHF", Name: "Frankencoin", Decimals: 18},
		Hub: Hub{
			OpeningFee:                "1000000000000000000000",
			MinCollateralValue:        "5000000000000000000000",
			DustValue:                 "1000000000000000000000",
			MinInitPeriodSeconds:      3 * 24 * 60 * 60,
			MinChallengePeriodSeconds: 24 * 60 * 60,
			ChallengerRewardPPM:       20_000,
		},
		LeadRate:   LeadRate{RatePPM: 10_000, DelaySeconds: 7 * 24 * 60 * 60},
		Wrapping:   Wrapping{Native: "ETH", Wrapped: "WETH"},
		Collateral: []Token{{Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18}},
		Governance: []string{},
		Minters:    []string{},
		Alloc:      []Alloc{},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Genesis, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func (cfg *Genesis) normalize() {
	cfg.Currency.Symbol = upper(cfg.Currency.Symbol)
	if cfg.Currency.Decimals == 0 {
		cfg.Currency.Decimals = 18
	}
	cfg.Wrapping.Native = upper(cfg.Wrapping.Native)
	cfg.Wrapping.Wrapped = upper(cfg.Wrapping.Wrapped)
	for i := range cfg.Collateral {
		cfg.Collateral[i].Symbol = upper(cfg.Collateral[i].Symbol)
		if cfg.Collateral[i].Decimals == 0 {
			cfg.Collateral[i].Decimals = 18
		}
	}
	for i := range cfg.Alloc {
		cfg.Alloc[i].Symbol = upper(cfg.Alloc[i].Symbol)
		cfg.Alloc[i].Address = strings.TrimSpace(cfg.Alloc[i].Address)
		cfg.Alloc[i].Amount = strings.TrimSpace(cfg.Alloc[i].Amount)
	}
	if cfg.Governance == nil {
		cfg.Governance = []string{}
	}
	if cfg.Minters == nil {
		cfg.Minters = []string{}
	}
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
