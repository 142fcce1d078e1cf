package config

import nativecommon "stablecore/native/common"

// Currency describes the stablecoin minted against positions.
type Currency struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
	// Reserve is the account holding the reserve pool. Empty derives the
	// module address "reserve".
	Reserve string `toml:"Reserve"`
}

// Token is a collateral token accepted by the hub.
type Token struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// Hub carries the minting hub account and its protocol parameters. Amounts
// are decimal strings in base units.
type Hub struct {
	Address                   string `toml:"Address"`
	OpeningFee                string `toml:"OpeningFee"`
	MinCollateralValue        string `toml:"MinCollateralValue"`
	DustValue                 string `toml:"DustValue"`
	MinInitPeriodSeconds      uint64 `toml:"MinInitPeriodSeconds"`
	MinChallengePeriodSeconds uint64 `toml:"MinChallengePeriodSeconds"`
	ChallengerRewardPPM       uint64 `toml:"ChallengerRewardPPM"`
}

// Roller names the roller account.
type Roller struct {
	Address string `toml:"Address"`
}

// LeadRate is the starting base rate and the delay governance changes wait.
type LeadRate struct {
	RatePPM      uint64 `toml:"RatePPM"`
	DelaySeconds uint64 `toml:"DelaySeconds"`
}

// Wrapping maps the native coin onto the wrapped token used as collateral.
type Wrapping struct {
	Native  string `toml:"Native"`
	Wrapped string `toml:"Wrapped"`
}

// Alloc credits an initial balance.
type Alloc struct {
	Address string `toml:"Address"`
	Symbol  string `toml:"Symbol"`
	Amount  string `toml:"Amount"`
}

type Pauses struct {
	Stablecoin bool `toml:"Stablecoin"`
	Position   bool `toml:"Position"`
	Hub        bool `toml:"Hub"`
	Roller     bool `toml:"Roller"`
	LeadRate   bool `toml:"LeadRate"`
}

// View returns the pause flags in the form the engines consult.
func (p Pauses) View() nativecommon.StaticPauses {
	return nativecommon.StaticPauses{
		nativecommon.ModuleStablecoin: p.Stablecoin,
		nativecommon.ModulePosition:   p.Position,
		nativecommon.ModuleHub:        p.Hub,
		nativecommon.ModuleRoller:     p.Roller,
		nativecommon.ModuleLeadRate:   p.LeadRate,
	}
}

// Genesis is the protocol configuration applied to an empty state.
type Genesis struct {
	Currency   Currency `toml:"Currency"`
	Hub        Hub      `toml:"Hub"`
	Roller     Roller   `toml:"Roller"`
	LeadRate   LeadRate `toml:"LeadRate"`
	Wrapping   Wrapping `toml:"Wrapping"`
	Pauses     Pauses   `toml:"Pauses"`
	Collateral []Token  `toml:"Collateral"`
	Governance []string `toml:"Governance"`
	// Minters holds extra governance-approved minters. The hub and the
	// roller are always minters.
	Minters []string `toml:"Minters"`
	Alloc   []Alloc  `toml:"Alloc"`
}
