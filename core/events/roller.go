package events

import (
	"math/big"

	"stablecore/core/types"
)

const TypeRoll = "roller.roll"

// Roll records a completed refinancing from Source into Target.
type Roll struct {
	Owner        [20]byte
	Source       [20]byte
	Target       [20]byte
	Repaid       *big.Int
	CollWithdraw *big.Int
	CollDeposit  *big.Int
	Minted       *big.Int
}

func (Roll) EventType() string { return TypeRoll }

func (e Roll) Event() *types.Event {
	return &types.Event{
		Type: TypeRoll,
		Attributes: map[string]string{
			"owner":              account(e.Owner),
			"source":             position(e.Source),
			"target":             position(e.Target),
			"repaid":             amount(e.Repaid),
			"collateralWithdraw": amount(e.CollWithdraw),
			"collateralDeposit":  amount(e.CollDeposit),
			"minted":             amount(e.Minted),
		},
	}
}
