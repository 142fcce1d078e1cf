package events

import (
	"math/big"

	"stablecore/core/types"
)

const (
	// TypeStablecoinLoss is emitted when the reserve covers a loss for a minter.
	TypeStablecoinLoss = "stablecoin.loss"
	// TypeStablecoinProfit is emitted when a minter moves profits into the reserve.
	TypeStablecoinProfit = "stablecoin.profit"
)

// StablecoinLoss records a loss absorbed by the reserve. Minted is the part
// that had to be freshly minted because the reserve ran dry.
type StablecoinLoss struct {
	Source [20]byte
	Amount *big.Int
	Minted *big.Int
}

func (StablecoinLoss) EventType() string { return TypeStablecoinLoss }

func (e StablecoinLoss) Event() *types.Event {
	return &types.Event{
		Type: TypeStablecoinLoss,
		Attributes: map[string]string{
			"source": account(e.Source),
			"amount": amount(e.Amount),
			"minted": amount(e.Minted),
		},
	}
}

// StablecoinProfit records profits collected into the reserve.
type StablecoinProfit struct {
	Source [20]byte
	Amount *big.Int
}

func (StablecoinProfit) EventType() string { return TypeStablecoinProfit }

func (e StablecoinProfit) Event() *types.Event {
	return &types.Event{
		Type: TypeStablecoinProfit,
		Attributes: map[string]string{
			"source": account(e.Source),
			"amount": amount(e.Amount),
		},
	}
}
