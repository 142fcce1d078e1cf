package events

import (
	"math/big"

	"stablecore/core/types"
)

const (
	TypeChallengeStarted   = "challenge.started"
	TypeChallengeAverted   = "challenge.averted"
	TypeChallengeSucceeded = "challenge.succeeded"
)

type ChallengeStarted struct {
	ID         uint64
	Challenger [20]byte
	Position   [20]byte
	Size       *big.Int
	Price      *big.Int
}

func (ChallengeStarted) EventType() string { return TypeChallengeStarted }

func (e ChallengeStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeStarted,
		Attributes: map[string]string{
			"id":         uint64String(e.ID),
			"challenger": account(e.Challenger),
			"position":   position(e.Position),
			"size":       amount(e.Size),
			"price":      amount(e.Price),
		},
	}
}

// ChallengeAverted reports the averted size and the size left open.
type ChallengeAverted struct {
	ID        uint64
	Position  [20]byte
	Bidder    [20]byte
	Size      *big.Int
	Remaining *big.Int
}

func (ChallengeAverted) EventType() string { return TypeChallengeAverted }

func (e ChallengeAverted) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeAverted,
		Attributes: map[string]string{
			"id":        uint64String(e.ID),
			"position":  position(e.Position),
			"bidder":    account(e.Bidder),
			"size":      amount(e.Size),
			"remaining": amount(e.Remaining),
		},
	}
}

// ChallengeSucceeded reports the settlement of a challenged portion.
type ChallengeSucceeded struct {
	ID          uint64
	Position    [20]byte
	Bidder      [20]byte
	Bid         *big.Int
	Acquired    *big.Int
	ChallengeSz *big.Int
	Repaid      *big.Int
	Reward      *big.Int
}

func (ChallengeSucceeded) EventType() string { return TypeChallengeSucceeded }

func (e ChallengeSucceeded) Event() *types.Event {
	return &types.Event{
		Type: TypeChallengeSucceeded,
		Attributes: map[string]string{
			"id":       uint64String(e.ID),
			"position": position(e.Position),
			"bidder":   account(e.Bidder),
			"bid":      amount(e.Bid),
			"acquired": amount(e.Acquired),
			"size":     amount(e.ChallengeSz),
			"repaid":   amount(e.Repaid),
			"reward":   amount(e.Reward),
		},
	}
}
