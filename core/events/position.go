package events

import (
	"math/big"

	"stablecore/core/types"
)

const (
	TypePositionOpened         = "position.opened"
	TypePositionMintingUpdate  = "position.minting_update"
	TypePositionDenied         = "position.denied"
	TypePositionOwnerChanged   = "position.owner_changed"
	TypePositionForcedSale     = "position.forced_sale"
	TypePositionPendingReturns = "position.pending_return"
)

// PositionOpened is emitted for both original positions and clones. Original
// equals Position for originals.
type PositionOpened struct {
	Owner      [20]byte
	Position   [20]byte
	Original   [20]byte
	Collateral string
	Price      *big.Int
	Limit      *big.Int
	Expiration uint64
	RatePPM    uint64
}

func (PositionOpened) EventType() string { return TypePositionOpened }

func (e PositionOpened) Event() *types.Event {
	return &types.Event{
		Type: TypePositionOpened,
		Attributes: map[string]string{
			"owner":      account(e.Owner),
			"position":   position(e.Position),
			"original":   position(e.Original),
			"collateral": normalizeAsset(e.Collateral),
			"price":      amount(e.Price),
			"limit":      amount(e.Limit),
			"expiration": uint64String(e.Expiration),
			"ratePPM":    uint64String(e.RatePPM),
		},
	}
}

// MintingUpdate captures the debt and collateral of a position after a
// mutation together with the debt before it.
type MintingUpdate struct {
	Position       [20]byte
	Collateral     *big.Int
	Price          *big.Int
	Principal      *big.Int
	Interest       *big.Int
	PrevPrincipal  *big.Int
	PrevInterest   *big.Int
	PrevCollateral *big.Int
}

func (MintingUpdate) EventType() string { return TypePositionMintingUpdate }

func (e MintingUpdate) Event() *types.Event {
	return &types.Event{
		Type: TypePositionMintingUpdate,
		Attributes: map[string]string{
			"position":           position(e.Position),
			"collateral":         amount(e.Collateral),
			"price":              amount(e.Price),
			"principal":          amount(e.Principal),
			"interest":           amount(e.Interest),
			"previousPrincipal":  amount(e.PrevPrincipal),
			"previousInterest":   amount(e.PrevInterest),
			"previousCollateral": amount(e.PrevCollateral),
		},
	}
}

type PositionDenied struct {
	Position [20]byte
	Denier   [20]byte
	Message  string
}

func (PositionDenied) EventType() string { return TypePositionDenied }

func (e PositionDenied) Event() *types.Event {
	return &types.Event{
		Type: TypePositionDenied,
		Attributes: map[string]string{
			"position": position(e.Position),
			"denier":   account(e.Denier),
			"message":  e.Message,
		},
	}
}

type PositionOwnerChanged struct {
	Position      [20]byte
	PreviousOwner [20]byte
	NewOwner      [20]byte
}

func (PositionOwnerChanged) EventType() string { return TypePositionOwnerChanged }

func (e PositionOwnerChanged) Event() *types.Event {
	return &types.Event{
		Type: TypePositionOwnerChanged,
		Attributes: map[string]string{
			"position":      position(e.Position),
			"previousOwner": account(e.PreviousOwner),
			"newOwner":      account(e.NewOwner),
		},
	}
}

// ForcedSale is emitted when expired collateral is bought from a position.
type ForcedSale struct {
	Position [20]byte
	Buyer    [20]byte
	Amount   *big.Int
	Price    *big.Int
	Cost     *big.Int
}

func (ForcedSale) EventType() string { return TypePositionForcedSale }

func (e ForcedSale) Event() *types.Event {
	return &types.Event{
		Type: TypePositionForcedSale,
		Attributes: map[string]string{
			"position": position(e.Position),
			"buyer":    account(e.Buyer),
			"amount":   amount(e.Amount),
			"price":    amount(e.Price),
			"cost":     amount(e.Cost),
		},
	}
}

// PendingReturn records collateral parked for a challenger who asked for a
// postponed return.
type PendingReturn struct {
	Owner      [20]byte
	Collateral string
	Amount     *big.Int
	Total      *big.Int
}

func (PendingReturn) EventType() string { return TypePositionPendingReturns }

func (e PendingReturn) Event() *types.Event {
	return &types.Event{
		Type: TypePositionPendingReturns,
		Attributes: map[string]string{
			"owner":      account(e.Owner),
			"collateral": normalizeAsset(e.Collateral),
			"amount":     amount(e.Amount),
			"total":      amount(e.Total),
		},
	}
}
