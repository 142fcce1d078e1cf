package mintinghub

import (
	"errors"
	"math/big"

	"stablecore/native/position"
)

var (
	errNilState = errors.New("mintinghub: state not configured")

	ErrInvalidParams     = errors.New("mintinghub: invalid parameters")
	ErrUnexpectedPrice   = errors.New("mintinghub: unexpected price")
	ErrLeaveNoDust       = errors.New("mintinghub: purchase would leave dust")
	ErrTooEarly          = errors.New("mintinghub: bid in the challenge start second")
	ErrChallengeNotFound = errors.New("mintinghub: challenge not found")
	ErrUnknownCollateral = errors.New("mintinghub: unknown collateral")
	ErrInvalidAmount     = errors.New("mintinghub: amount must be positive")
	ErrNothingPending    = errors.New("mintinghub: no pending collateral")
)

// Challenge is an open bet that a position is mispriced. Size shrinks as
// bids settle it; the record is removed once it reaches zero.
type Challenge struct {
	ID         uint64
	Challenger [20]byte
	Position   [20]byte
	Size       *big.Int
	Price      *big.Int
	Start      uint64
}

func (c *Challenge) ensureDefaults() {
	if c.Size == nil {
		c.Size = new(big.Int)
	}
	if c.Price == nil {
		c.Price = new(big.Int)
	}
}

// OpenRequest are the terms of a new original position.
type OpenRequest struct {
	Collateral        string
	MinimumCollateral *big.Int
	InitialCollateral *big.Int
	Limit             *big.Int
	InitPeriod        uint64
	Duration          uint64
	ChallengePeriod   uint64
	RiskPremiumPPM    uint64
	Price             *big.Int
	ReservePPM        uint64
}

// CloneRequest describes a clone of Parent. A zero Owner means the caller.
type CloneRequest struct {
	Owner             [20]byte
	Parent            [20]byte
	InitialCollateral *big.Int
	InitialMint       *big.Int
	Expiration        uint64
}

// BidResult summarizes a settled bid.
type BidResult struct {
	Averted  bool
	Size     *big.Int
	Price    *big.Int
	Paid     *big.Int
	Acquired *big.Int
	Reward   *big.Int
}

// Ledger is the currency side used by the hub. The hub acts as the minter.
type Ledger interface {
	RegisterPosition(minter, pos [20]byte) error
	Transfer(from, to [20]byte, amount *big.Int) error
	CollectProfits(minter, source [20]byte, amount *big.Int) error
	CoverLoss(minter, source [20]byte, amount *big.Int) error
	BurnWithoutReserve(minter [20]byte, amount *big.Int, reservePPM uint64) error
}

// CollateralBank moves collateral tokens.
type CollateralBank interface {
	Exists(symbol string) bool
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// Positions is the part of the position engine the hub drives.
type Positions interface {
	position.View
	Now() uint64
	Create(caller [20]byte, params position.Params) (*position.Position, error)
	AssertCloneable(parent *position.Position) error
	InitializeClone(caller, addr, owner [20]byte, parent *position.Position, expiration uint64) (*position.Position, error)
	DepositCollateral(caller, addr [20]byte, amount *big.Int) error
	Mint(caller, addr, target [20]byte, amount *big.Int) error
	NotifyChallengeStarted(caller, addr [20]byte, size, price *big.Int) error
	NotifyChallengeAverted(caller, addr [20]byte, size *big.Int) error
	NotifyChallengeSucceeded(caller, addr, bidder [20]byte, size *big.Int) (*position.ChallengeOutcome, error)
	ForceSale(caller, addr, buyer [20]byte, collateralAmount, proceeds *big.Int) error
}
