package position

import (
	"errors"
	"math/big"
)

const (
	// PriceIncreaseCooldown blocks minting after the owner raises the price.
	PriceIncreaseCooldown = 3 * 24 * 60 * 60
	// AvertedCooldown blocks minting after a challenge was averted.
	AvertedCooldown = 1 * 24 * 60 * 60
	// SucceededCooldown blocks minting after a challenge succeeded.
	SucceededCooldown = 3 * 24 * 60 * 60
)

var (
	errNilState = errors.New("position: state not configured")

	ErrTooLate                = errors.New("position: too late")
	ErrHot                    = errors.New("position: cooldown active")
	ErrExpired                = errors.New("position: expired")
	ErrAlive                  = errors.New("position: not expired yet")
	ErrClosed                 = errors.New("position: closed")
	ErrChallenged             = errors.New("position: challenge pending")
	ErrInsufficientCollateral = errors.New("position: insufficient collateral")
	ErrLimitExceeded          = errors.New("position: limit exceeded")
	ErrChallengeTooSmall      = errors.New("position: challenge too small")
	ErrPriceTooHigh           = errors.New("position: price too high")
	ErrNotHub                 = errors.New("position: caller is not the hub")
	ErrNotOwner               = errors.New("position: caller is not the owner")
	ErrNotQualified           = errors.New("position: caller is not qualified")
	ErrRepaidTooMuch          = errors.New("position: repaid too much")
	ErrAlreadyInitialized     = errors.New("position: already initialized")
	ErrInvalidExpiration      = errors.New("position: invalid expiration")
	ErrInvalidAmount          = errors.New("position: amount must not be negative")
	ErrNotFound               = errors.New("position: not found")
)

// State is the life-cycle phase of a position at a given time.
type State uint8

const (
	StateProposed State = iota
	StateActive
	StateChallenged
	StateExpired
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateProposed:
		return "proposed"
	case StateActive:
		return "active"
	case StateChallenged:
		return "challenged"
	case StateExpired:
		return "expired"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Position is a collateralized debt record. Original equals Address for an
// original position. Clones point at their original, which carries the
// TotalMinted counter for the whole family.
type Position struct {
	Address    [20]byte
	Owner      [20]byte
	Original   [20]byte
	Hub        [20]byte
	Collateral string

	MinimumCollateral *big.Int
	Limit             *big.Int
	Price             *big.Int
	Principal         *big.Int
	Interest          *big.Int
	TotalMinted       *big.Int
	ChallengedAmount  *big.Int
	ChallengedPrice   *big.Int

	RiskPremiumPPM         uint64
	FixedAnnualRatePPM     uint64
	ReserveContributionPPM uint64

	Start           uint64
	Cooldown        uint64
	Expiration      uint64
	ChallengePeriod uint64
	LastAccrual     uint64

	Closed bool
}

// IsOriginal reports whether the position carries the family counter.
func (p *Position) IsOriginal() bool { return p.Address == p.Original }

// Debt returns principal plus the interest accrued up to LastAccrual.
func (p *Position) Debt() *big.Int {
	return new(big.Int).Add(p.Principal, p.Interest)
}

// StateAt derives the life-cycle phase at now.
func (p *Position) StateAt(now uint64) State {
	switch {
	case p.Closed:
		return StateClosed
	case now < p.Start:
		return StateProposed
	case now >= p.Expiration:
		return StateExpired
	case p.ChallengedAmount.Sign() > 0:
		return StateChallenged
	default:
		return StateActive
	}
}

// Clone returns a deep copy.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.MinimumCollateral = copyInt(p.MinimumCollateral)
	out.Limit = copyInt(p.Limit)
	out.Price = copyInt(p.Price)
	out.Principal = copyInt(p.Principal)
	out.Interest = copyInt(p.Interest)
	out.TotalMinted = copyInt(p.TotalMinted)
	out.ChallengedAmount = copyInt(p.ChallengedAmount)
	out.ChallengedPrice = copyInt(p.ChallengedPrice)
	return &out
}

func (p *Position) ensureDefaults() {
	for _, v := range []**big.Int{
		&p.MinimumCollateral, &p.Limit, &p.Price, &p.Principal, &p.Interest,
		&p.TotalMinted, &p.ChallengedAmount, &p.ChallengedPrice,
	} {
		if *v == nil {
			*v = new(big.Int)
		}
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// ChallengeOutcome is what the hub needs to settle a successful challenge.
type ChallengeOutcome struct {
	Owner          [20]byte
	Collateral     *big.Int
	PrincipalRepay *big.Int
	InterestRepay  *big.Int
	ReservePPM     uint64
}

// Repayment returns the total debt retired by the challenge.
func (o *ChallengeOutcome) Repayment() *big.Int {
	return new(big.Int).Add(o.PrincipalRepay, o.InterestRepay)
}
