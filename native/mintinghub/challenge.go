package mintinghub

import (
	"fmt"
	"math/big"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
	"stablecore/native/position"
)

// AuctionPrice is the settlement price of a challenge elapsed seconds after
// it started. It stays at price for the first half period, then falls
// linearly to zero over the following two periods, passing price/2 at
// 1.5 periods.
func AuctionPrice(price *big.Int, period, elapsed uint64) *big.Int {
	if price == nil || period == 0 {
		return new(big.Int)
	}
	half := period / 2
	if elapsed < half {
		return new(big.Int).Set(price)
	}
	decay := 2 * period
	end := half + decay
	if elapsed >= end {
		return new(big.Int)
	}
	return nativecommon.MulDiv(price, new(big.Int).SetUint64(end-elapsed), new(big.Int).SetUint64(decay))
}

// GetChallenge loads an open challenge.
func (e *Engine) GetChallenge(id uint64) (*Challenge, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ch := new(Challenge)
	ok, err := e.state.KVGet(challengeKey(id), ch)
	if err != nil {
		return nil, fmt.Errorf("mintinghub: load challenge %d: %w", id, err)
	}
	if !ok {
		return nil, ErrChallengeNotFound
	}
	ch.ensureDefaults()
	return ch, nil
}

func (e *Engine) storeChallenge(ch *Challenge) error {
	if ch.Size.Sign() == 0 {
		return e.state.KVDelete(challengeKey(ch.ID))
	}
	return e.state.KVPut(challengeKey(ch.ID), ch)
}

// ChallengePrice returns the current settlement price of challenge id.
func (e *Engine) ChallengePrice(id uint64) (*big.Int, error) {
	ch, err := e.GetChallenge(id)
	if err != nil {
		return nil, err
	}
	p, err := e.positions.Get(ch.Position)
	if err != nil {
		return nil, err
	}
	return e.priceOf(ch, p), nil
}

func (e *Engine) priceOf(ch *Challenge, p *position.Position) *big.Int {
	now := e.Now()
	var elapsed uint64
	if now > ch.Start {
		elapsed = now - ch.Start
	}
	return AuctionPrice(ch.Price, p.ChallengePeriod, elapsed)
}

// Challenge locks size of the caller's collateral against the position at
// its current price. minimumPrice protects the challenger against a
// repricing racing the call.
func (e *Engine) Challenge(caller, addr [20]byte, size, minimumPrice *big.Int) (uint64, error) {
	if err := e.begin(); err != nil {
		return 0, err
	}
	if !positive(size) {
		return 0, ErrInvalidAmount
	}
	var id uint64
	err := e.state.Atomic(func() error {
		p, err := e.positions.Get(addr)
		if err != nil {
			return err
		}
		if minimumPrice != nil && p.Price.Cmp(minimumPrice) < 0 {
			return fmt.Errorf("%w: price %s below %s", ErrUnexpectedPrice, p.Price, minimumPrice)
		}
		if err := e.bank.Transfer(p.Collateral, caller, e.address, size); err != nil {
			return err
		}
		if err := e.positions.NotifyChallengeStarted(e.address, addr, size, p.Price); err != nil {
			return err
		}
		if _, err := e.state.KVGet(challengeNextKey, &id); err != nil {
			return err
		}
		if err := e.state.KVPut(challengeNextKey, id+1); err != nil {
			return err
		}
		ch := &Challenge{
			ID:         id,
			Challenger: caller,
			Position:   addr,
			Size:       nativecommon.Copy(size),
			Price:      nativecommon.Copy(p.Price),
			Start:      e.Now(),
		}
		if err := e.storeChallenge(ch); err != nil {
			return err
		}
		e.emitter.Emit(events.ChallengeStarted{
			ID:         id,
			Challenger: caller,
			Position:   addr,
			Size:       nativecommon.Copy(size),
			Price:      nativecommon.Copy(p.Price),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Bid settles up to size of challenge id at the current auction price.
// During the flat phase the bid averts the challenge: the bidder buys the
// challenger's collateral at the challenge price. Afterwards the bid
// succeeds: the bidder buys the position's collateral, the debt share is
// written off and the challenger gets back their collateral plus a reward.
// With postpone set, the challenger's collateral is kept in the hub until
// they claim it.
func (e *Engine) Bid(caller [20]byte, id uint64, size *big.Int, postpone bool) (*BidResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if !positive(size) {
		return nil, ErrInvalidAmount
	}
	var result *BidResult
	err := e.state.Atomic(func() error {
		ch, err := e.GetChallenge(id)
		if err != nil {
			return err
		}
		now := e.Now()
		if now <= ch.Start {
			return ErrTooEarly
		}
		p, err := e.positions.Get(ch.Position)
		if err != nil {
			return err
		}
		take := nativecommon.Min(size, ch.Size)
		price := e.priceOf(ch, p)
		if now-ch.Start < p.ChallengePeriod/2 {
			result, err = e.avert(caller, ch, p, take, price)
		} else {
			result, err = e.succeed(caller, ch, p, take, price, postpone)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) avert(bidder [20]byte, ch *Challenge, p *position.Position, size, price *big.Int) (*BidResult, error) {
	cost := new(big.Int)
	if bidder != ch.Challenger {
		cost = nativecommon.MulDiv(size, price, nativecommon.Scale)
		if err := e.ledger.Transfer(bidder, ch.Challenger, cost); err != nil {
			return nil, err
		}
	}
	if err := e.bank.Transfer(p.Collateral, e.address, bidder, size); err != nil {
		return nil, err
	}
	if err := e.positions.NotifyChallengeAverted(e.address, ch.Position, size); err != nil {
		return nil, err
	}
	ch.Size = new(big.Int).Sub(ch.Size, size)
	if err := e.storeChallenge(ch); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.ChallengeAverted{
		ID:        ch.ID,
		Position:  ch.Position,
		Bidder:    bidder,
		Size:      nativecommon.Copy(size),
		Remaining: nativecommon.Copy(ch.Size),
	})
	return &BidResult{
		Averted:  true,
		Size:     nativecommon.Copy(size),
		Price:    price,
		Paid:     cost,
		Acquired: nativecommon.Copy(size),
		Reward:   new(big.Int),
	}, nil
}

func (e *Engine) succeed(bidder [20]byte, ch *Challenge, p *position.Position, size, price *big.Int, postpone bool) (*BidResult, error) {
	ch.Size = new(big.Int).Sub(ch.Size, size)
	if err := e.storeChallenge(ch); err != nil {
		return nil, err
	}
	if err := e.returnChallengerCollateral(ch.Challenger, p.Collateral, size, postpone); err != nil {
		return nil, err
	}
	outcome, err := e.positions.NotifyChallengeSucceeded(e.address, ch.Position, bidder, size)
	if err != nil {
		return nil, err
	}

	offer := nativecommon.MulDiv(price, outcome.Collateral, nativecommon.Scale)
	if err := e.ledger.Transfer(bidder, e.address, offer); err != nil {
		return nil, err
	}
	reward := nativecommon.MulDiv(offer, big.NewInt(int64(e.params.ChallengerRewardPPM)), nativecommon.PPM())
	if err := e.ledger.Transfer(e.address, ch.Challenger, reward); err != nil {
		return nil, err
	}
	funds := new(big.Int).Sub(offer, reward)

	interestPaid := nativecommon.Min(funds, outcome.InterestRepay)
	if err := e.ledger.CollectProfits(e.address, e.address, interestPaid); err != nil {
		return nil, err
	}
	funds.Sub(funds, interestPaid)

	principal := outcome.PrincipalRepay
	if funds.Cmp(principal) > 0 {
		excess := new(big.Int).Sub(funds, principal)
		profit := nativecommon.MulDiv(excess, new(big.Int).SetUint64(outcome.ReservePPM), nativecommon.PPM())
		if err := e.ledger.CollectProfits(e.address, e.address, profit); err != nil {
			return nil, err
		}
		if err := e.ledger.Transfer(e.address, outcome.Owner, new(big.Int).Sub(excess, profit)); err != nil {
			return nil, err
		}
	} else if funds.Cmp(principal) < 0 {
		if err := e.ledger.CoverLoss(e.address, e.address, new(big.Int).Sub(principal, funds)); err != nil {
			return nil, err
		}
	}
	if err := e.ledger.BurnWithoutReserve(e.address, principal, outcome.ReservePPM); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.ChallengeSucceeded{
		ID:          ch.ID,
		Position:    ch.Position,
		Bidder:      bidder,
		Bid:         nativecommon.Copy(offer),
		Acquired:    nativecommon.Copy(outcome.Collateral),
		ChallengeSz: nativecommon.Copy(size),
		Repaid:      outcome.Repayment(),
		Reward:      nativecommon.Copy(reward),
	})
	return &BidResult{
		Size:     nativecommon.Copy(size),
		Price:    price,
		Paid:     offer,
		Acquired: nativecommon.Copy(outcome.Collateral),
		Reward:   reward,
	}, nil
}

func (e *Engine) returnChallengerCollateral(challenger [20]byte, collateral string, amount *big.Int, postpone bool) error {
	if !postpone {
		return e.bank.Transfer(collateral, e.address, challenger, amount)
	}
	pending, err := e.PendingReturns(collateral, challenger)
	if err != nil {
		return err
	}
	pending.Add(pending, amount)
	if err := e.state.KVPut(pendingKey(collateral, challenger), pending); err != nil {
		return err
	}
	e.emitter.Emit(events.PendingReturn{
		Owner:      challenger,
		Collateral: collateral,
		Amount:     nativecommon.Copy(amount),
		Total:      nativecommon.Copy(pending),
	})
	return nil
}

// PendingReturns is the collateral held for owner after postponed bids.
func (e *Engine) PendingReturns(collateral string, owner [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pending := new(big.Int)
	if _, err := e.state.KVGet(pendingKey(normalizeSymbol(collateral), owner), pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// ReturnPostponedCollateral sends the caller's pending collateral to target.
func (e *Engine) ReturnPostponedCollateral(caller [20]byte, collateral string, target [20]byte) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	collateral = normalizeSymbol(collateral)
	var amount *big.Int
	err := e.state.Atomic(func() error {
		pending, err := e.PendingReturns(collateral, caller)
		if err != nil {
			return err
		}
		if pending.Sign() == 0 {
			return ErrNothingPending
		}
		if err := e.state.KVDelete(pendingKey(collateral, caller)); err != nil {
			return err
		}
		amount = pending
		return e.bank.Transfer(collateral, e.address, target, pending)
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}
