package mintinghub

import (
	"fmt"
	"math/big"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
	"stablecore/native/position"
)

// ExpiredPrice is the forced-sale price of collateral at now for a position
// priced at price that expires at expiration. It is ten times the price
// until expiration, falls linearly to the price over one period, then to
// zero over a second period.
func ExpiredPrice(price *big.Int, expiration, period, now uint64) *big.Int {
	if price == nil {
		return new(big.Int)
	}
	factor := big.NewInt(expiredPriceFactor)
	if now <= expiration {
		return new(big.Int).Mul(price, factor)
	}
	if period == 0 {
		return new(big.Int)
	}
	elapsed := now - expiration
	span := new(big.Int).SetUint64(period)
	switch {
	case elapsed < period:
		// factor*p at elapsed 0 down to p at one period
		weight := new(big.Int).Mul(factor, span)
		weight.Sub(weight, new(big.Int).Mul(big.NewInt(expiredPriceFactor-1), new(big.Int).SetUint64(elapsed)))
		return nativecommon.MulDiv(price, weight, span)
	case elapsed < 2*period:
		return nativecommon.MulDiv(price, new(big.Int).SetUint64(2*period-elapsed), span)
	default:
		return new(big.Int)
	}
}

// ExpiredPurchasePrice returns the current forced-sale price for the
// position's collateral.
func (e *Engine) ExpiredPurchasePrice(addr [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p, err := e.positions.Get(addr)
	if err != nil {
		return nil, err
	}
	return ExpiredPrice(p.Price, p.Expiration, p.ChallengePeriod, e.Now()), nil
}

// BuyExpiredCollateral buys up to upTo collateral of an expired position at
// the forced-sale price. The proceeds repay the position's debt; any
// surplus goes to its owner. It returns the amount bought.
func (e *Engine) BuyExpiredCollateral(caller, addr [20]byte, upTo *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if !positive(upTo) {
		return nil, ErrInvalidAmount
	}
	var bought *big.Int
	err := e.state.Atomic(func() error {
		p, err := e.positions.Get(addr)
		if err != nil {
			return err
		}
		now := e.Now()
		if now < p.Expiration {
			return position.ErrAlive
		}
		balance, err := e.positions.CollateralBalance(p)
		if err != nil {
			return err
		}
		amount := nativecommon.Min(upTo, balance)
		price := ExpiredPrice(p.Price, p.Expiration, p.ChallengePeriod, now)
		cost := nativecommon.MulDiv(amount, price, nativecommon.Scale)
		left := new(big.Int).Sub(balance, amount)
		if left.Sign() > 0 {
			worth := nativecommon.MulDiv(left, price, nativecommon.Scale)
			if worth.Cmp(e.params.DustValue) < 0 {
				return fmt.Errorf("%w: %s collateral worth %s left", ErrLeaveNoDust, left, worth)
			}
		}
		if err := e.positions.ForceSale(e.address, addr, caller, amount, cost); err != nil {
			return err
		}
		e.emitter.Emit(events.ForcedSale{
			Position: addr,
			Buyer:    caller,
			Amount:   nativecommon.Copy(amount),
			Price:    price,
			Cost:     cost,
		})
		bought = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bought, nil
}
