package stablecoin

import (
	"math/big"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
)

// minterReserveE6 is the sum of amount*reservePPM over every outstanding
// reserve mint. Dividing by 1e6 gives the reserve the system owes back.
func (l *Ledger) minterReserveE6() (*big.Int, error) {
	value := new(big.Int)
	ok, err := l.state.KVGet(minterReserveKey, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return value, nil
}

func (l *Ledger) adjustMinterReserve(amount *big.Int, ppm uint64, increase bool) error {
	current, err := l.minterReserveE6()
	if err != nil {
		return err
	}
	delta := new(big.Int).Mul(amount, new(big.Int).SetUint64(ppm))
	if increase {
		current.Add(current, delta)
	} else {
		current.Sub(current, delta)
		if current.Sign() < 0 {
			current.SetInt64(0)
		}
	}
	return l.state.KVPut(minterReserveKey, current)
}

// MinterReserve returns the reserve currently owed to minters.
func (l *Ledger) MinterReserve() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	e6, err := l.minterReserveE6()
	if err != nil {
		return nil, err
	}
	return e6.Quo(e6, nativecommon.PPM()), nil
}

// ReserveBalance returns the currency held by the reserve account.
func (l *Ledger) ReserveBalance() (*big.Int, error) {
	return l.BalanceOf(l.reserve)
}

// Equity is the part of the reserve not owed to minters.
func (l *Ledger) Equity() (*big.Int, error) {
	balance, err := l.ReserveBalance()
	if err != nil {
		return nil, err
	}
	owed, err := l.MinterReserve()
	if err != nil {
		return nil, err
	}
	return nativecommon.SubFloor(balance, owed), nil
}

// underfunded reports the reserve balance, the reserve owed to minters and
// whether the balance falls short of it.
func (l *Ledger) underfunded() (balance, owed *big.Int, short bool, err error) {
	balance, err = l.ReserveBalance()
	if err != nil {
		return nil, nil, false, err
	}
	owed, err = l.MinterReserve()
	if err != nil {
		return nil, nil, false, err
	}
	return balance, owed, balance.Cmp(owed) < 0, nil
}

// CalculateAssignedReserve returns the part of the reserve attributable to
// minted under reservePPM.
func (l *Ledger) CalculateAssignedReserve(minted *big.Int, reservePPM uint64) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if err := checkPPM(reservePPM); err != nil {
		return nil, err
	}
	theoretical := nativecommon.MulDiv(nativecommon.Copy(minted), new(big.Int).SetUint64(reservePPM), nativecommon.PPM())
	balance, owed, short, err := l.underfunded()
	if err != nil {
		return nil, err
	}
	if short {
		return nativecommon.MulDiv(theoretical, balance, owed), nil
	}
	return theoretical, nil
}

// CalculateFreedAmount returns the gross principal that is retired when the
// payer contributes amountExcludingReserve and the reserve adds its share.
func (l *Ledger) CalculateFreedAmount(amountExcludingReserve *big.Int, reservePPM uint64) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if err := checkPPM(reservePPM); err != nil {
		return nil, err
	}
	adjusted := new(big.Int).SetUint64(reservePPM)
	balance, owed, short, err := l.underfunded()
	if err != nil {
		return nil, err
	}
	if short {
		adjusted = nativecommon.MulDiv(adjusted, balance, owed)
	}
	denominator := new(big.Int).Sub(nativecommon.PPM(), adjusted)
	if denominator.Sign() == 0 {
		return nativecommon.Copy(amountExcludingReserve), nil
	}
	return nativecommon.MulDiv(nativecommon.PPM(), nativecommon.Copy(amountExcludingReserve), denominator), nil
}

// MintWithReserve mints amount of which floor(amount*(1e6-ppm)/1e6) goes to
// target and the remainder to the reserve. It returns the usable part.
func (l *Ledger) MintWithReserve(minter, target [20]byte, amount *big.Int, reservePPM uint64) (*big.Int, error) {
	if err := l.guard(minter); err != nil {
		return nil, err
	}
	if err := checkPPM(reservePPM); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	usable := UsableMint(amount, reservePPM)
	if err := l.mint(target, usable); err != nil {
		return nil, err
	}
	if err := l.mint(l.reserve, new(big.Int).Sub(amount, usable)); err != nil {
		return nil, err
	}
	if err := l.adjustMinterReserve(amount, reservePPM, true); err != nil {
		return nil, err
	}
	return usable, nil
}

// BurnWithoutReserve burns amount from the minter and releases the reserve
// requirement of the burned amount. The released reserve stays in the
// reserve account and becomes equity.
func (l *Ledger) BurnWithoutReserve(minter [20]byte, amount *big.Int, reservePPM uint64) error {
	if err := l.guard(minter); err != nil {
		return err
	}
	if err := checkPPM(reservePPM); err != nil {
		return err
	}
	if err := l.burn(minter, amount); err != nil {
		return err
	}
	return l.adjustMinterReserve(nativecommon.Copy(amount), reservePPM, false)
}

// BurnFromWithReserve retires targetTotal of principal. The assigned reserve
// share is burned from the reserve and the rest from payer. It returns the
// amount burned from payer.
func (l *Ledger) BurnFromWithReserve(minter, payer [20]byte, targetTotal *big.Int, reservePPM uint64) (*big.Int, error) {
	if err := l.guard(minter); err != nil {
		return nil, err
	}
	if targetTotal == nil || targetTotal.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	assigned, err := l.CalculateAssignedReserve(targetTotal, reservePPM)
	if err != nil {
		return nil, err
	}
	reserveBal, err := l.ReserveBalance()
	if err != nil {
		return nil, err
	}
	if assigned.Cmp(reserveBal) > 0 {
		assigned = reserveBal
	}
	if assigned.Cmp(targetTotal) > 0 {
		assigned = nativecommon.Copy(targetTotal)
	}
	fromPayer := new(big.Int).Sub(targetTotal, assigned)
	if err := l.burn(l.reserve, assigned); err != nil {
		return nil, err
	}
	if err := l.burn(payer, fromPayer); err != nil {
		return nil, err
	}
	if err := l.adjustMinterReserve(targetTotal, reservePPM, false); err != nil {
		return nil, err
	}
	return fromPayer, nil
}

// BurnWithReserve burns amountExcludingReserve from the minter, adds the
// reserve share and returns the gross amount freed.
func (l *Ledger) BurnWithReserve(minter [20]byte, amountExcludingReserve *big.Int, reservePPM uint64) (*big.Int, error) {
	if err := l.guard(minter); err != nil {
		return nil, err
	}
	if amountExcludingReserve == nil || amountExcludingReserve.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	freed, err := l.CalculateFreedAmount(amountExcludingReserve, reservePPM)
	if err != nil {
		return nil, err
	}
	if err := l.adjustMinterReserve(freed, reservePPM, false); err != nil {
		return nil, err
	}
	if err := l.move(l.reserve, minter, new(big.Int).Sub(freed, amountExcludingReserve)); err != nil {
		return nil, err
	}
	if err := l.burn(minter, freed); err != nil {
		return nil, err
	}
	return freed, nil
}

// CoverLoss pays amount to source out of the reserve, minting whatever the
// reserve cannot cover.
func (l *Ledger) CoverLoss(minter, source [20]byte, amount *big.Int) error {
	if err := l.guard(minter); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	reserveLeft, err := l.ReserveBalance()
	if err != nil {
		return err
	}
	minted := new(big.Int)
	if reserveLeft.Cmp(amount) >= 0 {
		if err := l.move(l.reserve, source, amount); err != nil {
			return err
		}
	} else {
		if err := l.move(l.reserve, source, reserveLeft); err != nil {
			return err
		}
		minted.Sub(amount, reserveLeft)
		if err := l.mint(source, minted); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.StablecoinLoss{Source: source, Amount: nativecommon.Copy(amount), Minted: minted})
	return nil
}

// CollectProfits moves amount from source into the reserve.
func (l *Ledger) CollectProfits(minter, source [20]byte, amount *big.Int) error {
	if err := l.guard(minter); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	if err := l.move(source, l.reserve, amount); err != nil {
		return err
	}
	l.emitter.Emit(events.StablecoinProfit{Source: source, Amount: nativecommon.Copy(amount)})
	return nil
}
