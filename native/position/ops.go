package position

import (
	"fmt"
	"math/big"
	"strings"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
)

// Params describes a new original position. Validation of protocol-wide
// bounds (minimum periods, opening fee) happens in the hub.
type Params struct {
	Address           [20]byte
	Owner             [20]byte
	Hub               [20]byte
	Collateral        string
	MinimumCollateral *big.Int
	Limit             *big.Int
	Price             *big.Int
	InitPeriod        uint64
	Duration          uint64
	ChallengePeriod   uint64
	RiskPremiumPPM    uint64
	ReservePPM        uint64
}

func (e *Engine) currentRate(riskPremium uint64) (uint64, error) {
	if e.rates == nil {
		return riskPremium, nil
	}
	base, err := e.rates.CurrentRatePPM()
	if err != nil {
		return 0, fmt.Errorf("position: base rate: %w", err)
	}
	return base + riskPremium, nil
}

// Create stores a new original position. Only its hub may create it.
func (e *Engine) Create(caller [20]byte, params Params) (*Position, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if caller != params.Hub {
		return nil, ErrNotHub
	}
	if e.Exists(params.Address) {
		return nil, ErrAlreadyInitialized
	}
	if params.ReservePPM > nativecommon.PPMDenominator || params.RiskPremiumPPM > nativecommon.PPMDenominator {
		return nil, fmt.Errorf("position: ppm out of range")
	}
	rate, err := e.currentRate(params.RiskPremiumPPM)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	start := now + params.InitPeriod
	p := &Position{
		Address:                params.Address,
		Owner:                  params.Owner,
		Original:               params.Address,
		Hub:                    params.Hub,
		Collateral:             strings.ToUpper(strings.TrimSpace(params.Collateral)),
		MinimumCollateral:      copyInt(params.MinimumCollateral),
		Limit:                  copyInt(params.Limit),
		Price:                  copyInt(params.Price),
		RiskPremiumPPM:         params.RiskPremiumPPM,
		FixedAnnualRatePPM:     rate,
		ReserveContributionPPM: params.ReservePPM,
		Start:                  start,
		Cooldown:               start,
		Expiration:             start + params.Duration,
		ChallengePeriod:        params.ChallengePeriod,
		LastAccrual:            now,
	}
	p.ensureDefaults()
	// The minimum collateral alone must not be worth more than the limit.
	if new(big.Int).Mul(p.Price, p.MinimumCollateral).Cmp(new(big.Int).Mul(p.Limit, nativecommon.Scale)) > 0 {
		return nil, ErrPriceTooHigh
	}
	err = e.state.Atomic(func() error {
		if err := e.store(p); err != nil {
			return err
		}
		return e.state.KVAppend(indexKey, p.Address[:])
	})
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PositionOpened{
		Owner:      p.Owner,
		Position:   p.Address,
		Original:   p.Original,
		Collateral: p.Collateral,
		Price:      copyInt(p.Price),
		Limit:      copyInt(p.Limit),
		Expiration: p.Expiration,
		RatePPM:    p.FixedAnnualRatePPM,
	})
	return p, nil
}

// AssertCloneable fails unless parent is active: past its start, out of
// cooldown, unchallenged, unexpired and open.
func (e *Engine) AssertCloneable(parent *Position) error {
	now := e.Now()
	switch {
	case parent.Closed:
		return ErrClosed
	case now < parent.Start || now < parent.Cooldown:
		return ErrHot
	case now >= parent.Expiration:
		return ErrExpired
	case parent.ChallengedAmount.Sign() > 0:
		return ErrChallenged
	}
	return nil
}

// InitializeClone stores a clone of parent at addr. The clone shares the
// original's limit and terms, locks in the current base rate and expires at
// expiration, which must lie in the future and not after the original's.
func (e *Engine) InitializeClone(caller, addr, owner [20]byte, parent *Position, expiration uint64) (*Position, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if caller != parent.Hub {
		return nil, ErrNotHub
	}
	if e.Exists(addr) {
		return nil, ErrAlreadyInitialized
	}
	original, err := e.loadOriginal(parent)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	if expiration <= now || expiration > original.Expiration {
		return nil, fmt.Errorf("%w: %d not in (%d, %d]", ErrInvalidExpiration, expiration, now, original.Expiration)
	}
	rate, err := e.currentRate(parent.RiskPremiumPPM)
	if err != nil {
		return nil, err
	}
	clone := &Position{
		Address:                addr,
		Owner:                  owner,
		Original:               original.Address,
		Hub:                    parent.Hub,
		Collateral:             parent.Collateral,
		MinimumCollateral:      copyInt(parent.MinimumCollateral),
		Limit:                  copyInt(original.Limit),
		Price:                  copyInt(parent.Price),
		RiskPremiumPPM:         parent.RiskPremiumPPM,
		FixedAnnualRatePPM:     rate,
		ReserveContributionPPM: parent.ReserveContributionPPM,
		Start:                  parent.Start,
		Cooldown:               now,
		Expiration:             expiration,
		ChallengePeriod:        parent.ChallengePeriod,
		LastAccrual:            now,
	}
	clone.ensureDefaults()
	err = e.state.Atomic(func() error {
		if err := e.store(clone); err != nil {
			return err
		}
		return e.state.KVAppend(indexKey, clone.Address[:])
	})
	if err != nil {
		return nil, err
	}
	e.emitter.Emit(events.PositionOpened{
		Owner:      clone.Owner,
		Position:   clone.Address,
		Original:   clone.Original,
		Collateral: clone.Collateral,
		Price:      copyInt(clone.Price),
		Limit:      copyInt(clone.Limit),
		Expiration: clone.Expiration,
		RatePPM:    clone.FixedAnnualRatePPM,
	})
	return clone, nil
}

func (e *Engine) requireOwner(p *Position, caller [20]byte) error {
	if caller != p.Owner {
		return ErrNotOwner
	}
	return nil
}

func (e *Engine) requireOwnerOrRoller(p *Position, caller [20]byte) error {
	if caller != p.Owner && !e.isRoller(caller) {
		return ErrNotOwner
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Mint adds amount to the principal and pays the usable part to target. The
// reserve contribution goes to the reserve.
func (e *Engine) Mint(caller, addr, target [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		if err := e.requireOwnerOrRoller(p, caller); err != nil {
			return err
		}
		return e.mint(p, target, amount, now)
	})
}

func (e *Engine) mint(p *Position, target [20]byte, amount *big.Int, now uint64) error {
	switch {
	case p.Closed:
		return ErrClosed
	case now >= p.Expiration:
		return ErrExpired
	case p.ChallengedAmount.Sign() > 0:
		return ErrChallenged
	case now < p.Cooldown:
		return ErrHot
	}
	available, err := e.AvailableForMinting(p)
	if err != nil {
		return err
	}
	if amount.Cmp(available) > 0 {
		return fmt.Errorf("%w: %s requested, %s available", ErrLimitExceeded, amount, available)
	}
	accrue(p, now)
	if err := e.notifyMint(p, amount); err != nil {
		return err
	}
	if _, err := e.ledger.MintWithReserve(p.Address, target, amount, p.ReserveContributionPPM); err != nil {
		return err
	}
	p.Principal = new(big.Int).Add(p.Principal, amount)
	balance, err := e.CollateralBalance(p)
	if err != nil {
		return err
	}
	return checkCollateral(p, balance, p.Price)
}

// Repay retires up to amount of debt paid by caller, interest first. The
// principal part is burned against its reserve share, so the caller pays
// less than the principal retired. It returns what the caller paid.
func (e *Engine) Repay(caller, addr [20]byte, amount *big.Int) (*big.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	var paid *big.Int
	err := e.mutate(addr, func(p *Position, now uint64) error {
		var err error
		paid, err = e.repay(p, caller, amount, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// RepayFull retires the whole debt.
func (e *Engine) RepayFull(caller, addr [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := e.mutate(addr, func(p *Position, now uint64) error {
		accrue(p, now)
		var err error
		paid, err = e.repay(p, caller, p.Debt(), now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (e *Engine) repay(p *Position, payer [20]byte, amount *big.Int, now uint64) (*big.Int, error) {
	accrue(p, now)
	remaining := nativecommon.Min(amount, p.Debt())
	paid := new(big.Int)
	if p.Interest.Sign() > 0 && remaining.Sign() > 0 {
		interestPay := nativecommon.Min(p.Interest, remaining)
		if err := e.ledger.CollectProfits(p.Address, payer, interestPay); err != nil {
			return nil, err
		}
		p.Interest = new(big.Int).Sub(p.Interest, interestPay)
		remaining.Sub(remaining, interestPay)
		paid.Add(paid, interestPay)
	}
	if remaining.Sign() > 0 {
		if remaining.Cmp(p.Principal) > 0 {
			return nil, fmt.Errorf("%w: %s exceeds principal %s", ErrRepaidTooMuch, remaining, p.Principal)
		}
		burned, err := e.ledger.BurnFromWithReserve(p.Address, payer, remaining, p.ReserveContributionPPM)
		if err != nil {
			return nil, err
		}
		if err := e.notifyRepaid(p, remaining); err != nil {
			return nil, err
		}
		p.Principal = new(big.Int).Sub(p.Principal, remaining)
		paid.Add(paid, burned)
	}
	return paid, nil
}

// DepositCollateral moves collateral from caller into the position.
func (e *Engine) DepositCollateral(caller, addr [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		return e.bank.Transfer(p.Collateral, caller, p.Address, amount)
	})
}

// WithdrawCollateral sends amount of collateral to target. The position must
// stay solvent. Dropping below the minimum collateral closes it.
func (e *Engine) WithdrawCollateral(caller, addr, target [20]byte, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		if err := e.requireOwnerOrRoller(p, caller); err != nil {
			return err
		}
		return e.withdraw(p, target, amount, now)
	})
}

func (e *Engine) withdraw(p *Position, target [20]byte, amount *big.Int, now uint64) error {
	if p.ChallengedAmount.Sign() > 0 {
		return ErrChallenged
	}
	if !p.Closed && now < p.Cooldown {
		return ErrHot
	}
	accrue(p, now)
	balance, err := e.sendCollateral(p, target, amount)
	if err != nil {
		return err
	}
	return checkCollateral(p, balance, p.Price)
}

// AdjustPrice changes the liquidation price. Raising it starts a cooldown;
// lowering it must keep the position solvent.
func (e *Engine) AdjustPrice(caller, addr [20]byte, newPrice *big.Int) error {
	if err := checkAmount(newPrice); err != nil {
		return err
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		if err := e.requireOwner(p, caller); err != nil {
			return err
		}
		return e.adjustPrice(p, newPrice, now)
	})
}

func (e *Engine) adjustPrice(p *Position, newPrice *big.Int, now uint64) error {
	switch {
	case p.Closed:
		return ErrClosed
	case now >= p.Expiration:
		return ErrExpired
	case p.ChallengedAmount.Sign() > 0:
		return ErrChallenged
	case now < p.Cooldown:
		return ErrHot
	}
	accrue(p, now)
	if newPrice.Cmp(p.Price) > 0 {
		restrictMinting(p, now, PriceIncreaseCooldown)
	} else {
		balance, err := e.CollateralBalance(p)
		if err != nil {
			return err
		}
		if err := checkCollateral(p, balance, newPrice); err != nil {
			return err
		}
	}
	available, err := e.AvailableForMinting(p)
	if err != nil {
		return err
	}
	bounds := new(big.Int).Add(p.Principal, available)
	if new(big.Int).Mul(newPrice, p.MinimumCollateral).Cmp(new(big.Int).Mul(bounds, nativecommon.Scale)) > 0 {
		return ErrPriceTooHigh
	}
	p.Price = copyInt(newPrice)
	return nil
}

// Adjust moves the position to the requested debt, collateral and price in
// one step: deposit, repay, withdraw, mint, reprice.
func (e *Engine) Adjust(caller, addr [20]byte, newDebt, newCollateral, newPrice *big.Int) error {
	for _, v := range []*big.Int{newDebt, newCollateral, newPrice} {
		if err := checkAmount(v); err != nil {
			return err
		}
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		if err := e.requireOwner(p, caller); err != nil {
			return err
		}
		balance, err := e.CollateralBalance(p)
		if err != nil {
			return err
		}
		if newCollateral.Cmp(balance) > 0 {
			if err := e.bank.Transfer(p.Collateral, caller, p.Address, new(big.Int).Sub(newCollateral, balance)); err != nil {
				return err
			}
		}
		accrue(p, now)
		debt := p.Debt()
		if newDebt.Cmp(debt) < 0 {
			if _, err := e.repay(p, caller, new(big.Int).Sub(debt, newDebt), now); err != nil {
				return err
			}
		}
		if newCollateral.Cmp(balance) < 0 {
			if err := e.withdraw(p, caller, new(big.Int).Sub(balance, newCollateral), now); err != nil {
				return err
			}
		}
		if newDebt.Cmp(debt) > 0 {
			if err := e.mint(p, caller, new(big.Int).Sub(newDebt, debt), now); err != nil {
				return err
			}
		}
		if newPrice.Cmp(p.Price) != 0 {
			return e.adjustPrice(p, newPrice, now)
		}
		return nil
	})
}

// Deny vetoes a proposed position before it starts. Only governance may deny.
func (e *Engine) Deny(caller, addr [20]byte, message string) error {
	err := e.mutate(addr, func(p *Position, now uint64) error {
		if now >= p.Start {
			return ErrTooLate
		}
		if !e.state.HasRole(nativecommon.RoleGovernance, caller[:]) {
			return ErrNotQualified
		}
		p.Closed = true
		return nil
	})
	if err != nil {
		return err
	}
	e.emitter.Emit(events.PositionDenied{Position: addr, Denier: caller, Message: message})
	return nil
}

// TransferOwnership hands the position to newOwner.
func (e *Engine) TransferOwnership(caller, addr, newOwner [20]byte) error {
	if newOwner == ([20]byte{}) {
		return fmt.Errorf("position: new owner required")
	}
	var previous [20]byte
	err := e.mutate(addr, func(p *Position, now uint64) error {
		if err := e.requireOwner(p, caller); err != nil {
			return err
		}
		previous = p.Owner
		p.Owner = newOwner
		return nil
	})
	if err != nil {
		return err
	}
	e.emitter.Emit(events.PositionOwnerChanged{Position: addr, PreviousOwner: previous, NewOwner: newOwner})
	return nil
}
