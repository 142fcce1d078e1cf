package roller

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
	"stablecore/native/mintinghub"
	"stablecore/native/position"
)

var (
	errNilState = errors.New("roller: state not configured")

	ErrCollateralMismatch   = errors.New("roller: source and target collateral differ")
	ErrRollSettlement       = errors.New("roller: flash amount not recovered")
	ErrNotWrappedCollateral = errors.New("roller: collateral is not the wrapped native token")
	ErrInvalidPlan          = errors.New("roller: invalid plan")
)

// Ledger mints and burns the flash amount. The roller must be a minter.
type Ledger interface {
	Mint(minter, to [20]byte, amount *big.Int) error
	BurnFrom(minter, from [20]byte, amount *big.Int) error
}

// Positions is the part of the position engine the roller drives. The
// roller must be recognised as acting for owners.
type Positions interface {
	position.View
	Now() uint64
	CurrentInterest(p *position.Position) *big.Int
	Repay(caller, addr [20]byte, amount *big.Int) (*big.Int, error)
	WithdrawCollateral(caller, addr, target [20]byte, amount *big.Int) error
	DepositCollateral(caller, addr [20]byte, amount *big.Int) error
	Mint(caller, addr, target [20]byte, amount *big.Int) error
}

// Hub clones target templates.
type Hub interface {
	Clone(caller [20]byte, req mintinghub.CloneRequest) (*position.Position, error)
}

// Wrapper converts between the native coin and its wrapped token.
type Wrapper interface {
	WrappedSymbol() string
	Wrap(addr [20]byte, amount *big.Int) error
	Unwrap(addr [20]byte, amount *big.Int) error
}

type engineState interface {
	Atomic(fn func() error) error
}

// Plan is one roll from Source into Target. Repay is the debt retired on the
// source, Mint the principal taken on the target.
type Plan struct {
	Source             [20]byte
	Target             [20]byte
	Repay              *big.Int
	CollateralWithdraw *big.Int
	Mint               *big.Int
	CollateralDeposit  *big.Int
	Expiration         uint64
}

// Result reports where the debt ended up.
type Result struct {
	Plan   Plan
	Target [20]byte
	Cloned bool
	Repaid *big.Int
}

// Engine moves debt and collateral from one position to another in a single
// atomic step, financing the repayment with a flash mint.
type Engine struct {
	address   [20]byte
	state     engineState
	ledger    Ledger
	positions Positions
	hub       Hub
	wrapper   Wrapper
	emitter   events.Emitter
	pauses    nativecommon.PauseView
}

// NewEngine creates a roller acting as address.
func NewEngine(address [20]byte) *Engine {
	return &Engine{address: address, emitter: events.NoopEmitter{}}
}

// Address returns the roller's account.
func (e *Engine) Address() [20]byte { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the currency ledger.
func (e *Engine) SetLedger(l Ledger) { e.ledger = l }

// SetPositions configures the position engine.
func (e *Engine) SetPositions(p Positions) { e.positions = p }

// SetHub configures the hub used to clone targets.
func (e *Engine) SetHub(h Hub) { e.hub = h }

// SetWrapper configures native coin wrapping for RollFullyNative.
func (e *Engine) SetWrapper(w Wrapper) { e.wrapper = w }

// SetPauses configures the pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) begin() error {
	if e == nil || e.state == nil || e.ledger == nil || e.positions == nil || e.hub == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, nativecommon.ModuleRoller)
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// PlanFully computes the roll of the whole source debt into target. extra is
// collateral the caller adds on top of the source balance.
func (e *Engine) PlanFully(source, target [20]byte, expiration uint64, extra *big.Int) (Plan, error) {
	if e == nil || e.positions == nil {
		return Plan{}, errNilState
	}
	src, err := e.positions.Get(source)
	if err != nil {
		return Plan{}, err
	}
	tgt, err := e.positions.Get(target)
	if err != nil {
		return Plan{}, err
	}
	if src.Collateral != tgt.Collateral {
		return Plan{}, ErrCollateralMismatch
	}
	balance, err := e.positions.CollateralBalance(src)
	if err != nil {
		return Plan{}, err
	}
	interest := e.positions.CurrentInterest(src)
	repay := new(big.Int).Add(src.Principal, interest)
	usable := new(big.Int).Add(src.UsableMint(src.Principal), interest)
	mint := tgt.MintAmount(usable)

	available := new(big.Int).Add(balance, amountOrZero(extra))
	deposit := nativecommon.MulDivUp(mint, nativecommon.Scale, tgt.Price)
	if deposit.Cmp(available) > 0 {
		deposit = available
		mint = nativecommon.MulDiv(deposit, tgt.Price, nativecommon.Scale)
	}
	return Plan{
		Source:             source,
		Target:             target,
		Repay:              repay,
		CollateralWithdraw: balance,
		Mint:               mint,
		CollateralDeposit:  deposit,
		Expiration:         expiration,
	}, nil
}

// RollFully rolls the whole source position into target, keeping the
// target's expiration.
func (e *Engine) RollFully(caller, source, target [20]byte) (*Result, error) {
	if e == nil || e.positions == nil {
		return nil, errNilState
	}
	tgt, err := e.positions.Get(target)
	if err != nil {
		return nil, err
	}
	return e.RollFullyWithExpiration(caller, source, target, tgt.Expiration)
}

// RollFullyWithExpiration rolls the whole source position into target with
// the given expiration, cloning target when needed.
func (e *Engine) RollFullyWithExpiration(caller, source, target [20]byte, expiration uint64) (*Result, error) {
	plan, err := e.PlanFully(source, target, expiration, nil)
	if err != nil {
		return nil, err
	}
	return e.Roll(caller, plan)
}

// Roll executes plan for caller, who must own the source. The repayment is
// flash minted to the caller and burned from the caller at the end, so the
// caller covers any gap between what the source cost and what the target
// paid out. Nothing is kept if any step fails.
func (e *Engine) Roll(caller [20]byte, plan Plan) (*Result, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	var result *Result
	err := e.state.Atomic(func() error {
		var err error
		result, err = e.apply(caller, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) apply(caller [20]byte, plan Plan) (*Result, error) {
	for _, v := range []*big.Int{plan.Repay, plan.CollateralWithdraw, plan.Mint, plan.CollateralDeposit} {
		if v == nil || v.Sign() < 0 {
			return nil, ErrInvalidPlan
		}
	}
	src, err := e.positions.Get(plan.Source)
	if err != nil {
		return nil, err
	}
	if src.Owner != caller {
		return nil, position.ErrNotOwner
	}
	tgt, err := e.positions.Get(plan.Target)
	if err != nil {
		return nil, err
	}
	if src.Collateral != tgt.Collateral {
		return nil, ErrCollateralMismatch
	}

	if err := e.ledger.Mint(e.address, caller, plan.Repay); err != nil {
		return nil, fmt.Errorf("roller: flash mint: %w", err)
	}
	repaid := new(big.Int)
	if plan.Repay.Sign() > 0 {
		if repaid, err = e.positions.Repay(caller, plan.Source, plan.Repay); err != nil {
			return nil, err
		}
	}
	if plan.CollateralWithdraw.Sign() > 0 {
		if err := e.positions.WithdrawCollateral(e.address, plan.Source, caller, plan.CollateralWithdraw); err != nil {
			return nil, err
		}
	}

	result := &Result{Plan: plan, Target: plan.Target, Repaid: repaid}
	if tgt.Owner == caller && tgt.Expiration == plan.Expiration {
		if err := e.positions.DepositCollateral(caller, plan.Target, plan.CollateralDeposit); err != nil {
			return nil, err
		}
		if plan.Mint.Sign() > 0 {
			if err := e.positions.Mint(e.address, plan.Target, caller, plan.Mint); err != nil {
				return nil, err
			}
		}
	} else {
		clone, err := e.hub.Clone(caller, mintinghub.CloneRequest{
			Owner:             caller,
			Parent:            plan.Target,
			InitialCollateral: plan.CollateralDeposit,
			InitialMint:       plan.Mint,
			Expiration:        plan.Expiration,
		})
		if err != nil {
			return nil, err
		}
		result.Target = clone.Address
		result.Cloned = true
	}

	if err := e.ledger.BurnFrom(e.address, caller, plan.Repay); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRollSettlement, err)
	}
	e.emitter.Emit(events.Roll{
		Owner:        caller,
		Source:       plan.Source,
		Target:       result.Target,
		Repaid:       nativecommon.Copy(repaid),
		CollWithdraw: nativecommon.Copy(plan.CollateralWithdraw),
		CollDeposit:  nativecommon.Copy(plan.CollateralDeposit),
		Minted:       nativecommon.Copy(plan.Mint),
	})
	return result, nil
}

// RollFullyNative rolls like RollFullyWithExpiration for positions backed by
// the wrapped native token. extraNative is wrapped first and counts as
// additional collateral; collateral not deposited into the target is
// unwrapped back to the caller.
func (e *Engine) RollFullyNative(caller, source, target [20]byte, expiration uint64, extraNative *big.Int) (*Result, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if e.wrapper == nil {
		return nil, ErrNotWrappedCollateral
	}
	extra := amountOrZero(extraNative)
	if extra.Sign() < 0 {
		return nil, ErrInvalidPlan
	}
	src, err := e.positions.Get(source)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(src.Collateral, e.wrapper.WrappedSymbol()) {
		return nil, ErrNotWrappedCollateral
	}
	var result *Result
	err = e.state.Atomic(func() error {
		if err := e.wrapper.Wrap(caller, extra); err != nil {
			return err
		}
		plan, err := e.PlanFully(source, target, expiration, extra)
		if err != nil {
			return err
		}
		result, err = e.apply(caller, plan)
		if err != nil {
			return err
		}
		leftover := new(big.Int).Add(plan.CollateralWithdraw, extra)
		leftover.Sub(leftover, plan.CollateralDeposit)
		if leftover.Sign() > 0 {
			return e.wrapper.Unwrap(caller, leftover)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
