package mintinghub

import (
	"fmt"
	"math/big"
	"strings"

	"stablecore/core/events"
	"stablecore/crypto"
	nativecommon "stablecore/native/common"
	"stablecore/native/position"
)

var (
	nonceKey         = []byte("hub/nonce")
	challengeNextKey = []byte("hub/challenge/next")
)

func challengeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("hub/challenge/%d", id))
}

func pendingKey(collateral string, owner [20]byte) []byte {
	return append([]byte("hub/pending/"+collateral+"/"), owner[:]...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	Atomic(fn func() error) error
}

// Engine is the minting hub: it opens and clones positions, runs the
// challenge auctions and sells the collateral of expired positions. The
// hub address is the hub of every position it creates and holds the
// challengers' collateral.
type Engine struct {
	address   [20]byte
	state     engineState
	ledger    Ledger
	bank      CollateralBank
	positions Positions
	params    Params
	emitter   events.Emitter
	pauses    nativecommon.PauseView
}

// NewEngine creates a hub acting as address with default parameters.
func NewEngine(address [20]byte) *Engine {
	return &Engine{
		address: address,
		params:  DefaultParams(),
		emitter: events.NoopEmitter{},
	}
}

// Address returns the hub's account.
func (e *Engine) Address() [20]byte { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the currency ledger.
func (e *Engine) SetLedger(l Ledger) { e.ledger = l }

// SetBank configures the collateral bank.
func (e *Engine) SetBank(b CollateralBank) { e.bank = b }

// SetPositions configures the position engine.
func (e *Engine) SetPositions(p Positions) { e.positions = p }

// SetPauses configures the pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetParams replaces the protocol parameters.
func (e *Engine) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.params = p.normalized()
	return nil
}

// Params returns a copy of the protocol parameters.
func (e *Engine) Params() Params { return e.params.normalized() }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil || e.bank == nil || e.positions == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) begin() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, nativecommon.ModuleHub)
}

// Now returns the clock shared with the position engine.
func (e *Engine) Now() uint64 { return e.positions.Now() }

func (e *Engine) nextAddress() ([20]byte, error) {
	var nonce uint64
	if _, err := e.state.KVGet(nonceKey, &nonce); err != nil {
		return [20]byte{}, err
	}
	if err := e.state.KVPut(nonceKey, nonce+1); err != nil {
		return [20]byte{}, err
	}
	return crypto.DerivePositionAddress(e.address, nonce), nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func positive(v *big.Int) bool { return v != nil && v.Sign() > 0 }

func nonNegative(v *big.Int) bool { return v != nil && v.Sign() >= 0 }

func (e *Engine) validateOpen(req OpenRequest) error {
	switch {
	case !e.bank.Exists(req.Collateral):
		return fmt.Errorf("%w: %s", ErrUnknownCollateral, req.Collateral)
	case req.InitPeriod < e.params.MinInitPeriod:
		return fmt.Errorf("%w: init period %d below %d", ErrInvalidParams, req.InitPeriod, e.params.MinInitPeriod)
	case req.ChallengePeriod < e.params.MinChallengePeriod:
		return fmt.Errorf("%w: challenge period %d below %d", ErrInvalidParams, req.ChallengePeriod, e.params.MinChallengePeriod)
	case req.Duration == 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidParams)
	case req.ReservePPM >= nativecommon.PPMDenominator:
		return fmt.Errorf("%w: reserve ppm %d", ErrInvalidParams, req.ReservePPM)
	case req.RiskPremiumPPM > nativecommon.PPMDenominator:
		return fmt.Errorf("%w: risk premium ppm %d", ErrInvalidParams, req.RiskPremiumPPM)
	case !positive(req.MinimumCollateral) || !positive(req.Price) || !positive(req.Limit):
		return fmt.Errorf("%w: minimum collateral, price and limit must be positive", ErrInvalidParams)
	case !nonNegative(req.InitialCollateral):
		return fmt.Errorf("%w: initial collateral", ErrInvalidParams)
	case req.InitialCollateral.Cmp(req.MinimumCollateral) < 0:
		return fmt.Errorf("%w: initial collateral below minimum", position.ErrInsufficientCollateral)
	}
	value := nativecommon.MulDiv(req.MinimumCollateral, req.Price, nativecommon.Scale)
	if value.Cmp(e.params.MinCollateralValue) < 0 {
		return fmt.Errorf("%w: minimum collateral worth %s, need %s", position.ErrInsufficientCollateral, value, e.params.MinCollateralValue)
	}
	return nil
}

// OpenPosition creates an original position owned by caller, charges the
// opening fee and moves the initial collateral into it. The position can
// mint once its init period has passed unless governance denies it first.
func (e *Engine) OpenPosition(caller [20]byte, req OpenRequest) (*position.Position, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	req.Collateral = normalizeSymbol(req.Collateral)
	if err := e.validateOpen(req); err != nil {
		return nil, err
	}
	var opened *position.Position
	err := e.state.Atomic(func() error {
		addr, err := e.nextAddress()
		if err != nil {
			return err
		}
		if _, err := e.positions.Create(e.address, position.Params{
			Address:           addr,
			Owner:             caller,
			Hub:               e.address,
			Collateral:        req.Collateral,
			MinimumCollateral: req.MinimumCollateral,
			Limit:             req.Limit,
			Price:             req.Price,
			InitPeriod:        req.InitPeriod,
			Duration:          req.Duration,
			ChallengePeriod:   req.ChallengePeriod,
			RiskPremiumPPM:    req.RiskPremiumPPM,
			ReservePPM:        req.ReservePPM,
		}); err != nil {
			return err
		}
		if err := e.ledger.RegisterPosition(e.address, addr); err != nil {
			return err
		}
		if err := e.ledger.CollectProfits(e.address, caller, e.params.OpeningFee); err != nil {
			return fmt.Errorf("mintinghub: opening fee: %w", err)
		}
		if err := e.positions.DepositCollateral(caller, addr, req.InitialCollateral); err != nil {
			return err
		}
		opened, err = e.positions.Get(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// Clone creates a position sharing the parent's family limit, funds it with
// the caller's collateral and mints the initial amount to the caller.
func (e *Engine) Clone(caller [20]byte, req CloneRequest) (*position.Position, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	if !nonNegative(req.InitialCollateral) || !nonNegative(req.InitialMint) {
		return nil, ErrInvalidAmount
	}
	owner := req.Owner
	if owner == ([20]byte{}) {
		owner = caller
	}
	var cloned *position.Position
	err := e.state.Atomic(func() error {
		parent, err := e.positions.Get(req.Parent)
		if err != nil {
			return err
		}
		if err := e.positions.AssertCloneable(parent); err != nil {
			return err
		}
		addr, err := e.nextAddress()
		if err != nil {
			return err
		}
		if _, err := e.positions.InitializeClone(e.address, addr, owner, parent, req.Expiration); err != nil {
			return err
		}
		if err := e.ledger.RegisterPosition(e.address, addr); err != nil {
			return err
		}
		if err := e.positions.DepositCollateral(caller, addr, req.InitialCollateral); err != nil {
			return err
		}
		if req.InitialMint.Sign() > 0 {
			if err := e.positions.Mint(caller, addr, caller, req.InitialMint); err != nil {
				return err
			}
		}
		cloned, err = e.positions.Get(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cloned, nil
}
