package position

import (
	"fmt"
	"math/big"
	"time"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
)

var (
	positionPrefix = "position/"
	indexKey       = []byte("position/index")
)

func positionKey(addr [20]byte) []byte {
	return append([]byte(positionPrefix), addr[:]...)
}

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
	HasRole(role string, addr []byte) bool
	Atomic(fn func() error) error
}

// Engine executes position operations against state. Each mutating call is
// atomic: any error leaves state as it was.
type Engine struct {
	state   engineState
	ledger  Ledger
	bank    CollateralBank
	rates   RateOracle
	roller  RollerAuthority
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64
}

// NewEngine creates a position engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the currency ledger.
func (e *Engine) SetLedger(l Ledger) { e.ledger = l }

// SetBank configures the collateral bank.
func (e *Engine) SetBank(b CollateralBank) { e.bank = b }

// SetRateOracle configures the base rate source.
func (e *Engine) SetRateOracle(r RateOracle) { e.rates = r }

// SetRoller configures the roller authority.
func (e *Engine) SetRoller(r RollerAuthority) { e.roller = r }

// SetPauses configures the pause view consulted before mutations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Now returns the engine clock in unix seconds.
func (e *Engine) Now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil || e.bank == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) begin() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, nativecommon.ModulePosition)
}

func (e *Engine) isRoller(addr [20]byte) bool {
	return e.roller != nil && e.roller.IsRoller(addr)
}

// Get loads a position.
func (e *Engine) Get(addr [20]byte) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	p := new(Position)
	ok, err := e.state.KVGet(positionKey(addr), p)
	if err != nil {
		return nil, fmt.Errorf("position: load %x: %w", addr, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	p.ensureDefaults()
	return p, nil
}

// Exists reports whether a record is stored at addr.
func (e *Engine) Exists(addr [20]byte) bool {
	if e.ready() != nil {
		return false
	}
	ok, err := e.state.KVGet(positionKey(addr), nil)
	return err == nil && ok
}

// List returns the addresses of every stored position in creation order.
func (e *Engine) List() ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var raw [][]byte
	if err := e.state.KVGetList(indexKey, &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, r := range raw {
		var addr [20]byte
		copy(addr[:], r)
		out = append(out, addr)
	}
	return out, nil
}

func (e *Engine) store(p *Position) error {
	p.ensureDefaults()
	for name, v := range map[string]*big.Int{
		"principal":        p.Principal,
		"interest":         p.Interest,
		"totalMinted":      p.TotalMinted,
		"challengedAmount": p.ChallengedAmount,
	} {
		if v.Sign() < 0 {
			return fmt.Errorf("position: negative %s", name)
		}
	}
	return e.state.KVPut(positionKey(p.Address), p)
}

// CollateralBalance returns the collateral held by the position.
func (e *Engine) CollateralBalance(p *Position) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.bank.BalanceOf(p.Collateral, p.Address)
}

// CurrentInterest returns the interest owed at the engine's clock without
// writing it.
func (e *Engine) CurrentInterest(p *Position) *big.Int {
	return AccruedInterest(p, e.Now())
}

// CurrentDebt returns principal plus CurrentInterest.
func (e *Engine) CurrentDebt(p *Position) *big.Int {
	return new(big.Int).Add(p.Principal, e.CurrentInterest(p))
}

// accrue brings Interest up to now. Calling it twice at the same timestamp
// changes nothing.
func accrue(p *Position, now uint64) {
	p.Interest = AccruedInterest(p, now)
	if now > p.LastAccrual {
		p.LastAccrual = now
	}
}

func (e *Engine) loadOriginal(p *Position) (*Position, error) {
	if p.IsOriginal() {
		return p, nil
	}
	return e.Get(p.Original)
}

// AvailableForMinting returns how much principal p may still add without
// breaking the family limit.
func (e *Engine) AvailableForMinting(p *Position) (*big.Int, error) {
	if p.IsOriginal() {
		return nativecommon.SubFloor(p.Limit, p.TotalMinted), nil
	}
	original, err := e.Get(p.Original)
	if err != nil {
		return nil, err
	}
	return e.AvailableForClones(original)
}

// AvailableForClones returns the capacity clones may draw from the original.
// The original owner's unused collateral capacity stays reserved for them.
func (e *Engine) AvailableForClones(original *Position) (*big.Int, error) {
	balance, err := e.CollateralBalance(original)
	if err != nil {
		return nil, err
	}
	potential := nativecommon.MulDiv(balance, original.Price, nativecommon.Scale)
	unused := nativecommon.SubFloor(potential, e.CurrentDebt(original))
	taken := new(big.Int).Add(original.TotalMinted, unused)
	return nativecommon.SubFloor(original.Limit, taken), nil
}

func (e *Engine) notifyMint(p *Position, amount *big.Int) error {
	original, err := e.loadOriginal(p)
	if err != nil {
		return err
	}
	original.TotalMinted = new(big.Int).Add(original.TotalMinted, amount)
	if original != p {
		return e.store(original)
	}
	return nil
}

func (e *Engine) notifyRepaid(p *Position, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	original, err := e.loadOriginal(p)
	if err != nil {
		return err
	}
	if amount.Cmp(original.TotalMinted) > 0 {
		return fmt.Errorf("%w: %s exceeds family total %s", ErrRepaidTooMuch, amount, original.TotalMinted)
	}
	original.TotalMinted = new(big.Int).Sub(original.TotalMinted, amount)
	if original != p {
		return e.store(original)
	}
	return nil
}

// checkCollateral enforces collateral*price >= debt*SCALE where a balance
// below the minimum counts as zero.
func checkCollateral(p *Position, balance, price *big.Int) error {
	relevant := balance
	if balance.Cmp(p.MinimumCollateral) < 0 {
		relevant = new(big.Int)
	}
	have := new(big.Int).Mul(relevant, price)
	need := new(big.Int).Mul(p.Debt(), nativecommon.Scale)
	if have.Cmp(need) < 0 {
		return fmt.Errorf("%w: collateral value %s below debt %s", ErrInsufficientCollateral, have, need)
	}
	return nil
}

func restrictMinting(p *Position, now, period uint64) {
	if horizon := now + period; horizon > p.Cooldown {
		p.Cooldown = horizon
	}
}

// sendCollateral moves collateral out of the position and closes it when the
// remaining balance drops below the minimum. It returns the new balance.
func (e *Engine) sendCollateral(p *Position, target [20]byte, amount *big.Int) (*big.Int, error) {
	if amount.Sign() > 0 {
		if err := e.bank.Transfer(p.Collateral, p.Address, target, amount); err != nil {
			return nil, err
		}
	}
	balance, err := e.CollateralBalance(p)
	if err != nil {
		return nil, err
	}
	if amount.Sign() > 0 && balance.Cmp(p.MinimumCollateral) < 0 {
		p.Closed = true
	}
	return balance, nil
}

type snapshot struct {
	principal  *big.Int
	interest   *big.Int
	collateral *big.Int
}

func (e *Engine) snapshotOf(p *Position) snapshot {
	balance, err := e.CollateralBalance(p)
	if err != nil {
		balance = new(big.Int)
	}
	return snapshot{principal: copyInt(p.Principal), interest: copyInt(p.Interest), collateral: balance}
}

func (e *Engine) emitUpdate(p *Position, before snapshot) {
	balance, err := e.CollateralBalance(p)
	if err != nil {
		balance = new(big.Int)
	}
	e.emitter.Emit(events.MintingUpdate{
		Position:       p.Address,
		Collateral:     balance,
		Price:          copyInt(p.Price),
		Principal:      copyInt(p.Principal),
		Interest:       copyInt(p.Interest),
		PrevPrincipal:  before.principal,
		PrevInterest:   before.interest,
		PrevCollateral: before.collateral,
	})
}

// mutate loads the position, runs fn and stores the result atomically.
func (e *Engine) mutate(addr [20]byte, fn func(p *Position, now uint64) error) error {
	if err := e.begin(); err != nil {
		return err
	}
	return e.state.Atomic(func() error {
		p, err := e.Get(addr)
		if err != nil {
			return err
		}
		before := e.snapshotOf(p)
		if err := fn(p, e.Now()); err != nil {
			return err
		}
		if err := e.store(p); err != nil {
			return err
		}
		e.emitUpdate(p, before)
		return nil
	})
}
