package stablecoin

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"stablecore/core/events"
	nativecommon "stablecore/native/common"
)

// RoleMinter marks addresses allowed to mint and burn against the reserve.
// Positions do not hold the role; they are registered by a minter instead.
const RoleMinter = "stablecoin/minter"

var (
	errNilState = errors.New("stablecoin: state not configured")

	ErrNotMinter           = errors.New("stablecoin: caller is not a minter")
	ErrInsufficientBalance = errors.New("stablecoin: insufficient balance")
	ErrInvalidAmount       = errors.New("stablecoin: amount must not be negative")
	ErrInvalidReservePPM   = errors.New("stablecoin: reserve ppm out of range")
	ErrAlreadyRegistered   = errors.New("stablecoin: position already registered")
)

var (
	minterReserveKey   = []byte("stablecoin/minter-reserve-e6")
	positionParentBase = "stablecoin/position/"
)

func positionParentKey(pos [20]byte) []byte {
	return append([]byte(positionParentBase), pos[:]...)
}

type ledgerState interface {
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error)
	TokenSupply(symbol string) (*big.Int, error)
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	HasRole(role string, addr []byte) bool
}

// Ledger is the stablecoin currency: balances, supply and the shared reserve
// that backs every position's minted amount.
type Ledger struct {
	state   ledgerState
	symbol  string
	reserve [20]byte
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewLedger creates a ledger for the given currency symbol whose reserve
// balance is held by the reserve address.
func NewLedger(symbol string, reserve [20]byte) *Ledger {
	return &Ledger{
		symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		reserve: reserve,
		emitter: events.NoopEmitter{},
	}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetPauses configures the pause view consulted before mutations.
func (l *Ledger) SetPauses(p nativecommon.PauseView) { l.pauses = p }

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Symbol returns the currency symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// ReserveAddress returns the account holding the reserve.
func (l *Ledger) ReserveAddress() [20]byte { return l.reserve }

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return nil
}

func (l *Ledger) guard(minter [20]byte) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(l.pauses, nativecommon.ModuleStablecoin); err != nil {
		return err
	}
	if !l.IsMinter(minter) {
		return ErrNotMinter
	}
	return nil
}

func checkPPM(ppm uint64) error {
	if ppm > nativecommon.PPMDenominator {
		return ErrInvalidReservePPM
	}
	return nil
}

// IsMinter reports whether addr may call the minter operations: either a
// governance-approved minter or a position registered by one.
func (l *Ledger) IsMinter(addr [20]byte) bool {
	if l.ready() != nil {
		return false
	}
	if l.state.HasRole(RoleMinter, addr[:]) {
		return true
	}
	_, ok, err := l.PositionParent(addr)
	return err == nil && ok
}

// RegisterPosition records pos as a position created by the calling minter.
func (l *Ledger) RegisterPosition(minter, pos [20]byte) error {
	if err := l.ready(); err != nil {
		return err
	}
	if !l.state.HasRole(RoleMinter, minter[:]) {
		return ErrNotMinter
	}
	if _, ok, err := l.PositionParent(pos); err != nil {
		return err
	} else if ok {
		return ErrAlreadyRegistered
	}
	return l.state.KVPut(positionParentKey(pos), minter[:])
}

// PositionParent returns the minter that registered pos.
func (l *Ledger) PositionParent(pos [20]byte) ([20]byte, bool, error) {
	var parent [20]byte
	if err := l.ready(); err != nil {
		return parent, false, err
	}
	var raw []byte
	ok, err := l.state.KVGet(positionParentKey(pos), &raw)
	if err != nil || !ok {
		return parent, false, err
	}
	copy(parent[:], raw)
	return parent, true, nil
}

// BalanceOf returns the currency balance of addr.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.Balance(addr[:], l.symbol)
}

// TotalSupply returns the circulating supply including the reserve.
func (l *Ledger) TotalSupply() (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.state.TokenSupply(l.symbol)
}

// Transfer moves currency between accounts.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(l.pauses, nativecommon.ModuleStablecoin); err != nil {
		return err
	}
	return l.move(from, to, amount)
}

func (l *Ledger) move(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if from == to {
		bal, err := l.state.Balance(from[:], l.symbol)
		if err != nil {
			return err
		}
		if bal.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
		}
		return nil
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	return l.credit(to, amount)
}

func (l *Ledger) debit(addr [20]byte, amount *big.Int) error {
	bal, err := l.state.Balance(addr[:], l.symbol)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, amount)
	}
	return l.state.SetBalance(addr[:], l.symbol, bal.Sub(bal, amount))
}

func (l *Ledger) credit(addr [20]byte, amount *big.Int) error {
	bal, err := l.state.Balance(addr[:], l.symbol)
	if err != nil {
		return err
	}
	return l.state.SetBalance(addr[:], l.symbol, bal.Add(bal, amount))
}

func (l *Ledger) mint(to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := l.credit(to, amount); err != nil {
		return err
	}
	_, err := l.state.AdjustTokenSupply(l.symbol, amount)
	return err
}

func (l *Ledger) burn(from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	_, err := l.state.AdjustTokenSupply(l.symbol, new(big.Int).Neg(amount))
	return err
}

// Mint creates currency without a reserve contribution. Used for flash
// loans that are burned again within the same operation.
func (l *Ledger) Mint(minter, to [20]byte, amount *big.Int) error {
	if err := l.guard(minter); err != nil {
		return err
	}
	return l.mint(to, amount)
}

// BurnFrom destroys currency held by from.
func (l *Ledger) BurnFrom(minter, from [20]byte, amount *big.Int) error {
	if err := l.guard(minter); err != nil {
		return err
	}
	return l.burn(from, amount)
}
