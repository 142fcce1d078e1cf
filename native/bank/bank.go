package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	errNilState = errors.New("bank: state not configured")

	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must not be negative")
	ErrUnknownToken        = errors.New("bank: token not registered")
	ErrWrapNotConfigured   = errors.New("bank: native wrapping not configured")
)

type bankState interface {
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
	AdjustTokenSupply(symbol string, delta *big.Int) (*big.Int, error)
	TokenExists(symbol string) bool
}

// Bank moves collateral tokens between accounts and positions. It can wrap
// the native coin one-to-one into a token usable as collateral.
type Bank struct {
	state   bankState
	native  string
	wrapped string
}

// New returns a bank without native wrapping.
func New() *Bank { return &Bank{} }

// SetState configures the state backend used by the bank.
func (b *Bank) SetState(state bankState) { b.state = state }

// SetWrapping configures the native coin and its wrapped token.
func (b *Bank) SetWrapping(native, wrapped string) {
	b.native = normalize(native)
	b.wrapped = normalize(wrapped)
}

// WrappedSymbol returns the wrapped native token or "".
func (b *Bank) WrappedSymbol() string { return b.wrapped }

// NativeSymbol returns the native coin or "".
func (b *Bank) NativeSymbol() string { return b.native }

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (b *Bank) ready(symbol string) error {
	if b == nil || b.state == nil {
		return errNilState
	}
	if !b.state.TokenExists(symbol) {
		return fmt.Errorf("%w: %s", ErrUnknownToken, normalize(symbol))
	}
	return nil
}

// Exists reports whether symbol is a registered token.
func (b *Bank) Exists(symbol string) bool {
	return b != nil && b.state != nil && b.state.TokenExists(symbol)
}

// BalanceOf returns the balance of addr in symbol.
func (b *Bank) BalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	if err := b.ready(symbol); err != nil {
		return nil, err
	}
	return b.state.Balance(addr[:], symbol)
}

// Transfer moves amount of symbol from one account to another.
func (b *Bank) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if err := b.ready(symbol); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromBal, err := b.state.Balance(from[:], symbol)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, normalize(symbol), fromBal, amount)
	}
	if from == to {
		return nil
	}
	if err := b.state.SetBalance(from[:], symbol, fromBal.Sub(fromBal, amount)); err != nil {
		return err
	}
	toBal, err := b.state.Balance(to[:], symbol)
	if err != nil {
		return err
	}
	return b.state.SetBalance(to[:], symbol, toBal.Add(toBal, amount))
}

// Credit creates amount of symbol in addr. Genesis allocations use it.
func (b *Bank) Credit(symbol string, addr [20]byte, amount *big.Int) error {
	if err := b.ready(symbol); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	bal, err := b.state.Balance(addr[:], symbol)
	if err != nil {
		return err
	}
	if err := b.state.SetBalance(addr[:], symbol, bal.Add(bal, amount)); err != nil {
		return err
	}
	_, err = b.state.AdjustTokenSupply(symbol, amount)
	return err
}

func (b *Bank) debit(symbol string, addr [20]byte, amount *big.Int) error {
	bal, err := b.state.Balance(addr[:], symbol)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, normalize(symbol), bal, amount)
	}
	if err := b.state.SetBalance(addr[:], symbol, bal.Sub(bal, amount)); err != nil {
		return err
	}
	_, err = b.state.AdjustTokenSupply(symbol, new(big.Int).Neg(amount))
	return err
}

// Wrap converts amount of the native coin held by addr into the wrapped token.
func (b *Bank) Wrap(addr [20]byte, amount *big.Int) error {
	if b == nil || b.native == "" || b.wrapped == "" {
		return ErrWrapNotConfigured
	}
	if err := b.ready(b.native); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := b.debit(b.native, addr, amount); err != nil {
		return err
	}
	return b.Credit(b.wrapped, addr, amount)
}

// Unwrap converts amount of the wrapped token held by addr back into the
// native coin.
func (b *Bank) Unwrap(addr [20]byte, amount *big.Int) error {
	if b == nil || b.native == "" || b.wrapped == "" {
		return ErrWrapNotConfigured
	}
	if err := b.ready(b.wrapped); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := b.debit(b.wrapped, addr, amount); err != nil {
		return err
	}
	return b.Credit(b.native, addr, amount)
}
