package bank

import (
	"errors"
	"math/big"
	"testing"

	"stablecore/core/state"
	"stablecore/storage"
)

func newTestBank(t *testing.T) *Bank {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	for _, sym := range []string{"WETH", "ETH"} {
		if err := mgr.RegisterToken(sym, sym+" token", 18); err != nil {
			t.Fatalf("register %s: %v", sym, err)
		}
	}
	b := New()
	b.SetState(mgr)
	b.SetWrapping("eth", "weth")
	return b
}

func TestTransferMovesBalance(t *testing.T) {
	b := newTestBank(t)
	var alice, bob [20]byte
	alice[0], bob[0] = 1, 2
	if err := b.Credit("WETH", alice, big.NewInt(10)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := b.Transfer("WETH", alice, bob, big.NewInt(4)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	got, _ := b.BalanceOf("WETH", bob)
	if got.Int64() != 4 {
		t.Fatalf("bob balance %s", got)
	}
	if err := b.Transfer("WETH", bob, alice, big.NewInt(5)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := b.Transfer("DOGE", bob, alice, big.NewInt(1)); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}

func TestWrapUnwrap(t *testing.T) {
	b := newTestBank(t)
	var alice [20]byte
	alice[0] = 1
	if err := b.Credit("ETH", alice, big.NewInt(7)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := b.Wrap(alice, big.NewInt(5)); err != nil {
		t.Fatalf("wrap: %v", err)
	}
	wrapped, _ := b.BalanceOf("WETH", alice)
	native, _ := b.BalanceOf("ETH", alice)
	if wrapped.Int64() != 5 || native.Int64() != 2 {
		t.Fatalf("unexpected balances wrapped=%s native=%s", wrapped, native)
	}
	if err := b.Unwrap(alice, big.NewInt(5)); err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	native, _ = b.BalanceOf("ETH", alice)
	if native.Int64() != 7 {
		t.Fatalf("native after unwrap %s", native)
	}
	if err := New().Wrap(alice, big.NewInt(1)); !errors.Is(err, ErrWrapNotConfigured) {
		t.Fatalf("expected ErrWrapNotConfigured, got %v", err)
	}
}
