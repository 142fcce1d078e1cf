package stablecoin

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"stablecore/core/events"
	"stablecore/core/state"
	"stablecore/storage"
)

func makeAddress(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

var (
	reserveAddr = makeAddress(0xee)
	minterAddr  = makeAddress(0x01)
	payerAddr   = makeAddress(0x02)
)

func newTestLedger(t *testing.T) (*Ledger, *state.Manager, *events.Recorder) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	if err := mgr.RegisterToken("ZCHF", "Stable Franc", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	if err := mgr.SetRole(RoleMinter, minterAddr[:]); err != nil {
		t.Fatalf("set role: %v", err)
	}
	ledger := NewLedger("zchf", reserveAddr)
	ledger.SetState(mgr)
	rec := &events.Recorder{}
	ledger.SetEmitter(rec)
	return ledger, mgr, rec
}

func mustBalance(t *testing.T, l *Ledger, addr [20]byte) int64 {
	t.Helper()
	bal, err := l.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestUsableMintRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ppms := []uint64{0, 1, 100_000, 200_000, 333_333, 999_999}
	for _, ppm := range ppms {
		for i := 0; i < 500; i++ {
			usable := new(big.Int).Rand(rng, new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil))
			total := MintAmount(usable, ppm)
			if got := UsableMint(total, ppm); got.Cmp(usable) != 0 {
				t.Fatalf("ppm %d: UsableMint(MintAmount(%s)) = %s", ppm, usable, got)
			}
		}
	}
	if MintAmount(big.NewInt(0), 200_000).Sign() != 0 {
		t.Fatalf("zero usable must need zero mint")
	}
}

func TestMintWithReserveSplitsAmount(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	usable, err := ledger.MintWithReserve(minterAddr, payerAddr, big.NewInt(1000), 200_000)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if usable.Int64() != 800 {
		t.Fatalf("unexpected usable amount %s", usable)
	}
	if got := mustBalance(t, ledger, payerAddr); got != 800 {
		t.Fatalf("payer balance %d", got)
	}
	if got := mustBalance(t, ledger, reserveAddr); got != 200 {
		t.Fatalf("reserve balance %d", got)
	}
	owed, _ := ledger.MinterReserve()
	if owed.Int64() != 200 {
		t.Fatalf("minter reserve %s", owed)
	}
	supply, _ := ledger.TotalSupply()
	if supply.Int64() != 1000 {
		t.Fatalf("supply %s", supply)
	}
}

func TestBurnFromWithReserveUsesAssignedShare(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	if _, err := ledger.MintWithReserve(minterAddr, payerAddr, big.NewInt(1000), 200_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	paid, err := ledger.BurnFromWithReserve(minterAddr, payerAddr, big.NewInt(1000), 200_000)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if paid.Int64() != 800 {
		t.Fatalf("payer paid %s", paid)
	}
	if mustBalance(t, ledger, payerAddr) != 0 || mustBalance(t, ledger, reserveAddr) != 0 {
		t.Fatalf("expected balances to be drained")
	}
	owed, _ := ledger.MinterReserve()
	supply, _ := ledger.TotalSupply()
	if owed.Sign() != 0 || supply.Sign() != 0 {
		t.Fatalf("expected zero reserve owed and supply, got %s and %s", owed, supply)
	}
}

func TestUnderfundedReserveScalesAssignedShare(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	if _, err := ledger.MintWithReserve(minterAddr, payerAddr, big.NewInt(1000), 200_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.CoverLoss(minterAddr, makeAddress(0x09), big.NewInt(100)); err != nil {
		t.Fatalf("cover loss: %v", err)
	}
	assigned, err := ledger.CalculateAssignedReserve(big.NewInt(1000), 200_000)
	if err != nil {
		t.Fatalf("assigned: %v", err)
	}
	if assigned.Int64() != 100 {
		t.Fatalf("expected halved reserve share, got %s", assigned)
	}
	freed, err := ledger.CalculateFreedAmount(big.NewInt(900), 200_000)
	if err != nil {
		t.Fatalf("freed: %v", err)
	}
	if freed.Int64() != 1000 {
		t.Fatalf("expected 1000 freed, got %s", freed)
	}
	if err := ledger.Mint(minterAddr, payerAddr, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	paid, err := ledger.BurnFromWithReserve(minterAddr, payerAddr, big.NewInt(1000), 200_000)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if paid.Int64() != 900 {
		t.Fatalf("payer paid %s", paid)
	}
}

func TestCoverLossMintsShortfall(t *testing.T) {
	ledger, _, rec := newTestLedger(t)
	if _, err := ledger.MintWithReserve(minterAddr, payerAddr, big.NewInt(1000), 200_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	source := makeAddress(0x33)
	if err := ledger.CoverLoss(minterAddr, source, big.NewInt(300)); err != nil {
		t.Fatalf("cover loss: %v", err)
	}
	if got := mustBalance(t, ledger, source); got != 300 {
		t.Fatalf("source balance %d", got)
	}
	if got := mustBalance(t, ledger, reserveAddr); got != 0 {
		t.Fatalf("reserve balance %d", got)
	}
	evts := rec.Events()
	loss, ok := evts[len(evts)-1].(events.StablecoinLoss)
	if !ok {
		t.Fatalf("expected loss event, got %T", evts[len(evts)-1])
	}
	if loss.Minted.Int64() != 100 {
		t.Fatalf("expected 100 minted, got %s", loss.Minted)
	}
}

func TestBurnWithReserveFreesGrossAmount(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	if _, err := ledger.MintWithReserve(minterAddr, minterAddr, big.NewInt(1000), 200_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	freed, err := ledger.BurnWithReserve(minterAddr, big.NewInt(800), 200_000)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if freed.Int64() != 1000 {
		t.Fatalf("freed %s", freed)
	}
	if mustBalance(t, ledger, minterAddr) != 0 || mustBalance(t, ledger, reserveAddr) != 0 {
		t.Fatalf("expected drained balances")
	}
}

func TestProfitsBecomeEquity(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	if err := ledger.Mint(minterAddr, payerAddr, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.CollectProfits(minterAddr, payerAddr, big.NewInt(50)); err != nil {
		t.Fatalf("collect: %v", err)
	}
	equity, err := ledger.Equity()
	if err != nil {
		t.Fatalf("equity: %v", err)
	}
	if equity.Int64() != 50 {
		t.Fatalf("equity %s", equity)
	}
}

func TestMinterOnlyOperations(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	stranger := makeAddress(0x77)
	if err := ledger.Mint(stranger, stranger, big.NewInt(1)); !errors.Is(err, ErrNotMinter) {
		t.Fatalf("expected ErrNotMinter, got %v", err)
	}
	pos := makeAddress(0x55)
	if err := ledger.RegisterPosition(stranger, pos); !errors.Is(err, ErrNotMinter) {
		t.Fatalf("expected ErrNotMinter on register, got %v", err)
	}
	if err := ledger.RegisterPosition(minterAddr, pos); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !ledger.IsMinter(pos) {
		t.Fatalf("registered position must be able to mint")
	}
	parent, ok, err := ledger.PositionParent(pos)
	if err != nil || !ok || parent != minterAddr {
		t.Fatalf("unexpected parent %x ok=%v err=%v", parent, ok, err)
	}
	if err := ledger.RegisterPosition(minterAddr, pos); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestTransferRequiresBalance(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	if err := ledger.Transfer(payerAddr, minterAddr, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
