package state

import (
	"errors"
	"math/big"
	"testing"

	"stablecore/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.RegisterToken("zchf", "Stable Franc", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	return mgr, db
}

func TestBalanceRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := []byte{0x01, 0x02}

	if err := mgr.SetBalance(addr, "ZCHF", big.NewInt(42)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	bal, err := mgr.Balance(addr, "zchf")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("unexpected balance: %s", bal)
	}
	if err := mgr.SetBalance(addr, "ZCHF", big.NewInt(-1)); err == nil {
		t.Fatalf("expected negative balance to be rejected")
	}
	overflow := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := mgr.SetBalance(addr, "ZCHF", overflow); err == nil {
		t.Fatalf("expected overflow to be rejected")
	}
	if err := mgr.SetBalance(addr, "XYZ", big.NewInt(1)); err == nil {
		t.Fatalf("expected unknown token to be rejected")
	}
}

func TestAtomicRevertsOnError(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := []byte{0xaa}
	if err := mgr.SetBalance(addr, "ZCHF", big.NewInt(10)); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	boom := errors.New("boom")
	err := mgr.Atomic(func() error {
		if err := mgr.SetBalance(addr, "ZCHF", big.NewInt(99)); err != nil {
			return err
		}
		if err := mgr.KVPut([]byte("k"), uint64(7)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	bal, _ := mgr.Balance(addr, "ZCHF")
	if bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("balance not reverted: %s", bal)
	}
	var v uint64
	ok, err := mgr.KVGet([]byte("k"), &v)
	if err != nil || ok {
		t.Fatalf("kv write not reverted: ok=%v err=%v", ok, err)
	}
}

func TestNestedAtomicUnwindsInnerOnly(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := []byte{0xbb}

	err := mgr.Atomic(func() error {
		if err := mgr.SetBalance(addr, "ZCHF", big.NewInt(5)); err != nil {
			return err
		}
		_ = mgr.Atomic(func() error {
			if err := mgr.SetBalance(addr, "ZCHF", big.NewInt(500)); err != nil {
				return err
			}
			return errors.New("inner")
		})
		return nil
	})
	if err != nil {
		t.Fatalf("outer atomic: %v", err)
	}
	bal, _ := mgr.Balance(addr, "ZCHF")
	if bal.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("unexpected balance after nested revert: %s", bal)
	}
}

func TestCommitPersistsAndSurvivesReload(t *testing.T) {
	mgr, db := newTestManager(t)
	addr := []byte{0xcc}
	if err := mgr.SetBalance(addr, "ZCHF", big.NewInt(3)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := mgr.SetRole("governance", addr); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(db.Keys()) == 0 {
		t.Fatalf("expected committed keys in database")
	}

	reloaded := NewManager(db)
	bal, err := reloaded.Balance(addr, "ZCHF")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(3)) != 0 {
		t.Fatalf("unexpected reloaded balance: %s", bal)
	}
	if !reloaded.HasRole("governance", addr) {
		t.Fatalf("expected role to survive reload")
	}
}

func TestDiscardDropsPendingWrites(t *testing.T) {
	mgr, db := newTestManager(t)
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	before := len(db.Keys())
	if err := mgr.KVPut([]byte("pending"), []byte("x")); err != nil {
		t.Fatalf("kv put: %v", err)
	}
	mgr.Discard()
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(db.Keys()) != before {
		t.Fatalf("discarded write reached the database")
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr, _ := newTestManager(t)
	key := []byte("index")
	for _, v := range [][]byte{{1}, {2}, {1}} {
		if err := mgr.KVAppend(key, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := mgr.KVGetList(key, &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	var empty [][]byte
	if err := mgr.KVGetList([]byte("missing"), &empty); err != nil || empty == nil {
		t.Fatalf("expected empty initialised slice, got %v err=%v", empty, err)
	}
}

func TestTokenSupplyAdjust(t *testing.T) {
	mgr, _ := newTestManager(t)
	total, err := mgr.AdjustTokenSupply("zchf", big.NewInt(100))
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected supply: %s", total)
	}
	if _, err := mgr.AdjustTokenSupply("zchf", big.NewInt(-101)); err == nil {
		t.Fatalf("expected negative supply to be rejected")
	}
}
