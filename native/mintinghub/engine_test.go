package mintinghub

import (
	"errors"
	"math/big"
	"testing"

	"stablecore/core/events"
	"stablecore/core/state"
	"stablecore/crypto"
	"stablecore/native/bank"
	nativecommon "stablecore/native/common"
	"stablecore/native/position"
	"stablecore/native/stablecoin"
	"stablecore/storage"
)

const (
	day             = 24 * 60 * 60
	testCollateral  = "WETH"
	testInitPeriod  = 3 * day
	testDuration    = 180 * day
	testChallengeP  = 2 * day
	testReservePPM  = 200_000
	testStartSecond = 1_700_000_000
)

func makeAddress(b byte) [20]byte {
	var addr [20]byte
	addr[19] = b
	return addr
}

var (
	hubAddr        = makeAddress(0xaa)
	reserveAddr    = makeAddress(0xee)
	ownerAddr      = makeAddress(0x01)
	challengerAddr = makeAddress(0x02)
	bidderAddr     = makeAddress(0x03)
)

func scaled(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), nativecommon.Scale)
}

type harness struct {
	t         *testing.T
	now       int64
	state     *state.Manager
	ledger    *stablecoin.Ledger
	bank      *bank.Bank
	positions *position.Engine
	hub       *Engine
	events    *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, now: testStartSecond}
	h.state = state.NewManager(storage.NewMemDB())
	for _, sym := range []string{"ZCHF", testCollateral} {
		if err := h.state.RegisterToken(sym, sym, 18); err != nil {
			t.Fatalf("register %s: %v", sym, err)
		}
	}
	if err := h.state.SetRole(stablecoin.RoleMinter, hubAddr[:]); err != nil {
		t.Fatalf("set role: %v", err)
	}
	h.ledger = stablecoin.NewLedger("ZCHF", reserveAddr)
	h.ledger.SetState(h.state)
	h.bank = bank.New()
	h.bank.SetState(h.state)
	h.events = &events.Recorder{}

	h.positions = position.NewEngine()
	h.positions.SetState(h.state)
	h.positions.SetLedger(h.ledger)
	h.positions.SetBank(h.bank)
	h.positions.SetEmitter(h.events)
	h.positions.SetNowFunc(func() int64 { return h.now })

	h.hub = NewEngine(hubAddr)
	h.hub.SetState(h.state)
	h.hub.SetLedger(h.ledger)
	h.hub.SetBank(h.bank)
	h.hub.SetPositions(h.positions)
	h.hub.SetEmitter(h.events)
	if err := h.hub.SetParams(Params{
		OpeningFee:          big.NewInt(10),
		MinCollateralValue:  big.NewInt(50),
		DustValue:           big.NewInt(100),
		MinInitPeriod:       testInitPeriod,
		MinChallengePeriod:  day,
		ChallengerRewardPPM: 20_000,
	}); err != nil {
		t.Fatalf("set params: %v", err)
	}
	return h
}

func (h *harness) advance(seconds int64) { h.now += seconds }

func (h *harness) fundCollateral(addr [20]byte, amount int64) {
	h.t.Helper()
	if err := h.bank.Credit(testCollateral, addr, big.NewInt(amount)); err != nil {
		h.t.Fatalf("credit collateral: %v", err)
	}
}

func (h *harness) fundCurrency(addr [20]byte, amount int64) {
	h.t.Helper()
	if err := h.ledger.Mint(hubAddr, addr, big.NewInt(amount)); err != nil {
		h.t.Fatalf("fund currency: %v", err)
	}
}

func (h *harness) currency(addr [20]byte) int64 {
	h.t.Helper()
	bal, err := h.ledger.BalanceOf(addr)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (h *harness) collateral(addr [20]byte) int64 {
	h.t.Helper()
	bal, err := h.bank.BalanceOf(testCollateral, addr)
	if err != nil {
		h.t.Fatalf("collateral balance: %v", err)
	}
	return bal.Int64()
}

func (h *harness) load(addr [20]byte) *position.Position {
	h.t.Helper()
	p, err := h.positions.Get(addr)
	if err != nil {
		h.t.Fatalf("get position: %v", err)
	}
	return p
}

func defaultOpen() OpenRequest {
	return OpenRequest{
		Collateral:        "weth",
		MinimumCollateral: big.NewInt(10),
		InitialCollateral: big.NewInt(100),
		Limit:             big.NewInt(10_000),
		InitPeriod:        testInitPeriod,
		Duration:          testDuration,
		ChallengePeriod:   testChallengeP,
		Price:             scaled(10),
		ReservePPM:        testReservePPM,
	}
}

// openAndMint opens a position with 100 collateral priced at 10 and mints
// the given principal to the owner once the init period has passed.
func (h *harness) openAndMint(principal int64) [20]byte {
	h.t.Helper()
	h.fundCollateral(ownerAddr, 100)
	h.fundCurrency(ownerAddr, 10)
	p, err := h.hub.OpenPosition(ownerAddr, defaultOpen())
	if err != nil {
		h.t.Fatalf("open: %v", err)
	}
	h.advance(testInitPeriod)
	if principal > 0 {
		if err := h.positions.Mint(ownerAddr, p.Address, ownerAddr, big.NewInt(principal)); err != nil {
			h.t.Fatalf("mint: %v", err)
		}
	}
	return p.Address
}

func TestOpenPositionChargesFeeAndDerivesAddress(t *testing.T) {
	h := newHarness(t)
	h.fundCollateral(ownerAddr, 100)
	h.fundCurrency(ownerAddr, 10)

	p, err := h.hub.OpenPosition(ownerAddr, defaultOpen())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if p.Address != crypto.DerivePositionAddress(hubAddr, 0) {
		t.Fatalf("unexpected position address %x", p.Address)
	}
	if p.Collateral != testCollateral || p.Owner != ownerAddr || p.Hub != hubAddr {
		t.Fatalf("unexpected position terms: %+v", p)
	}
	if got := h.currency(ownerAddr); got != 0 {
		t.Fatalf("opening fee not charged, owner has %d", got)
	}
	if got := h.currency(reserveAddr); got != 10 {
		t.Fatalf("reserve received %d, want 10", got)
	}
	if got := h.collateral(p.Address); got != 100 {
		t.Fatalf("position holds %d collateral, want 100", got)
	}
	if !h.ledger.IsMinter(p.Address) {
		t.Fatalf("position must be registered as minter")
	}
}

func TestOpenPositionValidation(t *testing.T) {
	h := newHarness(t)
	h.fundCollateral(ownerAddr, 100)
	h.fundCurrency(ownerAddr, 10)

	req := defaultOpen()
	req.InitPeriod = day
	if _, err := h.hub.OpenPosition(ownerAddr, req); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for short init period, got %v", err)
	}
	req = defaultOpen()
	req.ChallengePeriod = 60
	if _, err := h.hub.OpenPosition(ownerAddr, req); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams for short challenge period, got %v", err)
	}
	req = defaultOpen()
	req.Collateral = "DOGE"
	if _, err := h.hub.OpenPosition(ownerAddr, req); !errors.Is(err, ErrUnknownCollateral) {
		t.Fatalf("expected ErrUnknownCollateral, got %v", err)
	}
	req = defaultOpen()
	req.MinimumCollateral = big.NewInt(1)
	if _, err := h.hub.OpenPosition(ownerAddr, req); !errors.Is(err, position.ErrInsufficientCollateral) {
		t.Fatalf("expected minimum collateral value check, got %v", err)
	}
	req = defaultOpen()
	req.InitialCollateral = big.NewInt(5)
	if _, err := h.hub.OpenPosition(ownerAddr, req); !errors.Is(err, position.ErrInsufficientCollateral) {
		t.Fatalf("expected initial collateral check, got %v", err)
	}
}

func TestFailedOpenLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	h.fundCollateral(ownerAddr, 100)

	if _, err := h.hub.OpenPosition(ownerAddr, defaultOpen()); !errors.Is(err, stablecoin.ErrInsufficientBalance) {
		t.Fatalf("expected missing opening fee to fail, got %v", err)
	}
	list, err := h.positions.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("failed open left %d positions", len(list))
	}
	h.fundCurrency(ownerAddr, 10)
	p, err := h.hub.OpenPosition(ownerAddr, defaultOpen())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if p.Address != crypto.DerivePositionAddress(hubAddr, 0) {
		t.Fatalf("failed open consumed a nonce")
	}
}

func TestCloneMintsToCaller(t *testing.T) {
	h := newHarness(t)
	original := h.openAndMint(0)
	cloner := makeAddress(0x09)
	h.fundCollateral(cloner, 50)

	parent := h.load(original)
	clone, err := h.hub.Clone(cloner, CloneRequest{
		Parent:            original,
		InitialCollateral: big.NewInt(50),
		InitialMint:       big.NewInt(200),
		Expiration:        parent.Expiration,
	})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.Address != crypto.DerivePositionAddress(hubAddr, 1) {
		t.Fatalf("unexpected clone address %x", clone.Address)
	}
	if clone.Owner != cloner || clone.Original != original {
		t.Fatalf("unexpected clone ownership: %+v", clone)
	}
	if got := h.currency(cloner); got != 160 {
		t.Fatalf("cloner received %d, want 160", got)
	}
	if got := h.load(original).TotalMinted.Int64(); got != 200 {
		t.Fatalf("family counter %d, want 200", got)
	}

	if _, err := h.hub.Clone(cloner, CloneRequest{
		Parent:            original,
		InitialCollateral: big.NewInt(0),
		InitialMint:       big.NewInt(0),
		Expiration:        parent.Expiration + 1,
	}); !errors.Is(err, position.ErrInvalidExpiration) {
		t.Fatalf("expected ErrInvalidExpiration, got %v", err)
	}
}

func TestCloneRejectsProposedParent(t *testing.T) {
	h := newHarness(t)
	h.fundCollateral(ownerAddr, 100)
	h.fundCurrency(ownerAddr, 10)
	p, err := h.hub.OpenPosition(ownerAddr, defaultOpen())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = h.hub.Clone(ownerAddr, CloneRequest{
		Parent:            p.Address,
		InitialCollateral: big.NewInt(0),
		InitialMint:       big.NewInt(0),
		Expiration:        p.Expiration,
	})
	if !errors.Is(err, position.ErrHot) {
		t.Fatalf("expected ErrHot for a proposed parent, got %v", err)
	}
}
