package mintinghub

import (
	"errors"
	"math/big"
	"testing"

	"stablecore/native/position"
)

func TestExpiredPriceRamp(t *testing.T) {
	p := scaled(10)
	const period = 3 * day
	const expiration = uint64(testStartSecond)

	if got := ExpiredPrice(p, expiration, period, expiration-1); got.Cmp(scaled(100)) != 0 {
		t.Fatalf("before expiration got %s, want 10p", got)
	}
	if got := ExpiredPrice(p, expiration, period, expiration); got.Cmp(scaled(100)) != 0 {
		t.Fatalf("at expiration got %s, want 10p", got)
	}
	mid := ExpiredPrice(p, expiration, period, expiration+period/2)
	if mid.Cmp(p) <= 0 || mid.Cmp(scaled(100)) >= 0 {
		t.Fatalf("half a period in got %s, want strictly between p and 10p", mid)
	}
	if got := ExpiredPrice(p, expiration, period, expiration+period); got.Cmp(p) > 0 {
		t.Fatalf("one period in got %s, want at most p", got)
	}
	if got := ExpiredPrice(p, expiration, period, expiration+3*period/2); got.Cmp(scaled(5)) != 0 {
		t.Fatalf("1.5 periods in got %s, want p/2", got)
	}
	if got := ExpiredPrice(p, expiration, period, expiration+2*period); got.Sign() != 0 {
		t.Fatalf("two periods in got %s, want 0", got)
	}
}

func TestBuyExpiredCollateral(t *testing.T) {
	h := newHarness(t)
	pos := h.openAndMint(500)
	buyer := makeAddress(0x44)
	h.fundCurrency(buyer, 1_000)

	if _, err := h.hub.BuyExpiredCollateral(buyer, pos, big.NewInt(10)); !errors.Is(err, position.ErrAlive) {
		t.Fatalf("expected ErrAlive, got %v", err)
	}

	p := h.load(pos)
	h.now = int64(p.Expiration + p.ChallengePeriod)
	price, err := h.hub.ExpiredPurchasePrice(pos)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price.Cmp(scaled(10)) != 0 {
		t.Fatalf("price %s, want the liquidation price", price)
	}

	// 5 units left would be worth 50, below the dust value
	if _, err := h.hub.BuyExpiredCollateral(buyer, pos, big.NewInt(95)); !errors.Is(err, ErrLeaveNoDust) {
		t.Fatalf("expected ErrLeaveNoDust, got %v", err)
	}
	ownerBefore := h.currency(ownerAddr)
	bought, err := h.hub.BuyExpiredCollateral(buyer, pos, big.NewInt(1_000))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if bought.Int64() != 100 {
		t.Fatalf("bought %s, want capped 100", bought)
	}
	if got := h.collateral(buyer); got != 100 {
		t.Fatalf("buyer holds %d collateral", got)
	}
	// cost 1000: 400 burned against the 500 principal, 600 to the owner
	if got := h.currency(buyer); got != 0 {
		t.Fatalf("buyer currency %d, want 0", got)
	}
	if got := h.currency(ownerAddr) - ownerBefore; got != 600 {
		t.Fatalf("owner surplus %d, want 600", got)
	}
	p = h.load(pos)
	if p.Debt().Sign() != 0 || p.StateAt(uint64(h.now)) != position.StateClosed {
		t.Fatalf("expected closed debt-free position, debt=%s", p.Debt())
	}
}

func TestBuyExpiredAtZeroPriceCoversLoss(t *testing.T) {
	h := newHarness(t)
	pos := h.openAndMint(800)
	p := h.load(pos)
	h.now = int64(p.Expiration + 2*p.ChallengePeriod)
	buyer := makeAddress(0x44)

	bought, err := h.hub.BuyExpiredCollateral(buyer, pos, big.NewInt(100))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if bought.Int64() != 100 || h.collateral(buyer) != 100 {
		t.Fatalf("collateral should be free at zero price")
	}
	if got := h.load(pos).Debt(); got.Sign() != 0 {
		t.Fatalf("debt %s left after write-off", got)
	}
	equity, err := h.ledger.Equity()
	if err != nil {
		t.Fatalf("equity: %v", err)
	}
	if equity.Sign() != 0 {
		t.Fatalf("reserve should be drained by the loss, equity %s", equity)
	}
}
