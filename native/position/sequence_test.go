package position

import (
	"math/big"
	"math/rand"
	"testing"

	nativecommon "stablecore/native/common"
)

func (h *harness) collateralOf(addr [20]byte) *big.Int {
	h.t.Helper()
	balance, err := h.engine.CollateralBalance(h.load(addr))
	if err != nil {
		h.t.Fatalf("collateral balance: %v", err)
	}
	return balance
}

type observed struct {
	principal *big.Int
	debt      *big.Int
	price     *big.Int
	balance   *big.Int
	closed    bool
}

func (h *harness) observe(addr [20]byte) observed {
	h.t.Helper()
	p := h.load(addr)
	return observed{
		principal: copyInt(p.Principal),
		debt:      h.engine.CurrentDebt(p),
		price:     copyInt(p.Price),
		balance:   h.collateralOf(addr),
		closed:    p.Closed,
	}
}

func (s observed) equal(o observed) bool {
	return s.principal.Cmp(o.principal) == 0 &&
		s.debt.Cmp(o.debt) == 0 &&
		s.price.Cmp(o.price) == 0 &&
		s.balance.Cmp(o.balance) == 0 &&
		s.closed == o.closed
}

func (s observed) solvent() bool {
	have := new(big.Int).Mul(s.balance, s.price)
	need := new(big.Int).Mul(s.debt, nativecommon.Scale)
	return have.Cmp(need) >= 0
}

// TestSolvencyHoldsAcrossRandomOperations drives a position through seeded
// sequences of mint, repay, withdraw, reprice and adjust calls with interest
// accruing in between. Every call that lowers the collateral cover must leave
// collateral*price >= debt*SCALE, and every rejected call must leave the
// position untouched.
func TestSolvencyHoldsAcrossRandomOperations(t *testing.T) {
	const (
		seeds = 30
		steps = 200
		day   = 24 * 60 * 60
	)
	for seed := int64(1); seed <= seeds; seed++ {
		rng := rand.New(rand.NewSource(seed))
		h := newHarness(t)
		pos := makeAddress(0x10)
		h.open(pos, 1_000_000, 200, 50_000)
		h.credit(ownerAddr, 1_000)
		h.advance(testInitPeriod)

		applied := 0
		for step := 0; step < steps; step++ {
			before := h.observe(pos)
			var (
				op    string
				risky bool
				err   error
			)
			switch rng.Intn(6) {
			case 0:
				op = "mint"
				risky = true
				err = h.engine.Mint(ownerAddr, pos, ownerAddr, big.NewInt(rng.Int63n(800)+1))
			case 1:
				op = "repay"
				_, err = h.engine.Repay(ownerAddr, pos, big.NewInt(rng.Int63n(400)+1))
			case 2:
				op = "withdraw"
				risky = true
				err = h.engine.WithdrawCollateral(ownerAddr, pos, ownerAddr, big.NewInt(rng.Int63n(60)+1))
			case 3:
				op = "price"
				price := scaled(rng.Int63n(15) + 1)
				risky = price.Cmp(before.price) < 0
				err = h.engine.AdjustPrice(ownerAddr, pos, price)
			case 4:
				op = "adjust"
				debt := new(big.Int).Add(before.debt, big.NewInt(rng.Int63n(801)-400))
				if debt.Sign() < 0 {
					debt.SetInt64(0)
				}
				collateral := new(big.Int).Add(before.balance, big.NewInt(rng.Int63n(81)-40))
				if collateral.Sign() < 0 {
					collateral.SetInt64(0)
				}
				price := before.price
				if rng.Intn(2) == 0 {
					price = scaled(rng.Int63n(15) + 1)
				}
				risky = debt.Cmp(before.debt) > 0 || collateral.Cmp(before.balance) < 0 || price.Cmp(before.price) < 0
				err = h.engine.Adjust(ownerAddr, pos, debt, collateral, price)
			default:
				h.advance(rng.Int63n(3 * day))
				continue
			}

			after := h.observe(pos)
			if err != nil {
				if !after.equal(before) {
					t.Fatalf("seed %d step %d: rejected %s changed the position: %+v -> %+v", seed, step, op, before, after)
				}
				continue
			}
			applied++
			if risky && !after.solvent() {
				t.Fatalf("seed %d step %d: %s left the position under water: collateral=%s price=%s debt=%s",
					seed, step, op, after.balance, after.price, after.debt)
			}
		}
		if applied == 0 {
			t.Fatalf("seed %d: no operation succeeded", seed)
		}
	}
}

// TestFamilyLimitHoldsAcrossRandomClones interleaves clone creation, mints
// and repayments across a position family and checks the shared limit after
// every step.
func TestFamilyLimitHoldsAcrossRandomClones(t *testing.T) {
	const (
		seeds     = 20
		steps     = 150
		limit     = 2_000
		maxClones = 32
	)
	for seed := int64(1); seed <= seeds; seed++ {
		rng := rand.New(rand.NewSource(seed))
		h := newHarness(t)
		original := makeAddress(0x10)
		h.open(original, limit, 60, 0)
		h.advance(testInitPeriod)

		family := [][20]byte{original}
		owners := map[[20]byte][20]byte{original: ownerAddr}
		minted := 0
		for step := 0; step < steps; step++ {
			switch rng.Intn(5) {
			case 0:
				if len(family) > maxClones {
					continue
				}
				parent := h.load(family[rng.Intn(len(family))])
				if h.engine.AssertCloneable(parent) != nil {
					continue
				}
				addr := makeAddress(byte(0x20 + len(family)))
				owner := makeAddress(byte(0x80 + rng.Intn(4)))
				if _, err := h.engine.InitializeClone(hubAddr, addr, owner, parent, parent.Expiration); err != nil {
					t.Fatalf("seed %d step %d: init clone: %v", seed, step, err)
				}
				if err := h.ledger.RegisterPosition(hubAddr, addr); err != nil {
					t.Fatalf("seed %d step %d: register clone: %v", seed, step, err)
				}
				deposit := rng.Int63n(80) + 20
				h.credit(owner, deposit)
				if err := h.engine.DepositCollateral(owner, addr, big.NewInt(deposit)); err != nil {
					t.Fatalf("seed %d step %d: deposit: %v", seed, step, err)
				}
				family = append(family, addr)
				owners[addr] = owner
			case 1, 2:
				addr := family[rng.Intn(len(family))]
				if err := h.engine.Mint(owners[addr], addr, owners[addr], big.NewInt(rng.Int63n(600)+1)); err == nil {
					minted++
				}
			case 3:
				addr := family[rng.Intn(len(family))]
				_, _ = h.engine.Repay(owners[addr], addr, big.NewInt(rng.Int63n(300)+1))
			default:
				h.advance(rng.Int63n(12 * 60 * 60))
			}

			total := new(big.Int)
			for _, addr := range family {
				total.Add(total, h.load(addr).Principal)
			}
			head := h.load(original)
			if total.Cmp(head.Limit) > 0 {
				t.Fatalf("seed %d step %d: family principal %s exceeds limit %s", seed, step, total, head.Limit)
			}
			if total.Cmp(head.TotalMinted) != 0 {
				t.Fatalf("seed %d step %d: family counter %s, principal sum %s", seed, step, head.TotalMinted, total)
			}
		}
		if minted == 0 || len(family) == 1 {
			t.Fatalf("seed %d: sequence never minted (%d) or cloned (%d)", seed, minted, len(family)-1)
		}
	}
}
