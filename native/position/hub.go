package position

import (
	"fmt"
	"math/big"

	nativecommon "stablecore/native/common"
)

func requireHub(p *Position, caller [20]byte) error {
	if caller != p.Hub {
		return ErrNotHub
	}
	return nil
}

// NotifyChallengeStarted records size collateral as challenged at price.
func (e *Engine) NotifyChallengeStarted(caller, addr [20]byte, size, price *big.Int) error {
	if err := checkAmount(size); err != nil {
		return err
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		if err := requireHub(p, caller); err != nil {
			return err
		}
		if p.Closed {
			return ErrClosed
		}
		if now >= p.Expiration {
			return ErrExpired
		}
		if size.Sign() == 0 {
			return ErrChallengeTooSmall
		}
		balance, err := e.CollateralBalance(p)
		if err != nil {
			return err
		}
		// A challenge below the minimum is only allowed when it covers the
		// whole remaining balance.
		if size.Cmp(p.MinimumCollateral) < 0 && size.Cmp(balance) < 0 {
			return fmt.Errorf("%w: %s below minimum %s", ErrChallengeTooSmall, size, p.MinimumCollateral)
		}
		p.ChallengedAmount = new(big.Int).Add(p.ChallengedAmount, size)
		p.ChallengedPrice = copyInt(price)
		return nil
	})
}

// NotifyChallengeAverted releases size from the challenged amount and blocks
// minting for a day.
func (e *Engine) NotifyChallengeAverted(caller, addr [20]byte, size *big.Int) error {
	if err := checkAmount(size); err != nil {
		return err
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		if err := requireHub(p, caller); err != nil {
			return err
		}
		p.ChallengedAmount = nativecommon.SubFloor(p.ChallengedAmount, size)
		restrictMinting(p, now, AvertedCooldown)
		return nil
	})
}

// NotifyChallengeSucceeded hands size collateral to bidder and writes off the
// proportional share of the debt, interest first. The hub settles the
// currency side using the returned outcome.
func (e *Engine) NotifyChallengeSucceeded(caller, addr, bidder [20]byte, size *big.Int) (*ChallengeOutcome, error) {
	if err := checkAmount(size); err != nil {
		return nil, err
	}
	var outcome *ChallengeOutcome
	err := e.mutate(addr, func(p *Position, now uint64) error {
		if err := requireHub(p, caller); err != nil {
			return err
		}
		accrue(p, now)
		p.ChallengedAmount = nativecommon.SubFloor(p.ChallengedAmount, size)
		balance, err := e.CollateralBalance(p)
		if err != nil {
			return err
		}
		taken := nativecommon.Min(size, balance)
		repayment := new(big.Int)
		if balance.Sign() > 0 {
			repayment = nativecommon.MulDiv(p.Debt(), taken, balance)
		}
		interestPart := nativecommon.Min(p.Interest, repayment)
		principalPart := new(big.Int).Sub(repayment, interestPart)
		if principalPart.Cmp(p.Principal) > 0 {
			return ErrRepaidTooMuch
		}
		p.Interest = new(big.Int).Sub(p.Interest, interestPart)
		p.Principal = new(big.Int).Sub(p.Principal, principalPart)
		if err := e.notifyRepaid(p, principalPart); err != nil {
			return err
		}
		restrictMinting(p, now, SucceededCooldown)
		if _, err := e.sendCollateral(p, bidder, taken); err != nil {
			return err
		}
		outcome = &ChallengeOutcome{
			Owner:          p.Owner,
			Collateral:     taken,
			PrincipalRepay: principalPart,
			InterestRepay:  interestPart,
			ReservePPM:     p.ReserveContributionPPM,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// ForceSale sells collateralAmount of an expired position to buyer for
// proceeds. Proceeds pay interest first, then principal. Any surplus goes to
// the owner. If the collateral runs out before the debt is covered the
// reserve absorbs the shortfall.
func (e *Engine) ForceSale(caller, addr, buyer [20]byte, collateralAmount, proceeds *big.Int) error {
	if err := checkAmount(collateralAmount); err != nil {
		return err
	}
	if err := checkAmount(proceeds); err != nil {
		return err
	}
	return e.mutate(addr, func(p *Position, now uint64) error {
		if err := requireHub(p, caller); err != nil {
			return err
		}
		if now < p.Expiration {
			return ErrAlive
		}
		if p.ChallengedAmount.Sign() > 0 {
			return ErrChallenged
		}
		accrue(p, now)
		remaining, err := e.sendCollateral(p, buyer, collateralAmount)
		if err != nil {
			return err
		}
		funds := copyInt(proceeds)
		if p.Interest.Sign() > 0 && funds.Sign() > 0 {
			interestPay := nativecommon.Min(p.Interest, funds)
			if err := e.ledger.CollectProfits(p.Address, buyer, interestPay); err != nil {
				return err
			}
			p.Interest = new(big.Int).Sub(p.Interest, interestPay)
			funds.Sub(funds, interestPay)
		}
		if p.Principal.Sign() == 0 {
			if remaining.Sign() == 0 {
				p.Interest = new(big.Int)
			}
			return e.ledger.Transfer(buyer, p.Owner, funds)
		}
		assigned, err := e.ledger.CalculateAssignedReserve(p.Principal, p.ReserveContributionPPM)
		if err != nil {
			return err
		}
		if new(big.Int).Add(funds, assigned).Cmp(p.Principal) >= 0 {
			paid, err := e.ledger.BurnFromWithReserve(p.Address, buyer, p.Principal, p.ReserveContributionPPM)
			if err != nil {
				return err
			}
			if err := e.ledger.Transfer(buyer, p.Owner, nativecommon.SubFloor(funds, paid)); err != nil {
				return err
			}
			if err := e.notifyRepaid(p, p.Principal); err != nil {
				return err
			}
			p.Principal = new(big.Int)
		} else {
			if err := e.ledger.Transfer(buyer, p.Address, funds); err != nil {
				return err
			}
			if remaining.Sign() == 0 {
				if err := e.ledger.CoverLoss(p.Address, p.Address, new(big.Int).Sub(p.Principal, funds)); err != nil {
					return err
				}
				if err := e.ledger.BurnWithoutReserve(p.Address, p.Principal, p.ReserveContributionPPM); err != nil {
					return err
				}
				if err := e.notifyRepaid(p, p.Principal); err != nil {
					return err
				}
				p.Principal = new(big.Int)
			} else {
				freed, err := e.ledger.BurnWithReserve(p.Address, funds, p.ReserveContributionPPM)
				if err != nil {
					return err
				}
				if freed.Cmp(p.Principal) > 0 {
					return fmt.Errorf("%w: freed %s exceeds principal %s", ErrRepaidTooMuch, freed, p.Principal)
				}
				if err := e.notifyRepaid(p, freed); err != nil {
					return err
				}
				p.Principal = new(big.Int).Sub(p.Principal, freed)
			}
		}
		if remaining.Sign() == 0 {
			p.Interest = new(big.Int)
		}
		return nil
	})
}
