package position

import (
	"math/big"

	nativecommon "stablecore/native/common"
	"stablecore/native/stablecoin"
)

var yearPPM = new(big.Int).Mul(big.NewInt(nativecommon.SecondsPerYear), big.NewInt(nativecommon.PPMDenominator))

// AccruedInterest returns the position's interest at now:
// interest + principal*rate*(now-lastAccrual)/(year*1e6).
func AccruedInterest(p *Position, now uint64) *big.Int {
	interest := copyInt(p.Interest)
	if now <= p.LastAccrual || p.Principal == nil || p.Principal.Sign() == 0 || p.FixedAnnualRatePPM == 0 {
		return interest
	}
	delta := new(big.Int).SetUint64(now - p.LastAccrual)
	accrued := new(big.Int).Mul(p.Principal, new(big.Int).SetUint64(p.FixedAnnualRatePPM))
	accrued.Mul(accrued, delta)
	accrued.Quo(accrued, yearPPM)
	return interest.Add(interest, accrued)
}

// UsableMint is the part of totalMint paid out under the position's reserve
// contribution.
func (p *Position) UsableMint(totalMint *big.Int) *big.Int {
	return stablecoin.UsableMint(totalMint, p.ReserveContributionPPM)
}

// MintAmount is the total mint needed for the borrower to receive usable.
func (p *Position) MintAmount(usable *big.Int) *big.Int {
	return stablecoin.MintAmount(usable, p.ReserveContributionPPM)
}
