package stablecoin

import (
	"math/big"

	nativecommon "stablecore/native/common"
)

// UsableMint returns the part of totalMint paid out to the borrower:
// floor(totalMint * (1e6 - reservePPM) / 1e6).
func UsableMint(totalMint *big.Int, reservePPM uint64) *big.Int {
	if totalMint == nil || totalMint.Sign() <= 0 || reservePPM >= nativecommon.PPMDenominator {
		return new(big.Int)
	}
	factor := new(big.Int).SetUint64(nativecommon.PPMDenominator - reservePPM)
	return nativecommon.MulDiv(totalMint, factor, nativecommon.PPM())
}

// MintAmount is the inverse of UsableMint: the smallest total mint whose
// usable part is at least usable. UsableMint(MintAmount(x)) == x.
func MintAmount(usable *big.Int, reservePPM uint64) *big.Int {
	if usable == nil || usable.Sign() <= 0 {
		return new(big.Int)
	}
	if reservePPM >= nativecommon.PPMDenominator {
		return new(big.Int)
	}
	factor := new(big.Int).SetUint64(nativecommon.PPMDenominator - reservePPM)
	return nativecommon.MulDivUp(usable, nativecommon.PPM(), factor)
}
