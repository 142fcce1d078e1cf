package common

import "math/big"

const (
	// PPMDenominator is the parts-per-million denominator.
	PPMDenominator = 1_000_000
	// SecondsPerYear is the 365-day year used for interest accrual.
	SecondsPerYear = 365 * 24 * 60 * 60
)

var (
	// Scale is the fixed-point factor of prices (1e18).
	Scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	ppm   = big.NewInt(PPMDenominator)
)

// PPM returns 1e6 as a fresh big.Int.
func PPM() *big.Int { return new(big.Int).Set(ppm) }

// Zero returns a fresh zero value.
func Zero() *big.Int { return new(big.Int) }

// Copy returns a copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// MulDiv returns floor(a*b/d). A zero denominator yields zero.
func MulDiv(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, d)
}

// MulDivUp returns ceil(a*b/d) for non-negative operands.
func MulDivUp(a, b, d *big.Int) *big.Int {
	if a == nil || b == nil || d == nil || d.Sign() == 0 {
		return new(big.Int)
	}
	num := new(big.Int).Mul(a, b)
	if num.Sign() == 0 {
		return num
	}
	num.Sub(num, big.NewInt(1))
	num.Quo(num, d)
	return num.Add(num, big.NewInt(1))
}

// Min returns a copy of the smaller value.
func Min(a, b *big.Int) *big.Int {
	if Copy(a).Cmp(Copy(b)) <= 0 {
		return Copy(a)
	}
	return Copy(b)
}

// SubFloor returns max(a-b, 0).
func SubFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(Copy(a), Copy(b))
	if out.Sign() < 0 {
		return out.SetInt64(0)
	}
	return out
}

// IsPositive reports whether v is non-nil and greater than zero.
func IsPositive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
