package mintinghub

import (
	"fmt"
	"math/big"

	nativecommon "stablecore/native/common"
)

const (
	defaultMinInitPeriod      = 3 * 24 * 60 * 60
	defaultMinChallengePeriod = 1 * 24 * 60 * 60
	defaultChallengerReward   = 20_000
	expiredPriceFactor        = 10
)

// Params holds the protocol-wide bounds the hub enforces on new positions
// and challenges.
type Params struct {
	// OpeningFee is charged in currency for every original position and
	// booked as profit.
	OpeningFee *big.Int
	// MinCollateralValue is the smallest currency value the minimum
	// collateral of a new position may represent.
	MinCollateralValue *big.Int
	// DustValue is the smallest currency value an expired purchase may leave
	// behind in a position.
	DustValue           *big.Int
	MinInitPeriod       uint64
	MinChallengePeriod  uint64
	ChallengerRewardPPM uint64
}

// DefaultParams returns the reference protocol parameters.
func DefaultParams() Params {
	return Params{
		OpeningFee:          new(big.Int).Mul(big.NewInt(1_000), nativecommon.Scale),
		MinCollateralValue:  new(big.Int).Mul(big.NewInt(5_000), nativecommon.Scale),
		DustValue:           new(big.Int).Mul(big.NewInt(1_000), nativecommon.Scale),
		MinInitPeriod:       defaultMinInitPeriod,
		MinChallengePeriod:  defaultMinChallengePeriod,
		ChallengerRewardPPM: defaultChallengerReward,
	}
}

// Validate checks the parameters for internal consistency.
func (p Params) Validate() error {
	for name, v := range map[string]*big.Int{
		"opening fee":          p.OpeningFee,
		"min collateral value": p.MinCollateralValue,
		"dust value":           p.DustValue,
	} {
		if v != nil && v.Sign() < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidParams, name)
		}
	}
	if p.ChallengerRewardPPM > nativecommon.PPMDenominator {
		return fmt.Errorf("%w: challenger reward above 100%%", ErrInvalidParams)
	}
	if p.MinChallengePeriod == 0 {
		return fmt.Errorf("%w: challenge period must be positive", ErrInvalidParams)
	}
	return nil
}

func (p Params) normalized() Params {
	out := p
	out.OpeningFee = nativecommon.Copy(p.OpeningFee)
	out.MinCollateralValue = nativecommon.Copy(p.MinCollateralValue)
	out.DustValue = nativecommon.Copy(p.DustValue)
	return out
}
