package position

import "math/big"

// Ledger is the currency side of the protocol as seen by a position. The
// minter argument is always the acting position or hub.
type Ledger interface {
	MintWithReserve(minter, target [20]byte, amount *big.Int, reservePPM uint64) (*big.Int, error)
	BurnFromWithReserve(minter, payer [20]byte, targetTotal *big.Int, reservePPM uint64) (*big.Int, error)
	BurnWithReserve(minter [20]byte, amountExcludingReserve *big.Int, reservePPM uint64) (*big.Int, error)
	BurnWithoutReserve(minter [20]byte, amount *big.Int, reservePPM uint64) error
	CalculateAssignedReserve(minted *big.Int, reservePPM uint64) (*big.Int, error)
	CoverLoss(minter, source [20]byte, amount *big.Int) error
	CollectProfits(minter, source [20]byte, amount *big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) (*big.Int, error)
}

// CollateralBank holds collateral token balances.
type CollateralBank interface {
	BalanceOf(symbol string, addr [20]byte) (*big.Int, error)
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
}

// RateOracle supplies the base rate new positions lock in.
type RateOracle interface {
	CurrentRatePPM() (uint64, error)
}

// RollerAuthority recognises the roller, which may act for an owner.
type RollerAuthority interface {
	IsRoller(addr [20]byte) bool
}

// RollerAddress is a RollerAuthority for a single fixed address.
type RollerAddress [20]byte

// IsRoller implements RollerAuthority.
func (r RollerAddress) IsRoller(addr [20]byte) bool {
	return addr != [20]byte{} && addr == [20]byte(r)
}

// View is the read side of the position engine used by the hub and roller.
type View interface {
	Get(addr [20]byte) (*Position, error)
	CollateralBalance(p *Position) (*big.Int, error)
	AvailableForMinting(p *Position) (*big.Int, error)
}
