package events

import (
	"math/big"
	"strconv"
	"strings"

	"stablecore/crypto"
)

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func account(addr [20]byte) string {
	return crypto.FormatAccount(addr)
}

func position(addr [20]byte) string {
	return crypto.FormatPosition(addr)
}

func uint64String(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
