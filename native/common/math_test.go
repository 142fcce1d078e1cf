package common

import (
	"math/big"
	"testing"
)

func TestMulDivRounding(t *testing.T) {
	if got := MulDiv(big.NewInt(7), big.NewInt(3), big.NewInt(2)); got.Int64() != 10 {
		t.Fatalf("floor: got %s", got)
	}
	if got := MulDivUp(big.NewInt(7), big.NewInt(3), big.NewInt(2)); got.Int64() != 11 {
		t.Fatalf("ceil: got %s", got)
	}
	if got := MulDivUp(big.NewInt(4), big.NewInt(3), big.NewInt(2)); got.Int64() != 6 {
		t.Fatalf("exact ceil: got %s", got)
	}
	if got := MulDivUp(big.NewInt(0), big.NewInt(3), big.NewInt(2)); got.Sign() != 0 {
		t.Fatalf("zero ceil: got %s", got)
	}
	if got := MulDiv(big.NewInt(1), big.NewInt(1), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("zero denominator must yield zero")
	}
}

func TestSubFloorAndMin(t *testing.T) {
	if got := SubFloor(big.NewInt(3), big.NewInt(5)); got.Sign() != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
	if got := Min(big.NewInt(3), nil); got.Sign() != 0 {
		t.Fatalf("nil treated as zero, got %s", got)
	}
}

func TestGuard(t *testing.T) {
	pauses := StaticPauses{ModuleHub: true}
	if err := Guard(pauses, ModuleHub); err != ErrModulePaused {
		t.Fatalf("expected paused, got %v", err)
	}
	if err := Guard(pauses, ModuleRoller); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, ModuleHub); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}
