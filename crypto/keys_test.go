package crypto

import (
	"strings"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	var raw [20]byte
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	encoded := FormatAccount(raw)
	if !strings.HasPrefix(encoded, "stbl1") {
		t.Fatalf("unexpected prefix: %s", encoded)
	}
	parsed, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != raw {
		t.Fatalf("round trip mismatch: %x != %x", parsed, raw)
	}
}

func TestParseAddressHex(t *testing.T) {
	parsed, err := ParseAddress("0x0000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed[19] != 1 {
		t.Fatalf("unexpected bytes: %x", parsed)
	}
	if _, err := ParseAddress("0x01"); err == nil {
		t.Fatalf("expected short hex address to fail")
	}
	if _, err := ParseAddress(""); err == nil {
		t.Fatalf("expected empty address to fail")
	}
}

func TestDerivePositionAddressDeterministic(t *testing.T) {
	hub := ModuleAddress("mintinghub")
	a := DerivePositionAddress(hub, 1)
	b := DerivePositionAddress(hub, 1)
	c := DerivePositionAddress(hub, 2)
	if a != b {
		t.Fatalf("expected same address for same nonce")
	}
	if a == c {
		t.Fatalf("expected different address for different nonce")
	}
	if hub == ModuleAddress("roller") {
		t.Fatalf("module addresses must differ")
	}
}
