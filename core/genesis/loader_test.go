package genesis

import (
	"math/big"
	"testing"

	"stablecore/config"
	"stablecore/core/state"
	"stablecore/crypto"
	nativecommon "stablecore/native/common"
	"stablecore/native/leadrate"
	"stablecore/native/stablecoin"
	"stablecore/storage"
)

func testGenesis() (*config.Genesis, [20]byte) {
	var holder [20]byte
	holder[19] = 0x07
	cfg := config.Default()
	cfg.Governance = []string{crypto.FormatAccount(holder)}
	cfg.Alloc = []config.Alloc{
		{Address: crypto.FormatAccount(holder), Symbol: "WETH", Amount: "500"},
		{Address: crypto.FormatAccount(holder), Symbol: "ZCHF", Amount: "250"},
		{Address: crypto.FormatAccount(holder), Symbol: "ETH", Amount: "9"},
	}
	return cfg, holder
}

func TestApplyBootstrapsState(t *testing.T) {
	cfg, holder := testGenesis()
	db := storage.NewMemDB()
	manager := state.NewManager(db)

	applied, err := Apply(cfg, manager)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected genesis to be applied")
	}
	if err := manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	for _, symbol := range []string{"ZCHF", "WETH", "ETH"} {
		if !manager.TokenExists(symbol) {
			t.Fatalf("token %s not registered", symbol)
		}
	}
	bal, err := manager.Balance(holder[:], "WETH")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected WETH balance %s", bal)
	}
	supply, err := manager.TokenSupply("ZCHF")
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("unexpected currency supply %s", supply)
	}
	hub, _ := cfg.HubAddress()
	roller, _ := cfg.RollerAddress()
	if !manager.HasRole(stablecoin.RoleMinter, hub[:]) || !manager.HasRole(stablecoin.RoleMinter, roller[:]) {
		t.Fatalf("hub and roller must be minters")
	}
	if !manager.HasRole(nativecommon.RoleGovernance, holder[:]) {
		t.Fatalf("governance role missing")
	}
	rates := leadrate.NewOracle()
	rates.SetState(manager)
	rate, err := rates.CurrentRatePPM()
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rate != cfg.LeadRate.RatePPM {
		t.Fatalf("unexpected base rate %d", rate)
	}
}

func TestApplyIsOneShot(t *testing.T) {
	cfg, holder := testGenesis()
	manager := state.NewManager(storage.NewMemDB())
	if _, err := Apply(cfg, manager); err != nil {
		t.Fatalf("apply: %v", err)
	}
	applied, err := Apply(cfg, manager)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied {
		t.Fatalf("second apply must be a no-op")
	}
	bal, _ := manager.Balance(holder[:], "ZCHF")
	if bal.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("allocation applied twice: %s", bal)
	}
}

func TestApplyRevertsOnInvalidConfig(t *testing.T) {
	cfg, _ := testGenesis()
	cfg.Alloc = append(cfg.Alloc, config.Alloc{Address: "0x01", Symbol: "ZCHF", Amount: "1"})
	manager := state.NewManager(storage.NewMemDB())
	if _, err := Apply(cfg, manager); err == nil {
		t.Fatalf("expected invalid config to fail")
	}
	if manager.TokenExists("ZCHF") {
		t.Fatalf("failed genesis must not register tokens")
	}
}
