package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesPoolAndReserves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.toml")
	contents := `[Pool]
PoolAddress = "pool17qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqrrc77m"
BstopRate = 1000000
MaxPositions = 8
MaxPriceAgeSeconds = 600
BadDebtIncentiveRatio = 11000000

[Reserves."asset1qyqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqrlrw9q"]
Decimals = 7
CFactor = 9000000
LFactor = 9000000
Util = 5000000
MaxUtil = 9500000
ROne = 500000
RTwo = 2000000
RThree = 10000000
Reactivity = 1
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Pool.MaxPositions != 8 {
		t.Fatalf("unexpected MaxPositions: %d", loaded.Pool.MaxPositions)
	}
	if loaded.Pool.MaxPriceAgeSeconds != 600 {
		t.Fatalf("unexpected MaxPriceAgeSeconds: %d", loaded.Pool.MaxPriceAgeSeconds)
	}
	if loaded.Pool.PoolAddress.IsZero() {
		t.Fatalf("expected PoolAddress to decode")
	}
	if len(loaded.Reserves) != 1 {
		t.Fatalf("expected 1 reserve, got %d", len(loaded.Reserves))
	}
	for _, r := range loaded.Reserves {
		if r.Decimals != 7 {
			t.Fatalf("unexpected Decimals: %d", r.Decimals)
		}
		if r.Reactivity != 1 {
			t.Fatalf("unexpected Reactivity: %d", r.Reactivity)
		}
	}
}

func TestLoadRejectsMalformedReserveAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.toml")
	contents := `[Pool]
PoolAddress = "pool17qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqrrc77m"

[Reserves."not-a-valid-address"]
Decimals = 7
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed reserve address")
	}
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.toml")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config file to be written: %v", err)
	}
	if loaded.Pool.MaxPositions == 0 {
		t.Fatalf("expected a nonzero default MaxPositions")
	}
	if len(loaded.Reserves) != 0 {
		t.Fatalf("expected default config to register no reserves, got %d", len(loaded.Reserves))
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again.Pool.MaxPositions != loaded.Pool.MaxPositions {
		t.Fatalf("expected idempotent default reload, got %d vs %d", again.Pool.MaxPositions, loaded.Pool.MaxPositions)
	}
}

func TestDefaultPoolAddressDecodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.toml")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read default config: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected non-empty default config")
	}
	if got := fmt.Sprintf("%s", raw); len(got) == 0 {
		t.Fatalf("expected readable config contents")
	}
}
