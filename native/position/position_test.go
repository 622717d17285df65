package position

import (
	"testing"

	"isopool/fixedmath"
)

func TestAddCollateralPrunesZeroKey(t *testing.T) {
	p := New()
	if err := p.AddCollateral(3, fixedmath.NewAmount(100), 10); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	if err := p.AddCollateral(3, fixedmath.NewAmount(-100), 10); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	if _, ok := p.Collateral[3]; ok {
		t.Fatalf("expected key 3 pruned after returning to zero")
	}
	if !p.IsEmpty() {
		t.Fatalf("expected positions empty")
	}
}

func TestMaxPositionsEnforced(t *testing.T) {
	p := New()
	for i := uint32(0); i < 2; i++ {
		if err := p.AddCollateral(i, fixedmath.NewAmount(1), 2); err != nil {
			t.Fatalf("AddCollateral(%d): %v", i, err)
		}
	}
	if err := p.AddLiability(9, fixedmath.NewAmount(1), 2); err != ErrMaxPositionsExceeded {
		t.Fatalf("expected ErrMaxPositionsExceeded, got %v", err)
	}
}

func TestExistingKeyGrowthDoesNotCountAsNew(t *testing.T) {
	p := New()
	if err := p.AddCollateral(1, fixedmath.NewAmount(5), 1); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	// Growing the same reserve's collateral should never trip max_positions.
	if err := p.AddCollateral(1, fixedmath.NewAmount(5), 1); err != nil {
		t.Fatalf("AddCollateral growth: %v", err)
	}
	if !p.Collateral[1].Equal(fixedmath.NewAmount(10)) {
		t.Fatalf("collateral = %s, want 10", p.Collateral[1])
	}
}

func TestCloneIsIndependent(t *testing.T) {
	p := New()
	p.AddSupply(2, fixedmath.NewAmount(42), 0)
	clone := p.Clone()
	clone.AddSupply(2, fixedmath.NewAmount(8), 0)
	if p.Supply[2].Int64() != 42 {
		t.Fatalf("original mutated: %s", p.Supply[2])
	}
	if clone.Supply[2].Int64() != 50 {
		t.Fatalf("clone = %s, want 50", clone.Supply[2])
	}
}
