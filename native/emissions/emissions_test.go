package emissions

import "testing"

import "isopool/fixedmath"

func TestReserveAccrualAdvancesIndex(t *testing.T) {
	r := NewReserve()
	r.EPS = fixedmath.NewAmount(1_0000000) // 1 token/sec, FP7
	if err := r.Accrue(100, fixedmath.NewAmount(10_0000000)); err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if !r.Index.IsPositive() {
		t.Fatalf("expected index to advance, got %s", r.Index)
	}
	if r.LastTime != 100 {
		t.Fatalf("last_time = %d, want 100", r.LastTime)
	}
}

func TestReserveAccrualNoopWithNoSupply(t *testing.T) {
	r := NewReserve()
	r.EPS = fixedmath.NewAmount(1_0000000)
	if err := r.Accrue(100, fixedmath.Zero()); err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if !r.Index.IsZero() {
		t.Fatalf("expected index unchanged with zero supply, got %s", r.Index)
	}
}

func TestUserAccrualAndClaim(t *testing.T) {
	u := NewUser(fixedmath.Zero())
	idx := fixedmath.NewAmount(2_0000000) // 2.0 FP7
	if err := u.Accrue(idx, fixedmath.NewAmount(10)); err != nil {
		t.Fatalf("Accrue: %v", err)
	}
	if u.Accrued.IsZero() {
		t.Fatalf("expected accrued > 0")
	}
	claimed := u.Claim()
	if claimed.IsZero() {
		t.Fatalf("expected nonzero claim")
	}
	if !u.Accrued.IsZero() {
		t.Fatalf("expected accrued reset after claim")
	}
}
