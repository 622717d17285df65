package fixedmath

import "testing"

func TestMulFloorCeilRounding(t *testing.T) {
	a := NewAmount(7)
	b := NewAmount(3)
	floor, err := MulFloor(a, b, 10)
	if err != nil {
		t.Fatalf("MulFloor: %v", err)
	}
	if floor.Int64() != 2 { // 21/10 = 2.1 -> floor 2
		t.Fatalf("floor = %s, want 2", floor)
	}
	ceil, err := MulCeil(a, b, 10)
	if err != nil {
		t.Fatalf("MulCeil: %v", err)
	}
	if ceil.Int64() != 3 { // 21/10 = 2.1 -> ceil 3
		t.Fatalf("ceil = %s, want 3", ceil)
	}
}

func TestMulFloorExactNoRoundingNoise(t *testing.T) {
	a := NewAmount(100_0000000)
	b := NewAmount(Denom9)
	got, err := MulFloor(a, b, Denom9)
	if err != nil {
		t.Fatalf("MulFloor: %v", err)
	}
	if got.Int64() != 100_0000000 {
		t.Fatalf("got %s, want 100_0000000", got)
	}
}

func TestDivFloorCeilRounding(t *testing.T) {
	a := NewAmount(10)
	b := NewAmount(3)
	floor, err := DivFloor(a, b, 1)
	if err != nil {
		t.Fatalf("DivFloor: %v", err)
	}
	if floor.Int64() != 3 {
		t.Fatalf("floor = %s, want 3", floor)
	}
	ceil, err := DivCeil(a, b, 1)
	if err != nil {
		t.Fatalf("DivCeil: %v", err)
	}
	if ceil.Int64() != 4 {
		t.Fatalf("ceil = %s, want 4", ceil)
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := DivFloor(NewAmount(1), NewAmount(0), 1); err != ErrDivByZero {
		t.Fatalf("want ErrDivByZero, got %v", err)
	}
	if _, err := MulFloor(NewAmount(1), NewAmount(1), 0); err != ErrDivByZero {
		t.Fatalf("want ErrDivByZero, got %v", err)
	}
}

func TestOverflowDetected(t *testing.T) {
	// 2^127 has a bit length of 128, which must be rejected.
	huge := NewAmount(1)
	for i := 0; i < 127; i++ {
		huge = huge.MulRaw(2)
	}
	if _, err := MulFloor(huge, NewAmount(2), 1); err != ErrOverflow {
		t.Fatalf("want ErrOverflow, got %v", err)
	}
}

func TestSharesAssetRoundTrip(t *testing.T) {
	rate := NewAmount(Denom9) // 1.0 index
	shares := NewAmount(100_0000000)
	asset, err := SharesToAssetFloor(shares, rate)
	if err != nil {
		t.Fatalf("SharesToAssetFloor: %v", err)
	}
	if asset.Int64() != 100_0000000 {
		t.Fatalf("asset = %s, want 100_0000000", asset)
	}
	back, err := AssetToShares(asset, rate)
	if err != nil {
		t.Fatalf("AssetToShares: %v", err)
	}
	if back.Int64() != 100_0000000 {
		t.Fatalf("back = %s, want 100_0000000", back)
	}
}
