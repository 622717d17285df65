package address

import "testing"

func TestRoundTrip(t *testing.T) {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	addr := MustNew(AssetPrefix, raw)
	encoded := addr.String()
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, addr)
	}
	if decoded.Prefix() != AssetPrefix {
		t.Fatalf("prefix = %s, want %s", decoded.Prefix(), AssetPrefix)
	}
}

func TestNewRejectsWrongLength(t *testing.T) {
	if _, err := New(UserPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestZeroValue(t *testing.T) {
	var a Address
	if !a.IsZero() {
		t.Fatalf("zero value should report IsZero")
	}
	if a.String() != "" {
		t.Fatalf("zero value String() = %q, want empty", a.String())
	}
}
