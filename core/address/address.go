// Package address implements the pool's human-readable account identifier:
// a 20-byte value paired with a bech32 prefix that distinguishes assets,
// users, pools, and the backstop without needing separate Go types.
package address

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// Prefix is the human-readable bech32 prefix of an Address.
type Prefix string

const (
	// PoolPrefix addresses an isolated lending pool contract.
	PoolPrefix Prefix = "pool"
	// AssetPrefix addresses a reserve's underlying token.
	AssetPrefix Prefix = "asset"
	// UserPrefix addresses a depositor/borrower principal.
	UserPrefix Prefix = "user"
	// BackstopPrefix addresses the backstop module instance for a pool.
	BackstopPrefix Prefix = "bstop"
)

// Address is a 20-byte identifier with a bech32 human-readable prefix.
type Address struct {
	prefix Prefix
	bytes  []byte
}

// New constructs an Address from exactly 20 bytes.
func New(prefix Prefix, b []byte) (Address, error) {
	if len(b) != 20 {
		return Address{}, fmt.Errorf("address: must be 20 bytes, got %d", len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNew is New but panics on error; used for constants in tests and
// fixtures where the input is known to be well-formed.
func MustNew(prefix Prefix, b []byte) Address {
	a, err := New(prefix, b)
	if err != nil {
		panic(err)
	}
	return a
}

// Prefix returns the address's human-readable prefix.
func (a Address) Prefix() Prefix { return a.prefix }

// Bytes returns a defensive copy of the address's raw 20 bytes.
func (a Address) Bytes() []byte { return append([]byte(nil), a.bytes...) }

// IsZero reports whether the address has no bytes set, the zero value.
func (a Address) IsZero() bool { return len(a.bytes) == 0 }

// Equal reports whether two addresses reference the same prefix and bytes.
func (a Address) Equal(other Address) bool {
	if a.prefix != other.prefix || len(a.bytes) != len(other.bytes) {
		return false
	}
	for i := range a.bytes {
		if a.bytes[i] != other.bytes[i] {
			return false
		}
	}
	return true
}

// String renders the bech32 encoding of the address, used as its map key
// and storage key representation throughout the pool.
func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Decode parses a bech32-encoded address string.
func Decode(s string) (Address, error) {
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("address: invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("address: error converting bits: %w", err)
	}
	return New(Prefix(prefix), conv)
}

// MarshalText implements encoding.TextMarshaler so Address can be used as a
// map key in JSON-encoded storage values.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}
