// Package health computes a user's health factor from a Positions snapshot,
// honoring each reserve's collateral/liability haircut (spec section 4.3).
package health

import (
	"context"
	"fmt"

	"isopool/fixedmath"
	"isopool/native/position"
	"isopool/native/reserve"
	"isopool/oracle"
)

// Snapshot is the result of pricing a Positions snapshot against the
// current oracle and reserve state. CollateralBase/LiabilityBase are
// haircut-weighted; RawCollateralBase/RawLiabilityBase are unfactored
// totals, carried for reporting; auction creation and fills do not read
// them (see original_source/pool/src/pool/health_factor.rs).
type Snapshot struct {
	CollateralBase    fixedmath.Amount
	LiabilityBase     fixedmath.Amount
	RawCollateralBase fixedmath.Amount
	RawLiabilityBase  fixedmath.Amount
	// OracleDecimals is the decimal scale the base-unit totals above are
	// denominated in; as_health_factor divides out the same scale so the
	// result is a dimensionless FP7 ratio.
	OracleDecimals uint32
}

// Reserves resolves a reserve by its dense index, the lookup the health
// computation needs for every entry in a Positions snapshot.
type Reserves interface {
	ByIndex(index uint32) (*reserve.Reserve, bool)
}

// Compute prices every reserve referenced by p against feed and returns the
// resulting Snapshot.
func Compute(ctx context.Context, p *position.Positions, reserves Reserves, feed oracle.Feed) (*Snapshot, error) {
	snap := &Snapshot{
		CollateralBase:    fixedmath.Zero(),
		LiabilityBase:     fixedmath.Zero(),
		RawCollateralBase: fixedmath.Zero(),
		RawLiabilityBase:  fixedmath.Zero(),
	}

	for _, idx := range p.ReserveIndexes() {
		r, ok := reserves.ByIndex(idx)
		if !ok {
			return nil, fmt.Errorf("health: reserve %d not found", idx)
		}
		price, decimals, err := feed.GetPrice(ctx, r.Asset)
		if err != nil {
			return nil, fmt.Errorf("health: price for reserve %d: %w", idx, err)
		}
		snap.OracleDecimals = decimals

		if bBal, ok := p.Collateral[idx]; ok && bBal.IsPositive() {
			assetAmount, err := r.ToAssetFromBToken(bBal)
			if err != nil {
				return nil, err
			}
			raw, err := baseUnits(assetAmount, price, r.Scalar, roundFloor)
			if err != nil {
				return nil, err
			}
			snap.RawCollateralBase = snap.RawCollateralBase.Add(raw)

			effective, err := r.EffectiveCollateral(assetAmount)
			if err != nil {
				return nil, err
			}
			base, err := baseUnits(effective, price, r.Scalar, roundFloor)
			if err != nil {
				return nil, err
			}
			snap.CollateralBase = snap.CollateralBase.Add(base)
		}

		if dBal, ok := p.Liabilities[idx]; ok && dBal.IsPositive() {
			assetAmount, err := r.ToAssetFromDToken(dBal)
			if err != nil {
				return nil, err
			}
			raw, err := baseUnits(assetAmount, price, r.Scalar, roundCeil)
			if err != nil {
				return nil, err
			}
			snap.RawLiabilityBase = snap.RawLiabilityBase.Add(raw)

			effective, err := r.EffectiveLiability(assetAmount)
			if err != nil {
				return nil, err
			}
			base, err := baseUnits(effective, price, r.Scalar, roundCeil)
			if err != nil {
				return nil, err
			}
			snap.LiabilityBase = snap.LiabilityBase.Add(base)
		}
	}

	return snap, nil
}

type roundDirection int

const (
	roundFloor roundDirection = iota
	roundCeil
)

// baseUnits converts an asset-native amount into oracle base units:
// price * amount / scalar.
func baseUnits(amount, price, scalar fixedmath.Amount, dir roundDirection) (fixedmath.Amount, error) {
	if dir == roundCeil {
		return fixedmath.MulCeil(amount, price, scalar.Int64())
	}
	return fixedmath.MulFloor(amount, price, scalar.Int64())
}

// AsHealthFactor computes collateral_base / liability_base as an FP7 ratio,
// returning zero when there is no liability base.
func (s *Snapshot) AsHealthFactor() (fixedmath.Amount, error) {
	if s.LiabilityBase.IsZero() {
		return fixedmath.Zero(), nil
	}
	denom := int64(1)
	for i := uint32(0); i < s.OracleDecimals; i++ {
		denom *= 10
	}
	return fixedmath.DivFloor(s.CollateralBase, s.LiabilityBase, denom)
}

// minHealthFactor is 1.0 in FP7, the threshold every mutating action must
// leave the user at or above.
var minHealthFactor = fixedmath.NewAmount(fixedmath.Denom7)

// IsHFUnder reports whether the health factor is strictly below min. A user
// with no liabilities is never under, regardless of min.
func (s *Snapshot) IsHFUnder(min fixedmath.Amount) (bool, error) {
	if s.LiabilityBase.IsZero() {
		return false, nil
	}
	hf, err := s.AsHealthFactor()
	if err != nil {
		return false, err
	}
	return hf.LT(min), nil
}

// IsHFOver reports whether the health factor is strictly above max. A user
// with no liabilities is always over, regardless of max.
func (s *Snapshot) IsHFOver(max fixedmath.Amount) (bool, error) {
	if s.LiabilityBase.IsZero() {
		return true, nil
	}
	hf, err := s.AsHealthFactor()
	if err != nil {
		return false, err
	}
	return hf.GT(max), nil
}

// RequireHealthy enforces the post-action invariant (section 4.3): the
// health factor must be at least 1.0 whenever the user carries liabilities.
func (s *Snapshot) RequireHealthy() (bool, error) {
	under, err := s.IsHFUnder(minHealthFactor)
	if err != nil {
		return false, err
	}
	return !under, nil
}
