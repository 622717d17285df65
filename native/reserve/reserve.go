// Package reserve implements per-asset reserve configuration, the kinked
// interest-rate model, and the lazy b_rate/d_rate index accrual that
// converts between underlying asset amounts and the two share units
// (b-tokens for collateral, d-tokens for debt).
package reserve

import (
	"errors"

	"isopool/core/address"
	"isopool/fixedmath"
)

// secondsPerYear anchors the interest-rate model's per-second accrual to an
// annualized rate; ledger time in this module is always Unix seconds.
const secondsPerYear = 31_536_000

// minIRMod is the floor ir_mod is clamped to (0.1 in FP7).
var minIRMod = fixedmath.NewAmount(fixedmath.Denom7 / 10)

// nearFullUtilization is the 0.95 kink point in the three-slope rate model.
var nearFullUtilization = fixedmath.NewAmount(9_500_000)

// ErrZeroSupply is returned by operations that divide by an empty reserve.
var ErrZeroSupply = errors.New("reserve: supply is zero")

// Config is the immutable, permissioned-initializer-supplied parameter set
// for a reserve (spec section 3's Reserve minus the mutable accrual state).
type Config struct {
	Decimals   uint32
	CFactor    fixedmath.Amount // FP7, in [0, 1e7]
	LFactor    fixedmath.Amount // FP7, in [0, 1e7]
	Util       fixedmath.Amount // FP7 target utilization
	MaxUtil    fixedmath.Amount // FP7 utilization cap
	ROne       fixedmath.Amount // FP7 kinked-slope one
	RTwo       fixedmath.Amount // FP7 kinked-slope two
	RThree     fixedmath.Amount // FP7 kinked-slope three
	Reactivity uint32
}

// Reserve is one pool asset's full mutable accounting state.
type Reserve struct {
	Index  uint32
	Asset  address.Address
	Config Config

	Scalar fixedmath.Amount // 10^Decimals

	BRate fixedmath.Amount // FP9, asset-per-b-token index
	DRate fixedmath.Amount // FP9, asset-per-d-token index

	BSupply fixedmath.Amount // outstanding b-token shares
	DSupply fixedmath.Amount // outstanding d-token shares

	BackstopCredit fixedmath.Amount // asset-denominated, owed to backstop

	IRMod fixedmath.Amount // FP7, current PID rate multiplier

	LastTime uint64
}

// New constructs a freshly initialized reserve: both indices start at 1.0,
// the PID multiplier starts at 1.0, and supply/credit start at zero.
func New(index uint32, asset address.Address, cfg Config, genesisTime uint64) *Reserve {
	scalar := fixedmath.NewAmount(1)
	for i := uint32(0); i < cfg.Decimals; i++ {
		scalar = scalar.MulRaw(10)
	}
	return &Reserve{
		Index:          index,
		Asset:          asset,
		Config:         cfg,
		Scalar:         scalar,
		BRate:          fixedmath.NewAmount(fixedmath.Denom9),
		DRate:          fixedmath.NewAmount(fixedmath.Denom9),
		BSupply:        fixedmath.Zero(),
		DSupply:        fixedmath.Zero(),
		BackstopCredit: fixedmath.Zero(),
		IRMod:          fixedmath.NewAmount(fixedmath.Denom7),
		LastTime:       genesisTime,
	}
}

// ToAssetFromBToken converts b-token shares to their underlying asset value,
// flooring per the protocol-favoring rounding convention.
func (r *Reserve) ToAssetFromBToken(n fixedmath.Amount) (fixedmath.Amount, error) {
	return fixedmath.SharesToAssetFloor(n, r.BRate)
}

// ToAssetFromDToken converts d-token shares to the asset amount owed,
// ceiling so debt never under-collects.
func (r *Reserve) ToAssetFromDToken(n fixedmath.Amount) (fixedmath.Amount, error) {
	return fixedmath.SharesToAssetCeil(n, r.DRate)
}

// ToBTokenFromAsset is the inverse conversion used when supplying: shares
// minted to the user are floored.
func (r *Reserve) ToBTokenFromAsset(asset fixedmath.Amount) (fixedmath.Amount, error) {
	return fixedmath.AssetToShares(asset, r.BRate)
}

// ToDTokenFromAsset is the inverse conversion used when borrowing: debt
// shares assigned to the user are ceiled so the protocol never under-collects.
func (r *Reserve) ToDTokenFromAsset(asset fixedmath.Amount) (fixedmath.Amount, error) {
	return fixedmath.AssetToSharesCeil(asset, r.DRate)
}

// EffectiveCollateral applies the collateral haircut to an asset-denominated
// collateral balance, flooring.
func (r *Reserve) EffectiveCollateral(assetAmount fixedmath.Amount) (fixedmath.Amount, error) {
	return fixedmath.MulFloor(assetAmount, r.Config.CFactor, fixedmath.Denom7)
}

// EffectiveLiability applies the liability haircut to an asset-denominated
// debt balance by dividing (the liability is "overweighted"), ceiling.
func (r *Reserve) EffectiveLiability(assetAmount fixedmath.Amount) (fixedmath.Amount, error) {
	return fixedmath.DivCeil(assetAmount, r.Config.LFactor, fixedmath.Denom7)
}

// Utilization computes U = to_asset(d_supply) / to_asset(b_supply) in FP7,
// returning zero when the reserve has no b-token supply.
func (r *Reserve) Utilization() (fixedmath.Amount, error) {
	assetB, err := r.ToAssetFromBToken(r.BSupply)
	if err != nil {
		return fixedmath.Amount{}, err
	}
	if assetB.IsZero() {
		return fixedmath.Zero(), nil
	}
	assetD, err := r.ToAssetFromDToken(r.DSupply)
	if err != nil {
		return fixedmath.Amount{}, err
	}
	return fixedmath.DivFloor(assetD, assetB, fixedmath.Denom7)
}

// targetRate computes the three-slope kinked borrow rate for utilization u.
func (r *Reserve) targetRate(u fixedmath.Amount) (fixedmath.Amount, error) {
	cfg := r.Config
	switch {
	case u.LTE(cfg.Util):
		if cfg.Util.IsZero() {
			return fixedmath.Zero(), nil
		}
		ratio, err := fixedmath.DivFloor(u, cfg.Util, fixedmath.Denom7)
		if err != nil {
			return fixedmath.Amount{}, err
		}
		return fixedmath.MulFloor(cfg.ROne, ratio, fixedmath.Denom7)
	case u.LTE(nearFullUtilization):
		span := nearFullUtilization.Sub(cfg.Util)
		if span.IsZero() {
			return cfg.ROne, nil
		}
		ratio, err := fixedmath.DivFloor(u.Sub(cfg.Util), span, fixedmath.Denom7)
		if err != nil {
			return fixedmath.Amount{}, err
		}
		slope, err := fixedmath.MulFloor(cfg.RTwo, ratio, fixedmath.Denom7)
		if err != nil {
			return fixedmath.Amount{}, err
		}
		return cfg.ROne.Add(slope), nil
	default:
		span := fixedmath.NewAmount(fixedmath.Denom7 - 9_500_000) // 0.05
		ratio, err := fixedmath.DivFloor(u.Sub(nearFullUtilization), span, fixedmath.Denom7)
		if err != nil {
			return fixedmath.Amount{}, err
		}
		slope, err := fixedmath.MulFloor(cfg.RThree, ratio, fixedmath.Denom7)
		if err != nil {
			return fixedmath.Amount{}, err
		}
		return cfg.ROne.Add(cfg.RTwo).Add(slope), nil
	}
}

// updateIRMod nudges ir_mod toward the reserve's target utilization over the
// elapsed period, scaled by the reserve's configured reactivity, and clamps
// the result at the 0.1 floor (section 4.2 step 4). The adjustment is
// proportional to both the utilization error and elapsed time so a reserve
// that sits away from target for longer converges faster.
func (r *Reserve) updateIRMod(u fixedmath.Amount, deltaSeconds uint64) (fixedmath.Amount, error) {
	errTerm := u.Sub(r.Config.Util) // signed FP7
	reactivity := fixedmath.NewAmount(int64(r.Config.Reactivity))
	scaled, err := fixedmath.MulFloor(errTerm, reactivity, fixedmath.Denom7)
	if err != nil {
		return fixedmath.Amount{}, err
	}
	adjustment, err := fixedmath.MulFloor(scaled, fixedmath.NewAmount(int64(deltaSeconds)), secondsPerYear)
	if err != nil {
		return fixedmath.Amount{}, err
	}
	next := r.IRMod.Add(adjustment)
	if next.LT(minIRMod) {
		next = minIRMod
	}
	return next, nil
}

// Accrue advances the reserve's interest state to now, running the full
// section 4.2 algorithm. It is a no-op if no time has elapsed, and must be
// invoked at most once per reserve per transaction to stay idempotent.
func (r *Reserve) Accrue(now uint64, bstopRate fixedmath.Amount) error {
	if now <= r.LastTime {
		return nil
	}
	delta := now - r.LastTime

	if r.BSupply.IsZero() {
		r.LastTime = now
		return nil
	}

	u, err := r.Utilization()
	if err != nil {
		return err
	}

	rate, err := r.targetRate(u)
	if err != nil {
		return err
	}

	irMod, err := r.updateIRMod(u, delta)
	if err != nil {
		return err
	}
	r.IRMod = irMod

	effectiveRate, err := fixedmath.MulFloor(r.IRMod, rate, fixedmath.Denom7)
	if err != nil {
		return err
	}
	periodRate, err := fixedmath.MulFloor(effectiveRate, fixedmath.NewAmount(int64(delta)), secondsPerYear)
	if err != nil {
		return err
	}
	multiplier := fixedmath.NewAmount(fixedmath.Denom7).Add(periodRate)

	oldDRate := r.DRate
	newDRate, err := fixedmath.MulCeil(oldDRate, multiplier, fixedmath.Denom7)
	if err != nil {
		return err
	}

	assetOld, err := fixedmath.SharesToAssetCeil(r.DSupply, oldDRate)
	if err != nil {
		return err
	}
	assetNew, err := fixedmath.SharesToAssetCeil(r.DSupply, newDRate)
	if err != nil {
		return err
	}
	r.DRate = newDRate
	interest := assetNew.Sub(assetOld)
	if interest.IsPositive() {
		backstopShare, err := fixedmath.MulFloor(interest, bstopRate, fixedmath.Denom7)
		if err != nil {
			return err
		}
		r.BackstopCredit = r.BackstopCredit.Add(backstopShare)
		remainder := interest.Sub(backstopShare)
		if remainder.IsPositive() && r.BSupply.IsPositive() {
			increment, err := fixedmath.DivFloor(remainder, r.BSupply, fixedmath.Denom9)
			if err != nil {
				return err
			}
			r.BRate = r.BRate.Add(increment)
		}
	}

	r.LastTime = now
	return nil
}

// BurnBadDebt socializes an asset-denominated loss across every current
// b-token holder by deflating b_rate, used when the backstop lacks the
// capacity to absorb a user's bad debt outright (see
// original_source/lending-pool/src/bad_debt.rs).
func (r *Reserve) BurnBadDebt(assetAmount fixedmath.Amount) error {
	if r.BSupply.IsZero() {
		return ErrZeroSupply
	}
	decrement, err := fixedmath.DivFloor(assetAmount, r.BSupply, fixedmath.Denom9)
	if err != nil {
		return err
	}
	r.BRate = r.BRate.Sub(decrement)
	if r.BRate.IsNegative() {
		r.BRate = fixedmath.Zero()
	}
	return nil
}

// ExceedsMaxUtil reports whether the reserve's current utilization is above
// its configured cap, the post-borrow invariant section 4.4 enforces.
func (r *Reserve) ExceedsMaxUtil() (bool, error) {
	u, err := r.Utilization()
	if err != nil {
		return false, err
	}
	return u.GT(r.Config.MaxUtil), nil
}
