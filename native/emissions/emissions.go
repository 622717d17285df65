// Package emissions implements the per-reserve, per-side lazy emission
// index and the per-user accrual derived from it (spec section 4.7): O(1)
// per touched user instead of O(N) writes whenever the emission rate changes.
package emissions

import "isopool/fixedmath"

// Side distinguishes the supply-side and borrow-side emission streams of a
// reserve; each has its own index.
type Side uint8

const (
	Supply Side = 0
	Borrow Side = 1
)

// Reserve is the per-(reserve, side) lazy emission state.
type Reserve struct {
	Index    fixedmath.Amount // FP7, cumulative emissions-per-share since genesis
	LastTime uint64
	EPS      fixedmath.Amount // FP7, emissions-per-second, set by the gulp step
}

// NewReserve returns a fresh, zeroed emission stream.
func NewReserve() *Reserve {
	return &Reserve{Index: fixedmath.Zero(), EPS: fixedmath.Zero()}
}

// Accrue advances the cumulative index to now given the side's current
// total share supply. It is a no-op if no time elapsed or nothing is
// outstanding to emit against.
func (r *Reserve) Accrue(now uint64, supplyShares fixedmath.Amount) error {
	if now <= r.LastTime {
		return nil
	}
	delta := now - r.LastTime
	if supplyShares.IsPositive() && r.EPS.IsPositive() {
		total := r.EPS.MulRaw(int64(delta))
		inc, err := fixedmath.DivFloor(total, supplyShares, fixedmath.Denom7)
		if err != nil {
			return err
		}
		r.Index = r.Index.Add(inc)
	}
	r.LastTime = now
	return nil
}

// User is the per-(user, reserve, side) accrual record.
type User struct {
	Accrued   fixedmath.Amount
	LastIndex fixedmath.Amount
}

// NewUser returns a fresh accrual record starting from the given index,
// used the first time a user touches a (reserve, side).
func NewUser(startIndex fixedmath.Amount) *User {
	return &User{Accrued: fixedmath.Zero(), LastIndex: startIndex}
}

// Accrue updates a user's accrued emissions given their share balance
// before the action that triggered this call, and advances LastIndex to
// currentIndex.
func (u *User) Accrue(currentIndex, sharesBefore fixedmath.Amount) error {
	deltaIdx := currentIndex.Sub(u.LastIndex)
	if deltaIdx.IsZero() {
		return nil
	}
	if sharesBefore.IsPositive() {
		inc, err := fixedmath.MulFloor(sharesBefore, deltaIdx, fixedmath.Denom7)
		if err != nil {
			return err
		}
		u.Accrued = u.Accrued.Add(inc)
	}
	u.LastIndex = currentIndex
	return nil
}

// Claim returns the user's accrued emissions and resets the counter to zero.
func (u *User) Claim() fixedmath.Amount {
	amount := u.Accrued
	u.Accrued = fixedmath.Zero()
	return amount
}
