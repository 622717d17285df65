// Package position implements a user's per-pool Positions snapshot: the
// compact map of collateral, liability, and non-collateral supply shares
// keyed by reserve index (spec section 3).
package position

import (
	"errors"

	"isopool/fixedmath"
)

// ErrMaxPositionsExceeded is returned when a mutation would grow the number
// of distinct reserve entries referenced beyond the pool's configured bound.
var ErrMaxPositionsExceeded = errors.New("position: max positions exceeded")

// Positions is the per-user, per-pool snapshot of share balances.
type Positions struct {
	Collateral  map[uint32]fixedmath.Amount
	Liabilities map[uint32]fixedmath.Amount
	Supply      map[uint32]fixedmath.Amount
}

// New returns an empty Positions snapshot.
func New() *Positions {
	return &Positions{
		Collateral:  make(map[uint32]fixedmath.Amount),
		Liabilities: make(map[uint32]fixedmath.Amount),
		Supply:      make(map[uint32]fixedmath.Amount),
	}
}

// Clone returns a deep copy, used when a dispatcher wants to validate a
// batch of requests speculatively before committing.
func (p *Positions) Clone() *Positions {
	out := New()
	for k, v := range p.Collateral {
		out.Collateral[k] = v
	}
	for k, v := range p.Liabilities {
		out.Liabilities[k] = v
	}
	for k, v := range p.Supply {
		out.Supply[k] = v
	}
	return out
}

// ReserveIndexes returns the set of reserve indexes referenced by any of the
// three maps, used to scope which reserves a health-factor computation must
// touch.
func (p *Positions) ReserveIndexes() []uint32 {
	seen := make(map[uint32]struct{})
	for k := range p.Collateral {
		seen[k] = struct{}{}
	}
	for k := range p.Liabilities {
		seen[k] = struct{}{}
	}
	for k := range p.Supply {
		seen[k] = struct{}{}
	}
	out := make([]uint32, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// IsEmpty reports whether all three maps are empty, meaning the position
// record itself can be deleted from storage.
func (p *Positions) IsEmpty() bool {
	return len(p.Collateral) == 0 && len(p.Liabilities) == 0 && len(p.Supply) == 0
}

// count returns the number of distinct reserve indexes referenced, which is
// what max_positions bounds.
func (p *Positions) count() int {
	return len(p.ReserveIndexes())
}

// AddCollateral adjusts the collateral entry for reserveIndex, pruning the
// key if the result is zero, and enforces maxPositions on growth.
func (p *Positions) AddCollateral(reserveIndex uint32, delta fixedmath.Amount, maxPositions uint32) error {
	return addShares(p.Collateral, reserveIndex, delta, p, maxPositions)
}

// AddLiability adjusts the liability entry for reserveIndex.
func (p *Positions) AddLiability(reserveIndex uint32, delta fixedmath.Amount, maxPositions uint32) error {
	return addShares(p.Liabilities, reserveIndex, delta, p, maxPositions)
}

// AddSupply adjusts the non-collateral supply entry for reserveIndex.
func (p *Positions) AddSupply(reserveIndex uint32, delta fixedmath.Amount, maxPositions uint32) error {
	return addShares(p.Supply, reserveIndex, delta, p, maxPositions)
}

func addShares(m map[uint32]fixedmath.Amount, reserveIndex uint32, delta fixedmath.Amount, p *Positions, maxPositions uint32) error {
	cur, existed := m[reserveIndex]
	if !existed {
		cur = fixedmath.Zero()
	}
	next := cur.Add(delta)
	if next.IsZero() {
		delete(m, reserveIndex)
		return nil
	}
	if !existed && maxPositions > 0 {
		_, inColl := p.Collateral[reserveIndex]
		_, inLiab := p.Liabilities[reserveIndex]
		_, inSupp := p.Supply[reserveIndex]
		if !inColl && !inLiab && !inSupp && uint32(p.count()) >= maxPositions {
			return ErrMaxPositionsExceeded
		}
	}
	m[reserveIndex] = next
	return nil
}
