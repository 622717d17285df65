// Package auction implements the three-variant Dutch-auction liquidation
// mechanics shared by user liquidations, bad-debt transfers, and interest
// sweeps to the backstop (spec section 4.5). The three variants share one
// linear-ramp scheduler; the filler branches on the Kind discriminant to
// decide where the settled tokens flow (see native/pool), so no virtual
// dispatch is needed here.
package auction

import (
	"errors"

	"isopool/core/address"
	"isopool/fixedmath"
)

// Kind discriminates the three auction variants that share this scheduler.
type Kind uint8

const (
	UserLiq  Kind = 0
	BadDebt  Kind = 1
	Interest Kind = 2
)

// DurationBlocks is the total linear-ramp window (spec section 4.5); at
// ~5s/block this is roughly 33 minutes.
const DurationBlocks uint32 = 400

// halfDuration is the lot-ramp/bid-ramp split point.
const halfDuration uint32 = DurationBlocks / 2

var (
	// ErrAlreadyExists is returned by New when an auction already exists
	// for the (kind, user) pair.
	ErrAlreadyExists = errors.New("auction: already exists for this (kind, user)")
	// ErrNotFound is returned by Fill/Delete when no auction exists.
	ErrNotFound = errors.New("auction: not found")
	// ErrInvalidPercent is returned when a fill percent is outside (0,100].
	ErrInvalidPercent = errors.New("auction: percent must be in (0, 100]")
)

// Data is one auction record, keyed by (Kind, User). Bid/Lot are stored at
// "full value" — the amount a filler would receive/pay at multiplier 1 — and
// shrink as partial fills consume them; Block is the ledger block the ramp
// started at and never changes for the life of the record.
type Data struct {
	Kind  Kind
	User  address.Address
	Bid   map[string]fixedmath.Amount // asset.String() -> amount
	Lot   map[string]fixedmath.Amount
	Block uint32
}

// New constructs an auction record starting its ramp at startBlock.
func New(kind Kind, user address.Address, bid, lot map[string]fixedmath.Amount, startBlock uint32) *Data {
	return &Data{Kind: kind, User: user, Bid: cloneMap(bid), Lot: cloneMap(lot), Block: startBlock}
}

func cloneMap(m map[string]fixedmath.Amount) map[string]fixedmath.Amount {
	out := make(map[string]fixedmath.Amount, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IsExhausted reports whether every bid and lot entry has been fully
// consumed by prior fills, meaning the record can be deleted.
func (d *Data) IsExhausted() bool {
	for _, v := range d.Bid {
		if v.IsPositive() {
			return false
		}
	}
	for _, v := range d.Lot {
		if v.IsPositive() {
			return false
		}
	}
	return true
}

// Multipliers computes the FP7 (lot_mul, bid_mul) pair at the given current
// block for an auction that started ramping at b0, per the three windows in
// spec section 4.5.
func Multipliers(b0, current uint32) (lotMul, bidMul fixedmath.Amount) {
	one := fixedmath.NewAmount(fixedmath.Denom7)
	if current <= b0 {
		return fixedmath.Zero(), one
	}
	elapsed := current - b0
	switch {
	case elapsed <= halfDuration:
		lotMul = fixedmath.MustDivFloor(fixedmath.NewAmount(int64(elapsed)), fixedmath.NewAmount(int64(halfDuration)), fixedmath.Denom7)
		bidMul = one
	case elapsed <= DurationBlocks:
		ramp := fixedmath.MustDivFloor(fixedmath.NewAmount(int64(elapsed-halfDuration)), fixedmath.NewAmount(int64(halfDuration)), fixedmath.Denom7)
		lotMul = one
		bidMul = one.Sub(ramp)
	default:
		lotMul = one
		bidMul = fixedmath.Zero()
	}
	return lotMul, bidMul
}

func scaleMap(m map[string]fixedmath.Amount, mulFP7 fixedmath.Amount) map[string]fixedmath.Amount {
	out := make(map[string]fixedmath.Amount, len(m))
	for k, v := range m {
		out[k] = fixedmath.MustMulFloor(v, mulFP7, fixedmath.Denom7)
	}
	return out
}

// ScaledBidLot returns the bid/lot entries scaled to their value at
// currentBlock, before any fill percentage is applied.
func (d *Data) ScaledBidLot(currentBlock uint32) (bid, lot map[string]fixedmath.Amount) {
	lotMul, bidMul := Multipliers(d.Block, currentBlock)
	return scaleMap(d.Bid, bidMul), scaleMap(d.Lot, lotMul)
}

// Fill settles a percent (1-100) fill of the auction at currentBlock: the
// filler pays/receives percent% of the block-scaled bid/lot, and the
// auction's full-value Bid/Lot shrink to their (100-percent)% remainder so
// the ramp continues against a smaller base (section 4.5).
func (d *Data) Fill(currentBlock uint32, percent uint8) (filledBid, filledLot map[string]fixedmath.Amount, err error) {
	if percent == 0 || percent > 100 {
		return nil, nil, ErrInvalidPercent
	}
	scaledBid, scaledLot := d.ScaledBidLot(currentBlock)
	pct := fixedmath.NewAmount(int64(percent) * fixedmath.Denom7 / 100)
	filledBid = scaleMap(scaledBid, pct)
	filledLot = scaleMap(scaledLot, pct)

	remainPct := fixedmath.NewAmount(int64(100-percent) * fixedmath.Denom7 / 100)
	d.Bid = scaleMap(d.Bid, remainPct)
	d.Lot = scaleMap(d.Lot, remainPct)
	return filledBid, filledLot, nil
}
