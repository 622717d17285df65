// Package oracle defines the external price feed contract the pool reads
// through. It deliberately says nothing about how a price is sourced — that
// is a host concern (spec section 6.5) — only how the core consumes one.
package oracle

import (
	"context"

	"isopool/core/address"
	"isopool/fixedmath"
)

// Feed returns a signed price for an asset at a declared decimal scale. The
// core never interprets decimals beyond using it as a divisor; staleness
// policy, if any, is enforced by the caller (see native/pool.MaxPriceAgeSeconds),
// not by this interface.
type Feed interface {
	GetPrice(ctx context.Context, asset address.Address) (price fixedmath.Amount, decimals uint32, err error)
}

// TimestampedFeed is an optional extension a host feed can implement to
// expose when a price was last published; native/pool's staleness check
// type-asserts for it and skips the check entirely against a feed that
// doesn't (spec section 6.5's Open Question: staleness is the consuming
// layer's policy, not part of the core oracle contract).
type TimestampedFeed interface {
	Feed
	PriceTimestamp(ctx context.Context, asset address.Address) (uint64, error)
}

// StaticFeed is a fixed-price test double: every asset resolves to the
// price/decimals pair it was registered with.
type StaticFeed struct {
	prices map[string]staticEntry
}

type staticEntry struct {
	price     fixedmath.Amount
	decimals  uint32
	timestamp uint64
}

// NewStaticFeed builds an empty StaticFeed; use Set to register prices.
func NewStaticFeed() *StaticFeed {
	return &StaticFeed{prices: make(map[string]staticEntry)}
}

// Set registers (or replaces) the price for an asset at timestamp 0.
func (f *StaticFeed) Set(asset address.Address, price fixedmath.Amount, decimals uint32) {
	f.prices[asset.String()] = staticEntry{price: price, decimals: decimals}
}

// SetAt registers the price for an asset along with the time it was
// published, for exercising TimestampedFeed/staleness checks in tests.
func (f *StaticFeed) SetAt(asset address.Address, price fixedmath.Amount, decimals uint32, timestamp uint64) {
	f.prices[asset.String()] = staticEntry{price: price, decimals: decimals, timestamp: timestamp}
}

// GetPrice implements Feed.
func (f *StaticFeed) GetPrice(_ context.Context, asset address.Address) (fixedmath.Amount, uint32, error) {
	entry, ok := f.prices[asset.String()]
	if !ok {
		return fixedmath.Amount{}, 0, ErrUnknownAsset
	}
	return entry.price, entry.decimals, nil
}

// PriceTimestamp implements TimestampedFeed.
func (f *StaticFeed) PriceTimestamp(_ context.Context, asset address.Address) (uint64, error) {
	entry, ok := f.prices[asset.String()]
	if !ok {
		return 0, ErrUnknownAsset
	}
	return entry.timestamp, nil
}

// ErrUnknownAsset is returned when a StaticFeed has no registered price for
// the requested asset.
var ErrUnknownAsset = errOracle("oracle: no price registered for asset")

type errOracle string

func (e errOracle) Error() string { return string(e) }
