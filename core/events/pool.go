package events

import (
	"strconv"

	"isopool/core/types"
)

// poolEvent adapts a generic types.Event into the Event interface.
type poolEvent struct {
	inner types.Event
}

func (e poolEvent) EventType() string { return e.inner.Type }

// Raw exposes the underlying attribute map, e.g. for test assertions.
func (e poolEvent) Raw() types.Event { return e.inner }

func newEvent(kind string, attrs map[string]string) Event {
	return poolEvent{inner: types.Event{Type: kind, Attributes: attrs}}
}

// Supply is emitted when a user deposits non-collateral supply into a reserve.
func Supply(user, asset string, amount string) Event {
	return newEvent("supply", map[string]string{"user": user, "asset": normalizeAsset(asset), "amount": amount})
}

// Withdraw is emitted on a supply withdrawal.
func Withdraw(user, asset string, amount string) Event {
	return newEvent("withdraw", map[string]string{"user": user, "asset": normalizeAsset(asset), "amount": amount})
}

// Borrow is emitted when a user takes on new debt.
func Borrow(user, asset string, amount string) Event {
	return newEvent("borrow", map[string]string{"user": user, "asset": normalizeAsset(asset), "amount": amount})
}

// Repay is emitted when a user repays outstanding debt.
func Repay(user, asset string, amount string) Event {
	return newEvent("repay", map[string]string{"user": user, "asset": normalizeAsset(asset), "amount": amount})
}

// NewAuction is emitted when an auction record is created.
func NewAuction(auctionType string, user string, block uint32) Event {
	return newEvent("new_auction", map[string]string{
		"auction_type": auctionType,
		"user":         user,
		"block":        strconv.FormatUint(uint64(block), 10),
	})
}

// FillAuction is emitted on each (possibly partial) auction fill.
func FillAuction(auctionType, user, filler string, percent uint8) Event {
	return newEvent("fill_auction", map[string]string{
		"auction_type": auctionType,
		"user":         user,
		"filler":       filler,
		"percent":      strconv.FormatUint(uint64(percent), 10),
	})
}

// DeleteLiquidationAuction is emitted when a user-liquidation auction is
// removed, either fully filled or because the user's health factor recovered.
func DeleteLiquidationAuction(user string) Event {
	return newEvent("delete_liquidation_auction", map[string]string{"user": user})
}

// BadDebt is emitted once per reserve when a user's debt is reassigned to
// the backstop.
func BadDebt(user, asset string, amount string) Event {
	return newEvent("bad_debt", map[string]string{"user": user, "asset": normalizeAsset(asset), "amount": amount})
}

// GulpEmissions is emitted when a pool ingests newly emitted reward tokens
// from the emitter.
func GulpEmissions(pool string, amount string) Event {
	return newEvent("gulp_emissions", map[string]string{"pool": pool, "amount": amount})
}

// Claim is emitted when a user claims accrued emissions.
func Claim(user string, amount string) Event {
	return newEvent("claim", map[string]string{"user": user, "amount": amount})
}

// Deposit is emitted on a backstop deposit.
func Deposit(user, pool string, amount, shares string) Event {
	return newEvent("deposit", map[string]string{"user": user, "pool": pool, "amount": amount, "shares": shares})
}

// QueueWithdrawal is emitted when a backstop withdrawal is queued.
func QueueWithdrawal(user, pool string, shares string, expiry uint64) Event {
	return newEvent("queue_withdrawal", map[string]string{
		"user": user, "pool": pool, "shares": shares,
		"expiry": strconv.FormatUint(expiry, 10),
	})
}

// DequeueWithdrawal is emitted when a queued backstop withdrawal is canceled.
func DequeueWithdrawal(user, pool string, shares string) Event {
	return newEvent("dequeue_withdrawal", map[string]string{"user": user, "pool": pool, "shares": shares})
}

// BackstopWithdraw is emitted when matured queued shares are withdrawn from
// the backstop (named distinctly from Withdraw, which is a reserve action).
func BackstopWithdraw(user, pool string, tokens string) Event {
	return newEvent("withdraw", map[string]string{"user": user, "pool": pool, "tokens": tokens, "scope": "backstop"})
}

// Draw is emitted when a pool draws backstop tokens to cover a shortfall.
func Draw(pool, to string, amount string) Event {
	return newEvent("draw", map[string]string{"pool": pool, "to": to, "amount": amount})
}

// Donate is emitted when tokens are donated to a pool's backstop balance
// without minting shares.
func Donate(from, pool string, amount string) Event {
	return newEvent("donate", map[string]string{"from": from, "pool": pool, "amount": amount})
}
