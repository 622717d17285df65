// Package pool is the action-dispatch core of one isolated lending pool: it
// owns the reserve registry, wires position/health/auction/backstop/
// emissions accounting together, and exposes Submit as the single entry
// point a host transaction handler calls (spec section 4.4 and 6.1).
package pool

import (
	"context"
	"errors"
	"fmt"

	"isopool/core/address"
	poolerrors "isopool/core/errors"
	"isopool/core/events"
	"isopool/fixedmath"
	"isopool/native/auction"
	"isopool/native/backstop"
	"isopool/native/common"
	"isopool/native/emissions"
	"isopool/native/health"
	"isopool/native/position"
	"isopool/native/reserve"
	"isopool/observability/metrics"
	"isopool/oracle"
)

// Status is the pool's global operating mode (spec section 3).
type Status uint8

const (
	// Active permits every request kind.
	Active Status = 0
	// OnIce blocks new borrows but otherwise behaves like Active.
	OnIce Status = 1
	// Frozen blocks Supply, Withdraw, SupplyCollateral, WithdrawCollateral
	// and Borrow; Repay, auction fills and DeleteLiquidationAuction still run.
	Frozen Status = 2
)

// InterestAuctionThresholdBase is the minimum accumulated backstop credit,
// denominated in oracle base units, required before gulp_interest can start
// an Interest auction (spec section 4.5): 200 USDC-equivalent.
var InterestAuctionThresholdBase = fixedmath.NewAmount(200)

// MinBackstopThreshold is the backstop pot size a healthy pool is expected
// to carry. TransferBadDebt treats the backstop as "nearly empty" (spec
// section 4.5) once its pot drops below 1% of this, reusing
// InterestAuctionThresholdBase's unit (oracle base units) scaled up by the
// same two orders of magnitude that separate it from the 1% floor, so the
// floor itself lands back on InterestAuctionThresholdBase.
var MinBackstopThreshold = InterestAuctionThresholdBase.MulRaw(100)

// badDebtBackstopFloor is 1% of MinBackstopThreshold: below this, bad debt
// can no longer be safely reassigned to the backstop and must instead be
// burned pro-rata off the reserve's b_rate (spec section 4.5).
func badDebtBackstopFloor() fixedmath.Amount {
	return MinBackstopThreshold.QuoRaw(100)
}

// Config is the pool-wide, permissioned-initializer-supplied parameter set.
type Config struct {
	PoolAddress           address.Address
	Oracle                address.Address
	BstopRate             fixedmath.Amount // FP7, interest share skimmed to the backstop
	Status                Status
	MaxPositions          uint32
	MaxPriceAgeSeconds    uint64
	BadDebtIncentiveRatio fixedmath.Amount // FP7, bonus paid to bad-debt auction fillers, e.g. 1.1e7 = 110%
}

// RequestKind discriminates the ten actions a Submit batch can contain
// (spec section 4.4).
type RequestKind uint8

const (
	Supply RequestKind = iota
	Withdraw
	SupplyCollateral
	WithdrawCollateral
	Borrow
	Repay
	FillUserLiquidationAuction
	FillBadDebtAuction
	FillInterestAuction
	DeleteLiquidationAuction
)

// Request is one action within a Submit batch. Asset/Amount carry the
// reserve and quantity for the six balance-mutating kinds; for the three
// Fill* kinds Amount instead carries the fill percent (1-100) and Target
// names the liquidated user whose auction is being filled.
type Request struct {
	Kind   RequestKind
	Asset  address.Address
	Amount fixedmath.Amount
	Target address.Address
}

// Ledger is the out-of-scope token-transfer collaborator Submit calls
// against; the pool core never touches raw balances itself (spec section 5).
type Ledger interface {
	Transfer(ctx context.Context, asset, from, to address.Address, amount fixedmath.Amount) error
}

type emKey struct {
	index uint32
	side  emissions.Side
}

type aucKey struct {
	kind auction.Kind
	user string
}

// Pool orchestrates one isolated lending pool's reserves, auctions, and
// emissions. Positions are supplied per call rather than owned here, so a
// host can batch several users' Positions through one Submit (e.g. a filler
// liquidating a borrower).
type Pool struct {
	Config Config

	reserves   map[uint32]*reserve.Reserve
	assetIndex map[string]uint32

	feed     oracle.Feed
	backstop *backstop.Backstop
	pause    common.PauseView

	auctions map[aucKey]*auction.Data

	emissionsReserves map[emKey]*emissions.Reserve
	emissionsUsers    map[string]map[emKey]*emissions.User
}

// NewPool constructs an empty pool ready to have reserves registered.
func NewPool(cfg Config, feed oracle.Feed, bstop *backstop.Backstop, pause common.PauseView) *Pool {
	return &Pool{
		Config:            cfg,
		reserves:          make(map[uint32]*reserve.Reserve),
		assetIndex:        make(map[string]uint32),
		feed:              feed,
		backstop:          bstop,
		pause:             pause,
		auctions:          make(map[aucKey]*auction.Data),
		emissionsReserves: make(map[emKey]*emissions.Reserve),
		emissionsUsers:    make(map[string]map[emKey]*emissions.User),
	}
}

// RegisterReserve initializes a new reserve and assigns it the next dense
// index; indexes are never reused, even if the reserve is later frozen out
// of the pool's active set.
func (p *Pool) RegisterReserve(asset address.Address, cfg reserve.Config, genesisTime uint64) (*reserve.Reserve, error) {
	key := asset.String()
	if _, exists := p.assetIndex[key]; exists {
		return nil, poolerrors.ErrAlreadyInitialized
	}
	index := uint32(len(p.reserves))
	r := reserve.New(index, asset, cfg, genesisTime)
	p.reserves[index] = r
	p.assetIndex[key] = index
	return r, nil
}

// ByIndex implements health.Reserves.
func (p *Pool) ByIndex(index uint32) (*reserve.Reserve, bool) {
	r, ok := p.reserves[index]
	return r, ok
}

// staleChecked rejects a price as stale when the feed exposes publish
// timestamps and the pool is configured with a MaxPriceAgeSeconds policy;
// a feed that doesn't implement TimestampedFeed, or a pool with no policy
// set (zero), is never subject to this check.
func (p *Pool) staleChecked(ctx context.Context, now uint64, asset address.Address) error {
	if p.Config.MaxPriceAgeSeconds == 0 {
		return nil
	}
	tf, ok := p.feed.(oracle.TimestampedFeed)
	if !ok {
		return nil
	}
	published, err := tf.PriceTimestamp(ctx, asset)
	if err != nil {
		return err
	}
	if now > published && now-published > p.Config.MaxPriceAgeSeconds {
		return poolerrors.ErrBadRequest
	}
	return nil
}

func (p *Pool) reserveByAsset(asset address.Address) (*reserve.Reserve, error) {
	idx, ok := p.assetIndex[asset.String()]
	if !ok {
		return nil, poolerrors.ErrBadRequest
	}
	return p.reserves[idx], nil
}

func (p *Pool) reserveByAssetStr(assetStr string) (*reserve.Reserve, error) {
	idx, ok := p.assetIndex[assetStr]
	if !ok {
		return nil, poolerrors.ErrBadRequest
	}
	return p.reserves[idx], nil
}

func sideAmount(m map[uint32]fixedmath.Amount, idx uint32) fixedmath.Amount {
	v, ok := m[idx]
	if !ok {
		return fixedmath.Zero()
	}
	return v
}

func (p *Pool) emissionsReserveFor(idx uint32, side emissions.Side) *emissions.Reserve {
	key := emKey{idx, side}
	er, ok := p.emissionsReserves[key]
	if !ok {
		er = emissions.NewReserve()
		p.emissionsReserves[key] = er
	}
	return er
}

func (p *Pool) emissionsUserFor(user string, idx uint32, side emissions.Side, startIndex fixedmath.Amount) *emissions.User {
	byKey, ok := p.emissionsUsers[user]
	if !ok {
		byKey = make(map[emKey]*emissions.User)
		p.emissionsUsers[user] = byKey
	}
	key := emKey{idx, side}
	eu, ok := byKey[key]
	if !ok {
		eu = emissions.NewUser(startIndex)
		byKey[key] = eu
	}
	return eu
}

// accrueEmissions advances a (reserve, side) emission index to now and
// records a user's share of it based on their balance immediately before
// the action that triggered the call.
func (p *Pool) accrueEmissions(now uint64, idx uint32, side emissions.Side, totalShares fixedmath.Amount, user address.Address, sharesBefore fixedmath.Amount) error {
	er := p.emissionsReserveFor(idx, side)
	if err := er.Accrue(now, totalShares); err != nil {
		return err
	}
	eu := p.emissionsUserFor(user.String(), idx, side, er.Index)
	return eu.Accrue(er.Index, sharesBefore)
}

// ClaimEmissions returns and zeroes a user's accrued emissions for one
// (reserve, side) pair.
func (p *Pool) ClaimEmissions(user address.Address, idx uint32, side emissions.Side) fixedmath.Amount {
	eu := p.emissionsUserFor(user.String(), idx, side, p.emissionsReserveFor(idx, side).Index)
	return eu.Claim()
}

// computeHealth prices positions against the oracle, rejecting the call if
// any referenced reserve's price has gone stale under MaxPriceAgeSeconds.
func (p *Pool) computeHealth(ctx context.Context, now uint64, positions *position.Positions) (*health.Snapshot, error) {
	for _, idx := range positions.ReserveIndexes() {
		r, ok := p.ByIndex(idx)
		if !ok {
			continue
		}
		if err := p.staleChecked(ctx, now, r.Asset); err != nil {
			return nil, err
		}
	}
	return health.Compute(ctx, positions, p, p.feed)
}

func userSupplyShares(pos *position.Positions, idx uint32) fixedmath.Amount {
	return sideAmount(pos.Collateral, idx).Add(sideAmount(pos.Supply, idx))
}

// observeReserve publishes a reserve's current utilization and rate indices
// to the process metrics registry; failures to compute utilization are
// swallowed since this is best-effort observability, not accounting state.
func (p *Pool) observeReserve(r *reserve.Reserve) {
	asset := r.Asset.String()
	if u, err := r.Utilization(); err == nil {
		metrics.Pool().SetReserveUtilization(asset, fp7Float(u))
	}
	metrics.Pool().SetReserveRates(asset, fp9Float(r.BRate), fp9Float(r.DRate))
}

func fp7Float(a fixedmath.Amount) float64 {
	return float64(a.Int64()) / float64(fixedmath.Denom7)
}

func fp9Float(a fixedmath.Amount) float64 {
	return float64(a.Int64()) / float64(fixedmath.Denom9)
}

func hfFloat(a fixedmath.Amount) float64 {
	return fp7Float(a)
}

func wrapPositionErr(err error) error {
	if errors.Is(err, position.ErrMaxPositionsExceeded) {
		return poolerrors.ErrMaxPositionsExceed
	}
	return err
}

// Submit applies a batch of requests against spender's Positions (looked up
// in subjects by its string address), moving tokens through ledger and
// returning the domain events the batch emitted. from pays in tokens
// (supply, repay); to receives tokens out (withdraw, borrow); spender is
// whose Positions the six balance-mutating request kinds act on. subjects
// must contain an entry for spender and for every Target referenced by a
// FillUserLiquidationAuction or DeleteLiquidationAuction request; BadDebt and
// Interest fills do not need one.
func (p *Pool) Submit(ctx context.Context, now uint64, block uint32, from, spender, to address.Address, subjects map[string]*position.Positions, requests []Request, ledger Ledger) ([]events.Event, error) {
	if err := common.Guard(p.pause, "pool"); err != nil {
		return nil, err
	}
	positions, ok := subjects[spender.String()]
	if !ok {
		return nil, poolerrors.ErrBadRequest
	}

	var out []events.Event
	risky := false

	for _, req := range requests {
		switch req.Kind {
		case Supply, Withdraw, SupplyCollateral, WithdrawCollateral, Borrow, Repay:
			if req.Amount.IsNegative() || req.Amount.IsZero() {
				return nil, poolerrors.ErrNegativeAmount
			}
			r, err := p.reserveByAsset(req.Asset)
			if err != nil {
				return nil, err
			}
			if err := r.Accrue(now, p.Config.BstopRate); err != nil {
				return nil, err
			}
			p.observeReserve(r)
			if p.Config.Status == Frozen && req.Kind != Repay {
				return nil, poolerrors.ErrInvalidPoolStatus
			}
			if req.Kind == Borrow && p.Config.Status == OnIce {
				return nil, poolerrors.ErrInvalidPoolStatus
			}

			ev, wasRisky, err := p.applyBalanceRequest(ctx, now, req, r, from, spender, to, positions, ledger)
			if err != nil {
				return nil, err
			}
			if req.Kind == Borrow {
				exceeds, err := r.ExceedsMaxUtil()
				if err != nil {
					return nil, err
				}
				if exceeds {
					return nil, poolerrors.ErrInvalidUtilRate
				}
			}
			risky = risky || wasRisky
			out = append(out, ev)

		case FillUserLiquidationAuction, FillBadDebtAuction, FillInterestAuction:
			kind := fillKindOf(req.Kind)
			target, ok := subjects[req.Target.String()]
			if !ok && kind == auction.UserLiq {
				return nil, poolerrors.ErrBadRequest
			}
			percent := req.Amount.Int64()
			if percent <= 0 || percent > 100 {
				return nil, auction.ErrInvalidPercent
			}
			ev, err := p.FillAuction(ctx, kind, req.Target, spender, uint8(percent), now, block, target, ledger)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)

		case DeleteLiquidationAuction:
			target, ok := subjects[req.Target.String()]
			if !ok {
				return nil, poolerrors.ErrBadRequest
			}
			ev, deleted, err := p.checkAndDeleteLiquidationAuction(ctx, now, req.Target, target)
			if err != nil {
				return nil, err
			}
			if !deleted {
				return nil, poolerrors.ErrInvalidLiquidation
			}
			out = append(out, ev)

		default:
			return nil, poolerrors.ErrBadRequest
		}
	}

	if risky {
		snap, err := p.computeHealth(ctx, now, positions)
		if err != nil {
			return nil, err
		}
		if hf, err := snap.AsHealthFactor(); err == nil {
			metrics.Pool().SetHealthFactor(spender.String(), hfFloat(hf))
		}
		healthy, err := snap.RequireHealthy()
		if err != nil {
			return nil, err
		}
		if !healthy {
			return nil, poolerrors.ErrInvalidHf
		}
	}

	if ev, deleted, err := p.checkAndDeleteLiquidationAuction(ctx, now, spender, positions); err == nil && deleted {
		out = append(out, ev)
	}

	return out, nil
}

// applyBalanceRequest implements the protocol for one of the six
// balance-mutating request kinds against an already-accrued reserve,
// returning the event it emits and whether it is a "risky" action that must
// be followed by the post-batch health check.
func (p *Pool) applyBalanceRequest(ctx context.Context, now uint64, req Request, r *reserve.Reserve, from, spender, to address.Address, positions *position.Positions, ledger Ledger) (events.Event, bool, error) {
	asset := req.Asset.String()
	amount := req.Amount

	switch req.Kind {
	case Supply:
		sharesBefore := userSupplyShares(positions, r.Index)
		bTokens, err := r.ToBTokenFromAsset(amount)
		if err != nil {
			return nil, false, err
		}
		if err := p.accrueEmissions(now, r.Index, emissions.Supply, r.BSupply, spender, sharesBefore); err != nil {
			return nil, false, err
		}
		if err := wrapPositionErr(positions.AddSupply(r.Index, bTokens, p.Config.MaxPositions)); err != nil {
			return nil, false, err
		}
		r.BSupply = r.BSupply.Add(bTokens)
		if err := ledger.Transfer(ctx, req.Asset, from, p.Config.PoolAddress, amount); err != nil {
			return nil, false, err
		}
		return events.Supply(spender.String(), asset, amount.String()), false, nil

	case Withdraw:
		sharesBefore := userSupplyShares(positions, r.Index)
		shares, err := fixedmath.AssetToSharesCeil(amount, r.BRate)
		if err != nil {
			return nil, false, err
		}
		held := sideAmount(positions.Supply, r.Index)
		if shares.GT(held) {
			shares = held
			amount, err = r.ToAssetFromBToken(shares)
			if err != nil {
				return nil, false, err
			}
		}
		if err := p.accrueEmissions(now, r.Index, emissions.Supply, r.BSupply, spender, sharesBefore); err != nil {
			return nil, false, err
		}
		if err := wrapPositionErr(positions.AddSupply(r.Index, shares.Neg(), p.Config.MaxPositions)); err != nil {
			return nil, false, err
		}
		r.BSupply = r.BSupply.Sub(shares)
		if err := ledger.Transfer(ctx, req.Asset, p.Config.PoolAddress, to, amount); err != nil {
			return nil, false, err
		}
		return events.Withdraw(spender.String(), asset, amount.String()), false, nil

	case SupplyCollateral:
		sharesBefore := userSupplyShares(positions, r.Index)
		bTokens, err := r.ToBTokenFromAsset(amount)
		if err != nil {
			return nil, false, err
		}
		if err := p.accrueEmissions(now, r.Index, emissions.Supply, r.BSupply, spender, sharesBefore); err != nil {
			return nil, false, err
		}
		if err := wrapPositionErr(positions.AddCollateral(r.Index, bTokens, p.Config.MaxPositions)); err != nil {
			return nil, false, err
		}
		r.BSupply = r.BSupply.Add(bTokens)
		if err := ledger.Transfer(ctx, req.Asset, from, p.Config.PoolAddress, amount); err != nil {
			return nil, false, err
		}
		return events.Supply(spender.String(), asset, amount.String()), false, nil

	case WithdrawCollateral:
		sharesBefore := userSupplyShares(positions, r.Index)
		shares, err := fixedmath.AssetToSharesCeil(amount, r.BRate)
		if err != nil {
			return nil, false, err
		}
		held := sideAmount(positions.Collateral, r.Index)
		if shares.GT(held) {
			shares = held
			amount, err = r.ToAssetFromBToken(shares)
			if err != nil {
				return nil, false, err
			}
		}
		if err := p.accrueEmissions(now, r.Index, emissions.Supply, r.BSupply, spender, sharesBefore); err != nil {
			return nil, false, err
		}
		if err := wrapPositionErr(positions.AddCollateral(r.Index, shares.Neg(), p.Config.MaxPositions)); err != nil {
			return nil, false, err
		}
		r.BSupply = r.BSupply.Sub(shares)
		if err := ledger.Transfer(ctx, req.Asset, p.Config.PoolAddress, to, amount); err != nil {
			return nil, false, err
		}
		return events.Withdraw(spender.String(), asset, amount.String()), true, nil

	case Borrow:
		sharesBefore := sideAmount(positions.Liabilities, r.Index)
		dTokens, err := r.ToDTokenFromAsset(amount)
		if err != nil {
			return nil, false, err
		}
		if err := p.accrueEmissions(now, r.Index, emissions.Borrow, r.DSupply, spender, sharesBefore); err != nil {
			return nil, false, err
		}
		if err := wrapPositionErr(positions.AddLiability(r.Index, dTokens, p.Config.MaxPositions)); err != nil {
			return nil, false, err
		}
		r.DSupply = r.DSupply.Add(dTokens)
		if err := ledger.Transfer(ctx, req.Asset, p.Config.PoolAddress, to, amount); err != nil {
			return nil, false, err
		}
		return events.Borrow(spender.String(), asset, amount.String()), true, nil

	case Repay:
		sharesBefore := sideAmount(positions.Liabilities, r.Index)
		shares, err := fixedmath.AssetToShares(amount, r.DRate)
		if err != nil {
			return nil, false, err
		}
		if shares.GT(sharesBefore) {
			shares = sharesBefore
			amount, err = r.ToAssetFromDToken(shares)
			if err != nil {
				return nil, false, err
			}
		}
		if err := p.accrueEmissions(now, r.Index, emissions.Borrow, r.DSupply, spender, sharesBefore); err != nil {
			return nil, false, err
		}
		if err := wrapPositionErr(positions.AddLiability(r.Index, shares.Neg(), p.Config.MaxPositions)); err != nil {
			return nil, false, err
		}
		r.DSupply = r.DSupply.Sub(shares)
		if err := ledger.Transfer(ctx, req.Asset, from, p.Config.PoolAddress, amount); err != nil {
			return nil, false, err
		}
		return events.Repay(spender.String(), asset, amount.String()), false, nil
	}

	return nil, false, fmt.Errorf("pool: unreachable request kind %d", req.Kind)
}

func fillKindOf(rk RequestKind) auction.Kind {
	switch rk {
	case FillBadDebtAuction:
		return auction.BadDebt
	case FillInterestAuction:
		return auction.Interest
	default:
		return auction.UserLiq
	}
}

func kindName(k auction.Kind) string {
	switch k {
	case auction.BadDebt:
		return "bad_debt"
	case auction.Interest:
		return "interest"
	default:
		return "user_liquidation"
	}
}

// NewLiquidationAuction opens a user-liquidation auction sized to the
// user's full collateral and debt exposure at creation time: Bid is what a
// filler repays (the user's debt, by asset), Lot is what a filler receives
// (the user's collateral, by asset). The Dutch ramp finds the clearing
// percentage through partial fills rather than the auction being pre-sized
// to the minimum needed to restore health. It fails with
// ErrInvalidLiquidation unless the user's health factor is below 1.0.
func (p *Pool) NewLiquidationAuction(user address.Address, positions *position.Positions, block uint32) (*auction.Data, error) {
	key := aucKey{auction.UserLiq, user.String()}
	if _, exists := p.auctions[key]; exists {
		return nil, auction.ErrAlreadyExists
	}
	snap, err := health.Compute(context.Background(), positions, p, p.feed)
	if err != nil {
		return nil, err
	}
	healthy, err := snap.RequireHealthy()
	if err != nil {
		return nil, err
	}
	if healthy {
		return nil, poolerrors.ErrInvalidLiquidation
	}
	bid := map[string]fixedmath.Amount{}
	for idx, dShares := range positions.Liabilities {
		r, ok := p.ByIndex(idx)
		if !ok {
			continue
		}
		assetAmt, err := r.ToAssetFromDToken(dShares)
		if err != nil {
			return nil, err
		}
		bid[r.Asset.String()] = assetAmt
	}
	lot := map[string]fixedmath.Amount{}
	for idx, bShares := range positions.Collateral {
		r, ok := p.ByIndex(idx)
		if !ok {
			continue
		}
		assetAmt, err := r.ToAssetFromBToken(bShares)
		if err != nil {
			return nil, err
		}
		lot[r.Asset.String()] = assetAmt
	}
	data := auction.New(auction.UserLiq, user, bid, lot, block)
	p.auctions[key] = data
	metrics.Pool().ObserveAuctionCreated(kindName(auction.UserLiq))
	return data, nil
}

// TransferBadDebt moves user's entire remaining debt off their Positions and
// opens a BadDebt auction whose Lot pays the filler BadDebtIncentiveRatio of
// the debt's value out of the backstop pot. It fails with
// ErrInvalidLiquidation while the user still holds any collateral or supply,
// so it applies only to residual debt with nothing left to seize (see
// original_source/lending-pool/src/bad_debt.rs).
//
// The normal path reassigns each reserve's d-tokens to the backstop: the
// backstop becomes the debt's notional holder of record and the reserve's
// d_supply is left untouched (spec section 4.5/8 S4 — "reserve totals
// unchanged"). Only when the backstop is nearly empty (pot below 1% of
// MinBackstopThreshold) does this fall back to burning the debt pro-rata off
// the reserve's b_rate, socializing the loss across existing b-token
// holders instead.
func (p *Pool) TransferBadDebt(user address.Address, positions *position.Positions, block uint32) (*auction.Data, error) {
	key := aucKey{auction.BadDebt, user.String()}
	if _, exists := p.auctions[key]; exists {
		return nil, auction.ErrAlreadyExists
	}
	if len(positions.Collateral) > 0 || len(positions.Supply) > 0 {
		return nil, poolerrors.ErrInvalidLiquidation
	}
	backstopNearlyEmpty := p.backstop.PoolBalanceOf(p.Config.PoolAddress).Tokens.LT(badDebtBackstopFloor())

	bid := map[string]fixedmath.Amount{}
	for idx, dShares := range positions.Liabilities {
		if dShares.IsZero() {
			continue
		}
		r, ok := p.ByIndex(idx)
		if !ok {
			continue
		}
		assetAmt, err := r.ToAssetFromDToken(dShares)
		if err != nil {
			return nil, err
		}
		if backstopNearlyEmpty {
			if err := r.BurnBadDebt(assetAmt); err != nil {
				return nil, err
			}
			r.DSupply = r.DSupply.Sub(dShares)
			metrics.Pool().AddBadDebtWrittenOff(r.Asset.String(), float64(assetAmt.Int64())/float64(r.Scalar.Int64()))
		} else {
			p.backstop.ReassignDebt(p.Config.PoolAddress, r.Asset, dShares)
		}
		bid[r.Asset.String()] = assetAmt
		delete(positions.Liabilities, idx)
	}
	total := fixedmath.Zero()
	for _, v := range bid {
		total = total.Add(v)
	}
	incentive, err := fixedmath.MulFloor(total, p.Config.BadDebtIncentiveRatio, fixedmath.Denom7)
	if err != nil {
		return nil, err
	}
	// Keyed by a literal placeholder rather than a reserve asset string:
	// bad-debt lot settlement always targets the backstop's own pot (see
	// FillAuction's kind branch).
	lot := map[string]fixedmath.Amount{"backstop": incentive}
	data := auction.New(auction.BadDebt, user, bid, lot, block)
	p.auctions[key] = data
	metrics.Pool().ObserveAuctionCreated(kindName(auction.BadDebt))
	return data, nil
}

// NewInterestAuction snapshots every reserve's accumulated backstop credit
// into a Lot sold for a single Bid of backstop-pot tokens, once the total
// crosses InterestAuctionThresholdBase in oracle base units (spec section
// 4.5's gulp_interest trigger).
func (p *Pool) NewInterestAuction(ctx context.Context, block uint32) (*auction.Data, error) {
	key := aucKey{auction.Interest, p.Config.PoolAddress.String()}
	if _, exists := p.auctions[key]; exists {
		return nil, auction.ErrAlreadyExists
	}
	lot := map[string]fixedmath.Amount{}
	totalBase := fixedmath.Zero()
	for _, r := range p.reserves {
		if r.BackstopCredit.IsZero() {
			continue
		}
		price, _, err := p.feed.GetPrice(ctx, r.Asset)
		if err != nil {
			return nil, err
		}
		base, err := fixedmath.MulFloor(r.BackstopCredit, price, r.Scalar.Int64())
		if err != nil {
			return nil, err
		}
		totalBase = totalBase.Add(base)
		lot[r.Asset.String()] = r.BackstopCredit
		r.BackstopCredit = fixedmath.Zero()
	}
	if totalBase.LT(InterestAuctionThresholdBase) {
		return nil, poolerrors.ErrInterestTooSmall
	}
	bid := map[string]fixedmath.Amount{"backstop": totalBase}
	data := auction.New(auction.Interest, p.Config.PoolAddress, bid, lot, block)
	p.auctions[key] = data
	metrics.Pool().ObserveAuctionCreated(kindName(auction.Interest))
	return data, nil
}

// FillAuction settles a percent fill of one auction at the current block.
// Bid entries flow from filler to the pool (UserLiq, burning the target's
// debt shares) or to the backstop (BadDebt/Interest, via Donate); Lot
// entries flow to filler from the pool's reserves (UserLiq, burning the
// target's collateral shares) or from the backstop's pot (BadDebt/Interest,
// via Draw).
func (p *Pool) FillAuction(ctx context.Context, kind auction.Kind, user, filler address.Address, percent uint8, now uint64, block uint32, target *position.Positions, ledger Ledger) (events.Event, error) {
	key := aucKey{kind, user.String()}
	data, ok := p.auctions[key]
	if !ok {
		return nil, auction.ErrNotFound
	}
	filledBid, filledLot, err := data.Fill(block, percent)
	if err != nil {
		return nil, err
	}

	for assetStr, amt := range filledBid {
		if !amt.IsPositive() {
			continue
		}
		if kind == auction.UserLiq {
			r, err := p.reserveByAssetStr(assetStr)
			if err != nil {
				return nil, err
			}
			if err := r.Accrue(now, p.Config.BstopRate); err != nil {
				return nil, err
			}
			asset, err := address.Decode(assetStr)
			if err != nil {
				return nil, err
			}
			if err := ledger.Transfer(ctx, asset, filler, p.Config.PoolAddress, amt); err != nil {
				return nil, err
			}
			dShares, err := fixedmath.AssetToShares(amt, r.DRate)
			if err != nil {
				return nil, err
			}
			if err := wrapPositionErr(target.AddLiability(r.Index, dShares.Neg(), p.Config.MaxPositions)); err != nil {
				return nil, err
			}
			r.DSupply = r.DSupply.Sub(dShares)
		} else {
			if err := p.backstop.Donate(p.Config.PoolAddress, p.Config.PoolAddress, amt); err != nil {
				return nil, err
			}
		}
	}

	for assetStr, amt := range filledLot {
		if !amt.IsPositive() {
			continue
		}
		if kind == auction.UserLiq {
			r, err := p.reserveByAssetStr(assetStr)
			if err != nil {
				return nil, err
			}
			asset, err := address.Decode(assetStr)
			if err != nil {
				return nil, err
			}
			if err := ledger.Transfer(ctx, asset, p.Config.PoolAddress, filler, amt); err != nil {
				return nil, err
			}
			bShares, err := fixedmath.AssetToSharesCeil(amt, r.BRate)
			if err != nil {
				return nil, err
			}
			if err := wrapPositionErr(target.AddCollateral(r.Index, bShares.Neg(), p.Config.MaxPositions)); err != nil {
				return nil, err
			}
			r.BSupply = r.BSupply.Sub(bShares)
		} else {
			if err := p.backstop.Draw(p.Config.PoolAddress, p.Config.PoolAddress, amt); err != nil {
				return nil, err
			}
		}
	}

	if data.IsExhausted() {
		delete(p.auctions, key)
	}
	metrics.Pool().ObserveAuctionFill(kindName(kind))
	if kind != auction.UserLiq {
		pot := p.backstop.PoolBalanceOf(p.Config.PoolAddress)
		metrics.Pool().SetBackstopPot(p.Config.PoolAddress.String(), float64(pot.Tokens.Int64()))
	}
	return events.FillAuction(kindName(kind), user.String(), filler.String(), percent), nil
}

// checkAndDeleteLiquidationAuction removes user's UserLiq auction if one
// exists and their health factor has recovered to at least 1.0.
func (p *Pool) checkAndDeleteLiquidationAuction(ctx context.Context, now uint64, user address.Address, positions *position.Positions) (events.Event, bool, error) {
	key := aucKey{auction.UserLiq, user.String()}
	if _, exists := p.auctions[key]; !exists {
		return nil, false, nil
	}
	snap, err := p.computeHealth(ctx, now, positions)
	if err != nil {
		return nil, false, err
	}
	healthy, err := snap.RequireHealthy()
	if err != nil {
		return nil, false, err
	}
	if !healthy {
		return nil, false, nil
	}
	delete(p.auctions, key)
	return events.DeleteLiquidationAuction(user.String()), true, nil
}
