// Package backstop implements the pool insurance layer: deposit-share
// accounting, the 21-day queued-withdrawal timelock, pool-authorized
// draw/donate, and the capped reward zone (spec section 4.6).
package backstop

import (
	"context"
	"math/big"

	"github.com/google/uuid"

	"isopool/core/address"
	poolerrors "isopool/core/errors"
	"isopool/fixedmath"
)

// Q4WDuration is the queued-withdrawal timelock: 21 days in seconds.
const Q4WDuration uint64 = 21 * 86_400

// DistributionCooldown bounds how recently a pool must have received an
// emissions distribution to be protected from reward-zone eviction.
const DistributionCooldown uint64 = 48 * 3_600

// Tokens names the two token addresses a backstop deployment is initialized
// with. Modeled as a struct rather than two positional parameters because
// one implementation in the reference source swaps their order — see
// DESIGN.md's "blnd_token/usdc_token parameter order" decision.
type Tokens struct {
	Blnd address.Address
	Usdc address.Address
}

// Q4W is one queued-withdrawal entry.
type Q4W struct {
	ID     uuid.UUID
	Amount fixedmath.Amount
	Expiry uint64
}

// UserBalance is a user's backstop position for one pool.
type UserBalance struct {
	Shares fixedmath.Amount
	Q4W    []Q4W
}

// PoolBalance is the aggregate backstop pot for one pool. TokensPerShareBlnd
// and TokensPerShareUsdc are derived, not stored: they report what one
// deposit share is currently worth in each of the backstop token's two
// underlying assets (spec section 6.2 pool_data).
type PoolBalance struct {
	Tokens fixedmath.Amount
	Shares fixedmath.Amount
	Q4W    fixedmath.Amount

	TokensPerShareBlnd fixedmath.Amount
	TokensPerShareUsdc fixedmath.Amount
}

// poolEmissionState is the per-pool lazy emissions-per-share index fed by
// GulpPoolEmissions (spec section 4.6/6.2); distinct from the per-reserve
// supply/borrow indices in native/emissions, which this module's gulp step
// never touches.
type poolEmissionState struct {
	Index fixedmath.Amount // FP7, cumulative backstop-emissions-per-share
}

// userEmissionState is the per-(user,pool) accrual derived from
// poolEmissionState, mirroring native/emissions.User but scoped to backstop
// deposit shares instead of reserve b/d-token shares.
type userEmissionState struct {
	Accrued   fixedmath.Amount
	LastIndex fixedmath.Amount
}

// Backstop holds every pool's insurance pot and the reward zone.
type Backstop struct {
	tokens      Tokens
	genesisTime uint64

	pools map[string]*PoolBalance
	users map[string]map[string]*UserBalance

	// badDebt tracks, per pool and per reserve asset, the d-token debt
	// reassigned from a liquidated user to this backstop rather than burned
	// (spec section 4.5's normal BadDebt path): pool -> asset -> dShares.
	badDebt map[string]map[string]fixedmath.Amount

	// blndPerLPToken/usdcPerLPToken are the current BLND/USDC entitlement of
	// one backstop LP token, supplied by an external collaborator (the
	// BLND/USDC pool this module does not itself implement; spec section 1
	// keeps AMM mechanics out of scope) via SetLPExchangeRates.
	blndPerLPToken fixedmath.Amount
	usdcPerLPToken fixedmath.Amount

	// undistributed holds emissions pulled in by GulpEmissions that have not
	// yet been allocated to a reward-zone pool by GulpPoolEmissions.
	undistributed fixedmath.Amount

	poolEmissions    map[string]*poolEmissionState
	userEmissions    map[string]map[string]*userEmissionState
	lastDistribution map[string]uint64

	RewardZone *RewardZone
}

// New constructs an empty backstop rooted at genesisTime (used by the
// reward-zone cap formula).
func New(tokens Tokens, genesisTime uint64, denyList []address.Address) *Backstop {
	return &Backstop{
		tokens:           tokens,
		genesisTime:      genesisTime,
		pools:            make(map[string]*PoolBalance),
		users:            make(map[string]map[string]*UserBalance),
		badDebt:          make(map[string]map[string]fixedmath.Amount),
		blndPerLPToken:   fixedmath.Zero(),
		usdcPerLPToken:   fixedmath.Zero(),
		undistributed:    fixedmath.Zero(),
		poolEmissions:    make(map[string]*poolEmissionState),
		userEmissions:    make(map[string]map[string]*userEmissionState),
		lastDistribution: make(map[string]uint64),
		RewardZone:       newRewardZone(denyList),
	}
}

// SetLPExchangeRates records the current BLND/USDC-per-LP-token rates
// (FP7) reported by pool_data. The backstop token's own AMM is an external
// collaborator out of this module's scope (spec section 1); callers refresh
// these rates the same way they refresh oracle prices.
func (b *Backstop) SetLPExchangeRates(blndPerLPToken, usdcPerLPToken fixedmath.Amount) {
	b.blndPerLPToken = blndPerLPToken
	b.usdcPerLPToken = usdcPerLPToken
}

func (b *Backstop) poolBalance(pool address.Address) *PoolBalance {
	key := pool.String()
	pb, ok := b.pools[key]
	if !ok {
		pb = &PoolBalance{Tokens: fixedmath.Zero(), Shares: fixedmath.Zero(), Q4W: fixedmath.Zero()}
		b.pools[key] = pb
	}
	return pb
}

func (b *Backstop) userBalance(pool, user address.Address) *UserBalance {
	poolKey := pool.String()
	byUser, ok := b.users[poolKey]
	if !ok {
		byUser = make(map[string]*UserBalance)
		b.users[poolKey] = byUser
	}
	ub, ok := byUser[user.String()]
	if !ok {
		ub = &UserBalance{Shares: fixedmath.Zero()}
		byUser[user.String()] = ub
	}
	return ub
}

// UserBalanceOf returns a read-only snapshot of a user's backstop position.
func (b *Backstop) UserBalanceOf(pool, user address.Address) UserBalance {
	ub := b.userBalance(pool, user)
	return UserBalance{Shares: ub.Shares, Q4W: append([]Q4W(nil), ub.Q4W...)}
}

// PoolBalanceOf returns a read-only snapshot of a pool's backstop pot,
// including the current per-share BLND/USDC entitlement.
func (b *Backstop) PoolBalanceOf(pool address.Address) PoolBalance {
	pb := *b.poolBalance(pool)
	pb.TokensPerShareBlnd, pb.TokensPerShareUsdc = b.tokensPerShare(pb)
	return pb
}

// tokensPerShare converts a pool's tokens/shares ratio into the BLND/USDC
// value of one deposit share, via the injected LP exchange rates.
func (b *Backstop) tokensPerShare(pb PoolBalance) (blnd, usdc fixedmath.Amount) {
	if !pb.Shares.IsPositive() {
		return fixedmath.Zero(), fixedmath.Zero()
	}
	perShareLP := fixedmath.MustDivFloor(pb.Tokens, pb.Shares, fixedmath.Denom7)
	blnd = fixedmath.MustMulFloor(perShareLP, b.blndPerLPToken, fixedmath.Denom7)
	usdc = fixedmath.MustMulFloor(perShareLP, b.usdcPerLPToken, fixedmath.Denom7)
	return blnd, usdc
}

// BadDebtOf returns the d-token debt reassigned to this backstop for pool's
// asset reserve, accumulated across every TransferBadDebt call that used the
// reassign-to-backstop path rather than the burn fallback.
func (b *Backstop) BadDebtOf(pool, asset address.Address) fixedmath.Amount {
	byAsset, ok := b.badDebt[pool.String()]
	if !ok {
		return fixedmath.Zero()
	}
	amt, ok := byAsset[asset.String()]
	if !ok {
		return fixedmath.Zero()
	}
	return amt
}

// ReassignDebt records dShares of asset's d-token debt as transferred from a
// liquidated user to pool's backstop: the reserve's d_supply is left
// untouched by the caller (debt total conserved, per spec section 4.5/8 S4),
// and the backstop is now the shares' notional holder of record.
func (b *Backstop) ReassignDebt(pool, asset address.Address, dShares fixedmath.Amount) {
	poolKey := pool.String()
	byAsset, ok := b.badDebt[poolKey]
	if !ok {
		byAsset = make(map[string]fixedmath.Amount)
		b.badDebt[poolKey] = byAsset
	}
	existing, ok := byAsset[asset.String()]
	if !ok {
		existing = fixedmath.Zero()
	}
	byAsset[asset.String()] = existing.Add(dShares)
}

// Deposit mints shares proportional to the pool's existing tokens/shares
// ratio (or 1:1 if the pot is empty), flooring per the protocol-favoring
// convention.
func (b *Backstop) Deposit(pool, from address.Address, amount fixedmath.Amount) (fixedmath.Amount, error) {
	if amount.IsNegative() {
		return fixedmath.Amount{}, poolerrors.ErrNegativeAmount
	}
	pb := b.poolBalance(pool)
	var shares fixedmath.Amount
	if pb.Shares.IsZero() {
		shares = amount
	} else {
		s, err := fixedmath.MulFloor(amount, pb.Shares, denomInt64(pb.Tokens))
		if err != nil {
			return fixedmath.Amount{}, err
		}
		shares = s
	}
	ub := b.userBalance(pool, from)
	b.accrueUserEmissions(pool, from, ub.Shares)
	pb.Tokens = pb.Tokens.Add(amount)
	pb.Shares = pb.Shares.Add(shares)
	ub.Shares = ub.Shares.Add(shares)
	return shares, nil
}

// denomInt64 guards the deposit/withdraw ratio math against a zero-token,
// nonzero-share pot, which should never occur but would otherwise divide by
// zero if it somehow did.
func denomInt64(tokens fixedmath.Amount) int64 {
	if tokens.IsZero() {
		return 1
	}
	return tokens.Int64()
}

// freeShares returns a user's shares not already queued for withdrawal.
func freeShares(ub *UserBalance) fixedmath.Amount {
	queued := fixedmath.Zero()
	for _, q := range ub.Q4W {
		queued = queued.Add(q.Amount)
	}
	return ub.Shares.Sub(queued)
}

// QueueWithdrawal appends a new timelocked withdrawal request for amountShares.
func (b *Backstop) QueueWithdrawal(pool, from address.Address, amountShares fixedmath.Amount, now uint64) (Q4W, error) {
	if amountShares.IsNegative() || amountShares.IsZero() {
		return Q4W{}, poolerrors.ErrNegativeAmount
	}
	ub := b.userBalance(pool, from)
	if amountShares.GT(freeShares(ub)) {
		return Q4W{}, poolerrors.ErrBadRequest
	}
	entry := Q4W{ID: uuid.New(), Amount: amountShares, Expiry: now + Q4WDuration}
	ub.Q4W = append(ub.Q4W, entry)
	pb := b.poolBalance(pool)
	pb.Q4W = pb.Q4W.Add(amountShares)
	return entry, nil
}

// DequeueWithdrawal cancels queued entries newest-first until amountShares
// has been freed.
func (b *Backstop) DequeueWithdrawal(pool, from address.Address, amountShares fixedmath.Amount) error {
	if amountShares.IsNegative() || amountShares.IsZero() {
		return poolerrors.ErrNegativeAmount
	}
	ub := b.userBalance(pool, from)
	remaining := amountShares
	for i := len(ub.Q4W) - 1; i >= 0 && remaining.IsPositive(); i-- {
		entry := ub.Q4W[i]
		if entry.Amount.LTE(remaining) {
			remaining = remaining.Sub(entry.Amount)
			ub.Q4W = append(ub.Q4W[:i], ub.Q4W[i+1:]...)
			b.poolBalance(pool).Q4W = b.poolBalance(pool).Q4W.Sub(entry.Amount)
			continue
		}
		entry.Amount = entry.Amount.Sub(remaining)
		ub.Q4W[i] = entry
		b.poolBalance(pool).Q4W = b.poolBalance(pool).Q4W.Sub(remaining)
		remaining = fixedmath.Zero()
	}
	if remaining.IsPositive() {
		return poolerrors.ErrBadRequest
	}
	return nil
}

// Withdraw burns amountShares of matured (expiry <= now) queued entries,
// oldest first, and returns the proportional token amount.
func (b *Backstop) Withdraw(pool, from address.Address, amountShares fixedmath.Amount, now uint64) (fixedmath.Amount, error) {
	if amountShares.IsNegative() || amountShares.IsZero() {
		return fixedmath.Amount{}, poolerrors.ErrNegativeAmount
	}
	ub := b.userBalance(pool, from)

	matured := fixedmath.Zero()
	for _, q := range ub.Q4W {
		if q.Expiry <= now {
			matured = matured.Add(q.Amount)
		}
	}
	if amountShares.GT(matured) {
		return fixedmath.Amount{}, poolerrors.ErrNotExpired
	}

	remaining := amountShares
	kept := ub.Q4W[:0]
	for _, q := range ub.Q4W {
		if remaining.IsZero() || q.Expiry > now {
			kept = append(kept, q)
			continue
		}
		if q.Amount.LTE(remaining) {
			remaining = remaining.Sub(q.Amount)
			continue
		}
		q.Amount = q.Amount.Sub(remaining)
		remaining = fixedmath.Zero()
		kept = append(kept, q)
	}
	ub.Q4W = kept

	pb := b.poolBalance(pool)
	tokensOut, err := fixedmath.MulFloor(amountShares, pb.Tokens, denomInt64(pb.Shares))
	if err != nil {
		return fixedmath.Amount{}, err
	}
	b.accrueUserEmissions(pool, from, ub.Shares)
	ub.Shares = ub.Shares.Sub(amountShares)
	pb.Shares = pb.Shares.Sub(amountShares)
	pb.Q4W = pb.Q4W.Sub(amountShares)
	pb.Tokens = pb.Tokens.Sub(tokensOut)
	return tokensOut, nil
}

// Draw removes amount tokens from pool's pot; the token transfer to a
// recipient is left to the caller, as Draw takes no recipient. caller
// must equal pool (spec section 4.6/5: cross-module authorization is by
// address identity, never an in-memory pointer).
func (b *Backstop) Draw(pool, caller address.Address, amount fixedmath.Amount) error {
	if !caller.Equal(pool) {
		return poolerrors.ErrNotPool
	}
	pb := b.poolBalance(pool)
	if amount.GT(pb.Tokens) {
		return poolerrors.ErrNotEnoughIdleFunds
	}
	pb.Tokens = pb.Tokens.Sub(amount)
	return nil
}

// Donate adds amount tokens to pool's pot without minting shares; caller
// must equal pool.
func (b *Backstop) Donate(pool, caller address.Address, amount fixedmath.Amount) error {
	if !caller.Equal(pool) {
		return poolerrors.ErrNotPool
	}
	if amount.IsNegative() {
		return poolerrors.ErrNegativeAmount
	}
	b.poolBalance(pool).Tokens = b.poolBalance(pool).Tokens.Add(amount)
	return nil
}

// Emitter is the out-of-scope reward-token emission schedule (spec section
// 1's "emitter/distribution schedule source"); GulpEmissions pulls whatever
// it has newly released since the last call.
type Emitter interface {
	Emit(ctx context.Context, now uint64) (fixedmath.Amount, error)
}

// GulpEmissions pulls newly-emitted reward tokens from emitter into this
// backstop's undistributed pot, independent of any single pool's
// reward-zone membership (spec section 6.2 gulp_emissions).
func (b *Backstop) GulpEmissions(ctx context.Context, emitter Emitter, now uint64) (fixedmath.Amount, error) {
	amount, err := emitter.Emit(ctx, now)
	if err != nil {
		return fixedmath.Amount{}, err
	}
	if amount.IsNegative() {
		return fixedmath.Amount{}, poolerrors.ErrNegativeAmount
	}
	b.undistributed = b.undistributed.Add(amount)
	return amount, nil
}

func (b *Backstop) poolEmissionState(pool address.Address) *poolEmissionState {
	key := pool.String()
	st, ok := b.poolEmissions[key]
	if !ok {
		st = &poolEmissionState{Index: fixedmath.Zero()}
		b.poolEmissions[key] = st
	}
	return st
}

func (b *Backstop) userEmissionStateFor(pool, user address.Address) *userEmissionState {
	poolKey := pool.String()
	byUser, ok := b.userEmissions[poolKey]
	if !ok {
		byUser = make(map[string]*userEmissionState)
		b.userEmissions[poolKey] = byUser
	}
	st, ok := byUser[user.String()]
	if !ok {
		st = &userEmissionState{Accrued: fixedmath.Zero(), LastIndex: b.poolEmissionState(pool).Index}
		byUser[user.String()] = st
	}
	return st
}

// accrueUserEmissions advances user's accrued backstop-emission balance for
// pool using their share total immediately before the mutation in progress,
// mirroring native/emissions.User.Accrue's lazy-index convention.
func (b *Backstop) accrueUserEmissions(pool, user address.Address, sharesBefore fixedmath.Amount) {
	index := b.poolEmissionState(pool).Index
	ue := b.userEmissionStateFor(pool, user)
	delta := index.Sub(ue.LastIndex)
	if delta.IsPositive() && sharesBefore.IsPositive() {
		ue.Accrued = ue.Accrued.Add(fixedmath.MustMulFloor(sharesBefore, delta, fixedmath.Denom7))
	}
	ue.LastIndex = index
}

// GulpPoolEmissions distributes a share of the backstop's undistributed
// emissions to one reward-zone pool, weighted by that pool's share of total
// reward-zone backstop deposits, and folds the result into pool's lazy
// per-share index (spec section 6.2 gulp_pool_emissions).
func (b *Backstop) GulpPoolEmissions(pool address.Address, now uint64) (fixedmath.Amount, error) {
	if !b.RewardZone.contains(pool) {
		return fixedmath.Amount{}, poolerrors.ErrBadRequest
	}
	totalWeighted := fixedmath.Zero()
	for _, m := range b.RewardZone.members {
		totalWeighted = totalWeighted.Add(b.poolBalance(m).Tokens)
	}
	if !totalWeighted.IsPositive() || !b.undistributed.IsPositive() {
		return fixedmath.Zero(), nil
	}
	pb := b.poolBalance(pool)
	share, err := fixedmath.MulFloor(b.undistributed, pb.Tokens, denomInt64(totalWeighted))
	if err != nil {
		return fixedmath.Amount{}, err
	}
	if !share.IsPositive() {
		return fixedmath.Zero(), nil
	}
	b.undistributed = b.undistributed.Sub(share)
	b.lastDistribution[pool.String()] = now
	if pb.Shares.IsPositive() {
		inc, err := fixedmath.DivFloor(share, pb.Shares, fixedmath.Denom7)
		if err != nil {
			return fixedmath.Amount{}, err
		}
		st := b.poolEmissionState(pool)
		st.Index = st.Index.Add(inc)
	}
	return share, nil
}

// LastDistribution reports the last block time GulpPoolEmissions ran for
// pool, 0 if never; callers use it to satisfy AddReward's distribution-
// cooldown check.
func (b *Backstop) LastDistribution(pool address.Address) uint64 {
	return b.lastDistribution[pool.String()]
}

// Claim settles from's accrued backstop emissions across every listed pool
// in one call and returns the total (spec section 6.2 claim); moving that
// total to the `to` recipient is the caller's ledger concern, out of this
// module's scope (spec section 1).
func (b *Backstop) Claim(from address.Address, pools []address.Address, to address.Address) (fixedmath.Amount, error) {
	_ = to
	total := fixedmath.Zero()
	for _, pool := range pools {
		ub := b.userBalance(pool, from)
		b.accrueUserEmissions(pool, from, ub.Shares)
		ue := b.userEmissionStateFor(pool, from)
		total = total.Add(ue.Accrued)
		ue.Accrued = fixedmath.Zero()
	}
	return total, nil
}

// RewardZone is the capped, ordered set of pools eligible for emissions.
type RewardZone struct {
	members  []address.Address
	denyList map[string]struct{}
}

func newRewardZone(denyList []address.Address) *RewardZone {
	deny := make(map[string]struct{}, len(denyList))
	for _, a := range denyList {
		deny[a.String()] = struct{}{}
	}
	return &RewardZone{denyList: deny}
}

// Cap computes floor(sqrt(years_since_genesis*365)*10), minimum 10, using
// integer arithmetic throughout (no floating point).
func (b *Backstop) Cap(now uint64) uint32 {
	if now <= b.genesisTime {
		return 10
	}
	years := (now - b.genesisTime) / secondsPerYear
	days := new(big.Int).Mul(big.NewInt(int64(years)), big.NewInt(365))
	// floor(sqrt(days*100)) == floor(sqrt(days)*10): the *10 is applied
	// before flooring, not after.
	cap := new(big.Int).Sqrt(new(big.Int).Mul(days, big.NewInt(100)))
	if cap.IsUint64() && cap.Uint64() > 10 {
		return uint32(cap.Uint64())
	}
	return 10
}

const secondsPerYear = 31_536_000

// Members returns the current reward-zone membership.
func (b *RewardZone) Members() []address.Address {
	return append([]address.Address(nil), b.members...)
}

func (b *RewardZone) contains(a address.Address) bool {
	for _, m := range b.members {
		if m.Equal(a) {
			return true
		}
	}
	return false
}

// AddReward admits toAdd into the reward zone if there is spare capacity;
// otherwise it swaps out toRemove, but only when toAdd's balance strictly
// exceeds toRemove's and toRemove has not received a distribution in the
// last DistributionCooldown seconds (spec section 4.6). toRemove on the
// deny list can never be swapped back in as a future toAdd.
func (b *Backstop) AddReward(toAdd, toRemove address.Address, now uint64, balanceOf func(address.Address) fixedmath.Amount, lastDistribution func(address.Address) uint64) error {
	if _, denied := b.RewardZone.denyList[toAdd.String()]; denied {
		return poolerrors.ErrBadRequest
	}
	if b.RewardZone.contains(toAdd) {
		return nil
	}
	if uint32(len(b.RewardZone.members)) < b.Cap(now) {
		b.RewardZone.members = append(b.RewardZone.members, toAdd)
		return nil
	}
	if !b.RewardZone.contains(toRemove) {
		return poolerrors.ErrBadRequest
	}
	if balanceOf(toAdd).LTE(balanceOf(toRemove)) {
		return poolerrors.ErrBadRequest
	}
	last := lastDistribution(toRemove)
	if now-last < DistributionCooldown {
		return poolerrors.ErrBadRequest
	}
	for i, m := range b.RewardZone.members {
		if m.Equal(toRemove) {
			b.RewardZone.members[i] = toAdd
			break
		}
	}
	return nil
}
