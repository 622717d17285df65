package backstop

import (
	"context"
	"testing"

	"isopool/core/address"
	poolerrors "isopool/core/errors"
	"isopool/fixedmath"
)

// fakeEmitter is a fixed-amount stand-in for the out-of-scope reward-token
// emission schedule (spec section 1), used to drive GulpEmissions in tests.
type fakeEmitter struct {
	amount fixedmath.Amount
}

func (f fakeEmitter) Emit(ctx context.Context, now uint64) (fixedmath.Amount, error) {
	return f.amount, nil
}

func poolAddr() address.Address {
	raw := make([]byte, 20)
	raw[0] = 0x10
	return address.MustNew(address.PoolPrefix, raw)
}

func userAddr() address.Address {
	raw := make([]byte, 20)
	raw[0] = 0x20
	return address.MustNew(address.UserPrefix, raw)
}

func newTestBackstop() *Backstop {
	return New(Tokens{}, 0, nil)
}

// S5 — backstop queue: deposit 400k, queue 100k at t=0, withdraw fails
// before expiry and succeeds at expiry.
func TestQueueWithdrawalTimelock(t *testing.T) {
	b := newTestBackstop()
	pool, user := poolAddr(), userAddr()

	if _, err := b.Deposit(pool, user, fixedmath.NewAmount(400_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, err := b.QueueWithdrawal(pool, user, fixedmath.NewAmount(100_000), 0); err != nil {
		t.Fatalf("QueueWithdrawal: %v", err)
	}

	if _, err := b.Withdraw(pool, user, fixedmath.NewAmount(100_000), Q4WDuration-1); err != poolerrors.ErrNotExpired {
		t.Fatalf("want ErrNotExpired, got %v", err)
	}

	tokensOut, err := b.Withdraw(pool, user, fixedmath.NewAmount(100_000), Q4WDuration)
	if err != nil {
		t.Fatalf("Withdraw at maturity: %v", err)
	}
	if tokensOut.Int64() != 100_000 {
		t.Fatalf("tokensOut = %s, want 100_000", tokensOut)
	}
}

func TestDepositMintsOneToOneWhenPotEmpty(t *testing.T) {
	b := newTestBackstop()
	shares, err := b.Deposit(poolAddr(), userAddr(), fixedmath.NewAmount(1_000))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if shares.Int64() != 1_000 {
		t.Fatalf("shares = %s, want 1000", shares)
	}
}

func TestDrawRequiresPoolCaller(t *testing.T) {
	b := newTestBackstop()
	pool := poolAddr()
	b.Deposit(pool, userAddr(), fixedmath.NewAmount(500))
	if err := b.Draw(pool, userAddr(), fixedmath.NewAmount(100)); err != poolerrors.ErrNotPool {
		t.Fatalf("want ErrNotPool, got %v", err)
	}
	if err := b.Draw(pool, pool, fixedmath.NewAmount(100)); err != nil {
		t.Fatalf("Draw by pool: %v", err)
	}
}

func TestDequeueWithdrawalFreesShares(t *testing.T) {
	b := newTestBackstop()
	pool, user := poolAddr(), userAddr()
	b.Deposit(pool, user, fixedmath.NewAmount(1000))
	b.QueueWithdrawal(pool, user, fixedmath.NewAmount(400), 0)
	if err := b.DequeueWithdrawal(pool, user, fixedmath.NewAmount(400)); err != nil {
		t.Fatalf("DequeueWithdrawal: %v", err)
	}
	ub := b.UserBalanceOf(pool, user)
	if len(ub.Q4W) != 0 {
		t.Fatalf("expected queue emptied, got %v", ub.Q4W)
	}
}

func TestRewardZoneCapMinimumTen(t *testing.T) {
	b := newTestBackstop()
	if cap := b.Cap(0); cap != 10 {
		t.Fatalf("cap at genesis = %d, want 10", cap)
	}
}

// Invariant 5: sum_users(shares[p]) = PoolBalance.shares[p] and
// sum_q4w_entries(p) = PoolBalance.q4w[p] across several depositors, one of
// whom has queued part of their position for withdrawal.
func TestPoolBalanceMatchesSumOfUserBalances(t *testing.T) {
	b := newTestBackstop()
	pool := poolAddr()

	userA := userAddr()
	userBRaw := make([]byte, 20)
	userBRaw[0] = 0x21
	userB := address.MustNew(address.UserPrefix, userBRaw)

	if _, err := b.Deposit(pool, userA, fixedmath.NewAmount(1_000)); err != nil {
		t.Fatalf("Deposit A: %v", err)
	}
	if _, err := b.Deposit(pool, userB, fixedmath.NewAmount(500)); err != nil {
		t.Fatalf("Deposit B: %v", err)
	}
	if _, err := b.QueueWithdrawal(pool, userA, fixedmath.NewAmount(200), 0); err != nil {
		t.Fatalf("QueueWithdrawal: %v", err)
	}

	wantShares := fixedmath.NewAmount(1_000).Add(fixedmath.NewAmount(500))
	wantQ4W := fixedmath.NewAmount(200)

	sumShares := b.UserBalanceOf(pool, userA).Shares.Add(b.UserBalanceOf(pool, userB).Shares)
	sumQ4W := fixedmath.Zero()
	for _, q := range b.UserBalanceOf(pool, userA).Q4W {
		sumQ4W = sumQ4W.Add(q.Amount)
	}
	for _, q := range b.UserBalanceOf(pool, userB).Q4W {
		sumQ4W = sumQ4W.Add(q.Amount)
	}

	pb := b.PoolBalanceOf(pool)
	if !sumShares.Equal(wantShares) || !pb.Shares.Equal(wantShares) {
		t.Fatalf("shares mismatch: sum=%s pool=%s want=%s", sumShares, pb.Shares, wantShares)
	}
	if !sumQ4W.Equal(wantQ4W) || !pb.Q4W.Equal(wantQ4W) {
		t.Fatalf("q4w mismatch: sum=%s pool=%s want=%s", sumQ4W, pb.Q4W, wantQ4W)
	}
}

func addToRewardZone(t *testing.T, b *Backstop, pool address.Address) {
	t.Helper()
	zeroBalance := func(address.Address) fixedmath.Amount { return fixedmath.Zero() }
	zeroTime := func(address.Address) uint64 { return 0 }
	if err := b.AddReward(pool, address.Address{}, 0, zeroBalance, zeroTime); err != nil {
		t.Fatalf("AddReward: %v", err)
	}
}

// gulp_emissions pulls the emitter's newly-released amount into the
// backstop's undistributed pot.
func TestGulpEmissionsAccumulatesUndistributed(t *testing.T) {
	b := newTestBackstop()
	amt, err := b.GulpEmissions(context.Background(), fakeEmitter{amount: fixedmath.NewAmount(1_000)}, 0)
	if err != nil {
		t.Fatalf("GulpEmissions: %v", err)
	}
	if amt.Int64() != 1_000 {
		t.Fatalf("amt = %s, want 1000", amt)
	}
	if b.undistributed.Int64() != 1_000 {
		t.Fatalf("undistributed = %s, want 1000", b.undistributed)
	}
}

// gulp_pool_emissions distributes the undistributed pot to a reward-zone
// pool in proportion to its share of reward-zone-weighted backstop
// deposits, and the distributed amount becomes claimable by depositors.
func TestGulpPoolEmissionsDistributesProportionally(t *testing.T) {
	b := newTestBackstop()
	poolA, poolB := poolAddr(), address.MustNew(address.PoolPrefix, append([]byte{0x30}, make([]byte, 19)...))
	user := userAddr()

	if _, err := b.Deposit(poolA, user, fixedmath.NewAmount(300)); err != nil {
		t.Fatalf("deposit A: %v", err)
	}
	if _, err := b.Deposit(poolB, user, fixedmath.NewAmount(700)); err != nil {
		t.Fatalf("deposit B: %v", err)
	}
	addToRewardZone(t, b, poolA)
	addToRewardZone(t, b, poolB)

	if _, err := b.GulpEmissions(context.Background(), fakeEmitter{amount: fixedmath.NewAmount(1_000)}, 0); err != nil {
		t.Fatalf("GulpEmissions: %v", err)
	}

	gotA, err := b.GulpPoolEmissions(poolA, 100)
	if err != nil {
		t.Fatalf("GulpPoolEmissions A: %v", err)
	}
	if gotA.Int64() != 300 {
		t.Fatalf("poolA share = %s, want 300 (30%% of 1000)", gotA)
	}
	if b.LastDistribution(poolA) != 100 {
		t.Fatalf("LastDistribution(poolA) = %d, want 100", b.LastDistribution(poolA))
	}

	// poolA's gulp already spent 300 of the undistributed pot, so poolB's
	// share is 70% of what remains (700), not 70% of the original 1000.
	gotB, err := b.GulpPoolEmissions(poolB, 100)
	if err != nil {
		t.Fatalf("GulpPoolEmissions B: %v", err)
	}
	if gotB.Int64() != 490 {
		t.Fatalf("poolB share = %s, want 490 (70%% of the 700 left undistributed)", gotB)
	}

	claimed, err := b.Claim(user, []address.Address{poolA, poolB}, user)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed.Int64() != 790 {
		t.Fatalf("claimed = %s, want 790 (sole depositor of both pools)", claimed)
	}

	// A second claim with nothing newly gulped returns zero.
	again, err := b.Claim(user, []address.Address{poolA, poolB}, user)
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if !again.IsZero() {
		t.Fatalf("second claim = %s, want 0", again)
	}
}

// gulp_pool_emissions rejects a pool outside the reward zone.
func TestGulpPoolEmissionsRejectsNonMember(t *testing.T) {
	b := newTestBackstop()
	if _, err := b.GulpPoolEmissions(poolAddr(), 0); err != poolerrors.ErrBadRequest {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

// pool_data reports tokens_per_share_blnd/usdc as the deposit-share's
// current entitlement to each underlying token, via the injected LP
// exchange rate.
func TestPoolBalanceReportsTokensPerShare(t *testing.T) {
	b := newTestBackstop()
	pool := poolAddr()
	if _, err := b.Deposit(pool, userAddr(), fixedmath.NewAmount(10_000_000)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	// One LP token is worth 0.4 BLND and 0.6 USDC.
	b.SetLPExchangeRates(fixedmath.NewAmount(4_000_000), fixedmath.NewAmount(6_000_000))

	pb := b.PoolBalanceOf(pool)
	if pb.TokensPerShareBlnd.Int64() != 4_000_000 {
		t.Fatalf("TokensPerShareBlnd = %s, want 4000000 (1:1 tokens/shares * 0.4)", pb.TokensPerShareBlnd)
	}
	if pb.TokensPerShareUsdc.Int64() != 6_000_000 {
		t.Fatalf("TokensPerShareUsdc = %s, want 6000000 (1:1 tokens/shares * 0.6)", pb.TokensPerShareUsdc)
	}
}
