package automation

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"rangeKeeper/internal/fixedpoint"
	"rangeKeeper/internal/lifecycle"
	"rangeKeeper/internal/oracle"
	"rangeKeeper/internal/pool"
	"rangeKeeper/internal/pool/mempool"
	"rangeKeeper/internal/storage"
)

var (
	autoToken0 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	autoToken1 = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type engineFixture struct {
	backend *mempool.Backend
	manager *lifecycle.Manager
	store   *storage.MemStore
	source  *oracle.Static
	engine  *Engine
	clock   *fakeClock
	ref     pool.Ref
	owner   common.Address
	key     *ecdsa.PrivateKey
	id      uint64
}

// newEngineFixture builds an engine over an in-process pool at tick 0
// with one open position on [-1000, 1000] owned by a generated key. Both
// oracle prices start at one base currency unit, consistent with the
// pool's 1:1 price.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	ctx := context.Background()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	owner := crypto.PubkeyToAddress(key.PublicKey)

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	backend := mempool.New()
	backend.SetClock(clock.Now)

	ref := pool.Ref{Token0: autoToken0, Token1: autoToken1, Fee: 0, TickSpacing: 10}
	if err := backend.CreatePool(ref, new(big.Int).Set(fixedpoint.Q96)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	seed, _ := new(big.Int).SetString("1000000000000000000", 10)
	if err := backend.ModifyLiquidity(ctx, ref, pool.Range{TickLower: -6000, TickUpper: 6000}, seed); err != nil {
		t.Fatalf("seed liquidity: %v", err)
	}

	source := oracle.NewStatic()
	source.Set(autoToken0, big.NewInt(100_000_000))
	source.Set(autoToken1, big.NewInt(100_000_000))

	store := storage.NewMemStore()
	manager := lifecycle.New(backend, lifecycle.NewMemRegistry(), nil, nil)
	engine := NewEngine(manager, source, store, Config{Name: "rangeKeeper", Version: "1"}, nil)
	engine.SetClock(clock.Now)

	res, err := manager.Open(ctx, lifecycle.OpenParams{
		Pool:      ref,
		Range:     pool.Range{TickLower: -1000, TickUpper: 1000},
		Amount0:   big.NewInt(1_000_000),
		Amount1:   big.NewInt(1_000_000),
		Recipient: owner,
		RefundTo:  owner,
	})
	if err != nil {
		t.Fatalf("open position: %v", err)
	}

	return &engineFixture{
		backend: backend,
		manager: manager,
		store:   store,
		source:  source,
		engine:  engine,
		clock:   clock,
		ref:     ref,
		owner:   owner,
		key:     key,
		id:      res.PositionID,
	}
}

func (f *engineFixture) sign(t *testing.T, digest common.Hash) []byte {
	t.Helper()
	sig, err := crypto.Sign(digest.Bytes(), f.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func TestNeedsClaimFeesZeroedRequestNeverFires(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	fired, err := f.engine.NeedsClaimFees(ctx, ClaimRequest{PositionID: f.id})
	if err != nil {
		t.Fatalf("NeedsClaimFees: %v", err)
	}
	if fired {
		t.Fatalf("zeroed claim request fired")
	}

	if _, err := f.engine.NeedsClaimFees(ctx, ClaimRequest{PositionID: 999}); !errors.Is(err, lifecycle.ErrPositionNotFound) {
		t.Fatalf("unknown position error = %v, want ErrPositionNotFound", err)
	}
}

func TestNeedsClaimFeesTimeCondition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	start := uint64(f.clock.Now().Unix())

	req := ClaimRequest{PositionID: f.id, Interval: 3600, InitialTimestamp: start, Nonce: 1}

	fired, err := f.engine.NeedsClaimFees(ctx, req)
	if err != nil {
		t.Fatalf("NeedsClaimFees: %v", err)
	}
	if fired {
		t.Fatalf("fired before the interval elapsed")
	}

	f.clock.Advance(time.Hour)
	fired, err = f.engine.NeedsClaimFees(ctx, req)
	if err != nil {
		t.Fatalf("NeedsClaimFees: %v", err)
	}
	if !fired {
		t.Fatalf("did not fire once the interval elapsed")
	}
}

func TestNeedsClaimFeesAmountCondition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	req := ClaimRequest{PositionID: f.id, MinAmountUSD: big.NewInt(10), Nonce: 1}

	fired, err := f.engine.NeedsClaimFees(ctx, req)
	if err != nil {
		t.Fatalf("NeedsClaimFees: %v", err)
	}
	if fired {
		t.Fatalf("fired with no fees accrued")
	}

	fee, _ := new(big.Int).SetString("1000000000000", 10)
	if err := f.backend.AccrueFees(f.ref, fee, fee); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	fired, err = f.engine.NeedsClaimFees(ctx, req)
	if err != nil {
		t.Fatalf("NeedsClaimFees: %v", err)
	}
	if !fired {
		t.Fatalf("did not fire with fees worth more than the minimum")
	}
}

func TestExecuteClaimConsumesDigest(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	start := uint64(f.clock.Now().Unix())

	req := ClaimRequest{
		PositionID:       f.id,
		Interval:         3600,
		InitialTimestamp: start - 3600,
		Recipient:        f.owner,
		Nonce:            1,
	}
	sig := f.sign(t, req.Digest(f.engine.Domain()))

	if _, err := f.engine.ExecuteClaim(ctx, req, sig); err != nil {
		t.Fatalf("ExecuteClaim: %v", err)
	}
	actions := f.store.Actions()
	if len(actions) != 1 || actions[0].Action != "claim" || actions[0].PositionID != f.id {
		t.Fatalf("unexpected audit trail: %+v", actions)
	}

	if _, err := f.engine.ExecuteClaim(ctx, req, sig); !errors.Is(err, ErrDigestUsed) {
		t.Fatalf("replay error = %v, want ErrDigestUsed", err)
	}
}

func TestExecuteClaimResetsTimeCondition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	start := uint64(f.clock.Now().Unix())

	req := ClaimRequest{
		PositionID:       f.id,
		Interval:         3600,
		InitialTimestamp: start - 3600,
		Recipient:        f.owner,
		Nonce:            1,
	}
	if _, err := f.engine.ExecuteClaim(ctx, req, f.sign(t, req.Digest(f.engine.Domain()))); err != nil {
		t.Fatalf("ExecuteClaim: %v", err)
	}

	next := req
	next.Nonce = 2
	fired, err := f.engine.NeedsClaimFees(ctx, next)
	if err != nil {
		t.Fatalf("NeedsClaimFees: %v", err)
	}
	if fired {
		t.Fatalf("time condition fired immediately after a claim")
	}

	f.clock.Advance(time.Hour)
	fired, err = f.engine.NeedsClaimFees(ctx, next)
	if err != nil {
		t.Fatalf("NeedsClaimFees: %v", err)
	}
	if !fired {
		t.Fatalf("time condition did not re-arm one interval after the claim")
	}
}

func TestExecuteClaimRejectsNonOwner(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	intruder, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	req := ClaimRequest{PositionID: f.id, Interval: 1, Recipient: f.owner, Nonce: 1}
	sig, err := crypto.Sign(req.Digest(f.engine.Domain()).Bytes(), intruder)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := f.engine.ExecuteClaim(ctx, req, sig); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("error = %v, want ErrNotOwner", err)
	}
}

func TestNeedsClose(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	current := new(big.Int).Set(fixedpoint.Q96)

	cases := []struct {
		name    string
		trigger *big.Int
		below   bool
		want    bool
	}{
		{"nil trigger", nil, true, false},
		{"stop loss at current", current, true, true},
		{"stop loss below current", new(big.Int).Sub(current, big.NewInt(1)), true, false},
		{"take profit at current", current, false, true},
		{"take profit above current", new(big.Int).Add(current, big.NewInt(1)), false, false},
	}
	for _, tc := range cases {
		got, err := f.engine.NeedsClose(ctx, CloseRequest{
			PositionID:          f.id,
			TriggerSqrtPriceX96: tc.trigger,
			BelowOrAbove:        tc.below,
		})
		if err != nil {
			t.Fatalf("%s: NeedsClose: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: fired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExecuteCloseWithdrawsPosition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	req := CloseRequest{
		PositionID:          f.id,
		TriggerSqrtPriceX96: new(big.Int).Set(fixedpoint.Q96),
		BelowOrAbove:        true,
		Recipient:           f.owner,
		Nonce:               1,
	}
	res, err := f.engine.ExecuteClose(ctx, req, f.sign(t, req.Digest(f.engine.Domain())))
	if err != nil {
		t.Fatalf("ExecuteClose: %v", err)
	}
	if res.Amount0.Sign() <= 0 || res.Amount1.Sign() <= 0 {
		t.Fatalf("close returned nothing: %s / %s", res.Amount0, res.Amount1)
	}

	position, err := f.manager.Registry().Get(ctx, f.id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if position.Liquidity.Sign() != 0 {
		t.Fatalf("position still holds liquidity %s after close", position.Liquidity)
	}
}

func TestNeedsRebalance(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	current := new(big.Int).Set(fixedpoint.Q96)

	cases := []struct {
		name         string
		lower, upper *big.Int
		want         bool
	}{
		{"nil bounds", nil, nil, false},
		{"whole price domain", new(big.Int).Set(fixedpoint.MinSqrtRatio), new(big.Int).Set(fixedpoint.MaxSqrtRatio), false},
		{"inside band", new(big.Int).Sub(current, big.NewInt(1)), new(big.Int).Add(current, big.NewInt(1)), false},
		{"below band", new(big.Int).Add(current, big.NewInt(1)), new(big.Int).Lsh(current, 1), true},
		{"above band", new(big.Int).Rsh(current, 1), new(big.Int).Sub(current, big.NewInt(1)), true},
	}
	for _, tc := range cases {
		got, err := f.engine.NeedsRebalance(ctx, RebalanceRequest{
			PositionID:      f.id,
			TriggerLowerX96: tc.lower,
			TriggerUpperX96: tc.upper,
		})
		if err != nil {
			t.Fatalf("%s: NeedsRebalance: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: fired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExecuteRebalanceRecentresPosition(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	req := RebalanceRequest{
		PositionID:      f.id,
		TriggerLowerX96: new(big.Int).Add(fixedpoint.Q96, big.NewInt(1)),
		TriggerUpperX96: new(big.Int).Lsh(fixedpoint.Q96, 1),
		Nonce:           1,
	}
	res, err := f.engine.ExecuteRebalance(ctx, req, f.sign(t, req.Digest(f.engine.Domain())))
	if err != nil {
		t.Fatalf("ExecuteRebalance: %v", err)
	}
	if res.PositionID == f.id {
		t.Fatalf("rebalance reused the old position id")
	}

	moved, err := f.manager.Registry().Get(ctx, res.PositionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Current tick is 0 and the original width is 2000, so the
	// recentred range snaps back to the same bounds.
	if moved.Range.TickLower != -1000 || moved.Range.TickUpper != 1000 {
		t.Fatalf("recentred range = [%d, %d], want [-1000, 1000]", moved.Range.TickLower, moved.Range.TickUpper)
	}

	old, err := f.manager.Registry().Get(ctx, f.id)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if old.Liquidity.Sign() != 0 {
		t.Fatalf("old position still holds liquidity %s", old.Liquidity)
	}
}

func TestExecuteRebalanceManipulationGuard(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// The pool trades 1:1 but the feed claims token0 is worth twice
	// token1, a 50% deviation against the default 10% band.
	f.source.Set(autoToken0, big.NewInt(200_000_000))

	req := RebalanceRequest{
		PositionID:      f.id,
		TriggerLowerX96: new(big.Int).Add(fixedpoint.Q96, big.NewInt(1)),
		TriggerUpperX96: new(big.Int).Lsh(fixedpoint.Q96, 1),
		Nonce:           1,
	}
	if _, err := f.engine.ExecuteRebalance(ctx, req, f.sign(t, req.Digest(f.engine.Domain()))); !errors.Is(err, ErrPriceManipulation) {
		t.Fatalf("error = %v, want ErrPriceManipulation", err)
	}

	position, err := f.manager.Registry().Get(ctx, f.id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if position.Liquidity.Sign() == 0 {
		t.Fatalf("guarded rebalance still moved the position")
	}
}

func TestExecuteRebalanceTriggerNotMet(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	req := RebalanceRequest{
		PositionID:      f.id,
		TriggerLowerX96: new(big.Int).Rsh(fixedpoint.Q96, 1),
		TriggerUpperX96: new(big.Int).Lsh(fixedpoint.Q96, 1),
		Nonce:           1,
	}
	if _, err := f.engine.ExecuteRebalance(ctx, req, f.sign(t, req.Digest(f.engine.Domain()))); !errors.Is(err, ErrTriggerNotMet) {
		t.Fatalf("error = %v, want ErrTriggerNotMet", err)
	}
}

func TestInvalidateBlocksExecution(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	req := CloseRequest{
		PositionID:          f.id,
		TriggerSqrtPriceX96: new(big.Int).Set(fixedpoint.Q96),
		BelowOrAbove:        true,
		Recipient:           f.owner,
		Nonce:               1,
	}
	digest := req.Digest(f.engine.Domain())

	if err := f.engine.Invalidate(ctx, f.id, digest); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := f.engine.ExecuteClose(ctx, req, f.sign(t, digest)); !errors.Is(err, ErrDigestUsed) {
		t.Fatalf("error = %v, want ErrDigestUsed", err)
	}
	if err := f.engine.Invalidate(ctx, f.id, digest); !errors.Is(err, ErrDigestUsed) {
		t.Fatalf("double invalidate error = %v, want ErrDigestUsed", err)
	}
}
