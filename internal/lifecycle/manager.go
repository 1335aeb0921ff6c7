// Package lifecycle orchestrates position open/increase/collect/withdraw/
// move-range flows around the rebalancer and the fee calculator, applying
// protocol fees and optional single-token output conversion.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"rangeKeeper/internal/fees"
	"rangeKeeper/internal/fixedpoint"
	"rangeKeeper/internal/pool"
	"rangeKeeper/internal/rebalance"
)

// ErrAmountBelowMinimum is returned when a single-token output lands below
// the caller's minimum.
var ErrAmountBelowMinimum = errors.New("output amount below minimum")

const fullRangeBps = 10000

// Manager drives the position state machine against a pool backend.
type Manager struct {
	backend    pool.Backend
	registry   Registry
	collector  FeeCollector
	rebalancer *rebalance.Rebalancer
	locks      *keyedMutex
	txMu       sync.Mutex
	logger     *zap.Logger
}

// New builds a Manager. A nil collector disables protocol fees.
func New(backend pool.Backend, registry Registry, collector FeeCollector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if collector == nil {
		collector = BpsFeeCollector{}
	}
	return &Manager{
		backend:    backend,
		registry:   registry,
		collector:  collector,
		rebalancer: rebalance.New(backend, logger),
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// Registry exposes the position store, read-only use intended.
func (m *Manager) Registry() Registry { return m.registry }

// Backend exposes the pool backend for read paths.
func (m *Manager) Backend() pool.Backend { return m.backend }

// OpenParams describes a position open.
type OpenParams struct {
	Pool         pool.Ref
	Range        pool.Range
	Amount0      *big.Int
	Amount1      *big.Int
	Recipient    common.Address
	MinLiquidity *big.Int // nil disables the check
	RefundTo     common.Address
}

// OpenResult reports what an open consumed and returned.
type OpenResult struct {
	PositionID   uint64
	Liquidity    *big.Int
	Used0, Used1 *big.Int
	Refund0      *big.Int
	Refund1      *big.Int
	ProtocolFee0 *big.Int
	ProtocolFee1 *big.Int
}

// Open deducts the deposit protocol fee, rebalances the amounts to the
// range's ratio, mints the position, and refunds the unused remainder.
// ErrLiquidityBelowMinimum rolls the whole operation back; the check runs
// after the mint commits.
func (m *Manager) Open(ctx context.Context, p OpenParams) (OpenResult, error) {
	rollback, done := m.beginTx()
	defer done()
	res, err := m.open(ctx, p)
	if err != nil {
		rollback()
		return OpenResult{}, err
	}
	return res, nil
}

func (m *Manager) open(ctx context.Context, p OpenParams) (OpenResult, error) {
	if err := p.Pool.Validate(); err != nil {
		return OpenResult{}, err
	}
	if err := p.Range.Validate(p.Pool.TickSpacing); err != nil {
		return OpenResult{}, err
	}

	fee0 := m.collector.CalculateFee(p.Amount0, FeeDeposit)
	fee1 := m.collector.CalculateFee(p.Amount1, FeeDeposit)
	net0 := new(big.Int).Sub(p.Amount0, fee0)
	net1 := new(big.Int).Sub(p.Amount1, fee1)

	bal0, bal1, err := m.rebalancer.ToOptimalRatio(ctx, p.Pool, p.Range, net0, net1)
	if err != nil {
		return OpenResult{}, err
	}

	sqrtCurrent, _, err := m.backend.Slot0(ctx, p.Pool)
	if err != nil {
		return OpenResult{}, fmt.Errorf("open: slot0: %w", err)
	}
	sqrtLower, sqrtUpper, err := p.Range.SqrtPrices()
	if err != nil {
		return OpenResult{}, err
	}

	liquidity, err := fixedpoint.LiquidityForAmounts(sqrtCurrent, sqrtLower, sqrtUpper, bal0, bal1)
	if err != nil {
		return OpenResult{}, err
	}
	used0, used1, err := fixedpoint.AmountsForLiquidity(sqrtCurrent, sqrtLower, sqrtUpper, liquidity)
	if err != nil {
		return OpenResult{}, err
	}

	if err := m.backend.ModifyLiquidity(ctx, p.Pool, p.Range, liquidity); err != nil {
		return OpenResult{}, fmt.Errorf("open: add liquidity: %w", err)
	}

	// Snapshot after the liquidity commit: adding liquidity initializes
	// the range's boundary ticks, and a snapshot taken before that sees
	// zero outside accumulators and overstates growth-inside.
	inside0, inside1, err := m.growthInside(ctx, p.Pool, p.Range)
	if err != nil {
		return OpenResult{}, err
	}

	position := pool.NewPosition(p.Pool, p.Range, p.Recipient)
	position.Liquidity = liquidity
	position.FeeSnapshot0 = inside0
	position.FeeSnapshot1 = inside1
	id, err := m.registry.Mint(ctx, position)
	if err != nil {
		return OpenResult{}, fmt.Errorf("open: mint: %w", err)
	}

	// Minimum-liquidity check happens after the mint commits; failure
	// aborts the whole operation, never clamps.
	if liquidity.Sign() == 0 {
		return OpenResult{}, fmt.Errorf("open: %w", ErrLiquidityBelowMinimum)
	}
	if p.MinLiquidity != nil && liquidity.Cmp(p.MinLiquidity) < 0 {
		return OpenResult{}, fmt.Errorf("open: %w", ErrLiquidityBelowMinimum)
	}

	refund0 := clampZero(new(big.Int).Sub(bal0, used0))
	refund1 := clampZero(new(big.Int).Sub(bal1, used1))

	m.logger.Info("position opened",
		zap.Uint64("position_id", id),
		zap.String("liquidity", liquidity.String()),
		zap.String("used0", used0.String()),
		zap.String("used1", used1.String()),
		zap.String("refund0", refund0.String()),
		zap.String("refund1", refund1.String()),
		zap.String("refund_to", p.RefundTo.Hex()),
	)

	return OpenResult{
		PositionID:   id,
		Liquidity:    liquidity,
		Used0:        used0,
		Used1:        used1,
		Refund0:      refund0,
		Refund1:      refund1,
		ProtocolFee0: fee0,
		ProtocolFee1: fee1,
	}, nil
}

// IncreaseResult reports an increase outcome.
type IncreaseResult struct {
	LiquidityAdded *big.Int
	Used0, Used1   *big.Int
	Refund0        *big.Int
	Refund1        *big.Int
}

// Increase adds liquidity to an existing position with the same fee
// deduction and rebalance as Open, refunding the remainder to the caller.
func (m *Manager) Increase(ctx context.Context, id uint64, amount0, amount1, minLiquidity *big.Int) (IncreaseResult, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	rollback, done := m.beginTx()
	defer done()
	res, err := m.increaseLocked(ctx, id, amount0, amount1, minLiquidity)
	if err != nil {
		rollback()
		return IncreaseResult{}, err
	}
	return res, nil
}

func (m *Manager) increaseLocked(ctx context.Context, id uint64, amount0, amount1, minLiquidity *big.Int) (IncreaseResult, error) {
	position, err := m.registry.Get(ctx, id)
	if err != nil {
		return IncreaseResult{}, err
	}

	fee0 := m.collector.CalculateFee(amount0, FeeDeposit)
	fee1 := m.collector.CalculateFee(amount1, FeeDeposit)
	net0 := new(big.Int).Sub(amount0, fee0)
	net1 := new(big.Int).Sub(amount1, fee1)

	bal0, bal1, err := m.rebalancer.ToOptimalRatio(ctx, position.Pool, position.Range, net0, net1)
	if err != nil {
		return IncreaseResult{}, err
	}

	sqrtCurrent, _, err := m.backend.Slot0(ctx, position.Pool)
	if err != nil {
		return IncreaseResult{}, fmt.Errorf("increase: slot0: %w", err)
	}
	sqrtLower, sqrtUpper, err := position.Range.SqrtPrices()
	if err != nil {
		return IncreaseResult{}, err
	}

	delta, err := fixedpoint.LiquidityForAmounts(sqrtCurrent, sqrtLower, sqrtUpper, bal0, bal1)
	if err != nil {
		return IncreaseResult{}, err
	}
	used0, used1, err := fixedpoint.AmountsForLiquidity(sqrtCurrent, sqrtLower, sqrtUpper, delta)
	if err != nil {
		return IncreaseResult{}, err
	}

	if err := m.accrue(ctx, &position); err != nil {
		return IncreaseResult{}, err
	}
	if err := m.backend.ModifyLiquidity(ctx, position.Pool, position.Range, delta); err != nil {
		return IncreaseResult{}, fmt.Errorf("increase: add liquidity: %w", err)
	}
	position.Liquidity = new(big.Int).Add(position.Liquidity, delta)
	if err := m.registry.Update(ctx, id, position); err != nil {
		return IncreaseResult{}, err
	}

	if minLiquidity != nil && delta.Cmp(minLiquidity) < 0 {
		return IncreaseResult{}, fmt.Errorf("increase: %w", ErrLiquidityBelowMinimum)
	}

	return IncreaseResult{
		LiquidityAdded: delta,
		Used0:          used0,
		Used1:          used1,
		Refund0:        clampZero(new(big.Int).Sub(bal0, used0)),
		Refund1:        clampZero(new(big.Int).Sub(bal1, used1)),
	}, nil
}

// CollectResult reports harvested fees net of the protocol cut.
type CollectResult struct {
	Fee0         *big.Int
	Fee1         *big.Int
	ProtocolFee0 *big.Int
	ProtocolFee1 *big.Int
}

// Collect harvests accrued fees without touching principal liquidity.
func (m *Manager) Collect(ctx context.Context, id uint64) (CollectResult, error) {
	return m.CollectAs(ctx, id, nil)
}

// CollectAs harvests fees and optionally converts them into a single
// output token with an unbounded swap. A nil tokenOut returns both.
func (m *Manager) CollectAs(ctx context.Context, id uint64, tokenOut *common.Address) (CollectResult, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	rollback, done := m.beginTx()
	defer done()
	res, err := m.collectAsLocked(ctx, id, tokenOut)
	if err != nil {
		rollback()
		return CollectResult{}, err
	}
	return res, nil
}

func (m *Manager) collectAsLocked(ctx context.Context, id uint64, tokenOut *common.Address) (CollectResult, error) {
	position, err := m.registry.Get(ctx, id)
	if err != nil {
		return CollectResult{}, err
	}
	if tokenOut != nil && !position.Pool.HasToken(*tokenOut) {
		return CollectResult{}, ErrInvalidTokenOut
	}

	res, err := m.collectLocked(ctx, id)
	if err != nil {
		return CollectResult{}, err
	}
	if tokenOut == nil {
		return res, nil
	}

	out0, out1, err := m.convertSingle(ctx, position.Pool, *tokenOut, res.Fee0, res.Fee1)
	if err != nil {
		return CollectResult{}, err
	}
	res.Fee0 = out0
	res.Fee1 = out1
	return res, nil
}

func (m *Manager) collectLocked(ctx context.Context, id uint64) (CollectResult, error) {
	position, err := m.registry.Get(ctx, id)
	if err != nil {
		return CollectResult{}, err
	}
	if err := m.accrue(ctx, &position); err != nil {
		return CollectResult{}, err
	}

	total0 := position.TokensOwed0
	total1 := position.TokensOwed1
	position.TokensOwed0 = big.NewInt(0)
	position.TokensOwed1 = big.NewInt(0)
	if err := m.registry.Update(ctx, id, position); err != nil {
		return CollectResult{}, err
	}

	pf0 := m.collector.CalculateFee(total0, FeeFees)
	pf1 := m.collector.CalculateFee(total1, FeeFees)
	return CollectResult{
		Fee0:         new(big.Int).Sub(total0, pf0),
		Fee1:         new(big.Int).Sub(total1, pf1),
		ProtocolFee0: pf0,
		ProtocolFee1: pf1,
	}, nil
}

// PreviewFees computes unclaimed fees without any state change, using the
// identical formula as the collect path.
func (m *Manager) PreviewFees(ctx context.Context, id uint64) (*big.Int, *big.Int, error) {
	position, err := m.registry.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	inside0, inside1, err := m.growthInside(ctx, position.Pool, position.Range)
	if err != nil {
		return nil, nil, err
	}
	pending0, err := fees.Unclaimed(position.Liquidity, inside0, position.FeeSnapshot0)
	if err != nil {
		return nil, nil, err
	}
	pending1, err := fees.Unclaimed(position.Liquidity, inside1, position.FeeSnapshot1)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).Add(position.TokensOwed0, pending0),
		new(big.Int).Add(position.TokensOwed1, pending1), nil
}

// WithdrawParams describes a withdraw.
type WithdrawParams struct {
	PositionID uint64
	PercentBps uint32
	Recipient  common.Address
	// TokenOut nil returns both tokens; otherwise everything is converted
	// into the named token, which must belong to the pool.
	TokenOut     *common.Address
	MinAmountOut *big.Int // single-token mode only, nil disables
}

// WithdrawResult reports the withdrawn outputs.
type WithdrawResult struct {
	Amount0          *big.Int
	Amount1          *big.Int
	LiquidityRemoved *big.Int
	ProtocolFee0     *big.Int
	ProtocolFee1     *big.Int
}

// Withdraw removes percentBps of liquidity plus the proportional share of
// pending fees, deducts protocol fees, and optionally converts the output
// to a single token with an unbounded swap.
func (m *Manager) Withdraw(ctx context.Context, p WithdrawParams) (WithdrawResult, error) {
	unlock := m.locks.lock(p.PositionID)
	defer unlock()

	rollback, done := m.beginTx()
	defer done()
	res, err := m.withdrawLocked(ctx, p, true)
	if err != nil {
		rollback()
		return WithdrawResult{}, err
	}
	return res, nil
}

func (m *Manager) withdrawLocked(ctx context.Context, p WithdrawParams, applyProtocolFee bool) (WithdrawResult, error) {
	if p.PercentBps == 0 || p.PercentBps > fullRangeBps {
		return WithdrawResult{}, fmt.Errorf("withdraw: percent must be in (0, %d] bps", fullRangeBps)
	}

	position, err := m.registry.Get(ctx, p.PositionID)
	if err != nil {
		return WithdrawResult{}, err
	}
	if p.TokenOut != nil && !position.Pool.HasToken(*p.TokenOut) {
		return WithdrawResult{}, ErrInvalidTokenOut
	}

	if err := m.accrue(ctx, &position); err != nil {
		return WithdrawResult{}, err
	}

	removed := new(big.Int).Mul(position.Liquidity, big.NewInt(int64(p.PercentBps)))
	removed.Quo(removed, big.NewInt(fullRangeBps))

	feeShare0 := new(big.Int).Mul(position.TokensOwed0, big.NewInt(int64(p.PercentBps)))
	feeShare0.Quo(feeShare0, big.NewInt(fullRangeBps))
	feeShare1 := new(big.Int).Mul(position.TokensOwed1, big.NewInt(int64(p.PercentBps)))
	feeShare1.Quo(feeShare1, big.NewInt(fullRangeBps))

	sqrtCurrent, _, err := m.backend.Slot0(ctx, position.Pool)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("withdraw: slot0: %w", err)
	}
	sqrtLower, sqrtUpper, err := position.Range.SqrtPrices()
	if err != nil {
		return WithdrawResult{}, err
	}
	principal0, principal1, err := fixedpoint.AmountsForLiquidity(sqrtCurrent, sqrtLower, sqrtUpper, removed)
	if err != nil {
		return WithdrawResult{}, err
	}

	if removed.Sign() > 0 {
		if err := m.backend.ModifyLiquidity(ctx, position.Pool, position.Range, new(big.Int).Neg(removed)); err != nil {
			return WithdrawResult{}, fmt.Errorf("withdraw: remove liquidity: %w", err)
		}
	}
	position.Liquidity = new(big.Int).Sub(position.Liquidity, removed)
	position.TokensOwed0 = new(big.Int).Sub(position.TokensOwed0, feeShare0)
	position.TokensOwed1 = new(big.Int).Sub(position.TokensOwed1, feeShare1)
	if err := m.registry.Update(ctx, p.PositionID, position); err != nil {
		return WithdrawResult{}, err
	}

	pfL0, pfL1, pfF0, pfF1 := big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0)
	if applyProtocolFee {
		pfL0 = m.collector.CalculateFee(principal0, FeeLiquidity)
		pfL1 = m.collector.CalculateFee(principal1, FeeLiquidity)
		pfF0 = m.collector.CalculateFee(feeShare0, FeeFees)
		pfF1 = m.collector.CalculateFee(feeShare1, FeeFees)
	}

	out0 := new(big.Int).Sub(new(big.Int).Add(principal0, feeShare0), new(big.Int).Add(pfL0, pfF0))
	out1 := new(big.Int).Sub(new(big.Int).Add(principal1, feeShare1), new(big.Int).Add(pfL1, pfF1))

	if p.TokenOut != nil {
		out0, out1, err = m.convertSingle(ctx, position.Pool, *p.TokenOut, out0, out1)
		if err != nil {
			return WithdrawResult{}, err
		}
		if p.MinAmountOut != nil {
			selected := out0
			if *p.TokenOut == position.Pool.Token1 {
				selected = out1
			}
			if selected.Cmp(p.MinAmountOut) < 0 {
				return WithdrawResult{}, fmt.Errorf("withdraw: %w", ErrAmountBelowMinimum)
			}
		}
	}

	m.logger.Info("position withdrawn",
		zap.Uint64("position_id", p.PositionID),
		zap.Uint32("percent_bps", p.PercentBps),
		zap.String("amount0", out0.String()),
		zap.String("amount1", out1.String()),
		zap.String("recipient", p.Recipient.Hex()),
	)

	return WithdrawResult{
		Amount0:          out0,
		Amount1:          out1,
		LiquidityRemoved: removed,
		ProtocolFee0:     new(big.Int).Add(pfL0, pfF0),
		ProtocolFee1:     new(big.Int).Add(pfL1, pfF1),
	}, nil
}

// MoveRangeParams describes a range move.
type MoveRangeParams struct {
	PositionID   uint64
	NewRange     pool.Range
	Recipient    common.Address
	MinLiquidity *big.Int
	RefundTo     common.Address
}

// MoveRange withdraws 100% and reopens at the new range, compounding fees
// into the new principal and paying the protocol fee once on the combined
// amount. The two internal calls succeed or fail as one.
func (m *Manager) MoveRange(ctx context.Context, p MoveRangeParams) (OpenResult, error) {
	unlock := m.locks.lock(p.PositionID)
	defer unlock()

	rollback, done := m.beginTx()
	defer done()
	res, err := m.moveRangeLocked(ctx, p)
	if err != nil {
		rollback()
		return OpenResult{}, err
	}
	return res, nil
}

func (m *Manager) moveRangeLocked(ctx context.Context, p MoveRangeParams) (OpenResult, error) {
	position, err := m.registry.Get(ctx, p.PositionID)
	if err != nil {
		return OpenResult{}, err
	}

	withdrawn, err := m.withdrawLocked(ctx, WithdrawParams{
		PositionID: p.PositionID,
		PercentBps: fullRangeBps,
		Recipient:  p.Recipient,
	}, false)
	if err != nil {
		return OpenResult{}, err
	}

	return m.open(ctx, OpenParams{
		Pool:         position.Pool,
		Range:        p.NewRange,
		Amount0:      withdrawn.Amount0,
		Amount1:      withdrawn.Amount1,
		Recipient:    p.Recipient,
		MinLiquidity: p.MinLiquidity,
		RefundTo:     p.RefundTo,
	})
}

// convertSingle swaps the non-selected token fully into tokenOut with the
// default unbounded limit. Zero-amount swaps are a no-op.
func (m *Manager) convertSingle(ctx context.Context, ref pool.Ref, tokenOut common.Address, out0, out1 *big.Int) (*big.Int, *big.Int, error) {
	var zeroForOne bool
	var amountIn *big.Int
	if tokenOut == ref.Token0 {
		zeroForOne = false
		amountIn = out1
	} else {
		zeroForOne = true
		amountIn = out0
	}
	if amountIn.Sign() == 0 {
		return out0, out1, nil
	}

	delta0, delta1, err := m.backend.Swap(ctx, ref, zeroForOne, amountIn, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("convert output: %w", err)
	}
	return new(big.Int).Sub(out0, delta0), new(big.Int).Sub(out1, delta1), nil
}

// accrue crystallizes pending fee growth into TokensOwed and resets the
// snapshots to the current inside values. Must run before any liquidity
// change so the old liquidity earns at the old snapshot.
func (m *Manager) accrue(ctx context.Context, position *pool.Position) error {
	inside0, inside1, err := m.growthInside(ctx, position.Pool, position.Range)
	if err != nil {
		return err
	}
	pending0, err := fees.Unclaimed(position.Liquidity, inside0, position.FeeSnapshot0)
	if err != nil {
		return err
	}
	pending1, err := fees.Unclaimed(position.Liquidity, inside1, position.FeeSnapshot1)
	if err != nil {
		return err
	}
	position.TokensOwed0 = new(big.Int).Add(position.TokensOwed0, pending0)
	position.TokensOwed1 = new(big.Int).Add(position.TokensOwed1, pending1)
	position.FeeSnapshot0 = inside0
	position.FeeSnapshot1 = inside1
	return nil
}

func (m *Manager) growthInside(ctx context.Context, ref pool.Ref, rng pool.Range) (*uint256.Int, *uint256.Int, error) {
	global0, global1, err := m.backend.FeeGrowthGlobal(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("fee growth global: %w", err)
	}
	lower0, lower1, err := m.backend.FeeGrowthOutside(ctx, ref, rng.TickLower)
	if err != nil {
		return nil, nil, fmt.Errorf("fee growth outside lower: %w", err)
	}
	upper0, upper1, err := m.backend.FeeGrowthOutside(ctx, ref, rng.TickUpper)
	if err != nil {
		return nil, nil, fmt.Errorf("fee growth outside upper: %w", err)
	}
	_, tick, err := m.backend.Slot0(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("slot0: %w", err)
	}
	return fees.GrowthInside(
		global0, global1,
		fees.GrowthOutside{Fee0: lower0, Fee1: lower1},
		fees.GrowthOutside{Fee0: upper0, Fee1: upper1},
		tick, rng.TickLower, rng.TickUpper,
	)
}

// beginTx snapshots the backend and registry when they are Transactional
// and returns a rollback func plus a done func that ends the window;
// non-transactional collaborators get a no-op (their substrate must
// supply atomicity itself). Snapshots capture the whole backend and
// registry, so txMu serializes the snapshot-to-restore window: a rollback
// must never wipe a commit another position's operation made in between.
func (m *Manager) beginTx() (rollback, done func()) {
	m.txMu.Lock()
	restores := make([]func(), 0, 2)
	if tx, ok := m.backend.(pool.Transactional); ok {
		snapshot := tx.Snapshot()
		restores = append(restores, func() { tx.Restore(snapshot) })
	}
	if tx, ok := m.registry.(pool.Transactional); ok {
		snapshot := tx.Snapshot()
		restores = append(restores, func() { tx.Restore(snapshot) })
	}
	rollback = func() {
		for _, restore := range restores {
			restore()
		}
	}
	return rollback, m.txMu.Unlock
}

func clampZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return big.NewInt(0)
	}
	return v
}
