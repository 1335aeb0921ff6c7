// Package rebalance converts an arbitrary two-token holding into the
// deposit ratio a price range requires, swapping the excess side through
// the pool itself.
package rebalance

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"rangeKeeper/internal/fixedpoint"
	"rangeKeeper/internal/pool"
)

// Rebalancer computes and executes ratio-correcting swaps.
type Rebalancer struct {
	backend pool.Backend
	logger  *zap.Logger
}

// New builds a Rebalancer.
func New(backend pool.Backend, logger *zap.Logger) *Rebalancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rebalancer{backend: backend, logger: logger}
}

// ToOptimalRatio swaps at most once so (amount0, amount1) matches the
// liquidity-optimal split for the range at the current price, and returns
// the post-swap amounts. A failed swap aborts the whole call.
func (r *Rebalancer) ToOptimalRatio(ctx context.Context, ref pool.Ref, rng pool.Range, amount0, amount1 *big.Int) (*big.Int, *big.Int, error) {
	if amount0 == nil || amount1 == nil || amount0.Sign() < 0 || amount1.Sign() < 0 {
		return nil, nil, fmt.Errorf("rebalance: negative input amounts")
	}

	sqrtCurrent, _, err := r.backend.Slot0(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("rebalance: slot0: %w", err)
	}
	sqrtLower, sqrtUpper, err := rng.SqrtPrices()
	if err != nil {
		return nil, nil, err
	}

	amount1In0, err := fixedpoint.Token1To0(sqrtCurrent, amount1)
	if err != nil {
		return nil, nil, err
	}
	total := new(big.Int).Add(amount0, amount1In0)

	want0, want1In0, err := fixedpoint.SplitByRange(total, sqrtCurrent, sqrtLower, sqrtUpper)
	if err != nil {
		return nil, nil, err
	}
	want1, err := fixedpoint.Token0To1(sqrtCurrent, want1In0)
	if err != nil {
		return nil, nil, err
	}

	// The two branches are mutually exclusive under the shared invariant
	// want0 + want1-in-0 == total; the token0 branch wins on rounding dust.
	switch {
	case amount0.Cmp(want0) > 0:
		excess := new(big.Int).Sub(amount0, want0)
		limit := sellLimit(true, sqrtCurrent, sqrtLower, sqrtUpper)
		delta0, delta1, err := r.backend.Swap(ctx, ref, true, excess, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("rebalance: sell token0: %w", err)
		}
		r.logger.Debug("rebalance swap",
			zap.Bool("zero_for_one", true),
			zap.String("excess", excess.String()),
			zap.String("delta0", delta0.String()),
			zap.String("delta1", delta1.String()),
		)
		return new(big.Int).Sub(amount0, delta0), new(big.Int).Sub(amount1, delta1), nil
	case amount1.Cmp(want1) > 0:
		excess := new(big.Int).Sub(amount1, want1)
		limit := sellLimit(false, sqrtCurrent, sqrtLower, sqrtUpper)
		delta0, delta1, err := r.backend.Swap(ctx, ref, false, excess, limit)
		if err != nil {
			return nil, nil, fmt.Errorf("rebalance: sell token1: %w", err)
		}
		r.logger.Debug("rebalance swap",
			zap.Bool("zero_for_one", false),
			zap.String("excess", excess.String()),
			zap.String("delta0", delta0.String()),
			zap.String("delta1", delta1.String()),
		)
		return new(big.Int).Sub(amount0, delta0), new(big.Int).Sub(amount1, delta1), nil
	default:
		return new(big.Int).Set(amount0), new(big.Int).Set(amount1), nil
	}
}

// sellLimit picks the conservative price limit for a rebalancing swap so a
// large swap cannot push the price across the position's own range:
// already beyond the boundary on the selling side caps at that boundary,
// strictly inside the range caps one unit inside the opposite boundary,
// otherwise the swap is unbounded.
func sellLimit(zeroForOne bool, sqrtCurrent, sqrtLower, sqrtUpper *big.Int) *big.Int {
	one := big.NewInt(1)
	if zeroForOne {
		// Price moves down.
		if sqrtCurrent.Cmp(sqrtUpper) >= 0 {
			return new(big.Int).Set(sqrtUpper)
		}
		if sqrtCurrent.Cmp(sqrtLower) > 0 {
			return new(big.Int).Add(sqrtLower, one)
		}
		return nil
	}
	// Price moves up.
	if sqrtCurrent.Cmp(sqrtLower) <= 0 {
		return new(big.Int).Set(sqrtLower)
	}
	if sqrtCurrent.Cmp(sqrtUpper) < 0 {
		return new(big.Int).Sub(sqrtUpper, one)
	}
	return nil
}
