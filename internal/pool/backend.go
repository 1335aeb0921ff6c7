package pool

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
)

// Reader is the read-only surface of a pool backend. Trigger evaluation
// and fee preview need nothing more.
type Reader interface {
	// Slot0 returns the current sqrt price (Q64.96) and tick.
	Slot0(ctx context.Context, ref Ref) (sqrtPriceX96 *big.Int, tick int32, err error)
	// FeeGrowthGlobal returns the global per-liquidity fee accumulators.
	FeeGrowthGlobal(ctx context.Context, ref Ref) (fee0, fee1 *uint256.Int, err error)
	// FeeGrowthOutside returns the per-tick outside accumulators.
	FeeGrowthOutside(ctx context.Context, ref Ref, tick int32) (fee0, fee1 *uint256.Int, err error)
	// Observe returns tick cumulatives for each secondsAgo, newest-supporting
	// TWAP derivation.
	Observe(ctx context.Context, ref Ref, secondsAgos []uint32) ([]int64, error)
}

// Backend extends Reader with the state-changing operations the lifecycle
// manager issues. Swap settles internally within the call; there is no
// separate settlement callback phase.
type Backend interface {
	Reader
	// Swap sells amountIn of one token for the other, never moving the
	// sqrt price past sqrtPriceLimitX96. Positive deltas are owed to the
	// pool, negative deltas are received from it.
	Swap(ctx context.Context, ref Ref, zeroForOne bool, amountIn *big.Int, sqrtPriceLimitX96 *big.Int) (amount0, amount1 *big.Int, err error)
	// ModifyLiquidity adds (positive) or removes (negative) liquidity on
	// the given range.
	ModifyLiquidity(ctx context.Context, ref Ref, rng Range, liquidityDelta *big.Int) error
}

// Transactional is implemented by backends that can snapshot and restore
// their whole state, giving compound operations all-or-nothing semantics
// off the original execution substrate.
type Transactional interface {
	Snapshot() any
	Restore(snapshot any)
}
