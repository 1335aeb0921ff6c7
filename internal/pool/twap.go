package pool

import (
	"context"
	"fmt"
	"math/big"

	"rangeKeeper/internal/fixedpoint"
)

// TWAPWindow is the observation window used whenever a time-weighted
// average price stands in for a missing oracle feed.
const TWAPWindow uint32 = 30 * 60

// TWAPSqrtPrice derives the time-weighted average sqrt price over the
// window from the pool's cumulative-tick observations.
func TWAPSqrtPrice(ctx context.Context, r Reader, ref Ref, window uint32) (*big.Int, error) {
	if window == 0 {
		return nil, fmt.Errorf("twap: zero window")
	}
	cumulatives, err := r.Observe(ctx, ref, []uint32{window, 0})
	if err != nil {
		return nil, fmt.Errorf("twap: observe: %w", err)
	}
	if len(cumulatives) != 2 {
		return nil, fmt.Errorf("twap: expected 2 cumulatives, got %d", len(cumulatives))
	}

	delta := cumulatives[1] - cumulatives[0]
	avgTick := delta / int64(window)
	// Floor toward negative infinity, matching the pool's own arithmetic.
	if delta < 0 && delta%int64(window) != 0 {
		avgTick--
	}
	if avgTick < int64(fixedpoint.MinTick) || avgTick > int64(fixedpoint.MaxTick) {
		return nil, fmt.Errorf("twap: average tick %d out of range", avgTick)
	}
	return fixedpoint.SqrtPriceFromTick(int32(avgTick))
}
