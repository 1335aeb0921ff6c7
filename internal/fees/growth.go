// Package fees computes unclaimed trading fees for a range position from
// the pool's fee-growth accumulators. The growth counters wrap around the
// 256-bit width by design, so every subtraction here is modular; clamping
// to zero would corrupt positions whose accumulators have wrapped.
package fees

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"rangeKeeper/internal/fixedpoint"
)

// GrowthOutside is a per-tick (growth0, growth1) accumulator pair.
type GrowthOutside struct {
	Fee0 *uint256.Int
	Fee1 *uint256.Int
}

// GrowthInside returns the fee growth accumulated inside [tickLower,
// tickUpper) per unit of liquidity, for both tokens, given the global
// counters and the two boundary-tick outside accumulators.
func GrowthInside(
	global0, global1 *uint256.Int,
	lower, upper GrowthOutside,
	currentTick, tickLower, tickUpper int32,
) (*uint256.Int, *uint256.Int, error) {
	if tickLower >= tickUpper {
		return nil, nil, fmt.Errorf("fees: tickLower must be below tickUpper")
	}

	inside0 := new(uint256.Int)
	inside1 := new(uint256.Int)
	switch {
	case currentTick < tickLower:
		inside0.Sub(lower.Fee0, upper.Fee0)
		inside1.Sub(lower.Fee1, upper.Fee1)
	case currentTick < tickUpper:
		inside0.Sub(global0, lower.Fee0)
		inside0.Sub(inside0, upper.Fee0)
		inside1.Sub(global1, lower.Fee1)
		inside1.Sub(inside1, upper.Fee1)
	default:
		inside0.Sub(upper.Fee0, lower.Fee0)
		inside1.Sub(upper.Fee1, lower.Fee1)
	}
	return inside0, inside1, nil
}

// Unclaimed returns the fee amount owed to a position with the given
// liquidity since its last snapshot: liquidity * (inside - snapshot) / 2^128
// with wrapping delta and full-precision multiply-divide. The same formula
// serves both the preview and the collect paths.
func Unclaimed(liquidity *big.Int, inside, snapshot *uint256.Int) (*big.Int, error) {
	if liquidity == nil || liquidity.Sign() < 0 {
		return nil, fmt.Errorf("fees: negative liquidity")
	}
	delta := new(uint256.Int).Sub(inside, snapshot)
	return fixedpoint.MulDiv(liquidity, delta.ToBig(), fixedpoint.Q128)
}
