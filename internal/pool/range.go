package pool

import (
	"fmt"
	"math/big"

	"rangeKeeper/internal/fixedpoint"
)

// Range is a pair of tick boundaries, both multiples of the pool's tick
// spacing, with TickLower < TickUpper.
type Range struct {
	TickLower int32 `json:"tick_lower"`
	TickUpper int32 `json:"tick_upper"`
}

// Validate checks ordering, bounds, and spacing alignment.
func (r Range) Validate(tickSpacing int32) error {
	if r.TickLower >= r.TickUpper {
		return fmt.Errorf("range: tickLower %d must be below tickUpper %d", r.TickLower, r.TickUpper)
	}
	if r.TickLower < fixedpoint.MinTick || r.TickUpper > fixedpoint.MaxTick {
		return fmt.Errorf("range: ticks [%d, %d] out of bounds", r.TickLower, r.TickUpper)
	}
	if tickSpacing > 0 {
		if r.TickLower%tickSpacing != 0 || r.TickUpper%tickSpacing != 0 {
			return fmt.Errorf("range: ticks [%d, %d] not aligned to spacing %d", r.TickLower, r.TickUpper, tickSpacing)
		}
	}
	return nil
}

// Width returns the tick span of the range.
func (r Range) Width() int32 {
	return r.TickUpper - r.TickLower
}

// SqrtPrices returns the sqrt prices of both boundaries.
func (r Range) SqrtPrices() (lower, upper *big.Int, err error) {
	lower, err = fixedpoint.SqrtPriceFromTick(r.TickLower)
	if err != nil {
		return nil, nil, err
	}
	upper, err = fixedpoint.SqrtPriceFromTick(r.TickUpper)
	if err != nil {
		return nil, nil, err
	}
	return lower, upper, nil
}

// FloorToSpacing snaps a tick down to the nearest spacing multiple. Floor
// division toward negative infinity, so negative remainders snap further
// down rather than toward zero.
func FloorToSpacing(tick, spacing int32) int32 {
	if spacing <= 0 {
		return tick
	}
	floored := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		floored--
	}
	return floored * spacing
}
