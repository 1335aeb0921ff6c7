package fixedpoint

import (
	"fmt"
	"math/big"
)

func orderSqrt(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// LiquidityForAmount0 returns the liquidity a deposit of amount0 supports
// over [sqrtA, sqrtB]: L = amount0 * (sqrtA*sqrtB/Q96) / (sqrtB-sqrtA).
func LiquidityForAmount0(sqrtA, sqrtB, amount0 *big.Int) (*big.Int, error) {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	if lo.Cmp(hi) == 0 {
		return nil, fmt.Errorf("degenerate range")
	}
	intermediate, err := MulDiv(lo, hi, Q96)
	if err != nil {
		return nil, err
	}
	return MulDiv(amount0, intermediate, new(big.Int).Sub(hi, lo))
}

// LiquidityForAmount1 returns L = amount1 * Q96 / (sqrtB-sqrtA).
func LiquidityForAmount1(sqrtA, sqrtB, amount1 *big.Int) (*big.Int, error) {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	if lo.Cmp(hi) == 0 {
		return nil, fmt.Errorf("degenerate range")
	}
	return MulDiv(amount1, Q96, new(big.Int).Sub(hi, lo))
}

// LiquidityForAmounts returns the maximum liquidity both amounts can fund
// for the range at the current price. Below the range only token0 counts,
// above it only token1, inside it the smaller of the two bounds.
func LiquidityForAmounts(sqrtCurrent, sqrtLower, sqrtUpper, amount0, amount1 *big.Int) (*big.Int, error) {
	lo, hi := orderSqrt(sqrtLower, sqrtUpper)

	switch {
	case sqrtCurrent.Cmp(lo) <= 0:
		return LiquidityForAmount0(lo, hi, amount0)
	case sqrtCurrent.Cmp(hi) < 0:
		l0, err := LiquidityForAmount0(sqrtCurrent, hi, amount0)
		if err != nil {
			return nil, err
		}
		l1, err := LiquidityForAmount1(lo, sqrtCurrent, amount1)
		if err != nil {
			return nil, err
		}
		if l0.Cmp(l1) < 0 {
			return l0, nil
		}
		return l1, nil
	default:
		return LiquidityForAmount1(lo, hi, amount1)
	}
}

// Amount0ForLiquidity returns the token0 amount represented by liquidity
// over [sqrtA, sqrtB]: L * Q96 * (sqrtB-sqrtA) / sqrtB / sqrtA.
func Amount0ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) (*big.Int, error) {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	if lo.Sign() == 0 {
		return nil, fmt.Errorf("zero sqrt price")
	}
	shifted := new(big.Int).Lsh(liquidity, 96)
	num, err := MulDiv(shifted, new(big.Int).Sub(hi, lo), hi)
	if err != nil {
		return nil, err
	}
	return num.Quo(num, lo), nil
}

// Amount1ForLiquidity returns L * (sqrtB-sqrtA) / Q96.
func Amount1ForLiquidity(sqrtA, sqrtB, liquidity *big.Int) (*big.Int, error) {
	lo, hi := orderSqrt(sqrtA, sqrtB)
	return MulDiv(liquidity, new(big.Int).Sub(hi, lo), Q96)
}

// AmountsForLiquidity returns the token amounts represented by liquidity
// at the current price, honoring the three-region convention.
func AmountsForLiquidity(sqrtCurrent, sqrtLower, sqrtUpper, liquidity *big.Int) (*big.Int, *big.Int, error) {
	lo, hi := orderSqrt(sqrtLower, sqrtUpper)

	switch {
	case sqrtCurrent.Cmp(lo) <= 0:
		amount0, err := Amount0ForLiquidity(lo, hi, liquidity)
		if err != nil {
			return nil, nil, err
		}
		return amount0, big.NewInt(0), nil
	case sqrtCurrent.Cmp(hi) < 0:
		amount0, err := Amount0ForLiquidity(sqrtCurrent, hi, liquidity)
		if err != nil {
			return nil, nil, err
		}
		amount1, err := Amount1ForLiquidity(lo, sqrtCurrent, liquidity)
		if err != nil {
			return nil, nil, err
		}
		return amount0, amount1, nil
	default:
		amount1, err := Amount1ForLiquidity(lo, hi, liquidity)
		if err != nil {
			return nil, nil, err
		}
		return big.NewInt(0), amount1, nil
	}
}
