package fixedpoint

import (
	"fmt"
	"math/big"
)

// SplitByRange splits a token0-denominated total between the two sides of a
// range deposit at the current price. Both return values are token0 units;
// the second is the share that should be held as token1 value.
//
// Boundary convention: the upper bound belongs to the outside, so
// sqrtCurrent >= sqrtUpper assigns everything to token1 and the inside test
// is sqrtCurrent < sqrtUpper.
func SplitByRange(total, sqrtCurrent, sqrtLower, sqrtUpper *big.Int) (*big.Int, *big.Int, error) {
	if total == nil || total.Sign() < 0 {
		return nil, nil, fmt.Errorf("split: negative total")
	}
	if sqrtLower.Cmp(sqrtUpper) >= 0 {
		return nil, nil, fmt.Errorf("split: lower sqrt price must be below upper")
	}

	if sqrtCurrent.Cmp(sqrtLower) <= 0 {
		return new(big.Int).Set(total), big.NewInt(0), nil
	}
	if sqrtCurrent.Cmp(sqrtUpper) >= 0 {
		return big.NewInt(0), new(big.Int).Set(total), nil
	}

	// Inside the range the L-invariant gives
	//   amount0 / amount1-in-0-units = s*(b-s) / (b*(s-a))
	// with s=current, a=lower, b=upper sqrt prices.
	numer := new(big.Int).Mul(sqrtCurrent, new(big.Int).Sub(sqrtUpper, sqrtCurrent))
	denom := new(big.Int).Mul(sqrtUpper, new(big.Int).Sub(sqrtCurrent, sqrtLower))

	weight := new(big.Int).Add(numer, denom)
	for0 := new(big.Int).Mul(total, numer)
	for0.Quo(for0, weight)
	for1 := new(big.Int).Sub(total, for0)
	return for0, for1, nil
}
