package fixedpoint

import (
	"fmt"
	"math/big"
)

// Token0To1 converts a token0 amount into token1 units at the given sqrt
// price: amount * sqrtPrice^2 / 2^192, truncating.
func Token0To1(sqrtPriceX96, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("convert: negative amount")
	}
	out := new(big.Int).Mul(amount, sqrtPriceX96)
	out.Mul(out, sqrtPriceX96)
	return out.Quo(out, Q192), nil
}

// Token1To0 converts a token1 amount into token0 units at the given sqrt
// price: amount * 2^192 / sqrtPrice^2, truncating.
func Token1To0(sqrtPriceX96, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("convert: negative amount")
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return nil, fmt.Errorf("convert: zero sqrt price")
	}
	out := new(big.Int).Mul(amount, Q192)
	denom := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	return out.Quo(out, denom), nil
}
