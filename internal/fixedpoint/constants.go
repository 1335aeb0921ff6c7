package fixedpoint

import "math/big"

// Q64.96 and Q128.128 fixed-point scales used by concentrated-liquidity pools.
var (
	Q96  = new(big.Int).Lsh(big.NewInt(1), 96)
	Q128 = new(big.Int).Lsh(big.NewInt(1), 128)
	Q192 = new(big.Int).Lsh(big.NewInt(1), 192)

	maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Tick bounds of the sqrt-price representation.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// Sqrt-price bounds corresponding to MinTick and MaxTick.
var (
	MinSqrtRatio = big.NewInt(4295128739)
	MaxSqrtRatio = mustBig("1461446703485210103287273052203988822378723970342")
)

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("fixedpoint: invalid constant " + s)
	}
	return v
}
