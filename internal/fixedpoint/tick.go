package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
)

// tickFactors[i] scales the Q128.128 ratio when bit i of |tick| is set.
var tickFactors = []*big.Int{
	mustHex("fffcb933bd6fad37aa2d162d1a594001"),
	mustHex("fff97272373d413259a46990580e213a"),
	mustHex("fff2e50f5f656932ef12357cf3c7fdcc"),
	mustHex("ffe5caca7e10e4e61c3624eaa0941cd0"),
	mustHex("ffcb9843d60f6159c9db58835c926644"),
	mustHex("ff973b41fa98c081472e6896dfb254c0"),
	mustHex("ff2ea16466c96a3843ec78b326b52861"),
	mustHex("fe5dee046a99a2a811c461f1969c3053"),
	mustHex("fcbe86c7900a88aedcffc83b479aa3a4"),
	mustHex("f987a7253ac413176f2b074cf7815e54"),
	mustHex("f3392b0822b70005940c7a398e4b70f3"),
	mustHex("e7159475a2c29b7443b29c7fa6e889d9"),
	mustHex("d097f3bdfd2022b8845ad8f792aa5825"),
	mustHex("a9f746462d870fdf8a65dc1f90e061e5"),
	mustHex("70d869a156d2a1b890bb3df62baf32f7"),
	mustHex("31be135f97d08fd981231505542fcfa6"),
	mustHex("9aa508b5b7a84e1c677de54f3e99bc9"),
	mustHex("5d6af8dedb81196699c329225ee604"),
	mustHex("2216e584f5fa1ea926041bedfe98"),
	mustHex("48a170391f7dc42444e8fa2"),
}

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("fixedpoint: invalid hex constant " + s)
	}
	return v
}

// SqrtPriceFromTick returns sqrt(1.0001^tick) in Q64.96, reproducing the
// pool's own bit-decomposition exactly.
func SqrtPriceFromTick(tick int32) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("tick %d out of range", tick)
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-int64(tick))
	}

	ratio := new(big.Int).Lsh(big.NewInt(1), 128)
	if absTick&1 != 0 {
		ratio.Set(tickFactors[0])
	}
	for i := 1; i < len(tickFactors); i++ {
		if absTick&(1<<uint(i)) != 0 {
			ratio.Mul(ratio, tickFactors[i])
			ratio.Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Quo(maxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so the result round-trips through
	// the inverse mapping.
	rem := new(big.Int).And(ratio, big.NewInt((1<<32)-1))
	ratio.Rsh(ratio, 32)
	if rem.Sign() != 0 {
		ratio.Add(ratio, big.NewInt(1))
	}
	return ratio, nil
}

// TickFromSqrtPrice returns the largest tick whose sqrt price does not
// exceed sqrtPriceX96. Float seed plus exact correction steps.
func TickFromSqrtPrice(sqrtPriceX96 *big.Int) (int32, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Cmp(MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(MaxSqrtRatio) > 0 {
		return 0, fmt.Errorf("sqrt price out of range")
	}

	price, _ := new(big.Float).Quo(
		new(big.Float).SetInt(sqrtPriceX96),
		new(big.Float).SetInt(Q96),
	).Float64()
	guess := int32(math.Floor(2 * math.Log(price) / math.Log(1.0001)))
	if guess < MinTick {
		guess = MinTick
	}
	if guess > MaxTick {
		guess = MaxTick
	}

	for guess > MinTick {
		sp, err := SqrtPriceFromTick(guess)
		if err != nil {
			return 0, err
		}
		if sp.Cmp(sqrtPriceX96) <= 0 {
			break
		}
		guess--
	}
	for guess < MaxTick {
		sp, err := SqrtPriceFromTick(guess + 1)
		if err != nil {
			return 0, err
		}
		if sp.Cmp(sqrtPriceX96) > 0 {
			break
		}
		guess++
	}
	return guess, nil
}
