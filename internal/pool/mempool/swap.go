package mempool

import (
	"context"
	"fmt"
	"math/big"

	"rangeKeeper/internal/fixedpoint"
	"rangeKeeper/internal/pool"
)

const feeDenominator = 1_000_000

// Swap sells amountIn of one token within the current liquidity region,
// never moving the sqrt price past the limit. Positive deltas are owed to
// the pool, negative deltas are received from it. A zero amountIn is a
// no-op returning zero deltas.
func (b *Backend) Swap(_ context.Context, ref pool.Ref, zeroForOne bool, amountIn *big.Int, sqrtPriceLimitX96 *big.Int) (*big.Int, *big.Int, error) {
	if amountIn == nil || amountIn.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if amountIn.Sign() < 0 {
		return nil, nil, fmt.Errorf("mempool: negative swap amount")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(ref)
	if err != nil {
		return nil, nil, err
	}
	if p.liquidity.Sign() == 0 {
		return nil, nil, fmt.Errorf("mempool: insufficient liquidity for swap")
	}

	limit := sqrtPriceLimitX96
	if limit == nil {
		if zeroForOne {
			limit = new(big.Int).Add(fixedpoint.MinSqrtRatio, big.NewInt(1))
		} else {
			limit = new(big.Int).Sub(fixedpoint.MaxSqrtRatio, big.NewInt(1))
		}
	}
	// A limit equal to the current price allows no movement; that is a
	// no-op, not an error.
	if limit.Cmp(p.sqrtPriceX96) == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	if zeroForOne {
		if limit.Cmp(p.sqrtPriceX96) > 0 {
			return nil, nil, fmt.Errorf("mempool: price limit above current price")
		}
	} else {
		if limit.Cmp(p.sqrtPriceX96) < 0 {
			return nil, nil, fmt.Errorf("mempool: price limit below current price")
		}
	}

	feePips := big.NewInt(int64(ref.Fee))
	netRatio := new(big.Int).Sub(big.NewInt(feeDenominator), feePips)
	amountNet := new(big.Int).Mul(amountIn, netRatio)
	amountNet.Quo(amountNet, big.NewInt(feeDenominator))
	if amountNet.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}

	p.recordObservation(b.now().Unix())

	var consumed, out *big.Int
	var capped bool
	if zeroForOne {
		consumed, out, capped, err = p.swapToken0In(amountNet, limit)
	} else {
		consumed, out, capped, err = p.swapToken1In(amountNet, limit)
	}
	if err != nil {
		return nil, nil, err
	}

	var feeAmount *big.Int
	if capped {
		// Back the fee out of the amount actually consumed.
		feeAmount, err = fixedpoint.MulDivRoundingUp(consumed, feePips, netRatio)
		if err != nil {
			return nil, nil, err
		}
	} else {
		feeAmount = new(big.Int).Sub(amountIn, amountNet)
	}

	if feeAmount.Sign() > 0 {
		perLiquidity, err := fixedpoint.MulDiv(feeAmount, fixedpoint.Q128, p.liquidity)
		if err != nil {
			return nil, nil, err
		}
		if err := p.bumpGrowth(zeroForOne, perLiquidity); err != nil {
			return nil, nil, err
		}
	}

	paidIn := new(big.Int).Add(consumed, feeAmount)
	if zeroForOne {
		return paidIn, new(big.Int).Neg(out), nil
	}
	return new(big.Int).Neg(out), paidIn, nil
}

// swapToken0In moves the price down and returns (amount0 consumed,
// amount1 out, whether the limit capped the move).
func (p *Pool) swapToken0In(amountNet, limit *big.Int) (*big.Int, *big.Int, bool, error) {
	liquidityX96 := new(big.Int).Lsh(p.liquidity, 96)

	// next = ceil(L*Q96*s / (L*Q96 + amount*s))
	denom := new(big.Int).Mul(amountNet, p.sqrtPriceX96)
	denom.Add(denom, liquidityX96)
	next, err := fixedpoint.MulDivRoundingUp(liquidityX96, p.sqrtPriceX96, denom)
	if err != nil {
		return nil, nil, false, err
	}

	capped := false
	if next.Cmp(limit) < 0 {
		next = new(big.Int).Set(limit)
		capped = true
	}

	diff := new(big.Int).Sub(p.sqrtPriceX96, next)
	consumed := new(big.Int).Set(amountNet)
	if capped {
		prod := new(big.Int).Mul(p.sqrtPriceX96, next)
		consumed, err = fixedpoint.MulDivRoundingUp(liquidityX96, diff, prod)
		if err != nil {
			return nil, nil, false, err
		}
	}
	out, err := fixedpoint.MulDiv(p.liquidity, diff, fixedpoint.Q96)
	if err != nil {
		return nil, nil, false, err
	}

	p.applyPrice(next)
	return consumed, out, capped, nil
}

// swapToken1In moves the price up and returns (amount1 consumed,
// amount0 out, whether the limit capped the move).
func (p *Pool) swapToken1In(amountNet, limit *big.Int) (*big.Int, *big.Int, bool, error) {
	step, err := fixedpoint.MulDiv(amountNet, fixedpoint.Q96, p.liquidity)
	if err != nil {
		return nil, nil, false, err
	}
	next := new(big.Int).Add(p.sqrtPriceX96, step)

	capped := false
	if next.Cmp(limit) > 0 {
		next = new(big.Int).Set(limit)
		capped = true
	}

	diff := new(big.Int).Sub(next, p.sqrtPriceX96)
	consumed := new(big.Int).Set(amountNet)
	if capped {
		consumed, err = fixedpoint.MulDivRoundingUp(p.liquidity, diff, fixedpoint.Q96)
		if err != nil {
			return nil, nil, false, err
		}
	}
	liquidityX96 := new(big.Int).Lsh(p.liquidity, 96)
	prod := new(big.Int).Mul(next, p.sqrtPriceX96)
	out, err := fixedpoint.MulDiv(liquidityX96, diff, prod)
	if err != nil {
		return nil, nil, false, err
	}

	p.applyPrice(next)
	return consumed, out, capped, nil
}

func (p *Pool) applyPrice(next *big.Int) {
	p.sqrtPriceX96 = next
	if tick, err := fixedpoint.TickFromSqrtPrice(next); err == nil && tick != p.tick {
		p.tick = tick
	}
}

func (p *Pool) bumpGrowth(zeroForOne bool, perLiquidity *big.Int) error {
	delta := uint256FromBigWrapped(perLiquidity)
	if zeroForOne {
		p.feeGrowth0.Add(p.feeGrowth0, delta)
	} else {
		p.feeGrowth1.Add(p.feeGrowth1, delta)
	}
	return nil
}
