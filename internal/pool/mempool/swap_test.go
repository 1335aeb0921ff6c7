package mempool

import (
	"context"
	"math/big"
	"testing"

	"rangeKeeper/internal/fixedpoint"
)

func TestSwapZeroAmountNoOp(t *testing.T) {
	b, ref := newTestPool(t, 0)
	delta0, delta1, err := b.Swap(context.Background(), ref, true, big.NewInt(0), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta0.Sign() != 0 || delta1.Sign() != 0 {
		t.Fatalf("zero-amount swap moved balances: %s/%s", delta0, delta1)
	}
}

func TestSwapLimitAtCurrentPriceNoOp(t *testing.T) {
	b, ref := newTestPool(t, 0)
	delta0, delta1, err := b.Swap(context.Background(), ref, true, big.NewInt(1_000_000), fixedpoint.Q96)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta0.Sign() != 0 || delta1.Sign() != 0 {
		t.Fatalf("pinned swap moved balances: %s/%s", delta0, delta1)
	}
}

func TestSwapToken0In(t *testing.T) {
	b, ref := newTestPool(t, 0)
	amountIn := big.NewInt(1_000_000_000)

	delta0, delta1, err := b.Swap(context.Background(), ref, true, amountIn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta0.Cmp(amountIn) != 0 {
		t.Fatalf("payment = %s, want full %s", delta0, amountIn)
	}
	if delta1.Sign() >= 0 {
		t.Fatalf("expected token1 received (negative), got %s", delta1)
	}
	received := new(big.Int).Neg(delta1)
	// Near price 1 with deep liquidity and no protocol fee the output is
	// almost the input.
	if received.Cmp(amountIn) > 0 {
		t.Fatalf("received more than paid at price 1: %s > %s", received, amountIn)
	}
	floor := new(big.Int).Mul(amountIn, big.NewInt(99))
	floor.Quo(floor, big.NewInt(100))
	if received.Cmp(floor) < 0 {
		t.Fatalf("excess slippage on a deep pool: %s < %s", received, floor)
	}

	sqrtPrice, _, err := b.Slot0(context.Background(), ref)
	if err != nil {
		t.Fatalf("slot0: %v", err)
	}
	if sqrtPrice.Cmp(fixedpoint.Q96) >= 0 {
		t.Fatalf("selling token0 must move the price down, got %s", sqrtPrice)
	}
}

func TestSwapToken1InMovesPriceUp(t *testing.T) {
	b, ref := newTestPool(t, 0)
	if _, _, err := b.Swap(context.Background(), ref, false, big.NewInt(1_000_000_000), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sqrtPrice, _, err := b.Slot0(context.Background(), ref)
	if err != nil {
		t.Fatalf("slot0: %v", err)
	}
	if sqrtPrice.Cmp(fixedpoint.Q96) <= 0 {
		t.Fatalf("selling token1 must move the price up, got %s", sqrtPrice)
	}
}

func TestSwapCappedAtLimit(t *testing.T) {
	b, ref := newTestPool(t, 0)
	limit, err := fixedpoint.SqrtPriceFromTick(-10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Large enough to blow far past the limit if uncapped.
	amountIn, _ := new(big.Int).SetString("100000000000000000", 10)
	delta0, _, err := b.Swap(context.Background(), ref, true, amountIn, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta0.Cmp(amountIn) >= 0 {
		t.Fatalf("capped swap consumed the full input: %s", delta0)
	}

	sqrtPrice, _, err := b.Slot0(context.Background(), ref)
	if err != nil {
		t.Fatalf("slot0: %v", err)
	}
	if sqrtPrice.Cmp(limit) != 0 {
		t.Fatalf("price stopped at %s, want limit %s", sqrtPrice, limit)
	}
}

func TestSwapWrongSideLimit(t *testing.T) {
	b, ref := newTestPool(t, 0)
	above := new(big.Int).Add(fixedpoint.Q96, big.NewInt(1))
	if _, _, err := b.Swap(context.Background(), ref, true, big.NewInt(100), above); err == nil {
		t.Fatalf("expected error for limit above current price on a sell")
	}
	below := new(big.Int).Sub(fixedpoint.Q96, big.NewInt(1))
	if _, _, err := b.Swap(context.Background(), ref, false, big.NewInt(100), below); err == nil {
		t.Fatalf("expected error for limit below current price on a buy")
	}
}

func TestSwapChargesFee(t *testing.T) {
	b, ref := newTestPool(t, 3000)
	amountIn := big.NewInt(1_000_000_000)

	before0, _, err := b.FeeGrowthGlobal(context.Background(), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delta0, delta1, err := b.Swap(context.Background(), ref, true, amountIn, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after0, _, err := b.FeeGrowthGlobal(context.Background(), ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after0.Cmp(before0) <= 0 {
		t.Fatalf("swap fee did not accrue to growth: %s <= %s", after0, before0)
	}

	// 0.3% fee: the output must lag the input by at least the fee.
	received := new(big.Int).Neg(delta1)
	ceiling := new(big.Int).Mul(amountIn, big.NewInt(998))
	ceiling.Quo(ceiling, big.NewInt(1000))
	if received.Cmp(ceiling) > 0 {
		t.Fatalf("fee not charged: received %s of %s paid", received, delta0)
	}
}

func TestSwapNegativeAmount(t *testing.T) {
	b, ref := newTestPool(t, 0)
	if _, _, err := b.Swap(context.Background(), ref, true, big.NewInt(-1), nil); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
