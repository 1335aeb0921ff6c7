package pool

import (
	"context"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	"rangeKeeper/internal/fixedpoint"
)

// stubReader serves canned cumulatives for Observe; the other reads are
// unused by TWAP.
type stubReader struct {
	cumulatives []int64
}

func (s stubReader) Slot0(context.Context, Ref) (*big.Int, int32, error) {
	return nil, 0, nil
}

func (s stubReader) FeeGrowthGlobal(context.Context, Ref) (*uint256.Int, *uint256.Int, error) {
	return nil, nil, nil
}

func (s stubReader) FeeGrowthOutside(context.Context, Ref, int32) (*uint256.Int, *uint256.Int, error) {
	return nil, nil, nil
}

func (s stubReader) Observe(_ context.Context, _ Ref, secondsAgos []uint32) ([]int64, error) {
	return s.cumulatives, nil
}

func TestTWAPSqrtPriceSteady(t *testing.T) {
	// Constant tick 500 over a 600s window.
	r := stubReader{cumulatives: []int64{0, 500 * 600}}
	got, err := TWAPSqrtPrice(context.Background(), r, Ref{}, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := fixedpoint.SqrtPriceFromTick(500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("twap sqrt price mismatch: %s != %s", got, want)
	}
}

func TestTWAPSqrtPriceFloorsNegative(t *testing.T) {
	// delta = -601 over 600s averages to tick -2, not -1: the division
	// floors toward negative infinity.
	r := stubReader{cumulatives: []int64{0, -601}}
	got, err := TWAPSqrtPrice(context.Background(), r, Ref{}, 600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := fixedpoint.SqrtPriceFromTick(-2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(want) != 0 {
		t.Fatalf("twap sqrt price mismatch: %s != %s", got, want)
	}
}

func TestTWAPSqrtPriceZeroWindow(t *testing.T) {
	if _, err := TWAPSqrtPrice(context.Background(), stubReader{}, Ref{}, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
