package automation

import (
	"context"
	"fmt"
	"math/big"

	"rangeKeeper/internal/fixedpoint"
	"rangeKeeper/internal/oracle"
	"rangeKeeper/internal/pool"
)

// Pricer resolves USD prices for a pool's token pair, deriving a missing
// side from the pool's 30-minute TWAP. Prices are in oracle base units per
// whole token; the engine compares values in a single unit system and
// leaves token-decimal normalization to the feed.
type Pricer struct {
	source oracle.PriceSource
	reader pool.Reader
}

func NewPricer(source oracle.PriceSource, reader pool.Reader) *Pricer {
	return &Pricer{source: source, reader: reader}
}

// PairPrices returns (price0, price1). A feed error or zero price counts
// as unavailable; with exactly one side missing the other is derived via
// TWAP, and ErrNoPriceAvailable surfaces only when that also fails or
// both sides are missing.
func (p *Pricer) PairPrices(ctx context.Context, ref pool.Ref) (*big.Int, *big.Int, error) {
	price0 := p.available(ctx, ref, true)
	price1 := p.available(ctx, ref, false)

	if price0 != nil && price1 != nil {
		return price0, price1, nil
	}
	if price0 == nil && price1 == nil {
		return nil, nil, ErrNoPriceAvailable
	}

	twapSqrt, err := pool.TWAPSqrtPrice(ctx, p.reader, ref, pool.TWAPWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoPriceAvailable, err)
	}

	if price0 == nil {
		// price0 = price1 * (token1 per token0).
		derived, err := fixedpoint.Token0To1(twapSqrt, price1)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrNoPriceAvailable, err)
		}
		if derived.Sign() == 0 {
			return nil, nil, ErrNoPriceAvailable
		}
		return derived, price1, nil
	}

	derived, err := fixedpoint.Token1To0(twapSqrt, price0)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoPriceAvailable, err)
	}
	if derived.Sign() == 0 {
		return nil, nil, ErrNoPriceAvailable
	}
	return price0, derived, nil
}

func (p *Pricer) available(ctx context.Context, ref pool.Ref, token0 bool) *big.Int {
	token := ref.Token0
	if !token0 {
		token = ref.Token1
	}
	price, err := p.source.AssetPrice(ctx, token)
	if err != nil || price == nil || price.Sign() == 0 {
		return nil
	}
	return price
}
