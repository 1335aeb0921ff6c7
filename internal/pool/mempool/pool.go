// Package mempool is an in-process pool backend with honest
// concentrated-liquidity swap math. It backs the quote command and the
// engine's tests; live pools are reached through chainpool instead.
package mempool

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"rangeKeeper/internal/fixedpoint"
	"rangeKeeper/internal/pool"
)

type tickState struct {
	outside0 *uint256.Int
	outside1 *uint256.Int
}

type observation struct {
	timestamp      int64
	tickCumulative int64
}

// Pool holds the state of one simulated pool.
type Pool struct {
	ref          pool.Ref
	sqrtPriceX96 *big.Int
	tick         int32
	liquidity    *big.Int
	feeGrowth0   *uint256.Int
	feeGrowth1   *uint256.Int
	ticks        map[int32]*tickState
	observations []observation
}

// Backend implements pool.Backend over a set of in-memory pools.
type Backend struct {
	mu    sync.Mutex
	pools map[pool.Ref]*Pool
	now   func() time.Time
}

// New returns an empty backend using the wall clock.
func New() *Backend {
	return &Backend{pools: make(map[pool.Ref]*Pool), now: time.Now}
}

// SetClock overrides the time source.
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// CreatePool registers a pool at an initial sqrt price.
func (b *Backend) CreatePool(ref pool.Ref, sqrtPriceX96 *big.Int) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if sqrtPriceX96.Cmp(fixedpoint.MinSqrtRatio) < 0 || sqrtPriceX96.Cmp(fixedpoint.MaxSqrtRatio) > 0 {
		return fmt.Errorf("mempool: initial sqrt price out of range")
	}
	tick, err := fixedpoint.TickFromSqrtPrice(sqrtPriceX96)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pools[ref]; ok {
		return fmt.Errorf("mempool: pool already exists")
	}
	p := &Pool{
		ref:          ref,
		sqrtPriceX96: new(big.Int).Set(sqrtPriceX96),
		tick:         tick,
		liquidity:    big.NewInt(0),
		feeGrowth0:   uint256.NewInt(0),
		feeGrowth1:   uint256.NewInt(0),
		ticks:        make(map[int32]*tickState),
	}
	p.observations = append(p.observations, observation{timestamp: b.now().Unix(), tickCumulative: 0})
	b.pools[ref] = p
	return nil
}

func (b *Backend) get(ref pool.Ref) (*Pool, error) {
	p, ok := b.pools[ref]
	if !ok {
		return nil, fmt.Errorf("mempool: unknown pool %s/%s", ref.Token0.Hex(), ref.Token1.Hex())
	}
	return p, nil
}

// recordObservation extends the cumulative-tick history up to now and must
// precede any tick change.
func (p *Pool) recordObservation(now int64) {
	last := p.observations[len(p.observations)-1]
	if now <= last.timestamp {
		return
	}
	cumulative := last.tickCumulative + int64(p.tick)*(now-last.timestamp)
	p.observations = append(p.observations, observation{timestamp: now, tickCumulative: cumulative})
}

func (p *Pool) cumulativeAt(ts int64) int64 {
	last := p.observations[len(p.observations)-1]
	if ts >= last.timestamp {
		return last.tickCumulative + int64(p.tick)*(ts-last.timestamp)
	}
	first := p.observations[0]
	if ts <= first.timestamp {
		// Extrapolate backward at the earliest recorded tick.
		return first.tickCumulative
	}
	for i := len(p.observations) - 1; i > 0; i-- {
		prev := p.observations[i-1]
		cur := p.observations[i]
		if ts >= prev.timestamp && ts <= cur.timestamp {
			span := cur.timestamp - prev.timestamp
			if span == 0 {
				return cur.tickCumulative
			}
			frac := ts - prev.timestamp
			return prev.tickCumulative + (cur.tickCumulative-prev.tickCumulative)*frac/span
		}
	}
	return first.tickCumulative
}

func (b *Backend) Slot0(_ context.Context, ref pool.Ref) (*big.Int, int32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(ref)
	if err != nil {
		return nil, 0, err
	}
	return new(big.Int).Set(p.sqrtPriceX96), p.tick, nil
}

func (b *Backend) FeeGrowthGlobal(_ context.Context, ref pool.Ref) (*uint256.Int, *uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(ref)
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Set(p.feeGrowth0), new(uint256.Int).Set(p.feeGrowth1), nil
}

func (b *Backend) FeeGrowthOutside(_ context.Context, ref pool.Ref, tick int32) (*uint256.Int, *uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(ref)
	if err != nil {
		return nil, nil, err
	}
	ts, ok := p.ticks[tick]
	if !ok {
		return uint256.NewInt(0), uint256.NewInt(0), nil
	}
	return new(uint256.Int).Set(ts.outside0), new(uint256.Int).Set(ts.outside1), nil
}

func (b *Backend) Observe(_ context.Context, ref pool.Ref, secondsAgos []uint32) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(ref)
	if err != nil {
		return nil, err
	}
	now := b.now().Unix()
	out := make([]int64, len(secondsAgos))
	for i, ago := range secondsAgos {
		out[i] = p.cumulativeAt(now - int64(ago))
	}
	return out, nil
}

// ModifyLiquidity adds or removes range liquidity. Boundary ticks are
// initialized on first touch with the pool's convention: outside = global
// when the tick is at or below the current tick, zero otherwise.
func (b *Backend) ModifyLiquidity(_ context.Context, ref pool.Ref, rng pool.Range, liquidityDelta *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(ref)
	if err != nil {
		return err
	}
	if err := rng.Validate(ref.TickSpacing); err != nil {
		return err
	}

	p.touchTick(rng.TickLower)
	p.touchTick(rng.TickUpper)

	if rng.TickLower <= p.tick && p.tick < rng.TickUpper {
		next := new(big.Int).Add(p.liquidity, liquidityDelta)
		if next.Sign() < 0 {
			return fmt.Errorf("mempool: liquidity underflow")
		}
		p.liquidity = next
	}
	return nil
}

func (p *Pool) touchTick(tick int32) {
	if _, ok := p.ticks[tick]; ok {
		return
	}
	ts := &tickState{outside0: uint256.NewInt(0), outside1: uint256.NewInt(0)}
	if tick <= p.tick {
		ts.outside0.Set(p.feeGrowth0)
		ts.outside1.Set(p.feeGrowth1)
	}
	p.ticks[tick] = ts
}

// AccrueFees credits trading fees directly to the global growth counters,
// as if swaps had paid them to the active liquidity.
func (b *Backend) AccrueFees(ref pool.Ref, fee0, fee1 *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.get(ref)
	if err != nil {
		return err
	}
	if p.liquidity.Sign() == 0 {
		return fmt.Errorf("mempool: no active liquidity to accrue against")
	}
	for _, entry := range []struct {
		fee    *big.Int
		growth *uint256.Int
	}{{fee0, p.feeGrowth0}, {fee1, p.feeGrowth1}} {
		if entry.fee == nil || entry.fee.Sign() == 0 {
			continue
		}
		perLiquidity, err := fixedpoint.MulDiv(entry.fee, fixedpoint.Q128, p.liquidity)
		if err != nil {
			return err
		}
		entry.growth.Add(entry.growth, uint256FromBigWrapped(perLiquidity))
	}
	return nil
}

// uint256FromBigWrapped reduces a non-negative v mod 2^256, matching the
// pool's native wrapping accumulator width.
func uint256FromBigWrapped(v *big.Int) *uint256.Int {
	out := new(uint256.Int)
	out.SetFromBig(v)
	return out
}

// Snapshot returns a deep copy of the backend state.
func (b *Backend) Snapshot() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := make(map[pool.Ref]*Pool, len(b.pools))
	for ref, p := range b.pools {
		cp := &Pool{
			ref:          p.ref,
			sqrtPriceX96: new(big.Int).Set(p.sqrtPriceX96),
			tick:         p.tick,
			liquidity:    new(big.Int).Set(p.liquidity),
			feeGrowth0:   new(uint256.Int).Set(p.feeGrowth0),
			feeGrowth1:   new(uint256.Int).Set(p.feeGrowth1),
			ticks:        make(map[int32]*tickState, len(p.ticks)),
			observations: append([]observation(nil), p.observations...),
		}
		for tick, ts := range p.ticks {
			cp.ticks[tick] = &tickState{
				outside0: new(uint256.Int).Set(ts.outside0),
				outside1: new(uint256.Int).Set(ts.outside1),
			}
		}
		copied[ref] = cp
	}
	return copied
}

// Restore replaces the backend state with a snapshot from Snapshot.
func (b *Backend) Restore(snapshot any) {
	pools, ok := snapshot.(map[pool.Ref]*Pool)
	if !ok {
		return
	}
	b.mu.Lock()
	b.pools = pools
	b.mu.Unlock()
}
