// Package chainpool exposes a live V3 pool contract as a read-only
// pool.Reader via eth_call. It powers off-chain trigger evaluation;
// state-changing operations go through transaction infrastructure this
// module does not own.
package chainpool

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"rangeKeeper/internal/chain"
	"rangeKeeper/internal/pool"
)

// Reader implements pool.Reader over registered pool contracts.
type Reader struct {
	client *chain.Client

	mu        sync.RWMutex
	addresses map[pool.Ref]common.Address
}

func NewReader(client *chain.Client) *Reader {
	return &Reader{client: client, addresses: make(map[pool.Ref]common.Address)}
}

// Register binds a pool reference to its contract address.
func (r *Reader) Register(ref pool.Ref, address common.Address) {
	r.mu.Lock()
	r.addresses[ref] = address
	r.mu.Unlock()
}

// FetchRef loads the immutable pool parameters from the contract and
// registers the resulting reference.
func (r *Reader) FetchRef(ctx context.Context, address common.Address) (pool.Ref, error) {
	values, err := r.callAt(ctx, address, "token0")
	if err != nil {
		return pool.Ref{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return pool.Ref{}, fmt.Errorf("token0: %w", err)
	}

	values, err = r.callAt(ctx, address, "token1")
	if err != nil {
		return pool.Ref{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return pool.Ref{}, fmt.Errorf("token1: %w", err)
	}

	values, err = r.callAt(ctx, address, "fee")
	if err != nil {
		return pool.Ref{}, err
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return pool.Ref{}, fmt.Errorf("fee: %w", err)
	}

	values, err = r.callAt(ctx, address, "tickSpacing")
	if err != nil {
		return pool.Ref{}, err
	}
	spacing, err := asBigInt(values[0])
	if err != nil {
		return pool.Ref{}, fmt.Errorf("tick spacing: %w", err)
	}

	ref := pool.Ref{
		Token0:      token0,
		Token1:      token1,
		Fee:         uint32(fee.Uint64()),
		TickSpacing: int32(spacing.Int64()),
	}
	if err := ref.Validate(); err != nil {
		return pool.Ref{}, err
	}
	r.Register(ref, address)
	return ref, nil
}

func (r *Reader) address(ref pool.Ref) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	address, ok := r.addresses[ref]
	if !ok {
		return common.Address{}, fmt.Errorf("chainpool: pool not registered")
	}
	return address, nil
}

func (r *Reader) Slot0(ctx context.Context, ref pool.Ref) (*big.Int, int32, error) {
	address, err := r.address(ref)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.callAt(ctx, address, "slot0")
	if err != nil {
		return nil, 0, err
	}
	if len(values) < 2 {
		return nil, 0, fmt.Errorf("slot0 return size %d", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return nil, 0, fmt.Errorf("sqrtPriceX96: %w", err)
	}
	tick, err := asBigInt(values[1])
	if err != nil {
		return nil, 0, fmt.Errorf("tick: %w", err)
	}
	return sqrtPrice, int32(tick.Int64()), nil
}

func (r *Reader) FeeGrowthGlobal(ctx context.Context, ref pool.Ref) (*uint256.Int, *uint256.Int, error) {
	address, err := r.address(ref)
	if err != nil {
		return nil, nil, err
	}
	fee0, err := r.callUint256(ctx, address, "feeGrowthGlobal0X128")
	if err != nil {
		return nil, nil, err
	}
	fee1, err := r.callUint256(ctx, address, "feeGrowthGlobal1X128")
	if err != nil {
		return nil, nil, err
	}
	return fee0, fee1, nil
}

func (r *Reader) FeeGrowthOutside(ctx context.Context, ref pool.Ref, tick int32) (*uint256.Int, *uint256.Int, error) {
	address, err := r.address(ref)
	if err != nil {
		return nil, nil, err
	}
	values, err := r.callAt(ctx, address, "ticks", big.NewInt(int64(tick)))
	if err != nil {
		return nil, nil, err
	}
	if len(values) < 4 {
		return nil, nil, fmt.Errorf("ticks return size %d", len(values))
	}
	out0, err := asUint256(values[2])
	if err != nil {
		return nil, nil, fmt.Errorf("feeGrowthOutside0X128: %w", err)
	}
	out1, err := asUint256(values[3])
	if err != nil {
		return nil, nil, fmt.Errorf("feeGrowthOutside1X128: %w", err)
	}
	return out0, out1, nil
}

func (r *Reader) Observe(ctx context.Context, ref pool.Ref, secondsAgos []uint32) ([]int64, error) {
	address, err := r.address(ref)
	if err != nil {
		return nil, err
	}
	values, err := r.callAt(ctx, address, "observe", secondsAgos)
	if err != nil {
		return nil, err
	}
	if len(values) < 1 {
		return nil, fmt.Errorf("observe returned nothing")
	}
	cumulatives, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("observe unexpected type %T", values[0])
	}
	out := make([]int64, len(cumulatives))
	for i, c := range cumulatives {
		out[i] = c.Int64()
	}
	return out, nil
}

func (r *Reader) callAt(ctx context.Context, address common.Address, method string, args ...interface{}) ([]interface{}, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	data, err := poolABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &address, Data: data}
	resp, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := poolABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func (r *Reader) callUint256(ctx context.Context, address common.Address, method string) (*uint256.Int, error) {
	values, err := r.callAt(ctx, address, method)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	return asUint256(values[0])
}

func asAddress(v interface{}) (common.Address, error) {
	address, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected type %T", v)
	}
	return address, nil
}

func asBigInt(v interface{}) (*big.Int, error) {
	value, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", v)
	}
	return value, nil
}

func asUint256(v interface{}) (*uint256.Int, error) {
	value, err := asBigInt(v)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(value)
	if overflow {
		return nil, fmt.Errorf("value exceeds 256 bits")
	}
	return out, nil
}
