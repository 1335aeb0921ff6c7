package lifecycle

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"rangeKeeper/internal/pool"
)

// Registry holds position records and their ownership, standing in for the
// external NFT registry. Liquidity math stays in the Manager; the registry
// only stores.
type Registry interface {
	Mint(ctx context.Context, position pool.Position) (uint64, error)
	Get(ctx context.Context, id uint64) (pool.Position, error)
	Update(ctx context.Context, id uint64, position pool.Position) error
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)
}

// MemRegistry is an in-memory Registry.
type MemRegistry struct {
	mu     sync.RWMutex
	nextID uint64
	data   map[uint64]pool.Position
}

func NewMemRegistry() *MemRegistry {
	return &MemRegistry{nextID: 1, data: make(map[uint64]pool.Position)}
}

func (r *MemRegistry) Mint(_ context.Context, position pool.Position) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	position.ID = id
	r.data[id] = position.Clone()
	return id, nil
}

func (r *MemRegistry) Get(_ context.Context, id uint64) (pool.Position, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	position, ok := r.data[id]
	if !ok {
		return pool.Position{}, ErrPositionNotFound
	}
	return position.Clone(), nil
}

func (r *MemRegistry) Update(_ context.Context, id uint64, position pool.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return ErrPositionNotFound
	}
	position.ID = id
	r.data[id] = position.Clone()
	return nil
}

func (r *MemRegistry) OwnerOf(_ context.Context, id uint64) (common.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	position, ok := r.data[id]
	if !ok {
		return common.Address{}, ErrPositionNotFound
	}
	return position.Owner, nil
}

// IDs returns all known position ids.
func (r *MemRegistry) IDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint64, 0, len(r.data))
	for id := range r.data {
		out = append(out, id)
	}
	return out
}

type registrySnapshot struct {
	nextID uint64
	data   map[uint64]pool.Position
}

// Snapshot returns a deep copy of the registry state.
func (r *MemRegistry) Snapshot() any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data := make(map[uint64]pool.Position, len(r.data))
	for id, position := range r.data {
		data[id] = position.Clone()
	}
	return registrySnapshot{nextID: r.nextID, data: data}
}

// Restore replaces the registry state with a snapshot from Snapshot.
func (r *MemRegistry) Restore(snapshot any) {
	s, ok := snapshot.(registrySnapshot)
	if !ok {
		return
	}
	r.mu.Lock()
	r.nextID = s.nextID
	r.data = s.data
	r.mu.Unlock()
}
