// Package storage persists the engine's durable automation state: last
// claim timestamps, consumed request digests, and an audit trail of
// executed actions.
package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ActionRecord is one executed (or invalidated) automation action.
type ActionRecord struct {
	PositionID uint64 `json:"position_id"`
	Action     string `json:"action"`
	Digest     string `json:"digest"`
	Amount0    string `json:"amount0,omitempty"`
	Amount1    string `json:"amount1,omitempty"`
	ExecutedAt string `json:"executed_at"`
}

// StateStore is the durable state the automation engine needs between
// invocations. Everything else lives in the registry or the pool.
type StateStore interface {
	LastClaimedAt(ctx context.Context, positionID uint64) (uint64, bool, error)
	SetLastClaimedAt(ctx context.Context, positionID uint64, ts uint64) error
	DigestUsed(ctx context.Context, digest common.Hash) (bool, error)
	MarkDigestUsed(ctx context.Context, digest common.Hash) error
	AppendAction(ctx context.Context, record ActionRecord) error
}

// MemStore is an in-memory StateStore.
type MemStore struct {
	mu          sync.RWMutex
	lastClaimed map[uint64]uint64
	digests     map[common.Hash]struct{}
	actions     []ActionRecord
}

func NewMemStore() *MemStore {
	return &MemStore{
		lastClaimed: make(map[uint64]uint64),
		digests:     make(map[common.Hash]struct{}),
	}
}

func (s *MemStore) LastClaimedAt(_ context.Context, positionID uint64) (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.lastClaimed[positionID]
	return ts, ok, nil
}

func (s *MemStore) SetLastClaimedAt(_ context.Context, positionID uint64, ts uint64) error {
	s.mu.Lock()
	s.lastClaimed[positionID] = ts
	s.mu.Unlock()
	return nil
}

func (s *MemStore) DigestUsed(_ context.Context, digest common.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.digests[digest]
	return ok, nil
}

func (s *MemStore) MarkDigestUsed(_ context.Context, digest common.Hash) error {
	s.mu.Lock()
	s.digests[digest] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *MemStore) AppendAction(_ context.Context, record ActionRecord) error {
	s.mu.Lock()
	s.actions = append(s.actions, record)
	s.mu.Unlock()
	return nil
}

// Actions returns a copy of the recorded actions.
func (s *MemStore) Actions() []ActionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ActionRecord(nil), s.actions...)
}
