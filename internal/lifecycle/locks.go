package lifecycle

import "sync"

// keyedMutex serializes operations per position id. Two requests for the
// same position must never interleave their read-modify-write of liquidity
// and fee snapshots; requests for different positions stay independent.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint64]*sync.Mutex)}
}

func (k *keyedMutex) lock(id uint64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
