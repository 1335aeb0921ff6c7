package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// fileState is the JSON snapshot written to disk. Digests are stored as
// hex strings so the file stays human-readable.
type fileState struct {
	LastClaimedAt map[uint64]uint64 `json:"last_claimed_at"`
	UsedDigests   []string          `json:"used_digests"`
}

// FileStore is a file-backed StateStore. The snapshot (claim timestamps
// and consumed digests) is rewritten atomically on every change via a
// tmp-file rename; executed actions are appended to a JSONL audit file.
type FileStore struct {
	statePath string
	auditPath string

	mu          sync.Mutex
	lastClaimed map[uint64]uint64
	digests     map[common.Hash]struct{}
}

// NewFileStore loads the snapshot at statePath if present. auditPath may
// be empty to disable the audit trail.
func NewFileStore(statePath, auditPath string) (*FileStore, error) {
	s := &FileStore{
		statePath:   statePath,
		auditPath:   auditPath,
		lastClaimed: make(map[uint64]uint64),
		digests:     make(map[common.Hash]struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	stat, err := os.Stat(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.statePath)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	var st fileState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}

	for id, ts := range st.LastClaimedAt {
		s.lastClaimed[id] = ts
	}
	for _, hex := range st.UsedDigests {
		s.digests[common.HexToHash(hex)] = struct{}{}
	}
	return nil
}

// save rewrites the snapshot. Caller holds s.mu.
func (s *FileStore) save() error {
	st := fileState{
		LastClaimedAt: s.lastClaimed,
		UsedDigests:   make([]string, 0, len(s.digests)),
	}
	for digest := range s.digests {
		st.UsedDigests = append(st.UsedDigests, digest.Hex())
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.statePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmpPath := s.statePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.statePath); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

func (s *FileStore) LastClaimedAt(_ context.Context, positionID uint64) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastClaimed[positionID]
	return ts, ok, nil
}

func (s *FileStore) SetLastClaimedAt(_ context.Context, positionID uint64, ts uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastClaimed[positionID] = ts
	return s.save()
}

func (s *FileStore) DigestUsed(_ context.Context, digest common.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.digests[digest]
	return ok, nil
}

func (s *FileStore) MarkDigestUsed(_ context.Context, digest common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[digest] = struct{}{}
	return s.save()
}

func (s *FileStore) AppendAction(_ context.Context, record ActionRecord) error {
	if s.auditPath == "" {
		return nil
	}

	dir := filepath.Dir(s.auditPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal action record: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write action record: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush audit file: %w", err)
	}
	return nil
}
