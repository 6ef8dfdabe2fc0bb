package memory

import (
	"context"
	"sort"
	"sync"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	byID      map[string]*domain.HoldingSnapshot
	byAccount map[string][]*domain.HoldingSnapshot // insertion order
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		byID:      make(map[string]*domain.HoldingSnapshot),
		byAccount: make(map[string][]*domain.HoldingSnapshot),
	}
}

// Insert adds a new snapshot. Returns ErrDuplicateKey if id exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.HoldingSnapshot) error {
	if snap == nil || snap.ID == "" || snap.Account == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[snap.ID]; exists {
		return storage.ErrDuplicateKey
	}

	c := copySnapshot(snap)
	s.byID[snap.ID] = c
	s.byAccount[snap.Account] = append(s.byAccount[snap.Account], c)
	return nil
}

// GetByID retrieves a snapshot by ID. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(_ context.Context, id string) (*domain.HoldingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, exists := s.byID[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copySnapshot(snap), nil
}

// ListByAccount retrieves the newest snapshots for an account.
func (s *SnapshotStore) ListByAccount(_ context.Context, account string, limit int) ([]*domain.HoldingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.byAccount[account]
	result := make([]*domain.HoldingSnapshot, 0, len(src))
	for _, snap := range src {
		result = append(result, copySnapshot(snap))
	}

	// Newest first; ties keep reverse insertion order
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func copySnapshot(snap *domain.HoldingSnapshot) *domain.HoldingSnapshot {
	c := *snap
	if snap.BlockNumber != nil {
		bn := *snap.BlockNumber
		c.BlockNumber = &bn
	}
	c.TokenIDs = append([]string(nil), snap.TokenIDs...)
	return &c
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
