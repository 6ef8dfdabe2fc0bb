package memory

import (
	"context"
	"sort"
	"sync"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.AggregationRun // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*domain.AggregationRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, r *domain.AggregationRun) error {
	if r == nil || r.RunID == "" || r.Account == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	runCopy := *r
	s.runs[r.RunID] = &runCopy
	return nil
}

// ListByAccount retrieves the newest runs for an account.
func (s *RunStore) ListByAccount(_ context.Context, account string, limit int) ([]*domain.AggregationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AggregationRun
	for _, r := range s.runs {
		if r.Account == account {
			runCopy := *r
			result = append(result, &runCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CompletedAt != result[j].CompletedAt {
			return result[i].CompletedAt > result[j].CompletedAt
		}
		return result[i].RunID < result[j].RunID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.RunStore = (*RunStore)(nil)
