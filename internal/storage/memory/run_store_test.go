package memory

import (
	"context"
	"errors"
	"testing"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/storage"
)

func TestRunStore_InsertAndList(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	runs := []*domain.AggregationRun{
		{RunID: "r1", Account: testAccount, Balance: 3, AssetCount: 3, CompletedAt: 1000},
		{RunID: "r2", Account: testAccount, Balance: 3, AssetCount: 2, Skipped: 1, CompletedAt: 2000},
		{RunID: "r3", Account: "0xother", Balance: 1, AssetCount: 1, CompletedAt: 1500},
	}
	for _, r := range runs {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert %s failed: %v", r.RunID, err)
		}
	}

	result, err := store.ListByAccount(ctx, testAccount, 0)
	if err != nil {
		t.Fatalf("ListByAccount failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(result))
	}
	if result[0].RunID != "r2" {
		t.Errorf("expected newest run r2 first, got %s", result[0].RunID)
	}
	if result[0].Skipped != 1 {
		t.Errorf("Skipped mismatch: got %d, want 1", result[0].Skipped)
	}

	limited, _ := store.ListByAccount(ctx, testAccount, 1)
	if len(limited) != 1 {
		t.Errorf("expected 1 run with limit, got %d", len(limited))
	}
}

func TestRunStore_Duplicate(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := &domain.AggregationRun{RunID: "r1", Account: testAccount}
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, run); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.AggregationRun{Account: testAccount}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
