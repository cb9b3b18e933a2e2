package memory

import (
	"context"
	"errors"
	"testing"

	"graph-allocopt/internal/domain"
	"graph-allocopt/internal/storage"
)

func testRun(runID string, createdAt int64) *domain.AllocationRun {
	return &domain.AllocationRun{
		RunID:             runID,
		IndexerAddress:    "0xabc",
		Epoch:             712,
		Mode:              "optimal",
		GasPerAllocation:  "0.01",
		AvailableStakeGRT: "950",
		PinnedStakeGRT:    "50",
		NumAllocations:    3,
		ProfitGRT:         "12.5",
		CreatedAt:         createdAt,
	}
}

func TestRunStore_InsertAndGet(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := testRun("run1", 1000)
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.ProfitGRT != "12.5" {
		t.Errorf("ProfitGRT mismatch: got %s, want 12.5", got.ProfitGRT)
	}
	if got.NumAllocations != 3 {
		t.Errorf("NumAllocations mismatch: got %d, want 3", got.NumAllocations)
	}
}

func TestRunStore_Duplicate(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRun("run1", 1000)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := store.Insert(ctx, testRun("run1", 2000))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("want ErrDuplicateKey, got %v", err)
	}
}

func TestRunStore_NotFound(t *testing.T) {
	store := NewRunStore()

	_, err := store.GetByID(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRunStore_InvalidInput(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil run: want ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.AllocationRun{IndexerAddress: "0xabc"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty run_id: want ErrInvalidInput, got %v", err)
	}
}

func TestRunStore_GetByIndexerOrdered(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	for _, r := range []*domain.AllocationRun{
		testRun("run2", 2000),
		testRun("run1", 1000),
		testRun("run3", 3000),
	} {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	other := testRun("other", 500)
	other.IndexerAddress = "0xdef"
	if err := store.Insert(ctx, other); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	runs, err := store.GetByIndexer(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetByIndexer failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("count: got %d, want 3", len(runs))
	}
	for i, want := range []string{"run1", "run2", "run3"} {
		if runs[i].RunID != want {
			t.Errorf("runs[%d] = %s, want %s", i, runs[i].RunID, want)
		}
	}
}

func TestRunStore_GetLatestByIndexer(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if _, err := store.GetLatestByIndexer(ctx, "0xabc"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("empty store: want ErrNotFound, got %v", err)
	}

	store.Insert(ctx, testRun("run1", 1000))
	store.Insert(ctx, testRun("run2", 2000))

	latest, err := store.GetLatestByIndexer(ctx, "0xabc")
	if err != nil {
		t.Fatalf("GetLatestByIndexer failed: %v", err)
	}
	if latest.RunID != "run2" {
		t.Errorf("latest: got %s, want run2", latest.RunID)
	}
}

func TestRunStore_ReturnsCopies(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	store.Insert(ctx, testRun("run1", 1000))

	got, _ := store.GetByID(ctx, "run1")
	got.ProfitGRT = "mutated"

	again, _ := store.GetByID(ctx, "run1")
	if again.ProfitGRT != "12.5" {
		t.Error("store leaked internal state to caller")
	}
}
