package memory

import (
	"context"
	"errors"
	"testing"

	"megabridge/internal/domain"
	"megabridge/internal/storage"
)

func TestPriceSnapshotStore_InsertAndQuery(t *testing.T) {
	store := NewPriceSnapshotStore()
	ctx := context.Background()

	snapshots := []*domain.PriceSnapshot{
		{Symbol: domain.SymbolETH, PriceUSD: 3500, FetchedAtMs: 3000},
		{Symbol: domain.SymbolETH, PriceUSD: 3400, FetchedAtMs: 1000},
		{Symbol: domain.SymbolETH, PriceUSD: 3450, FetchedAtMs: 2000},
		{Symbol: domain.SymbolSOL, PriceUSD: 180, FetchedAtMs: 2000},
	}
	if err := store.InsertBulk(ctx, snapshots); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetBySymbol(ctx, domain.SymbolETH, 1000, 2000)
	if err != nil {
		t.Fatalf("GetBySymbol failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(got))
	}
	if got[0].FetchedAtMs != 1000 || got[1].FetchedAtMs != 2000 {
		t.Errorf("Expected ascending order, got %d, %d", got[0].FetchedAtMs, got[1].FetchedAtMs)
	}
	if got[0].PriceUSD != 3400 {
		t.Errorf("PriceUSD mismatch: got %f, want 3400", got[0].PriceUSD)
	}
}

func TestPriceSnapshotStore_DuplicateKey(t *testing.T) {
	store := NewPriceSnapshotStore()
	ctx := context.Background()

	first := []*domain.PriceSnapshot{{Symbol: domain.SymbolETH, PriceUSD: 3500, FetchedAtMs: 1000}}
	if err := store.InsertBulk(ctx, first); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	batch := []*domain.PriceSnapshot{
		{Symbol: domain.SymbolSOL, PriceUSD: 180, FetchedAtMs: 1000},
		{Symbol: domain.SymbolETH, PriceUSD: 3600, FetchedAtMs: 1000},
	}
	if err := store.InsertBulk(ctx, batch); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Failed batch must not be partially applied
	sol, _ := store.GetBySymbol(ctx, domain.SymbolSOL, 0, 5000)
	if len(sol) != 0 {
		t.Errorf("Expected no SOL snapshots after failed batch, got %d", len(sol))
	}
}

func TestPriceSnapshotStore_EmptyBatch(t *testing.T) {
	store := NewPriceSnapshotStore()
	if err := store.InsertBulk(context.Background(), nil); err != nil {
		t.Errorf("Expected nil for empty batch, got %v", err)
	}
}
