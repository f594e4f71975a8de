package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"megabridge/internal/domain"
	"megabridge/internal/storage"
)

func newTestTx(depositor string) *domain.BridgeTransaction {
	return &domain.BridgeTransaction{
		Depositor:          depositor,
		Amount:             "1",
		QuotedOutputAmount: "0.994000",
		InputToken:         domain.SymbolETH,
		OutputToken:        domain.SymbolETH,
		SlippageBps:        domain.SlippageBps,
		SourceChainID:      domain.ChainKeyBase,
		DestChainID:        domain.MegaETHChainID,
	}
}

// steppingClock returns a clock that advances one millisecond per call.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.UnixMilli(1704067200000)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func TestBridgeTransactionStore_CreateAndGet(t *testing.T) {
	store := NewBridgeTransactionStore()
	ctx := context.Background()

	tx := newTestTx("0xabc")
	if err := store.Create(ctx, tx); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tx.ID != 1 {
		t.Errorf("ID mismatch: got %d, want 1", tx.ID)
	}
	if tx.Status != domain.StatusPending {
		t.Errorf("Status mismatch: got %s, want pending", tx.Status)
	}
	if tx.CreatedAt == 0 || tx.UpdatedAt != tx.CreatedAt {
		t.Errorf("timestamps not set: created %d, updated %d", tx.CreatedAt, tx.UpdatedAt)
	}

	got, err := store.GetByID(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Depositor != "0xabc" || got.QuotedOutputAmount != "0.994000" {
		t.Errorf("unexpected record: %+v", got)
	}

	// Mutating the returned copy must not affect the store
	got.Status = domain.StatusRejected
	again, _ := store.GetByID(ctx, tx.ID)
	if again.Status != domain.StatusPending {
		t.Errorf("store mutated through returned copy")
	}
}

func TestBridgeTransactionStore_InvalidInput(t *testing.T) {
	store := NewBridgeTransactionStore()
	ctx := context.Background()

	if err := store.Create(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Create(ctx, &domain.BridgeTransaction{Amount: "1"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing depositor, got %v", err)
	}
}

func TestBridgeTransactionStore_DuplicateTxHash(t *testing.T) {
	store := NewBridgeTransactionStore()
	ctx := context.Background()

	hash := "0xdeposit"
	first := newTestTx("0xaaa")
	first.TxHash = &hash
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	again := newTestTx("0xbbb")
	again.TxHash = &hash
	if err := store.Create(ctx, again); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Transactions without a deposit hash never collide
	for i := 0; i < 2; i++ {
		if err := store.Create(ctx, newTestTx("0xaaa")); err != nil {
			t.Fatalf("Create without hash failed: %v", err)
		}
	}

	pending, _ := store.ListPending(ctx)
	if len(pending) != 3 {
		t.Errorf("pending count: got %d, want 3", len(pending))
	}
}

func TestBridgeTransactionStore_NotFound(t *testing.T) {
	store := NewBridgeTransactionStore()

	_, err := store.GetByID(context.Background(), 42)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBridgeTransactionStore_ListByDepositor(t *testing.T) {
	store := NewBridgeTransactionStore()
	store.now = steppingClock()
	ctx := context.Background()

	for _, d := range []string{"0xaaa", "0xbbb", "0xaaa"} {
		if err := store.Create(ctx, newTestTx(d)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	got, err := store.ListByDepositor(ctx, "0xaaa")
	if err != nil {
		t.Fatalf("ListByDepositor failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(got))
	}
	if got[0].ID != 3 || got[1].ID != 1 {
		t.Errorf("Expected newest first [3 1], got [%d %d]", got[0].ID, got[1].ID)
	}

	none, err := store.ListByDepositor(ctx, "0xccc")
	if err != nil {
		t.Fatalf("ListByDepositor failed: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", none)
	}
}

func TestBridgeTransactionStore_UpdateStatus(t *testing.T) {
	store := NewBridgeTransactionStore()
	store.now = steppingClock()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, newTestTx("0xabc")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	hash := "0xdeadbeef"
	done, err := store.UpdateStatus(ctx, 2, domain.StatusCompleted, &hash)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.CompletedTxHash == nil || *done.CompletedTxHash != hash {
		t.Errorf("unexpected completed record: %+v", done)
	}
	if done.UpdatedAt <= done.CreatedAt {
		t.Errorf("UpdatedAt not advanced: created %d, updated %d", done.CreatedAt, done.UpdatedAt)
	}

	if _, err := store.UpdateStatus(ctx, 3, domain.StatusRejected, nil); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	// Terminal records cannot transition again
	if _, err := store.UpdateStatus(ctx, 2, domain.StatusRejected, nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for completed record, got %v", err)
	}
	if _, err := store.UpdateStatus(ctx, 99, domain.StatusCompleted, &hash); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
	if _, err := store.UpdateStatus(ctx, 1, domain.StatusPending, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for non-terminal status, got %v", err)
	}

	pending, err := store.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != 1 {
		t.Errorf("Expected only tx 1 pending, got %d records", len(pending))
	}
}

func TestBridgeTransactionStore_ConcurrentCreate(t *testing.T) {
	store := NewBridgeTransactionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Create(ctx, newTestTx("0xabc")); err != nil {
				t.Errorf("Create failed: %v", err)
			}
		}()
	}
	wg.Wait()

	all, _ := store.ListByDepositor(ctx, "0xabc")
	if len(all) != 50 {
		t.Fatalf("Expected 50 transactions, got %d", len(all))
	}
	seen := make(map[int64]bool)
	for _, tx := range all {
		if seen[tx.ID] {
			t.Errorf("duplicate id %d", tx.ID)
		}
		seen[tx.ID] = true
	}
}
