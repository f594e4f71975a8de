package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"megabridge/internal/domain"
	"megabridge/internal/storage"
)

// BridgeTransactionStore is an in-memory implementation of storage.BridgeTransactionStore.
type BridgeTransactionStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.BridgeTransaction // keyed by id
	nextID int64
	now    func() time.Time
}

// NewBridgeTransactionStore creates a new in-memory ledger.
func NewBridgeTransactionStore() *BridgeTransactionStore {
	return &BridgeTransactionStore{
		data:   make(map[int64]*domain.BridgeTransaction),
		nextID: 1,
		now:    time.Now,
	}
}

// Create assigns a new ID and inserts tx. Deposit hashes are unique.
func (s *BridgeTransactionStore) Create(_ context.Context, tx *domain.BridgeTransaction) error {
	if tx == nil || tx.Depositor == "" || tx.Amount == "" {
		return storage.ErrInvalidInput
	}
	if tx.Status == "" {
		tx.Status = domain.StatusPending
	}
	if !tx.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.TxHash != nil {
		for _, existing := range s.data {
			if existing.TxHash != nil && *existing.TxHash == *tx.TxHash {
				return storage.ErrDuplicateKey
			}
		}
	}

	nowMs := s.now().UnixMilli()
	tx.ID = s.nextID
	tx.CreatedAt = nowMs
	tx.UpdatedAt = nowMs
	s.nextID++

	// Store a copy to prevent external mutation
	s.data[tx.ID] = copyTx(tx)
	return nil
}

// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
func (s *BridgeTransactionStore) GetByID(_ context.Context, id int64) (*domain.BridgeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyTx(tx), nil
}

// ListByDepositor retrieves all transactions of a depositor, newest first.
func (s *BridgeTransactionStore) ListByDepositor(_ context.Context, depositor string) ([]*domain.BridgeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.BridgeTransaction{}
	for _, tx := range s.data {
		if tx.Depositor == depositor {
			result = append(result, copyTx(tx))
		}
	}

	// Sort by created_at DESC, id DESC
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// ListPending retrieves all pending transactions, oldest first.
func (s *BridgeTransactionStore) ListPending(_ context.Context) ([]*domain.BridgeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.BridgeTransaction{}
	for _, tx := range s.data {
		if tx.Status == domain.StatusPending {
			result = append(result, copyTx(tx))
		}
	}

	// Sort by created_at ASC, id ASC
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// UpdateStatus moves a pending transaction to status.
func (s *BridgeTransactionStore) UpdateStatus(_ context.Context, id int64, status domain.TransactionStatus, completedTxHash *string) (*domain.BridgeTransaction, error) {
	if !status.IsTerminal() {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, exists := s.data[id]
	if !exists || tx.Status != domain.StatusPending {
		return nil, storage.ErrNotFound
	}

	tx.Status = status
	if completedTxHash != nil {
		h := *completedTxHash
		tx.CompletedTxHash = &h
	}
	tx.UpdatedAt = s.now().UnixMilli()

	return copyTx(tx), nil
}

func copyTx(tx *domain.BridgeTransaction) *domain.BridgeTransaction {
	c := *tx
	if tx.TxHash != nil {
		h := *tx.TxHash
		c.TxHash = &h
	}
	if tx.CompletedTxHash != nil {
		h := *tx.CompletedTxHash
		c.CompletedTxHash = &h
	}
	return &c
}

// Verify interface compliance at compile time.
var _ storage.BridgeTransactionStore = (*BridgeTransactionStore)(nil)
