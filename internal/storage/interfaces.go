package storage

import (
	"context"

	"megabridge/internal/domain"
)

// BridgeTransactionStore provides access to the bridge_transactions ledger.
type BridgeTransactionStore interface {
	// Create assigns a new ID and inserts tx. ID, CreatedAt and UpdatedAt are set on tx.
	// Returns ErrInvalidInput if required fields are missing and ErrDuplicateKey
	// if another transaction already carries the same TxHash.
	Create(ctx context.Context, tx *domain.BridgeTransaction) error

	// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id int64) (*domain.BridgeTransaction, error)

	// ListByDepositor retrieves all transactions of a depositor, ordered by created_at DESC.
	ListByDepositor(ctx context.Context, depositor string) ([]*domain.BridgeTransaction, error)

	// ListPending retrieves all pending transactions, ordered by created_at ASC.
	ListPending(ctx context.Context) ([]*domain.BridgeTransaction, error)

	// UpdateStatus moves a pending transaction to a terminal status and returns the updated record.
	// Returns ErrNotFound if the ID does not exist or the transaction is no longer pending.
	UpdateStatus(ctx context.Context, id int64, status domain.TransactionStatus, completedTxHash *string) (*domain.BridgeTransaction, error)
}

// PriceSnapshotStore provides access to price_snapshots storage.
type PriceSnapshotStore interface {
	// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (symbol, fetched_at_ms).
	InsertBulk(ctx context.Context, snapshots []*domain.PriceSnapshot) error

	// GetBySymbol retrieves snapshots for a symbol within [start, end] (inclusive), ordered by fetched_at ASC.
	GetBySymbol(ctx context.Context, symbol domain.Symbol, start, end int64) ([]*domain.PriceSnapshot, error)
}
