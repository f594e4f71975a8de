package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"megabridge/internal/domain"
	"megabridge/internal/storage"
)

// BridgeTransactionStore implements storage.BridgeTransactionStore using PostgreSQL.
type BridgeTransactionStore struct {
	pool *Pool
}

// NewBridgeTransactionStore creates a new BridgeTransactionStore.
func NewBridgeTransactionStore(pool *Pool) *BridgeTransactionStore {
	return &BridgeTransactionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BridgeTransactionStore = (*BridgeTransactionStore)(nil)

const bridgeTransactionColumns = `
	id, depositor, amount, quoted_output_amount, input_token, output_token, slippage_bps,
	status, source_chain_id, dest_chain_id, tx_hash, completed_tx_hash, created_at, updated_at
`

// Create assigns a new ID and inserts tx.
func (s *BridgeTransactionStore) Create(ctx context.Context, tx *domain.BridgeTransaction) (err error) {
	if tx == nil || tx.Depositor == "" || tx.Amount == "" {
		return storage.ErrInvalidInput
	}
	if tx.Status == "" {
		tx.Status = domain.StatusPending
	}
	if !tx.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { observe("create", start, err) }()

	query := `
		INSERT INTO bridge_transactions (
			depositor, amount, quoted_output_amount, input_token, output_token, slippage_bps,
			status, source_chain_id, dest_chain_id, tx_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id
	`

	nowMs := time.Now().UnixMilli()
	err = s.pool.QueryRow(ctx, query,
		tx.Depositor,
		tx.Amount,
		tx.QuotedOutputAmount,
		string(tx.InputToken),
		string(tx.OutputToken),
		tx.SlippageBps,
		string(tx.Status),
		string(tx.SourceChainID),
		tx.DestChainID,
		tx.TxHash,
		nowMs,
	).Scan(&tx.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bridge transaction: %w", err)
	}

	tx.CreatedAt = nowMs
	tx.UpdatedAt = nowMs
	return nil
}

// GetByID retrieves a transaction by its ID. Returns ErrNotFound if not exists.
func (s *BridgeTransactionStore) GetByID(ctx context.Context, id int64) (_ *domain.BridgeTransaction, err error) {
	start := time.Now()
	defer func() { observe("get_by_id", start, err) }()

	query := `SELECT ` + bridgeTransactionColumns + ` FROM bridge_transactions WHERE id = $1`

	tx, err := scanBridgeTransaction(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bridge transaction by id: %w", err)
	}
	return tx, nil
}

// ListByDepositor retrieves all transactions of a depositor, newest first.
func (s *BridgeTransactionStore) ListByDepositor(ctx context.Context, depositor string) (_ []*domain.BridgeTransaction, err error) {
	start := time.Now()
	defer func() { observe("list_by_depositor", start, err) }()

	query := `SELECT ` + bridgeTransactionColumns + `
		FROM bridge_transactions
		WHERE depositor = $1
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.pool.Query(ctx, query, depositor)
	if err != nil {
		return nil, fmt.Errorf("list bridge transactions by depositor: %w", err)
	}
	defer rows.Close()

	return scanBridgeTransactions(rows)
}

// ListPending retrieves all pending transactions, oldest first.
func (s *BridgeTransactionStore) ListPending(ctx context.Context) (_ []*domain.BridgeTransaction, err error) {
	start := time.Now()
	defer func() { observe("list_pending", start, err) }()

	query := `SELECT ` + bridgeTransactionColumns + `
		FROM bridge_transactions
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending bridge transactions: %w", err)
	}
	defer rows.Close()

	return scanBridgeTransactions(rows)
}

// UpdateStatus moves a pending transaction to status.
// The status guard in the WHERE clause makes concurrent transitions race-free.
func (s *BridgeTransactionStore) UpdateStatus(ctx context.Context, id int64, status domain.TransactionStatus, completedTxHash *string) (_ *domain.BridgeTransaction, err error) {
	if !status.IsTerminal() {
		return nil, storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { observe("update_status", start, err) }()

	query := `
		UPDATE bridge_transactions
		SET status = $2,
			completed_tx_hash = COALESCE($3, completed_tx_hash),
			updated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + bridgeTransactionColumns

	tx, err := scanBridgeTransaction(s.pool.QueryRow(ctx, query,
		id, string(status), completedTxHash, time.Now().UnixMilli(),
	))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("update bridge transaction status: %w", err)
	}
	return tx, nil
}

// scanBridgeTransaction scans a single row into a BridgeTransaction.
func scanBridgeTransaction(row pgx.Row) (*domain.BridgeTransaction, error) {
	var tx domain.BridgeTransaction
	var inputToken, outputToken, status, sourceChain string

	err := row.Scan(
		&tx.ID,
		&tx.Depositor,
		&tx.Amount,
		&tx.QuotedOutputAmount,
		&inputToken,
		&outputToken,
		&tx.SlippageBps,
		&status,
		&sourceChain,
		&tx.DestChainID,
		&tx.TxHash,
		&tx.CompletedTxHash,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.InputToken = domain.Symbol(inputToken)
	tx.OutputToken = domain.Symbol(outputToken)
	tx.Status = domain.TransactionStatus(status)
	tx.SourceChainID = domain.ChainKey(sourceChain)
	return &tx, nil
}

// scanBridgeTransactions scans multiple rows into BridgeTransactions.
func scanBridgeTransactions(rows pgx.Rows) ([]*domain.BridgeTransaction, error) {
	result := []*domain.BridgeTransaction{}
	for rows.Next() {
		tx, err := scanBridgeTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bridge transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bridge transactions: %w", err)
	}
	return result, nil
}
