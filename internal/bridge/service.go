// Package bridge records bridge deposits in the ledger and applies admin decisions.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"megabridge/internal/domain"
	"megabridge/internal/observability"
	"megabridge/internal/quote"
	"megabridge/internal/storage"
)

// SubmittedMessage is returned with every accepted submission.
const SubmittedMessage = "Bridge initiated! Please wait approximately 5 minutes for completion."

// Submission errors.
var (
	ErrMissingFields  = errors.New("depositor and amount are required")
	ErrInvalidAddress = errors.New("invalid depositor address")
	ErrInvalidTxHash  = errors.New("invalid transaction hash")

	// ErrDuplicateDeposit is returned when the deposit hash was already submitted.
	ErrDuplicateDeposit = errors.New("deposit already submitted")
)

// Quoter computes a quote. *quote.Calculator implements it.
type Quoter interface {
	Quote(ctx context.Context, req quote.Request) (*domain.Quote, error)
}

// SubmitRequest is a user deposit notification.
type SubmitRequest struct {
	Depositor     string
	Amount        string
	TxHash        string          // optional
	SourceChainID domain.ChainKey // defaults to Base
	InputToken    string          // optional, overrides the chain's token
	OutputToken   string          // optional, ETH when empty
}

// Submission is the result of an accepted deposit.
type Submission struct {
	Transaction   *domain.BridgeTransaction
	Quote         *domain.Quote
	EstimatedTime string
	Message       string
}

// Service implements submission and admin transitions over a ledger.
type Service struct {
	store  storage.BridgeTransactionStore
	quoter Quoter
	logger *zap.Logger
}

// NewService creates a bridge service.
func NewService(store storage.BridgeTransactionStore, quoter Quoter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, quoter: quoter, logger: logger}
}

// Submit requotes the deposit server-side and records it as pending.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if strings.TrimSpace(req.Depositor) == "" || strings.TrimSpace(req.Amount) == "" {
		return nil, ErrMissingFields
	}

	chain := req.SourceChainID
	if chain == "" {
		chain = domain.ChainKeyBase
	}

	depositor, err := ValidateAddress(chain, req.Depositor)
	if err != nil {
		return nil, err
	}

	var txHash *string
	if strings.TrimSpace(req.TxHash) != "" {
		h, err := ValidateTxHash(chain, req.TxHash)
		if err != nil {
			return nil, err
		}
		txHash = &h
	}

	q, err := s.quoter.Quote(ctx, quote.Request{
		Amount:      req.Amount,
		ChainID:     chain,
		InputToken:  req.InputToken,
		OutputToken: req.OutputToken,
	})
	if err != nil {
		return nil, fmt.Errorf("quote deposit: %w", err)
	}

	tx := &domain.BridgeTransaction{
		Depositor:          depositor,
		Amount:             strings.TrimSpace(req.Amount),
		QuotedOutputAmount: q.OutputAmount,
		InputToken:         q.InputToken,
		OutputToken:        q.OutputToken,
		SlippageBps:        q.SlippageBps,
		Status:             domain.StatusPending,
		SourceChainID:      chain,
		DestChainID:        domain.MegaETHChainID,
		TxHash:             txHash,
	}
	if err := s.store.Create(ctx, tx); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrDuplicateDeposit
		}
		return nil, fmt.Errorf("create bridge transaction: %w", err)
	}

	observability.RecordBridgeTransaction(string(domain.StatusPending))
	s.logger.Info("bridge transaction submitted",
		zap.Int64("id", tx.ID),
		zap.String("depositor", tx.Depositor),
		zap.String("amount", tx.Amount),
		zap.String("input_token", tx.InputToken.String()),
		zap.String("quoted_output", tx.QuotedOutputAmount),
		zap.String("source_chain", chain.String()),
	)

	return &Submission{
		Transaction:   tx,
		Quote:         q,
		EstimatedTime: domain.EstimatedTimeLabel,
		Message:       SubmittedMessage,
	}, nil
}

// Fulfill marks a pending transaction completed. megaTxHash is the destination
// chain transaction and may be empty; when set it must be a 32-byte hex hash.
// Returns storage.ErrNotFound for unknown or non-pending transactions.
func (s *Service) Fulfill(ctx context.Context, id int64, megaTxHash string) (*domain.BridgeTransaction, error) {
	var hash *string
	if strings.TrimSpace(megaTxHash) != "" {
		h, err := validateEVMHash(strings.TrimSpace(megaTxHash))
		if err != nil {
			return nil, err
		}
		hash = &h
	}
	return s.transition(ctx, id, domain.StatusCompleted, hash)
}

// Reject marks a pending transaction rejected.
// Returns storage.ErrNotFound for unknown or non-pending transactions.
func (s *Service) Reject(ctx context.Context, id int64) (*domain.BridgeTransaction, error) {
	return s.transition(ctx, id, domain.StatusRejected, nil)
}

func (s *Service) transition(ctx context.Context, id int64, status domain.TransactionStatus, hash *string) (*domain.BridgeTransaction, error) {
	tx, err := s.store.UpdateStatus(ctx, id, status, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update bridge transaction %d: %w", id, err)
	}

	observability.RecordBridgeTransaction(string(status))
	s.logger.Info("bridge transaction updated",
		zap.Int64("id", id),
		zap.String("status", status.String()),
	)
	return tx, nil
}

// Get returns one transaction in any status. Returns storage.ErrNotFound for unknown ids.
func (s *Service) Get(ctx context.Context, id int64) (*domain.BridgeTransaction, error) {
	return s.store.GetByID(ctx, id)
}

// ListByDepositor returns a depositor's transactions, newest first.
func (s *Service) ListByDepositor(ctx context.Context, depositor string) ([]*domain.BridgeTransaction, error) {
	return s.store.ListByDepositor(ctx, NormalizeAddress(depositor))
}

// ListPending returns pending transactions, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*domain.BridgeTransaction, error) {
	return s.store.ListPending(ctx)
}
