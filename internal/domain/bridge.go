package domain

// TransactionStatus is the lifecycle state of a bridge transaction.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusRejected  TransactionStatus = "rejected"
)

// String returns the string representation of TransactionStatus.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s TransactionStatus) IsValid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusRejected
}

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// BridgeTransaction is a deposit awaiting (or done with) admin fulfillment.
// Corresponds to the bridge_transactions table.
type BridgeTransaction struct {
	ID                 int64             `json:"id"`
	Depositor          string            `json:"depositor"` // normalized address
	Amount             string            `json:"amount"`    // as submitted
	QuotedOutputAmount string            `json:"quotedOutputAmount"`
	InputToken         Symbol            `json:"inputToken"`
	OutputToken        Symbol            `json:"outputToken"`
	SlippageBps        int               `json:"slippageBps"`
	Status             TransactionStatus `json:"status"`
	SourceChainID      ChainKey          `json:"sourceChainId"`
	DestChainID        int64             `json:"destChainId"`
	TxHash             *string           `json:"txHash"`
	CompletedTxHash    *string           `json:"completedTxHash"`
	CreatedAt          int64             `json:"createdAt"` // Unix ms
	UpdatedAt          int64             `json:"updatedAt"` // Unix ms
}
