package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Error messages returned in {"error": ...} bodies.
const (
	msgAmountRequired     = "Amount is required"
	msgInvalidAmount      = "Invalid amount"
	msgMissingFields      = "Depositor and amount are required"
	msgInvalidAddress     = "Invalid depositor address"
	msgInvalidTxHash      = "Invalid transaction hash"
	msgInvalidChain       = "Invalid source chain"
	msgDuplicateDeposit   = "Transaction already submitted"
	msgInvalidBody        = "Invalid request body"
	msgInvalidID          = "Invalid transaction id"
	msgNotFound           = "Transaction not found"
	msgFetchPrices        = "Failed to fetch prices"
	msgFetchTransactions  = "Failed to fetch transactions"
	msgCreateTransaction  = "Failed to create bridge transaction"
	msgUpdateTransaction  = "Failed to update transaction"
	msgUnauthorized       = "Unauthorized"
	msgHistoryUnavailable = "Price history is not enabled"
	msgInvalidSymbol      = "Symbol is required"
	msgInvalidRange       = "Invalid time range"
	msgFetchHistory       = "Failed to fetch price history"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// flexString accepts a JSON string or number and keeps its text.
// Clients send amounts and chain ids either way.
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*f = flexString(n.String())
	}
	return nil
}
