package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"megabridge/internal/bridge"
	"megabridge/internal/domain"
	"megabridge/internal/quote"
	"megabridge/internal/storage"
)

// DefaultHistoryWindow is the range served when /api/prices/history has no from.
const DefaultHistoryWindow = 24 * time.Hour

const maxBodyBytes = 1 << 16

func (s *Server) handlePrices() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		table, err := s.cache.Prices(r.Context())
		if err != nil {
			s.logger.Error("get prices", zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgFetchPrices)
			return
		}
		writeJSON(w, http.StatusOK, table)
	}
}

func (s *Server) handleQuote() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		amount := strings.TrimSpace(q.Get("amount"))
		if amount == "" {
			writeError(w, http.StatusBadRequest, msgAmountRequired)
			return
		}

		// An unparsable chainId falls back to the default chain.
		chain, _ := domain.ParseChainKey(q.Get("chainId"))

		result, err := s.quotes.Quote(r.Context(), quote.Request{
			Amount:      amount,
			ChainID:     chain,
			InputToken:  q.Get("inputToken"),
			OutputToken: q.Get("outputToken"),
		})
		if err != nil {
			if errors.Is(err, quote.ErrInvalidAmount) {
				writeError(w, http.StatusBadRequest, msgInvalidAmount)
				return
			}
			s.logger.Error("compute quote", zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgFetchPrices)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type bridgeRequest struct {
	Depositor     string     `json:"depositor"`
	Amount        flexString `json:"amount"`
	TxHash        string     `json:"txHash"`
	SourceChainID flexString `json:"sourceChainId"`
	InputToken    string     `json:"inputToken"`
	OutputToken   string     `json:"outputToken"`
}

// submitResponse flattens the created transaction next to the ETA and message.
type submitResponse struct {
	*domain.BridgeTransaction
	EstimatedTime string `json:"estimatedTime"`
	Message       string `json:"message"`
}

func (s *Server) handleBridge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bridgeRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}

		var chain domain.ChainKey
		if raw := strings.TrimSpace(string(req.SourceChainID)); raw != "" {
			var ok bool
			if chain, ok = domain.ParseChainKey(raw); !ok {
				writeError(w, http.StatusBadRequest, msgInvalidChain)
				return
			}
		}

		sub, err := s.bridge.Submit(r.Context(), bridge.SubmitRequest{
			Depositor:     req.Depositor,
			Amount:        string(req.Amount),
			TxHash:        req.TxHash,
			SourceChainID: chain,
			InputToken:    req.InputToken,
			OutputToken:   req.OutputToken,
		})
		if err != nil {
			switch {
			case errors.Is(err, bridge.ErrMissingFields):
				writeError(w, http.StatusBadRequest, msgMissingFields)
			case errors.Is(err, quote.ErrInvalidAmount):
				writeError(w, http.StatusBadRequest, msgInvalidAmount)
			case errors.Is(err, bridge.ErrInvalidAddress):
				writeError(w, http.StatusBadRequest, msgInvalidAddress)
			case errors.Is(err, bridge.ErrInvalidTxHash):
				writeError(w, http.StatusBadRequest, msgInvalidTxHash)
			case errors.Is(err, bridge.ErrDuplicateDeposit):
				writeError(w, http.StatusConflict, msgDuplicateDeposit)
			default:
				s.logger.Error("submit bridge transaction", zap.Error(err))
				writeError(w, http.StatusInternalServerError, msgCreateTransaction)
			}
			return
		}

		writeJSON(w, http.StatusOK, submitResponse{
			BridgeTransaction: sub.Transaction,
			EstimatedTime:     sub.EstimatedTime,
			Message:           sub.Message,
		})
	}
}

func (s *Server) handleTransactionsByDepositor() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txs, err := s.bridge.ListByDepositor(r.Context(), mux.Vars(r)["address"])
		if err != nil {
			s.logger.Error("list transactions by depositor", zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgFetchTransactions)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(txs))
	}
}

func (s *Server) handlePendingTransactions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txs, err := s.bridge.ListPending(r.Context())
		if err != nil {
			s.logger.Error("list pending transactions", zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgFetchTransactions)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(txs))
	}
}

type fulfillRequest struct {
	MegaTxHash string `json:"megaTxHash"`
}

func (s *Server) handleFulfill() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := transactionID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, msgInvalidID)
			return
		}

		var req fulfillRequest
		err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, msgInvalidBody)
			return
		}

		tx, err := s.bridge.Fulfill(r.Context(), id, req.MegaTxHash)
		s.writeTransition(w, tx, err)
	}
}

func (s *Server) handleReject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := transactionID(r)
		if !ok {
			writeError(w, http.StatusBadRequest, msgInvalidID)
			return
		}
		tx, err := s.bridge.Reject(r.Context(), id)
		s.writeTransition(w, tx, err)
	}
}

func (s *Server) writeTransition(w http.ResponseWriter, tx *domain.BridgeTransaction, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, tx)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, bridge.ErrInvalidTxHash):
		writeError(w, http.StatusBadRequest, msgInvalidTxHash)
	default:
		s.logger.Error("update transaction", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgUpdateTransaction)
	}
}

func transactionID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type historyPoint struct {
	Symbol    domain.Symbol `json:"symbol"`
	PriceUSD  float64       `json:"priceUsd"`
	FetchedAt int64         `json:"fetchedAt"` // Unix ms
	Degraded  bool          `json:"degraded"`
}

func (s *Server) handlePriceHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.history == nil {
			writeError(w, http.StatusServiceUnavailable, msgHistoryUnavailable)
			return
		}

		q := r.URL.Query()
		symbol := domain.NormalizeSymbol(q.Get("symbol"))
		if symbol == "" {
			writeError(w, http.StatusBadRequest, msgInvalidSymbol)
			return
		}

		to := time.Now().UnixMilli()
		if raw := q.Get("to"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, msgInvalidRange)
				return
			}
			to = v
		}
		from := to - DefaultHistoryWindow.Milliseconds()
		if raw := q.Get("from"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, msgInvalidRange)
				return
			}
			from = v
		}
		if from < 0 || from > to {
			writeError(w, http.StatusBadRequest, msgInvalidRange)
			return
		}

		snaps, err := s.history.GetBySymbol(r.Context(), symbol, from, to)
		if err != nil {
			s.logger.Error("get price history", zap.String("symbol", symbol.String()), zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgFetchHistory)
			return
		}

		points := make([]historyPoint, 0, len(snaps))
		for _, snap := range snaps {
			points = append(points, historyPoint{
				Symbol:    snap.Symbol,
				PriceUSD:  snap.PriceUSD,
				FetchedAt: snap.FetchedAtMs,
				Degraded:  snap.Degraded,
			})
		}
		writeJSON(w, http.StatusOK, points)
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// StatusResponse is the /status payload.
type StatusResponse struct {
	Uptime        string       `json:"uptime"`
	Sources       []string     `json:"sources"`
	StreamClients int          `json:"stream_clients"`
	Prices        *PriceStatus `json:"prices,omitempty"`
}

// PriceStatus describes the currently published price table.
type PriceStatus struct {
	FetchedAt string `json:"fetched_at"`
	Outcome   string `json:"outcome"`
	Degraded  bool   `json:"degraded"`
	Symbols   int    `json:"symbols"`
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := StatusResponse{
			Uptime:        time.Since(s.started).Round(time.Second).String(),
			Sources:       s.sources,
			StreamClients: s.hub.Len(),
		}
		if e := s.cache.Entry(); e != nil {
			status.Prices = &PriceStatus{
				FetchedAt: e.FetchedAt.UTC().Format(time.RFC3339),
				Outcome:   e.Outcome,
				Degraded:  e.Degraded,
				Symbols:   len(e.Table),
			}
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func nonNil(txs []*domain.BridgeTransaction) []*domain.BridgeTransaction {
	if txs == nil {
		return []*domain.BridgeTransaction{}
	}
	return txs
}
