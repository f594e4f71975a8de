// Package api exposes prices, quotes and the bridge ledger over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"megabridge/internal/bridge"
	"megabridge/internal/observability"
	"megabridge/internal/pricing"
	"megabridge/internal/quote"
	"megabridge/internal/storage"
)

// Options holds the server's dependencies.
type Options struct {
	Cache   *pricing.Cache
	Quotes  *quote.Calculator
	Bridge  *bridge.Service
	History storage.PriceSnapshotStore // nil disables /api/prices/history

	// Sources lists the registered price source names for /status.
	Sources []string

	// AdminToken, when set, is required as a bearer token on admin routes.
	AdminToken string

	// StreamInterval is how often the cache is polled while stream clients
	// are connected. Zero means pricing.DefaultTTL.
	StreamInterval time.Duration

	Logger *zap.Logger
}

// Server serves the bridge HTTP API.
type Server struct {
	router     *mux.Router
	cache      *pricing.Cache
	quotes     *quote.Calculator
	bridge     *bridge.Service
	history    storage.PriceSnapshotStore
	sources    []string
	hub        *Hub
	adminToken string
	logger     *zap.Logger
	started    time.Time

	streamInterval time.Duration
	cancel         context.CancelFunc
	pollDone       chan struct{}
	closeOnce      sync.Once
}

// NewServer creates a server, subscribes its price stream to the cache and
// starts polling the cache for stream clients. Callers must Close it.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.StreamInterval
	if interval <= 0 {
		interval = pricing.DefaultTTL
	}

	s := &Server{
		router:     mux.NewRouter(),
		cache:      opts.Cache,
		quotes:     opts.Quotes,
		bridge:     opts.Bridge,
		history:    opts.History,
		sources:    opts.Sources,
		hub:        NewHub(logger.Named("stream")),
		adminToken: opts.AdminToken,
		logger:     logger,
		started:    time.Now(),

		streamInterval: interval,
		pollDone:       make(chan struct{}),
	}
	s.cache.Subscribe(s.hub.Broadcast)
	s.routes()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.pollPrices(ctx)
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.instrument)

	r.HandleFunc("/api/prices", s.handlePrices()).Methods(http.MethodGet)
	r.HandleFunc("/api/prices/history", s.handlePriceHistory()).Methods(http.MethodGet)
	r.HandleFunc("/api/prices/stream", s.handlePriceStream()).Methods(http.MethodGet)
	r.HandleFunc("/api/quote", s.handleQuote()).Methods(http.MethodGet)
	r.HandleFunc("/api/bridge", s.handleBridge()).Methods(http.MethodPost)
	r.HandleFunc("/api/transactions", s.handlePendingTransactions()).Methods(http.MethodGet)
	r.HandleFunc("/api/transactions/{address}", s.handleTransactionsByDepositor()).Methods(http.MethodGet)
	r.HandleFunc("/api/admin/fulfill/{id}", s.requireAdmin(s.handleFulfill())).Methods(http.MethodPost)
	r.HandleFunc("/api/admin/reject/{id}", s.requireAdmin(s.handleReject())).Methods(http.MethodPost)

	r.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS and request instrumentation.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:       []string{"*"},
		AllowedMethods:       []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:       []string{"Content-Type"},
		OptionsSuccessStatus: http.StatusOK,
	})
	return c.Handler(s.router)
}

// Close stops the stream poller and disconnects all stream clients. Safe to call twice.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.pollDone
		s.hub.Close()
	})
}
