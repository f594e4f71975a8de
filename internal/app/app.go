// Package app wires configuration into the price cache, quote calculator and
// bridge ledger shared by the server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"megabridge/internal/bridge"
	"megabridge/internal/config"
	"megabridge/internal/domain"
	"megabridge/internal/pricefeed"
	"megabridge/internal/pricing"
	"megabridge/internal/quote"
	"megabridge/internal/storage"
	chstore "megabridge/internal/storage/clickhouse"
	"megabridge/internal/storage/memory"
	"megabridge/internal/storage/migrations"
	pgstore "megabridge/internal/storage/postgres"
)

// Per-source timeouts.
const (
	majorsTimeout      = 5 * time.Second
	singleAssetTimeout = 3 * time.Second
	codexTimeout       = 5 * time.Second
	dexTimeout         = 5 * time.Second
)

// App holds the wired core components.
type App struct {
	Aggregator *pricing.Aggregator
	Cache      *pricing.Cache
	Quotes     *quote.Calculator
	Bridge     *bridge.Service

	Ledger   storage.BridgeTransactionStore
	History  storage.PriceSnapshotStore // nil without ClickHouse
	Recorder *pricing.Recorder          // nil without ClickHouse

	closers []func()
}

// Options tunes New.
type Options struct {
	// WithHistory connects ClickHouse (when configured) and records every refresh.
	WithHistory bool
}

// New builds the application from cfg. Callers must Close the result.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{}

	ledger, err := a.openLedger(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ledger = ledger

	if opts.WithHistory && cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("prepare clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.History = chstore.NewPriceSnapshotStore(conn)
		logger.Info("price history enabled")
	}

	a.Aggregator = pricing.NewAggregator(Sources(cfg, logger), logger.Named("aggregator"))
	a.Cache = pricing.NewCache(a.Aggregator, pricing.WithLogger(logger.Named("cache")))
	if a.History != nil {
		a.Recorder = pricing.NewRecorder(a.History, logger.Named("recorder"))
		a.Cache.Subscribe(a.Recorder.Listen)
		a.closers = append(a.closers, a.Recorder.Wait)
	}

	a.Quotes = quote.NewCalculator(a.Cache, nil)
	a.Bridge = bridge.NewService(a.Ledger, a.Quotes, logger.Named("bridge"))
	return a, nil
}

func (a *App) openLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.BridgeTransactionStore, error) {
	if cfg.UseMemory {
		logger.Warn("using in-memory ledger; transactions are lost on restart")
		return memory.NewBridgeTransactionStore(), nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	applied, err := migrations.RunPostgresMigrations(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("postgres migrations applied", zap.Strings("files", applied))
	}
	return pgstore.NewBridgeTransactionStore(pool), nil
}

// Sources returns the price source registrations in merge order:
// majors basket, HYPE, Codex, DexScreener.
func Sources(cfg *config.Config, logger *zap.Logger) []pricing.Registration {
	client := pricefeed.NewClient(pricefeed.WithMaxRetries(cfg.AdapterRetries))
	feedLog := logger.Named("pricefeed")

	regs := []pricing.Registration{
		{
			Source:  pricefeed.NewMajorsSource(cfg.CoinGeckoURL, cfg.CoinGeckoAPIKey, client, feedLog),
			Timeout: majorsTimeout,
		},
		{
			Source: pricefeed.NewSingleAssetSource(cfg.CoinGeckoURL, cfg.CoinGeckoAPIKey,
				domain.SymbolHYPE, pricefeed.HyperliquidCoinGeckoID, client, feedLog),
			Timeout: singleAssetTimeout,
		},
	}

	codex := pricefeed.NewCodexSource(pricefeed.CodexConfig{
		Endpoint: cfg.CodexURL,
		APIKey:   cfg.CodexAPIKey,
	}, client, feedLog)
	if codex.Enabled() {
		regs = append(regs, pricing.Registration{Source: codex, Timeout: codexTimeout})
	} else {
		logger.Info("codex source disabled: no api key")
	}

	regs = append(regs, pricing.Registration{
		Source: pricefeed.NewDexScreenerSource(pricefeed.DexScreenerConfig{
			BaseURL:        cfg.DexScreenerURL,
			PreferredChain: cfg.DexPreferredChain,
			PreferredDex:   cfg.DexPreferredDex,
		}, client, feedLog),
		Timeout: dexTimeout,
	})
	return regs
}

// Close releases stores in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
