// Package pricefeed implements adapters for external USD price providers.
//
// Every adapter satisfies Source: it returns whatever prices it could obtain
// and never an error. Failures are logged and counted, and contribute an empty table.
package pricefeed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"megabridge/internal/domain"
	"megabridge/internal/observability"
)

// Source is one external price provider.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Fetch returns USD prices for the requested symbols the source knows about.
	// An empty request means every symbol the source knows. Fetch must not block
	// past ctx and must return an empty table on any failure.
	Fetch(ctx context.Context, symbols []domain.Symbol) domain.PriceTable
}

// fetchFunc is the fallible body of an adapter.
type fetchFunc func(ctx context.Context) (domain.PriceTable, error)

// guard runs fn, sanitizes its result and turns failures into an empty table.
func guard(ctx context.Context, name string, logger *zap.Logger, fn fetchFunc) domain.PriceTable {
	start := time.Now()
	raw, err := fn(ctx)
	elapsed := time.Since(start)

	out := make(domain.PriceTable, len(raw))
	if err == nil {
		out.Merge(raw)
	}

	observability.RecordSourceFetch(name, len(out), elapsed.Seconds(), err)

	if err != nil {
		logger.Warn("price source failed",
			zap.String("source", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return domain.PriceTable{}
	}

	logger.Debug("price source fetched",
		zap.String("source", name),
		zap.Int("prices", len(out)),
		zap.Duration("elapsed", elapsed),
	)
	return out
}

// wants reports whether s is requested. An empty request wants everything.
func wants(requested map[domain.Symbol]struct{}, s domain.Symbol) bool {
	if len(requested) == 0 {
		return true
	}
	_, ok := requested[s]
	return ok
}

func symbolSet(symbols []domain.Symbol) map[domain.Symbol]struct{} {
	set := make(map[domain.Symbol]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
