// Package pricing merges price source results into a complete table and caches it.
package pricing

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"megabridge/internal/domain"
	"megabridge/internal/observability"
	"megabridge/internal/pricefeed"
)

// Refresh outcomes, also used as metric labels.
const (
	OutcomeLive     = "live"     // every required symbol came from a source
	OutcomePartial  = "partial"  // some required symbols were filled from FallbackPrices
	OutcomeStale    = "stale"    // total failure, previous table re-served
	OutcomeFallback = "fallback" // total failure on cold start
)

// DefaultSourceTimeout bounds a registration without its own timeout.
const DefaultSourceTimeout = 5 * time.Second

// Entry is one published price table.
type Entry struct {
	Table     domain.PriceTable
	FetchedAt time.Time
	Degraded  bool   // no source contributed to this table
	Outcome   string // one of the Outcome* constants
}

// Registration binds a source to its timeout. Order of registrations is merge order:
// a later source overwrites an earlier one for the same symbol.
type Registration struct {
	Source  pricefeed.Source
	Timeout time.Duration
}

// Aggregator fans out to all sources and applies the merge and fallback policy.
type Aggregator struct {
	sources  []Registration
	seed     domain.PriceTable
	fallback domain.PriceTable
	required []domain.Symbol
	logger   *zap.Logger
}

// AggregatorOption configures Aggregator.
type AggregatorOption func(*Aggregator)

// WithFallback replaces FallbackPrices. Its keys become the required symbols.
func WithFallback(t domain.PriceTable) AggregatorOption {
	return func(a *Aggregator) {
		a.fallback = t.Clone()
		a.required = t.Symbols()
	}
}

// WithSeed replaces ConstantPrices.
func WithSeed(t domain.PriceTable) AggregatorOption {
	return func(a *Aggregator) {
		a.seed = t.Clone()
	}
}

// NewAggregator creates an aggregator over the given registrations.
func NewAggregator(sources []Registration, logger *zap.Logger, opts ...AggregatorOption) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		sources:  append([]Registration(nil), sources...),
		seed:     ConstantPrices.Clone(),
		fallback: FallbackPrices.Clone(),
		required: RequiredSymbols(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sources returns the names of registered sources in merge order.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, r := range a.sources {
		names[i] = r.Source.Name()
	}
	return names
}

// Aggregate runs every source concurrently and builds a new entry stamped now.
// prev is the currently published entry, nil on cold start.
// The returned table always contains every required symbol.
func (a *Aggregator) Aggregate(ctx context.Context, prev *Entry, now time.Time) *Entry {
	results := make([]domain.PriceTable, len(a.sources))

	var g errgroup.Group
	for i, reg := range a.sources {
		i, reg := i, reg
		g.Go(func() error {
			timeout := reg.Timeout
			if timeout <= 0 {
				timeout = DefaultSourceTimeout
			}
			sctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			results[i] = reg.Source.Fetch(sctx, nil)
			return nil
		})
	}
	_ = g.Wait()

	table := a.seed.Clone()
	contributed := 0
	for i, r := range results {
		before := len(table)
		valid := 0
		for _, p := range r {
			if domain.ValidPrice(p) {
				valid++
			}
		}
		if valid > 0 {
			contributed++
		}
		table.Merge(r)
		a.logger.Debug("merged source",
			zap.String("source", a.sources[i].Source.Name()),
			zap.Int("prices", valid),
			zap.Int("new_symbols", len(table)-before),
		)
	}

	entry := a.resolve(table, contributed, prev, now)

	observability.RecordRefresh(entry.Outcome, now)
	for sym, p := range entry.Table {
		observability.UpdatePrice(sym.String(), p)
	}
	return entry
}

func (a *Aggregator) resolve(table domain.PriceTable, contributed int, prev *Entry, now time.Time) *Entry {
	if contributed == 0 {
		if prev != nil && len(prev.Table) > 0 {
			a.logger.Warn("all price sources failed, re-serving previous table",
				zap.Time("previous_fetched_at", prev.FetchedAt),
			)
			table := prev.Table.Clone()
			a.fill(table)
			return &Entry{Table: table, FetchedAt: now, Degraded: true, Outcome: OutcomeStale}
		}
		a.logger.Warn("all price sources failed on cold start, serving fallback prices")
		table := a.fallback.Clone()
		table.Merge(a.seed)
		return &Entry{Table: table, FetchedAt: now, Degraded: true, Outcome: OutcomeFallback}
	}

	outcome := OutcomeLive
	if filled := a.fill(table); len(filled) > 0 {
		outcome = OutcomePartial
		a.logger.Info("filled missing prices from fallback", zap.Stringers("symbols", filled))
	}
	return &Entry{Table: table, FetchedAt: now, Outcome: outcome}
}

// fill sets every missing required symbol to its fallback value and returns the filled symbols.
func (a *Aggregator) fill(table domain.PriceTable) []domain.Symbol {
	var filled []domain.Symbol
	for _, sym := range a.required {
		if table.Valid(sym) {
			continue
		}
		table[sym] = a.fallback[sym]
		filled = append(filled, sym)
		observability.RecordFallback(sym.String())
	}
	return filled
}
