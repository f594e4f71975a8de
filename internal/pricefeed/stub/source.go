// Package stub provides scripted in-process price sources for tests and offline runs.
package stub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"megabridge/internal/domain"
)

// Source returns scripted price tables.
// Each Fetch consumes the next table in the script; the last one repeats.
// Implements pricefeed.Source interface.
type Source struct {
	name  string
	delay time.Duration

	mu     sync.Mutex
	script []domain.PriceTable
	next   int

	calls atomic.Int64
}

// NewSource creates a stub source that returns the given tables in order.
// With no tables it always returns an empty table, like a failing provider.
func NewSource(name string, tables ...domain.PriceTable) *Source {
	return &Source{name: name, script: tables}
}

// WithDelay makes every Fetch wait d (or until ctx is done) before answering.
func (s *Source) WithDelay(d time.Duration) *Source {
	s.delay = d
	return s
}

// Name implements pricefeed.Source.
func (s *Source) Name() string {
	return s.name
}

// Calls returns how many times Fetch was invoked.
func (s *Source) Calls() int {
	return int(s.calls.Load())
}

// Set replaces the script. Subsequent Fetch calls start from its first table.
func (s *Source) Set(tables ...domain.PriceTable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = tables
	s.next = 0
}

// Fetch returns a copy of the next scripted table filtered to the requested symbols.
// Returns an empty table if ctx expires during the configured delay.
func (s *Source) Fetch(ctx context.Context, symbols []domain.Symbol) domain.PriceTable {
	s.calls.Add(1)

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.PriceTable{}
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	var table domain.PriceTable
	if len(s.script) > 0 {
		table = s.script[s.next]
		if s.next < len(s.script)-1 {
			s.next++
		}
	}
	s.mu.Unlock()

	if len(symbols) == 0 {
		return table.Clone()
	}
	return table.Subset(symbols...)
}
