package pricing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"megabridge/internal/domain"
	"megabridge/internal/observability"
)

// DefaultTTL is how long a published table is served without refreshing.
const DefaultTTL = 10 * time.Second

// Clock abstracts time for freshness checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Refresher builds a new entry. *Aggregator implements it.
type Refresher interface {
	Aggregate(ctx context.Context, prev *Entry, now time.Time) *Entry
}

// Listener is called after every refresh with the new entry.
// Listeners run synchronously on the refreshing goroutine and must not block.
type Listener func(*Entry)

// Cache serves the current price table and refreshes it at most once per TTL.
// Concurrent callers that find the entry stale share one refresh.
type Cache struct {
	refresher Refresher
	clock     Clock
	ttl       time.Duration
	logger    *zap.Logger

	entry atomic.Pointer[Entry]
	group singleflight.Group

	mu        sync.RWMutex
	listeners []Listener
}

// CacheOption configures Cache.
type CacheOption func(*Cache)

// WithClock sets the clock used for freshness checks.
func WithClock(c Clock) CacheOption {
	return func(cache *Cache) {
		cache.clock = c
	}
}

// WithTTL sets the freshness window.
func WithTTL(d time.Duration) CacheOption {
	return func(cache *Cache) {
		cache.ttl = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CacheOption {
	return func(cache *Cache) {
		cache.logger = l
	}
}

// NewCache creates an empty cache. The first Prices call triggers a refresh.
func NewCache(refresher Refresher, opts ...CacheOption) *Cache {
	c := &Cache{
		refresher: refresher,
		clock:     SystemClock,
		ttl:       DefaultTTL,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers l for every future refresh.
func (c *Cache) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Entry returns the published entry without refreshing. Nil before the first refresh.
func (c *Cache) Entry() *Entry {
	return c.entry.Load()
}

// Prices returns a copy of a fresh table, refreshing if needed.
// It only fails when ctx is done before a cold cache could be filled.
func (c *Cache) Prices(ctx context.Context) (domain.PriceTable, error) {
	e, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}
	return e.Table.Clone(), nil
}

// Get returns a fresh entry, refreshing if needed. The returned entry must not be mutated.
func (c *Cache) Get(ctx context.Context) (*Entry, error) {
	if e := c.entry.Load(); c.fresh(e) {
		observability.RecordCacheRequest("hit")
		return e, nil
	}
	observability.RecordCacheRequest("miss")

	// Detached from the first caller: every waiter shares this flight.
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		if e := c.entry.Load(); c.fresh(e) {
			return e, nil
		}
		return c.refresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		return res.Val.(*Entry), nil
	case <-ctx.Done():
		// A stale entry is better than nothing.
		if e := c.entry.Load(); e != nil {
			return e, nil
		}
		return nil, ctx.Err()
	}
}

// Refresh forces a refresh regardless of freshness, sharing any refresh in flight.
func (c *Cache) Refresh(ctx context.Context) *Entry {
	v, _, _ := c.group.Do("refresh", func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx)), nil
	})
	return v.(*Entry)
}

func (c *Cache) refresh(ctx context.Context) *Entry {
	start := time.Now()
	prev := c.entry.Load()
	next := c.refresher.Aggregate(ctx, prev, c.clock.Now())
	c.entry.Store(next)

	c.logger.Info("prices refreshed",
		zap.String("outcome", next.Outcome),
		zap.Bool("degraded", next.Degraded),
		zap.Int("symbols", len(next.Table)),
		zap.Duration("elapsed", time.Since(start)),
	)

	c.mu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.RUnlock()
	for _, l := range listeners {
		l(next)
	}
	return next
}

func (c *Cache) fresh(e *Entry) bool {
	return e != nil && c.clock.Now().Sub(e.FetchedAt) < c.ttl
}
