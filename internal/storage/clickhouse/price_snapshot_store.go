package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"megabridge/internal/domain"
	"megabridge/internal/storage"
)

// PriceSnapshotStore implements storage.PriceSnapshotStore using ClickHouse.
type PriceSnapshotStore struct {
	conn *Conn
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(conn *Conn) *PriceSnapshotStore {
	return &PriceSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// InsertBulk adds multiple snapshots. Fails entire batch on duplicate (symbol, fetched_at_ms).
// MergeTree does not enforce keys, so duplicates are checked before the insert.
func (s *PriceSnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.PriceSnapshot) (err error) {
	if len(snapshots) == 0 {
		return nil
	}

	start := time.Now()
	defer func() { observe("insert_snapshots", start, err) }()

	type key struct {
		symbol      domain.Symbol
		fetchedAtMs int64
	}
	seen := make(map[key]struct{}, len(snapshots))
	for _, p := range snapshots {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
		k := key{p.Symbol, p.FetchedAtMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// One refresh shares a timestamp, so a single probe per distinct timestamp is enough.
	probed := make(map[int64]struct{})
	for _, p := range snapshots {
		if _, ok := probed[p.FetchedAtMs]; ok {
			continue
		}
		probed[p.FetchedAtMs] = struct{}{}

		existing, err := s.symbolsAt(ctx, p.FetchedAtMs)
		if err != nil {
			return fmt.Errorf("check existing snapshots: %w", err)
		}
		for _, q := range snapshots {
			if q.FetchedAtMs != p.FetchedAtMs {
				continue
			}
			if _, dup := existing[q.Symbol]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_snapshots (symbol, fetched_at_ms, price_usd, degraded)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range snapshots {
		var degraded uint8
		if p.Degraded {
			degraded = 1
		}
		if err := batch.Append(string(p.Symbol), uint64(p.FetchedAtMs), p.PriceUSD, degraded); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySymbol retrieves snapshots for a symbol within [start, end] (inclusive).
func (s *PriceSnapshotStore) GetBySymbol(ctx context.Context, symbol domain.Symbol, start, end int64) (_ []*domain.PriceSnapshot, err error) {
	began := time.Now()
	defer func() { observe("get_by_symbol", began, err) }()

	if start < 0 {
		start = 0
	}
	if end < start {
		return []*domain.PriceSnapshot{}, nil
	}

	query := `
		SELECT symbol, fetched_at_ms, price_usd, degraded
		FROM price_snapshots
		WHERE symbol = ? AND fetched_at_ms >= ? AND fetched_at_ms <= ?
		ORDER BY fetched_at_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, string(symbol), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query snapshots by symbol: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func (s *PriceSnapshotStore) symbolsAt(ctx context.Context, fetchedAtMs int64) (map[domain.Symbol]struct{}, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT symbol FROM price_snapshots WHERE fetched_at_ms = ?`, uint64(fetchedAtMs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Symbol]struct{})
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out[domain.Symbol(sym)] = struct{}{}
	}
	return out, rows.Err()
}

func scanSnapshots(rows driver.Rows) ([]*domain.PriceSnapshot, error) {
	result := []*domain.PriceSnapshot{}
	for rows.Next() {
		var (
			sym      string
			fetched  uint64
			price    float64
			degraded uint8
		)
		if err := rows.Scan(&sym, &fetched, &price, &degraded); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		result = append(result, &domain.PriceSnapshot{
			Symbol:      domain.Symbol(sym),
			PriceUSD:    price,
			FetchedAtMs: int64(fetched),
			Degraded:    degraded == 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return result, nil
}
