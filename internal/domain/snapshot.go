package domain

// PriceSnapshot is one symbol's price from one refresh cycle.
// Corresponds to price_snapshots table in ClickHouse.
type PriceSnapshot struct {
	Symbol      Symbol  // canonical ticker
	PriceUSD    float64 // merged USD price
	FetchedAtMs int64   // refresh timestamp (ms)
	Degraded    bool    // no live source contributed to this cycle
}

// SnapshotsFromTable flattens a table into snapshots sorted by symbol.
func SnapshotsFromTable(t PriceTable, fetchedAtMs int64, degraded bool) []*PriceSnapshot {
	out := make([]*PriceSnapshot, 0, len(t))
	for _, s := range t.Symbols() {
		out = append(out, &PriceSnapshot{
			Symbol:      s,
			PriceUSD:    t[s],
			FetchedAtMs: fetchedAtMs,
			Degraded:    degraded,
		})
	}
	return out
}
