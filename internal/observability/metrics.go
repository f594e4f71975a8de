// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Price source metrics
	SourceFetches      *prometheus.CounterVec
	SourceFetchLatency *prometheus.HistogramVec
	SourcePrices       *prometheus.GaugeVec

	// Cache metrics
	CacheRequests   *prometheus.CounterVec
	CacheRefreshes  *prometheus.CounterVec
	FallbackApplied *prometheus.CounterVec
	PriceUSD        *prometheus.GaugeVec

	// Quote / bridge metrics
	QuotesTotal        *prometheus.CounterVec
	BridgeTransactions *prometheus.CounterVec
	StreamClients      prometheus.Gauge

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "megabridge"
	}

	return &Metrics{
		// Price source metrics
		SourceFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "fetches_total",
			Help:      "Total number of price source fetches by outcome",
		}, []string{"source", "status"}),
		SourceFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "fetch_latency_seconds",
			Help:      "Price source fetch latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}, []string{"source"}),
		SourcePrices: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pricefeed",
			Name:      "prices_returned",
			Help:      "Number of prices returned by the last fetch of each source",
		}, []string{"source"}),

		// Cache metrics
		CacheRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Total number of price cache reads by result",
		}, []string{"result"}),
		CacheRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "refreshes_total",
			Help:      "Total number of price cache refreshes by outcome",
		}, []string{"outcome"}),
		FallbackApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fallback_applied_total",
			Help:      "Total number of times a hard-coded fallback price was used",
		}, []string{"symbol"}),
		PriceUSD: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "price_usd",
			Help:      "Current merged USD price per symbol",
		}, []string{"symbol"}),

		// Quote / bridge metrics
		QuotesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Total number of quotes computed by status",
		}, []string{"status"}),
		BridgeTransactions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "transactions_total",
			Help:      "Total number of bridge transaction state changes",
		}, []string{"status"}),
		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "stream_clients",
			Help:      "Number of connected price stream clients",
		}),

		// HTTP metrics
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulRefresh: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last refresh with live price data",
		}),
	}
}

// Handler returns HTTP handler for Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSourceFetch records one adapter call.
func RecordSourceFetch(source string, prices int, seconds float64, err error) {
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case prices == 0:
		status = "empty"
	}
	DefaultMetrics.SourceFetches.WithLabelValues(source, status).Inc()
	DefaultMetrics.SourceFetchLatency.WithLabelValues(source).Observe(seconds)
	DefaultMetrics.SourcePrices.WithLabelValues(source).Set(float64(prices))
}

// RecordCacheRequest records a cache read ("hit", "miss" or "coalesced").
func RecordCacheRequest(result string) {
	DefaultMetrics.CacheRequests.WithLabelValues(result).Inc()
}

// RecordRefresh records a refresh outcome ("live", "partial", "stale" or "fallback").
func RecordRefresh(outcome string, at time.Time) {
	DefaultMetrics.CacheRefreshes.WithLabelValues(outcome).Inc()
	if outcome == "live" || outcome == "partial" {
		DefaultMetrics.LastSuccessfulRefresh.Set(float64(at.Unix()))
	}
}

// RecordFallback records that a symbol's price came from the fallback table.
func RecordFallback(symbol string) {
	DefaultMetrics.FallbackApplied.WithLabelValues(symbol).Inc()
}

// UpdatePrice publishes the current merged price of a symbol.
func UpdatePrice(symbol string, usd float64) {
	DefaultMetrics.PriceUSD.WithLabelValues(symbol).Set(usd)
}

// RecordQuote records a quote computation ("ok" or "invalid").
func RecordQuote(status string) {
	DefaultMetrics.QuotesTotal.WithLabelValues(status).Inc()
}

// RecordBridgeTransaction records a ledger state change.
func RecordBridgeTransaction(status string) {
	DefaultMetrics.BridgeTransactions.WithLabelValues(status).Inc()
}

// SetStreamClients publishes the number of stream subscribers.
func SetStreamClients(n int) {
	DefaultMetrics.StreamClients.Set(float64(n))
}

// RecordHTTPRequest records HTTP request latency.
func RecordHTTPRequest(route, code string, seconds float64) {
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route, code).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
