package metrics

import (
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the instruments for the market data core. A cycle where
// every source fails for a symbol is a metric here, never a propagated
// error.
type Metrics struct {
	QuotesIngested  metrics.Counter
	SourceFailures  metrics.Counter
	ChainExhausted  metrics.Counter
	StaleDrops      metrics.Counter
	FetchDuration   metrics.Histogram
	ActiveSymbols   metrics.Gauge
	StreamConnected metrics.Gauge

	RateLimitRejections metrics.Counter
	ThrottleOverflows   metrics.Counter

	BarsAggregated metrics.Counter
	AlertTriggers  metrics.Counter
	AlertsExpired  metrics.Counter

	CacheHits   metrics.Gauge
	CacheMisses metrics.Gauge
}

// New registers all instruments with the default Prometheus registry.
func New(namespace string) *Metrics {
	return &Metrics{
		QuotesIngested: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_ingested_total",
			Help:      "Normalized quotes accepted, by source.",
		}, []string{"source"}),
		SourceFailures: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_failures_total",
			Help:      "Per-source fetch failures that fell through the chain.",
		}, []string{"source"}),
		ChainExhausted: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_exhausted_total",
			Help:      "Cycles where every source failed for a symbol.",
		}, []string{"symbol"}),
		StaleDrops: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_quotes_dropped_total",
			Help:      "Out-of-order vendor responses rejected by the dedup guard.",
		}, []string{"source"}),
		FetchDuration: kitprometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Vendor fetch latency, by source.",
			Buckets:   stdprometheus.DefBuckets,
		}, []string{"source"}),
		ActiveSymbols: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_symbols",
			Help:      "Size of the resolved symbol universe.",
		}, nil),
		StreamConnected: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connected",
			Help:      "1 when the streaming vendor connection is up.",
		}, []string{"source"}),
		RateLimitRejections: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests refused by the rate limiter, by scope.",
		}, []string{"scope"}),
		ThrottleOverflows: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_queue_overflows_total",
			Help:      "Calls rejected because the throttle queue was full.",
		}, nil),
		BarsAggregated: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bars_aggregated_total",
			Help:      "OHLCV bars produced, by period.",
		}, []string{"period"}),
		AlertTriggers: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_triggers_total",
			Help:      "Alert rules fired, by type.",
		}, []string{"type"}),
		AlertsExpired: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_expired_total",
			Help:      "Alerts swept to EXPIRED.",
		}, nil),
		CacheHits: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_hits",
			Help:      "Cumulative cache hits as reported by the data cache.",
		}, nil),
		CacheMisses: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_misses",
			Help:      "Cumulative cache misses as reported by the data cache.",
		}, nil),
	}
}

// ObserveFetch records one vendor fetch.
func (m *Metrics) ObserveFetch(source string, start time.Time) {
	m.FetchDuration.With("source", source).Observe(time.Since(start).Seconds())
}
