// Package observability provides Prometheus metrics and log setup.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesResolved     *prometheus.CounterVec
	ResolveDuration    prometheus.Histogram
	CurrentCycleNumber prometheus.Gauge
	TankSOL            prometheus.Gauge
	SOLDistributed     *prometheus.CounterVec

	// Poller metrics
	PollerRuns   *prometheus.CounterVec
	HolderCount  prometheus.Gauge
	TradesSeen   *prometheus.CounterVec
	StreamErrors prometheus.Counter

	// Transaction metrics
	TxSubmitted *prometheus.CounterVec

	// Latency metrics
	RPCCallLatency     *prometheus.HistogramVec
	HTTPRequestLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Cache metrics
	CacheErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "boil_protocol"
	}

	return &Metrics{
		CyclesResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "resolved_total",
			Help:      "Total number of resolved cycles by outcome",
		}, []string{"outcome"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "resolve_duration_seconds",
			Help:      "Cycle resolution duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120},
		}),
		CurrentCycleNumber: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "current_number",
			Help:      "Number of the active cycle",
		}),
		TankSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "tank_sol",
			Help:      "Last observed creator wallet balance in SOL",
		}),
		SOLDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "distribution",
			Name:      "sol_total",
			Help:      "Total SOL distributed by kind",
		}, []string{"kind"}),

		PollerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "runs_total",
			Help:      "Total poller runs by poller and status",
		}, []string{"poller", "status"}),
		HolderCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "holders",
			Name:      "count",
			Help:      "Number of holders in the last snapshot",
		}),
		TradesSeen: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "seen_total",
			Help:      "Total trade events received by side",
		}, []string{"side"}),
		StreamErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "stream_errors_total",
			Help:      "Total trade stream connection errors",
		}),

		TxSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "transactions_total",
			Help:      "Total submitted transactions by kind and status",
		}, []string{"kind", "status"}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),

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

		CacheErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total cache operation errors",
		}, []string{"operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycleResolved records a finished resolution.
func RecordCycleResolved(outcome string, seconds float64) {
	DefaultMetrics.CyclesResolved.WithLabelValues(outcome).Inc()
	DefaultMetrics.ResolveDuration.Observe(seconds)
}

// SetCycleNumber updates the active cycle gauge.
func SetCycleNumber(n int64) {
	DefaultMetrics.CurrentCycleNumber.Set(float64(n))
}

// SetTank updates the tank gauge.
func SetTank(sol float64) {
	DefaultMetrics.TankSOL.Set(sol)
}

// RecordDistributed adds SOL sent by a distribution leg.
func RecordDistributed(kind string, sol float64) {
	DefaultMetrics.SOLDistributed.WithLabelValues(kind).Add(sol)
}

// RecordPollerRun records one poller tick.
func RecordPollerRun(poller string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.PollerRuns.WithLabelValues(poller, status).Inc()
}

// SetHolderCount updates the holder gauge.
func SetHolderCount(n int) {
	DefaultMetrics.HolderCount.Set(float64(n))
}

// RecordTrade increments the trade counter for a side.
func RecordTrade(side string) {
	DefaultMetrics.TradesSeen.WithLabelValues(side).Inc()
}

// RecordStreamError increments the stream error counter.
func RecordStreamError() {
	DefaultMetrics.StreamErrors.Inc()
}

// RecordTx records a submitted transaction.
func RecordTx(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.TxSubmitted.WithLabelValues(kind, status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordHTTPRequest records API request latency.
func RecordHTTPRequest(method, status string, seconds float64) {
	DefaultMetrics.HTTPRequestLatency.WithLabelValues(method, status).Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordCacheError increments the cache error counter.
func RecordCacheError(operation string) {
	DefaultMetrics.CacheErrors.WithLabelValues(operation).Inc()
}
