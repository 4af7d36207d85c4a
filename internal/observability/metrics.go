// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label for successful operations. Failures are labelled with the
// ledger error name (e.g. "MarketExpired").
const ResultOK = "ok"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	LockWait          *prometheus.HistogramVec

	// Token flow metrics
	TokensStaked prometheus.Counter
	TokensPaid   prometheus.Counter
	BetsPlaced   *prometheus.CounterVec
	Settlements  *prometheus.CounterVec

	// Event fan-out metrics
	EventsEmitted    *prometheus.CounterVec
	EventEmitErrors  *prometheus.CounterVec
	WebsocketClients prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	RateLimited  prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a new Metrics instance registered on reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "prediction_market"
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ledger operation metrics
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and result",
		}, []string{"op", "result"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation duration in seconds, lock wait included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		LockWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring record locks by scope",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"scope"}),

		// Token flow metrics
		TokensStaked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "tokens_staked_total",
			Help:      "Total base units locked into escrow by admitted bets",
		}),
		TokensPaid: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "tokens_paid_total",
			Help:      "Total base units released from escrow to winners",
		}),
		BetsPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "bets_placed_total",
			Help:      "Total number of admitted bets by side",
		}, []string{"side"}),
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "settlements_total",
			Help:      "Total number of settled markets by outcome",
		}, []string{"outcome"}),

		// Event fan-out metrics
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Total number of ledger events emitted by kind",
		}, []string{"kind"}),
		EventEmitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emit_errors_total",
			Help:      "Total number of failed event deliveries by sink",
		}, []string{"sink"}),
		WebsocketClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "websocket_clients",
			Help:      "Current number of connected websocket clients",
		}),

		// HTTP metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"route", "status"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the per-caller rate limit",
		}),

		// Database metrics
		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records one ledger operation. result is ResultOK or an error name.
func (m *Metrics) RecordOperation(op, result string, seconds float64) {
	m.OperationsTotal.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(seconds)
}

// RecordLockWait records time spent waiting for a record lock.
func (m *Metrics) RecordLockWait(scope string, seconds float64) {
	m.LockWait.WithLabelValues(scope).Observe(seconds)
}

// RecordBet records an admitted stake.
func (m *Metrics) RecordBet(side string, amount uint64) {
	m.BetsPlaced.WithLabelValues(side).Inc()
	m.TokensStaked.Add(float64(amount))
}

// RecordSettlement records a settled market.
func (m *Metrics) RecordSettlement(outcome string) {
	m.Settlements.WithLabelValues(outcome).Inc()
}

// RecordPayout records winnings released to a claimant.
func (m *Metrics) RecordPayout(amount uint64) {
	m.TokensPaid.Add(float64(amount))
}

// RecordEvent records an emitted ledger event.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsEmitted.WithLabelValues(kind).Inc()
}

// RecordEmitError records a failed delivery to an event sink.
func (m *Metrics) RecordEmitError(sink string) {
	m.EventEmitErrors.WithLabelValues(sink).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(route, status string) {
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
