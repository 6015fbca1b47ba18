// Package metrics exposes Prometheus counters for transactions, domain
// operations and HTTP traffic. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	TxAttemptsTotal            = "dsein_tx_attempts_total"
	TxConflictsTotal           = "dsein_tx_conflicts_total"
	TxExhaustedTotal           = "dsein_tx_exhausted_total"
	OperationsTotal            = "dsein_operations_total"
	HTTPRequestTotal           = "http_requests_total"
	HTTPRequestDurationSeconds = "http_request_duration_seconds"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	txAttempts  *prometheus.CounterVec
	txConflicts *prometheus.CounterVec
	txExhausted *prometheus.CounterVec
	operations  *prometheus.CounterVec
	httpTotal   *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		txAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: TxAttemptsTotal,
			Help: "Count of transaction attempts, including retries",
		}, []string{"backend"}),
		txConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: TxConflictsTotal,
			Help: "Count of transaction attempts aborted by a conflict",
		}, []string{"backend"}),
		txExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: TxExhaustedTotal,
			Help: "Count of transactions that ran out of retries",
		}, []string{"backend"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: OperationsTotal,
			Help: "Count of domain operations by outcome code",
		}, []string{"operation", "outcome"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: HTTPRequestTotal,
			Help: "Count of all HTTP requests",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: HTTPRequestDurationSeconds,
			Help: "Duration of all HTTP requests",
		}, []string{"method", "status_code"}),
	}

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m.registry.MustRegister(
		m.txAttempts,
		m.txConflicts,
		m.txExhausted,
		m.operations,
		m.httpTotal,
		m.httpLatency,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTxAttempt implements store.RetryObserver.
func (m *Metrics) ObserveTxAttempt(backend string) {
	if m == nil {
		return
	}
	m.txAttempts.WithLabelValues(backend).Inc()
}

// ObserveTxConflict implements store.RetryObserver.
func (m *Metrics) ObserveTxConflict(backend string) {
	if m == nil {
		return
	}
	m.txConflicts.WithLabelValues(backend).Inc()
}

// ObserveTxExhausted implements store.RetryObserver.
func (m *Metrics) ObserveTxExhausted(backend string) {
	if m == nil {
		return
	}
	m.txExhausted.WithLabelValues(backend).Inc()
}

// ObserveOperation counts one domain operation. outcome is "ok" or an error code.
func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// Middleware records request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		code := strconv.Itoa(rec.status)
		m.httpTotal.WithLabelValues(r.Method, code).Inc()
		m.httpLatency.WithLabelValues(r.Method, code).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush on the real writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
