package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operation outcomes
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultNotFound = "not_found"
)

// Recorder holds the dashboard's Prometheus collectors on a private registry
type Recorder struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	cleanups    *prometheus.CounterVec
	renders     *prometheus.CounterVec
	httpLatency *prometheus.HistogramVec
}

// NewRecorder creates and registers all collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meter_dashboard",
			Name:      "operations_total",
			Help:      "Meter record operations by outcome.",
		}, []string{"operation", "result"}),
		cleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meter_dashboard",
			Name:      "blob_cleanup_failures_total",
			Help:      "Best-effort image deletions that failed and were ignored.",
		}, []string{"reason"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meter_dashboard",
			Name:      "report_renders_total",
			Help:      "PDF report renders by outcome.",
		}, []string{"result"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "meter_dashboard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	r.registry.MustRegister(
		r.operations,
		r.cleanups,
		r.renders,
		r.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Operation counts one record operation. Safe on a nil Recorder.
func (r *Recorder) Operation(op, result string) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, result).Inc()
}

// CleanupFailed counts a swallowed blob deletion failure
func (r *Recorder) CleanupFailed(reason string) {
	if r == nil {
		return
	}
	r.cleanups.WithLabelValues(reason).Inc()
}

// Render counts one report render
func (r *Recorder) Render(result string) {
	if r == nil {
		return
	}
	r.renders.WithLabelValues(result).Inc()
}

// ObserveHTTP records the latency of one request
func (r *Recorder) ObserveHTTP(route string, code int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpLatency.WithLabelValues(route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// OperationCounter returns the counter for op and result
func (r *Recorder) OperationCounter(op, result string) prometheus.Counter {
	return r.operations.WithLabelValues(op, result)
}

// CleanupCounter returns the cleanup failure counter for reason
func (r *Recorder) CleanupCounter(reason string) prometheus.Counter {
	return r.cleanups.WithLabelValues(reason)
}
