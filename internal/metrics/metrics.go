// Package metrics exposes Prometheus collectors for login attempts, similarity
// model calls, enrollment changes and HTTP traffic. Collectors live in a
// private registry so tests and multiple daemons in one process never clash.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fingerid/internal/verification"
)

const namespace = "fingerid"

// Recorder implements the observer interfaces of the enrollment, oracle and
// verification packages.
type Recorder struct {
	registry      *prometheus.Registry
	verifications *prometheus.CounterVec
	oracleCalls   *prometheus.CounterVec
	oracleLatency prometheus.Histogram
	enrollments   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// NewRecorder registers every collector, plus the Go runtime and process
// collectors, in a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_attempts_total",
			Help:      "Login attempts by protocol and terminal state.",
		}, []string{"protocol", "state"}),
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Similarity model invocations by outcome.",
		}, []string{"outcome"}),
		oracleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_duration_seconds",
			Help:      "Wall time of similarity model invocations.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45},
		}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_operations_total",
			Help:      "Enrollment changes by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.verifications,
		r.oracleCalls,
		r.oracleLatency,
		r.enrollments,
		r.httpRequests,
		r.httpLatency,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry (tests, extra collectors).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Verifications exposes the attempt counter for inspection.
func (r *Recorder) Verifications() *prometheus.CounterVec {
	return r.verifications
}

func (r *Recorder) ObserveVerification(protocol string, state verification.State) {
	r.verifications.WithLabelValues(protocol, string(state)).Inc()
}

func (r *Recorder) ObserveOracle(outcome string, elapsed time.Duration) {
	r.oracleCalls.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		r.oracleLatency.Observe(elapsed.Seconds())
	}
}

func (r *Recorder) ObserveEnrollment(outcome string) {
	r.enrollments.WithLabelValues(outcome).Inc()
}

// ObserveHTTP records one served request. route is the matched route
// pattern, never the raw path.
func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
