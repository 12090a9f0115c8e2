package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Signup outcome labels recorded on signup_requests_total.
const (
	SignupOutcomeAccepted = "accepted"
	SignupOutcomeDenied   = "denied"
	SignupOutcomeConflict = "conflict"
	SignupOutcomeError    = "error"
)

// MetricsService encapsulates Prometheus instrumentation for the
// signup engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	signupTotal     *prometheus.CounterVec
	denialTotal     *prometheus.CounterVec
	rosterHits      prometheus.Counter
	rosterMisses    prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	signupTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signup_requests_total",
		Help: "Signup attempts by outcome",
	}, []string{"outcome", "forced"})

	denialTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "signup_denials_total",
		Help: "Signup denials by violated rule",
	}, []string{"rule"})

	rosterHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_cache_hits_total",
		Help: "Roster cache hits",
	})

	rosterMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roster_cache_misses_total",
		Help: "Roster cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, signupTotal, denialTotal, rosterHits, rosterMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		signupTotal:     signupTotal,
		denialTotal:     denialTotal,
		rosterHits:      rosterHits,
		rosterMisses:    rosterMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveSignup records the outcome of one signup attempt.
func (m *MetricsService) ObserveSignup(outcome string, forced bool) {
	if m == nil {
		return
	}
	m.signupTotal.WithLabelValues(outcome, fmt.Sprintf("%t", forced)).Inc()
}

// ObserveDenial records a violated rule from a denied signup.
func (m *MetricsService) ObserveDenial(rule string) {
	if m == nil {
		return
	}
	m.denialTotal.WithLabelValues(rule).Inc()
}

// ObserveRosterCache records a roster cache lookup result.
func (m *MetricsService) ObserveRosterCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.rosterHits.Inc()
	} else {
		m.rosterMisses.Inc()
	}
}
