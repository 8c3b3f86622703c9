package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ProfileCacheHits     prometheus.Counter
	ProfileCacheMisses   prometheus.Counter
	ProfileFetchFailures prometheus.Counter

	WriteConflicts   *prometheus.CounterVec
	RetriesExhausted *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry, so several instances
// can coexist in tests.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ProfileCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_cache_hits_total",
			Help:      "Profile lookups served from cache",
		}),
		ProfileCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_cache_misses_total",
			Help:      "Profile lookups that required a remote fetch",
		}),
		ProfileFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_fetch_failures_total",
			Help:      "Remote profile fetches that failed",
		}),
		WriteConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_write_conflicts_total",
				Help:      "Item writes rejected by the store with a conflict",
			},
			[]string{"operation", "reason"},
		),
		RetriesExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_write_retries_exhausted_total",
				Help:      "Item writes that failed after the retry budget",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		m.HTTPRequests,
		m.HTTPDuration,
		m.ProfileCacheHits,
		m.ProfileCacheMisses,
		m.ProfileFetchFailures,
		m.WriteConflicts,
		m.RetriesExhausted,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.ProfileCacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.ProfileCacheMisses.Inc()
	}
}

func (m *Metrics) FetchFailure() {
	if m != nil {
		m.ProfileFetchFailures.Inc()
	}
}

func (m *Metrics) WriteConflict(operation, reason string) {
	if m != nil {
		m.WriteConflicts.WithLabelValues(operation, reason).Inc()
	}
}

func (m *Metrics) RetryExhausted(operation string) {
	if m != nil {
		m.RetriesExhausted.WithLabelValues(operation).Inc()
	}
}
