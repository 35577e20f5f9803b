package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat_keystore"

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Token store metrics
	StoreOpDuration *prometheus.HistogramVec
	StoreOpsTotal   *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec
	StoreConnects   *prometheus.CounterVec

	// Key resolution metrics
	ResolutionsTotal *prometheus.CounterVec
	StatusChecks     *prometheus.CounterVec
	KeySaves         *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// defaultBuckets are the default histogram buckets for duration metrics (in seconds)
var defaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// globalMetrics is the global metrics instance
var globalMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		StoreOpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "token_store",
				Name:      "operation_duration_seconds",
				Help:      "Duration of token store operations in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"backend", "operation"},
		),
		StoreOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token_store",
				Name:      "operations_total",
				Help:      "Total number of token store operations",
			},
			[]string{"backend", "operation"},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token_store",
				Name:      "errors_total",
				Help:      "Total number of failed token store operations",
			},
			[]string{"backend", "operation"},
		),
		StoreConnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "token_store",
				Name:      "connects_total",
				Help:      "Token store connection attempts by result",
			},
			[]string{"backend", "result"},
		),

		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keys",
				Name:      "resolutions_total",
				Help:      "API key resolutions by outcome (merged, cookie_only, degraded, cached)",
			},
			[]string{"outcome"},
		),
		StatusChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keys",
				Name:      "status_checks_total",
				Help:      "Provider status checks by provider and source",
			},
			[]string{"provider", "source"},
		),
		KeySaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keys",
				Name:      "saves_total",
				Help:      "API key saves by provider and where the key landed",
			},
			[]string{"provider", "destination"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "In-process cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   defaultBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "response_size_bytes",
				Help:      "Size of HTTP responses in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "state",
				Help:      "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		CircuitBreakerTrips: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "circuit_breaker",
				Name:      "trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"service"},
		),
	}

	return m
}

// InitMetrics initializes the global metrics instance
func InitMetrics() *Metrics {
	globalMetrics = NewMetrics(nil)
	return globalMetrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return InitMetrics()
	}
	return globalMetrics
}

// SetMetrics replaces the global instance (tests register on a private registry)
func SetMetrics(m *Metrics) {
	globalMetrics = m
}

// RecordStoreOp records a completed token store operation
func (m *Metrics) RecordStoreOp(backend, operation string, duration time.Duration) {
	m.StoreOpsTotal.WithLabelValues(backend, operation).Inc()
	m.StoreOpDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordStoreError records a failed token store operation
func (m *Metrics) RecordStoreError(backend, operation string) {
	m.StoreErrors.WithLabelValues(backend, operation).Inc()
}

// RecordStoreConnect records a connection attempt; result is "ok" or "error"
func (m *Metrics) RecordStoreConnect(backend, result string) {
	m.StoreConnects.WithLabelValues(backend, result).Inc()
}

// RecordResolution records how an API key resolution was satisfied
func (m *Metrics) RecordResolution(outcome string) {
	m.ResolutionsTotal.WithLabelValues(outcome).Inc()
}

// RecordStatusCheck records a provider status check
func (m *Metrics) RecordStatusCheck(provider, source string) {
	if source == "" {
		source = "none"
	}
	m.StatusChecks.WithLabelValues(provider, source).Inc()
}

// RecordKeySave records an API key save
func (m *Metrics) RecordKeySave(provider, destination string) {
	m.KeySaves.WithLabelValues(provider, destination).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration, responseSize int) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// SetCircuitBreakerState sets the current state of a circuit breaker
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(service string) {
	m.CircuitBreakerTrips.WithLabelValues(service).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer creates a new timer
func (m *Metrics) NewTimer() *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: m,
	}
}

// ObserveStore records the token store operation duration
func (t *Timer) ObserveStore(backend, operation string) {
	t.metrics.RecordStoreOp(backend, operation, time.Since(t.start))
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
