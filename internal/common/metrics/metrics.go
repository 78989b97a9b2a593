package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backend client metrics

	// BackendRequests tracks HTTP requests made to the backend service
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total HTTP requests made to the backend service",
		},
		[]string{"status_code", "method"},
	)

	// BackendDuration tracks backend request duration
	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentconsole",
			Subsystem: "backend",
			Name:      "duration_seconds",
			Help:      "Backend request duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"path"},
	)

	// BackendCircuitBreakerState tracks circuit breaker state
	// 0 = closed (healthy), 1 = open (tripped), 2 = half-open (testing)
	BackendCircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentconsole",
			Subsystem: "backend",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	// BackendCircuitBreakerTrips tracks circuit breaker trip events
	BackendCircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "backend",
			Name:      "circuit_breaker_trips_total",
			Help:      "Total circuit breaker trip events",
		},
		[]string{"name"},
	)

	// BackendPreloadsSkipped tracks classpath cache warm-ups dropped by the throttle
	BackendPreloadsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "backend",
			Name:      "preloads_skipped_total",
			Help:      "Classpath cache warm-up requests skipped by the throttle",
		},
	)

	// Route metrics

	// RouteNavigations tracks page navigations by route and result
	RouteNavigations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "route",
			Name:      "navigations_total",
			Help:      "Total page navigations",
		},
		[]string{"route", "result"}, // result: rendered, resolve_timeout, controller_error, template_error
	)

	// RouteResolveDuration tracks time spent waiting on route preconditions
	RouteResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentconsole",
			Subsystem: "route",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent waiting on route preconditions",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route"},
	)

	// RouteFallbackRedirects tracks unmatched paths redirected to the default route
	RouteFallbackRedirects = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "route",
			Name:      "fallback_redirects_total",
			Help:      "Unmatched paths redirected to the default route",
		},
	)

	// Readiness metrics

	// ReadinessGateState tracks published gates
	// 0 = pending, 1 = published
	ReadinessGateState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agentconsole",
			Subsystem: "readiness",
			Name:      "gate_state",
			Help:      "Readiness gate state (0=pending, 1=published)",
		},
		[]string{"gate"},
	)

	// Pointcut metrics

	// PointcutOperations tracks pointcut list controller operations
	PointcutOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "pointcut",
			Name:      "operations_total",
			Help:      "Pointcut list controller operations",
		},
		[]string{"operation", "result"}, // operation: load, add, remove, retransform
	)

	// PointcutClassesRetransformed tracks classes reported by successful reweaves
	PointcutClassesRetransformed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "pointcut",
			Name:      "classes_retransformed_total",
			Help:      "Classes re-transformed by reweave actions",
		},
	)

	// Shared error handler metrics

	// HTTPFailures tracks backend failures surfaced to the view
	HTTPFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "httperrors",
			Name:      "failures_total",
			Help:      "Backend request failures surfaced to the view",
		},
		[]string{"kind"}, // kind: status, connection, circuit_open, canceled
	)

	// Scope metrics

	// ScopeStoreErrors tracks scope store failures
	ScopeStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "scope",
			Name:      "store_errors_total",
			Help:      "Scope store failures",
		},
		[]string{"store", "operation"},
	)

	// HTTP API metrics

	// HTTPRequestsTotal tracks console HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentconsole",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total console HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks console HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agentconsole",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Console HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// CircuitBreakerState constants
const (
	CircuitBreakerClosed   = 0
	CircuitBreakerOpen     = 1
	CircuitBreakerHalfOpen = 2
)
