package middleware

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "agora").
	Namespace string

	// Subsystem is the metrics subsystem (default: "remote").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "agora",
		Subsystem: "remote",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the collectors of the Prometheus middleware.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers the request collectors. Registering the
// same collectors twice on one registry reuses the existing ones, so
// several clients can share a registry.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of remote requests by operation and status class",
			ConstLabels: config.ConstLabels,
		}, []string{"operation", "method", "status"}),

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Remote request round-trip duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"operation"}),

		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_errors_total",
			Help:        "Total number of remote requests that failed before a response",
			ConstLabels: config.ConstLabels,
		}, []string{"operation", "error_type"}),
	}

	if config.Registry != nil {
		m.requestsTotal = registerOrReuse(config.Registry, m.requestsTotal)
		m.requestDuration = registerOrReuse(config.Registry, m.requestDuration)
		m.requestErrors = registerOrReuse(config.Registry, m.requestErrors)
	}
	return m
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Middleware returns a Middleware recording into m.
func (m *Metrics) Middleware() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			op := operationOf(req)
			start := time.Now()

			resp, err := next.RoundTrip(req)

			m.requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
			if err != nil {
				m.requestErrors.WithLabelValues(op, categorizeError(err)).Inc()
				m.requestsTotal.WithLabelValues(op, req.Method, "error").Inc()
				return resp, err
			}
			m.requestsTotal.WithLabelValues(op, req.Method, statusClass(resp.StatusCode)).Inc()
			return resp, nil
		})
	}
}

// Prometheus creates middleware that collects Prometheus metrics for remote
// requests.
//
// Example:
//
//	client := remote.New(baseURL,
//	    remote.WithMiddleware(middleware.Prometheus(
//	        middleware.WithNamespace("myapp"),
//	    )),
//	)
//
//	// Expose metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) Middleware {
	return NewMetrics(opts...).Middleware()
}

// statusClass keeps the status label low-cardinality while still separating
// the statuses the client treats specially.
func statusClass(code int) string {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}

// categorizeError returns a category for a transport error.
// This prevents high-cardinality labels from error messages.
func categorizeError(err error) string {
	var netErr net.Error
	switch {
	case stderrors.Is(err, context.Canceled):
		return "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case stderrors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case strings.Contains(err.Error(), "rate limit"):
		return "rate_limit"
	case strings.Contains(err.Error(), "connection refused"):
		return "connection_refused"
	default:
		return "network"
	}
}
