package mutation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for an Executor.
// A nil *Metrics records nothing.
type Metrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewMetrics registers the executor collectors with reg under namespace.
//
// Metrics collected:
//   - <ns>_mutations_total: executions by name and outcome
//     (success, error, cancelled, busy, dropped)
//   - <ns>_mutation_duration_seconds: time from start to settlement
//   - <ns>_mutations_in_flight: currently pending executions by name
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "agora"
	}
	factory := promauto.With(reg)
	return &Metrics{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Total number of mutations by name and outcome",
		}, []string{"name", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mutation_duration_seconds",
			Help:      "Mutation duration from start to settlement in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),

		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mutations_in_flight",
			Help:      "Number of pending mutations",
		}, []string{"name"}),
	}
}

func (m *Metrics) started(name string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(name).Inc()
}

func (m *Metrics) finished(name, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(name).Dec()
	m.total.WithLabelValues(name, outcome).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) observeBusy(name string) {
	if m == nil {
		return
	}
	m.total.WithLabelValues(name, "busy").Inc()
}
