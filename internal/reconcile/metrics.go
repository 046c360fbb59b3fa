package reconcile

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes reconciliation progress. A nil *Metrics or an unregistered one is a no-op.
type Metrics struct {
	runs        *prometheus.CounterVec
	persons     *prometheus.CounterVec
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge

	registerOnce sync.Once
}

// Register creates the collectors on registry. It is idempotent and a no-op for a nil registry.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if m == nil || registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.runs = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meddb_reconciliation_runs_total",
			Help: "Reconciliation runs by trigger and result",
		}, []string{"trigger", "result"})

		m.persons = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meddb_reconciliation_persons_total",
			Help: "Persons processed by reconciliation outcome",
		}, []string{"outcome"})

		m.duration = factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "meddb_reconciliation_duration_seconds",
			Help:    "Duration of reconciliation runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		})

		m.lastSuccess = factory.NewGauge(prometheus.GaugeOpts{
			Name: "meddb_reconciliation_last_success_timestamp_seconds",
			Help: "Unix time of the last reconciliation run that completed",
		})
	})
}

func (m *Metrics) observePerson(outcome Outcome) {
	if m == nil || m.persons == nil {
		return
	}
	m.persons.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) observeRun(trigger string, err error, elapsed time.Duration, finished time.Time) {
	if m == nil || m.runs == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.runs.WithLabelValues(trigger, result).Inc()
	m.duration.Observe(elapsed.Seconds())
	if err == nil {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}
