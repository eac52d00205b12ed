package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/i474232898/sensor-aggregation/internal/sensor"
)

// Metrics holds the service's Prometheus collectors and implements sensor.Observer.
type Metrics struct {
	ReadingsIngested    prometheus.Counter
	IngestFailures      *prometheus.CounterVec
	AggregationDuration *prometheus.HistogramVec
	AggregationErrors   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sensors",
			Subsystem: "ingest",
			Name:      "readings_total",
			Help:      "Total number of readings stored",
		}),
		IngestFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensors",
				Subsystem: "ingest",
				Name:      "failures_total",
				Help:      "Ingestion batches that stopped on an error",
			},
			[]string{"reason"},
		),
		AggregationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sensors",
				Subsystem: "aggregation",
				Name:      "duration_seconds",
				Help:      "Bucketed average computation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"unit"},
		),
		AggregationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sensors",
				Subsystem: "aggregation",
				Name:      "errors_total",
				Help:      "Aggregations that failed",
			},
			[]string{"unit"},
		),
	}
	reg.MustRegister(m.ReadingsIngested, m.IngestFailures, m.AggregationDuration, m.AggregationErrors)
	return m
}

// ObserveIngest records stored readings and the reason a batch stopped, if any.
func (m *Metrics) ObserveIngest(stored int, err error) {
	m.ReadingsIngested.Add(float64(stored))
	if err == nil {
		return
	}
	reason := "other"
	switch {
	case errors.Is(err, sensor.ErrValidation):
		reason = "validation"
	case errors.Is(err, sensor.ErrStore):
		reason = "store"
	case errors.Is(err, sensor.ErrUnsupported):
		reason = "unsupported"
	}
	m.IngestFailures.WithLabelValues(reason).Inc()
}

// ObserveAggregate records the duration of an aggregation and whether it failed.
func (m *Metrics) ObserveAggregate(unit sensor.Unit, elapsed time.Duration, err error) {
	m.AggregationDuration.WithLabelValues(unit.String()).Observe(elapsed.Seconds())
	if err != nil {
		m.AggregationErrors.WithLabelValues(unit.String()).Inc()
	}
}
