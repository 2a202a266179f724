// Package metrics provides Prometheus metrics for the plan service and the
// search projector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plans"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// Plan service
	PlanOperationsTotal   *prometheus.CounterVec
	PlanOperationDuration *prometheus.HistogramVec

	// Event stream
	EventsPublishedTotal  *prometheus.CounterVec
	EventsConsumedTotal   *prometheus.CounterVec
	EventsDeadLetterTotal *prometheus.CounterVec
	EventDeliveryAttempts *prometheus.HistogramVec

	// Search projection
	ProjectedDocumentsTotal *prometheus.CounterVec
	ProjectionDriftTotal    *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.PlanOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of plan operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.PlanOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of plan operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	m.EventsPublishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of change events published by outcome",
		},
		[]string{"topic", "outcome"},
	)

	m.EventsConsumedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Total number of change event deliveries handled by outcome",
		},
		[]string{"topic", "outcome"},
	)

	m.EventsDeadLetterTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dead_letter_total",
			Help:      "Total number of events moved to a dead-letter topic",
		},
		[]string{"topic"},
	)

	m.EventDeliveryAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_delivery_attempts",
			Help:      "Number of handler attempts needed per event",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
		[]string{"topic"},
	)

	m.ProjectedDocumentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projected_documents_total",
			Help:      "Total number of search documents written or deleted",
		},
		[]string{"action"},
	)

	m.ProjectionDriftTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_drift_total",
			Help:      "Total number of projection steps that failed and left the index behind the store",
		},
		[]string{"operation"},
	)

	return m
}

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordPlanOperation records a plan operation with its outcome.
func (m *Metrics) RecordPlanOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.PlanOperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.PlanOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPublish records one publish attempt.
func (m *Metrics) RecordPublish(topic string, err error) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(topic, Outcome(err)).Inc()
}

// RecordDelivery records the final outcome of delivering one event.
func (m *Metrics) RecordDelivery(topic string, attempts int, err error) {
	if m == nil {
		return
	}
	m.EventsConsumedTotal.WithLabelValues(topic, Outcome(err)).Inc()
	m.EventDeliveryAttempts.WithLabelValues(topic).Observe(float64(attempts))
}

// RecordDeadLetter records an event moved to the dead-letter topic.
func (m *Metrics) RecordDeadLetter(topic string) {
	if m == nil {
		return
	}
	m.EventsDeadLetterTotal.WithLabelValues(topic).Inc()
}

// RecordProjection records search documents written or deleted.
func (m *Metrics) RecordProjection(action string, count int) {
	if m == nil {
		return
	}
	m.ProjectedDocumentsTotal.WithLabelValues(action).Add(float64(count))
}

// RecordDrift records a projection step that left the index stale.
func (m *Metrics) RecordDrift(operation string) {
	if m == nil {
		return
	}
	m.ProjectionDriftTotal.WithLabelValues(operation).Inc()
}
