// Package metrics exposes Prometheus collectors for the vault, the order
// module and the keeper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

const namespace = "sentinel"

// Execution results recorded by the keeper.
const (
	ResultExecuted        = "executed"
	ResultConditionNotMet = "condition_not_met"
	ResultRetriable       = "retriable"
	ResultFailed          = "failed"
	ResultSkipped         = "skipped"
)

// Metrics holds every collector of the service.
type Metrics struct {
	// EventsTotal counts committed events by kind.
	EventsTotal *prometheus.CounterVec

	// ExecutionsTotal counts keeper execution attempts by result.
	ExecutionsTotal *prometheus.CounterVec

	// PollDuration is the time a keeper poll takes, in seconds.
	PollDuration prometheus.Histogram

	// OpenOrders is the number of OPEN orders seen by the last poll.
	OpenOrders prometheus.Gauge

	// LastEventTimestamp is the unix time of the last committed event.
	LastEventTimestamp prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Total number of committed events",
			},
			[]string{"kind"},
		),
		ExecutionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "executions_total",
				Help:      "Total number of order execution attempts",
			},
			[]string{"result"},
		),
		PollDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "poll_duration_seconds",
				Help:      "Duration of a keeper poll in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		OpenOrders: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "keeper",
				Name:      "open_orders",
				Help:      "Number of OPEN orders seen by the last poll",
			},
		),
		LastEventTimestamp: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "last_event_timestamp_seconds",
				Help:      "Unix time of the last committed event",
			},
		),
	}
}

// ObserveEvent records a committed event. Its signature matches state.Hook.
func (m *Metrics) ObserveEvent(ev domain.Event) {
	m.EventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	if !ev.At.IsZero() {
		m.LastEventTimestamp.Set(float64(ev.At.Unix()) + float64(ev.At.Nanosecond())/1e9)
	}
}

// ObserveExecution records one keeper execution attempt.
func (m *Metrics) ObserveExecution(result string) {
	m.ExecutionsTotal.WithLabelValues(result).Inc()
}

// ObservePoll records a completed poll.
func (m *Metrics) ObservePoll(d time.Duration, open int) {
	m.PollDuration.Observe(d.Seconds())
	m.OpenOrders.Set(float64(open))
}
