// Package metrics holds the prometheus collectors of the routing pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notify_router"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	eventsPublished   *prometheus.CounterVec
	deliveriesCreated *prometheus.CounterVec
	dispatchOutcomes  *prometheus.CounterVec
	aggregatedSize    prometheus.Histogram
	senderLatency     *prometheus.HistogramVec
	outboxRelayed     *prometheus.CounterVec
	sweepRequeued     *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

// New constructs and registers the collectors with reg (default registerer if nil).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "events_published_total",
				Help:      "Events accepted for routing, by whether any delivery was created.",
			},
			[]string{"routed"},
		),
		deliveriesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "deliveries_created_total",
				Help:      "Delivery rows staged by fan-out.",
			},
			[]string{"channel", "role"},
		),
		dispatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "outcomes_total",
				Help:      "Delivery dispatch outcomes.",
			},
			[]string{"channel", "outcome"},
		),
		aggregatedSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "aggregated_email_recipients",
				Help:      "Deliveries folded into one aggregated email.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		senderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "send_seconds",
				Help:      "Latency of channel sender calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		outboxRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "relayed_total",
				Help:      "Outbox messages handed to kafka, by result.",
			},
			[]string{"result"},
		),
		sweepRequeued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sweep",
				Name:      "requeued_total",
				Help:      "Deliveries re-armed by the retry and recovery sweeps.",
			},
			[]string{"reason"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "channel",
				Name:      "breaker_open",
				Help:      "1 while the channel circuit breaker is not closed.",
			},
			[]string{"channel"},
		),
	}

	reg.MustRegister(
		m.eventsPublished,
		m.deliveriesCreated,
		m.dispatchOutcomes,
		m.aggregatedSize,
		m.senderLatency,
		m.outboxRelayed,
		m.sweepRequeued,
		m.breakerState,
	)

	return m
}

func (m *Metrics) EventPublished(deliveries int) {
	if m == nil {
		return
	}
	routed := "true"
	if deliveries == 0 {
		routed = "false"
	}
	m.eventsPublished.WithLabelValues(routed).Inc()
}

func (m *Metrics) DeliveryCreated(channel, role string) {
	if m == nil {
		return
	}
	m.deliveriesCreated.WithLabelValues(channel, role).Inc()
}

// DispatchOutcome records n deliveries that ended with outcome (delivered,
// failed_terminal, failed_retryable, skipped).
func (m *Metrics) DispatchOutcome(channel, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dispatchOutcomes.WithLabelValues(channel, outcome).Add(float64(n))
}

func (m *Metrics) AggregatedEmail(recipients int) {
	if m == nil {
		return
	}
	m.aggregatedSize.Observe(float64(recipients))
}

func (m *Metrics) SenderLatency(channel string, d time.Duration) {
	if m == nil {
		return
	}
	m.senderLatency.WithLabelValues(channel).Observe(d.Seconds())
}

func (m *Metrics) OutboxRelayed(result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxRelayed.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) SweepRequeued(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepRequeued.WithLabelValues(reason).Add(float64(n))
}

// BreakerState is shaped to be passed to channel.NewGuard as the state hook.
func (m *Metrics) BreakerState(name, _, to string) {
	if m == nil {
		return
	}
	v := 0.0
	if to != "closed" {
		v = 1
	}
	m.breakerState.WithLabelValues(name).Set(v)
}
