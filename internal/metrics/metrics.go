// Package metrics holds the Prometheus collectors for delivery and sweeps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	SendTotal       *prometheus.CounterVec
	SendDuration    *prometheus.HistogramVec
	Transitions     *prometheus.CounterVec
	SweepDuration   prometheus.Histogram
	SweepDueTotal   prometheus.Counter
	SweepStaleTotal prometheus.Counter
}

// New registers the collectors on reg. Each registry may only be used once.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messaging_channel_send_total",
				Help: "Channel send attempts by adapter, channel and result status.",
			},
			[]string{"adapter", "channel", "status"},
		),
		SendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "messaging_channel_send_duration_seconds",
				Help:    "Channel send latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"adapter", "channel"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messaging_status_transitions_total",
				Help: "Message status transitions.",
			},
			[]string{"from", "to"},
		),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "messaging_sweep_duration_seconds",
			Help:    "Duration of one scheduled-delivery sweep.",
			Buckets: prometheus.DefBuckets,
		}),
		SweepDueTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_sweep_due_total",
			Help: "Scheduled messages found due by sweeps.",
		}),
		SweepStaleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "messaging_sweep_stale_total",
			Help: "Scheduled messages failed because they were past the maximum staleness.",
		}),
	}

	reg.MustRegister(
		m.SendTotal,
		m.SendDuration,
		m.Transitions,
		m.SweepDuration,
		m.SweepDueTotal,
		m.SweepStaleTotal,
	)
	return m
}

// NewUnregistered is for tests and tools that do not expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
