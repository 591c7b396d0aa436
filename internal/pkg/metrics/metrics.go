package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles the drone-link collectors on an owned registry, served
// by the daemon's /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	// Connectivity records the link status to the drone (1=connected, 0=not).
	Connectivity prometheus.Gauge

	// CommandsTotal counts command exchanges by command and resolution.
	// status: ok / rejected / timeout / transport_error.
	CommandsTotal *prometheus.CounterVec

	// CommandLatency records the round-trip time of command exchanges.
	CommandLatency *prometheus.HistogramVec

	// ReconnectsTotal counts timeout-triggered reconnection attempts by result.
	ReconnectsTotal *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Connectivity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tellolink_drone_connectivity_status",
				Help: "The connectivity status of the drone link (1=connected, 0=not connected).",
			},
		),

		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tellolink_commands_total",
				Help: "Total number of command exchanges with the drone.",
			},
			[]string{"command", "status"},
		),

		CommandLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tellolink_command_latency_seconds",
				Help:    "Round-trip latency of drone command exchanges.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 25},
			},
			[]string{"command"},
		),

		ReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tellolink_reconnects_total",
				Help: "Timeout-triggered reconnection attempts by result.",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connectivity,
		m.CommandsTotal,
		m.CommandLatency,
		m.ReconnectsTotal,
	)

	return m
}

// Registry exposes the owned registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
