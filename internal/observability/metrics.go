// Package observability exposes prometheus metrics for the analyzer.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the analyzer's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	FramesPublished  prometheus.Gauge
	FramesProcessed  prometheus.Gauge
	FramesLagged     prometheus.Gauge
	HotReloads       prometheus.Gauge
	Rebuilds         prometheus.Gauge
	NodeExecutionMS  *prometheus.GaugeVec
	NodeErrors       *prometheus.GaugeVec
	DriverDelivered  *prometheus.GaugeVec
	DriverFailed     *prometheus.GaugeVec
	PeakFrequencyHz  prometheus.Gauge
	PeakAmplitude    prometheus.Gauge
	ConcentrationPPM prometheus.Gauge
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		FramesPublished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "frames_published_total",
			Help:      "Frames published onto the shared audio stream.",
		}),
		FramesProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "frames_processed_total",
			Help:      "Frames executed through the processing graph.",
		}),
		FramesLagged: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "frames_lagged_total",
			Help:      "Frames dropped because the processing consumer lagged.",
		}),
		HotReloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "config_hot_reloads_total",
			Help:      "Configuration changes absorbed without a rebuild.",
		}),
		Rebuilds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "graph_rebuilds_total",
			Help:      "Full graph rebuilds triggered by configuration changes.",
		}),
		NodeExecutionMS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "node_avg_execution_ms",
			Help:      "Average node execution time in milliseconds.",
		}, []string{"node_id", "node_type"}),
		NodeErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "node_errors_total",
			Help:      "Node execution errors.",
		}, []string{"node_id", "node_type"}),
		DriverDelivered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "driver_delivered_total",
			Help:      "Events delivered per action driver.",
		}, []string{"driver"}),
		DriverFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "driver_failed_total",
			Help:      "Delivery failures per action driver.",
		}, []string{"driver"}),
		PeakFrequencyHz: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "peak_frequency_hz",
			Help:      "Latest detected resonance peak frequency.",
		}),
		PeakAmplitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "peak_amplitude",
			Help:      "Latest detected peak amplitude.",
		}),
		ConcentrationPPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "photoacoustic",
			Name:      "concentration_ppm",
			Help:      "Latest calculated gas concentration in ppm.",
		}),
	}
	registry.MustRegister(
		m.FramesPublished, m.FramesProcessed, m.FramesLagged,
		m.HotReloads, m.Rebuilds,
		m.NodeExecutionMS, m.NodeErrors,
		m.DriverDelivered, m.DriverFailed,
		m.PeakFrequencyHz, m.PeakAmplitude, m.ConcentrationPPM,
	)
	return m
}

// Registry returns the prometheus registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
