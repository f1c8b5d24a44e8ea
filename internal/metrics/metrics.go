// Package metrics holds the Prometheus instruments of the traffic aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "spintraffic"

// Message results used as the "result" label of MessagesReceived.
const (
	ResultTraffic   = "traffic"
	ResultIgnored   = "ignored"
	ResultMalformed = "malformed"
)

// Metrics contains all instruments of the aggregator, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Bus
	MessagesReceived *prometheus.CounterVec
	BusConnected     prometheus.Gauge
	BusReconnects    prometheus.Counter

	// Flow table
	FlowsIngested prometheus.Counter
	FlowsMerged   prometheus.Counter
	TableFlows    prometheus.Gauge

	// Reporting
	WindowsFlushed  prometheus.Counter
	LastWindowFlows prometheus.Gauge
	LastWindowBytes prometheus.Gauge
	SinkErrors      *prometheus.CounterVec
}

// New creates the instruments and registers them, together with the Go
// runtime collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "messages_received_total",
				Help:      "Total number of bus messages received, by decode result",
			},
			[]string{"result"},
		),
		BusConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "connected",
			Help:      "Whether the bus connection is up (1) or down (0)",
		}),
		BusReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "reconnects_total",
			Help:      "Total number of bus reconnects",
		}),

		FlowsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "flows_ingested_total",
			Help:      "Total number of flow records ingested",
		}),
		FlowsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "flows_merged_total",
			Help:      "Total number of flow records merged into an existing flow",
		}),
		TableFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "table",
			Name:      "flows",
			Help:      "Number of distinct flows in the current window",
		}),

		WindowsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "windows_flushed_total",
			Help:      "Total number of non-empty windows handed to the reporter",
		}),
		LastWindowFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "last_window_flows",
			Help:      "Number of flows in the last reported window",
		}),
		LastWindowBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "report",
			Name:      "last_window_bytes",
			Help:      "Bytes in both directions over all flows of the last reported window",
		}),
		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "report",
				Name:      "sink_errors_total",
				Help:      "Total number of failed writes, by sink",
			},
			[]string{"sink"},
		),
	}

	m.registry.MustRegister(
		m.MessagesReceived,
		m.BusConnected,
		m.BusReconnects,
		m.FlowsIngested,
		m.FlowsMerged,
		m.TableFlows,
		m.WindowsFlushed,
		m.LastWindowFlows,
		m.LastWindowBytes,
		m.SinkErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry to expose, e.g. through promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
