// SPDX-License-Identifier: MPL-2.0

// Package metrics holds the prometheus collectors ledserver exports and the
// optional HTTP listener that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledserver"

// Animation start modes used as the "mode" label.
const (
	ModeOneShot    = "oneshot"
	ModeFinite     = "finite"
	ModeContinuous = "continuous"
)

// Delivery paths used as the "path" label of MessagesSent.
const (
	PathImmediate = "immediate"
	PathInterval  = "interval"
	PathReply     = "reply"
)

// Metrics is the set of collectors for one server instance. Each instance owns
// its own registry so tests can build many servers in one process.
type Metrics struct {
	registry *prometheus.Registry

	ClientsConnected  *prometheus.GaugeVec
	FramesReceived    *prometheus.CounterVec
	FramesMalformed   *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	AnimationsRunning prometheus.Gauge
	AnimationsStarted *prometheus.CounterVec
	AnimationsEnded   prometheus.Counter
	AnimationFailures prometheus.Counter
	PersistErrors     prometheus.Counter
}

// New creates and registers every collector, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ClientsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "clients_connected",
			Help:      "1 when a client is connected to the port, 0 otherwise",
		}, []string{"port"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_received_total",
			Help:      "Frames decoded into messages",
		}, []string{"port"}),
		FramesMalformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "frames_malformed_total",
			Help:      "Frames skipped because they could not be decoded",
		}, []string{"port"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "messages_sent_total",
			Help:      "Messages written to clients",
		}, []string{"port", "path"}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "messages_dropped_total",
			Help:      "Outbound messages not delivered",
		}, []string{"port", "reason"}),
		AnimationsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "animation",
			Name:      "running",
			Help:      "Continuous animations currently registered",
		}),
		AnimationsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "animation",
			Name:      "started_total",
			Help:      "Animations started, by mode",
		}, []string{"mode"}),
		AnimationsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "animation",
			Name:      "ended_total",
			Help:      "Continuous animations ended",
		}),
		AnimationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "animation",
			Name:      "failures_total",
			Help:      "Animations that stopped because a render step failed",
		}),
		PersistErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "persistence",
			Name:      "errors_total",
			Help:      "Snapshot save or delete failures",
		}),
	}

	m.registry.MustRegister(
		m.ClientsConnected,
		m.FramesReceived,
		m.FramesMalformed,
		m.MessagesSent,
		m.MessagesDropped,
		m.AnimationsRunning,
		m.AnimationsStarted,
		m.AnimationsEnded,
		m.AnimationFailures,
		m.PersistErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
