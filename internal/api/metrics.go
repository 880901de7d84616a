package api

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/wire"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "tellstick"

// Metrics holds the Prometheus collectors served on /metrics.
type Metrics struct {
	reg *prometheus.Registry

	packetsReceived prometheus.Counter
	decodeErrors    *prometheus.CounterVec
	events          *prometheus.CounterVec
	commandsSent    prometheus.Counter
	sensorValue     *prometheus.GaugeVec
}

// NewMetrics creates a registry with the gateway collectors. Session
// counters and the WebSocket client count are read at scrape time; either
// source may be nil.
func NewMetrics(session Session, hub *Hub) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		packetsReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "packets_received_total",
				Help:      "Datagrams received from the controller.",
			}),
		decodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "decode_errors_total",
				Help:      "Datagrams that could not be decoded, by error kind.",
			},
			[]string{"kind"}),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "Decoded events by class and protocol.",
			},
			[]string{"class", "protocol"}),
		commandsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_sent_total",
				Help:      "Commands accepted for transmission through the API.",
			}),
		sensorValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sensor_value",
				Help:      "Last received sensor value.",
			},
			[]string{"protocol", "model", "sensor_id", "name"}),
	}

	m.reg.MustRegister(m.packetsReceived)
	m.reg.MustRegister(m.decodeErrors)
	m.reg.MustRegister(m.events)
	m.reg.MustRegister(m.commandsSent)
	m.reg.MustRegister(m.sensorValue)
	m.reg.MustRegister(collectors.NewGoCollector())

	if session != nil {
		m.reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "registrations_total",
				Help:      "Successful registrations with the controller.",
			},
			func() float64 { return float64(session.Stats().Registrations) }))
		m.reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "superseded_total",
				Help:      "Command sequences cancelled by a newer command for the same device.",
			},
			func() float64 { return float64(session.Stats().Superseded) }))
	}
	if hub != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "websocket_clients",
				Help:      "Connected WebSocket clients.",
			},
			func() float64 { return float64(hub.ClientCount()) }))
		m.reg.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "websocket_dropped_total",
				Help:      "WebSocket frames dropped because a client fell behind.",
			},
			func() float64 { return float64(hub.Dropped()) }))
	}
	return m
}

// Registry returns the registry backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Observe records a session result.
func (m *Metrics) Observe(r controller.Result) {
	if r.IsNoEvent() {
		return
	}
	m.packetsReceived.Inc()

	if r.Err != nil {
		m.decodeErrors.WithLabelValues(errorKind(r.Err)).Inc()
		return
	}
	if r.Event == nil {
		return
	}

	ev := r.Event
	m.events.WithLabelValues(string(ev.Class), ev.Protocol).Inc()
	for _, ms := range ev.Measurements() {
		m.sensorValue.WithLabelValues(ms.Protocol, ms.Model, strconv.Itoa(ms.SensorID), ms.Name).Set(ms.Value)
	}
}

// CommandSent counts a command accepted through the API.
func (m *Metrics) CommandSent() {
	m.commandsSent.Inc()
}

// errorKind maps a decode error onto a low-cardinality label.
func errorKind(err error) string {
	switch {
	case errors.Is(err, wire.ErrMalformedPacket):
		return "malformed"
	case errors.Is(err, controller.ErrUnsupportedCommand):
		return "unsupported_command"
	case errors.Is(err, protocol.ErrUnknownProtocol):
		return "unknown_protocol"
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, protocol.ErrUnrecognizedPayload):
		return "unrecognized_payload"
	case errors.Is(err, protocol.ErrNoMatch):
		return "no_match"
	default:
		return "other"
	}
}
