// Package metrics owns the Prometheus collectors of the chat server.
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "linguachat"

type Metrics struct {
	messagesSent        prometheus.Counter
	reactions           *prometheus.CounterVec
	translations        *prometheus.CounterVec
	translationDuration prometheus.Histogram
	eventsPublished     *prometheus.CounterVec
	eventsDropped       *prometheus.CounterVec
	wsConnections       prometheus.Gauge
	requests            *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted by sendMessage.",
		}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_total",
			Help:      "Reactions stored by reactToMessage, by outcome.",
		}, []string{"op"}),
		translations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Calls to the translation service, by result.",
		}, []string{"result"}),
		translationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "translation_duration_seconds",
			Help:      "Latency of translation service calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published on the in-process bus.",
		}, []string{"topic"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events not delivered because a subscriber buffer was full.",
		}, []string{"topic"}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open websocket subscription connections.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations served, by operation and error code.",
		}, []string{"operation", "code"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.messagesSent,
			m.reactions,
			m.translations,
			m.translationDuration,
			m.eventsPublished,
			m.eventsDropped,
			m.wsConnections,
			m.requests,
		)
	}
	return m
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) Reaction(created bool) {
	if m == nil {
		return
	}
	op := "updated"
	if created {
		op = "created"
	}
	m.reactions.WithLabelValues(op).Inc()
}

func (m *Metrics) Translation(err error, took time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.translations.WithLabelValues(result).Inc()
	m.translationDuration.Observe(took.Seconds())
}

func (m *Metrics) EventPublished(topic string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) EventDropped(topic string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(topic).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

// Operation counts one served operation; code is "OK" on success.
func (m *Metrics) Operation(name, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(name, code).Inc()
}
