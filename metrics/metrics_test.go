package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.MessageSent()
	m.MessageSent()
	m.Reaction(true)
	m.Reaction(false)
	m.Reaction(false)
	m.Translation(nil, 10*time.Millisecond)
	m.Translation(errors.New("x"), time.Millisecond)
	m.EventPublished("NEW_MESSAGE")
	m.EventDropped("NEW_MESSAGE")
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Operation("sendMessage", "OK")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messagesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reactions.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reactions.WithLabelValues("updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.translations.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsDropped.WithLabelValues("NEW_MESSAGE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("sendMessage", "OK")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageSent()
		m.Reaction(true)
		m.Translation(nil, time.Second)
		m.EventPublished("t")
		m.EventDropped("t")
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.Operation("x", "OK")
	})
}
