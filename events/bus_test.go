package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus() *InProcessBus { return NewInProcessBus(nil, zerolog.Nop()) }

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func assertNothing(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case ev := <-s.C:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestPublishFansOutPerTopic(t *testing.T) {
	b := newBus()
	m1 := b.Subscribe(TopicNewMessage, 0)
	m2 := b.Subscribe(TopicNewMessage, 0)
	r := b.Subscribe(TopicNewReaction, 0)

	require.NoError(t, b.Publish(context.Background(), TopicNewMessage, "hello"))

	assert.Equal(t, "hello", receive(t, m1).Payload)
	assert.Equal(t, "hello", receive(t, m2).Payload)
	assertNothing(t, r)
}

func TestCloseUnregisters(t *testing.T) {
	b := newBus()
	s := b.Subscribe(TopicNewMessage, 1)
	assert.Equal(t, 1, b.Subscribers(TopicNewMessage))
	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Subscribers(TopicNewMessage))

	_, ok := <-s.C
	assert.False(t, ok)
	require.NoError(t, b.Publish(context.Background(), TopicNewMessage, "lost"))
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := newBus()
	slow := b.Subscribe(TopicNewMessage, 1)
	fast := b.Subscribe(TopicNewMessage, 4)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(context.Background(), TopicNewMessage, i))
	}
	assert.Equal(t, 0, receive(t, slow).Payload)
	assertNothing(t, slow)
	for i := 0; i < 3; i++ {
		assert.Equal(t, i, receive(t, fast).Payload)
	}
}

func TestBusClose(t *testing.T) {
	b := newBus()
	s := b.Subscribe(TopicNewReaction, 1)
	b.Close()
	b.Close()

	_, ok := <-s.C
	assert.False(t, ok)
	assert.ErrorIs(t, b.Publish(context.Background(), TopicNewReaction, nil), ErrClosed)

	late := b.Subscribe(TopicNewReaction, 1)
	_, ok = <-late.C
	assert.False(t, ok)
	late.Close()
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	b := newBus()
	s := b.Subscribe(TopicNewMessage, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Publish(ctx, TopicNewMessage, "x"), context.Canceled)
	assertNothing(t, s)
}
