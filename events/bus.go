// Package events is the single-process publish/subscribe register that
// carries NEW_MESSAGE and NEW_REACTION events to subscription streams.
package events

import (
	"context"
	"errors"
	"sync"

	"linguachat/logging"
	"linguachat/metrics"

	"github.com/rs/zerolog"
)

type Topic string

const (
	TopicNewMessage  Topic = "NEW_MESSAGE"
	TopicNewReaction Topic = "NEW_REACTION"
)

type Event struct {
	Topic   Topic
	Payload any
}

// Bus delivers each published event to the subscribers registered for its
// topic at publish time.
type Bus interface {
	Publish(ctx context.Context, topic Topic, payload any) error
	Subscribe(topic Topic, buffer int) *Subscription
}

var ErrClosed = errors.New("event bus closed")

const DefaultBuffer = 64

// Subscription is one registered receiver. C is closed after Close or when
// the bus shuts down.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	topic Topic
	bus   *InProcessBus
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

type InProcessBus struct {
	mu      sync.RWMutex
	subs    map[Topic]map[*Subscription]struct{}
	closed  bool
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewInProcessBus(m *metrics.Metrics, log zerolog.Logger) *InProcessBus {
	return &InProcessBus{
		subs:    make(map[Topic]map[*Subscription]struct{}),
		metrics: m,
		log:     log.With().Str(logging.SERVICE, "event_bus").Logger(),
	}
}

func (b *InProcessBus) Subscribe(topic Topic, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, ch: ch, topic: topic, bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}
	return s
}

func (b *InProcessBus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subs[s.topic]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	close(s.ch)
	if len(subs) == 0 {
		delete(b.subs, s.topic)
	}
}

// Publish never blocks on a slow subscriber: when its buffer is full the
// event is dropped for that subscriber only.
func (b *InProcessBus) Publish(ctx context.Context, topic Topic, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	ev := Event{Topic: topic, Payload: payload}
	for s := range b.subs[topic] {
		select {
		case s.ch <- ev:
		default:
			b.metrics.EventDropped(string(topic))
			b.log.Warn().Str(logging.TOPIC, string(topic)).Msg("subscriber buffer full, event dropped")
		}
	}
	b.metrics.EventPublished(string(topic))
	return nil
}

// Subscribers reports how many subscriptions are registered for topic.
func (b *InProcessBus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close ends every subscription. Later publishes fail with ErrClosed.
func (b *InProcessBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for s := range subs {
			close(s.ch)
		}
		delete(b.subs, topic)
	}
}
