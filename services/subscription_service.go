package services

import (
	"context"

	"linguachat/apperr"
	"linguachat/events"
	"linguachat/logging"
	"linguachat/models"
	"linguachat/repository"

	"github.com/rs/zerolog"
)

// SubscriptionService turns bus topics into per-subscriber streams that only
// carry events the subscriber takes part in. There is no replay: a stream
// starts with the first event published after it was opened.
type SubscriptionService struct {
	bus    events.Bus
	msgs   repository.MessageRepository
	buffer int
	log    zerolog.Logger
}

func NewSubscriptionService(bus events.Bus, store repository.Store) *SubscriptionService {
	return &SubscriptionService{
		bus:    bus,
		msgs:   store.Messages(),
		buffer: events.DefaultBuffer,
		log:    logging.For("services").With().Str(logging.SERVICE, "subscriptions").Logger(),
	}
}

// MessageVisibleTo reports whether username is the sender or recipient of m.
func MessageVisibleTo(m models.Message, username string) bool {
	return m.IsParticipant(username)
}

// NewMessages streams messages sent or received by caller until ctx ends.
func (s *SubscriptionService) NewMessages(ctx context.Context, caller *models.Identity) (<-chan models.Message, error) {
	if caller == nil || caller.Username == "" {
		return nil, apperr.ErrUnauthenticated
	}
	return stream(ctx, s, events.TopicNewMessage, func(_ context.Context, m models.Message) bool {
		return MessageVisibleTo(m, caller.Username)
	}), nil
}

// NewReactions streams reactions on messages caller takes part in until ctx
// ends. The parent message is loaded from storage for every event.
func (s *SubscriptionService) NewReactions(ctx context.Context, caller *models.Identity) (<-chan models.Reaction, error) {
	if caller == nil || caller.Username == "" {
		return nil, apperr.ErrUnauthenticated
	}
	return stream(ctx, s, events.TopicNewReaction, func(ctx context.Context, r models.Reaction) bool {
		return s.reactionVisibleTo(ctx, r, caller.Username)
	}), nil
}

func (s *SubscriptionService) reactionVisibleTo(ctx context.Context, r models.Reaction, username string) bool {
	msg, err := s.msgs.FindByUUID(ctx, r.MessageUUID)
	if err != nil {
		s.log.Debug().Err(err).Str(logging.MESSAGE, r.MessageUUID).Msg("reaction parent not resolved")
		return false
	}
	return MessageVisibleTo(*msg, username)
}

// stream registers on topic before returning so that any event published
// afterwards reaches the filter.
func stream[T any](ctx context.Context, s *SubscriptionService, topic events.Topic, keep func(context.Context, T) bool) <-chan T {
	sub := s.bus.Subscribe(topic, s.buffer)
	out := make(chan T, s.buffer)

	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				payload, ok := ev.Payload.(T)
				if !ok {
					s.log.Warn().Str(logging.TOPIC, string(topic)).Msgf("unexpected payload %T", ev.Payload)
					continue
				}
				if !keep(ctx, payload) {
					continue
				}
				select {
				case out <- payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
