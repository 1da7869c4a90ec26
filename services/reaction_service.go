package services

import (
	"context"
	"errors"

	"linguachat/apperr"
	"linguachat/events"
	"linguachat/logging"
	"linguachat/metrics"
	"linguachat/models"
	"linguachat/repository"

	"github.com/rs/zerolog"
)

type ReactionService struct {
	users     repository.UserRepository
	msgs      repository.MessageRepository
	reactions repository.ReactionRepository
	bus       events.Bus
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewReactionService(store repository.Store, bus events.Bus, m *metrics.Metrics) *ReactionService {
	return &ReactionService{
		users:     store.Users(),
		msgs:      store.Messages(),
		reactions: store.Reactions(),
		bus:       bus,
		metrics:   m,
		log:       logging.For("services").With().Str(logging.SERVICE, "reactions").Logger(),
	}
}

// React sets the caller's reaction on a message, replacing any earlier one,
// and publishes it on NEW_REACTION.
func (s *ReactionService) React(ctx context.Context, caller *models.Identity, messageUUID, content string) (*models.Reaction, error) {
	if !models.IsAllowedReaction(content) {
		return nil, apperr.ErrInvalidReaction
	}
	user, err := resolveCaller(ctx, s.users, caller)
	if err != nil {
		return nil, err
	}
	msg, err := s.msgs.FindByUUID(ctx, messageUUID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrMessageNotFound
		}
		return nil, apperr.ErrInternal.Wrap(err)
	}
	if !msg.IsParticipant(user.Username) {
		return nil, apperr.ErrForbidden
	}

	saved, created, err := s.reactions.Upsert(ctx, &models.Reaction{
		MessageUUID: msg.UUID,
		Username:    user.Username,
		Content:     content,
	})
	if err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}
	saved.Message = msg.Ref()
	s.metrics.Reaction(created)

	if err := s.bus.Publish(context.WithoutCancel(ctx), events.TopicNewReaction, *saved); err != nil {
		s.log.Warn().Err(err).
			Str(logging.MESSAGE, msg.UUID).
			Str(logging.TOPIC, string(events.TopicNewReaction)).
			Msg("publish failed")
	}
	return saved, nil
}
