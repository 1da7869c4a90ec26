package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"linguachat/apperr"
	"linguachat/config"
	"linguachat/events"
	"linguachat/logging"
	"linguachat/metrics"
	"linguachat/models"
	"linguachat/repository"
	"linguachat/translate"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentTranslations bounds the translation calls one read can have
// in flight.
const maxConcurrentTranslations = 8

type MessageService struct {
	users      repository.UserRepository
	msgs       repository.MessageRepository
	bus        events.Bus
	translator translate.Translator
	metrics    *metrics.Metrics
	maxBytes   int
	log        zerolog.Logger
}

func NewMessageService(store repository.Store, bus events.Bus, tr translate.Translator, m *metrics.Metrics, cfg *config.Config) *MessageService {
	return &MessageService{
		users:      store.Users(),
		msgs:       store.Messages(),
		bus:        bus,
		translator: tr,
		metrics:    m,
		maxBytes:   cfg.Messages.MaxBytes,
		log:        logging.For("services").With().Str(logging.SERVICE, "messages").Logger(),
	}
}

// Send stores a message from caller to the user named to and publishes it
// on NEW_MESSAGE. The message is stamped with the sender's language.
func (s *MessageService) Send(ctx context.Context, caller *models.Identity, to, content string) (*models.Message, error) {
	sender, err := resolveCaller(ctx, s.users, caller)
	if err != nil {
		return nil, err
	}
	recipient, err := findUser(ctx, s.users, to)
	if err != nil {
		return nil, err
	}
	if recipient.Username == sender.Username {
		return nil, apperr.ErrSelfMessage
	}
	if strings.TrimSpace(content) == "" {
		return nil, apperr.ErrEmptyContent
	}
	if s.maxBytes > 0 && len(content) > s.maxBytes {
		return nil, apperr.ErrMessageTooLong
	}

	msg := &models.Message{
		From:     sender.Username,
		To:       recipient.Username,
		Content:  content,
		Language: sender.Language,
	}
	if err := s.msgs.Create(ctx, msg); err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}
	s.metrics.MessageSent()

	// The message is stored; a caller hanging up must not lose its event.
	if err := s.bus.Publish(context.WithoutCancel(ctx), events.TopicNewMessage, *msg); err != nil {
		s.log.Warn().Err(err).
			Str(logging.MESSAGE, msg.UUID).
			Str(logging.TOPIC, string(events.TopicNewMessage)).
			Msg("publish failed")
	}
	return msg, nil
}

// List returns the thread between caller and from, newest first. Messages
// written in another language than the caller's are translated in the
// returned copies; stored content is never changed. Any translation failure
// fails the whole read.
func (s *MessageService) List(ctx context.Context, caller *models.Identity, from string) ([]models.Message, error) {
	me, err := resolveCaller(ctx, s.users, caller)
	if err != nil {
		return nil, err
	}
	peer, err := findUser(ctx, s.users, from)
	if err != nil {
		return nil, err
	}

	msgs, err := s.msgs.ListThread(ctx, me.Username, peer.Username)
	if err != nil {
		return nil, apperr.ErrInternal.Wrap(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentTranslations)
	for i := range msgs {
		if msgs[i].Language == me.Language {
			continue
		}
		g.Go(func() error {
			out, err := s.translate(gctx, msgs[i], me.Language)
			if err != nil {
				return err
			}
			msgs[i].Content = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *MessageService) translate(ctx context.Context, m models.Message, target string) (string, error) {
	start := time.Now()
	out, err := s.translator.Translate(ctx, m.Content, m.Language, target)
	s.metrics.Translation(err, time.Since(start))
	if err != nil {
		s.log.Error().Err(err).
			Str(logging.MESSAGE, m.UUID).
			Str("model_id", translate.ModelID(m.Language, target)).
			Msg("translation failed")
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return "", err
		}
		return "", apperr.ErrUpstream.Wrap(err)
	}
	return out, nil
}
