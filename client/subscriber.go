package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"linguachat/models"
	"linguachat/state"
	"linguachat/ws"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Subscriber keeps a state.Store current from the server's newMessage and
// newReaction streams.
type Subscriber struct {
	url    string
	me     string
	dialer *websocket.Dialer
	log    zerolog.Logger
}

func NewSubscriber(baseURL, token, me string, log zerolog.Logger) (*Subscriber, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return &Subscriber{url: u.String(), me: me, dialer: websocket.DefaultDialer, log: log}, nil
}

// Run subscribes to both streams and dispatches every event into store
// until ctx ends or the connection drops.
func (s *Subscriber) Run(ctx context.Context, store *state.Store) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial subscriptions: %w", err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for _, stream := range []string{ws.StreamNewMessage, ws.StreamNewReaction} {
		if err := conn.WriteJSON(ws.Frame{Type: ws.TypeSubscribe, ID: stream, Stream: stream}); err != nil {
			return err
		}
	}

	for {
		var f ws.Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		switch f.Type {
		case ws.TypeNext:
			action, err := ActionFor(f, s.me)
			if err != nil {
				s.log.Warn().Err(err).Str("stream", f.Stream).Msg("skipping event")
				continue
			}
			store.Dispatch(action)
		case ws.TypeError:
			var p ws.ErrorPayload
			json.Unmarshal(f.Payload, &p)
			return &Error{Code: p.Code, Message: p.Message}
		case ws.TypeComplete:
			s.log.Debug().Str("id", f.ID).Msg("stream completed by server")
		}
	}
}

var errUnroutable = errors.New("reaction carries no message reference")

// ActionFor maps a next frame to the state action it implies for the user
// me. Events are filed under the other participant of the thread.
func ActionFor(f ws.Frame, me string) (state.Action, error) {
	switch f.Stream {
	case ws.StreamNewMessage:
		var m models.Message
		if err := json.Unmarshal(f.Payload, &m); err != nil {
			return nil, err
		}
		return state.AddMessage{Username: m.Peer(me), Message: m}, nil
	case ws.StreamNewReaction:
		var r models.Reaction
		if err := json.Unmarshal(f.Payload, &r); err != nil {
			return nil, err
		}
		if r.Message == nil {
			return nil, errUnroutable
		}
		return state.AddReaction{Username: r.Message.Peer(me), Reaction: r}, nil
	default:
		return nil, fmt.Errorf("unknown stream %q", f.Stream)
	}
}
