package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"linguachat/apperr"
	"linguachat/config"
	"linguachat/events"
	"linguachat/handlers"
	"linguachat/models"
	"linguachat/repository"
	"linguachat/services"
	"linguachat/state"
	"linguachat/translate"
	"linguachat/ws"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type server struct {
	*httptest.Server
	bus *events.InProcessBus
}

func newServer(t *testing.T) *server {
	t.Helper()
	cfg := config.Defaults()
	store := repository.NewMemoryStore()
	bus := events.NewInProcessBus(nil, zerolog.Nop())
	auth := services.NewAuthService(store.Users(), &cfg)
	hub := ws.NewHub(services.NewSubscriptionService(bus, store), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(handlers.NewRouter(handlers.Deps{
		Config:    &cfg,
		Auth:      auth,
		Users:     services.NewUserService(store),
		Messages:  services.NewMessageService(store, bus, translate.Identity{}, nil, &cfg),
		Reactions: services.NewReactionService(store, bus, nil),
		Hub:       hub,
		Log:       zerolog.Nop(),
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		bus.Close()
	})
	return &server{Server: srv, bus: bus}
}

func TestAPIRoundTrip(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice := NewAPI(srv.URL)
	res, err := alice.Register(ctx, "alice", "alice@example.com", "password1", "en")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.Username)
	assert.NotEmpty(t, alice.Token())

	bob := NewAPI(srv.URL)
	_, err = bob.Register(ctx, "bob", "", "password1", "fr")
	require.NoError(t, err)

	relogged := NewAPI(srv.URL)
	_, err = relogged.Login(ctx, "alice", "password1")
	require.NoError(t, err)

	m, err := relogged.Send(ctx, "bob", "hello")
	require.NoError(t, err)
	assert.Equal(t, "en", m.Language)

	msgs, err := bob.Messages(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m.UUID, msgs[0].UUID)

	r, err := bob.React(ctx, m.UUID, "👍")
	require.NoError(t, err)
	assert.Equal(t, "bob", r.Username)

	users, err := alice.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)
}

func TestAPIErrorsMatchSentinels(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	api := NewAPI(srv.URL)

	_, err := api.Users(ctx)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = api.Register(ctx, "alice", "", "password1", "en")
	require.NoError(t, err)
	_, err = api.Send(ctx, "alice", "hi")
	assert.ErrorIs(t, err, apperr.ErrSelfMessage)
	var remote *Error
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 400, remote.Status)

	_, err = api.Login(ctx, "alice", "wrong-pass")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestActionFor(t *testing.T) {
	msg := models.Message{UUID: "m1", From: "alice", To: "bob"}
	payload, err := json.Marshal(msg)
	require.NoError(t, err)

	a, err := ActionFor(ws.Frame{Type: ws.TypeNext, Stream: ws.StreamNewMessage, Payload: payload}, "bob")
	require.NoError(t, err)
	assert.Equal(t, state.AddMessage{Username: "alice", Message: msg}, a)

	a, err = ActionFor(ws.Frame{Type: ws.TypeNext, Stream: ws.StreamNewMessage, Payload: payload}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", a.(state.AddMessage).Username)

	r := models.Reaction{UUID: "r1", Content: "👍", Message: msg.Ref()}
	payload, err = json.Marshal(r)
	require.NoError(t, err)
	a, err = ActionFor(ws.Frame{Type: ws.TypeNext, Stream: ws.StreamNewReaction, Payload: payload}, "alice")
	require.NoError(t, err)
	assert.Equal(t, "bob", a.(state.AddReaction).Username)

	payload, _ = json.Marshal(models.Reaction{UUID: "r2"})
	_, err = ActionFor(ws.Frame{Stream: ws.StreamNewReaction, Payload: payload}, "alice")
	assert.Error(t, err)
	_, err = ActionFor(ws.Frame{Stream: "other"}, "alice")
	assert.Error(t, err)
}

func TestSubscriberFeedsStore(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	alice := NewAPI(srv.URL)
	_, err := alice.Register(ctx, "alice", "", "password1", "en")
	require.NoError(t, err)
	bob := NewAPI(srv.URL)
	_, err = bob.Register(ctx, "bob", "", "password1", "fr")
	require.NoError(t, err)

	users, err := bob.Users(ctx)
	require.NoError(t, err)
	store := state.NewStore(nil)
	store.Dispatch(state.SetUsers{Users: users})
	store.Dispatch(state.SetUserMessages{Username: "alice", Messages: []models.Message{}})

	sub, err := NewSubscriber(srv.URL, bob.Token(), "bob", zerolog.Nop())
	require.NoError(t, err)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sub.Run(runCtx, store) }()

	require.Eventually(t, func() bool {
		return srv.bus.Subscribers(events.TopicNewMessage) == 1 && srv.bus.Subscribers(events.TopicNewReaction) == 1
	}, 2*time.Second, 5*time.Millisecond)

	m, err := alice.Send(ctx, "bob", "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		u, _ := store.State().Find("alice")
		return len(u.Messages) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = alice.React(ctx, m.UUID, "😆")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		u, ok := store.State().Find("alice")
		return ok && len(u.Messages) == 1 && len(u.Messages[0].Reactions) == 1
	}, 2*time.Second, 10*time.Millisecond)
	u, _ := store.State().Find("alice")
	assert.Equal(t, m.UUID, u.LatestMessage.UUID)
	assert.Equal(t, "😆", u.Messages[0].Reactions[0].Content)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
