package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"linguachat/config"
	"linguachat/events"
	"linguachat/metrics"
	"linguachat/models"
	"linguachat/repository"
	"linguachat/services"
	"linguachat/ws"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upperTranslator struct{}

func (upperTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	return target + ":" + strings.ToUpper(text), nil
}

type testServer struct {
	*httptest.Server
	auth    *services.AuthService
	bus     *events.InProcessBus
	limiter *RateLimiter
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.CORSOrigins = []string{"https://chat.example.com"}
	store := repository.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	bus := events.NewInProcessBus(m, zerolog.Nop())
	auth := services.NewAuthService(store.Users(), &cfg)
	hub := ws.NewHub(services.NewSubscriptionService(bus, store), m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewRouter(Deps{
		Config:    &cfg,
		Auth:      auth,
		Users:     services.NewUserService(store),
		Messages:  services.NewMessageService(store, bus, upperTranslator{}, m, &cfg),
		Reactions: services.NewReactionService(store, bus, m),
		Hub:       hub,
		Metrics:   m,
		Gatherer:  reg,
		Limiter:   limiter,
		Log:       zerolog.Nop(),
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		bus.Close()
		if limiter != nil {
			limiter.Shutdown()
		}
	})
	return &testServer{Server: srv, auth: auth, bus: bus, limiter: limiter}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (s *testServer) post(t *testing.T, path, token string, body any) (int, envelope) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, s.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (s *testServer) register(t *testing.T, username, language string) string {
	t.Helper()
	status, env := s.post(t, "/api/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password1",
		"language": language,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	var res AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func (s *testServer) op(t *testing.T, token, name string, vars any) (int, envelope) {
	t.Helper()
	return s.post(t, "/api/operations", token, map[string]any{"operation": name, "variables": vars})
}

func TestRegisterLogin(t *testing.T) {
	s := newTestServer(t, nil)
	s.register(t, "alice", "en")

	status, env := s.post(t, "/api/register", "", map[string]string{
		"username": "alice", "password": "password1", "language": "fr",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "USERNAME_TAKEN", env.Error)

	status, env = s.post(t, "/api/login", "", map[string]string{"username": "alice", "password": "password1"})
	require.Equal(t, http.StatusOK, status)
	var res AuthResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "alice", res.User.Username)
	assert.Equal(t, "en", res.User.Language)
	assert.NotContains(t, string(env.Data), "password")

	status, env = s.post(t, "/api/login", "", map[string]string{"username": "alice", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error)

	status, _ = s.post(t, "/api/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOperationsFlow(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice", "en")
	bob := s.register(t, "bob", "fr")

	status, env := s.op(t, alice, OpSendMessage, SendMessageInput{To: "bob", Content: "hello"})
	require.Equal(t, http.StatusOK, status, env.Message)
	var sent models.Message
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "en", sent.Language)

	status, env = s.op(t, bob, OpGetMessages, GetMessagesInput{From: "alice"})
	require.Equal(t, http.StatusOK, status)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "fr:HELLO", msgs[0].Content)

	status, env = s.op(t, bob, OpReactToMessage, ReactToMessageInput{UUID: sent.UUID, Content: "❤️"})
	require.Equal(t, http.StatusOK, status)
	var reaction models.Reaction
	require.NoError(t, json.Unmarshal(env.Data, &reaction))
	assert.Equal(t, "bob", reaction.Username)

	status, env = s.op(t, alice, OpGetUsers, nil)
	require.Equal(t, http.StatusOK, status)
	var users []models.User
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].Username)
	require.NotNil(t, users[0].LatestMessage)
	assert.Equal(t, "hello", users[0].LatestMessage.Content)
}

func TestOperationErrors(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice", "en")
	carol := s.register(t, "carol", "en")
	s.register(t, "bob", "fr")
	_, env := s.op(t, alice, OpSendMessage, SendMessageInput{To: "bob", Content: "hi"})
	var sent models.Message
	require.NoError(t, json.Unmarshal(env.Data, &sent))

	cases := []struct {
		name   string
		token  string
		op     string
		vars   any
		status int
		code   string
	}{
		{"anonymous", "", OpGetUsers, nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"unknown peer", alice, OpGetMessages, GetMessagesInput{From: "zed"}, http.StatusNotFound, "USER_NOT_FOUND"},
		{"self message", alice, OpSendMessage, SendMessageInput{To: "alice", Content: "hi"}, http.StatusBadRequest, "SELF_MESSAGE"},
		{"empty message", alice, OpSendMessage, SendMessageInput{To: "bob", Content: "  "}, http.StatusBadRequest, "EMPTY_CONTENT"},
		{"bad reaction", alice, OpReactToMessage, ReactToMessageInput{UUID: sent.UUID, Content: "🙂"}, http.StatusBadRequest, "INVALID_REACTION"},
		{"outsider reaction", carol, OpReactToMessage, ReactToMessageInput{UUID: sent.UUID, Content: "👍"}, http.StatusForbidden, "FORBIDDEN"},
		{"unknown message", alice, OpReactToMessage, ReactToMessageInput{UUID: "missing", Content: "👍"}, http.StatusNotFound, "MESSAGE_NOT_FOUND"},
		{"unknown operation", alice, "deleteEverything", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"mistyped variables", alice, OpSendMessage, map[string]int{"to": 1}, http.StatusBadRequest, "INVALID_INPUT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := s.op(t, tc.token, tc.op, tc.vars)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, env.Error)
			assert.False(t, env.Success)
		})
	}
}

func TestUnknownOperationsShareOneSeries(t *testing.T) {
	store := repository.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cfg := config.Defaults()
	h := NewOperationHandler(
		services.NewUserService(store),
		services.NewMessageService(store, nil, upperTranslator{}, m, &cfg),
		services.NewReactionService(store, nil, m),
		m,
	)

	for i := 0; i < 50; i++ {
		body := fmt.Sprintf(`{"operation":"junk-%d"}`, i)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/operations", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/operations", strings.NewReader(`{"operation":"getUsers"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "linguachat_operations_total"))
	expected := `
# HELP linguachat_operations_total Operations served, by operation and error code.
# TYPE linguachat_operations_total counter
linguachat_operations_total{code="INVALID_INPUT",operation="unknown"} 50
linguachat_operations_total{code="UNAUTHENTICATED",operation="getUsers"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(expected), "linguachat_operations_total"))
}

func TestInvalidTokenIsRejected(t *testing.T) {
	s := newTestServer(t, nil)
	status, env := s.op(t, "not-a-token", OpGetUsers, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHENTICATED", env.Error)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, NewRateLimiter(0.001, 2))
	alice := s.register(t, "alice", "en")
	bob := s.register(t, "bob", "en")

	for i := 0; i < 2; i++ {
		status, _ := s.op(t, alice, OpGetUsers, nil)
		assert.Equal(t, http.StatusOK, status)
	}
	status, env := s.op(t, alice, OpGetUsers, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", env.Error)

	status, _ = s.op(t, bob, OpGetUsers, nil)
	assert.Equal(t, http.StatusOK, status, "buckets are per caller")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice", "en")
	s.op(t, alice, OpGetUsers, nil)

	resp, err := http.Get(s.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `linguachat_operations_total{code="OK",operation="getUsers"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodOptions, s.URL+"/api/operations", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://chat.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://chat.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebsocketRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=bogus", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebsocketDeliversSentMessage(t *testing.T) {
	s := newTestServer(t, nil)
	alice := s.register(t, "alice", "en")
	bob := s.register(t, "bob", "fr")

	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + bob
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ws.Frame{Type: ws.TypeSubscribe, ID: "m", Stream: ws.StreamNewMessage}))
	require.Eventually(t, func() bool { return s.bus.Subscribers(events.TopicNewMessage) == 1 }, 2*time.Second, 5*time.Millisecond)

	status, _ := s.op(t, alice, OpSendMessage, SendMessageInput{To: "bob", Content: "hello"})
	require.Equal(t, http.StatusOK, status)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f ws.Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, ws.TypeNext, f.Type)
	var m models.Message
	require.NoError(t, json.Unmarshal(f.Payload, &m))
	assert.Equal(t, "alice", m.From)
	assert.Equal(t, "hello", m.Content)
}
