// Package client talks to a chat server: operations over HTTP and live
// updates over the subscription websocket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"linguachat/apperr"
	"linguachat/models"

	"github.com/valyala/fasthttp"
)

// Error is a failure reported by the server. It matches the apperr
// sentinel with the same code, so errors.Is(err, apperr.ErrForbidden)
// works on the client side too.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*apperr.Error)
	return ok && t.Code == e.Code
}

type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type API struct {
	base    string
	timeout time.Duration
	client  *fasthttp.Client

	mu    sync.RWMutex
	token string
}

func NewAPI(baseURL string) *API {
	return &API{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: 30 * time.Second,
		client:  &fasthttp.Client{Name: "chatctl"},
	}
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *API) BaseURL() string { return a.base }

func (a *API) Register(ctx context.Context, username, email, password, language string) (*AuthResult, error) {
	var out AuthResult
	err := a.post(ctx, "/api/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
		"language": language,
	}, &out)
	if err != nil {
		return nil, err
	}
	a.SetToken(out.Token)
	return &out, nil
}

func (a *API) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	var out AuthResult
	err := a.post(ctx, "/api/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	a.SetToken(out.Token)
	return &out, nil
}

func (a *API) Users(ctx context.Context) ([]models.User, error) {
	var out []models.User
	return out, a.operation(ctx, "getUsers", nil, &out)
}

func (a *API) Messages(ctx context.Context, from string) ([]models.Message, error) {
	var out []models.Message
	return out, a.operation(ctx, "getMessages", map[string]string{"from": from}, &out)
}

func (a *API) Send(ctx context.Context, to, content string) (*models.Message, error) {
	var out models.Message
	if err := a.operation(ctx, "sendMessage", map[string]string{"to": to, "content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) React(ctx context.Context, messageUUID, content string) (*models.Reaction, error) {
	var out models.Reaction
	if err := a.operation(ctx, "reactToMessage", map[string]string{"uuid": messageUUID, "content": content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) operation(ctx context.Context, name string, vars any, out any) error {
	return a.post(ctx, "/api/operations", map[string]any{"operation": name, "variables": vars}, out)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func (a *API) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.base + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.SetBody(body)

	deadline := time.Now().Add(a.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := a.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("%s: status %d: decode response: %w", path, resp.StatusCode(), err)
	}
	if resp.StatusCode() != fasthttp.StatusOK || !env.Success {
		return &Error{Status: resp.StatusCode(), Code: env.Error, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
