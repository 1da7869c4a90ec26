package translate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"linguachat/apperr"

	"github.com/valyala/fasthttp"
)

const DefaultWatsonVersion = "2018-05-01"

type WatsonConfig struct {
	URL     string
	APIKey  string
	Version string
	// Timeout bounds a call when the caller's context has no deadline.
	// Zero means no bound.
	Timeout time.Duration
}

// WatsonClient calls the IBM Language Translator v3 REST API.
type WatsonClient struct {
	endpoint string
	auth     string
	timeout  time.Duration
	client   *fasthttp.Client
}

func NewWatsonClient(cfg WatsonConfig) *WatsonClient {
	version := cfg.Version
	if version == "" {
		version = DefaultWatsonVersion
	}
	endpoint := strings.TrimRight(cfg.URL, "/") + "/v3/translate?version=" + url.QueryEscape(version)
	return &WatsonClient{
		endpoint: endpoint,
		auth:     "Basic " + base64.StdEncoding.EncodeToString([]byte("apikey:"+cfg.APIKey)),
		timeout:  cfg.Timeout,
		client: &fasthttp.Client{
			Name:                "linguachat",
			MaxIdleConnDuration: 90 * time.Second,
		},
	}
}

type watsonRequest struct {
	Text    []string `json:"text"`
	ModelID string   `json:"model_id"`
}

type watsonResponse struct {
	Translations []struct {
		Translation string `json:"translation"`
	} `json:"translations"`
	Error string `json:"error"`
}

func (c *WatsonClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.ErrUpstream.Wrap(err)
	}
	body, err := json.Marshal(watsonRequest{Text: []string{text}, ModelID: ModelID(source, target)})
	if err != nil {
		return "", apperr.ErrUpstream.Wrap(err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.auth)
	req.SetBody(body)

	if deadline, ok := c.deadline(ctx); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		return "", apperr.ErrUpstream.Wrap(fmt.Errorf("translate %s: %w", ModelID(source, target), err))
	}

	var out watsonResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil && resp.StatusCode() == fasthttp.StatusOK {
		return "", apperr.ErrUpstream.Wrap(fmt.Errorf("decode translation: %w", err))
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = fasthttp.StatusMessage(resp.StatusCode())
		}
		return "", apperr.ErrUpstream.Wrap(fmt.Errorf("translate %s: status %d: %s", ModelID(source, target), resp.StatusCode(), msg))
	}
	if len(out.Translations) == 0 {
		return "", apperr.ErrUpstream.Wrap(fmt.Errorf("translate %s: empty result", ModelID(source, target)))
	}
	return out.Translations[0].Translation, nil
}

func (c *WatsonClient) deadline(ctx context.Context) (time.Time, bool) {
	if d, ok := ctx.Deadline(); ok {
		return d, true
	}
	if c.timeout > 0 {
		return time.Now().Add(c.timeout), true
	}
	return time.Time{}, false
}
