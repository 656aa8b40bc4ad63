package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"

	"github.com/tradeboard/gateway/internal/credential"
	apperrors "github.com/tradeboard/gateway/internal/errors"
)

// Mode selects the backend environment a call targets.
type Mode string

const (
	ModeProduction Mode = "PRODUCTION"
	ModeTestnet    Mode = "TESTNET"
)

// UnmarshalText accepts PRODUCTION or TESTNET in any case. Empty selects production.
func (m *Mode) UnmarshalText(b []byte) error {
	switch v := Mode(strings.ToUpper(strings.TrimSpace(string(b)))); v {
	case "":
		*m = ModeProduction
	case ModeProduction, ModeTestnet:
		*m = v
	default:
		return fmt.Errorf("unknown mode %q", string(b))
	}
	return nil
}

// ErrNoAccessToken is returned by StoreTokenSource when the store holds no usable token.
var ErrNoAccessToken = errors.New("no valid access token")

// StoreTokenSource exposes a credential store as an oauth2.TokenSource.
type StoreTokenSource struct {
	Store *credential.Store
}

// Token returns the stored token, never an expired one.
func (s StoreTokenSource) Token() (*oauth2.Token, error) {
	value, ok := s.Store.Valid()
	if !ok {
		return nil, ErrNoAccessToken
	}
	return &oauth2.Token{AccessToken: value, TokenType: "Bearer", Expiry: s.Store.Snapshot().ExpiresAt}, nil
}

// APIClientOptions groups dependencies for APIClient.
type APIClientOptions struct {
	Deps ControllerDeps
	BFF  Endpoint
	Mode Mode
}

// APIClient calls backend endpoints through the BFF proxy with the session's bearer token.
type APIClient struct {
	store       *credential.Store
	coordinator *Coordinator
	signals     *Signals
	bff         Endpoint
	mode        Mode
	tokens      oauth2.TokenSource
}

// NewAPIClient constructs a new APIClient.
func NewAPIClient(opts APIClientOptions) *APIClient {
	if opts.Deps.Store == nil || opts.Deps.Coordinator == nil {
		panic("credential store and refresh coordinator are required")
	}
	c := &APIClient{
		store:       opts.Deps.Store,
		coordinator: opts.Deps.Coordinator,
		signals:     opts.Deps.Signals,
		bff:         opts.BFF,
		mode:        opts.Mode,
		tokens:      StoreTokenSource{Store: opts.Deps.Store},
	}
	if c.signals == nil {
		c.signals = opts.Deps.Coordinator.signals
	}
	return c
}

// APIRequest is one call to a backend path below the proxy.
type APIRequest struct {
	Method string
	// Path is relative to the proxy mount, e.g. "v1/positions".
	Path  string
	Query url.Values
	// Body is marshalled as JSON. []byte and json.RawMessage are sent as-is.
	Body   any
	Header http.Header
}

// APIResponse is the relayed backend answer.
type APIResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do sends req, refreshing first when no valid token is held. A 401 triggers one
// coordinated refresh and exactly one retry; a 402 raises the subscription signal
// and is not retried. Non-2xx answers are returned together with an error.
func (c *APIClient) Do(ctx context.Context, req APIRequest) (*APIResponse, error) {
	if _, ok := c.store.Valid(); !ok {
		c.coordinator.Refresh(ctx)
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		if !c.coordinator.Refresh(ctx) {
			return resp, apperrors.Auth("Session expired")
		}
		resp, err = c.send(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	return resp, c.classify(resp)
}

func (c *APIClient) classify(resp *APIResponse) error {
	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return nil
	case resp.Status == http.StatusPaymentRequired:
		notice := decodeNotice(resp.Body)
		c.signals.SubscriptionRequired(notice)
		msg := notice.Message
		if msg == "" {
			msg = MsgSubscriptionRequired
		}
		return apperrors.Subscription(msg)
	case resp.Status == http.StatusUnauthorized:
		return apperrors.Auth("Unauthorized")
	default:
		msg := bodyField(resp.Body, "error")
		if msg == "" {
			msg = bodyField(resp.Body, "message")
		}
		if msg == "" {
			msg = http.StatusText(resp.Status)
		}
		return apperrors.Upstream(resp.Status, msg)
	}
}

func (c *APIClient) send(ctx context.Context, in APIRequest) (*APIResponse, error) {
	method := strings.ToUpper(in.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := c.bff.url("/proxy/" + strings.TrimPrefix(in.Path, "/"))
	query := cloneValues(in.Query)
	var body io.Reader
	if method == http.MethodGet {
		if c.mode != "" {
			query.Set("mode", string(c.mode))
		}
	} else {
		b, err := withMode(in.Body, c.mode)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid request body")
		}
		if len(b) > 0 {
			body = bytes.NewReader(b)
		}
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "Invalid request")
	}
	for k, vs := range in.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	r, err := doWith(c.httpClient(), req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNetwork, MsgNetworkError)
	}
	return &APIResponse{Status: r.status, Header: r.header, Body: r.body}, nil
}

// httpClient returns the BFF client, wrapped with an oauth2 transport when a token is held.
// Without a token the request goes out bare and the BFF answers 401.
func (c *APIClient) httpClient() *http.Client {
	base := c.bff.client()
	tok, err := c.tokens.Token()
	if err != nil {
		return base
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(tok),
			Base:   base.Transport,
		},
		Jar:           base.Jar,
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
	}
}

// withMode marshals body and adds a mode field to JSON objects that lack one.
// A nil body becomes {"mode": mode}. Non-object bodies are sent unchanged.
func withMode(body any, mode Mode) ([]byte, error) {
	var raw []byte
	switch v := body.(type) {
	case nil:
		if mode == "" {
			return nil, nil
		}
		return json.Marshal(map[string]Mode{"mode": mode})
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		raw = b
	}
	if mode == "" {
		return raw, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return raw, nil
	}
	if _, ok := obj["mode"]; ok {
		return raw, nil
	}
	m, _ := json.Marshal(mode)
	obj["mode"] = m
	return json.Marshal(obj)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Project evaluates a JMESPath expression against a JSON body.
func Project(body []byte, expr string) (any, error) {
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	out, err := jmespath.Search(expr, data)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return out, nil
}
