// Package session is the client half of the gateway: it holds the access token for one
// UI process, keeps it fresh through the BFF, and calls the signing proxy on the caller's behalf.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
)

// maxResponseBytes bounds BFF responses read into memory.
const maxResponseBytes = 10 << 20

// NewHTTPClient returns a client with a cookie jar, so the BFF's HttpOnly cookies
// round-trip the way they would in a browser.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// Endpoint locates the BFF.
type Endpoint struct {
	// BaseURL is the BFF origin, e.g. http://localhost:8080.
	BaseURL string
	// Prefix is where the BFF mounts its routes. Defaults to /api.
	Prefix string
	// HTTPClient must carry a cookie jar; see NewHTTPClient.
	HTTPClient *http.Client
}

func (e Endpoint) url(path string) string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "/api"
	}
	return strings.TrimSuffix(e.BaseURL, "/") + "/" + strings.Trim(prefix, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (e Endpoint) client() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}

// reply is a fully read BFF response.
type reply struct {
	status int
	header http.Header
	body   []byte
}

func (r reply) ok() bool { return r.status >= 200 && r.status < 300 }

// postJSON sends v as JSON to the BFF path. A nil v sends no body.
func (e Endpoint) postJSON(ctx context.Context, path string, v any) (reply, error) {
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			return reply{}, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(path), body)
	if err != nil {
		return reply{}, fmt.Errorf("build request: %w", err)
	}
	if v != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return e.do(req)
}

func (e Endpoint) do(req *http.Request) (reply, error) {
	return doWith(e.client(), req)
}

func doWith(c *http.Client, req *http.Request) (reply, error) {
	resp, err := c.Do(req)
	if err != nil {
		return reply{}, &transportError{err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return reply{}, &transportError{err: err}
	}
	return reply{status: resp.StatusCode, header: resp.Header, body: b}, nil
}

// transportError marks failures where no HTTP answer was received.
type transportError struct{ err error }

func (e *transportError) Error() string { return "transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// decodeToken parses a login or refresh answer. ok is false unless both the access token
// and a positive lifetime are present.
func decodeToken(body []byte) (domainauth.TokenResponse, bool) {
	var tok domainauth.TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return domainauth.TokenResponse{}, false
	}
	return tok, tok.Valid()
}

// bodyField returns a string field of a JSON object body, or "".
func bodyField(body []byte, key string) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func decodeNotice(body []byte) domainauth.SubscriptionNotice {
	var n domainauth.SubscriptionNotice
	_ = json.Unmarshal(body, &n)
	return n
}
