package httpx

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded for ignored", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "10.0.0.2"},
		{"real ip ignored", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:1234", "10.0.0.2"},
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"remote addr without port", nil, "192.0.2.10", "192.0.2.10"},
		{"ipv6 remote addr", nil, "[2001:db8::1]:443", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestClientIPResolver(t *testing.T) {
	resolver, err := NewClientIPResolver([]string{"10.0.0.0/8", " 192.0.2.50 ", ""})
	require.NoError(t, err)

	tests := []struct {
		name   string
		xff    []string
		xri    string
		remote string
		want   string
	}{
		{"untrusted peer keeps its address", []string{"203.0.113.7"}, "", "198.51.100.9:1000", "198.51.100.9"},
		{"rightmost untrusted hop", []string{"1.1.1.1, 203.0.113.7, 10.0.0.3"}, "", "10.0.0.2:1000", "203.0.113.7"},
		{"spoofed leftmost hop skipped", []string{"6.6.6.6", "203.0.113.7"}, "", "10.0.0.2:1000", "203.0.113.7"},
		{"all hops trusted", []string{"10.0.0.9, 10.0.0.3"}, "", "10.0.0.2:1000", "10.0.0.9"},
		{"bare address proxy", []string{"203.0.113.8"}, "", "192.0.2.50:1000", "203.0.113.8"},
		{"garbage hop discards left side", []string{"1.1.1.1, junk, 10.0.0.3"}, "", "10.0.0.2:1000", "10.0.0.3"},
		{"real ip from trusted peer", nil, "198.51.100.4", "10.0.0.2:1000", "198.51.100.4"},
		{"invalid real ip falls back", nil, "nope", "10.0.0.2:1000", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				r.Header.Add("X-Forwarded-For", v)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, resolver.ClientIP(r))
		})
	}
}

func TestNewClientIPResolver_RejectsInvalid(t *testing.T) {
	_, err := NewClientIPResolver([]string{"10.0.0.0/33"})
	require.Error(t, err)

	_, err = NewClientIPResolver([]string{"proxy.internal"})
	require.Error(t, err)
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	resolver, err := NewClientIPResolver(nil)
	require.NoError(t, err)

	allowed := 0
	ok := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { allowed++ })
	h := RateLimit(RateLimitConfig{Requests: 2, Window: time.Minute}, resolver.ClientIP, nil)(ok)

	for i := 0; i < 50; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = "203.0.113.7:40000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		h.ServeHTTP(httptest.NewRecorder(), r)
	}
	assert.Equal(t, 2, allowed)
}

func TestRateLimit_PerKey(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := RateLimit(RateLimitConfig{Requests: 1, Window: time.Hour}, ClientIP, nil)(ok)

	send := func(ip string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = ip + ":1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1"))
	assert.Equal(t, http.StatusNoContent, send("192.0.2.2"))
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	calls := 0
	h := RateLimit(RateLimitConfig{}, nil, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls++ }))

	for i := 0; i < 50; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Equal(t, 50, calls)
}

func TestRecover(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil)) })

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Contains(t, logs.String(), "boom")
}

func TestLogging_OmitsQuery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/proxy/x?token=secret", nil))

	assert.Contains(t, logs.String(), `"status":418`)
	assert.NotContains(t, logs.String(), "secret")
}
