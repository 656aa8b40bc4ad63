package httpx

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	"github.com/tradeboard/gateway/internal/service"
	"github.com/tradeboard/gateway/internal/signing"
)

var fixedNow = func() time.Time { return time.Unix(1700000000, 0) }

type seenRequest struct {
	method string
	uri    string
	header http.Header
	body   string
	hits   int
}

func newProxyRouter(t *testing.T, secret string, maxBody int64, handler http.HandlerFunc) (http.Handler, *seenRequest) {
	t.Helper()
	seen := &seenRequest{}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen.method = r.Method
		seen.uri = r.RequestURI
		seen.header = r.Header.Clone()
		seen.body = string(b)
		seen.hits++
		handler(w, r)
	}))
	t.Cleanup(backend.Close)

	proxy := service.NewProxyService(service.ProxyServiceOptions{
		Upstream: service.ProxyUpstream{BaseURL: backend.URL + "/api", StaticSecret: secret},
		Signer:   signing.NewSigner(signing.SignerOptions{Engine: signing.StdEngine{}, Now: fixedNow}),
	})
	return NewRouter(RouterServices{Proxy: proxy, ProxyMaxBody: maxBody}), seen
}

func TestProxyHandlers_GetPassthrough(t *testing.T) {
	router, seen := newProxyRouter(t, "static", 0, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-Id", "abc")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"positions":[]}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/proxy/v1/positions?mode=TESTNET&sort=desc", nil)
	req.Header.Set("Authorization", "Bearer A1")
	req.Header.Set("X-Signature", "spoofed")
	req.AddCookie(&http.Cookie{Name: "theme", Value: "dark"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"positions":[]}`, rec.Body.String())
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))

	assert.Equal(t, http.MethodGet, seen.method)
	assert.Equal(t, "/api/v1/positions?mode=TESTNET&sort=desc", seen.uri)
	assert.Equal(t, "Bearer A1", seen.header.Get("Authorization"))
	assert.Equal(t, "application/json", seen.header.Get("Accept"))
	assert.Equal(t, "theme=dark", seen.header.Get("Cookie"))

	nonce := seen.header.Get(signing.HeaderNonce)
	require.NotEmpty(t, nonce)
	assert.Equal(t, "1700000000", seen.header.Get(signing.HeaderTimestamp))
	assert.Equal(t, signing.Sign("", nonce, "1700000000", "static"), seen.header.Get(signing.HeaderSignature))
}

func TestProxyHandlers_PostUsesDynamicSecret(t *testing.T) {
	router, seen := newProxyRouter(t, "static", 0, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	body := `{"symbol":"BTC","qty":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/proxy/v1/orders", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: domainauth.DynamicHMACSecretCookie, Value: "dyn"})
	req.AddCookie(&http.Cookie{Name: domainauth.DeviceIDCookie, Value: "dev-1"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, body, seen.body)
	assert.Equal(t, "dev-1", seen.header.Get(signing.HeaderDeviceID))
	nonce := seen.header.Get(signing.HeaderNonce)
	assert.Equal(t, signing.Sign(body, nonce, "1700000000", "dyn"), seen.header.Get(signing.HeaderSignature))
}

func TestProxyHandlers_MethodNotAllowed(t *testing.T) {
	router, seen := newProxyRouter(t, "static", 0, func(w http.ResponseWriter, _ *http.Request) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/proxy/v1/orders", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
	assert.Equal(t, "GET, POST, PUT, PATCH, DELETE", rec.Header().Get("Allow"))
	assert.Zero(t, seen.hits)
}

func TestProxyHandlers_MissingSecretFailsClosed(t *testing.T) {
	router, seen := newProxyRouter(t, "", 0, func(w http.ResponseWriter, _ *http.Request) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/v1/positions", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server configuration error"}`, rec.Body.String())
	assert.Zero(t, seen.hits)
}

func TestProxyHandlers_BodyTooLarge(t *testing.T) {
	router, seen := newProxyRouter(t, "static", 8, func(w http.ResponseWriter, _ *http.Request) {})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/proxy/v1/orders/1", strings.NewReader(`{"qty":12345}`)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, seen.hits)
}

func TestProxyHandlers_BackendDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	base := backend.URL
	backend.Close()

	proxy := service.NewProxyService(service.ProxyServiceOptions{
		Upstream: service.ProxyUpstream{BaseURL: base + "/api", StaticSecret: "static"},
	})
	router := NewRouter(RouterServices{Proxy: proxy})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proxy/v1/positions", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Backend unavailable"}`, rec.Body.String())
}

func TestProxyHandlers_RelaysErrorStatus(t *testing.T) {
	router, _ := newProxyRouter(t, "static", 0, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"message":"Subscription required"}`))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/proxy/v1/orders/9", nil))

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, `{"message":"Subscription required"}`, rec.Body.String())
}

func TestProxyHandlers_CustomPrefix(t *testing.T) {
	seen := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen++
		assert.Equal(t, "/api/v1/a%2Fb", r.URL.EscapedPath())
	}))
	t.Cleanup(backend.Close)

	proxy := service.NewProxyService(service.ProxyServiceOptions{
		Upstream: service.ProxyUpstream{BaseURL: backend.URL + "/api", StaticSecret: "static"},
	})
	router := NewRouter(RouterServices{Proxy: proxy, Prefix: "bff/"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bff/proxy/v1/a%2Fb", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, seen)
}
