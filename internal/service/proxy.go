package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/tradeboard/gateway/internal/errors"
	"github.com/tradeboard/gateway/internal/observability/metrics"
	"github.com/tradeboard/gateway/internal/observability/statsd"
	"github.com/tradeboard/gateway/internal/ports"
	"github.com/tradeboard/gateway/internal/signing"
)

// AllowedProxyMethods are the methods the proxy forwards.
var AllowedProxyMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// hopHeaders are connection-level headers that never cross the proxy in either direction.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyUpstream describes the backend the proxy forwards to.
type ProxyUpstream struct {
	// BaseURL is the normalized backend base, e.g. https://api.example.com/api.
	BaseURL string
	// StaticSecret signs requests when the browser holds no dynamic secret.
	StaticSecret string
	// HTTPClient must not follow redirects. Defaults to such a client with a 30s timeout.
	HTTPClient ports.HTTPDoer
}

// ProxyServiceOptions groups dependencies for ProxyService.
type ProxyServiceOptions struct {
	Upstream  ProxyUpstream
	Signer    *signing.Signer
	Telemetry Telemetry
}

// ProxyService signs and forwards browser requests to the backend.
type ProxyService struct {
	baseURL      string
	staticSecret string
	client       ports.HTTPDoer
	signer       *signing.Signer
	logger       *slog.Logger
	metrics      statsd.Sink
	now          func() time.Time
}

// NewProxyService constructs a new ProxyService.
func NewProxyService(opts ProxyServiceOptions) *ProxyService {
	if opts.Upstream.BaseURL == "" {
		panic("proxy upstream base URL is required")
	}
	s := &ProxyService{
		baseURL:      strings.TrimSuffix(opts.Upstream.BaseURL, "/"),
		staticSecret: opts.Upstream.StaticSecret,
		client:       opts.Upstream.HTTPClient,
		signer:       opts.Signer,
		logger:       opts.Telemetry.Logger,
		metrics:      opts.Telemetry.Metrics,
		now:          time.Now,
	}
	if s.client == nil {
		s.client = &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if s.signer == nil {
		s.signer = signing.NewSigner(signing.SignerOptions{})
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "proxy_service")
	if s.metrics == nil {
		s.metrics = statsd.Discard{}
	}
	return s
}

// ProxyRequest is one inbound browser request to forward.
type ProxyRequest struct {
	Method string
	// Path is the escaped path below the proxy mount, without a leading slash.
	Path string
	// RawQuery is forwarded byte-for-byte.
	RawQuery string
	Header   http.Header
	Cookies  []*http.Cookie
	Body     []byte
	// DynamicSecret, when set, supersedes the static secret.
	DynamicSecret string
	DeviceID      string
}

// ProxyResponse is the backend answer relayed to the browser.
type ProxyResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsAllowedProxyMethod reports whether the proxy forwards method.
func IsAllowedProxyMethod(method string) bool {
	for _, m := range AllowedProxyMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Forward signs in and relays it to the backend. Transport failures become Network errors;
// a missing secret is a Configuration error and nothing is sent.
func (s *ProxyService) Forward(ctx context.Context, in ProxyRequest) (*ProxyResponse, error) {
	start := s.now()
	resp, err := s.forward(ctx, in)

	status := 0
	if resp != nil {
		status = resp.Status
	} else if err != nil {
		status = apperrors.HTTPStatus(err)
	}
	metrics.EmitProxy(s.metrics, metrics.ProxyMetric{
		Method:   in.Method,
		Status:   status,
		Duration: s.now().Sub(start),
		Err:      err,
	})
	return resp, err
}

func (s *ProxyService) forward(ctx context.Context, in ProxyRequest) (*ProxyResponse, error) {
	if !IsAllowedProxyMethod(in.Method) {
		return nil, apperrors.MethodNotAllowed()
	}

	secret := in.DynamicSecret
	if secret == "" {
		secret = s.staticSecret
	}

	target := s.targetURL(in.Path, in.RawQuery)
	u, err := url.Parse(target)
	if err != nil {
		return nil, apperrors.Validationf("invalid proxy path")
	}

	var body []byte
	if in.Method != http.MethodGet {
		body = in.Body
	}

	env, err := s.signer.Envelope(signing.EnvelopeInput{
		Method: in.Method,
		URI:    u.RequestURI(),
		Body:   string(body),
		Secret: secret,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "proxy request not signed", "error", err, "path", in.Path)
		return nil, apperrors.Configuration(err)
	}
	if env.WeakNonce {
		s.logger.WarnContext(ctx, "signing with fallback nonce", "path", in.Path)
	}

	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, in.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	req.Header = outboundHeaders(in.Header, in.Cookies)
	env.Apply(req.Header)
	if in.DeviceID != "" {
		req.Header.Set(signing.HeaderDeviceID, in.DeviceID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.ErrorContext(ctx, "backend unavailable", "error", err, "method", in.Method, "path", in.Path)
		return nil, apperrors.Network(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.logger.ErrorContext(ctx, "backend response truncated", "error", err, "path", in.Path)
		return nil, apperrors.Network(fmt.Errorf("read proxy response: %w", err))
	}

	return &ProxyResponse{
		Status: resp.StatusCode,
		Header: inboundHeaders(resp.Header),
		Body:   data,
	}, nil
}

func (s *ProxyService) targetURL(path, rawQuery string) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	if p := strings.TrimPrefix(path, "/"); p != "" {
		b.WriteByte('/')
		b.WriteString(p)
	}
	if rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	return b.String()
}

// outboundHeaders copies browser headers minus transport and signing headers and rebuilds Cookie.
func outboundHeaders(src http.Header, cookies []*http.Cookie) http.Header {
	h := src.Clone()
	if h == nil {
		h = http.Header{}
	}
	stripHopHeaders(h)
	for _, name := range []string{
		"Host", "Content-Length", "Accept-Encoding", "Cookie",
		signing.HeaderNonce, signing.HeaderTimestamp, signing.HeaderSignature, signing.HeaderDeviceID,
	} {
		h.Del(name)
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", "application/json")
	}

	if len(cookies) > 0 {
		parts := make([]string, 0, len(cookies))
		for _, c := range cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		h.Set("Cookie", strings.Join(parts, "; "))
	}
	return h
}

// inboundHeaders copies backend headers minus those the local server recomputes.
func inboundHeaders(src http.Header) http.Header {
	h := src.Clone()
	if h == nil {
		return http.Header{}
	}
	stripHopHeaders(h)
	h.Del("Content-Encoding")
	h.Del("Content-Length")
	return h
}

func stripHopHeaders(h http.Header) {
	// Headers named in Connection are hop-by-hop too.
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
