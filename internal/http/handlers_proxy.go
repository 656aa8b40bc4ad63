package httpx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	apperrors "github.com/tradeboard/gateway/internal/errors"
	"github.com/tradeboard/gateway/internal/service"
)

// DefaultProxyMaxBodyBytes bounds proxied request bodies when no limit is configured.
const DefaultProxyMaxBodyBytes int64 = 10 << 20

// ProxyHandlers serves {prefix}/proxy/{path...}.
type ProxyHandlers struct {
	Svc *service.ProxyService
	// Mount is the path prefix stripped before forwarding, e.g. "/api/proxy/".
	Mount        string
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func (h *ProxyHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *ProxyHandlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !service.IsAllowedProxyMethod(r.Method) {
		w.Header().Set("Allow", strings.Join(service.AllowedProxyMethods, ", "))
		WriteError(w, apperrors.MethodNotAllowed())
		return
	}

	body, err := h.readBody(w, r)
	if err != nil {
		WriteError(w, err)
		return
	}

	resp, err := h.Svc.Forward(r.Context(), service.ProxyRequest{
		Method:        r.Method,
		Path:          strings.TrimPrefix(r.URL.EscapedPath(), h.Mount),
		RawQuery:      r.URL.RawQuery,
		Header:        r.Header,
		Cookies:       r.Cookies(),
		Body:          body,
		DynamicSecret: cookieValue(r, domainauth.DynamicHMACSecretCookie),
		DeviceID:      cookieValue(r, domainauth.DeviceIDCookie),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	dst := w.Header()
	for k, vs := range resp.Header {
		dst[k] = append([]string(nil), vs...)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) == 0 {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		h.logger().DebugContext(r.Context(), "proxy response write failed", "error", err)
	}
}

func (h *ProxyHandlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Method == http.MethodGet {
		return nil, nil
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultProxyMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.TooLarge(tooLarge.Limit)
		}
		return nil, apperrors.Validation("Unable to read request body")
	}
	return body, nil
}
