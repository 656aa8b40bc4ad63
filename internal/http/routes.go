package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/tradeboard/gateway/internal/service"
)

// DefaultRoutePrefix is where the BFF routes are mounted when no prefix is configured.
const DefaultRoutePrefix = "/api"

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth  *service.AuthService
	Proxy *service.ProxyService
	// Prefix mounts the auth and proxy routes, e.g. "/api".
	Prefix           string
	Cookies          CookiePolicy
	TurnstileSiteKey string
	ProxyMaxBody     int64
	// AuthRateLimit throttles the auth routes per client IP. Zero disables it.
	AuthRateLimit RateLimitConfig
	// ClientIP resolves the address used for rate limiting and upstream RemoteIP.
	// Defaults to the connection peer.
	ClientIP KeyFunc
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter creates and configures the gateway's HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := normalizePrefix(services.Prefix)
	clientIP := services.ClientIP
	if clientIP == nil {
		clientIP = ClientIP
	}

	if services.Auth != nil {
		authHandlers := &AuthHandlers{
			Svc:              services.Auth,
			Cookies:          services.Cookies,
			TurnstileSiteKey: services.TurnstileSiteKey,
			ClientIP:         clientIP,
			Logger:           logger,
		}
		limit := RateLimit(services.AuthRateLimit, clientIP, logger)
		registerAuthRoutes(mux, routeGroup{prefix: prefix, limit: limit}, authHandlers)
	}
	if services.Proxy != nil {
		mount := prefix + "/proxy/"
		mux.Handle(mount, &ProxyHandlers{
			Svc:          services.Proxy,
			Mount:        mount,
			MaxBodyBytes: services.ProxyMaxBody,
			Logger:       logger,
		})
	}

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	return Chain(mux, Recover(logger), Logging(logger))
}

// routeGroup carries the mount prefix and the middleware shared by a set of routes.
type routeGroup struct {
	prefix string
	limit  Middleware
}

func registerAuthRoutes(mux *http.ServeMux, g routeGroup, h *AuthHandlers) {
	mux.Handle("POST "+g.prefix+"/auth/login", g.limit(http.HandlerFunc(h.Login)))
	mux.Handle("POST "+g.prefix+"/auth/register", g.limit(http.HandlerFunc(h.Register)))
	mux.Handle("POST "+g.prefix+"/auth/refresh", g.limit(http.HandlerFunc(h.Refresh)))
	mux.Handle("POST "+g.prefix+"/auth/logout", http.HandlerFunc(h.Logout))
	mux.Handle("GET "+g.prefix+"/auth/config", http.HandlerFunc(h.Config))
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultRoutePrefix
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimSuffix(p, "/")
}
