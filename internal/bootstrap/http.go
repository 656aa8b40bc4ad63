package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tradeboard/gateway/config"
	httpx "github.com/tradeboard/gateway/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives the listen error, if any. Optional.
	ErrCh chan<- error
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := BuildHTTPHandler(appCfg, cfg.Services, logger)
	return startServer(serverParams{
		logger:            logger,
		handler:           handler,
		addr:              appCfg.HTTP.Addr,
		readHeaderTimeout: appCfg.HTTP.ReadHeaderTimeout,
		errCh:             cfg.ErrCh,
	})
}

// BuildHTTPHandler assembles the router from config and services.
func BuildHTTPHandler(appCfg *config.AppConfig, svcs ServiceContainer, logger *slog.Logger) http.Handler {
	resolver, err := httpx.NewClientIPResolver(appCfg.HTTP.TrustedProxies)
	if err != nil {
		// LoadConfig validates the list, so only hand-built configs get here.
		logger.Warn("ignoring trusted proxies", "error", err)
		resolver, _ = httpx.NewClientIPResolver(nil)
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:   svcs.Auth,
		Proxy:  svcs.Proxy,
		Prefix: appCfg.HTTP.RoutePrefix,
		Cookies: httpx.CookiePolicy{
			Domain: appCfg.HTTP.CookieDomain,
			Secure: appCfg.Gateway.CookieSecure,
			MaxAge: appCfg.Gateway.RefreshMaxAge,
		},
		TurnstileSiteKey: appCfg.Gateway.Turnstile.SiteKey,
		ProxyMaxBody:     appCfg.Gateway.ProxyMaxBodyBytes,
		AuthRateLimit: httpx.RateLimitConfig{
			Requests: appCfg.RateLimit.AuthRequests,
			Window:   appCfg.RateLimit.AuthWindow,
			Burst:    appCfg.RateLimit.AuthBurst,
		},
		ClientIP: resolver.ClientIP,
		Metrics: svcs.Observability.MetricsHandler(),
		Logger:  logger,
	})
}

type serverParams struct {
	logger            *slog.Logger
	handler           http.Handler
	addr              string
	readHeaderTimeout time.Duration
	errCh             chan<- error
}

func startServer(p serverParams) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := p.addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           p.handler,
		ReadHeaderTimeout: p.readHeaderTimeout,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		p.logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("HTTP server failed", "error", err)
			if p.errCh != nil {
				select {
				case p.errCh <- err:
				default:
				}
			}
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	// Timeout bounds in-flight request draining. Defaults to 15s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
