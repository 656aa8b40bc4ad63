package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeboard/gateway/config"
	"github.com/tradeboard/gateway/internal/service"
	"github.com/tradeboard/gateway/internal/signing"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth          *service.AuthService
	Proxy         *service.ProxyService
	Signer        *signing.Signer
	Observability ObservabilityContainer
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient // Optional
	Logger      *slog.Logger
}

// NewServices wires adapters into the auth and proxy services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps missing AppConfig")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gw := deps.Config.Gateway

	if gw.HMACSecret == "" {
		logger.Warn("HMAC_SECRET is not set; signed requests will fail until it is configured")
	}

	obs := BuildObservability(logger, deps.Config.Observability)
	signer := signing.NewSigner(signing.SignerOptions{Form: gw.CanonicalForm})
	telemetry := service.Telemetry{Logger: logger, Metrics: obs.Sink}

	backendClient, err := newBackendClient(gw, signer, logger)
	if err != nil {
		obs.Close(logger)
		return ServiceContainer{}, err
	}
	verifier, err := newChallengeVerifier(gw.Turnstile, logger)
	if err != nil {
		obs.Close(logger)
		return ServiceContainer{}, err
	}
	cache := BuildRefreshCache(RefreshCacheConfig{
		RedisClient: deps.RedisClient,
		Redis:       deps.Config.Redis,
		EncryptKey:  gw.RefreshCacheKey,
		Logger:      logger,
	})

	auth := service.NewAuthService(service.AuthServiceOptions{
		Deps: service.AuthDeps{
			Backend:  backendClient,
			Verifier: verifier,
			Cache:    cache,
		},
		Config: service.AuthServiceConfig{
			CacheKeySecret: cacheKeySecret(gw),
			GraceTTL:       gw.RefreshGraceTTL,
			ExpectRotation: gw.RefreshRotation,
			BackendLogout:  gw.BackendLogoutEnabled,
		},
		Telemetry: telemetry,
	})

	proxy := service.NewProxyService(service.ProxyServiceOptions{
		Upstream: service.ProxyUpstream{
			BaseURL:      gw.BackendURL,
			StaticSecret: gw.HMACSecret,
			HTTPClient:   newUpstreamClient(gw.BackendTimeout),
		},
		Signer:    signer,
		Telemetry: telemetry,
	})

	logger.Info("gateway services initialised",
		"backend", gw.BackendURL,
		"canonical_form", string(signer.Form()),
		"turnstile", verifier != nil,
		"refresh_cache", cache != nil,
	)

	return ServiceContainer{
		Auth:          auth,
		Proxy:         proxy,
		Signer:        signer,
		Observability: obs,
	}, nil
}

// cacheKeySecret keys refresh-token hashing. The HMAC secret is preferred so every
// replica derives the same key; the cache encryption key is the fallback.
func cacheKeySecret(gw config.GatewayConfig) string {
	if gw.HMACSecret != "" {
		return gw.HMACSecret
	}
	return gw.RefreshCacheKey
}

// ServiceOrchestrationConfig contains everything needed to run the gateway.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts the HTTP server and blocks until a shutdown
// signal is received or the server fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defer cfg.Services.Observability.Close(logger)

	errCh := make(chan error, 1)
	server := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
		ErrCh:    errCh,
	})

	return waitForShutdown(shutdownConfig{
		errCh:      errCh,
		httpServer: server,
		timeout:    cfg.Config.HTTP.ShutdownTimeout,
		logger:     logger,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	errCh      <-chan error
	httpServer *http.Server
	timeout    time.Duration
	logger     *slog.Logger
}

// waitForShutdown waits for shutdown signal or server error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down gateway...")
		return ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.timeout,
			Logger:  cfg.logger,
		})
	case err := <-cfg.errCh:
		cfg.logger.Error("http server error", "error", err)
		if stopErr := ShutdownHTTPServer(ShutdownConfig{
			Context: context.Background(),
			Server:  cfg.httpServer,
			Timeout: cfg.timeout,
			Logger:  cfg.logger,
		}); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return fmt.Errorf("http server: %w", err)
	}
}
