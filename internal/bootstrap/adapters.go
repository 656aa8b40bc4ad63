package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradeboard/gateway/config"
	"github.com/tradeboard/gateway/internal/adapters/backend"
	redisadapter "github.com/tradeboard/gateway/internal/adapters/redis"
	"github.com/tradeboard/gateway/internal/adapters/turnstile"
	"github.com/tradeboard/gateway/internal/ports"
	"github.com/tradeboard/gateway/internal/signing"
)

// newUpstreamClient builds the client used for signed backend calls.
// Redirects are returned to the caller instead of followed.
func newUpstreamClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func newBackendClient(cfg config.GatewayConfig, signer *signing.Signer, logger *slog.Logger) (*backend.Client, error) {
	client, err := backend.NewClient(backend.ClientConfig{
		BaseURL:    cfg.BackendURL,
		Secret:     cfg.HMACSecret,
		Signer:     signer,
		HTTPClient: newUpstreamClient(cfg.BackendTimeout),
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}
	return client, nil
}

// newChallengeVerifier returns nil when no Turnstile secret is configured.
//
//nolint:ireturn // nil interface means "no challenge".
func newChallengeVerifier(cfg config.TurnstileConfig, logger *slog.Logger) (ports.ChallengeVerifier, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	v, err := turnstile.NewVerifier(turnstile.VerifierOptions{
		Secret:    cfg.SecretKey,
		VerifyURL: cfg.VerifyURL,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create turnstile verifier: %w", err)
	}
	return v, nil
}

// RefreshCacheConfig contains dependencies for the refresh grace cache.
type RefreshCacheConfig struct {
	RedisClient redis.UniversalClient
	Redis       config.RedisConfig
	EncryptKey  string
	Logger      *slog.Logger
}

// BuildRefreshCache returns nil when Redis or the encryption key is missing.
// AuthService then falls back to in-process single flight only.
//
//nolint:ireturn // nil interface means "no cache".
func BuildRefreshCache(cfg RefreshCacheConfig) ports.RefreshCache {
	if cfg.RedisClient == nil {
		if cfg.Logger != nil {
			cfg.Logger.Info("refresh grace cache disabled: redis not configured")
		}
		return nil
	}

	sealer := CreateSealer(cfg.EncryptKey, cfg.Logger)
	if sealer == nil {
		return nil
	}

	cache, err := redisadapter.NewRefreshCache(redisadapter.RefreshCacheOptions{
		Client: cfg.RedisClient,
		Sealer: sealer,
		Prefix: cfg.Redis.KeyPrefix,
	})
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Warn("refresh grace cache disabled", "error", err)
		}
		return nil
	}
	return cache
}
