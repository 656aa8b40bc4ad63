package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/tradeboard/gateway/internal/signing"
)

const (
	defaultRefreshMaxAge = 14 * 24 * 60 * 60
	defaultProxyMaxBody  = 10 << 20
	defaultTurnstileURL  = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
)

// GatewayConfig contains the backend, signing and session cookie settings of the BFF.
type GatewayConfig struct {
	// BackendURL is the backend API base. Normalized by Sanitize to https://host/api form.
	BackendURL string `env:"API_BASE_URL"`
	// PublicBackendURL and ProdBackendURL are fallbacks kept for existing deployments.
	PublicBackendURL string `env:"NEXT_PUBLIC_API_BASE_URL"`
	ProdBackendURL   string `env:"API_PROD_URL"`

	// HMACSecret signs requests when the browser holds no dynamic secret. Never exposed to clients.
	HMACSecret    string       `env:"HMAC_SECRET"`
	CanonicalForm signing.Form `env:"HMAC_CANONICAL_FORM" envDefault:"body_nonce_timestamp"`

	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`
	// RefreshMaxAge is the refresh cookie lifetime in seconds.
	RefreshMaxAge int `env:"REFRESH_TOKEN_MAX_AGE_SECONDS" envDefault:"1209600"`

	// RefreshRotation expects a new refresh token on every refresh and warns when none arrives.
	RefreshRotation bool          `env:"REFRESH_ROTATION"  envDefault:"true"`
	RefreshGraceTTL time.Duration `env:"REFRESH_GRACE_TTL" envDefault:"10s"`
	// RefreshCacheKey seals cached refresh answers in Redis. Empty disables the cache.
	RefreshCacheKey string `env:"REFRESH_CACHE_ENCRYPTION_KEY"`

	BackendTimeout       time.Duration `env:"BACKEND_TIMEOUT"        envDefault:"30s"`
	BackendLogoutEnabled bool          `env:"BACKEND_LOGOUT_ENABLED" envDefault:"false"`

	ProxyMaxBodyBytes int64 `env:"PROXY_MAX_BODY_BYTES" envDefault:"10485760"`

	Turnstile TurnstileConfig
}

// TurnstileConfig controls the bot challenge on login and register.
type TurnstileConfig struct {
	SiteKey   string `env:"TURNSTILE_SITE_KEY"`
	SecretKey string `env:"TURNSTILE_SECRET_KEY"`
	VerifyURL string `env:"TURNSTILE_VERIFY_URL" envDefault:"https://challenges.cloudflare.com/turnstile/v0/siteverify"`
}

// Enabled reports whether tokens are verified server side.
func (c TurnstileConfig) Enabled() bool { return c.SecretKey != "" }

// Sanitize normalises the backend URL and clamps numeric settings.
func (c *GatewayConfig) Sanitize() {
	raw := strings.TrimSpace(c.BackendURL)
	if raw == "" {
		raw = strings.TrimSpace(c.PublicBackendURL)
	}
	if raw == "" {
		raw = strings.TrimSpace(c.ProdBackendURL)
	}
	c.BackendURL = NormalizeBackendURL(raw)

	if strings.EqualFold(os.Getenv("NODE_ENV"), "production") {
		c.CookieSecure = true
	}
	if c.RefreshMaxAge <= 0 {
		c.RefreshMaxAge = defaultRefreshMaxAge
	}
	if c.RefreshGraceTTL <= 0 {
		c.RefreshGraceTTL = 10 * time.Second
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = 30 * time.Second
	}
	if c.ProxyMaxBodyBytes <= 0 {
		c.ProxyMaxBodyBytes = defaultProxyMaxBody
	}
	c.Turnstile.SecretKey = strings.TrimSpace(c.Turnstile.SecretKey)
	if c.Turnstile.VerifyURL = strings.TrimSpace(c.Turnstile.VerifyURL); c.Turnstile.VerifyURL == "" {
		c.Turnstile.VerifyURL = defaultTurnstileURL
	}
}

// Validate reports settings the gateway cannot start without.
// A missing HMAC secret is allowed: requests fail closed until one is configured.
func (c *GatewayConfig) Validate() error {
	if c.BackendURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	return nil
}

// NormalizeBackendURL adds https:// when no http scheme is present, trims a trailing slash
// and appends /api unless the URL already ends with it.
func NormalizeBackendURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	raw = strings.TrimSuffix(raw, "/")
	if !strings.HasSuffix(raw, "/api") {
		raw += "/api"
	}
	return raw
}
