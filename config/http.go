package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// RoutePrefix mounts the auth and proxy routes.
	RoutePrefix string `env:"HTTP_ROUTE_PREFIX" envDefault:"/api"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are honoured. Empty means the connection peer is the client.
	TrustedProxies []string `env:"HTTP_TRUSTED_PROXIES" envSeparator:","`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT"    envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.RoutePrefix = strings.TrimSpace(h.RoutePrefix)
	if h.RoutePrefix == "" {
		h.RoutePrefix = "/api"
	}
	if !strings.HasPrefix(h.RoutePrefix, "/") {
		h.RoutePrefix = "/" + h.RoutePrefix
	}
	if len(h.RoutePrefix) > 1 {
		h.RoutePrefix = strings.TrimSuffix(h.RoutePrefix, "/")
	}
	h.CookieDomain = strings.TrimSpace(h.CookieDomain)
	proxies := h.TrustedProxies[:0]
	for _, p := range h.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	h.TrustedProxies = proxies
	if h.ReadHeaderTimeout <= 0 {
		h.ReadHeaderTimeout = 10 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 15 * time.Second
	}
}

// Validate checks that every trusted proxy parses as an address or CIDR.
func (h *HTTPConfig) Validate() error {
	for _, p := range h.TrustedProxies {
		if strings.Contains(p, "/") {
			if _, err := netip.ParsePrefix(p); err != nil {
				return fmt.Errorf("HTTP_TRUSTED_PROXIES: %w", err)
			}
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("HTTP_TRUSTED_PROXIES: %w", err)
		}
	}
	return nil
}
