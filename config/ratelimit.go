package config

import "time"

// RateLimitConfig throttles the auth routes per client IP.
// Requests=0 disables throttling.
type RateLimitConfig struct {
	AuthRequests int           `env:"RATELIMIT_AUTH_REQUESTS" envDefault:"10"`
	AuthWindow   time.Duration `env:"RATELIMIT_AUTH_WINDOW"   envDefault:"1m"`
	AuthBurst    int           `env:"RATELIMIT_AUTH_BURST"    envDefault:"10"`
}

// Sanitize applies guardrails to rate limit values.
func (c *RateLimitConfig) Sanitize() {
	if c.AuthRequests < 0 {
		c.AuthRequests = 0
	}
	if c.AuthWindow <= 0 {
		c.AuthWindow = time.Minute
	}
	if c.AuthBurst <= 0 {
		c.AuthBurst = c.AuthRequests
	}
}
