// Package credential holds the volatile access token of a client session.
package credential

import (
	"sync"
	"time"

	"github.com/tradeboard/gateway/internal/domain/auth"
)

// DefaultSkew is subtracted from the server-reported lifetime so a token is
// refreshed before the backend would reject it.
const DefaultSkew = 30 * time.Second

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a settable Clock for tests.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock returns a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

// Now returns the frozen time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Options configures a Store.
type Options struct {
	Clock Clock
	Skew  time.Duration
}

// Store keeps at most one access token in memory. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	token auth.AccessToken
	clock Clock
	skew  time.Duration
}

// NewStore constructs an empty Store. A zero Skew selects DefaultSkew; a negative Skew disables it.
func NewStore(opts Options) *Store {
	s := &Store{clock: opts.Clock, skew: opts.Skew}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.skew == 0 {
		s.skew = DefaultSkew
	}
	if s.skew < 0 {
		s.skew = 0
	}
	return s
}

// Set replaces the stored token. The expiry is now + expiresIn - skew.
func (s *Store) Set(token string, expiresIn time.Duration) {
	now := s.clock.Now()
	s.mu.Lock()
	s.token = auth.AccessToken{
		Value:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(expiresIn - s.skew),
	}
	s.mu.Unlock()
}

// Get returns the raw token regardless of expiry. Prefer Valid.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.Value, s.token.Value != ""
}

// IsExpired reports true when no token is held or the skewed expiry has passed.
func (s *Store) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiredLocked()
}

func (s *Store) expiredLocked() bool {
	return s.token.IsZero() || !s.clock.Now().Before(s.token.ExpiresAt)
}

// Valid returns the token only when it is present and not expired.
func (s *Store) Valid() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.expiredLocked() {
		return "", false
	}
	return s.token.Value, true
}

// Snapshot returns a copy of the stored token.
func (s *Store) Snapshot() auth.AccessToken {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Clear drops the stored token.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = auth.AccessToken{}
	s.mu.Unlock()
}
