package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"time"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	"github.com/tradeboard/gateway/internal/errors"
	"github.com/tradeboard/gateway/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.ChallengeVerifier = (*StaticVerifier)(nil)
	_ ports.RefreshCache      = (*MemoryRefreshCache)(nil)
)

// StaticVerifier accepts a fixed token, or delegates to VerifyFunc when set.
type StaticVerifier struct {
	VerifyFunc func(ctx context.Context, token, remoteIP string) error

	// AcceptToken is the only token accepted when VerifyFunc is nil.
	AcceptToken string

	mu    sync.Mutex
	calls int
}

func (v *StaticVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()

	if v.VerifyFunc != nil {
		return v.VerifyFunc(ctx, token, remoteIP)
	}
	if token == "" || token != v.AcceptToken {
		return errors.Validation("Verification failed. Please try again.")
	}
	return nil
}

// Calls returns how many times Verify ran.
func (v *StaticVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

type cacheEntry struct {
	tok       domainauth.TokenResponse
	expiresAt time.Time
}

// MemoryRefreshCache is an in-memory refresh cache for unit tests.
type MemoryRefreshCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryRefreshCache creates a new in-memory refresh cache.
func NewMemoryRefreshCache() *MemoryRefreshCache {
	return &MemoryRefreshCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (m *MemoryRefreshCache) Get(_ context.Context, key string) (domainauth.TokenResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return domainauth.TokenResponse{}, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return domainauth.TokenResponse{}, false, nil
	}
	return e.tok, true, nil
}

func (m *MemoryRefreshCache) Put(_ context.Context, key string, tok domainauth.TokenResponse, ttl time.Duration) error {
	if key == "" || ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[key] = cacheEntry{tok: tok, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryRefreshCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
