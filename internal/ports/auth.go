package ports

// Package ports defines interfaces (hexagonal ports) for gateway auth behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"net/http"
	"time"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
)

// BackendReply is the raw outcome of a signed backend call.
// Non-2xx statuses are not errors at this layer; the service decides what they mean.
type BackendReply struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r BackendReply) OK() bool { return r.Status >= 200 && r.Status < 300 }

// LoginRequest is the payload sent to the backend login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty"`
}

// RegisterRequest is the payload sent to the backend register endpoint.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	SaveUser *bool  `json:"save_user,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// LogoutRequest is the payload sent to the backend logout endpoint.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
}

// BackendAuth performs HMAC-signed auth calls against the backend API.
// A returned error means the backend could not be reached or the request could not be signed.
type BackendAuth interface {
	Login(ctx context.Context, in LoginRequest) (BackendReply, error)
	Register(ctx context.Context, in RegisterRequest) (BackendReply, error)
	Refresh(ctx context.Context, refreshToken string) (BackendReply, error)
	Logout(ctx context.Context, in LogoutRequest) error
}

// ChallengeVerifier validates a bot-challenge token issued to the browser.
type ChallengeVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// RefreshCache holds rotated token pairs briefly so racing refreshes that
// present the same one-time refresh token receive the same answer.
type RefreshCache interface {
	Get(ctx context.Context, key string) (domainauth.TokenResponse, bool, error)
	Put(ctx context.Context, key string, tok domainauth.TokenResponse, ttl time.Duration) error
}

// HTTPDoer is the subset of *http.Client used by outbound adapters.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
