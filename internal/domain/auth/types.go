package auth

// Package auth contains domain-level types for the gateway's credential lifecycle.
// It is pure and free of framework/adapter concerns.

import "time"

// Cookie names shared between the BFF and the backend.
const (
	RefreshTokenCookie      = "refresh_token"
	DynamicHMACSecretCookie = "dynamic_hmac_secret"
	DeviceIDCookie          = "device_id"
)

// SessionState is the UI-facing authentication state.
type SessionState string

const (
	StateLoading         SessionState = "loading"
	StateAuthenticated   SessionState = "authenticated"
	StateUnauthenticated SessionState = "unauthenticated"
)

// AccessToken is a short-lived bearer credential held only in process memory.
// ExpiresAt already has the clock skew applied.
type AccessToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsZero reports whether no token is held.
func (t AccessToken) IsZero() bool { return t.Value == "" }

// TokenResponse is the token shape returned by the backend for login, register and refresh.
type TokenResponse struct {
	AccessToken       string `json:"access_token"`
	RefreshToken      string `json:"refresh_token,omitempty"`
	TokenType         string `json:"token_type,omitempty"`
	ExpiresIn         int64  `json:"expires_in"`
	DynamicHMACSecret string `json:"dynamic_hmac_secret,omitempty"`
}

// Valid reports whether the response carries a usable access token.
func (r TokenResponse) Valid() bool {
	return r.AccessToken != "" && r.ExpiresIn > 0
}

// PublicToken is the subset of TokenResponse that may be handed to the browser.
// Refresh tokens and signing secrets travel in HttpOnly cookies only.
type PublicToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Public strips the server-only fields.
func (r TokenResponse) Public() PublicToken {
	return PublicToken{
		AccessToken: r.AccessToken,
		TokenType:   r.TokenType,
		ExpiresIn:   r.ExpiresIn,
	}
}

// SubscriptionNotice is raised when the backend answers 402.
type SubscriptionNotice struct {
	Message     string `json:"message,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Credentials are the login inputs accepted from the browser.
type Credentials struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	TurnstileToken string `json:"turnstile_token,omitempty"`
}

// Registration are the signup inputs accepted from the browser.
type Registration struct {
	Username       string `json:"username"`
	Email          string `json:"email,omitempty"`
	Password       string `json:"password"`
	SaveUser       *bool  `json:"save_user,omitempty"`
	TurnstileToken string `json:"turnstile_token,omitempty"`
}
