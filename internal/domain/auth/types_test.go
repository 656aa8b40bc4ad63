package auth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenResponse_Valid(t *testing.T) {
	tests := []struct {
		name string
		tok  TokenResponse
		want bool
	}{
		{"usable", TokenResponse{AccessToken: "a1", ExpiresIn: 900}, true},
		{"empty token", TokenResponse{ExpiresIn: 900}, false},
		{"zero expiry", TokenResponse{AccessToken: "a1"}, false},
		{"negative expiry", TokenResponse{AccessToken: "a1", ExpiresIn: -5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tok.Valid())
		})
	}
}

func TestTokenResponse_PublicDropsServerFields(t *testing.T) {
	tok := TokenResponse{
		AccessToken:       "a1",
		RefreshToken:      "r1",
		TokenType:         "bearer",
		ExpiresIn:         900,
		DynamicHMACSecret: "dyn",
	}

	pub := tok.Public()
	assert.Equal(t, PublicToken{AccessToken: "a1", TokenType: "bearer", ExpiresIn: 900}, pub)

	raw, err := json.Marshal(pub)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "refresh_token")
	assert.NotContains(t, string(raw), "dynamic_hmac_secret")
	assert.NotContains(t, string(raw), "r1")
	assert.NotContains(t, string(raw), "dyn")
}

func TestAccessToken_IsZero(t *testing.T) {
	assert.True(t, AccessToken{}.IsZero())
	assert.True(t, AccessToken{ExpiresAt: time.Now()}.IsZero())
	assert.False(t, AccessToken{Value: "a1"}.IsZero())
}
