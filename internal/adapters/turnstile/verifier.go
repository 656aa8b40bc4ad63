// Package turnstile verifies Cloudflare Turnstile challenge tokens server side.
package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/tradeboard/gateway/internal/errors"
	"github.com/tradeboard/gateway/internal/ports"
)

// DefaultVerifyURL is Cloudflare's siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// FailedMessage is the client-facing message for a rejected challenge.
const FailedMessage = "Verification failed. Please try again."

// Verifier implements ports.ChallengeVerifier against the siteverify API.
type Verifier struct {
	secret     string
	verifyURL  string
	httpClient ports.HTTPDoer
	logger     *slog.Logger
}

// VerifierOptions groups dependencies for Verifier.
type VerifierOptions struct {
	Secret     string
	VerifyURL  string
	HTTPClient ports.HTTPDoer
	Logger     *slog.Logger
}

var _ ports.ChallengeVerifier = (*Verifier)(nil)

// NewVerifier constructs a Verifier. The secret is required.
func NewVerifier(opts VerifierOptions) (*Verifier, error) {
	if opts.Secret == "" {
		return nil, errors.New("turnstile secret is required")
	}
	v := &Verifier{
		secret:     opts.Secret,
		verifyURL:  opts.VerifyURL,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}
	if v.verifyURL == "" {
		v.verifyURL = DefaultVerifyURL
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v, nil
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify checks token with Cloudflare. A rejected or empty token is a validation error.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.ValidationField("turnstile_token", FailedMessage)
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return apperrors.Network(err)
	}
	defer resp.Body.Close()

	var out siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return apperrors.Network(fmt.Errorf("decode siteverify response: %w", err))
	}
	if !out.Success {
		v.logger.InfoContext(ctx, "turnstile challenge rejected", "error_codes", out.ErrorCodes)
		return apperrors.ValidationField("turnstile_token", FailedMessage)
	}
	return nil
}
