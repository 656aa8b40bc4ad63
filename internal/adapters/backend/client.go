package backend

// Package backend provides the signed HTTP adapter for the backend auth endpoints.

import (
	"bytes"
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
	"github.com/tradeboard/gateway/internal/signing"
)

// maxReplyBytes bounds backend auth replies held in memory.
const maxReplyBytes = 1 << 20

// Client implements ports.BackendAuth over HTTP. Every request is signed with the static secret.
type Client struct {
	baseURL    string
	secret     string
	signer     *signing.Signer
	httpClient ports.HTTPDoer
	logger     *slog.Logger
}

// ClientConfig holds configuration for the backend client.
type ClientConfig struct {
	// BaseURL is the normalized backend base, e.g. https://api.example.com/api.
	BaseURL string
	// Secret is the static HMAC secret shared with the backend.
	Secret     string
	Signer     *signing.Signer
	HTTPClient ports.HTTPDoer // Optional, defaults to a client with a 15s timeout
	Logger     *slog.Logger
}

var _ ports.BackendAuth = (*Client)(nil)

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse backend base URL: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		secret:     cfg.Secret,
		signer:     cfg.Signer,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.signer == nil {
		c.signer = signing.NewSigner(signing.SignerOptions{})
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "backend_client")
	return c, nil
}

// Login posts credentials to /auth/login.
func (c *Client) Login(ctx context.Context, in ports.LoginRequest) (ports.BackendReply, error) {
	return c.post(ctx, "/auth/login", in, in.DeviceID)
}

// Register posts a signup to /auth/register.
func (c *Client) Register(ctx context.Context, in ports.RegisterRequest) (ports.BackendReply, error) {
	return c.post(ctx, "/auth/register", in, in.DeviceID)
}

// Refresh exchanges a refresh token at /auth/refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (ports.BackendReply, error) {
	payload := struct {
		RefreshToken string `json:"refresh_token"`
	}{RefreshToken: refreshToken}
	return c.post(ctx, "/auth/refresh", payload, "")
}

// Logout revokes a session at /auth/logout. Non-2xx answers are reported as upstream errors.
func (c *Client) Logout(ctx context.Context, in ports.LogoutRequest) error {
	reply, err := c.post(ctx, "/auth/logout", in, in.DeviceID)
	if err != nil {
		return err
	}
	if !reply.OK() {
		return apperrors.Upstream(reply.Status, "backend logout rejected")
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, deviceID string) (ports.BackendReply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ports.BackendReply{}, fmt.Errorf("marshal %s payload: %w", path, err)
	}

	target := c.baseURL + path
	u, err := url.Parse(target)
	if err != nil {
		return ports.BackendReply{}, fmt.Errorf("parse target: %w", err)
	}

	env, err := c.signer.Envelope(signing.EnvelopeInput{
		Method: http.MethodPost,
		URI:    u.RequestURI(),
		Body:   string(body),
		Secret: c.secret,
	})
	if err != nil {
		return ports.BackendReply{}, apperrors.Configuration(err)
	}
	if env.WeakNonce {
		c.logger.WarnContext(ctx, "signing with fallback nonce", "path", path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return ports.BackendReply{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if deviceID != "" {
		req.Header.Set(signing.HeaderDeviceID, deviceID)
	}
	env.Apply(req.Header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.BackendReply{}, apperrors.Network(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return ports.BackendReply{}, apperrors.Network(fmt.Errorf("read %s reply: %w", path, err))
	}

	return ports.BackendReply{Status: resp.StatusCode, Body: data}, nil
}
