package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	apperrors "github.com/tradeboard/gateway/internal/errors"
	"github.com/tradeboard/gateway/internal/observability/metrics"
	"github.com/tradeboard/gateway/internal/observability/statsd"
	"github.com/tradeboard/gateway/internal/ports"
	"github.com/tradeboard/gateway/internal/signing"
)

// DefaultRefreshGraceTTL is how long a rotated pair stays replayable for racing refreshes.
const DefaultRefreshGraceTTL = 10 * time.Second

// AuthDeps are the ports AuthService talks to. Backend is required.
type AuthDeps struct {
	Backend  ports.BackendAuth
	Verifier ports.ChallengeVerifier // Optional: bot challenge on login/register
	Cache    ports.RefreshCache      // Optional: cross-replica refresh grace cache
}

// AuthServiceConfig tunes AuthService behaviour.
type AuthServiceConfig struct {
	// CacheKeySecret keys the HMAC that turns refresh tokens into cache keys.
	CacheKeySecret string
	GraceTTL       time.Duration
	// ExpectRotation logs a warning when a refresh answer carries no new refresh token.
	ExpectRotation bool
	// BackendLogout enables the best-effort signed logout call.
	BackendLogout bool
}

// Telemetry groups the optional logging and metrics sinks.
type Telemetry struct {
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Deps      AuthDeps
	Config    AuthServiceConfig
	Telemetry Telemetry
}

// AuthService runs the BFF side of login, register, refresh and logout.
type AuthService struct {
	backend  ports.BackendAuth
	verifier ports.ChallengeVerifier
	cache    ports.RefreshCache
	cfg      AuthServiceConfig
	engine   signing.Engine
	logger   *slog.Logger
	metrics  statsd.Sink
	group    singleflight.Group
	now      func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	if opts.Deps.Backend == nil {
		panic("BackendAuth is required")
	}
	s := &AuthService{
		backend:  opts.Deps.Backend,
		verifier: opts.Deps.Verifier,
		cache:    opts.Deps.Cache,
		cfg:      opts.Config,
		engine:   signing.SelectEngine(),
		logger:   opts.Telemetry.Logger,
		metrics:  opts.Telemetry.Metrics,
		now:      time.Now,
	}
	if s.cfg.GraceTTL <= 0 {
		s.cfg.GraceTTL = DefaultRefreshGraceTTL
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "auth_service")
	if s.metrics == nil {
		s.metrics = statsd.Discard{}
	}
	return s
}

// RejectedError is a non-2xx backend answer that must be relayed to the browser as-is.
type RejectedError struct {
	Status  int
	Payload map[string]any
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected request with status %d", e.Status)
}

// Message returns the payload's error or message field.
func (e *RejectedError) Message() string {
	for _, k := range []string{"error", "message"} {
		if v, ok := e.Payload[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// IssuedSession is what a successful login or register hands to the HTTP layer.
type IssuedSession struct {
	Token domainauth.TokenResponse
	// DeviceID is the device id the backend saw. DeviceIssued is set when it was minted here.
	DeviceID     string
	DeviceIssued bool
}

// LoginInput groups parameters for Login.
type LoginInput struct {
	Credentials domainauth.Credentials
	DeviceID    string
	RemoteIP    string
}

// Login verifies the challenge, calls the backend and returns the issued tokens.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*IssuedSession, error) {
	start := s.now()
	issued, status, err := s.login(ctx, in)
	metrics.EmitLogin(s.metrics, metrics.LoginMetric{
		Operation: "login",
		Status:    status,
		Duration:  s.now().Sub(start),
		Err:       err,
	})
	return issued, err
}

func (s *AuthService) login(ctx context.Context, in LoginInput) (*IssuedSession, int, error) {
	username := strings.TrimSpace(in.Credentials.Username)
	if username == "" || in.Credentials.Password == "" {
		return nil, http.StatusBadRequest, apperrors.Validation("Username and password are required.")
	}
	if err := s.verifyChallenge(ctx, in.Credentials.TurnstileToken, in.RemoteIP); err != nil {
		return nil, apperrors.HTTPStatus(err), err
	}

	deviceID, minted := s.deviceID(in.DeviceID)
	reply, err := s.backend.Login(ctx, ports.LoginRequest{
		Username: username,
		Password: in.Credentials.Password,
		DeviceID: deviceID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "login backend call failed", "error", err)
		return nil, 0, fmt.Errorf("login: %w", err)
	}

	tok, err := s.issued(reply, "Invalid credentials")
	if err != nil {
		s.logger.InfoContext(ctx, "login rejected", "status", reply.Status)
		return nil, reply.Status, err
	}
	return &IssuedSession{Token: tok, DeviceID: deviceID, DeviceIssued: minted}, reply.Status, nil
}

// RegisterInput groups parameters for Register.
type RegisterInput struct {
	Registration domainauth.Registration
	DeviceID     string
	RemoteIP     string
}

// Register creates an account at the backend and returns the issued tokens.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*IssuedSession, error) {
	start := s.now()
	issued, status, err := s.register(ctx, in)
	metrics.EmitLogin(s.metrics, metrics.LoginMetric{
		Operation: "register",
		Status:    status,
		Duration:  s.now().Sub(start),
		Err:       err,
	})
	return issued, err
}

func (s *AuthService) register(ctx context.Context, in RegisterInput) (*IssuedSession, int, error) {
	reg := in.Registration
	username := strings.TrimSpace(reg.Username)
	if username == "" || reg.Password == "" {
		return nil, http.StatusBadRequest, apperrors.Validation("Username and password are required.")
	}
	if err := s.verifyChallenge(ctx, reg.TurnstileToken, in.RemoteIP); err != nil {
		return nil, apperrors.HTTPStatus(err), err
	}

	deviceID, minted := s.deviceID(in.DeviceID)
	reply, err := s.backend.Register(ctx, ports.RegisterRequest{
		Username: username,
		Email:    strings.TrimSpace(reg.Email),
		Password: reg.Password,
		SaveUser: reg.SaveUser,
		DeviceID: deviceID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "register backend call failed", "error", err)
		return nil, 0, fmt.Errorf("register: %w", err)
	}

	tok, err := s.issued(reply, "")
	if err != nil {
		s.logger.InfoContext(ctx, "register rejected", "status", reply.Status)
		return nil, reply.Status, err
	}
	return &IssuedSession{Token: tok, DeviceID: deviceID, DeviceIssued: minted}, reply.Status, nil
}

// RefreshResult carries a refreshed pair and where it came from.
type RefreshResult struct {
	Token  domainauth.TokenResponse
	Source string
}

// Refresh exchanges a refresh token. Concurrent calls presenting the same token share one
// backend call; with a cache configured, a pair rotated moments ago is replayed instead.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, apperrors.Auth("Unauthorized")
	}

	start := s.now()
	key := s.engine.Sign([]byte(refreshToken), []byte(s.cfg.CacheKeySecret))

	if tok, ok := s.cachedRefresh(ctx, key); ok {
		s.emitRefresh(metrics.SourceCache, start, nil)
		return &RefreshResult{Token: tok, Source: metrics.SourceCache}, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.refreshOnce(context.WithoutCancel(ctx), key, refreshToken)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		source := metrics.SourceBackend
		if res.Shared {
			source = metrics.SourceShared
		}
		s.emitRefresh(source, start, res.Err)
		if res.Err != nil {
			return nil, res.Err
		}
		tok, _ := res.Val.(domainauth.TokenResponse)
		return &RefreshResult{Token: tok, Source: source}, nil
	}
}

func (s *AuthService) refreshOnce(ctx context.Context, key, refreshToken string) (domainauth.TokenResponse, error) {
	reply, err := s.backend.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh backend call failed", "error", err)
		return domainauth.TokenResponse{}, fmt.Errorf("refresh: %w", err)
	}
	if !reply.OK() {
		s.logger.InfoContext(ctx, "refresh rejected", "status", reply.Status)
		return domainauth.TokenResponse{}, &RejectedError{
			Status:  reply.Status,
			Payload: map[string]any{"error": "Unauthorized"},
		}
	}

	var tok domainauth.TokenResponse
	if err := json.Unmarshal(reply.Body, &tok); err != nil || tok.AccessToken == "" {
		return domainauth.TokenResponse{}, apperrors.Upstream(http.StatusBadGateway, "Invalid response from server")
	}
	if tok.RefreshToken == "" && s.cfg.ExpectRotation {
		s.logger.WarnContext(ctx, "refresh response carried no rotated refresh token")
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, key, tok, s.cfg.GraceTTL); err != nil {
			s.logger.WarnContext(ctx, "refresh cache put failed", "error", err)
		}
	}
	return tok, nil
}

func (s *AuthService) cachedRefresh(ctx context.Context, key string) (domainauth.TokenResponse, bool) {
	if s.cache == nil {
		return domainauth.TokenResponse{}, false
	}
	tok, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh cache get failed", "error", err)
		return domainauth.TokenResponse{}, false
	}
	return tok, ok
}

func (s *AuthService) emitRefresh(source string, start time.Time, err error) {
	result := metrics.ResultSuccess
	var rej *RejectedError
	switch {
	case errors.As(err, &rej):
		result = metrics.ResultRejected
	case err != nil:
		result = metrics.ResultError
	}
	metrics.EmitRefresh(s.metrics, metrics.RefreshMetric{
		Source:   source,
		Result:   result,
		Duration: s.now().Sub(start),
		Err:      err,
	})
}

// LogoutInput groups parameters for Logout.
type LogoutInput struct {
	RefreshToken string
	DeviceID     string
}

// Logout revokes the session at the backend when enabled. Failures are logged and never returned;
// the caller clears cookies regardless.
func (s *AuthService) Logout(ctx context.Context, in LogoutInput) {
	if !s.cfg.BackendLogout || in.RefreshToken == "" {
		return
	}
	err := s.backend.Logout(ctx, ports.LogoutRequest{RefreshToken: in.RefreshToken, DeviceID: in.DeviceID})
	if err != nil {
		s.logger.WarnContext(ctx, "backend logout failed", "error", err)
	}
}

func (s *AuthService) verifyChallenge(ctx context.Context, token, remoteIP string) error {
	if s.verifier == nil {
		return nil
	}
	if err := s.verifier.Verify(ctx, token, remoteIP); err != nil {
		return fmt.Errorf("verify challenge: %w", err)
	}
	return nil
}

func (s *AuthService) deviceID(existing string) (string, bool) {
	if existing != "" {
		return existing, false
	}
	return uuid.NewString(), true
}

// issued turns a backend reply into tokens, or a RejectedError to relay.
// A 402 body is always relayed untouched. fallback is the error text used when the body has no message.
func (s *AuthService) issued(reply ports.BackendReply, fallback string) (domainauth.TokenResponse, error) {
	if !reply.OK() {
		return domainauth.TokenResponse{}, rejection(reply, fallback)
	}

	var tok domainauth.TokenResponse
	if err := json.Unmarshal(reply.Body, &tok); err != nil || tok.AccessToken == "" {
		return domainauth.TokenResponse{}, apperrors.Upstream(http.StatusBadGateway, "Invalid response from server")
	}
	return tok, nil
}

func rejection(reply ports.BackendReply, fallback string) *RejectedError {
	payload := map[string]any{}
	_ = json.Unmarshal(reply.Body, &payload)
	if payload == nil {
		payload = map[string]any{}
	}

	if reply.Status == http.StatusPaymentRequired {
		return &RejectedError{Status: reply.Status, Payload: payload}
	}
	if msg, ok := payload["message"].(string); ok && msg != "" {
		if _, has := payload["error"]; !has {
			payload["error"] = msg
		}
		return &RejectedError{Status: reply.Status, Payload: payload}
	}
	if fallback != "" {
		if _, has := payload["error"]; !has {
			payload["error"] = fallback
		}
	}
	return &RejectedError{Status: reply.Status, Payload: payload}
}
