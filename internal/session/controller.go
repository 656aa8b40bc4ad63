package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tradeboard/gateway/internal/credential"
	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	apperrors "github.com/tradeboard/gateway/internal/errors"
)

// LoginPath is where the controller sends the user when the session ends.
const LoginPath = "/login"

// Messages surfaced to the user by Login and Register.
const (
	MsgSubscriptionRequired = "Subscription required."
	MsgInvalidCredentials   = "Invalid credentials."
	MsgLoginFailed          = "Login failed."
	MsgRegisterFailed       = "Registration failed."
	MsgInvalidResponse      = "Invalid response from server."
	MsgNetworkError         = "Network error. Please try again."
)

// authPages never trigger a refresh on bootstrap.
var authPages = []string{"/login", "/signup"}

// Navigator moves the UI to another path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(path string)

// Navigate calls f(path).
func (f NavigatorFunc) Navigate(path string) { f(path) }

// ControllerDeps are the session collaborators shared with the APIClient.
type ControllerDeps struct {
	Store       *credential.Store
	Coordinator *Coordinator
	Signals     *Signals
}

// ControllerOptions groups dependencies for Controller.
type ControllerOptions struct {
	Deps      ControllerDeps
	BFF       Endpoint
	Navigator Navigator
	Logger    *slog.Logger
}

// Controller drives the UI-facing session state.
type Controller struct {
	store       *credential.Store
	coordinator *Coordinator
	signals     *Signals
	bff         Endpoint
	nav         Navigator
	logger      *slog.Logger

	mu        sync.Mutex
	state     domainauth.SessionState
	notice    *domainauth.SubscriptionNotice
	next      int
	listeners map[int]func(domainauth.SessionState)

	unsubscribe []func()
}

// NewController constructs a Controller in the Loading state and subscribes it to signals.
func NewController(opts ControllerOptions) *Controller {
	if opts.Deps.Store == nil || opts.Deps.Coordinator == nil {
		panic("credential store and refresh coordinator are required")
	}
	c := &Controller{
		store:       opts.Deps.Store,
		coordinator: opts.Deps.Coordinator,
		signals:     opts.Deps.Signals,
		bff:         opts.BFF,
		nav:         opts.Navigator,
		logger:      opts.Logger,
		state:       domainauth.StateLoading,
		listeners:   map[int]func(domainauth.SessionState){},
	}
	if c.signals == nil {
		c.signals = opts.Deps.Coordinator.signals
	}
	if c.nav == nil {
		c.nav = NavigatorFunc(func(string) {})
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "session_controller")

	c.unsubscribe = append(c.unsubscribe,
		c.signals.OnSessionExpired(c.sessionExpired),
		c.signals.OnRefreshed(c.refreshed),
		c.signals.OnSubscriptionRequired(c.subscriptionRequired),
	)
	return c
}

// Close detaches the controller from its signals.
func (c *Controller) Close() {
	for _, fn := range c.unsubscribe {
		fn()
	}
	c.unsubscribe = nil
}

// State returns the current session state.
func (c *Controller) State() domainauth.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn for every state transition and returns a func that removes it.
func (c *Controller) OnStateChange(fn func(domainauth.SessionState)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) setState(s domainauth.SessionState) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	fns := make([]func(domainauth.SessionState), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Bootstrap settles the state for the page at currentPath. If ctx ends while a refresh is
// in flight it returns Loading; the refresh outcome settles the state later.
func (c *Controller) Bootstrap(ctx context.Context, currentPath string) domainauth.SessionState {
	c.setState(domainauth.StateLoading)

	for _, p := range authPages {
		if strings.Contains(currentPath, p) {
			c.setState(domainauth.StateUnauthenticated)
			return domainauth.StateUnauthenticated
		}
	}
	if _, ok := c.store.Valid(); ok {
		c.setState(domainauth.StateAuthenticated)
		return domainauth.StateAuthenticated
	}

	if c.coordinator.Refresh(ctx) {
		c.setState(domainauth.StateAuthenticated)
		return domainauth.StateAuthenticated
	}
	if ctx.Err() != nil {
		return c.State()
	}
	c.store.Clear()
	c.setState(domainauth.StateUnauthenticated)
	return domainauth.StateUnauthenticated
}

// LoginInput are the credentials the user typed.
type LoginInput struct {
	Username       string
	Password       string
	TurnstileToken string
}

// Login signs the user in. The returned error's ClientMessage is the text to show.
func (c *Controller) Login(ctx context.Context, in LoginInput) error {
	return c.authenticate(ctx, authAttempt{
		path: "/auth/login",
		body: domainauth.Credentials{
			Username:       in.Username,
			Password:       in.Password,
			TurnstileToken: in.TurnstileToken,
		},
		failed: MsgLoginFailed,
	})
}

// RegisterInput are the signup fields.
type RegisterInput struct {
	Username       string
	Email          string
	Password       string
	SaveUser       *bool
	TurnstileToken string
}

// Register creates an account and signs the user in.
func (c *Controller) Register(ctx context.Context, in RegisterInput) error {
	return c.authenticate(ctx, authAttempt{
		path: "/auth/register",
		body: domainauth.Registration{
			Username:       in.Username,
			Email:          in.Email,
			Password:       in.Password,
			SaveUser:       in.SaveUser,
			TurnstileToken: in.TurnstileToken,
		},
		failed: MsgRegisterFailed,
	})
}

type authAttempt struct {
	path   string
	body   any
	failed string
}

func (c *Controller) authenticate(ctx context.Context, a authAttempt) error {
	r, err := c.bff.postJSON(ctx, a.path, a.body)
	if err != nil {
		c.logger.InfoContext(ctx, "auth request failed", "path", a.path, "error", err)
		return apperrors.Wrap(err, apperrors.ErrCodeNetwork, MsgNetworkError)
	}

	if r.status == http.StatusPaymentRequired {
		notice := decodeNotice(r.body)
		c.signals.SubscriptionRequired(notice)
		msg := notice.Message
		if msg == "" {
			msg = MsgSubscriptionRequired
		}
		return apperrors.Subscription(msg)
	}
	if !r.ok() {
		return rejectedLogin(r, a.failed)
	}

	tok, ok := decodeToken(r.body)
	if !ok {
		return apperrors.Upstream(http.StatusBadGateway, MsgInvalidResponse)
	}
	c.store.Set(tok.AccessToken, time.Duration(tok.ExpiresIn)*time.Second)
	c.setState(domainauth.StateAuthenticated)
	return nil
}

func rejectedLogin(r reply, failed string) error {
	msg := bodyField(r.body, "error")
	switch r.status {
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg == "" {
			msg = MsgInvalidCredentials
		}
		return apperrors.Auth(msg)
	case http.StatusBadRequest:
		if msg == "" {
			msg = failed
		}
		return apperrors.Validation(msg)
	default:
		if msg == "" {
			msg = failed
		}
		return apperrors.Upstream(r.status, msg)
	}
}

// Logout tells the BFF to drop the session cookies, then ends the local session whatever the answer.
func (c *Controller) Logout(ctx context.Context) {
	if _, err := c.bff.postJSON(ctx, "/auth/logout", nil); err != nil {
		c.logger.InfoContext(ctx, "logout request failed", "error", err)
	}
	c.store.Clear()
	c.setState(domainauth.StateUnauthenticated)
	c.nav.Navigate(LoginPath)
}

// VisibilityRegained refreshes a missing or expired token through the shared coordinator.
func (c *Controller) VisibilityRegained(ctx context.Context) {
	if _, ok := c.store.Valid(); ok {
		return
	}
	if c.coordinator.Refresh(ctx) {
		c.setState(domainauth.StateAuthenticated)
	}
}

// SubscriptionNotice returns the pending subscription notice, if any.
func (c *Controller) SubscriptionNotice() (domainauth.SubscriptionNotice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notice == nil {
		return domainauth.SubscriptionNotice{}, false
	}
	return *c.notice, true
}

// DismissSubscriptionNotice clears the pending notice.
func (c *Controller) DismissSubscriptionNotice() {
	c.mu.Lock()
	c.notice = nil
	c.mu.Unlock()
}

func (c *Controller) sessionExpired() {
	c.store.Clear()
	c.setState(domainauth.StateUnauthenticated)
	c.nav.Navigate(LoginPath)
}

func (c *Controller) refreshed() {
	c.setState(domainauth.StateAuthenticated)
}

func (c *Controller) subscriptionRequired(n domainauth.SubscriptionNotice) {
	c.mu.Lock()
	c.notice = &n
	c.mu.Unlock()
}
