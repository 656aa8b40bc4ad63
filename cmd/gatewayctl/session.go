package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tradeboard/gateway/internal/credential"
	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	"github.com/tradeboard/gateway/internal/session"
)

// cliConfig holds environment defaults; flags override them.
type cliConfig struct {
	BaseURL  string        `env:"GATEWAY_URL"          envDefault:"http://localhost:8080"`
	Prefix   string        `env:"GATEWAY_ROUTE_PREFIX" envDefault:"/api"`
	Username string        `env:"GATEWAY_USERNAME"`
	Password string        `env:"GATEWAY_PASSWORD"`
	Mode     session.Mode  `env:"GATEWAY_MODE"         envDefault:"PRODUCTION"`
	Timeout  time.Duration `env:"GATEWAY_TIMEOUT"      envDefault:"30s"`
}

type connOptions struct {
	BaseURL        string
	Prefix         string
	Username       string
	Password       string
	TurnstileToken string
	Mode           session.Mode
	Timeout        time.Duration
}

func registerConnFlags(fs *flag.FlagSet, defaults cliConfig, opts *connOptions) {
	opts.Mode = defaults.Mode
	fs.StringVar(&opts.BaseURL, "url", defaults.BaseURL, "Gateway origin")
	fs.StringVar(&opts.Prefix, "prefix", defaults.Prefix, "Gateway route prefix")
	fs.StringVar(&opts.Username, "username", defaults.Username, "Account username")
	fs.StringVar(&opts.Password, "password", defaults.Password, "Account password (prefer GATEWAY_PASSWORD)")
	fs.StringVar(&opts.TurnstileToken, "turnstile-token", "", "Bot challenge token when the gateway requires one")
	fs.DurationVar(&opts.Timeout, "timeout", defaults.Timeout, "Per-request timeout")
	fs.Func("mode", "Backend environment: PRODUCTION or TESTNET", func(v string) error {
		return opts.Mode.UnmarshalText([]byte(v))
	})
}

func validateConnOptions(opts connOptions) error {
	if opts.BaseURL == "" {
		return errors.New("--url is required")
	}
	if opts.Username == "" {
		return errors.New("--username is required")
	}
	if opts.Password == "" {
		return errors.New("--password or GATEWAY_PASSWORD is required")
	}
	return nil
}

// sessionKit is one client-side session: store, coordinator, controller and API client
// sharing a cookie jar.
type sessionKit struct {
	store *credential.Store
	ctrl  *session.Controller
	api   *session.APIClient
}

func newSessionKit(opts connOptions, logger *slog.Logger, errOut io.Writer) (*sessionKit, error) {
	hc, err := session.NewHTTPClient(opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	bff := session.Endpoint{BaseURL: opts.BaseURL, Prefix: opts.Prefix, HTTPClient: hc}

	store := credential.NewStore(credential.Options{})
	signals := session.NewSignals()
	signals.OnSubscriptionRequired(func(n domainauth.SubscriptionNotice) {
		if err := writef(errOut, "subscription required: %s %s\n", n.Message, n.RedirectURL); err != nil {
			logger.Warn("print subscription notice failed", "error", err)
		}
	})

	coord := session.NewCoordinator(session.CoordinatorOptions{
		BFF:     bff,
		Store:   store,
		Signals: signals,
		Logger:  logger,
	})
	deps := session.ControllerDeps{Store: store, Coordinator: coord, Signals: signals}

	return &sessionKit{
		store: store,
		ctrl: session.NewController(session.ControllerOptions{
			Deps:   deps,
			BFF:    bff,
			Logger: logger,
		}),
		api: session.NewAPIClient(session.APIClientOptions{
			Deps: deps,
			BFF:  bff,
			Mode: opts.Mode,
		}),
	}, nil
}

func (k *sessionKit) signIn(ctx context.Context, opts connOptions) error {
	if err := k.ctrl.Login(ctx, session.LoginInput{
		Username:       opts.Username,
		Password:       opts.Password,
		TurnstileToken: opts.TurnstileToken,
	}); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return nil
}

// close signs out and detaches the controller. Logout is best effort and always clears local state.
func (k *sessionKit) close(ctx context.Context) {
	k.ctrl.Logout(context.WithoutCancel(ctx))
	k.ctrl.Close()
}
