package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/tradeboard/gateway/internal/credential"
)

// DefaultRefreshRetryDelay is the pause before the single retry of a refresh that failed in transit.
const DefaultRefreshRetryDelay = 1200 * time.Millisecond

const refreshKey = "refresh"

var errRefreshRejected = errors.New("refresh rejected")

// CoordinatorOptions groups dependencies for Coordinator.
type CoordinatorOptions struct {
	BFF     Endpoint
	Store   *credential.Store
	Signals *Signals
	// RetryDelay defaults to DefaultRefreshRetryDelay.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Coordinator runs at most one refresh at a time per process. Concurrent callers share
// the in-flight call and its outcome.
type Coordinator struct {
	bff     Endpoint
	store   *credential.Store
	signals *Signals
	delay   time.Duration
	logger  *slog.Logger
	group   singleflight.Group
}

// NewCoordinator constructs a new Coordinator.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.Store == nil {
		panic("credential store is required")
	}
	c := &Coordinator{
		bff:     opts.BFF,
		store:   opts.Store,
		signals: opts.Signals,
		delay:   opts.RetryDelay,
		logger:  opts.Logger,
	}
	if c.signals == nil {
		c.signals = NewSignals()
	}
	if c.delay <= 0 {
		c.delay = DefaultRefreshRetryDelay
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "refresh_coordinator")
	return c
}

// Refresh exchanges the refresh cookie for a new access token. It never panics or returns
// an error; false means the session is gone and observers have been told.
// A caller whose ctx ends early gets false while the shared call runs on. Its outcome still
// reaches observers through Refreshed or SessionExpired.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx)), nil
	})

	select {
	case <-ctx.Done():
		return false
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	}
}

func (c *Coordinator) refresh(ctx context.Context) bool {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(c.delay))

	var expiresIn time.Duration
	var token string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.bff.postJSON(ctx, "/auth/refresh", nil)
		if err != nil {
			var te *transportError
			if errors.As(err, &te) {
				return retry.RetryableError(err)
			}
			return err
		}
		if !r.ok() {
			return fmt.Errorf("%w: status %d", errRefreshRejected, r.status)
		}
		tok, ok := decodeToken(r.body)
		if !ok {
			return errors.New("refresh response missing access token")
		}
		token = tok.AccessToken
		expiresIn = time.Duration(tok.ExpiresIn) * time.Second
		return nil
	})
	if err != nil {
		c.logger.InfoContext(ctx, "refresh failed", "error", err)
		c.store.Clear()
		c.signals.SessionExpired()
		return false
	}

	c.store.Set(token, expiresIn)
	c.signals.Refreshed()
	return true
}
