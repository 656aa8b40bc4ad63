package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	apperrors "github.com/tradeboard/gateway/internal/errors"
	"github.com/tradeboard/gateway/internal/mocks"
	fakes "github.com/tradeboard/gateway/internal/mocks/auth"
	"github.com/tradeboard/gateway/internal/ports"
	"github.com/tradeboard/gateway/internal/signing"
)

const tokenBody = `{"access_token":"A1","refresh_token":"R2","token_type":"Bearer","expires_in":900,"dynamic_hmac_secret":"dyn"}`

func newAuthService(t *testing.T, deps AuthDeps, cfg AuthServiceConfig) *AuthService {
	t.Helper()
	return NewAuthService(AuthServiceOptions{Deps: deps, Config: cfg})
}

func TestNewAuthService_RequiresBackend(t *testing.T) {
	assert.Panics(t, func() { NewAuthService(AuthServiceOptions{}) })
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("success mints device id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		var sent ports.LoginRequest
		backend.EXPECT().Login(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in ports.LoginRequest) (ports.BackendReply, error) {
				sent = in
				return ports.BackendReply{Status: http.StatusOK, Body: []byte(tokenBody)}, nil
			})

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		issued, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: " alice ", Password: "pw"}})
		require.NoError(t, err)

		assert.Equal(t, "alice", sent.Username)
		assert.NotEmpty(t, sent.DeviceID)
		assert.Equal(t, sent.DeviceID, issued.DeviceID)
		assert.True(t, issued.DeviceIssued)
		assert.Equal(t, "A1", issued.Token.AccessToken)
		assert.Equal(t, "R2", issued.Token.RefreshToken)
		assert.Equal(t, "dyn", issued.Token.DynamicHMACSecret)
	})

	t.Run("existing device id is reused", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().
			Login(gomock.Any(), ports.LoginRequest{Username: "alice", Password: "pw", DeviceID: "dev-1"}).
			Return(ports.BackendReply{Status: http.StatusOK, Body: []byte(tokenBody)}, nil)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		issued, err := svc.Login(ctx, LoginInput{
			Credentials: domainauth.Credentials{Username: "alice", Password: "pw"},
			DeviceID:    "dev-1",
		})
		require.NoError(t, err)
		assert.False(t, issued.DeviceIssued)
	})

	t.Run("402 body relayed untouched", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(ports.BackendReply{
			Status: http.StatusPaymentRequired,
			Body:   []byte(`{"message":"Plan expired","redirect_url":"https://pay"}`),
		}, nil)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: "a", Password: "b"}})

		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, http.StatusPaymentRequired, rej.Status)
		assert.Equal(t, map[string]any{"message": "Plan expired", "redirect_url": "https://pay"}, rej.Payload)
	})

	t.Run("401 message becomes error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(ports.BackendReply{
			Status: http.StatusUnauthorized,
			Body:   []byte(`{"message":"Bad password"}`),
		}, nil)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: "a", Password: "b"}})

		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, "Bad password", rej.Payload["error"])
		assert.Equal(t, "Bad password", rej.Message())
	})

	t.Run("401 without body falls back", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(ports.BackendReply{Status: http.StatusForbidden}, nil)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: "a", Password: "b"}})

		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, http.StatusForbidden, rej.Status)
		assert.Equal(t, "Invalid credentials", rej.Payload["error"])
	})

	t.Run("2xx without token is upstream error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(ports.BackendReply{Status: http.StatusOK, Body: []byte(`{}`)}, nil)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: "a", Password: "b"}})
		assert.True(t, apperrors.IsUpstream(err))
	})

	t.Run("network failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Login(gomock.Any(), gomock.Any()).Return(ports.BackendReply{}, apperrors.Network(errors.New("refused")))

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: "a", Password: "b"}})
		assert.True(t, apperrors.IsNetwork(err))
		assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(err))
	})

	t.Run("validation before any call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: "  ", Password: "b"}})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("challenge rejection stops the call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		verifier := &fakes.StaticVerifier{AcceptToken: "good"}

		svc := newAuthService(t, AuthDeps{Backend: backend, Verifier: verifier}, AuthServiceConfig{})
		_, err := svc.Login(ctx, LoginInput{Credentials: domainauth.Credentials{Username: "a", Password: "b", TurnstileToken: "bad"}})
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, 1, verifier.Calls())
	})
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	saveUser := true

	t.Run("trims and forwards optional fields", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		var sent ports.RegisterRequest
		backend.EXPECT().Register(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, in ports.RegisterRequest) (ports.BackendReply, error) {
				sent = in
				return ports.BackendReply{Status: http.StatusCreated, Body: []byte(tokenBody)}, nil
			})

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		issued, err := svc.Register(ctx, RegisterInput{Registration: domainauth.Registration{
			Username: " bob ", Email: " bob@example.com ", Password: "pw", SaveUser: &saveUser,
		}})
		require.NoError(t, err)

		assert.Equal(t, "bob", sent.Username)
		assert.Equal(t, "bob@example.com", sent.Email)
		require.NotNil(t, sent.SaveUser)
		assert.True(t, *sent.SaveUser)
		assert.Equal(t, "A1", issued.Token.AccessToken)
	})

	t.Run("missing password", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := newAuthService(t, AuthDeps{Backend: mocks.NewMockBackendAuth(ctrl)}, AuthServiceConfig{})

		_, err := svc.Register(ctx, RegisterInput{Registration: domainauth.Registration{Username: "bob"}})
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "Username and password are required.", apperrors.ClientMessage(err))
	})

	t.Run("rejection body passes through", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Register(gomock.Any(), gomock.Any()).Return(ports.BackendReply{
			Status: http.StatusUnprocessableEntity,
			Body:   []byte(`{"errors":{"username":["taken"]}}`),
		}, nil)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Register(ctx, RegisterInput{Registration: domainauth.Registration{Username: "bob", Password: "pw"}})

		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, http.StatusUnprocessableEntity, rej.Status)
		assert.NotContains(t, rej.Payload, "error")
		assert.Contains(t, rej.Payload, "errors")
	})
}

func refreshReply() ports.BackendReply {
	return ports.BackendReply{Status: http.StatusOK, Body: []byte(tokenBody)}
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := newAuthService(t, AuthDeps{Backend: mocks.NewMockBackendAuth(ctrl)}, AuthServiceConfig{})

		_, err := svc.Refresh(ctx, "")
		assert.True(t, apperrors.IsAuth(err))
	})

	t.Run("rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Refresh(gomock.Any(), "rt-old").Return(ports.BackendReply{Status: http.StatusUnauthorized}, nil)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})
		_, err := svc.Refresh(ctx, "rt-old")

		var rej *RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, http.StatusUnauthorized, rej.Status)
		assert.Equal(t, map[string]any{"error": "Unauthorized"}, rej.Payload)
	})

	t.Run("concurrent callers share one backend call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		release := make(chan struct{})
		var calls atomic.Int32
		backend.EXPECT().Refresh(gomock.Any(), "rt-1").DoAndReturn(
			func(context.Context, string) (ports.BackendReply, error) {
				calls.Add(1)
				<-release
				return refreshReply(), nil
			}).Times(1)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})

		const n = 8
		var wg sync.WaitGroup
		results := make([]*RefreshResult, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := svc.Refresh(ctx, "rt-1")
				assert.NoError(t, err)
				results[i] = res
			}(i)
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, res := range results {
			require.NotNil(t, res)
			assert.Equal(t, "R2", res.Token.RefreshToken)
		}
	})

	t.Run("rotated pair is cached and replayed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().Refresh(gomock.Any(), "rt-1").Return(refreshReply(), nil).Times(1)
		cache := fakes.NewMemoryRefreshCache()

		svc := newAuthService(t, AuthDeps{Backend: backend, Cache: cache}, AuthServiceConfig{CacheKeySecret: "k"})

		first, err := svc.Refresh(ctx, "rt-1")
		require.NoError(t, err)
		assert.Equal(t, "backend", first.Source)
		assert.Equal(t, 1, cache.Len())

		second, err := svc.Refresh(ctx, "rt-1")
		require.NoError(t, err)
		assert.Equal(t, "cache", second.Source)
		assert.Equal(t, first.Token, second.Token)
	})

	t.Run("cache key is a keyed digest", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		cache := mocks.NewMockRefreshCache(ctrl)
		key := signing.StdEngine{}.Sign([]byte("rt-1"), []byte("k"))

		cache.EXPECT().Get(gomock.Any(), key).Return(domainauth.TokenResponse{}, false, nil)
		backend.EXPECT().Refresh(gomock.Any(), "rt-1").Return(refreshReply(), nil)
		cache.EXPECT().Put(gomock.Any(), key, gomock.Any(), 3*time.Second).Return(nil)

		svc := newAuthService(t, AuthDeps{Backend: backend, Cache: cache}, AuthServiceConfig{CacheKeySecret: "k", GraceTTL: 3 * time.Second})
		_, err := svc.Refresh(ctx, "rt-1")
		require.NoError(t, err)
	})

	t.Run("cache errors degrade to backend", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		cache := mocks.NewMockRefreshCache(ctrl)

		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(domainauth.TokenResponse{}, false, errors.New("redis down"))
		backend.EXPECT().Refresh(gomock.Any(), "rt-1").Return(refreshReply(), nil)
		cache.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

		svc := newAuthService(t, AuthDeps{Backend: backend, Cache: cache}, AuthServiceConfig{})
		res, err := svc.Refresh(ctx, "rt-1")
		require.NoError(t, err)
		assert.Equal(t, "A1", res.Token.AccessToken)
	})

	t.Run("cancelled caller does not cancel the shared call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		release := make(chan struct{})
		backend.EXPECT().Refresh(gomock.Any(), "rt-1").DoAndReturn(
			func(callCtx context.Context, _ string) (ports.BackendReply, error) {
				<-release
				if callCtx.Err() != nil {
					return ports.BackendReply{}, callCtx.Err()
				}
				return refreshReply(), nil
			}).Times(1)

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{})

		cancelCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() {
			_, err := svc.Refresh(cancelCtx, "rt-1")
			errCh <- err
		}()

		okCh := make(chan *RefreshResult, 1)
		time.Sleep(20 * time.Millisecond)
		go func() {
			res, _ := svc.Refresh(ctx, "rt-1")
			okCh <- res
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-errCh, context.Canceled)

		close(release)
		res := <-okCh
		require.NotNil(t, res)
		assert.Equal(t, "A1", res.Token.AccessToken)
	})
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled makes no call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := newAuthService(t, AuthDeps{Backend: mocks.NewMockBackendAuth(ctrl)}, AuthServiceConfig{})
		svc.Logout(ctx, LogoutInput{RefreshToken: "rt"})
	})

	t.Run("enabled swallows failures", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		backend := mocks.NewMockBackendAuth(ctrl)
		backend.EXPECT().
			Logout(gomock.Any(), ports.LogoutRequest{RefreshToken: "rt", DeviceID: "dev"}).
			Return(apperrors.Network(errors.New("down")))

		svc := newAuthService(t, AuthDeps{Backend: backend}, AuthServiceConfig{BackendLogout: true})
		svc.Logout(ctx, LogoutInput{RefreshToken: "rt", DeviceID: "dev"})
	})

	t.Run("enabled without token makes no call", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		svc := newAuthService(t, AuthDeps{Backend: mocks.NewMockBackendAuth(ctrl)}, AuthServiceConfig{BackendLogout: true})
		svc.Logout(ctx, LogoutInput{})
	})
}
