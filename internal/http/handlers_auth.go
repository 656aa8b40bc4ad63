package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
	apperrors "github.com/tradeboard/gateway/internal/errors"
	"github.com/tradeboard/gateway/internal/service"
)

// DefaultRefreshMaxAge is the refresh cookie lifetime when none is configured (14 days).
const DefaultRefreshMaxAge = 14 * 24 * 60 * 60

// CookiePolicy controls the attributes of the cookies the BFF issues.
type CookiePolicy struct {
	Domain string
	Secure bool
	// MaxAge in seconds for the refresh token, dynamic secret and device id cookies.
	MaxAge int
}

// AuthHandlers serves the BFF auth routes.
type AuthHandlers struct {
	Svc              *service.AuthService
	Cookies          CookiePolicy
	TurnstileSiteKey string
	// ClientIP resolves RemoteIP for upstream calls. Defaults to the connection peer.
	ClientIP KeyFunc
	Logger   *slog.Logger
}

func (h *AuthHandlers) clientIP(r *http.Request) string {
	if h.ClientIP != nil {
		return h.ClientIP(r)
	}
	return ClientIP(r)
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login exchanges credentials for tokens and sets the session cookies.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var creds domainauth.Credentials
	if !DecodeJSON(w, r, &creds) {
		return
	}

	issued, err := h.Svc.Login(r.Context(), service.LoginInput{
		Credentials: creds,
		DeviceID:    cookieValue(r, domainauth.DeviceIDCookie),
		RemoteIP:    h.clientIP(r),
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setIssuedCookies(w, issued)
	WriteJSON(w, http.StatusOK, issued.Token.Public())
}

// Register creates an account and signs the new user in.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var reg domainauth.Registration
	if !DecodeJSON(w, r, &reg) {
		return
	}

	issued, err := h.Svc.Register(r.Context(), service.RegisterInput{
		Registration: reg,
		DeviceID:     cookieValue(r, domainauth.DeviceIDCookie),
		RemoteIP:     h.clientIP(r),
	})
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	h.setIssuedCookies(w, issued)
	WriteJSON(w, http.StatusOK, issued.Token.Public())
}

// Refresh trades the refresh cookie for a new access token, rotating the cookie when the
// backend hands out a new one.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := cookieValue(r, domainauth.RefreshTokenCookie)
	if refreshToken == "" {
		WriteError(w, apperrors.Auth("Unauthorized"))
		return
	}

	res, err := h.Svc.Refresh(r.Context(), refreshToken)
	if err != nil {
		// A dead refresh token is dropped; a flaky backend keeps it for the next attempt.
		var rej *service.RejectedError
		if errors.As(err, &rej) || apperrors.IsAuth(err) {
			h.clearCookie(w, domainauth.RefreshTokenCookie, http.SameSiteLaxMode)
		}
		h.writeAuthError(w, err)
		return
	}

	if res.Token.RefreshToken != "" {
		h.setCookie(w, cookieParams{
			Name:     domainauth.RefreshTokenCookie,
			Value:    res.Token.RefreshToken,
			SameSite: http.SameSiteLaxMode,
		})
	}
	WriteJSON(w, http.StatusOK, res.Token.Public())
}

// Logout clears the session cookies. The backend is told when configured; its answer is ignored.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.Svc.Logout(r.Context(), service.LogoutInput{
		RefreshToken: cookieValue(r, domainauth.RefreshTokenCookie),
		DeviceID:     cookieValue(r, domainauth.DeviceIDCookie),
	})

	h.clearCookie(w, domainauth.RefreshTokenCookie, http.SameSiteLaxMode)
	h.clearCookie(w, domainauth.DynamicHMACSecretCookie, http.SameSiteStrictMode)
	h.clearCookie(w, domainauth.DeviceIDCookie, http.SameSiteStrictMode)
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Config exposes the public values the login widget needs.
func (h *AuthHandlers) Config(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"turnstile_site_key": h.TurnstileSiteKey})
}

// writeAuthError relays backend rejections verbatim and maps everything else through AppError.
func (h *AuthHandlers) writeAuthError(w http.ResponseWriter, err error) {
	var rej *service.RejectedError
	if errors.As(err, &rej) {
		WriteJSON(w, rej.Status, rej.Payload)
		return
	}
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		h.logger().Error("auth request failed", "error", err)
	}
	WriteError(w, err)
}

func (h *AuthHandlers) setIssuedCookies(w http.ResponseWriter, issued *service.IssuedSession) {
	if issued.Token.RefreshToken != "" {
		h.setCookie(w, cookieParams{
			Name:     domainauth.RefreshTokenCookie,
			Value:    issued.Token.RefreshToken,
			SameSite: http.SameSiteLaxMode,
		})
	}
	if issued.Token.DynamicHMACSecret != "" {
		h.setCookie(w, cookieParams{
			Name:     domainauth.DynamicHMACSecretCookie,
			Value:    issued.Token.DynamicHMACSecret,
			SameSite: http.SameSiteStrictMode,
		})
	}
	if issued.DeviceID != "" {
		h.setCookie(w, cookieParams{
			Name:     domainauth.DeviceIDCookie,
			Value:    issued.DeviceID,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// cookieParams groups values needed to set one session cookie (≤3 params rule).
type cookieParams struct {
	Name     string
	Value    string
	SameSite http.SameSite
}

func (h *AuthHandlers) setCookie(w http.ResponseWriter, p cookieParams) {
	maxAge := h.Cookies.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultRefreshMaxAge
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    p.Value,
		Path:     "/",
		Domain:   h.Cookies.Domain,
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: p.SameSite,
		MaxAge:   maxAge,
	})
}

// clearCookie expires a cookie, mirroring the attributes it was set with.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, name string, sameSite http.SameSite) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.Cookies.Domain,
		HttpOnly: true,
		Secure:   h.Cookies.Secure,
		SameSite: sameSite,
		MaxAge:   -1,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
