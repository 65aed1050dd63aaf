package auth

import (
	"net/http"
	"time"

	"github.com/sealchat/backend/internal/models"
)

// Cookie names shared between the REST surface and the websocket handshake.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieWriter applies the session cookie policy: HTTP-only,
// SameSite=Strict, Secure in production.
type CookieWriter struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Set writes both session cookies onto the response.
func (c CookieWriter) Set(w http.ResponseWriter, tokens models.SessionTokens) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, tokens.AccessToken, c.AccessTTL))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, tokens.RefreshToken, c.RefreshTTL))
}

// Clear expires both session cookies.
func (c CookieWriter) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessTokenCookie, "", -time.Second))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, "", -time.Second))
}

func (c CookieWriter) cookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl.Seconds())
	if value == "" {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// AccessTokenFromRequest extracts the raw access token from the request
// cookies, returning "" when absent.
func AccessTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// RefreshTokenFromRequest extracts the raw refresh token from the
// request cookies, returning "" when absent.
func RefreshTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
