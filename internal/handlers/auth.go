package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/logging"
	"github.com/sealchat/backend/internal/models"
)

// AuthHandler implements key-based registration and the device session
// lifecycle. There are no passwords anywhere: possession of the private
// key matching a registered public key is the credential, and the
// session tokens issued here stand in for it between logins.
type AuthHandler struct {
	Users    UserService
	Sessions SessionService
	Cookies  auth.CookieWriter
	Limiter  RateLimiter
}

type registerRequest struct {
	PublicKey   string `json:"publicKey"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	PublicKey   string `json:"publicKey"`
	DeviceID    string `json:"deviceId"`
	DeviceModel string `json:"deviceModel"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID          string `json:"id"`
	PublicKey   string `json:"publicKey"`
	DisplayName string `json:"displayName,omitempty"`
}

type authResponse struct {
	User   userResponse         `json:"user"`
	Tokens models.SessionTokens `json:"tokens"`
}

// Register handles POST /api/v1/auth/register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "auth") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user, err := h.Users.Register(ctx, req.PublicKey, req.DisplayName)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, userResponse{
		ID:          user.ID,
		PublicKey:   base64.StdEncoding.EncodeToString(user.PublicKey),
		DisplayName: user.DisplayName,
	})
}

// Login handles POST /api/v1/auth/login. An unseen public key creates
// the account on the fly; login is registration for new keys.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "auth") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.DeviceID = strings.TrimSpace(req.DeviceID)
	if req.DeviceID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "deviceId is required"})
		return
	}

	user, err := h.Users.Register(ctx, req.PublicKey, "")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	_, tokens, err := h.Sessions.CreateSession(ctx, user.ID, req.DeviceID, req.DeviceModel, clientIP(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	h.Cookies.Set(w, tokens)
	respondJSON(ctx, w, http.StatusOK, authResponse{
		User: userResponse{
			ID:          user.ID,
			PublicKey:   base64.StdEncoding.EncodeToString(user.PublicKey),
			DisplayName: user.DisplayName,
		},
		Tokens: tokens,
	})
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is taken
// from the body when present, otherwise from the cookie.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "auth") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req refreshRequest
	if r.Body != nil {
		// An empty body is a valid way to say "use the cookie".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken = auth.RefreshTokenFromRequest(r)
	}
	if refreshToken == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "refresh token is required"})
		return
	}

	_, tokens, err := h.Sessions.RefreshSession(ctx, refreshToken, clientIP(r))
	if err != nil {
		logger.Warn("session refresh rejected", "error", err)
		respondError(ctx, w, err)
		return
	}

	h.Cookies.Set(w, tokens)
	respondJSON(ctx, w, http.StatusOK, map[string]models.SessionTokens{"tokens": tokens})
}

// Logout handles POST /api/v1/auth/logout. Revokes the calling session
// and clears the token cookies.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if err := h.Sessions.RevokeSession(ctx, principal.UserID, principal.SessionID); err != nil {
		respondError(ctx, w, err)
		return
	}

	h.Cookies.Clear(w)
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Profile handles GET /api/v1/auth/profile.
func (h AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	profile, err := h.Users.Profile(ctx, principal.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, profile)
}

// ListSessions handles GET /api/v1/auth/sessions, listing the caller's
// active devices.
func (h AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	sessions, err := h.Sessions.FindActiveSessions(ctx, principal.UserID, principal.SessionID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"sessions": sessions})
}

// RevokeSession handles POST /api/v1/auth/sessions/revoke/{id}. The
// current session cannot be revoked here; logout covers that.
func (h AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	if err := h.Sessions.RevokeSessionByID(ctx, principal.UserID, sessionID, principal.SessionID); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "revoked"})
}

// RevokeOtherSessions handles POST /api/v1/auth/sessions/revoke-all.
// Signs out every device except the one making the call.
func (h AuthHandler) RevokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	if err := h.Sessions.RevokeAllSessions(ctx, principal.UserID, principal.SessionID); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "revoked"})
}
