package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/logging"
)

// UserHandler exposes presence queries and username binding.
type UserHandler struct {
	Users    UserService
	Presence PresenceReader
}

// OnlineStatus handles GET /api/v1/users/online-status/{userId}.
// Presence is advisory: a tracker outage reports everyone offline
// rather than failing the request.
func (h UserHandler) OnlineStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := auth.PrincipalFromContext(ctx); !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	userID := r.PathValue("userId")
	online, err := h.Presence.IsOnline(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Warn("presence lookup failed", "userId", userID, "error", err)
		online = false
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"userId": userID, "online": online})
}

type bulkOnlineStatusBody struct {
	UserIDs []string `json:"userIds"`
}

// BulkOnlineStatus handles POST /api/v1/users/bulk-online-status.
func (h UserHandler) BulkOnlineStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := auth.PrincipalFromContext(ctx); !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var body bulkOnlineStatusBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid bulk status payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	statuses, err := h.Presence.BulkIsOnline(ctx, body.UserIDs)
	if err != nil {
		logger.Warn("bulk presence lookup failed", "error", err)
		statuses = make(map[string]bool, len(body.UserIDs))
		for _, id := range body.UserIDs {
			statuses[id] = false
		}
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"statuses": statuses})
}

type setUsernameBody struct {
	Username     string `json:"username"`
	IsSearchable bool   `json:"isSearchable"`
}

// SetUsername handles POST /api/v1/username.
func (h UserHandler) SetUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var body setUsernameBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid username payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Username == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	record, err := h.Users.SetUsername(ctx, principal.UserID, body.Username, body.IsSearchable)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"username":     record.Username,
		"isSearchable": record.IsSearchable,
	})
}

// LookupUsername handles GET /api/v1/username/{username}. Unsearchable
// handles are indistinguishable from absent ones.
func (h UserHandler) LookupUsername(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := auth.PrincipalFromContext(ctx); !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.Users.FindByUsername(ctx, r.PathValue("username"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}
