package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/chats"
	"github.com/sealchat/backend/internal/contacts"
	"github.com/sealchat/backend/internal/logging"
	"github.com/sealchat/backend/internal/users"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError translates service sentinels into HTTP statuses. Unknown
// errors become opaque 500s; their detail stays in the logs.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status, message := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error("unhandled service error", "error", err)
	}
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, auth.ErrSessionLimit):
		return http.StatusUnauthorized, "maximum number of active sessions reached"
	case errors.Is(err, auth.ErrCannotRevokeSelf):
		return http.StatusUnauthorized, "cannot revoke the current session"
	case errors.Is(err, auth.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, users.ErrInvalidPublicKey):
		return http.StatusBadRequest, "invalid public key format"
	case errors.Is(err, users.ErrUsernameTaken):
		return http.StatusConflict, "username is already taken"
	case errors.Is(err, users.ErrNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, contacts.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, contacts.ErrRequestNotFound):
		return http.StatusNotFound, "contact request not found"
	case errors.Is(err, contacts.ErrSelfRequest):
		return http.StatusBadRequest, "cannot send request to yourself"
	case errors.Is(err, contacts.ErrMessageTooLong):
		return http.StatusBadRequest, "message exceeds 200 characters"
	case errors.Is(err, contacts.ErrRequestExists):
		return http.StatusConflict, "contact request already exists"
	case errors.Is(err, chats.ErrInvalidParticipants):
		return http.StatusBadRequest, "invalid chat participants"
	case errors.Is(err, chats.ErrNotFound):
		return http.StatusNotFound, "chat not found"
	case errors.Is(err, chats.ErrNotMember):
		return http.StatusForbidden, "not a member of this chat"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
