package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/logging"
)

// ContactHandler exposes the contact request workflow.
type ContactHandler struct {
	Contacts ContactService
}

type sendRequestBody struct {
	ToUserID string `json:"toUserId"`
	Message  string `json:"message"`
}

type contactRequestResponse struct {
	ID        string    `json:"id"`
	ToUserID  string    `json:"toUserId"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Send handles POST /api/v1/contacts/requests.
func (h ContactHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var body sendRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid contact request payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.ToUserID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "toUserId is required"})
		return
	}

	request, err := h.Contacts.SendRequest(ctx, principal.UserID, body.ToUserID, body.Message)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, contactRequestResponse{
		ID:        request.ID,
		ToUserID:  request.ToUserID,
		Status:    request.Status,
		Message:   request.Message,
		CreatedAt: request.CreatedAt,
	})
}

// Incoming handles GET /api/v1/contacts/requests/incoming.
func (h ContactHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	requests, err := h.Contacts.IncomingRequests(ctx, principal.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"requests": requests})
}

// Outgoing handles GET /api/v1/contacts/requests/outgoing.
func (h ContactHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	requests, err := h.Contacts.OutgoingRequests(ctx, principal.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"requests": requests})
}

// Accept handles POST /api/v1/contacts/requests/{id}/accept. Acceptance
// materializes the private chat and its id is returned.
func (h ContactHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	requestID := r.PathValue("id")
	chatID, err := h.Contacts.AcceptRequest(ctx, requestID, principal.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "accepted", "chatId": chatID})
}

// Reject handles POST /api/v1/contacts/requests/{id}/reject.
func (h ContactHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	requestID := r.PathValue("id")
	if err := h.Contacts.RejectRequest(ctx, requestID, principal.UserID); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "rejected"})
}

// List handles GET /api/v1/contacts, returning accepted contacts.
func (h ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	list, err := h.Contacts.GetAcceptedContacts(ctx, principal.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"contacts": list})
}

// Status handles GET /api/v1/contacts/status/{userId}, reporting the
// relationship between the caller and the given user.
func (h ContactHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	otherUserID := r.PathValue("userId")
	status, err := h.Contacts.CheckRequestStatus(ctx, principal.UserID, otherUserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": status})
}
