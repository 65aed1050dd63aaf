package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/logging"
	"github.com/sealchat/backend/internal/models"
)

// ChatHandler exposes chat resolution and retrieval.
type ChatHandler struct {
	Chats ChatService
}

type chatMemberResponse struct {
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

type chatResponse struct {
	ID        string               `json:"id"`
	Type      string               `json:"type"`
	Title     string               `json:"title,omitempty"`
	Members   []chatMemberResponse `json:"members"`
	CreatedAt time.Time            `json:"createdAt"`
}

func toChatResponse(chat models.Chat) chatResponse {
	members := make([]chatMemberResponse, 0, len(chat.Members))
	for _, m := range chat.Members {
		members = append(members, chatMemberResponse{
			UserID:   m.UserID,
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
		})
	}
	return chatResponse{
		ID:        chat.ID,
		Type:      chat.Type,
		Title:     chat.Title,
		Members:   members,
		CreatedAt: chat.CreatedAt,
	}
}

// Get handles GET /api/v1/chats/{id}. Non-members receive 403.
func (h ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	chat, err := h.Chats.GetChat(ctx, r.PathValue("id"), principal.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toChatResponse(chat))
}

type findOrCreateChatBody struct {
	OtherUserID string `json:"otherUserId"`
}

// FindOrCreate handles POST /api/v1/chats/find-or-create. The same pair
// of users always resolves to the same private chat.
func (h ChatHandler) FindOrCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	principal, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var body findOrCreateChatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.Warn("invalid chat payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	chat, err := h.Chats.FindOrCreatePrivateChat(ctx, principal.UserID, body.OtherUserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, toChatResponse(chat))
}
