package ws

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/logging"
)

// SessionValidator resolves a raw access token to an authenticated
// principal. Implemented by the session store.
type SessionValidator interface {
	ValidatePrincipal(ctx context.Context, accessToken string) (auth.Principal, error)
}

// Handler upgrades authenticated HTTP requests into hub-managed
// websocket connections. Unauthenticated handshakes are rejected before
// the upgrade (fail-closed).
type Handler struct {
	Hub      *Hub
	Sessions SessionValidator

	upgrader websocket.Upgrader
}

// NewHandler constructs the websocket handshake handler.
func NewHandler(hub *Hub, sessions SessionValidator) *Handler {
	return &Handler{
		Hub:      hub,
		Sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Cookie auth protects the handshake; cross-origin browser
			// clients are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	token := auth.AccessTokenFromRequest(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	principal, err := h.Sessions.ValidatePrincipal(r.Context(), token)
	if err != nil {
		logger.Warn("websocket handshake rejected", "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(h.Hub, conn, principal)

	// The request context dies with the handshake; connection work gets
	// a fresh lineage tied to the socket instead.
	ctx := logging.WithLogger(context.Background(),
		logger.With("userId", principal.UserID, "sessionId", principal.SessionID))

	h.Hub.Register(ctx, client)

	go client.writePump()
	go client.readPump(ctx)
}
