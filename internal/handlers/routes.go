package handlers

import (
	"net/http"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users    UserService
	Sessions SessionService
	Contacts ContactService
	Chats    ChatService
	Presence PresenceReader
	Media    MediaSigner

	Authenticator middleware.PrincipalValidator
	Cookies       auth.CookieWriter
	AuthLimiter   RateLimiter

	// Realtime serves the websocket handshake; it carries its own
	// authentication and stays outside the session middleware.
	Realtime http.Handler
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	authH := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Cookies: deps.Cookies, Limiter: deps.AuthLimiter}
	contactsH := ContactHandler{Contacts: deps.Contacts}
	chatsH := ChatHandler{Chats: deps.Chats}
	usersH := UserHandler{Users: deps.Users, Presence: deps.Presence}

	requireSession := middleware.RequireSession(deps.Authenticator)
	guarded := func(h http.HandlerFunc) http.Handler {
		return requireSession(h)
	}

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.HandleFunc("POST /api/v1/auth/register", authH.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authH.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authH.Refresh)
	mux.Handle("POST /api/v1/auth/logout", guarded(authH.Logout))
	mux.Handle("GET /api/v1/auth/profile", guarded(authH.Profile))
	mux.Handle("GET /api/v1/auth/sessions", guarded(authH.ListSessions))
	mux.Handle("POST /api/v1/auth/sessions/revoke/{id}", guarded(authH.RevokeSession))
	mux.Handle("POST /api/v1/auth/sessions/revoke-all", guarded(authH.RevokeOtherSessions))

	mux.Handle("POST /api/v1/contacts/requests", guarded(contactsH.Send))
	mux.Handle("GET /api/v1/contacts/requests/incoming", guarded(contactsH.Incoming))
	mux.Handle("GET /api/v1/contacts/requests/outgoing", guarded(contactsH.Outgoing))
	mux.Handle("POST /api/v1/contacts/requests/{id}/accept", guarded(contactsH.Accept))
	mux.Handle("POST /api/v1/contacts/requests/{id}/reject", guarded(contactsH.Reject))
	mux.Handle("GET /api/v1/contacts", guarded(contactsH.List))
	mux.Handle("GET /api/v1/contacts/status/{userId}", guarded(contactsH.Status))

	mux.Handle("POST /api/v1/username", guarded(usersH.SetUsername))
	mux.Handle("GET /api/v1/username/{username}", guarded(usersH.LookupUsername))

	mux.Handle("GET /api/v1/chats/{id}", guarded(chatsH.Get))
	mux.Handle("POST /api/v1/chats/find-or-create", guarded(chatsH.FindOrCreate))

	mux.Handle("GET /api/v1/users/online-status/{userId}", guarded(usersH.OnlineStatus))
	mux.Handle("POST /api/v1/users/bulk-online-status", guarded(usersH.BulkOnlineStatus))

	if deps.Media != nil {
		mediaH := MediaHandler{Media: deps.Media}
		mux.Handle("POST /api/v1/media/upload-url", guarded(mediaH.UploadURL))
		mux.Handle("GET /api/v1/media/download-url", guarded(mediaH.DownloadURL))
		mux.Handle("DELETE /api/v1/media", guarded(mediaH.Delete))
	}

	if deps.Realtime != nil {
		mux.Handle("GET /ws", deps.Realtime)
	}
}
