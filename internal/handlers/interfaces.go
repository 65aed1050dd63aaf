package handlers

import (
	"context"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/contacts"
	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/users"
)

// UserService captures the account operations required by the auth and
// username handlers.
type UserService interface {
	Register(ctx context.Context, publicKeyBase64, displayName string) (models.User, error)
	Profile(ctx context.Context, userID string) (users.ProfileResponse, error)
	SetUsername(ctx context.Context, userID, username string, searchable bool) (models.Username, error)
	FindByUsername(ctx context.Context, username string) (users.LookupResult, error)
}

// SessionService issues, rotates and revokes per-device credentials.
type SessionService interface {
	CreateSession(ctx context.Context, userID, deviceID, deviceModel, ipAddress string) (models.Session, models.SessionTokens, error)
	RefreshSession(ctx context.Context, refreshToken, ipAddress string) (models.Session, models.SessionTokens, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
	RevokeSessionByID(ctx context.Context, userID, targetSessionID, currentSessionID string) error
	RevokeAllSessions(ctx context.Context, userID, exceptSessionID string) error
	FindActiveSessions(ctx context.Context, userID, currentSessionID string) ([]auth.SessionInfo, error)
}

// ContactService captures the contact request workflow operations.
type ContactService interface {
	SendRequest(ctx context.Context, fromUserID, toUserID, message string) (models.ContactRequest, error)
	AcceptRequest(ctx context.Context, requestID, actingUserID string) (string, error)
	RejectRequest(ctx context.Context, requestID, actingUserID string) error
	CheckRequestStatus(ctx context.Context, userID, otherUserID string) (string, error)
	GetAcceptedContacts(ctx context.Context, userID string) ([]contacts.Contact, error)
	IncomingRequests(ctx context.Context, userID string) ([]contacts.RequestView, error)
	OutgoingRequests(ctx context.Context, userID string) ([]contacts.RequestView, error)
}

// ChatService resolves and fetches conversations.
type ChatService interface {
	GetChat(ctx context.Context, chatID, userID string) (models.Chat, error)
	FindOrCreatePrivateChat(ctx context.Context, userA, userB string) (models.Chat, error)
}

// PresenceReader answers online-status queries.
type PresenceReader interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
	BulkIsOnline(ctx context.Context, userIDs []string) (map[string]bool, error)
}

// MediaSigner issues presigned URLs for direct media transfer.
type MediaSigner interface {
	UploadURL(ctx context.Context, key, contentType string) (string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
