package models

import "time"

// User represents an account anchored by its Ed25519 public key. The
// server never learns the matching private key; the public key is the
// identity.
type User struct {
	ID          string
	PublicKey   []byte
	DisplayName string
	CreatedAt   time.Time
}

// PublicKeyLength is the required length of a raw user public key.
const PublicKeyLength = 32

// Username is the optional, unique handle bound to a user. Only
// searchable usernames are discoverable by other users.
type Username struct {
	ID           string
	UserID       string
	Username     string
	IsSearchable bool
	CreatedAt    time.Time
}

// Session represents one authenticated device. Only the hash of the
// access token is persisted; the refresh token is stored raw and
// rotated on every refresh. Sessions are revoked, never deleted.
type Session struct {
	ID              string
	UserID          string
	DeviceID        string
	DeviceModel     string
	IPAddress       string
	AccessTokenHash string
	RefreshToken    string
	ExpiresAt       time.Time
	Revoked         bool
	CreatedAt       time.Time
	LastActiveAt    time.Time
}

// SessionTokens groups the raw credentials returned to a client exactly
// once, at login or refresh time.
type SessionTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Contact request states. pending is the only non-terminal state.
const (
	ContactRequestPending  = "pending"
	ContactRequestAccepted = "accepted"
	ContactRequestRejected = "rejected"
)

// ContactRequest is a directed invitation from one user to another.
type ContactRequest struct {
	ID         string
	FromUserID string
	ToUserID   string
	Status     string
	Message    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Chat types. Group chats are modelled in the schema but not yet
// reachable through any operation.
const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"
)

// Chat is a conversation container. For private chats PairKey holds the
// canonical sorted member pair and is unique per pair.
type Chat struct {
	ID        string
	Type      string
	Title     string
	AvatarURL string
	PairKey   string
	CreatedAt time.Time
	Members   []ChatMember
}

// ChatMember links a user into a chat with a role.
type ChatMember struct {
	ChatID   string
	UserID   string
	Role     string
	JoinedAt time.Time
}

// RoleMember is the default chat member role.
const RoleMember = "member"

// Message content types accepted over the realtime channel.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
)

// MessageMetadata is the per-message audit record. The encrypted body
// never reaches the database; only the recipient's encrypted key copy
// and routing metadata are stored.
type MessageMetadata struct {
	ID           string
	ChatID       string
	SenderID     string
	Type         string
	MediaURL     string
	MediaSize    int64
	MimeType     string
	EncryptedKey []byte
	Timestamp    time.Time
	CreatedAt    time.Time
}

// Profile is the public projection of a user shared with peers.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
}
