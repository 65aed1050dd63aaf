package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/repositories"
)

var (
	// ErrSessionLimit indicates the user already holds the maximum number of active sessions.
	ErrSessionLimit = errors.New("maximum number of active sessions reached")
	// ErrInvalidToken indicates the presented access or refresh token maps to no usable session.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrSessionNotFound indicates no matching non-revoked session exists for the user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCannotRevokeSelf indicates an attempt to revoke the caller's own session
	// through the device-management endpoint; logout is the path for that.
	ErrCannotRevokeSelf = errors.New("cannot revoke current session")
)

const (
	// MaxActiveSessions caps concurrently active devices per user.
	MaxActiveSessions = 5

	accessTokenBytes  = 32
	refreshTokenBytes = 64
)

// SessionStore issues, validates, rotates and revokes per-device
// credentials. Raw tokens leave this package exactly once, at creation
// or rotation; only the access-token hash is ever persisted.
type SessionStore struct {
	sessions   repositories.SessionRepository
	sessionTTL time.Duration
	now        func() time.Time
}

// NewSessionStore constructs a SessionStore over the given repository.
func NewSessionStore(sessions repositories.SessionRepository, sessionTTL time.Duration) *SessionStore {
	if sessions == nil {
		panic("auth: session repository must not be nil")
	}
	if sessionTTL <= 0 {
		sessionTTL = 30 * 24 * time.Hour
	}
	return &SessionStore{
		sessions:   sessions,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// CreateSession registers a new device session and returns the raw
// token pair. Fails with ErrSessionLimit once the user holds
// MaxActiveSessions non-revoked sessions.
func (s *SessionStore) CreateSession(ctx context.Context, userID, deviceID, deviceModel, ipAddress string) (models.Session, models.SessionTokens, error) {
	if userID == "" || deviceID == "" {
		return models.Session{}, models.SessionTokens{}, errors.New("user id and device id must be provided")
	}

	accessToken, err := randomToken(accessTokenBytes)
	if err != nil {
		return models.Session{}, models.SessionTokens{}, err
	}
	refreshToken, err := randomToken(refreshTokenBytes)
	if err != nil {
		return models.Session{}, models.SessionTokens{}, err
	}

	now := s.now().UTC()
	session := models.Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		DeviceID:        deviceID,
		DeviceModel:     deviceModel,
		IPAddress:       ipAddress,
		AccessTokenHash: HashToken(accessToken),
		RefreshToken:    refreshToken,
		ExpiresAt:       now.Add(s.sessionTTL),
		CreatedAt:       now,
		LastActiveAt:    now,
	}

	if err := s.sessions.CreateWithLimit(ctx, session, MaxActiveSessions); err != nil {
		if errors.Is(err, repositories.ErrLimitExceeded) {
			return models.Session{}, models.SessionTokens{}, ErrSessionLimit
		}
		return models.Session{}, models.SessionTokens{}, fmt.Errorf("create session: %w", err)
	}

	return session, models.SessionTokens{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ValidateAccessToken resolves a raw access token to its session. The
// token is valid only when a non-revoked, unexpired session holds its hash.
func (s *SessionStore) ValidateAccessToken(ctx context.Context, accessToken string) (models.Session, error) {
	if accessToken == "" {
		return models.Session{}, ErrInvalidToken
	}

	session, err := s.sessions.FindByAccessTokenHash(ctx, HashToken(accessToken))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Session{}, ErrInvalidToken
		}
		return models.Session{}, fmt.Errorf("validate access token: %w", err)
	}

	if s.now().UTC().After(session.ExpiresAt) {
		return models.Session{}, ErrInvalidToken
	}
	return session, nil
}

// RefreshSession rotates both tokens keyed by the old refresh token.
// The rotation is a single guarded update, so of two racing refresh
// calls exactly one wins and the stale token becomes unusable.
func (s *SessionStore) RefreshSession(ctx context.Context, refreshToken, ipAddress string) (models.Session, models.SessionTokens, error) {
	if refreshToken == "" {
		return models.Session{}, models.SessionTokens{}, ErrInvalidToken
	}

	newAccessToken, err := randomToken(accessTokenBytes)
	if err != nil {
		return models.Session{}, models.SessionTokens{}, err
	}
	newRefreshToken, err := randomToken(refreshTokenBytes)
	if err != nil {
		return models.Session{}, models.SessionTokens{}, err
	}

	session, err := s.sessions.Rotate(ctx, refreshToken, HashToken(newAccessToken), newRefreshToken, ipAddress, s.now().UTC())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Session{}, models.SessionTokens{}, ErrInvalidToken
		}
		return models.Session{}, models.SessionTokens{}, fmt.Errorf("refresh session: %w", err)
	}

	return session, models.SessionTokens{AccessToken: newAccessToken, RefreshToken: newRefreshToken}, nil
}

// RevokeSession marks one owned session revoked. Used by logout.
func (s *SessionStore) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := s.sessions.Revoke(ctx, userID, sessionID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeSessionByID revokes another device's session on behalf of the
// user. Revoking the session making the request is rejected so a device
// cannot lock itself out through device management.
func (s *SessionStore) RevokeSessionByID(ctx context.Context, userID, targetSessionID, currentSessionID string) error {
	if targetSessionID == currentSessionID {
		return ErrCannotRevokeSelf
	}
	return s.RevokeSession(ctx, userID, targetSessionID)
}

// RevokeAllSessions revokes every active session of the user except the
// one identified by exceptSessionID (pass "" to revoke all).
func (s *SessionStore) RevokeAllSessions(ctx context.Context, userID, exceptSessionID string) error {
	if err := s.sessions.RevokeAll(ctx, userID, exceptSessionID); err != nil {
		return fmt.Errorf("revoke all sessions: %w", err)
	}
	return nil
}

// SessionInfo is the device listing entry returned to clients. Token
// material is deliberately absent.
type SessionInfo struct {
	ID           string    `json:"id"`
	DeviceModel  string    `json:"deviceModel"`
	IPAddress    string    `json:"ipAddress"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Current      bool      `json:"current"`
}

// FindActiveSessions lists non-revoked sessions for the user, most
// recently active first, flagging the caller's own session.
func (s *SessionStore) FindActiveSessions(ctx context.Context, userID, currentSessionID string) ([]SessionInfo, error) {
	sessions, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		model := session.DeviceModel
		if model == "" {
			model = "Unknown device"
		}
		infos = append(infos, SessionInfo{
			ID:           session.ID,
			DeviceModel:  model,
			IPAddress:    session.IPAddress,
			CreatedAt:    session.CreatedAt,
			LastActiveAt: session.LastActiveAt,
			Current:      session.ID == currentSessionID,
		})
	}
	return infos, nil
}

// WithNowFunc overrides the clock. Tests only.
func (s *SessionStore) WithNowFunc(now func() time.Time) {
	s.now = now
}

// HashToken derives the storable one-way hash of a raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
