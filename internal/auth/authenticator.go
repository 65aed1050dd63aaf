package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sealchat/backend/internal/repositories"
)

// Authenticator turns raw access tokens into request principals. It is
// the single guard used by both the REST surface and the websocket
// handshake.
type Authenticator struct {
	sessions *SessionStore
	users    repositories.UserRepository
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(sessions *SessionStore, users repositories.UserRepository) *Authenticator {
	if sessions == nil || users == nil {
		panic("auth: session store and user repository must not be nil")
	}
	return &Authenticator{sessions: sessions, users: users}
}

// ValidatePrincipal resolves an access token to its principal,
// rejecting revoked and expired sessions.
func (a *Authenticator) ValidatePrincipal(ctx context.Context, accessToken string) (Principal, error) {
	session, err := a.sessions.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return Principal{}, err
	}

	user, err := a.users.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Principal{}, ErrInvalidToken
		}
		return Principal{}, fmt.Errorf("load session user: %w", err)
	}

	return Principal{
		UserID:    user.ID,
		SessionID: session.ID,
		PublicKey: user.PublicKey,
	}, nil
}
