package repositories

import (
	"context"

	"github.com/sealchat/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByPublicKey(ctx context.Context, publicKey []byte) (models.User, error)
	GetProfile(ctx context.Context, id string) (models.Profile, error)
}

// UsernameRepository defines data access for the optional unique
// handle bound to a user.
type UsernameRepository interface {
	Set(ctx context.Context, userID, username string, searchable bool) (models.Username, error)
	FindSearchable(ctx context.Context, username string) (models.Profile, []byte, error)
}
