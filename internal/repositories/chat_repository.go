package repositories

import (
	"context"

	"github.com/sealchat/backend/internal/models"
)

// ChatRepository defines data access for chats and their memberships.
type ChatRepository interface {
	FindPrivateByPairKey(ctx context.Context, pairKey string) (models.Chat, error)
	// CreatePrivate inserts a chat plus its two member rows in one
	// transaction. A concurrent creation of the same pair surfaces as
	// ErrConflict via the pair_key unique index.
	CreatePrivate(ctx context.Context, chat models.Chat, members [2]models.ChatMember) error
	GetByID(ctx context.Context, chatID string) (models.Chat, error)
}

// MessageRepository defines data access for per-message audit records.
type MessageRepository interface {
	Create(ctx context.Context, metadata models.MessageMetadata) error
}
