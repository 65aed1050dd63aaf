package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sealchat/backend/internal/chats"
	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/repositories"
)

// ErrUnknownType indicates an envelope carried an unsupported content type.
var ErrUnknownType = errors.New("unknown message type")

// Recorder resolves the chat for a message envelope and persists its
// audit metadata. The encrypted body is relayed, never stored; only the
// recipient's encrypted key copy and routing data reach the database.
type Recorder struct {
	metadata repositories.MessageRepository
	resolver *chats.Resolver
	now      func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(metadata repositories.MessageRepository, resolver *chats.Resolver) *Recorder {
	if metadata == nil || resolver == nil {
		panic("messages: repository and resolver must not be nil")
	}
	return &Recorder{metadata: metadata, resolver: resolver, now: time.Now}
}

// Record finds or creates the private chat between sender and recipient
// and stores one metadata row. Returns the chat id for the relay fan-out.
func (r *Recorder) Record(ctx context.Context, senderID, recipientID, msgType string, encryptedKey []byte, clientTimestamp time.Time) (string, error) {
	switch msgType {
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile:
	default:
		return "", ErrUnknownType
	}

	chat, err := r.resolver.FindOrCreatePrivateChat(ctx, senderID, recipientID)
	if err != nil {
		return "", fmt.Errorf("resolve chat: %w", err)
	}

	metadata := models.MessageMetadata{
		ID:           uuid.NewString(),
		ChatID:       chat.ID,
		SenderID:     senderID,
		Type:         msgType,
		EncryptedKey: encryptedKey,
		Timestamp:    clientTimestamp.UTC(),
		CreatedAt:    r.now().UTC(),
	}

	if err := r.metadata.Create(ctx, metadata); err != nil {
		return "", fmt.Errorf("persist message metadata: %w", err)
	}
	return chat.ID, nil
}
