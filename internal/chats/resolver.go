package chats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/repositories"
)

var (
	// ErrInvalidParticipants indicates an empty or self-referencing user pair.
	ErrInvalidParticipants = errors.New("two distinct user ids are required")
	// ErrNotFound indicates the requested chat does not exist.
	ErrNotFound = errors.New("chat not found")
	// ErrNotMember indicates the caller does not belong to the chat.
	ErrNotMember = errors.New("not a chat member")
)

// Resolver guarantees a single canonical private chat per unordered
// user pair.
type Resolver struct {
	chats repositories.ChatRepository
	now   func() time.Time
}

// NewResolver constructs a Resolver over the given repository.
func NewResolver(chats repositories.ChatRepository) *Resolver {
	if chats == nil {
		panic("chats: chat repository must not be nil")
	}
	return &Resolver{chats: chats, now: time.Now}
}

// PairKey canonicalizes an unordered user pair into the deterministic
// lookup key used for private chats.
func PairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}

// FindOrCreatePrivateChat returns the private chat for the pair,
// creating it with exactly two member rows on first contact. Idempotent
// and commutative: both argument orders resolve to the same chat. A
// concurrent first-contact race is closed by the pair-key uniqueness:
// the losing writer re-reads the winner's chat.
func (r *Resolver) FindOrCreatePrivateChat(ctx context.Context, userA, userB string) (models.Chat, error) {
	if userA == "" || userB == "" || userA == userB {
		return models.Chat{}, ErrInvalidParticipants
	}

	pairKey := PairKey(userA, userB)

	chat, err := r.chats.FindPrivateByPairKey(ctx, pairKey)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.Chat{}, fmt.Errorf("find private chat: %w", err)
	}

	first, second := userA, userB
	if second < first {
		first, second = second, first
	}

	now := r.now().UTC()
	chat = models.Chat{
		ID:        uuid.NewString(),
		Type:      models.ChatTypePrivate,
		PairKey:   pairKey,
		CreatedAt: now,
	}
	members := [2]models.ChatMember{
		{ChatID: chat.ID, UserID: first, Role: models.RoleMember, JoinedAt: now},
		{ChatID: chat.ID, UserID: second, Role: models.RoleMember, JoinedAt: now},
	}

	if err := r.chats.CreatePrivate(ctx, chat, members); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// Lost the creation race; the pair's chat now exists.
			existing, ferr := r.chats.FindPrivateByPairKey(ctx, pairKey)
			if ferr != nil {
				return models.Chat{}, fmt.Errorf("re-read private chat after conflict: %w", ferr)
			}
			return existing, nil
		}
		return models.Chat{}, fmt.Errorf("create private chat: %w", err)
	}

	chat.Members = members[:]
	return chat, nil
}

// GetChat loads a chat with its members, rejecting callers that are not
// members themselves.
func (r *Resolver) GetChat(ctx context.Context, chatID, userID string) (models.Chat, error) {
	chat, err := r.chats.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Chat{}, ErrNotFound
		}
		return models.Chat{}, fmt.Errorf("get chat: %w", err)
	}

	for _, member := range chat.Members {
		if member.UserID == userID {
			return chat, nil
		}
	}
	return models.Chat{}, ErrNotMember
}
