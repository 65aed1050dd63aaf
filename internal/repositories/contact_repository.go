package repositories

import (
	"context"

	"github.com/sealchat/backend/internal/models"
)

// ContactRequestRepository defines data access for the contact request
// workflow. At most one request row exists per unordered user pair,
// enforced by a unique index on the canonical pair.
type ContactRequestRepository interface {
	Create(ctx context.Context, request models.ContactRequest) error
	FindBetween(ctx context.Context, userID, otherUserID string) (models.ContactRequest, error)
	// FindPendingForReceiver loads a pending request by id only if it is
	// addressed to the given user.
	FindPendingForReceiver(ctx context.Context, requestID, toUserID string) (models.ContactRequest, error)
	// MarkResolved transitions a pending request to a terminal status.
	// Requests already resolved are not touched (ErrNotFound).
	MarkResolved(ctx context.Context, requestID, status string) error
	ListIncomingPending(ctx context.Context, userID string) ([]models.ContactRequest, error)
	ListOutgoing(ctx context.Context, userID string) ([]models.ContactRequest, error)
	// ListAccepted returns accepted requests involving the user, most
	// recently resolved first.
	ListAccepted(ctx context.Context, userID string) ([]models.ContactRequest, error)
}
