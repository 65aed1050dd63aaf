package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sealchat/backend/internal/chats"
	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/repositories"
)

var (
	// ErrUserNotFound indicates one of the parties does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrRequestNotFound indicates no pending request matches the id for the acting user.
	ErrRequestNotFound = errors.New("contact request not found")
	// ErrSelfRequest indicates a user attempted to contact themselves.
	ErrSelfRequest = errors.New("cannot send request to yourself")
	// ErrRequestExists indicates a request already exists between the pair,
	// in either direction and in any state.
	ErrRequestExists = errors.New("contact request already exists")
	// ErrMessageTooLong indicates the optional greeting exceeds the limit.
	ErrMessageTooLong = errors.New("message exceeds 200 characters")
)

// Request status as seen from one side of a pair.
const (
	StatusNone      = "none"
	StatusSent      = "sent"
	StatusReceived  = "received"
	StatusConnected = "connected"
)

const maxMessageLength = 200

// Notifier delivers realtime contact notifications. Implemented by the
// websocket hub; a no-op implementation is fine for tests.
type Notifier interface {
	NotifyContactRequest(toUserID string, from models.Profile, requestID, message string)
	NotifyRequestAccepted(toUserID string, by models.Profile, chatID string)
	NotifyRequestRejected(toUserID string, by models.Profile)
}

// Workflow drives a contact request through pending to a terminal
// accepted or rejected state, materializing the private chat on
// acceptance.
type Workflow struct {
	requests repositories.ContactRequestRepository
	users    repositories.UserRepository
	resolver *chats.Resolver
	notifier Notifier
	now      func() time.Time
}

// NewWorkflow constructs the contact request workflow.
func NewWorkflow(requests repositories.ContactRequestRepository, users repositories.UserRepository, resolver *chats.Resolver, notifier Notifier) *Workflow {
	if requests == nil || users == nil || resolver == nil {
		panic("contacts: repositories and resolver must not be nil")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Workflow{
		requests: requests,
		users:    users,
		resolver: resolver,
		notifier: notifier,
		now:      time.Now,
	}
}

// SendRequest creates a pending request and notifies the recipient. Any
// existing request between the pair, regardless of direction or state,
// blocks a new one.
func (w *Workflow) SendRequest(ctx context.Context, fromUserID, toUserID, message string) (models.ContactRequest, error) {
	if fromUserID == toUserID {
		return models.ContactRequest{}, ErrSelfRequest
	}

	message = strings.TrimSpace(message)
	// The limit counts characters, not bytes; multibyte text gets the
	// full 200.
	if utf8.RuneCountInString(message) > maxMessageLength {
		return models.ContactRequest{}, ErrMessageTooLong
	}

	fromProfile, err := w.users.GetProfile(ctx, fromUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ContactRequest{}, ErrUserNotFound
		}
		return models.ContactRequest{}, fmt.Errorf("load sender profile: %w", err)
	}
	if _, err := w.users.FindByID(ctx, toUserID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ContactRequest{}, ErrUserNotFound
		}
		return models.ContactRequest{}, fmt.Errorf("load recipient: %w", err)
	}

	if _, err := w.requests.FindBetween(ctx, fromUserID, toUserID); err == nil {
		return models.ContactRequest{}, ErrRequestExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.ContactRequest{}, fmt.Errorf("check existing request: %w", err)
	}

	now := w.now().UTC()
	request := models.ContactRequest{
		ID:         uuid.NewString(),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.ContactRequestPending,
		Message:    message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := w.requests.Create(ctx, request); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			// Pair index caught a concurrent request.
			return models.ContactRequest{}, ErrRequestExists
		case errors.Is(err, repositories.ErrNotFound):
			return models.ContactRequest{}, ErrUserNotFound
		}
		return models.ContactRequest{}, fmt.Errorf("create contact request: %w", err)
	}

	w.notifier.NotifyContactRequest(toUserID, fromProfile, request.ID, message)
	return request, nil
}

// AcceptRequest transitions a pending request to accepted, materializes
// the private chat and notifies the original sender with the chat id.
func (w *Workflow) AcceptRequest(ctx context.Context, requestID, actingUserID string) (string, error) {
	request, err := w.loadPending(ctx, requestID, actingUserID)
	if err != nil {
		return "", err
	}

	if err := w.requests.MarkResolved(ctx, requestID, models.ContactRequestAccepted); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrRequestNotFound
		}
		return "", fmt.Errorf("accept contact request: %w", err)
	}

	chat, err := w.resolver.FindOrCreatePrivateChat(ctx, request.FromUserID, request.ToUserID)
	if err != nil {
		return "", fmt.Errorf("materialize private chat: %w", err)
	}

	byProfile, err := w.users.GetProfile(ctx, actingUserID)
	if err != nil {
		return "", fmt.Errorf("load accepting profile: %w", err)
	}

	w.notifier.NotifyRequestAccepted(request.FromUserID, byProfile, chat.ID)
	return chat.ID, nil
}

// RejectRequest transitions a pending request to rejected and notifies
// the sender. No chat is created.
func (w *Workflow) RejectRequest(ctx context.Context, requestID, actingUserID string) error {
	request, err := w.loadPending(ctx, requestID, actingUserID)
	if err != nil {
		return err
	}

	if err := w.requests.MarkResolved(ctx, requestID, models.ContactRequestRejected); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("reject contact request: %w", err)
	}

	byProfile, err := w.users.GetProfile(ctx, actingUserID)
	if err != nil {
		return fmt.Errorf("load rejecting profile: %w", err)
	}

	w.notifier.NotifyRequestRejected(request.FromUserID, byProfile)
	return nil
}

func (w *Workflow) loadPending(ctx context.Context, requestID, actingUserID string) (models.ContactRequest, error) {
	request, err := w.requests.FindPendingForReceiver(ctx, requestID, actingUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ContactRequest{}, ErrRequestNotFound
		}
		return models.ContactRequest{}, fmt.Errorf("load pending request: %w", err)
	}
	return request, nil
}

// CheckRequestStatus derives the relationship between two users as seen
// from userID. The two directions always agree: both sides report
// connected for an accepted pair, and a pending request reports sent on
// one side and received on the other.
func (w *Workflow) CheckRequestStatus(ctx context.Context, userID, otherUserID string) (string, error) {
	request, err := w.requests.FindBetween(ctx, userID, otherUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return StatusNone, nil
		}
		return "", fmt.Errorf("check request status: %w", err)
	}

	switch {
	case request.Status == models.ContactRequestAccepted:
		return StatusConnected, nil
	case request.Status == models.ContactRequestRejected:
		return StatusNone, nil
	case request.FromUserID == userID:
		return StatusSent, nil
	default:
		return StatusReceived, nil
	}
}

// Contact is one accepted relationship resolved to the other party.
type Contact struct {
	RequestID  string         `json:"id"`
	User       models.Profile `json:"user"`
	AcceptedAt time.Time      `json:"acceptedAt"`
}

// GetAcceptedContacts lists accepted relationships for the user,
// resolved to the peer's public profile, most recently accepted first.
func (w *Workflow) GetAcceptedContacts(ctx context.Context, userID string) ([]Contact, error) {
	requests, err := w.requests.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list accepted contacts: %w", err)
	}

	contacts := make([]Contact, 0, len(requests))
	for _, request := range requests {
		otherID := request.FromUserID
		if otherID == userID {
			otherID = request.ToUserID
		}

		profile, err := w.users.GetProfile(ctx, otherID)
		if err != nil {
			return nil, fmt.Errorf("load contact profile: %w", err)
		}

		contacts = append(contacts, Contact{
			RequestID:  request.ID,
			User:       profile,
			AcceptedAt: request.UpdatedAt,
		})
	}
	return contacts, nil
}

// IncomingRequests lists pending requests addressed to the user, with
// sender profiles attached.
func (w *Workflow) IncomingRequests(ctx context.Context, userID string) ([]RequestView, error) {
	requests, err := w.requests.ListIncomingPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	return w.toViews(ctx, requests, func(r models.ContactRequest) string { return r.FromUserID })
}

// OutgoingRequests lists requests the user has sent, with recipient
// profiles attached.
func (w *Workflow) OutgoingRequests(ctx context.Context, userID string) ([]RequestView, error) {
	requests, err := w.requests.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list outgoing requests: %w", err)
	}
	return w.toViews(ctx, requests, func(r models.ContactRequest) string { return r.ToUserID })
}

// RequestView is a contact request resolved to the counterparty's profile.
type RequestView struct {
	ID        string         `json:"id"`
	User      models.Profile `json:"user"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (w *Workflow) toViews(ctx context.Context, requests []models.ContactRequest, other func(models.ContactRequest) string) ([]RequestView, error) {
	views := make([]RequestView, 0, len(requests))
	for _, request := range requests {
		profile, err := w.users.GetProfile(ctx, other(request))
		if err != nil {
			return nil, fmt.Errorf("load request profile: %w", err)
		}
		views = append(views, RequestView{
			ID:        request.ID,
			User:      profile,
			Status:    request.Status,
			Message:   request.Message,
			CreatedAt: request.CreatedAt,
		})
	}
	return views, nil
}

// WithNowFunc overrides the clock. Tests only.
func (w *Workflow) WithNowFunc(now func() time.Time) {
	w.now = now
}

type noopNotifier struct{}

func (noopNotifier) NotifyContactRequest(string, models.Profile, string, string) {}
func (noopNotifier) NotifyRequestAccepted(string, models.Profile, string)        {}
func (noopNotifier) NotifyRequestRejected(string, models.Profile)                {}
