package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sealchat/backend/internal/contacts"
	"github.com/sealchat/backend/internal/logging"
	"github.com/sealchat/backend/internal/messages"
	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/presence"
)

// Hub owns every live socket and the per-user broadcast rooms. It
// relays message envelopes, fans out presence transitions and delivers
// contact notifications. All methods are safe for concurrent use.
type Hub struct {
	recorder *messages.Recorder
	presence presence.Tracker
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	byUser  map[string]map[*Client]struct{}
}

// NewHub constructs a Hub.
func NewHub(recorder *messages.Recorder, tracker presence.Tracker, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		recorder: recorder,
		presence: tracker,
		logger:   logger,
		now:      time.Now,
		clients:  make(map[*Client]struct{}),
		byUser:   make(map[string]map[*Client]struct{}),
	}
}

// Register joins an authenticated client into its user room, marks the
// user online and announces the transition to everyone else. Presence
// store failures degrade silently; the connection stays usable.
func (h *Hub) Register(ctx context.Context, c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	room := h.byUser[c.UserID()]
	if room == nil {
		room = make(map[*Client]struct{})
		h.byUser[c.UserID()] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()

	if err := h.presence.MarkOnline(ctx, c.UserID()); err != nil {
		h.logger.Warn("presence mark online failed", "userId", c.UserID(), "error", err)
	}

	h.broadcastExcept(c.UserID(), EventUserOnline, PresenceEvent{UserID: c.UserID()})
}

// Unregister drops the client. When the user's last socket goes away
// the user is marked offline and the transition is announced.
func (h *Hub) Unregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	room := h.byUser[c.UserID()]
	delete(room, c)
	last := len(room) == 0
	if last {
		delete(h.byUser, c.UserID())
	}
	h.mu.Unlock()

	c.closeSend()

	if !last {
		return
	}

	if err := h.presence.MarkOffline(ctx, c.UserID()); err != nil {
		h.logger.Warn("presence mark offline failed", "userId", c.UserID(), "error", err)
	}

	h.broadcastExcept(c.UserID(), EventUserOffline, PresenceEvent{UserID: c.UserID()})
}

// Heartbeat refreshes the presence TTL for an authenticated client.
func (h *Hub) Heartbeat(ctx context.Context, c *Client) {
	if err := h.presence.MarkOnline(ctx, c.UserID()); err != nil {
		h.logger.Warn("presence heartbeat failed", "userId", c.UserID(), "error", err)
	}
}

// HandleEnvelope dispatches one inbound frame from a client. A bad or
// failing frame answers the sender with message:error and never tears
// down the connection.
func (h *Hub) HandleEnvelope(ctx context.Context, c *Client, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		h.emitTo(c, EventMessageError, MessageError{Error: "malformed envelope"})
		return
	}

	switch envelope.Event {
	case EventHeartbeat:
		h.Heartbeat(ctx, c)
	case EventMessage:
		h.handleMessage(ctx, c, envelope.Data)
	default:
		h.emitTo(c, EventMessageError, MessageError{Error: "unknown event"})
	}
}

func (h *Hub) handleMessage(ctx context.Context, c *Client, data json.RawMessage) {
	ctx, span := logging.StartSpan(ctx, "relay message")
	defer span.End()

	var payload MessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.To == "" {
		h.emitTo(c, EventMessageError, MessageError{Error: "malformed message payload"})
		return
	}

	chatID, err := h.recorder.Record(ctx, c.UserID(), payload.To, payload.Type,
		payload.EncryptedKey, time.UnixMilli(payload.Timestamp))
	if err != nil {
		// No partial delivery: when the metadata write fails the
		// recipient fan-out is skipped entirely.
		logging.FromContext(ctx).Error("message relay failed", "from", c.UserID(), "to", payload.To, "error", err)
		h.emitTo(c, EventMessageError, MessageError{Error: "failed to send message"})
		return
	}

	h.EmitToUser(payload.To, EventMessageNew, MessageNew{
		From:             c.UserID(),
		ChatID:           chatID,
		Type:             payload.Type,
		EncryptedContent: payload.EncryptedContent,
		EncryptedKey:     payload.EncryptedKey,
		Timestamp:        payload.Timestamp,
	})
}

// EmitToUser delivers one event to every socket in the user's room.
// Offline users simply receive nothing; there is no replay queue.
func (h *Hub) EmitToUser(userID, event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, frame)
	}
}

// broadcastExcept sends one event to every connected socket not owned
// by the excluded user. O(connected sockets); fine at this scale.
func (h *Hub) broadcastExcept(excludeUserID, event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.UserID() != excludeUserID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, frame)
	}
}

func (h *Hub) emitTo(c *Client, event string, data any) {
	frame, err := marshalEvent(event, data)
	if err != nil {
		h.logger.Error("encode event", "event", event, "error", err)
		return
	}
	h.deliver(c, frame)
}

// deliver enqueues a frame, dropping the client if its send buffer is
// full. A slow consumer must never block the hub.
func (h *Hub) deliver(c *Client, frame []byte) {
	if !c.trySend(frame) {
		h.logger.Warn("dropping slow client", "userId", c.UserID())
		h.Unregister(context.Background(), c)
	}
}

// ConnectedUsers reports how many sockets each currently-connected user
// holds. Used by tests and diagnostics.
func (h *Hub) ConnectedUsers() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	counts := make(map[string]int, len(h.byUser))
	for userID, room := range h.byUser {
		counts[userID] = len(room)
	}
	return counts
}

// NotifyContactRequest implements contacts.Notifier.
func (h *Hub) NotifyContactRequest(toUserID string, from models.Profile, requestID, message string) {
	h.EmitToUser(toUserID, EventContactRequestReceived, ContactRequestReceived{
		RequestID: requestID,
		FromUser:  from,
		Message:   message,
		Timestamp: h.now().UTC(),
	})
}

// NotifyRequestAccepted implements contacts.Notifier.
func (h *Hub) NotifyRequestAccepted(toUserID string, by models.Profile, chatID string) {
	h.EmitToUser(toUserID, EventContactRequestAccepted, ContactRequestAccepted{
		ByUser:    by,
		ChatID:    chatID,
		Timestamp: h.now().UTC(),
	})
}

// NotifyRequestRejected implements contacts.Notifier.
func (h *Hub) NotifyRequestRejected(toUserID string, by models.Profile) {
	h.EmitToUser(toUserID, EventContactRequestRejected, ContactRequestRejected{
		ByUser:    by,
		Timestamp: h.now().UTC(),
	})
}

var _ contacts.Notifier = (*Hub)(nil)
