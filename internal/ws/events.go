package ws

import (
	"encoding/json"
	"time"

	"github.com/sealchat/backend/internal/models"
)

// Inbound event names.
const (
	EventMessage   = "message"
	EventHeartbeat = "heartbeat"
)

// Outbound event names.
const (
	EventMessageNew             = "message:new"
	EventMessageError           = "message:error"
	EventContactRequestReceived = "contact_request_received"
	EventContactRequestAccepted = "contact_request_accepted"
	EventContactRequestRejected = "contact_request_rejected"
	EventUserOnline             = "user_online"
	EventUserOffline            = "user_offline"
)

// Envelope is the frame exchanged over the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// MessagePayload is the inbound message envelope. Both blobs are opaque
// to the server and travel base64-encoded over the wire.
type MessagePayload struct {
	To               string `json:"to"`
	Type             string `json:"type"`
	EncryptedContent []byte `json:"encryptedContent"`
	EncryptedKey     []byte `json:"encryptedKey"`
	Timestamp        int64  `json:"timestamp"`
}

// MessageNew is fanned out to every socket in the recipient's room. The
// blobs pass through unmodified.
type MessageNew struct {
	From             string `json:"from"`
	ChatID           string `json:"chatId"`
	Type             string `json:"type"`
	EncryptedContent []byte `json:"encryptedContent"`
	EncryptedKey     []byte `json:"encryptedKey"`
	Timestamp        int64  `json:"timestamp"`
}

// MessageError is sent back to the originating socket only.
type MessageError struct {
	Error string `json:"error"`
}

// ContactRequestReceived notifies the recipient of a new pending request.
type ContactRequestReceived struct {
	RequestID string         `json:"requestId"`
	FromUser  models.Profile `json:"fromUser"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ContactRequestAccepted notifies the original sender, carrying the
// materialized chat id.
type ContactRequestAccepted struct {
	ByUser    models.Profile `json:"byUser"`
	ChatID    string         `json:"chatId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ContactRequestRejected notifies the original sender.
type ContactRequestRejected struct {
	ByUser    models.Profile `json:"byUser"`
	Timestamp time.Time      `json:"timestamp"`
}

// PresenceEvent announces a user_online or user_offline transition.
type PresenceEvent struct {
	UserID string `json:"userId"`
}

func marshalEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
