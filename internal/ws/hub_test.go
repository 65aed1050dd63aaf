package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sealchat/backend/internal/auth"
	"github.com/sealchat/backend/internal/chats"
	"github.com/sealchat/backend/internal/messages"
	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/presence"
	"github.com/sealchat/backend/internal/repositories"
)

type memChatRepo struct {
	mu        sync.Mutex
	byPairKey map[string]models.Chat
	byID      map[string]models.Chat
}

func newMemChatRepo() *memChatRepo {
	return &memChatRepo{byPairKey: make(map[string]models.Chat), byID: make(map[string]models.Chat)}
}

func (m *memChatRepo) FindPrivateByPairKey(_ context.Context, pairKey string) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.byPairKey[pairKey]
	if !ok {
		return models.Chat{}, repositories.ErrNotFound
	}
	return chat, nil
}

func (m *memChatRepo) CreatePrivate(_ context.Context, chat models.Chat, members [2]models.ChatMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byPairKey[chat.PairKey]; ok {
		return repositories.ErrConflict
	}
	chat.Members = members[:]
	m.byPairKey[chat.PairKey] = chat
	m.byID[chat.ID] = chat
	return nil
}

func (m *memChatRepo) GetByID(_ context.Context, chatID string) (models.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.byID[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrNotFound
	}
	return chat, nil
}

type stubMessageRepo struct {
	mu  sync.Mutex
	n   int
	err error
}

func (s *stubMessageRepo) Create(_ context.Context, _ models.MessageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.n++
	return nil
}

type failingTracker struct{}

func (failingTracker) MarkOnline(context.Context, string) error  { return errors.New("redis down") }
func (failingTracker) MarkOffline(context.Context, string) error { return errors.New("redis down") }
func (failingTracker) IsOnline(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (failingTracker) BulkIsOnline(context.Context, []string) (map[string]bool, error) {
	return nil, errors.New("redis down")
}

func newTestHub(messageRepo repositories.MessageRepository, tracker presence.Tracker) *Hub {
	if tracker == nil {
		tracker = presence.NewMemoryTracker(time.Minute)
	}
	recorder := messages.NewRecorder(messageRepo, chats.NewResolver(newMemChatRepo()))
	return NewHub(recorder, tracker, nil)
}

func connect(hub *Hub, userID string) *Client {
	c := newClient(hub, nil, auth.Principal{UserID: userID, SessionID: userID + "-session"})
	hub.Register(context.Background(), c)
	return c
}

// drain empties a client's send buffer, discarding queued frames.
func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func recvEvent(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case frame, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var envelope Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return envelope
	default:
		t.Fatal("expected a queued frame")
	}
	return Envelope{}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}

func messageEnvelope(t *testing.T, to, msgType string) []byte {
	t.Helper()
	payload, err := json.Marshal(MessagePayload{
		To:               to,
		Type:             msgType,
		EncryptedContent: []byte("ciphertext"),
		EncryptedKey:     []byte("wrapped-key"),
		Timestamp:        time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(Envelope{Event: EventMessage, Data: payload})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestHubRelaysToRecipientRoomOnly(t *testing.T) {
	repo := &stubMessageRepo{}
	hub := newTestHub(repo, nil)
	ctx := context.Background()

	alice := connect(hub, "alice")
	bob1 := connect(hub, "bob")
	bob2 := connect(hub, "bob")
	carol := connect(hub, "carol")
	for _, c := range []*Client{alice, bob1, bob2, carol} {
		drain(c)
	}

	hub.HandleEnvelope(ctx, alice, messageEnvelope(t, "bob", models.MessageTypeText))

	for _, c := range []*Client{bob1, bob2} {
		envelope := recvEvent(t, c)
		if envelope.Event != EventMessageNew {
			t.Fatalf("expected %s, got %s", EventMessageNew, envelope.Event)
		}
		var msg MessageNew
		if err := json.Unmarshal(envelope.Data, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		if msg.From != "alice" || msg.ChatID == "" {
			t.Fatalf("unexpected relayed message: %+v", msg)
		}
		if string(msg.EncryptedContent) != "ciphertext" {
			t.Fatal("encrypted content must pass through unmodified")
		}
	}

	// Neither the sender nor a third party sees the message.
	expectNoEvent(t, alice)
	expectNoEvent(t, carol)

	if repo.n != 1 {
		t.Fatalf("expected 1 metadata row, got %d", repo.n)
	}
}

func TestHubAnswersSenderOnFailure(t *testing.T) {
	repo := &stubMessageRepo{err: errors.New("db down")}
	hub := newTestHub(repo, nil)
	ctx := context.Background()

	alice := connect(hub, "alice")
	bob := connect(hub, "bob")
	drain(alice)
	drain(bob)

	hub.HandleEnvelope(ctx, alice, messageEnvelope(t, "bob", models.MessageTypeText))

	envelope := recvEvent(t, alice)
	if envelope.Event != EventMessageError {
		t.Fatalf("expected %s, got %s", EventMessageError, envelope.Event)
	}
	// No partial delivery when persistence fails.
	expectNoEvent(t, bob)
}

func TestHubRejectsMalformedFrames(t *testing.T) {
	hub := newTestHub(&stubMessageRepo{}, nil)
	ctx := context.Background()

	alice := connect(hub, "alice")
	drain(alice)

	hub.HandleEnvelope(ctx, alice, []byte("{not json"))
	if envelope := recvEvent(t, alice); envelope.Event != EventMessageError {
		t.Fatalf("expected %s, got %s", EventMessageError, envelope.Event)
	}

	hub.HandleEnvelope(ctx, alice, []byte(`{"event":"unknown-thing"}`))
	if envelope := recvEvent(t, alice); envelope.Event != EventMessageError {
		t.Fatalf("expected %s, got %s", EventMessageError, envelope.Event)
	}

	// An unsupported message type is answered, not relayed.
	hub.HandleEnvelope(ctx, alice, messageEnvelope(t, "bob", "carrier-pigeon"))
	if envelope := recvEvent(t, alice); envelope.Event != EventMessageError {
		t.Fatalf("expected %s, got %s", EventMessageError, envelope.Event)
	}
}

func TestHubBroadcastsPresenceTransitions(t *testing.T) {
	tracker := presence.NewMemoryTracker(time.Minute)
	hub := newTestHub(&stubMessageRepo{}, tracker)
	ctx := context.Background()

	alice := connect(hub, "alice")
	drain(alice)

	bob1 := connect(hub, "bob")

	envelope := recvEvent(t, alice)
	if envelope.Event != EventUserOnline {
		t.Fatalf("expected %s, got %s", EventUserOnline, envelope.Event)
	}
	var presenceEvent PresenceEvent
	if err := json.Unmarshal(envelope.Data, &presenceEvent); err != nil {
		t.Fatalf("decode presence event: %v", err)
	}
	if presenceEvent.UserID != "bob" {
		t.Fatalf("expected bob online, got %s", presenceEvent.UserID)
	}

	// Bob's own second socket does not re-announce to bob.
	bob2 := connect(hub, "bob")
	expectNoEvent(t, bob1)
	drain(alice)

	online, err := tracker.IsOnline(ctx, "bob")
	if err != nil || !online {
		t.Fatalf("expected bob online in tracker, got %v %v", online, err)
	}

	// Closing one of two sockets is not an offline transition.
	hub.Unregister(ctx, bob2)
	expectNoEvent(t, alice)

	hub.Unregister(ctx, bob1)
	envelope = recvEvent(t, alice)
	if envelope.Event != EventUserOffline {
		t.Fatalf("expected %s, got %s", EventUserOffline, envelope.Event)
	}

	online, err = tracker.IsOnline(ctx, "bob")
	if err != nil || online {
		t.Fatalf("expected bob offline in tracker, got %v %v", online, err)
	}
}

func TestHubSurvivesPresenceOutage(t *testing.T) {
	repo := &stubMessageRepo{}
	hub := newTestHub(repo, failingTracker{})
	ctx := context.Background()

	alice := connect(hub, "alice")
	bob := connect(hub, "bob")
	drain(alice)
	drain(bob)

	// Messaging keeps working while the presence store is down.
	hub.HandleEnvelope(ctx, alice, messageEnvelope(t, "bob", models.MessageTypeText))
	if envelope := recvEvent(t, bob); envelope.Event != EventMessageNew {
		t.Fatalf("expected %s, got %s", EventMessageNew, envelope.Event)
	}
	if repo.n != 1 {
		t.Fatalf("expected 1 metadata row, got %d", repo.n)
	}
}

func TestHubDeliversNothingToOfflineUsers(t *testing.T) {
	repo := &stubMessageRepo{}
	hub := newTestHub(repo, nil)
	ctx := context.Background()

	alice := connect(hub, "alice")
	drain(alice)

	// Bob is offline: the metadata is still recorded, nothing queues.
	hub.HandleEnvelope(ctx, alice, messageEnvelope(t, "bob", models.MessageTypeText))
	expectNoEvent(t, alice)
	if repo.n != 1 {
		t.Fatalf("expected metadata to persist for offline recipient, got %d rows", repo.n)
	}

	// Bob connecting later receives nothing; there is no replay queue.
	bob := connect(hub, "bob")
	drain(alice)
	expectNoEvent(t, bob)
}

func TestHubContactNotifications(t *testing.T) {
	hub := newTestHub(&stubMessageRepo{}, nil)

	bob := connect(hub, "bob")
	drain(bob)

	hub.NotifyContactRequest("bob", models.Profile{ID: "alice"}, "req-1", "hello")
	envelope := recvEvent(t, bob)
	if envelope.Event != EventContactRequestReceived {
		t.Fatalf("expected %s, got %s", EventContactRequestReceived, envelope.Event)
	}
	var received ContactRequestReceived
	if err := json.Unmarshal(envelope.Data, &received); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if received.RequestID != "req-1" || received.FromUser.ID != "alice" {
		t.Fatalf("unexpected notification: %+v", received)
	}

	hub.NotifyRequestAccepted("bob", models.Profile{ID: "carol"}, "chat-9")
	envelope = recvEvent(t, bob)
	if envelope.Event != EventContactRequestAccepted {
		t.Fatalf("expected %s, got %s", EventContactRequestAccepted, envelope.Event)
	}

	hub.NotifyRequestRejected("bob", models.Profile{ID: "carol"})
	envelope = recvEvent(t, bob)
	if envelope.Event != EventContactRequestRejected {
		t.Fatalf("expected %s, got %s", EventContactRequestRejected, envelope.Event)
	}
}

func TestHubDropsSlowConsumers(t *testing.T) {
	hub := newTestHub(&stubMessageRepo{}, nil)

	bob := connect(hub, "bob")
	drain(bob)

	for i := 0; i <= sendBufferSize; i++ {
		hub.EmitToUser("bob", EventMessageNew, MessageNew{From: "alice", Timestamp: int64(i)})
	}

	if counts := hub.ConnectedUsers(); counts["bob"] != 0 {
		t.Fatalf("expected the slow client to be dropped, still %d sockets", counts["bob"])
	}
}

func TestHubFanOutRacesDisconnectSafely(t *testing.T) {
	hub := newTestHub(&stubMessageRepo{}, nil)
	ctx := context.Background()

	const sockets = 128
	clientsList := make([]*Client, 0, sockets)
	for i := 0; i < sockets; i++ {
		clientsList = append(clientsList, connect(hub, "bob"))
	}

	// Fan-out snapshots the room, then delivers outside the lock; a
	// disconnect landing in that window must not blow up the emitter.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4*sockets; i++ {
			hub.EmitToUser("bob", EventMessageNew, MessageNew{From: "alice", Timestamp: int64(i)})
		}
	}()
	for _, c := range clientsList {
		hub.Unregister(ctx, c)
	}
	<-done

	if counts := hub.ConnectedUsers(); counts["bob"] != 0 {
		t.Fatalf("expected all sockets gone, still %d", counts["bob"])
	}
	// Delivery to an already-detached client is a silent drop, not a
	// second slow-consumer eviction.
	if !clientsList[0].trySend([]byte("late frame")) {
		t.Fatal("expected a detached client to swallow late frames")
	}
}

func TestConnectedUsersCountsSockets(t *testing.T) {
	hub := newTestHub(&stubMessageRepo{}, nil)
	ctx := context.Background()

	var clientsList []*Client
	for i := 0; i < 3; i++ {
		clientsList = append(clientsList, connect(hub, fmt.Sprintf("user-%d", i%2)))
	}

	counts := hub.ConnectedUsers()
	if counts["user-0"] != 2 || counts["user-1"] != 1 {
		t.Fatalf("unexpected socket counts: %v", counts)
	}

	for _, c := range clientsList {
		hub.Unregister(ctx, c)
	}
	if counts := hub.ConnectedUsers(); len(counts) != 0 {
		t.Fatalf("expected empty hub, got %v", counts)
	}
}
