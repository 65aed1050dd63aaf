package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sealchat/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := models.User{
		ID:          uuid.NewString(),
		PublicKey:   testPublicKey(),
		DisplayName: "Alice",
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := models.User{
		ID:        uuid.NewString(),
		PublicKey: user.PublicKey,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate public key, got %v", err)
	}

	fetched, err := repo.FindByPublicKey(ctx, user.PublicKey)
	if err != nil {
		t.Fatalf("find by public key: %v", err)
	}
	if fetched.ID != user.ID || fetched.DisplayName != user.DisplayName {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}

	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if string(fetched.PublicKey) != string(user.PublicKey) {
		t.Fatal("public key did not round-trip")
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestPostgresUserRepository_ProfileJoinsUsername(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	usernameRepo := NewPostgresUsernameRepository(testPool)

	user := createTestUser(t, userRepo, "Alice")

	profile, err := userRepo.GetProfile(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile before username: %v", err)
	}
	if profile.Username != "" {
		t.Fatalf("expected no username yet, got %q", profile.Username)
	}

	if _, err := usernameRepo.Set(ctx, user.ID, "alice", true); err != nil {
		t.Fatalf("set username: %v", err)
	}

	profile, err = userRepo.GetProfile(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile after username: %v", err)
	}
	if profile.Username != "alice" || profile.DisplayName != "Alice" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestPostgresUsernameRepository_SetAndLookup(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	repo := NewPostgresUsernameRepository(testPool)

	alice := createTestUser(t, userRepo, "Alice")
	bob := createTestUser(t, userRepo, "Bob")

	record, err := repo.Set(ctx, alice.ID, "alice", true)
	if err != nil {
		t.Fatalf("set username: %v", err)
	}
	if record.Username != "alice" || !record.IsSearchable {
		t.Fatalf("unexpected record: %+v", record)
	}

	if _, err := repo.Set(ctx, bob.ID, "alice", true); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken handle, got %v", err)
	}

	// The owner re-setting their handle only flips searchability.
	record, err = repo.Set(ctx, alice.ID, "alice", false)
	if err != nil {
		t.Fatalf("re-set username: %v", err)
	}
	if record.IsSearchable {
		t.Fatal("expected searchability update")
	}

	if _, _, err := repo.FindSearchable(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unsearchable handle to be hidden, got %v", err)
	}

	if _, err := repo.Set(ctx, alice.ID, "alice", true); err != nil {
		t.Fatalf("re-enable search: %v", err)
	}

	profile, publicKey, err := repo.FindSearchable(ctx, "alice")
	if err != nil {
		t.Fatalf("find searchable: %v", err)
	}
	if profile.ID != alice.ID || string(publicKey) != string(alice.PublicKey) {
		t.Fatalf("unexpected lookup: %+v", profile)
	}

	// Choosing a new handle releases the previous one.
	if _, err := repo.Set(ctx, alice.ID, "alice2", true); err != nil {
		t.Fatalf("replace handle: %v", err)
	}
	if _, err := repo.Set(ctx, bob.ID, "alice", true); err != nil {
		t.Fatalf("expected released handle to be claimable: %v", err)
	}

	if _, err := repo.Set(ctx, uuid.NewString(), "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown owner, got %v", err)
	}
}

func TestPostgresSessionRepository_CreateWithLimit(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	repo := NewPostgresSessionRepository(testPool)

	user := createTestUser(t, userRepo, "Owner")

	first := testSession(user.ID, "device-1")
	second := testSession(user.ID, "device-2")
	third := testSession(user.ID, "device-3")

	if err := repo.CreateWithLimit(ctx, first, 2); err != nil {
		t.Fatalf("create first session: %v", err)
	}
	if err := repo.CreateWithLimit(ctx, second, 2); err != nil {
		t.Fatalf("create second session: %v", err)
	}
	if err := repo.CreateWithLimit(ctx, third, 2); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded at the cap, got %v", err)
	}

	// Revoking frees a slot.
	if err := repo.Revoke(ctx, user.ID, first.ID); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if err := repo.CreateWithLimit(ctx, third, 2); err != nil {
		t.Fatalf("expected freed slot to admit a session, got %v", err)
	}

	sessions, err := repo.ListActive(ctx, user.ID)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 active sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if s.ID == first.ID {
			t.Fatal("revoked session must not be listed")
		}
	}
}

func TestPostgresSessionRepository_RotateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	repo := NewPostgresSessionRepository(testPool)

	user := createTestUser(t, userRepo, "Owner")
	session := testSession(user.ID, "device-1")
	if err := repo.CreateWithLimit(ctx, session, 5); err != nil {
		t.Fatalf("create session: %v", err)
	}

	now := time.Now().UTC()
	newHash := uuid.NewString()
	newRefresh := uuid.NewString()

	rotated, err := repo.Rotate(ctx, session.RefreshToken, newHash, newRefresh, "198.51.100.9", now)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.ID != session.ID || rotated.AccessTokenHash != newHash || rotated.RefreshToken != newRefresh {
		t.Fatalf("unexpected rotated session: %+v", rotated)
	}
	if rotated.IPAddress != "198.51.100.9" {
		t.Fatalf("ip not updated on rotation: %q", rotated.IPAddress)
	}

	// The consumed refresh token never works twice.
	if _, err := repo.Rotate(ctx, session.RefreshToken, uuid.NewString(), uuid.NewString(), "", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound replaying a consumed token, got %v", err)
	}

	if _, err := repo.FindByAccessTokenHash(ctx, session.AccessTokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected the old access hash to be dead, got %v", err)
	}
	found, err := repo.FindByAccessTokenHash(ctx, newHash)
	if err != nil {
		t.Fatalf("find by new hash: %v", err)
	}
	if found.ID != session.ID {
		t.Fatalf("unexpected session: %+v", found)
	}

	// An expired session cannot rotate.
	expired := testSession(user.ID, "device-2")
	expired.ExpiresAt = now.Add(-time.Hour)
	if err := repo.CreateWithLimit(ctx, expired, 5); err != nil {
		t.Fatalf("create expired session: %v", err)
	}
	if _, err := repo.Rotate(ctx, expired.RefreshToken, uuid.NewString(), uuid.NewString(), "", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound rotating an expired session, got %v", err)
	}
}

func TestPostgresSessionRepository_RevokeGuards(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	repo := NewPostgresSessionRepository(testPool)

	owner := createTestUser(t, userRepo, "Owner")
	other := createTestUser(t, userRepo, "Other")

	session := testSession(owner.ID, "device-1")
	if err := repo.CreateWithLimit(ctx, session, 5); err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Another user cannot revoke a session they do not own.
	if err := repo.Revoke(ctx, other.ID, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound revoking a foreign session, got %v", err)
	}

	if err := repo.Revoke(ctx, owner.ID, session.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := repo.Revoke(ctx, owner.ID, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound revoking twice, got %v", err)
	}

	// Revocation keeps the row but kills token lookup.
	if _, err := repo.FindByAccessTokenHash(ctx, session.AccessTokenHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected revoked session to be unauthenticatable, got %v", err)
	}
}

func TestPostgresContactRequestRepository_OnePairOneRequest(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	repo := NewPostgresContactRequestRepository(testPool)

	alice := createTestUser(t, userRepo, "Alice")
	bob := createTestUser(t, userRepo, "Bob")
	carol := createTestUser(t, userRepo, "Carol")

	request := models.ContactRequest{
		ID:         uuid.NewString(),
		FromUserID: alice.ID,
		ToUserID:   bob.ID,
		Status:     models.ContactRequestPending,
		Message:    "hi bob",
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	// The pair index blocks a second request even in the opposite direction.
	reversed := models.ContactRequest{
		ID:         uuid.NewString(),
		FromUserID: bob.ID,
		ToUserID:   alice.ID,
		Status:     models.ContactRequestPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Create(ctx, reversed); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for reversed duplicate, got %v", err)
	}

	ghost := models.ContactRequest{
		ID:         uuid.NewString(),
		FromUserID: alice.ID,
		ToUserID:   uuid.NewString(),
		Status:     models.ContactRequestPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repo.Create(ctx, ghost); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown recipient, got %v", err)
	}

	found, err := repo.FindBetween(ctx, bob.ID, alice.ID)
	if err != nil {
		t.Fatalf("find between reversed: %v", err)
	}
	if found.ID != request.ID || found.Message != "hi bob" {
		t.Fatalf("unexpected request: %+v", found)
	}
	if _, err := repo.FindBetween(ctx, alice.ID, carol.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unrelated pair, got %v", err)
	}
}

func TestPostgresContactRequestRepository_ResolveAndList(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	repo := NewPostgresContactRequestRepository(testPool)

	alice := createTestUser(t, userRepo, "Alice")
	bob := createTestUser(t, userRepo, "Bob")
	carol := createTestUser(t, userRepo, "Carol")

	toBob := models.ContactRequest{
		ID:         uuid.NewString(),
		FromUserID: alice.ID,
		ToUserID:   bob.ID,
		Status:     models.ContactRequestPending,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}
	toCarol := models.ContactRequest{
		ID:         uuid.NewString(),
		FromUserID: alice.ID,
		ToUserID:   carol.ID,
		Status:     models.ContactRequestPending,
		CreatedAt:  time.Now().UTC(),
	}
	for _, request := range []models.ContactRequest{toBob, toCarol} {
		if err := repo.Create(ctx, request); err != nil {
			t.Fatalf("create request %s: %v", request.ID, err)
		}
	}

	pending, err := repo.FindPendingForReceiver(ctx, toBob.ID, bob.ID)
	if err != nil {
		t.Fatalf("find pending for receiver: %v", err)
	}
	if pending.ID != toBob.ID {
		t.Fatalf("unexpected pending request: %+v", pending)
	}
	// The sender cannot resolve their own request.
	if _, err := repo.FindPendingForReceiver(ctx, toBob.ID, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong receiver, got %v", err)
	}

	if err := repo.MarkResolved(ctx, toBob.ID, models.ContactRequestAccepted); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}
	// Terminal states never transition again.
	if err := repo.MarkResolved(ctx, toBob.ID, models.ContactRequestRejected); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound re-resolving, got %v", err)
	}

	incoming, err := repo.ListIncomingPending(ctx, carol.ID)
	if err != nil {
		t.Fatalf("list incoming: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != toCarol.ID {
		t.Fatalf("unexpected incoming list: %+v", incoming)
	}

	outgoing, err := repo.ListOutgoing(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list outgoing: %v", err)
	}
	if len(outgoing) != 2 || outgoing[0].ID != toCarol.ID {
		t.Fatalf("expected newest-first outgoing list: %+v", outgoing)
	}

	acceptedForBob, err := repo.ListAccepted(ctx, bob.ID)
	if err != nil {
		t.Fatalf("list accepted: %v", err)
	}
	if len(acceptedForBob) != 1 || acceptedForBob[0].Status != models.ContactRequestAccepted {
		t.Fatalf("unexpected accepted list: %+v", acceptedForBob)
	}
	acceptedForCarol, err := repo.ListAccepted(ctx, carol.ID)
	if err != nil {
		t.Fatalf("list accepted for carol: %v", err)
	}
	if len(acceptedForCarol) != 0 {
		t.Fatalf("pending request leaked into accepted list: %+v", acceptedForCarol)
	}
}

func TestPostgresChatRepository_PrivatePairIsUnique(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	repo := NewPostgresChatRepository(testPool)

	alice := createTestUser(t, userRepo, "Alice")
	bob := createTestUser(t, userRepo, "Bob")

	pairKey := alice.ID + ":" + bob.ID
	chat := models.Chat{
		ID:        uuid.NewString(),
		Type:      models.ChatTypePrivate,
		PairKey:   pairKey,
		CreatedAt: time.Now().UTC(),
	}
	members := [2]models.ChatMember{
		{ChatID: chat.ID, UserID: alice.ID, Role: "member"},
		{ChatID: chat.ID, UserID: bob.ID, Role: "member"},
	}

	if err := repo.CreatePrivate(ctx, chat, members); err != nil {
		t.Fatalf("create private chat: %v", err)
	}

	dup := chat
	dup.ID = uuid.NewString()
	dupMembers := members
	dupMembers[0].ChatID = dup.ID
	dupMembers[1].ChatID = dup.ID
	if err := repo.CreatePrivate(ctx, dup, dupMembers); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate pair key, got %v", err)
	}

	found, err := repo.FindPrivateByPairKey(ctx, pairKey)
	if err != nil {
		t.Fatalf("find by pair key: %v", err)
	}
	if found.ID != chat.ID {
		t.Fatalf("unexpected chat: %+v", found)
	}

	loaded, err := repo.GetByID(ctx, chat.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if len(loaded.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(loaded.Members))
	}

	if _, err := repo.GetByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown chat, got %v", err)
	}
}

func TestPostgresMessageRepository_Create(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	userRepo := NewPostgresUserRepository(testPool)
	chatRepo := NewPostgresChatRepository(testPool)
	repo := NewPostgresMessageRepository(testPool)

	alice := createTestUser(t, userRepo, "Alice")
	bob := createTestUser(t, userRepo, "Bob")

	chat := models.Chat{
		ID:        uuid.NewString(),
		Type:      models.ChatTypePrivate,
		PairKey:   alice.ID + ":" + bob.ID,
		CreatedAt: time.Now().UTC(),
	}
	members := [2]models.ChatMember{
		{ChatID: chat.ID, UserID: alice.ID, Role: "member"},
		{ChatID: chat.ID, UserID: bob.ID, Role: "member"},
	}
	if err := chatRepo.CreatePrivate(ctx, chat, members); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	metadata := models.MessageMetadata{
		ID:           uuid.NewString(),
		ChatID:       chat.ID,
		SenderID:     alice.ID,
		Type:         models.MessageTypeText,
		EncryptedKey: []byte("wrapped-key"),
		Timestamp:    time.Now().UTC().Add(-time.Second),
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.Create(ctx, metadata); err != nil {
		t.Fatalf("create metadata: %v", err)
	}

	orphan := metadata
	orphan.ID = uuid.NewString()
	orphan.ChatID = uuid.NewString()
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown chat, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE message_metadata, chat_members, chats, contact_requests, sessions, usernames, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, displayName string) models.User {
	t.Helper()
	user := models.User{
		ID:          uuid.NewString(),
		PublicKey:   testPublicKey(),
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

// testPublicKey fabricates a unique 32-byte key.
func testPublicKey() []byte {
	return []byte(uuid.NewString())[:models.PublicKeyLength]
}

func testSession(userID, deviceID string) models.Session {
	now := time.Now().UTC()
	return models.Session{
		ID:              uuid.NewString(),
		UserID:          userID,
		DeviceID:        deviceID,
		DeviceModel:     "Test Device",
		IPAddress:       "203.0.113.1",
		AccessTokenHash: uuid.NewString(),
		RefreshToken:    uuid.NewString(),
		ExpiresAt:       now.Add(30 * 24 * time.Hour),
		CreatedAt:       now,
	}
}
