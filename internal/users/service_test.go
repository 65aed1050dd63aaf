package users

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/repositories"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]models.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if string(existing.PublicKey) == string(user.PublicKey) {
			return repositories.ErrConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) FindByID(_ context.Context, id string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) FindByPublicKey(_ context.Context, publicKey []byte) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if string(user.PublicKey) == string(publicKey) {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (f *fakeUserRepo) GetProfile(_ context.Context, id string) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return models.Profile{}, repositories.ErrNotFound
	}
	return models.Profile{ID: user.ID, DisplayName: user.DisplayName}, nil
}

type fakeUsernameRepo struct {
	mu      sync.Mutex
	byName  map[string]models.Username
	pubKeys map[string][]byte
}

func newFakeUsernameRepo() *fakeUsernameRepo {
	return &fakeUsernameRepo{byName: make(map[string]models.Username), pubKeys: make(map[string][]byte)}
}

func (f *fakeUsernameRepo) Set(_ context.Context, userID, username string, searchable bool) (models.Username, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.byName[username]; ok {
		if existing.UserID != userID {
			return models.Username{}, repositories.ErrConflict
		}
		existing.IsSearchable = searchable
		f.byName[username] = existing
		return existing, nil
	}

	for name, record := range f.byName {
		if record.UserID == userID {
			delete(f.byName, name)
		}
	}

	record := models.Username{ID: uuid.NewString(), UserID: userID, Username: username, IsSearchable: searchable}
	f.byName[username] = record
	return record, nil
}

func (f *fakeUsernameRepo) FindSearchable(_ context.Context, username string) (models.Profile, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.byName[username]
	if !ok || !record.IsSearchable {
		return models.Profile{}, nil, repositories.ErrNotFound
	}
	return models.Profile{ID: record.UserID, Username: record.Username}, f.pubKeys[record.UserID], nil
}

func validKey() string {
	raw := make([]byte, models.PublicKeyLength)
	copy(raw, "test-public-key")
	return base64.StdEncoding.EncodeToString(raw)
}

func TestRegisterIsIdempotentPerPublicKey(t *testing.T) {
	ctx := context.Background()
	service := NewService(newFakeUserRepo(), newFakeUsernameRepo())
	key := validKey()

	first, err := service.Register(ctx, key, "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.DisplayName != "Alice" {
		t.Fatalf("unexpected display name: %q", first.DisplayName)
	}

	second, err := service.Register(ctx, key, "Someone Else")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("re-registering the same key must return the existing user")
	}
}

func TestRegisterRejectsMalformedKeys(t *testing.T) {
	ctx := context.Background()
	service := NewService(newFakeUserRepo(), newFakeUsernameRepo())

	cases := []string{
		"",
		"not base64!!!",
		base64.StdEncoding.EncodeToString([]byte("too short")),
		base64.StdEncoding.EncodeToString(make([]byte, 64)),
	}
	for _, key := range cases {
		if _, err := service.Register(ctx, key, ""); !errors.Is(err, ErrInvalidPublicKey) {
			t.Fatalf("key %q: expected ErrInvalidPublicKey, got %v", key, err)
		}
	}
}

func TestSetUsernameNormalizesAndGuards(t *testing.T) {
	ctx := context.Background()
	service := NewService(newFakeUserRepo(), newFakeUsernameRepo())

	record, err := service.SetUsername(ctx, "user-1", "  AliceInChains  ", true)
	if err != nil {
		t.Fatalf("set username: %v", err)
	}
	if record.Username != "aliceinchains" {
		t.Fatalf("expected lowercased handle, got %q", record.Username)
	}

	if _, err := service.SetUsername(ctx, "user-2", "ALICEINCHAINS", true); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	// Re-binding one's own handle updates searchability.
	record, err = service.SetUsername(ctx, "user-1", "aliceinchains", false)
	if err != nil {
		t.Fatalf("re-set username: %v", err)
	}
	if record.IsSearchable {
		t.Fatal("expected searchability to update")
	}

	if _, err := service.SetUsername(ctx, "user-1", "   ", true); err == nil {
		t.Fatal("expected empty username to be rejected")
	}
}

func TestFindByUsernameOnlySearchable(t *testing.T) {
	ctx := context.Background()
	usernames := newFakeUsernameRepo()
	service := NewService(newFakeUserRepo(), usernames)

	if _, err := service.SetUsername(ctx, "user-1", "alice", true); err != nil {
		t.Fatalf("set username: %v", err)
	}
	usernames.pubKeys["user-1"] = make([]byte, models.PublicKeyLength)

	result, err := service.FindByUsername(ctx, "  ALICE ")
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if result.Username != "alice" || result.ID != "user-1" {
		t.Fatalf("unexpected lookup result: %+v", result)
	}
	if result.PublicKey == "" {
		t.Fatal("expected the owner's public key in the lookup result")
	}

	if _, err := service.SetUsername(ctx, "user-1", "alice", false); err != nil {
		t.Fatalf("unsearch username: %v", err)
	}
	if _, err := service.FindByUsername(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected unsearchable handle to look absent, got %v", err)
	}
	if _, err := service.FindByUsername(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProfileIncludesUsername(t *testing.T) {
	ctx := context.Background()
	userRepo := newFakeUserRepo()
	service := NewService(userRepo, newFakeUsernameRepo())

	user, err := service.Register(ctx, validKey(), strings.TrimSpace(" Alice "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	profile, err := service.Profile(ctx, user.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.ID != user.ID {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	decoded, err := base64.StdEncoding.DecodeString(profile.PublicKey)
	if err != nil || len(decoded) != models.PublicKeyLength {
		t.Fatal("profile must round-trip the public key as base64")
	}

	if _, err := service.Profile(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

var _ repositories.UserRepository = (*fakeUserRepo)(nil)
var _ repositories.UsernameRepository = (*fakeUsernameRepo)(nil)
