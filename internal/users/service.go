package users

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sealchat/backend/internal/models"
	"github.com/sealchat/backend/internal/repositories"
)

var (
	// ErrInvalidPublicKey indicates the supplied key is not 32 raw bytes of valid base64.
	ErrInvalidPublicKey = errors.New("invalid public key format")
	// ErrNotFound indicates the user or username does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates the handle belongs to another user.
	ErrUsernameTaken = errors.New("username is already taken")
)

// Service manages registration, profiles and username binding. Users
// are created on the first login with an unseen public key and never
// deleted.
type Service struct {
	users     repositories.UserRepository
	usernames repositories.UsernameRepository
	now       func() time.Time
}

// NewService constructs the user service.
func NewService(users repositories.UserRepository, usernames repositories.UsernameRepository) *Service {
	if users == nil || usernames == nil {
		panic("users: repositories must not be nil")
	}
	return &Service{users: users, usernames: usernames, now: time.Now}
}

// Register finds or creates the user owning the given public key.
// Idempotent: re-registering an existing key returns the existing user.
func (s *Service) Register(ctx context.Context, publicKeyBase64, displayName string) (models.User, error) {
	publicKey, err := decodePublicKey(publicKeyBase64)
	if err != nil {
		return models.User{}, err
	}

	existing, err := s.users.FindByPublicKey(ctx, publicKey)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, fmt.Errorf("look up public key: %w", err)
	}

	user := models.User{
		ID:          uuid.NewString(),
		PublicKey:   publicKey,
		DisplayName: strings.TrimSpace(displayName),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// Concurrent registration of the same key; re-read the winner.
			return s.FindByPublicKey(ctx, publicKeyBase64)
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// FindByPublicKey resolves a base64 public key to its user.
func (s *Service) FindByPublicKey(ctx context.Context, publicKeyBase64 string) (models.User, error) {
	publicKey, err := decodePublicKey(publicKeyBase64)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.FindByPublicKey(ctx, publicKey)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user by public key: %w", err)
	}
	return user, nil
}

// ProfileResponse is the caller-facing account view.
type ProfileResponse struct {
	ID          string `json:"id"`
	PublicKey   string `json:"publicKey"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
}

// Profile returns the account view for the given user.
func (s *Service) Profile(ctx context.Context, userID string) (ProfileResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ProfileResponse{}, ErrNotFound
		}
		return ProfileResponse{}, fmt.Errorf("load user: %w", err)
	}

	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		return ProfileResponse{}, fmt.Errorf("load profile: %w", err)
	}

	return ProfileResponse{
		ID:          user.ID,
		PublicKey:   base64.StdEncoding.EncodeToString(user.PublicKey),
		DisplayName: user.DisplayName,
		Username:    profile.Username,
	}, nil
}

// PublicProfile returns the peer-facing projection of a user.
func (s *Service) PublicProfile(ctx context.Context, userID string) (models.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Profile{}, ErrNotFound
		}
		return models.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

// SetUsername binds a handle to the user. Re-binding one's own handle
// only updates its searchability.
func (s *Service) SetUsername(ctx context.Context, userID, username string, searchable bool) (models.Username, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return models.Username{}, errors.New("username must not be empty")
	}

	record, err := s.usernames.Set(ctx, userID, username, searchable)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return models.Username{}, ErrUsernameTaken
		case errors.Is(err, repositories.ErrNotFound):
			return models.Username{}, ErrNotFound
		}
		return models.Username{}, fmt.Errorf("set username: %w", err)
	}
	return record, nil
}

// LookupResult is the discovery view of a searchable user.
type LookupResult struct {
	ID          string `json:"id"`
	PublicKey   string `json:"publicKey"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username"`
}

// FindByUsername resolves a searchable handle to its owner. Handles
// marked unsearchable are indistinguishable from absent ones.
func (s *Service) FindByUsername(ctx context.Context, username string) (LookupResult, error) {
	username = strings.TrimSpace(strings.ToLower(username))

	profile, publicKey, err := s.usernames.FindSearchable(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return LookupResult{}, ErrNotFound
		}
		return LookupResult{}, fmt.Errorf("find username: %w", err)
	}

	return LookupResult{
		ID:          profile.ID,
		PublicKey:   base64.StdEncoding.EncodeToString(publicKey),
		DisplayName: profile.DisplayName,
		Username:    profile.Username,
	}, nil
}

func decodePublicKey(publicKeyBase64 string) ([]byte, error) {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil || len(publicKey) != models.PublicKeyLength {
		return nil, ErrInvalidPublicKey
	}
	return publicKey, nil
}
