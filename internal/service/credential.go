package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/stravasync/internal/crypto"
	"github.com/templui/stravasync/internal/metrics"
	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/strava"
	"golang.org/x/sync/singleflight"
)

// TokenExchanger runs the Strava OAuth grants.
type TokenExchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*strava.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*strava.Token, error)
}

// CredentialStore persists Strava credentials on the user row, encrypted.
type CredentialStore struct {
	userRepository repository.UserRepository
	encryptor      crypto.Encryptor
}

func NewCredentialStore(userRepository repository.UserRepository, encryptor crypto.Encryptor) *CredentialStore {
	return &CredentialStore{
		userRepository: userRepository,
		encryptor:      encryptor,
	}
}

// Get returns the decrypted credential or ErrNotConnected.
func (s *CredentialStore) Get(ctx context.Context, userID string) (*model.Credential, error) {
	user, err := s.userRepository.ByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsConnected() {
		return nil, ErrNotConnected
	}

	access, err := s.encryptor.Decrypt(ctx, *user.StravaAccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := s.encryptor.Decrypt(ctx, *user.StravaRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &model.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    *user.StravaExpiresAt,
	}, nil
}

// Put stores all three fields at once.
func (s *CredentialStore) Put(ctx context.Context, userID string, cred *model.Credential) error {
	access, err := s.encryptor.Encrypt(ctx, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := s.encryptor.Encrypt(ctx, cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	if err := s.userRepository.SetCredential(ctx, userID, access, refresh, cred.ExpiresAt); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Clear(ctx context.Context, userID string) error {
	if err := s.userRepository.ClearCredential(ctx, userID); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return nil
}

// TokenRefresher hands out usable access tokens, refreshing expired ones.
// Concurrent refreshes for one user collapse into a single grant.
type TokenRefresher struct {
	credentials *CredentialStore
	oauth       TokenExchanger
	group       singleflight.Group
	now         func() time.Time
}

func NewTokenRefresher(credentials *CredentialStore, oauth TokenExchanger) *TokenRefresher {
	return &TokenRefresher{
		credentials: credentials,
		oauth:       oauth,
		now:         time.Now,
	}
}

// EnsureValidToken returns an access token valid at the time of the call.
// A failed refresh returns ErrRefreshFailed and leaves the stored
// credential untouched.
func (r *TokenRefresher) EnsureValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := r.credentials.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !cred.Expired(r.now()) {
		return cred.AccessToken, nil
	}

	v, err, shared := r.group.Do(userID, func() (any, error) {
		return r.refresh(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		slog.Debug("joined in-flight token refresh", "user_id", userID)
	}
	return v.(string), nil
}

func (r *TokenRefresher) refresh(ctx context.Context, userID string) (string, error) {
	// Another caller may have refreshed between our read and acquiring the flight.
	cred, err := r.credentials.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !cred.Expired(r.now()) {
		return cred.AccessToken, nil
	}

	tok, err := r.oauth.Refresh(ctx, cred.RefreshToken)
	metrics.RecordTokenRefresh(err)
	if err != nil {
		slog.Warn("strava token refresh failed", "error", err, "user_id", userID)
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrRefreshFailed)
	}

	next := &model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}

	if err := r.credentials.Put(ctx, userID, next); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrNotConnected
		}
		return "", err
	}

	slog.Info("strava token refreshed", "user_id", userID, "expires_at", next.ExpiresAt)
	return next.AccessToken, nil
}
