package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/strava"
)

// LinkStatus describes a user's Strava connection.
type LinkStatus struct {
	Connected bool            `json:"connected"`
	ExpiresAt *time.Time      `json:"expiresAt,omitempty"`
	Athlete   *strava.Athlete `json:"athlete,omitempty"`
}

// LinkService connects and disconnects Strava accounts.
type LinkService struct {
	states      LinkStateStore
	oauth       TokenExchanger
	credentials *CredentialStore
	refresher   *TokenRefresher
	api         StravaAPI
}

func NewLinkService(states LinkStateStore, oauth TokenExchanger, credentials *CredentialStore, refresher *TokenRefresher, api StravaAPI) *LinkService {
	return &LinkService{
		states:      states,
		oauth:       oauth,
		credentials: credentials,
		refresher:   refresher,
		api:         api,
	}
}

// BeginLink issues a state for userID and returns the Strava consent URL.
func (s *LinkService) BeginLink(ctx context.Context, userID string) (string, error) {
	state, err := s.states.Issue(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to begin link: %w", err)
	}
	return s.oauth.AuthURL(state), nil
}

// CompleteLink consumes state, exchanges code and stores the credential.
// It returns the linked user's id. The state is spent even when the exchange
// fails.
func (s *LinkService) CompleteLink(ctx context.Context, state, code string) (string, error) {
	if state == "" {
		return "", fmt.Errorf("%w: missing state", ErrLinkFailed)
	}

	userID, err := s.states.Consume(ctx, state)
	if errors.Is(err, ErrStateNotFound) {
		return "", fmt.Errorf("%w: %v", ErrLinkFailed, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume state: %w", err)
	}

	if code == "" {
		return userID, fmt.Errorf("%w: authorization denied", ErrLinkFailed)
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		slog.Warn("strava code exchange failed", "error", err, "user_id", userID)
		return userID, fmt.Errorf("%w: %v", ErrLinkFailed, err)
	}

	err = s.credentials.Put(ctx, userID, &model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	})
	if err != nil {
		return userID, err
	}

	slog.Info("strava account linked", "user_id", userID)
	return userID, nil
}

// Disconnect forgets the credential. Activities and photos are kept.
func (s *LinkService) Disconnect(ctx context.Context, userID string) error {
	if err := s.credentials.Clear(ctx, userID); err != nil {
		return err
	}
	slog.Info("strava account disconnected", "user_id", userID)
	return nil
}

// Status reports whether userID is linked and, when it is, which athlete the
// credential belongs to.
func (s *LinkService) Status(ctx context.Context, userID string) (*LinkStatus, error) {
	token, err := s.refresher.EnsureValidToken(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return &LinkStatus{Connected: false}, nil
	}
	if err != nil {
		return nil, err
	}

	athlete, err := s.api.Athlete(ctx, token)
	if err != nil {
		return nil, err
	}

	status := &LinkStatus{Connected: true, Athlete: athlete}
	if cred, err := s.credentials.Get(ctx, userID); err == nil {
		exp := time.Unix(cred.ExpiresAt, 0).UTC()
		status.ExpiresAt = &exp
	}
	return status, nil
}
