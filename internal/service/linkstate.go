package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
)

var ErrStateNotFound = errors.New("link state not found or expired")

// LinkStateStore binds one-time OAuth state values to users. A state can be
// consumed once, expires after a TTL, and issuing a new one for a user
// invalidates that user's previous pending state.
type LinkStateStore interface {
	Issue(ctx context.Context, userID string) (string, error)
	Consume(ctx context.Context, state string) (string, error)
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type sqlLinkStateStore struct {
	tokenRepository repository.TokenRepository
	ttl             time.Duration
}

// NewSQLLinkStateStore keeps states in the tokens table.
func NewSQLLinkStateStore(tokenRepository repository.TokenRepository, ttl time.Duration) LinkStateStore {
	return &sqlLinkStateStore{tokenRepository: tokenRepository, ttl: ttl}
}

func (s *sqlLinkStateStore) Issue(ctx context.Context, userID string) (string, error) {
	if err := s.tokenRepository.DeleteByUserAndType(ctx, userID, model.TokenTypeStravaLink); err != nil {
		return "", fmt.Errorf("failed to drop pending states: %w", err)
	}

	state, err := generateState()
	if err != nil {
		return "", err
	}

	err = s.tokenRepository.Create(ctx, &model.Token{
		UserID:    userID,
		Type:      model.TokenTypeStravaLink,
		Token:     state,
		ExpiresAt: time.Now().Add(s.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}
	return state, nil
}

func (s *sqlLinkStateStore) Consume(ctx context.Context, state string) (string, error) {
	tok, err := s.tokenRepository.ConsumeToken(ctx, state, model.TokenTypeStravaLink)
	if errors.Is(err, repository.ErrTokenNotFound) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", err
	}
	return tok.UserID, nil
}

type redisLinkStateStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisLinkStateStore keeps states in Redis with native expiry.
func NewRedisLinkStateStore(client redis.Cmdable, ttl time.Duration) LinkStateStore {
	return &redisLinkStateStore{client: client, ttl: ttl}
}

func stateKey(state string) string { return "strava:link:state:" + state }
func userKey(userID string) string { return "strava:link:user:" + userID }

func (s *redisLinkStateStore) Issue(ctx context.Context, userID string) (string, error) {
	prev, err := s.client.GetDel(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read pending state: %w", err)
	}
	if prev != "" {
		if err := s.client.Del(ctx, stateKey(prev)).Err(); err != nil {
			return "", fmt.Errorf("failed to drop pending state: %w", err)
		}
	}

	state, err := generateState()
	if err != nil {
		return "", err
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, stateKey(state), userID, s.ttl)
		p.Set(ctx, userKey(userID), state, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}
	return state, nil
}

func (s *redisLinkStateStore) Consume(ctx context.Context, state string) (string, error) {
	userID, err := s.client.GetDel(ctx, stateKey(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume state: %w", err)
	}

	_ = s.client.Del(ctx, userKey(userID)).Err()
	return userID, nil
}
