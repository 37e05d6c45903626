package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/validation"
)

// Identity is the verified subject of a bearer assertion.
type Identity struct {
	Subject string
	Email   string
}

// IdentityService verifies bearer assertions from the identity provider and
// maps them to local users.
type IdentityService struct {
	userRepository repository.UserRepository
	jwtSecret      string
	issuer         string
}

func NewIdentityService(userRepository repository.UserRepository, jwtSecret, issuer string) *IdentityService {
	return &IdentityService{
		userRepository: userRepository,
		jwtSecret:      jwtSecret,
		issuer:         issuer,
	}
}

// VerifyToken checks the signature, expiry and (when configured) issuer of an
// HS256 assertion and returns its subject.
func (s *IdentityService) VerifyToken(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(s.jwtSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthenticated
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}

	email, _ := claims["email"].(string)
	return &Identity{Subject: sub, Email: strings.TrimSpace(strings.ToLower(email))}, nil
}

// IssueToken signs an assertion for subject. Used by the ops CLI to mint
// development tokens.
func (s *IdentityService) IssueToken(subject, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtSecret))
}

// ResolveUser returns the local user for id, creating it on first sight.
func (s *IdentityService) ResolveUser(ctx context.Context, id *Identity) (*model.User, error) {
	user, err := s.userRepository.BySubject(ctx, id.Subject)
	if err == nil {
		if id.Email != "" && id.Email != user.Email {
			if err := s.userRepository.UpdateEmail(ctx, user.ID, id.Email); err != nil {
				slog.Warn("failed to update user email", "error", err, "user_id", user.ID)
			} else {
				user.Email = id.Email
			}
		}
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to lookup user: %w", err)
	}

	email := id.Email
	if email != "" && validation.ValidateEmail(email) != nil {
		slog.Warn("ignoring invalid email claim", "subject", id.Subject)
		email = ""
	}

	now := time.Now()
	user = &model.User{
		ID:        uuid.New().String(),
		Subject:   id.Subject,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.userRepository.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateSubject) {
		// Lost a race with a concurrent first request.
		return s.userRepository.BySubject(ctx, id.Subject)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created", "user_id", user.ID, "subject", id.Subject)
	return user, nil
}

// Authenticate verifies tokenString and resolves its user.
func (s *IdentityService) Authenticate(ctx context.Context, tokenString string) (*model.User, error) {
	id, err := s.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	return s.ResolveUser(ctx, id)
}
