package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/stravasync/internal/model"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrDuplicateSubject = errors.New("subject already exists")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	ByID(ctx context.Context, id string) (*model.User, error)
	BySubject(ctx context.Context, subject string) (*model.User, error)
	UpdateEmail(ctx context.Context, id, email string) error
	SetCredential(ctx context.Context, id, accessToken, refreshToken string, expiresAt int64) error
	ClearCredential(ctx context.Context, id string) error
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, subject, email, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Subject, user.Email, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSubject
		}
		return err
	}

	return nil
}

func (r *userRepository) ByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE id = $1`

	err := r.db.GetContext(ctx, user, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) BySubject(ctx context.Context, subject string) (*model.User, error) {
	user := &model.User{}
	query := `SELECT * FROM users WHERE subject = $1`

	err := r.db.GetContext(ctx, user, query, subject)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}

	return user, err
}

func (r *userRepository) UpdateEmail(ctx context.Context, id, email string) error {
	query := `UPDATE users SET email = $1, updated_at = $2 WHERE id = $3`
	return r.execOne(ctx, query, email, time.Now(), id)
}

// SetCredential stores all three token fields in one statement so readers
// never observe a partially refreshed credential.
func (r *userRepository) SetCredential(ctx context.Context, id, accessToken, refreshToken string, expiresAt int64) error {
	query := `UPDATE users
	          SET strava_access_token = $1, strava_refresh_token = $2, strava_expires_at = $3, updated_at = $4
	          WHERE id = $5`
	return r.execOne(ctx, query, accessToken, refreshToken, expiresAt, time.Now(), id)
}

func (r *userRepository) ClearCredential(ctx context.Context, id string) error {
	query := `UPDATE users
	          SET strava_access_token = NULL, strava_refresh_token = NULL, strava_expires_at = NULL, updated_at = $1
	          WHERE id = $2`
	return r.execOne(ctx, query, time.Now(), id)
}

func (r *userRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

// isUniqueViolation works for both SQLite and PostgreSQL.
func isUniqueViolation(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "duplicate key value")
}
