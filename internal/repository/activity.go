package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/stravasync/internal/db"
	"github.com/templui/stravasync/internal/model"
)

var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrActivityOwned    = errors.New("activity belongs to another user")
)

// UpsertResult describes the outcome of a single Upsert.
type UpsertResult struct {
	Created bool
	Photos  ReplaceResult
}

// DeleteResult is returned by bulk deletes. StoragePaths lists the blobs that
// backed the deleted photos.
type DeleteResult struct {
	Activities   int64
	Photos       int64
	StoragePaths []string
}

type ActivityRepository interface {
	ByID(ctx context.Context, id string) (*model.Activity, error)
	ByStravaID(ctx context.Context, stravaID int64) (*model.Activity, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Activity, error)
	ListRemoteByUser(ctx context.Context, userID string) ([]*model.Activity, error)
	MaxMockStravaID(ctx context.Context) (int64, bool, error)
	CreateMany(ctx context.Context, activities []*model.Activity) error
	Upsert(ctx context.Context, activity *model.Activity, photos []*model.Photo) (UpsertResult, error)
	UpdateEditable(ctx context.Context, activity *model.Activity) error
	DeleteByUser(ctx context.Context, userID string, mockOnly bool) (DeleteResult, error)
}

type activityRepository struct {
	db *sqlx.DB
}

func NewActivityRepository(db *sqlx.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) ByID(ctx context.Context, id string) (*model.Activity, error) {
	activity := &model.Activity{}
	query := `SELECT * FROM activities WHERE id = $1`

	err := r.db.GetContext(ctx, activity, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrActivityNotFound
	}

	return activity, err
}

func (r *activityRepository) ByStravaID(ctx context.Context, stravaID int64) (*model.Activity, error) {
	activity := &model.Activity{}
	query := `SELECT * FROM activities WHERE strava_id = $1`

	err := r.db.GetContext(ctx, activity, query, stravaID)
	if err == sql.ErrNoRows {
		return nil, ErrActivityNotFound
	}

	return activity, err
}

// ListByUser returns all activities of a user, newest first, with photos
// loaded primary first.
func (r *activityRepository) ListByUser(ctx context.Context, userID string) ([]*model.Activity, error) {
	activities := []*model.Activity{}
	query := `SELECT * FROM activities WHERE user_id = $1 ORDER BY start_date DESC, strava_id DESC`

	err := r.db.SelectContext(ctx, &activities, query, userID)
	if err != nil {
		return nil, err
	}

	if len(activities) == 0 {
		return activities, nil
	}

	var photos []*model.Photo
	query = `SELECT p.* FROM photos p
	         JOIN activities a ON a.id = p.activity_id
	         WHERE a.user_id = $1
	         ORDER BY p.is_primary DESC, p.created_at ASC, p.id ASC`
	if err := r.db.SelectContext(ctx, &photos, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}

	byActivity := make(map[string]*model.Activity, len(activities))
	for _, a := range activities {
		a.Photos = []*model.Photo{}
		byActivity[a.ID] = a
	}
	for _, p := range photos {
		if a, ok := byActivity[p.ActivityID]; ok {
			a.Photos = append(a.Photos, p)
		}
	}

	return activities, nil
}

// ListRemoteByUser returns the user's activities that mirror a Strava record.
func (r *activityRepository) ListRemoteByUser(ctx context.Context, userID string) ([]*model.Activity, error) {
	activities := []*model.Activity{}
	query := `SELECT * FROM activities WHERE user_id = $1 AND is_mock = $2 ORDER BY start_date DESC`

	err := r.db.SelectContext(ctx, &activities, query, userID, false)
	if err != nil {
		return nil, err
	}

	return activities, nil
}

// MaxMockStravaID returns the highest Strava id held by a generated activity
// of any user.
func (r *activityRepository) MaxMockStravaID(ctx context.Context) (int64, bool, error) {
	var highest sql.NullInt64
	query := `SELECT MAX(strava_id) FROM activities WHERE is_mock = $1`

	err := r.db.GetContext(ctx, &highest, query, true)
	if err != nil {
		return 0, false, err
	}

	return highest.Int64, highest.Valid, nil
}

func (r *activityRepository) CreateMany(ctx context.Context, activities []*model.Activity) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, a := range activities {
			if err := insertActivity(ctx, tx, a); err != nil {
				return fmt.Errorf("failed to insert activity %d: %w", a.StravaID, err)
			}
		}
		return nil
	})
}

// Upsert inserts or fully replaces the activity identified by StravaID and
// swaps its photo set in the same transaction. On update, the stored id and
// created_at are kept and written back to activity.
func (r *activityRepository) Upsert(ctx context.Context, activity *model.Activity, photos []*model.Photo) (UpsertResult, error) {
	var res UpsertResult

	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		existing := &model.Activity{}
		err := tx.GetContext(ctx, existing, `SELECT * FROM activities WHERE strava_id = $1`, activity.StravaID)
		switch {
		case err == sql.ErrNoRows:
			res.Created = true
			if err := insertActivity(ctx, tx, activity); err != nil {
				return fmt.Errorf("failed to insert activity: %w", err)
			}
		case err != nil:
			return err
		case existing.UserID != activity.UserID:
			return ErrActivityOwned
		default:
			activity.ID = existing.ID
			activity.CreatedAt = existing.CreatedAt
			if err := updateActivity(ctx, tx, activity); err != nil {
				return fmt.Errorf("failed to update activity: %w", err)
			}
		}

		res.Photos, err = replacePhotos(ctx, tx, activity.ID, photos, ReplaceOptions{})
		return err
	})

	return res, err
}

func (r *activityRepository) UpdateEditable(ctx context.Context, activity *model.Activity) error {
	activity.UpdatedAt = time.Now()

	query := `UPDATE activities
	          SET name = $1, description = $2, perceived_exertion = $3, private_notes = $4,
	              is_commute = $5, is_indoor = $6, updated_at = $7
	          WHERE id = $8`

	result, err := r.db.ExecContext(ctx, query,
		activity.Name,
		activity.Description,
		activity.PerceivedExertion,
		activity.PrivateNotes,
		activity.IsCommute,
		activity.IsIndoor,
		activity.UpdatedAt,
		activity.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrActivityNotFound
	}

	return nil
}

// DeleteByUser removes the user's activities and their photos. With mockOnly
// set, only generated activities are touched.
func (r *activityRepository) DeleteByUser(ctx context.Context, userID string, mockOnly bool) (DeleteResult, error) {
	var res DeleteResult

	scope := `SELECT id FROM activities WHERE user_id = $1`
	args := []any{userID}
	if mockOnly {
		scope += ` AND is_mock = $2`
		args = append(args, true)
	}

	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var paths []string
		err := tx.SelectContext(ctx, &paths,
			`SELECT storage_path FROM photos WHERE storage_path IS NOT NULL AND activity_id IN (`+scope+`)`, args...)
		if err != nil {
			return err
		}
		res.StoragePaths = paths

		result, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE activity_id IN (`+scope+`)`, args...)
		if err != nil {
			return fmt.Errorf("failed to delete photos: %w", err)
		}
		if res.Photos, err = result.RowsAffected(); err != nil {
			return err
		}

		result, err = tx.ExecContext(ctx, `DELETE FROM activities WHERE id IN (`+scope+`)`, args...)
		if err != nil {
			return fmt.Errorf("failed to delete activities: %w", err)
		}
		res.Activities, err = result.RowsAffected()
		return err
	})

	return res, err
}

func insertActivity(ctx context.Context, ex sqlx.ExecerContext, a *model.Activity) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := `INSERT INTO activities (id, user_id, strava_id, name, type, distance, moving_time, start_date,
	              description, private_notes, perceived_exertion, is_commute, is_indoor, calories, is_mock,
	              created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := ex.ExecContext(ctx, query,
		a.ID,
		a.UserID,
		a.StravaID,
		a.Name,
		a.Type,
		a.Distance,
		a.MovingTime,
		a.StartDate,
		a.Description,
		a.PrivateNotes,
		a.PerceivedExertion,
		a.IsCommute,
		a.IsIndoor,
		a.Calories,
		a.IsMock,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func updateActivity(ctx context.Context, ex sqlx.ExecerContext, a *model.Activity) error {
	a.UpdatedAt = time.Now()

	query := `UPDATE activities
	          SET name = $1, type = $2, distance = $3, moving_time = $4, start_date = $5, description = $6,
	              private_notes = $7, perceived_exertion = $8, is_commute = $9, is_indoor = $10,
	              calories = $11, is_mock = $12, updated_at = $13
	          WHERE id = $14`

	_, err := ex.ExecContext(ctx, query,
		a.Name,
		a.Type,
		a.Distance,
		a.MovingTime,
		a.StartDate,
		a.Description,
		a.PrivateNotes,
		a.PerceivedExertion,
		a.IsCommute,
		a.IsIndoor,
		a.Calories,
		a.IsMock,
		a.UpdatedAt,
		a.ID,
	)
	return err
}
