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
	ErrPhotoNotFound = errors.New("photo not found")
)

// ReplaceOptions controls how individual photo inserts are handled while a
// photo set is replaced.
type ReplaceOptions struct {
	// RetryWithoutStravaID retries a failed insert once with a nil Strava id.
	RetryWithoutStravaID bool
}

// ReplaceResult reports what happened to each candidate photo.
// StoragePaths lists the blobs that backed the removed photos.
type ReplaceResult struct {
	Inserted     int
	Retried      int
	Skipped      int
	StoragePaths []string
}

type PhotoRepository interface {
	ByID(ctx context.Context, id string) (*model.Photo, error)
	ListByActivity(ctx context.Context, activityID string) ([]*model.Photo, error)
	Create(ctx context.Context, photo *model.Photo) error
	Delete(ctx context.Context, id string) error
	SetPrimary(ctx context.Context, activityID, photoID string) error
	Replace(ctx context.Context, activityID string, photos []*model.Photo, opts ReplaceOptions) (ReplaceResult, error)
}

type photoRepository struct {
	db *sqlx.DB
}

func NewPhotoRepository(db *sqlx.DB) PhotoRepository {
	return &photoRepository{db: db}
}

func (r *photoRepository) ByID(ctx context.Context, id string) (*model.Photo, error) {
	photo := &model.Photo{}
	query := `SELECT * FROM photos WHERE id = $1`

	err := r.db.GetContext(ctx, photo, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrPhotoNotFound
	}

	return photo, err
}

func (r *photoRepository) ListByActivity(ctx context.Context, activityID string) ([]*model.Photo, error) {
	photos := []*model.Photo{}
	query := `SELECT * FROM photos WHERE activity_id = $1 ORDER BY is_primary DESC, created_at ASC, id ASC`

	err := r.db.SelectContext(ctx, &photos, query, activityID)
	if err != nil {
		return nil, err
	}

	return photos, nil
}

func (r *photoRepository) Create(ctx context.Context, photo *model.Photo) error {
	return insertPhoto(ctx, r.db, photo)
}

func (r *photoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrPhotoNotFound
	}

	return nil
}

// SetPrimary makes photoID the only primary photo of activityID.
func (r *photoRepository) SetPrimary(ctx context.Context, activityID, photoID string) error {
	return db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		// Touch the parent row first so concurrent swaps on one activity queue
		// behind each other.
		if _, err := tx.ExecContext(ctx, `UPDATE activities SET updated_at = updated_at WHERE id = $1`, activityID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE photos SET is_primary = $1 WHERE activity_id = $2 AND is_primary = $3`,
			false, activityID, true)
		if err != nil {
			return fmt.Errorf("failed to clear primary photo: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE photos SET is_primary = $1 WHERE id = $2 AND activity_id = $3`,
			true, photoID, activityID)
		if err != nil {
			return fmt.Errorf("failed to set primary photo: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrPhotoNotFound
		}
		return nil
	})
}

// Replace swaps the full photo set of an activity in one transaction.
func (r *photoRepository) Replace(ctx context.Context, activityID string, photos []*model.Photo, opts ReplaceOptions) (ReplaceResult, error) {
	var res ReplaceResult
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		res, err = replacePhotos(ctx, tx, activityID, photos, opts)
		return err
	})
	return res, err
}

func replacePhotos(ctx context.Context, tx *sqlx.Tx, activityID string, photos []*model.Photo, opts ReplaceOptions) (ReplaceResult, error) {
	var res ReplaceResult

	var paths []string
	err := tx.SelectContext(ctx, &paths,
		`SELECT storage_path FROM photos WHERE activity_id = $1 AND storage_path IS NOT NULL`, activityID)
	if err != nil {
		return res, fmt.Errorf("failed to list photo blobs: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM photos WHERE activity_id = $1`, activityID); err != nil {
		return res, fmt.Errorf("failed to clear photos: %w", err)
	}

	for i, photo := range photos {
		photo.ActivityID = activityID

		err := db.Savepoint(ctx, tx, fmt.Sprintf("photo_%d", i), func() error {
			return insertPhoto(ctx, tx, photo)
		})
		if err == nil {
			res.Inserted++
			continue
		}

		if !opts.RetryWithoutStravaID || photo.StravaID == nil {
			res.Skipped++
			continue
		}

		stravaID, source := photo.StravaID, photo.StravaIDSource
		photo.StravaID, photo.StravaIDSource = nil, nil
		err = db.Savepoint(ctx, tx, fmt.Sprintf("photo_%d_retry", i), func() error {
			return insertPhoto(ctx, tx, photo)
		})
		if err != nil {
			photo.StravaID, photo.StravaIDSource = stravaID, source
			res.Skipped++
			continue
		}
		res.Retried++
		res.Inserted++
	}

	kept := make(map[string]bool)
	for _, photo := range photos {
		if photo.StoragePath != nil {
			kept[*photo.StoragePath] = true
		}
	}
	for _, p := range paths {
		if !kept[p] {
			res.StoragePaths = append(res.StoragePaths, p)
		}
	}

	return res, nil
}

func insertPhoto(ctx context.Context, ex sqlx.ExecerContext, photo *model.Photo) error {
	if photo.ID == "" {
		photo.ID = uuid.New().String()
	}
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = time.Now()
	}

	query := `INSERT INTO photos (id, activity_id, strava_id, strava_id_source, url, caption, is_primary, storage_path, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := ex.ExecContext(ctx, query,
		photo.ID,
		photo.ActivityID,
		photo.StravaID,
		photo.StravaIDSource,
		photo.URL,
		photo.Caption,
		photo.IsPrimary,
		photo.StoragePath,
		photo.CreatedAt,
	)
	return err
}
