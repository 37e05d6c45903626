package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/templui/stravasync/internal/metrics"
	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/storage"
	"github.com/templui/stravasync/internal/strava"
	"github.com/templui/stravasync/internal/validation"
)

// PhotoService keeps local photos and, where possible, their Strava copies
// in step. Strava writes are best-effort; the local store is authoritative.
type PhotoService struct {
	photoRepository repository.PhotoRepository
	activities      *ActivityService
	refresher       *TokenRefresher
	api             StravaAPI
	storage         storage.Storage
	constraints     validation.FileConstraints
}

func NewPhotoService(
	photoRepository repository.PhotoRepository,
	activities *ActivityService,
	refresher *TokenRefresher,
	api StravaAPI,
	storage storage.Storage,
	maxSize int64,
) *PhotoService {
	constraints := validation.ImageConstraints
	if maxSize > 0 {
		constraints.MaxSize = maxSize
	}
	return &PhotoService{
		photoRepository: photoRepository,
		activities:      activities,
		refresher:       refresher,
		api:             api,
		storage:         storage,
		constraints:     constraints,
	}
}

// List returns the photos of an activity, primary first.
func (s *PhotoService) List(ctx context.Context, userID, activityID string) ([]*model.Photo, error) {
	if _, err := s.activities.Owned(ctx, userID, activityID); err != nil {
		return nil, err
	}
	return s.photoRepository.ListByActivity(ctx, activityID)
}

// Add stores an uploaded image and records it as a non-primary photo. For
// Strava-backed activities the image is also uploaded to Strava; a failed
// upload is logged and the photo is kept locally.
func (s *PhotoService) Add(ctx context.Context, userID, activityID, filename string, data []byte, caption string) (*model.Photo, error) {
	activity, err := s.activities.Owned(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateFile(filename, data, s.constraints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	storagePath := path.Join("photos", activity.ID, uuid.New().String()+ext)
	if err := s.storage.Save(ctx, storagePath, bytes.NewReader(data)); err != nil {
		slog.Error("failed to save photo", "error", err, "path", storagePath)
		return nil, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}

	photo := &model.Photo{
		ActivityID:  activity.ID,
		URL:         s.storage.URL(storagePath),
		StoragePath: &storagePath,
	}
	if caption = strings.TrimSpace(caption); caption != "" {
		photo.Caption = &caption
	}

	if !activity.IsMock {
		if remote := s.mirrorUpload(ctx, userID, activity, filename, data); remote != nil {
			if id := remote.ID.Ptr(); id != nil {
				source := model.PhotoSourceRemote
				photo.StravaID = id
				photo.StravaIDSource = &source
			}
			if u := remote.URLs[strava.PreferredSize]; u != "" {
				photo.URL = u
			}
		}
	}

	if err := s.photoRepository.Create(ctx, photo); err != nil {
		if delErr := s.storage.Delete(ctx, storagePath); delErr != nil {
			slog.Error("failed to delete photo from storage during cleanup", "error", delErr, "path", storagePath)
		}
		return nil, fmt.Errorf("failed to create photo record: %w", err)
	}

	return photo, nil
}

func (s *PhotoService) mirrorUpload(ctx context.Context, userID string, activity *model.Activity, filename string, data []byte) *strava.Photo {
	token, err := s.refresher.EnsureValidToken(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	if err != nil {
		metrics.RecordPhotoMirror("upload", err)
		slog.Warn("skipping strava photo upload", "error", err, "activity_id", activity.ID)
		return nil
	}

	remote, err := s.api.UploadPhoto(ctx, token, activity.StravaID, filename, bytes.NewReader(data))
	metrics.RecordPhotoMirror("upload", err)
	if err != nil {
		slog.Warn("strava photo upload failed", "error", err, "activity_id", activity.ID, "strava_id", activity.StravaID)
		return nil
	}
	return remote
}

func (s *PhotoService) owned(ctx context.Context, userID, photoID string) (*model.Photo, *model.Activity, error) {
	photo, err := s.photoRepository.ByID(ctx, photoID)
	if err != nil {
		return nil, nil, err
	}
	activity, err := s.activities.Owned(ctx, userID, photo.ActivityID)
	if err != nil {
		return nil, nil, err
	}
	return photo, activity, nil
}

// Delete removes a photo and its stored blob. Strava has no photo delete
// endpoint, so remote copies stay in place.
func (s *PhotoService) Delete(ctx context.Context, userID, photoID string) error {
	photo, _, err := s.owned(ctx, userID, photoID)
	if err != nil {
		return err
	}

	if photo.HasRemoteID() {
		slog.Info("photo remains on strava", "photo_id", photo.ID, "strava_id", *photo.StravaID)
	}

	if photo.StoragePath != nil {
		if err := s.storage.Delete(ctx, *photo.StoragePath); err != nil {
			slog.Error("failed to delete photo from storage", "error", err, "path", *photo.StoragePath)
		}
	}

	if err := s.photoRepository.Delete(ctx, photo.ID); err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	return nil
}

// SetPrimary makes photoID the activity's only primary photo, mirroring the
// choice to Strava when the photo has a Strava-issued id.
func (s *PhotoService) SetPrimary(ctx context.Context, userID, photoID string) (*model.Photo, error) {
	photo, activity, err := s.owned(ctx, userID, photoID)
	if err != nil {
		return nil, err
	}

	if !activity.IsMock && photo.HasRemoteID() {
		s.mirrorPrimary(ctx, userID, activity, *photo.StravaID)
	}

	if err := s.photoRepository.SetPrimary(ctx, activity.ID, photo.ID); err != nil {
		return nil, fmt.Errorf("failed to set primary photo: %w", err)
	}
	photo.IsPrimary = true
	return photo, nil
}

func (s *PhotoService) mirrorPrimary(ctx context.Context, userID string, activity *model.Activity, stravaPhotoID int64) {
	token, err := s.refresher.EnsureValidToken(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return
	}
	if err == nil {
		err = s.api.SetPrimaryPhoto(ctx, token, activity.StravaID, stravaPhotoID)
	}
	metrics.RecordPhotoMirror("set_primary", err)
	if err != nil {
		slog.Warn("strava primary photo update failed", "error", err, "activity_id", activity.ID, "strava_photo_id", stravaPhotoID)
	}
}
