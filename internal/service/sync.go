package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/templui/stravasync/internal/metrics"
	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/storage"
	"github.com/templui/stravasync/internal/strava"
	"golang.org/x/sync/singleflight"
)

// StravaAPI is the subset of the Strava client the services call.
type StravaAPI interface {
	Athlete(ctx context.Context, token string) (*strava.Athlete, error)
	ListActivities(ctx context.Context, token string, perPage int) ([]strava.ActivitySummary, error)
	GetActivity(ctx context.Context, token string, id int64) (*strava.ActivityDetail, error)
	ListActivityPhotos(ctx context.Context, token string, id int64) ([]strava.Photo, error)
	UpdateActivity(ctx context.Context, token string, id int64, update strava.ActivityUpdate) error
	UploadPhoto(ctx context.Context, token string, activityID int64, filename string, r io.Reader) (*strava.Photo, error)
	SetPrimaryPhoto(ctx context.Context, token string, activityID, photoID int64) error
}

// PhotoCDNPattern builds a photo URL when Strava returns none.
const PhotoCDNPattern = "https://dgalywyr863hv.cloudfront.net/pictures/activities/%d/photos/%s/large.jpg"

const (
	syncKindActivities = "activities"
	syncKindPhotos     = "photos"
)

// SyncResult summarises an activity sync pass.
type SyncResult struct {
	Count    int `json:"count"`
	Upserted int `json:"upserted"`
	Failed   int `json:"failed"`
}

// PhotoSyncResult summarises a photo-only sync pass. Count is the number of
// activities whose photo set was replaced.
type PhotoSyncResult struct {
	Count  int `json:"count"`
	Failed int `json:"failed"`
}

// SyncService pulls activities and photos from Strava into the local store.
type SyncService struct {
	activityRepository repository.ActivityRepository
	photoRepository    repository.PhotoRepository
	refresher          *TokenRefresher
	api                StravaAPI
	storage            storage.Storage
	pageSize           int
	group              singleflight.Group
}

func NewSyncService(
	activityRepository repository.ActivityRepository,
	photoRepository repository.PhotoRepository,
	refresher *TokenRefresher,
	api StravaAPI,
	storage storage.Storage,
	pageSize int,
) *SyncService {
	if pageSize <= 0 {
		pageSize = 30
	}
	return &SyncService{
		activityRepository: activityRepository,
		photoRepository:    photoRepository,
		refresher:          refresher,
		api:                api,
		storage:            storage,
		pageSize:           pageSize,
	}
}

// SyncActivities mirrors the user's most recent Strava activities. A failure
// on one record is logged and counted without aborting the pass. Concurrent
// passes for one user share a single run.
func (s *SyncService) SyncActivities(ctx context.Context, userID string) (*SyncResult, error) {
	v, err, _ := s.group.Do(syncKindActivities+":"+userID, func() (any, error) {
		res, err := s.syncActivities(context.WithoutCancel(ctx), userID)
		metrics.RecordSyncPass(syncKindActivities, err)
		return res, err
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*SyncResult)
	return &res, nil
}

func (s *SyncService) syncActivities(ctx context.Context, userID string) (*SyncResult, error) {
	token, err := s.refresher.EnsureValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries, err := s.api.ListActivities(ctx, token, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	res := &SyncResult{Count: len(summaries)}
	for _, summary := range summaries {
		err := s.syncOne(ctx, userID, token, summary)
		metrics.RecordSyncRecord(syncKindActivities, err)
		if err != nil {
			res.Failed++
			slog.Warn("activity sync failed",
				"error", err,
				"user_id", userID,
				"strava_id", summary.ID.Value,
			)
			continue
		}
		res.Upserted++
	}

	slog.Info("activity sync finished",
		"user_id", userID,
		"count", res.Count,
		"upserted", res.Upserted,
		"failed", res.Failed,
	)
	return res, nil
}

func (s *SyncService) syncOne(ctx context.Context, userID, token string, summary strava.ActivitySummary) error {
	if !summary.ID.Valid {
		return errors.New("activity summary has no id")
	}

	detail, err := s.api.GetActivity(ctx, token, summary.ID.Value)
	if err != nil {
		return fmt.Errorf("failed to fetch activity: %w", err)
	}

	activity := normalizeActivity(userID, summary, detail)
	photos := extractDetailPhotos(detail)

	result, err := s.activityRepository.Upsert(ctx, activity, photos)
	if err != nil {
		return fmt.Errorf("failed to store activity: %w", err)
	}
	if result.Photos.Skipped > 0 {
		slog.Warn("photos skipped during activity sync",
			"activity_id", activity.ID,
			"strava_id", activity.StravaID,
			"skipped", result.Photos.Skipped,
		)
	}
	s.deleteBlobs(ctx, activity.ID, result.Photos.StoragePaths)
	return nil
}

// deleteBlobs removes files whose photo rows were replaced. Failures are
// logged and leave the file behind.
func (s *SyncService) deleteBlobs(ctx context.Context, activityID string, paths []string) {
	for _, p := range paths {
		if err := s.storage.Delete(ctx, p); err != nil {
			slog.Error("failed to delete photo from storage", "error", err, "activity_id", activityID, "path", p)
		}
	}
}

// normalizeActivity maps a Strava record onto a local activity. Fields the
// detail lacks fall back to the summary, then to zero values.
func normalizeActivity(userID string, summary strava.ActivitySummary, detail *strava.ActivityDetail) *model.Activity {
	src := detail.ActivitySummary
	if src.Name == "" {
		src.Name = summary.Name
	}
	if src.ActivityType() == "" {
		src.Type = summary.ActivityType()
	}
	if src.MovingTime == nil && src.ElapsedTime == nil {
		src.MovingTime, src.ElapsedTime = summary.MovingTime, summary.ElapsedTime
	}
	if src.Distance == 0 {
		src.Distance = summary.Distance
	}
	if src.StartDate.IsZero() {
		src.StartDate = summary.StartDate
	}

	a := &model.Activity{
		UserID:       userID,
		StravaID:     summary.ID.Value,
		Name:         src.Name,
		Type:         src.ActivityType(),
		Distance:     src.Distance,
		MovingTime:   src.Duration(),
		StartDate:    src.StartDate,
		Description:  nonEmpty(detail.Description),
		PrivateNotes: nonEmpty(detail.PrivateNote),
		IsCommute:    detail.Commute,
		IsIndoor:     detail.Trainer,
		Calories:     int(math.Max(0, math.Round(detail.Calories))),
		IsMock:       false,
	}
	if detail.PerceivedExertion != nil {
		a.PerceivedExertion = model.ExertionLabel(*detail.PerceivedExertion)
	}
	return a
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// extractDetailPhotos returns the primary photo first, then the additional
// ones. Photos without an id or a usable URL are dropped.
func extractDetailPhotos(detail *strava.ActivityDetail) []*model.Photo {
	var candidates []strava.Photo
	if detail.Photos.Primary != nil {
		p := *detail.Photos.Primary
		p.Primary = true
		candidates = append(candidates, p)
	}
	for _, p := range detail.Photos.Additional {
		p.Primary = false
		candidates = append(candidates, p)
	}

	var photos []*model.Photo
	seen := make(map[int64]bool)
	for _, p := range candidates {
		id := p.ID.Ptr()
		url := p.URL()
		if id == nil || url == "" {
			slog.Debug("skipping strava photo", "strava_id", detail.ID.Value, "unique_id", p.UniqueID)
			continue
		}
		if seen[*id] {
			continue
		}
		seen[*id] = true

		source := model.PhotoSourceRemote
		photos = append(photos, &model.Photo{
			StravaID:       id,
			StravaIDSource: &source,
			URL:            url,
			Caption:        nonEmpty(p.Caption),
			IsPrimary:      p.Primary,
		})
	}
	return photos
}

// SyncPhotos refreshes the photo sets of the user's Strava-backed activities
// from the photos endpoint.
func (s *SyncService) SyncPhotos(ctx context.Context, userID string) (*PhotoSyncResult, error) {
	v, err, _ := s.group.Do(syncKindPhotos+":"+userID, func() (any, error) {
		res, err := s.syncPhotos(context.WithoutCancel(ctx), userID)
		metrics.RecordSyncPass(syncKindPhotos, err)
		return res, err
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*PhotoSyncResult)
	return &res, nil
}

func (s *SyncService) syncPhotos(ctx context.Context, userID string) (*PhotoSyncResult, error) {
	token, err := s.refresher.EnsureValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	activities, err := s.activityRepository.ListRemoteByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	res := &PhotoSyncResult{}
	for _, activity := range activities {
		updated, err := s.syncActivityPhotos(ctx, token, activity)
		metrics.RecordSyncRecord(syncKindPhotos, err)
		if err != nil {
			res.Failed++
			slog.Warn("photo sync failed",
				"error", err,
				"activity_id", activity.ID,
				"strava_id", activity.StravaID,
			)
			continue
		}
		if updated {
			res.Count++
		}
	}

	slog.Info("photo sync finished", "user_id", userID, "count", res.Count, "failed", res.Failed)
	return res, nil
}

func (s *SyncService) syncActivityPhotos(ctx context.Context, token string, activity *model.Activity) (bool, error) {
	remote, err := s.api.ListActivityPhotos(ctx, token, activity.StravaID)
	if err != nil {
		return false, fmt.Errorf("failed to list photos: %w", err)
	}
	if len(remote) == 0 {
		return false, nil
	}

	photos := extractListedPhotos(activity.StravaID, remote)
	if len(photos) == 0 {
		return false, nil
	}

	result, err := s.photoRepository.Replace(ctx, activity.ID, photos, repository.ReplaceOptions{
		RetryWithoutStravaID: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to replace photos: %w", err)
	}
	s.deleteBlobs(ctx, activity.ID, result.StoragePaths)
	if result.Retried > 0 || result.Skipped > 0 {
		slog.Warn("photo replace degraded",
			"activity_id", activity.ID,
			"retried", result.Retried,
			"skipped", result.Skipped,
		)
	}
	return true, nil
}

// extractListedPhotos converts the photos endpoint response. Entries that only
// carry a unique_id get a derived id and entries with neither are dropped.
// Only the first primary stays primary.
func extractListedPhotos(stravaActivityID int64, remote []strava.Photo) []*model.Photo {
	var photos []*model.Photo
	primarySeen := false

	for _, p := range remote {
		if !p.ID.Valid && p.UniqueID == "" {
			slog.Warn("skipping strava photo without id", "strava_id", stravaActivityID)
			continue
		}

		var id *int64
		var source string
		if v := p.ID.Ptr(); v != nil {
			id, source = v, model.PhotoSourceRemote
		} else if p.UniqueID != "" {
			activityID := p.ActivityID.Value
			if activityID == 0 {
				activityID = stravaActivityID
			}
			id = DerivePhotoID(activityID, p.UniqueID)
			source = model.PhotoSourceDerived
		}

		url := p.URL()
		if url == "" && p.UniqueID != "" {
			url = fmt.Sprintf(PhotoCDNPattern, stravaActivityID, p.UniqueID)
		}
		if url == "" {
			slog.Debug("skipping strava photo without url", "strava_id", stravaActivityID)
			continue
		}

		photo := &model.Photo{
			URL:     url,
			Caption: nonEmpty(p.Caption),
		}
		if id != nil {
			photo.StravaID = id
			photo.StravaIDSource = &source
		}
		if p.Primary && !primarySeen {
			photo.IsPrimary = true
			primarySeen = true
		}
		photos = append(photos, photo)
	}
	return photos
}

// DerivePhotoID builds a surrogate id from the activity id followed by the
// first eight digits of uniqueID. It returns nil when uniqueID has no digits
// or the result does not fit in an int64.
func DerivePhotoID(activityID int64, uniqueID string) *int64 {
	var digits strings.Builder
	for _, r := range uniqueID {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == 8 {
				break
			}
		}
	}
	if digits.Len() == 0 || activityID < 0 {
		return nil
	}

	id, err := strconv.ParseInt(strconv.FormatInt(activityID, 10)+digits.String(), 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
