package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/strava"
)

// ActivityService reads activities and applies local edits, pushing them to
// Strava for activities that came from there.
type ActivityService struct {
	activityRepository repository.ActivityRepository
	refresher          *TokenRefresher
	api                StravaAPI
}

func NewActivityService(
	activityRepository repository.ActivityRepository,
	refresher *TokenRefresher,
	api StravaAPI,
) *ActivityService {
	return &ActivityService{
		activityRepository: activityRepository,
		refresher:          refresher,
		api:                api,
	}
}

// List returns the user's activities newest first, photos included.
func (s *ActivityService) List(ctx context.Context, userID string) ([]*model.Activity, error) {
	activities, err := s.activityRepository.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	return activities, nil
}

// Owned loads an activity and checks it belongs to userID.
func (s *ActivityService) Owned(ctx context.Context, userID, activityID string) (*model.Activity, error) {
	activity, err := s.activityRepository.ByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if activity.UserID != userID {
		return nil, ErrForbidden
	}
	return activity, nil
}

// Update validates the edit, pushes it to Strava for remote-backed
// activities and then persists it. When the push fails nothing is stored.
// Generated activities and users without a Strava link only change locally.
func (s *ActivityService) Update(ctx context.Context, userID, activityID string, edit model.ActivityEdit) (*model.Activity, error) {
	current, err := s.Owned(ctx, userID, activityID)
	if err != nil {
		return nil, err
	}

	if edit.PerceivedExertion != nil {
		label, ok := model.ParseExertion(*edit.PerceivedExertion)
		if !ok {
			return nil, fmt.Errorf("%w: unknown perceived exertion %q", ErrInvalidInput, *edit.PerceivedExertion)
		}
		edit.PerceivedExertion = &label
	}
	if edit.Name != nil && *edit.Name == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}

	next := edit.Apply(*current)

	if !next.IsMock {
		if err := s.push(ctx, userID, &next); err != nil {
			return nil, err
		}
	}

	if err := s.activityRepository.UpdateEditable(ctx, &next); err != nil {
		return nil, fmt.Errorf("failed to update activity: %w", err)
	}
	return &next, nil
}

func (s *ActivityService) push(ctx context.Context, userID string, a *model.Activity) error {
	token, err := s.refresher.EnsureValidToken(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		slog.Debug("strava not linked, updating activity locally", "user_id", userID, "activity_id", a.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteUpdateFailed, err)
	}

	update := strava.ActivityUpdate{
		Name:    a.Name,
		Type:    a.Type,
		Commute: a.IsCommute,
		Trainer: a.IsIndoor,
	}
	if a.Description != nil {
		update.Description = *a.Description
	}
	if a.PrivateNotes != nil {
		update.PrivateNote = *a.PrivateNotes
	}
	if a.PerceivedExertion != nil {
		if score, ok := model.ExertionScore(*a.PerceivedExertion); ok {
			update.PerceivedExertion = &score
		}
	}

	if err := s.api.UpdateActivity(ctx, token, a.StravaID, update); err != nil {
		slog.Warn("strava activity update failed", "error", err, "activity_id", a.ID, "strava_id", a.StravaID)
		return fmt.Errorf("%w: %w", ErrRemoteUpdateFailed, err)
	}
	return nil
}
