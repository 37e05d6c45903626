package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/templui/stravasync/internal/model"
	"github.com/templui/stravasync/internal/repository"
	"github.com/templui/stravasync/internal/storage"
)

const DefaultMockCount = 10

var mockTimesOfDay = []string{"Morning", "Lunch", "Afternoon", "Evening", "Night"}

// MockService creates and removes generated activities. Generated activities
// are flagged is_mock and are never sent to Strava.
type MockService struct {
	activityRepository repository.ActivityRepository
	storage            storage.Storage
	maxCount           int

	mu   sync.Mutex
	rand *rand.Rand
	now  func() time.Time
}

func NewMockService(activityRepository repository.ActivityRepository, storage storage.Storage, maxCount int) *MockService {
	return &MockService{
		activityRepository: activityRepository,
		storage:            storage,
		maxCount:           maxCount,
		rand:               rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:                time.Now,
	}
}

// Generate inserts count generated activities for userID in one transaction.
// A count of zero means DefaultMockCount. Strava ids continue after the
// highest generated id in the store, starting at model.MockStravaIDBase.
func (s *MockService) Generate(ctx context.Context, userID string, count int) ([]*model.Activity, error) {
	if count == 0 {
		count = DefaultMockCount
	}
	if count < 1 || count > s.maxCount {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, s.maxCount)
	}

	base := model.MockStravaIDBase
	highest, ok, err := s.activityRepository.MaxMockStravaID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read mock id range: %w", err)
	}
	if ok && highest+1 > base {
		base = highest + 1
	}

	activities := make([]*model.Activity, count)
	s.mu.Lock()
	for i := range activities {
		activities[i] = s.newMock(userID, base+int64(i))
	}
	s.mu.Unlock()

	if err := s.activityRepository.CreateMany(ctx, activities); err != nil {
		return nil, fmt.Errorf("failed to create mock activities: %w", err)
	}

	slog.Info("mock activities generated", "user_id", userID, "count", count, "first_strava_id", base)
	return activities, nil
}

func (s *MockService) newMock(userID string, stravaID int64) *model.Activity {
	activityType := model.ActivityTypes[s.rand.IntN(len(model.ActivityTypes))]

	var distance float64
	switch activityType {
	case "WeightTraining", "Yoga":
	default:
		distance = float64(s.rand.IntN(10_000) + 1)
	}

	start := s.now().Add(-time.Duration(s.rand.Int64N(int64(60 * 24 * time.Hour))))

	return &model.Activity{
		UserID:     userID,
		StravaID:   stravaID,
		Name:       fmt.Sprintf("%s %s", mockTimesOfDay[s.rand.IntN(len(mockTimesOfDay))], activityType),
		Type:       activityType,
		Distance:   distance,
		MovingTime: s.rand.IntN(2*60*60) + 1,
		StartDate:  start.UTC().Truncate(time.Second),
		Calories:   s.rand.IntN(1000),
		IsMock:     true,
	}
}

// DeleteMock removes the user's generated activities and their photos.
func (s *MockService) DeleteMock(ctx context.Context, userID string) (repository.DeleteResult, error) {
	return s.delete(ctx, userID, true)
}

// DeleteAll removes every activity of the user, Strava-backed ones included.
func (s *MockService) DeleteAll(ctx context.Context, userID string) (repository.DeleteResult, error) {
	return s.delete(ctx, userID, false)
}

func (s *MockService) delete(ctx context.Context, userID string, mockOnly bool) (repository.DeleteResult, error) {
	res, err := s.activityRepository.DeleteByUser(ctx, userID, mockOnly)
	if err != nil {
		return res, fmt.Errorf("failed to delete activities: %w", err)
	}

	for _, p := range res.StoragePaths {
		if err := s.storage.Delete(ctx, p); err != nil {
			slog.Error("failed to delete photo from storage", "error", err, "path", p)
		}
	}

	slog.Info("activities deleted",
		"user_id", userID,
		"mock_only", mockOnly,
		"activities", res.Activities,
		"photos", res.Photos,
	)
	return res, nil
}
