package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/templui/stravasync/internal/db/dbtest"
	"github.com/templui/stravasync/internal/model"
)

type repos struct {
	db         *sqlx.DB
	users      UserRepository
	tokens     TokenRepository
	activities ActivityRepository
	photos     PhotoRepository
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	conn := dbtest.SQLite(t)
	return &repos{
		db:         conn,
		users:      NewUserRepository(conn),
		tokens:     NewTokenRepository(conn),
		activities: NewActivityRepository(conn),
		photos:     NewPhotoRepository(conn),
	}
}

func (r *repos) user(t *testing.T) *model.User {
	t.Helper()
	now := time.Now()
	u := &model.User{
		ID:        uuid.New().String(),
		Subject:   uuid.New().String(),
		Email:     "runner@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, r.users.Create(context.Background(), u))
	return u
}

func newActivity(userID string, stravaID int64, mock bool) *model.Activity {
	return &model.Activity{
		UserID:     userID,
		StravaID:   stravaID,
		Name:       fmt.Sprintf("Activity %d", stravaID),
		Type:       "Run",
		Distance:   5000,
		MovingTime: 1500,
		StartDate:  time.Now().Add(-time.Duration(stravaID%100) * time.Hour),
		IsMock:     mock,
	}
}

func (r *repos) activity(t *testing.T, userID string, stravaID int64, mock bool) *model.Activity {
	t.Helper()
	a := newActivity(userID, stravaID, mock)
	require.NoError(t, r.activities.CreateMany(context.Background(), []*model.Activity{a}))
	return a
}

func remotePhoto(id int64, primary bool) *model.Photo {
	source := model.PhotoSourceRemote
	return &model.Photo{
		StravaID:       &id,
		StravaIDSource: &source,
		URL:            fmt.Sprintf("https://cdn.example.com/%d.jpg", id),
		IsPrimary:      primary,
	}
}
