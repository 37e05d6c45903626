//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/templui/stravasync/internal/db"
	"github.com/templui/stravasync/internal/model"
)

func newPostgresRepos(t *testing.T) *repos {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("stravasync"),
		postgrescontainer.WithUsername("stravasync"),
		postgrescontainer.WithPassword("stravasync"),
		postgrescontainer.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Init("pgx", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	require.NoError(t, db.RunMigrations(ctx, conn.DB, "pgx"))

	return &repos{
		db:         conn,
		users:      NewUserRepository(conn),
		tokens:     NewTokenRepository(conn),
		activities: NewActivityRepository(conn),
		photos:     NewPhotoRepository(conn),
	}
}

func TestPostgresUpsertAndPhotoReplace(t *testing.T) {
	r := newPostgresRepos(t)
	ctx := context.Background()
	u := r.user(t)

	a := newActivity(u.ID, 555, false)
	res, err := r.activities.Upsert(ctx, a, []*model.Photo{remotePhoto(1, true), remotePhoto(2, false)})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 2, res.Photos.Inserted)

	again := newActivity(u.ID, 555, false)
	res, err = r.activities.Upsert(ctx, again, []*model.Photo{remotePhoto(3, true)})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, a.ID, again.ID)

	photos, err := r.photos.ListByActivity(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.EqualValues(t, 3, *photos[0].StravaID)
}

func TestPostgresReplaceRetriesDuplicateIDs(t *testing.T) {
	r := newPostgresRepos(t)
	ctx := context.Background()
	u := r.user(t)
	a := r.activity(t, u.ID, 556, false)

	res, err := r.photos.Replace(ctx, a.ID, []*model.Photo{remotePhoto(7, true), remotePhoto(7, false)},
		ReplaceOptions{RetryWithoutStravaID: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Retried)
}

func TestPostgresSetPrimaryAndTokens(t *testing.T) {
	r := newPostgresRepos(t)
	ctx := context.Background()
	u := r.user(t)
	a := r.activity(t, u.ID, 557, false)

	p1, p2 := remotePhoto(1, true), remotePhoto(2, false)
	_, err := r.photos.Replace(ctx, a.ID, []*model.Photo{p1, p2}, ReplaceOptions{})
	require.NoError(t, err)
	require.NoError(t, r.photos.SetPrimary(ctx, a.ID, p2.ID))
	assert.Equal(t, 1, primaries(t, r, a.ID))

	require.NoError(t, r.tokens.Create(ctx, &model.Token{
		UserID:    u.ID,
		Type:      model.TokenTypeStravaLink,
		Token:     "pg-state",
		ExpiresAt: time.Now().Add(time.Minute),
	}))
	tok, err := r.tokens.ConsumeToken(ctx, "pg-state", model.TokenTypeStravaLink)
	require.NoError(t, err)
	assert.Equal(t, u.ID, tok.UserID)
	_, err = r.tokens.ConsumeToken(ctx, "pg-state", model.TokenTypeStravaLink)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
