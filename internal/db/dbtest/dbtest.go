// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/templui/stravasync/internal/db"
)

const sqlitePragmas = "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"

// SQLite returns a migrated SQLite database stored under t.TempDir.
func SQLite(t testing.TB) *sqlx.DB {
	t.Helper()

	goose.SetLogger(goose.NopLogger())

	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := db.Init("sqlite", path+sqlitePragmas)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })

	require.NoError(t, db.RunMigrations(context.Background(), conn.DB, "sqlite"))
	return conn
}
