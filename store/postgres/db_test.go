package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsUsesEmbeddedDir(t *testing.T) {
	repo, _ := newRepoWithMock(t)

	var gotDir string
	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	t.Cleanup(func() { gooseUpContext = orig })

	require.NoError(t, RunMigrations(context.Background(), repo.db))
	assert.Equal(t, "migrations", gotDir)
}

func TestRunMigrationsWrapsError(t *testing.T) {
	repo, _ := newRepoWithMock(t)

	boom := errors.New("boom")
	orig := gooseUpContext
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }
	t.Cleanup(func() { gooseUpContext = orig })

	err := RunMigrations(context.Background(), repo.db)
	assert.ErrorIs(t, err, boom)
}

func TestMigrationIsEmbedded(t *testing.T) {
	raw, err := migrationFS.ReadFile("migrations/00001_users.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "-- +goose Up")
	assert.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS backup_codes")
}
