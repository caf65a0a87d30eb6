package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"00001_users.sql", "00002_refresh_tokens.sql", "00003_audit_logs.sql"}, names)

	raw, err := fs.ReadFile(migrations, "migrations/00002_refresh_tokens.sql")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "token_id   TEXT PRIMARY KEY")
}

func TestMigrateRunsGooseOnEmbeddedDir(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Migrate(context.Background(), nil))
	assert.Equal(t, "migrations", gotDir)
}

func TestMigrateWrapsError(t *testing.T) {
	orig := gooseUp
	defer func() { gooseUp = orig }()

	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return errors.New("connection refused")
	}

	err := Migrate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migrations")
}

func TestLedgerRowsOutliveUserDeletion(t *testing.T) {
	raw, err := fs.ReadFile(migrations, "migrations/00002_refresh_tokens.sql")
	require.NoError(t, err)

	assert.Contains(t, string(raw), "REFERENCES users (id) ON DELETE RESTRICT")
	assert.NotContains(t, string(raw), "CASCADE")
}
