package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := clock
	clock = func() time.Time { return at }
	t.Cleanup(func() { clock = prev })
}

func TestCreateSQLMigrationBumpsCollidingVersion(t *testing.T) {
	fixClock(t, time.Date(2026, 3, 1, 9, 4, 0, 0, time.UTC))
	dir := t.TempDir()

	first, err := CreateSQLMigration(dir, "add_code_batches")
	require.NoError(t, err)
	assert.Equal(t, "20260301090400_add_code_batches.sql", filepath.Base(first))

	second, err := CreateSQLMigration(dir, "index codes by batch")
	require.NoError(t, err)
	assert.Equal(t, "20260301090401_index_codes_by_batch.sql", filepath.Base(second))

	n, err := ValidateDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCreateSQLMigrationRejectsReusedName(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20250101000000_seed_products.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	_, err := CreateSQLMigration(dir, "Seed Products")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "add_code_batches", slugify("  Add Code-Batches! "))
	assert.Empty(t, slugify("!!!"))
}
