package migrate

import (
	"context"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/digital-fulfillment/pkg/db/dbtest"
)

func TestNewRunnerValidatesInputs(t *testing.T) {
	_, err := NewRunner(nil, "migrations")
	require.EqualError(t, err, "db is required")

	sqlDB, err := dbtest.Open(t).DB()
	require.NoError(t, err)
	_, err = NewRunner(sqlDB, "")
	require.EqualError(t, err, "dir is required")
}

func TestRunnerRejectsUnknownCommand(t *testing.T) {
	sqlDB, err := dbtest.Open(t).DB()
	require.NoError(t, err)
	runner, err := NewRunner(sqlDB, "migrations")
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), "redo")
	require.ErrorContains(t, err, `unknown migrate command "redo"`)
}

func TestStepsSkipsEmptyResults(t *testing.T) {
	got := steps([]*goose.MigrationResult{
		nil,
		{Source: &goose.Source{Version: 20260301090000, Path: "20260301090000_create_codes.sql"}, Direction: "up", Duration: time.Second},
		{Direction: "up"},
	})
	require.Len(t, got, 1)
	assert.Equal(t, Step{
		Version:   20260301090000,
		Path:      "20260301090000_create_codes.sql",
		Direction: "up",
		Duration:  time.Second,
	}, got[0])
}

func TestParseVersionBounds(t *testing.T) {
	for _, bad := range []string{"", "2026", "2026030109000x", "202603010900001"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
	v, err := ParseVersion("20260301090400")
	require.NoError(t, err)
	assert.EqualValues(t, 20260301090400, v)
}
