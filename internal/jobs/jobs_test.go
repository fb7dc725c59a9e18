package jobs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/database"
	"github.com/urtica-dioica/tito-sub002/internal/jobs"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// unavailableDB returns a manager with no configured database.
func unavailableDB(t *testing.T) *database.Manager {
	t.Helper()

	db := database.NewManager(&config.Config{}, testLogger())
	t.Cleanup(db.Close)
	return db
}

// writeAgedFile creates a file and backdates its modification time.
func writeAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("payslip"), 0o600))

	stamp := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, stamp, stamp))
	return path
}

func sweepConfig(dir string) *config.SchedulerConfig {
	return &config.SchedulerConfig{
		FileRetentionAt:    "02:00",
		FileRetentionDays:  90,
		UploadDir:          dir,
		AuditPruneAt:       "Sunday 03:30",
		AuditRetentionDays: 365,
	}
}

func TestFileRetentionSweepRemovesOnlyExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	expired := writeAgedFile(t, dir, "old-payslip.pdf", 91*24*time.Hour)
	fresh := writeAgedFile(t, dir, "new-payslip.pdf", 24*time.Hour)

	// Subdirectories are left alone.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o750))

	job := jobs.NewFileRetentionSweep(sweepConfig(dir), unavailableDB(t), testLogger())
	assert.Equal(t, "file-retention-sweep", job.Name)
	assert.Equal(t, "daily at 02:00", job.Rule.String())

	result, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)

	assert.NoFileExists(t, expired)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "archive"))
}

func TestFileRetentionSweepHonorsRetentionOverride(t *testing.T) {
	dir := t.TempDir()
	writeAgedFile(t, dir, "recent.pdf", 40*24*time.Hour)

	job := jobs.NewFileRetentionSweep(sweepConfig(dir), unavailableDB(t), testLogger())

	// At the default 90 days the file survives.
	result, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Count)

	// A manual trigger can tighten the window.
	result, err = job.Run(context.Background(), map[string]any{"retention_days": float64(30)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestFileRetentionSweepRejectsBadOverride(t *testing.T) {
	job := jobs.NewFileRetentionSweep(sweepConfig(t.TempDir()), unavailableDB(t), testLogger())

	tests := []struct {
		name   string
		params map[string]any
	}{
		{name: "negative", params: map[string]any{"retention_days": float64(-1)}},
		{name: "zero", params: map[string]any{"retention_days": float64(0)}},
		{name: "fractional", params: map[string]any{"retention_days": 1.5}},
		{name: "not_a_number", params: map[string]any{"retention_days": "thirty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := job.Run(context.Background(), tt.params)
			assert.Error(t, err)
		})
	}
}

func TestFileRetentionSweepMissingDirectory(t *testing.T) {
	cfg := sweepConfig(filepath.Join(t.TempDir(), "never-created"))
	job := jobs.NewFileRetentionSweep(cfg, unavailableDB(t), testLogger())

	// Nothing uploaded yet is not a failure.
	result, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Count)
}

func TestAuditLogPruneRequiresDatabase(t *testing.T) {
	job := jobs.NewAuditLogPrune(sweepConfig(t.TempDir()), unavailableDB(t), testLogger())
	assert.Equal(t, "audit-log-prune", job.Name)
	assert.Equal(t, "weekly on Sunday at 03:30", job.Rule.String())

	_, err := job.Run(context.Background(), nil)
	assert.ErrorIs(t, err, database.ErrUnavailable)
}
