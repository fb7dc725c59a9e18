// Package jobs implements the platform's recurring maintenance work: the
// nightly upload retention sweep and the weekly audit log prune. Each
// constructor returns a scheduler.Job ready to register, closed over its
// dependencies, so the wiring in main stays declarative.
package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/urtica-dioica/tito-sub002/internal/config"
	"github.com/urtica-dioica/tito-sub002/internal/database"
	"github.com/urtica-dioica/tito-sub002/internal/scheduler"
)

// FileRetentionJobName identifies the upload retention sweep.
const FileRetentionJobName = "file-retention-sweep"

// AuditPruneJobName identifies the audit log prune.
const AuditPruneJobName = "audit-log-prune"

// retentionDays reads the retention override from trigger params, falling
// back to the configured default. JSON numbers arrive as float64.
func retentionDays(params map[string]any, fallback int) (int, error) {
	raw, ok := params["retention_days"]
	if !ok {
		return fallback, nil
	}

	switch v := raw.(type) {
	case float64:
		if v < 1 || v != float64(int(v)) {
			return 0, fmt.Errorf("retention_days must be a positive integer, got %v", v)
		}
		return int(v), nil
	case int:
		if v < 1 {
			return 0, fmt.Errorf("retention_days must be positive, got %d", v)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("retention_days must be a number, got %T", raw)
	}
}

// NewFileRetentionSweep builds the daily job that removes uploaded files
// older than the retention period. The filesystem is the source of truth;
// when the database is reachable the matching upload records are pruned
// too, and when it is not the sweep still runs and the records catch up on
// a later pass.
func NewFileRetentionSweep(cfg *config.SchedulerConfig, db *database.Manager, logger *logrus.Logger) scheduler.Job {
	run := func(ctx context.Context, params map[string]any) (*scheduler.Result, error) {
		days, err := retentionDays(params, cfg.FileRetentionDays)
		if err != nil {
			return nil, err
		}
		cutoff := time.Now().AddDate(0, 0, -days)

		removed, sweepErr := sweepDirectory(cfg.UploadDir, cutoff, logger)
		if sweepErr != nil {
			return nil, sweepErr
		}

		detail := fmt.Sprintf("%d files older than %d days removed", removed, days)

		if pool := db.Pool(); pool != nil {
			tag, execErr := pool.Exec(ctx, `DELETE FROM uploaded_files WHERE created_at < $1`, cutoff)
			if execErr != nil {
				logger.WithError(execErr).Warn("File sweep removed files but could not prune upload records")
			} else {
				detail = fmt.Sprintf("%s, %d upload records pruned", detail, tag.RowsAffected())
			}
		}

		return &scheduler.Result{Count: removed, Detail: detail}, nil
	}

	return scheduler.Job{
		Name: FileRetentionJobName,
		Rule: scheduler.Daily(cfg.FileRetentionSlot()),
		Run:  run,
	}
}

// sweepDirectory removes regular files under dir whose modification time
// is before cutoff. A missing directory means nothing has been uploaded
// yet and is not an error; individual remove failures are logged and the
// sweep continues.
func sweepDirectory(dir string, cutoff time.Time, logger *logrus.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read upload directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if removeErr := os.Remove(path); removeErr != nil {
			logger.WithError(removeErr).WithField("file", path).Warn("Failed to remove expired upload")
			continue
		}
		removed++
	}

	return removed, nil
}

// NewAuditLogPrune builds the weekly job that deletes audit log rows older
// than the retention period. Unlike the file sweep, this job has nothing
// to do without the database, so an unavailable database fails the run;
// scheduled occurrences log the failure and stay scheduled.
func NewAuditLogPrune(cfg *config.SchedulerConfig, db *database.Manager, logger *logrus.Logger) scheduler.Job {
	run := func(ctx context.Context, params map[string]any) (*scheduler.Result, error) {
		days, err := retentionDays(params, cfg.AuditRetentionDays)
		if err != nil {
			return nil, err
		}

		pool := db.Pool()
		if pool == nil {
			return nil, database.ErrUnavailable
		}

		cutoff := time.Now().AddDate(0, 0, -days)
		tag, execErr := pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
		if execErr != nil {
			return nil, fmt.Errorf("failed to prune audit logs: %w", execErr)
		}

		pruned := int(tag.RowsAffected())
		logger.WithFields(logrus.Fields{
			"rows_pruned":    pruned,
			"retention_days": days,
		}).Debug("Audit log prune completed")

		return &scheduler.Result{
			Count:  pruned,
			Detail: fmt.Sprintf("%d audit rows older than %d days pruned", pruned, days),
		}, nil
	}

	weekday, slot := cfg.AuditPruneSlot()
	return scheduler.Job{
		Name: AuditPruneJobName,
		Rule: scheduler.Weekly(weekday, slot),
		Run:  run,
	}
}
