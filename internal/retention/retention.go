package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"inboxdb/pkg/config"
	"inboxdb/pkg/logger"
	"inboxdb/pkg/state"
	"inboxdb/pkg/store"
)

const defaultPeriod = 30 * 24 * time.Hour

// Start starts the tombstone purge scheduler if enabled. Returns a
// cancel func that stops the scheduler.
func Start(ctx context.Context, st store.Store, ret config.RetentionConfig) (context.CancelFunc, error) {
	if !ret.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	// lock and last-run artifacts live under <DBPath>/state/retention
	retentionPath := state.PathsVar.Retention
	if retentionPath != "" {
		if err := os.MkdirAll(retentionPath, 0o700); err != nil {
			logger.Error("retention_path_create_failed", zap.String("path", retentionPath), zap.Error(err))
			return nil, err
		}
	}

	// map empty cron to default daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", zap.String("cron", ret.Cron))
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	period := ret.Period.Duration()
	if period <= 0 {
		period = defaultPeriod
	}

	logger.Info("retention_enabled",
		zap.String("cron", cronExpr),
		zap.Duration("period", period),
		zap.Bool("dry_run", ret.DryRun),
	)

	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, st, cronExpr, period, ret.DryRun, retentionPath)
	return cancel, nil
}

// runScheduler uses gronx to compute the next tick for the configured
// cron expression and sleeps until that time.
func runScheduler(ctx context.Context, st store.Store, cronExpr string, period time.Duration, dryRun bool, markPath string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, st, period, dryRun, markPath); err != nil {
				logger.Error("retention_run_error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}
	}
}

// RunOnce purges tombstoned records older than the period and records
// the run in the retention state dir. Exposed so tests and admin
// tooling can trigger a run without the scheduler.
func RunOnce(ctx context.Context, st store.Store, period time.Duration, dryRun bool, markPath string) error {
	cutoff := time.Now().UTC().Add(-period)
	if dryRun {
		logger.Info("retention_dry_run", zap.Time("cutoff", cutoff))
		return nil
	}
	n, err := st.PurgeDeleted(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge deleted: %w", err)
	}
	logger.Info("retention_purged", zap.Int("records", n), zap.Time("cutoff", cutoff))
	if markPath != "" {
		mark := filepath.Join(markPath, "last_run")
		_ = os.WriteFile(mark, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o600)
	}
	return nil
}
