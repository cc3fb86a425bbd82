package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smartcore/vaultgate/internal/metrics"
)

// LedgerPruner deletes ledger rows older than a cutoff
type LedgerPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionConfig holds the schedule and maximum age of ledger rows
type RetentionConfig struct {
	Schedule  string
	Retention time.Duration
	Timeout   time.Duration
}

// RetentionManager prunes the vault audit log on a cron schedule
type RetentionManager struct {
	cron    *cron.Cron
	pruner  LedgerPruner
	metrics metrics.GateRecorder
	config  RetentionConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(pruner LedgerPruner, recorder metrics.GateRecorder, config RetentionConfig, logger *slog.Logger) *RetentionManager {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &RetentionManager{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		pruner:  pruner,
		metrics: recorder,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// Start schedules the prune job and starts the scheduler
func (rm *RetentionManager) Start(ctx context.Context) error {
	if _, err := rm.cron.AddFunc(rm.config.Schedule, func() { rm.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule ledger retention %q: %w", rm.config.Schedule, err)
	}

	rm.logger.Info("scheduled ledger retention job",
		slog.String("schedule", rm.config.Schedule),
		slog.Duration("retention", rm.config.Retention),
	)
	rm.cron.Start()
	return nil
}

// RunOnce deletes rows older than the retention period
func (rm *RetentionManager) RunOnce(ctx context.Context) {
	cutoff := rm.now().UTC().Add(-rm.config.Retention)

	pruneCtx, cancel := context.WithTimeout(ctx, rm.config.Timeout)
	defer cancel()

	rowsDeleted, err := rm.pruner.DeleteOlderThan(pruneCtx, cutoff)
	if err != nil {
		rm.logger.Error("failed to prune vault audit log", slog.Any("error", err))
		return
	}

	rm.metrics.RecordRetentionPruned(rowsDeleted)
	if rowsDeleted > 0 {
		rm.logger.Info("vault audit log pruned",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff),
		)
	}
}

// Stop stops the scheduler and waits for a running prune to finish
func (rm *RetentionManager) Stop() {
	<-rm.cron.Stop().Done()
	rm.logger.Info("retention manager stopped")
}
