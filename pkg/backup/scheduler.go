package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/VictorNov/n8n-ci-cd/pkg/models"
)

// Scheduler runs unattended periodic backups, typically a daily snapshot of
// prod, producing daily_auto_* backup names subject to the same retention
// pruning as manual backups.
type Scheduler struct {
	engine *Engine
	cron   *cron.Cron
	logger *slog.Logger
}

func NewScheduler(engine *Engine, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine: engine,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start registers the backup job and starts the cron loop. The spec uses the
// standard five-field cron syntax, e.g. "0 3 * * *" for 03:00 daily.
func (s *Scheduler) Start(ctx context.Context, spec string, env models.Environment) error {
	_, err := s.cron.AddFunc(spec, func() {
		name := "daily_auto_" + time.Now().UTC().Format("2006-01-02_15-04-05")

		manifest, err := s.engine.CreateBackup(ctx, env, name)
		if err != nil {
			s.logger.Error("scheduled backup failed", "environment", env, "error", err)

			return
		}

		s.logger.Info("scheduled backup completed",
			"name", manifest.BackupName, "workflows", manifest.WorkflowCount)
	})
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	s.cron.Start()
	s.logger.Info("backup scheduler started", "spec", spec, "environment", env)

	return nil
}

// Stop halts the cron loop, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}
