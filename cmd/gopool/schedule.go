package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/gopool/internal/config"
	"github.com/vnykmshr/gopool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/gopool/pkg/scheduling/threadpool"
)

func newScheduleCommand(a *app) *cobra.Command {
	defaults := config.New()

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Submit a demo task on a cron schedule until interrupted",
		Long: `Submit one demo task each time the cron expression fires. Both 5-field and
6-field (leading seconds) expressions are accepted, as are descriptors such
as @hourly and "@every 10s".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSchedule(cmd.Context())
		},
	}

	cmd.Flags().String(config.KeySchedule, defaults.Schedule, "Cron expression")
	cmd.Flags().Duration(config.KeyRunFor, defaults.RunFor, "Stop after this long (0 = until interrupted)")
	return cmd
}

func (a *app) runSchedule(ctx context.Context) error {
	if err := scheduler.ValidateCronExpression(a.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid --%s %q: %w", config.KeySchedule, a.cfg.Schedule, err)
	}

	if a.cfg.RunFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RunFor)
		defer cancel()
	}

	metricsConfig, stopMetrics := startMetrics(a.cfg.MetricsAddr, a.logger)
	defer stopMetrics()

	p, err := openPermits(ctx, a.cfg, a.logger, metricsConfig)
	if err != nil {
		return err
	}
	if p != nil {
		defer p.close()
	}

	pool, err := a.newPool("scheduled", metricsConfig)
	if err != nil {
		return err
	}

	s, err := scheduler.NewWithConfigAndMetrics(scheduler.Config{
		Pool:   pool,
		Name:   "demo",
		Logger: a.logger,
	}, "demo", metricsConfig)
	if err != nil {
		pool.Shutdown()
		return err
	}

	var seq atomic.Int64
	task := threadpool.TaskFunc(func() error {
		return newDemoTask(ctx, int(seq.Add(1)), a.cfg.TaskDuration, a.out, p).Execute()
	})
	if err := s.ScheduleCron("demo", a.cfg.Schedule, task); err != nil {
		<-s.Stop()
		pool.Shutdown()
		return err
	}
	if err := s.Start(); err != nil {
		pool.Shutdown()
		return err
	}

	next, _ := s.Next("demo")
	a.logger.Info("scheduler started", "schedule", a.cfg.Schedule, "next", next.Format(time.RFC3339))

	<-ctx.Done()

	<-s.Stop()
	if err := pool.Shutdown(); err != nil {
		return err
	}
	a.logger.Info("scheduler stopped",
		"triggered", seq.Load(),
		"completed", pool.TotalCompleted())

	// Interrupts and the --run-for deadline are both normal exits.
	return nil
}
