package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/gopool/internal/config"
	"github.com/vnykmshr/gopool/pkg/metrics"
	"github.com/vnykmshr/gopool/pkg/scheduling/threadpool"
)

func newRunCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a batch of demo tasks and wait for the pool to drain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd.Context())
		},
	}

	cmd.Flags().Int(config.KeyTasks, config.New().Tasks, "Number of demo tasks to submit")
	return cmd
}

// newPool builds the demo pool with failures routed to the logger.
func (a *app) newPool(name string, metricsConfig metrics.Config) (threadpool.Pool, error) {
	return threadpool.NewWithConfigAndMetrics(threadpool.Config{
		WorkerCount: a.cfg.Workers,
		Name:        name,
		Logger:      a.logger,
		OnWorkerStart: func(workerID int) {
			a.logger.Debug("worker ready", "worker_id", workerID)
		},
	}, name, metricsConfig)
}

func (a *app) runBatch(ctx context.Context) error {
	metricsConfig, stopMetrics := startMetrics(a.cfg.MetricsAddr, a.logger)
	defer stopMetrics()

	p, err := openPermits(ctx, a.cfg, a.logger, metricsConfig)
	if err != nil {
		return err
	}
	if p != nil {
		defer p.close()
	}

	pool, err := a.newPool("demo", metricsConfig)
	if err != nil {
		return err
	}

	a.logger.Info("submitting tasks",
		"tasks", a.cfg.Tasks,
		"workers", a.cfg.Workers,
		"task_duration", a.cfg.TaskDuration,
		"permits", a.cfg.Permits)

	for i := 1; i <= a.cfg.Tasks; i++ {
		if err := pool.Submit(newDemoTask(ctx, i, a.cfg.TaskDuration, a.out, p)); err != nil {
			pool.Shutdown()
			return fmt.Errorf("submit task %d: %w", i, err)
		}
	}

	if err := pool.Shutdown(); err != nil {
		return err
	}

	a.logger.Info("pool drained",
		"completed", pool.TotalCompleted(),
		"failed", pool.TotalFailed())

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed := pool.TotalFailed(); failed > 0 {
		return fmt.Errorf("%d of %d tasks failed", failed, pool.TotalCompleted())
	}
	return nil
}
