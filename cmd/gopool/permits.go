package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/gopool/internal/config"
	"github.com/vnykmshr/gopool/pkg/metrics"
	"github.com/vnykmshr/gopool/pkg/ratelimit/distributed"
	"github.com/vnykmshr/gopool/pkg/ratelimit/semaphore"
)

// permits bounds how many demo tasks use the shared resource at once.
type permits interface {
	acquire(ctx context.Context) error
	release(ctx context.Context) error
	close() error
}

// openPermits returns nil when cfg.Permits is zero. With a Redis address the
// permits are shared by every process using cfg.RedisKey.
func openPermits(ctx context.Context, cfg *config.Config, logger *slog.Logger, metricsConfig metrics.Config) (permits, error) {
	if cfg.Permits == 0 {
		return nil, nil
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		semConfig := distributed.DefaultConfig()
		semConfig.Redis = client
		semConfig.Key = cfg.RedisKey
		semConfig.Initial = cfg.Permits
		semConfig.Logger = logger

		sem, err := distributed.New(ctx, semConfig)
		if err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("using redis semaphore", "addr", cfg.RedisAddr, "key", cfg.RedisKey, "instance", semConfig.InstanceID)
		return &redisPermits{sem: sem, client: client}, nil
	}

	sem, err := semaphore.NewWithMetricsConfig(cfg.Permits, "demo", metricsConfig)
	if err != nil {
		return nil, err
	}
	return localPermits{sem: sem}, nil
}

type localPermits struct {
	sem semaphore.Semaphore
}

func (p localPermits) acquire(ctx context.Context) error {
	p.sem.Acquire()
	return nil
}

func (p localPermits) release(ctx context.Context) error {
	p.sem.Release()
	return nil
}

func (p localPermits) close() error { return nil }

type redisPermits struct {
	sem    distributed.Semaphore
	client *redis.Client
}

func (p *redisPermits) acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx)
}

func (p *redisPermits) release(ctx context.Context) error {
	// Return the permit even if the task's context is already cancelled.
	return p.sem.Release(context.WithoutCancel(ctx))
}

func (p *redisPermits) close() error {
	err := p.sem.Close()
	if cerr := p.client.Close(); err == nil {
		err = cerr
	}
	return err
}
