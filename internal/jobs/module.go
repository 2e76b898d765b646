package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/shared/metrics"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"go.uber.org/fx"
)

// NewBackendFromConfig selects the queue backend named by queue.driver.
func NewBackendFromConfig(lc fx.Lifecycle, cfg config.QueueConfig, logger *slog.Logger) (Backend, error) {
	var backend Backend
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using the in-memory job queue, jobs do not survive restarts")
		backend = NewMemoryBackend()
	case "redis":
		client, err := NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		logger.Info("Using the redis job queue", "addr", cfg.RedisAddr, "prefix", cfg.Prefix)
		backend = NewRedisBackend(client, cfg.Prefix, logger)
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", cfg.Driver)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return backend.Close()
		},
	})
	return backend, nil
}

func NewEngineFromConfig(backend Backend, registry *Registry, queue config.QueueConfig, worker config.WorkerConfig, logger *slog.Logger, collector metrics.Collector) *Engine {
	return NewEngine(backend, registry, EngineConfig{
		Concurrency:  worker.Concurrency,
		MaxAttempts:  queue.MaxAttempts,
		StallTimeout: queue.StallTimeout,
		RetryBackoff: queue.RetryBackoff,
		PollTimeout:  queue.PollTimeout,
	}, logger, collector)
}

func registerLifecycle(lc fx.Lifecycle, engine *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			engine.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return engine.Stop(ctx)
		},
	})
}

var Module = fx.Module("jobs",
	fx.Provide(NewRegistry),
	fx.Provide(NewBackendFromConfig),
	fx.Provide(NewEngineFromConfig),
	fx.Provide(func(e *Engine) Enqueuer { return e }),
	fx.Invoke(registerLifecycle),
)
