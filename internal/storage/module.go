package storage

import (
	"context"
	"fmt"
	"log/slog"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
	"github.com/alex-galey/dokku-deployer/internal/storage/memory"
	"github.com/alex-galey/dokku-deployer/internal/storage/postgres"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"go.uber.org/fx"
)

// Stores exposes one backend under every repository interface.
type Stores struct {
	fx.Out

	Applications app.Repository
	Databases    database.Repository
	Activity     activity.Sink
	ActivityLog  activity.Reader
}

// NewStoresFromConfig opens the backend named by storage.driver, applying
// migrations first when auto_migrate is set.
func NewStoresFromConfig(lc fx.Lifecycle, cfg config.StorageConfig, logger *slog.Logger) (Stores, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory storage, state does not survive restarts")
		store := memory.NewStore(cfg.LogBufferSize)
		return Stores{Applications: store, Databases: store, Activity: store, ActivityLog: store}, nil

	case "postgres":
		ctx := context.Background()
		if cfg.AutoMigrate {
			if err := postgres.NewMigrator(cfg.DSN, logger).Up(ctx); err != nil {
				return Stores{}, err
			}
		}

		pool, err := postgres.NewPool(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return Stores{}, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				pool.Close()
				return nil
			},
		})

		logger.Info("Using postgres storage", "max_conns", pool.Config().MaxConns)
		repo := postgres.New(pool, cfg.LogBufferSize)
		return Stores{Applications: repo, Databases: repo, Activity: repo, ActivityLog: repo}, nil

	default:
		return Stores{}, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

var Module = fx.Module("storage",
	fx.Provide(NewStoresFromConfig),
	fx.Provide(activity.NewLog),
)
