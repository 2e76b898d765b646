package fxapp

import (
	"log"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	"github.com/alex-galey/dokku-deployer/internal/server"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/app"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/core"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/database"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/deployment"
	"github.com/alex-galey/dokku-deployer/internal/server-plugins/onboarding"
	"github.com/alex-galey/dokku-deployer/internal/shared/metrics"
	"github.com/alex-galey/dokku-deployer/internal/storage"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"github.com/alex-galey/dokku-deployer/pkg/logger"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// Options lists every module of the deployer. Tests reuse it to validate the graph.
func Options(cfg *config.ServerConfig) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		config.Module,
		logger.Module,
		metrics.Module,
		dokkuApi.Module,
		storage.Module,
		events.Module,
		jobs.Module,
		server.Module,
		core.Module,
		app.Module,
		database.Module,
		deployment.Module,
		onboarding.Module,
	)
}

func New() *fx.App {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Default to a verbose logger for debug level
	var fxLogger fx.Option = fx.WithLogger(
		func() fxevent.Logger {
			return &fxevent.ConsoleLogger{W: log.Writer()}
		},
	)

	if cfg.LogLevel != "debug" {
		fxLogger = fx.NopLogger
	}

	return fx.New(
		fxLogger,
		Options(cfg),
	)
}
