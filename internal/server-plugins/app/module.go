package app

import (
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	usecases "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/application"
	"go.uber.org/fx"
)

var Module = fx.Module("app",
	fx.Provide(
		usecases.NewApplicationUseCase,
		fx.Annotate(
			NewAppsServerPlugin,
			fx.As(new(domain.ServerPlugin)),
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
)
