package database

import (
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("database",
	fx.Provide(
		fx.Annotate(
			NewDatabaseServerPlugin,
			fx.As(new(domain.ServerPlugin)),
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
)
