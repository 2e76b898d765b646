package core

import (
	serverDomain "github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("core",
	fx.Provide(
		fx.Annotate(
			NewCoreServerPlugin,
			fx.As(new(serverDomain.ServerPlugin)),
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
)
