package onboarding

import (
	"log/slog"

	plugins "github.com/alex-galey/dokku-deployer/internal/server-plugin/application"
	serverDomain "github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding",
	fx.Provide(
		// Provide the concrete plugin for internal injection (SetProvider in Invoke)
		NewOnboardingServerPlugin,
		// Also expose it as a grouped ServerPlugin for registration
		fx.Annotate(
			func(p *OnboardingServerPlugin) serverDomain.ServerPlugin { return p },
			fx.As(new(serverDomain.ServerPlugin)),
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
	fx.Invoke(func(logger *slog.Logger, registry *plugins.Registry, p *OnboardingServerPlugin) {
		p.SetProvider(registry)
		logger.Debug("Onboarding plugin initialized")
	}),
)
