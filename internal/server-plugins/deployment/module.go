package deployment

import (
	"fmt"

	"github.com/alex-galey/dokku-deployer/internal/jobs"
	server_plugin_domain "github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	app_domain "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	app_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/infrastructure"
	database_domain "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	database_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/infrastructure"
	deployment_domain "github.com/alex-galey/dokku-deployer/internal/server-plugins/deployment/domain"
	git_domain "github.com/alex-galey/dokku-deployer/internal/server-plugins/git/domain"
	git_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/git/infrastructure"
	proxy_domain "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/domain"
	proxy_infrastructure "github.com/alex-galey/dokku-deployer/internal/server-plugins/proxy/infrastructure"
	"go.uber.org/fx"
)

type handlerParams struct {
	fx.In

	Registry *jobs.Registry
	Git      *deployment_domain.GitDeployJob
	Image    *deployment_domain.ImageDeployJob
	Rebuild  *deployment_domain.RebuildJob
	Link     *deployment_domain.LinkDatabaseJob
}

// registerHandlers binds every job variant to its type before the engine starts.
func registerHandlers(p handlerParams) error {
	handlers := map[jobs.Type]jobs.Handler{
		jobs.TypeDeployApp:    p.Git,
		jobs.TypeDeployImage:  p.Image,
		jobs.TypeRebuildApp:   p.Rebuild,
		jobs.TypeLinkDatabase: p.Link,
	}
	for jobType, handler := range handlers {
		if err := p.Registry.Register(jobType, handler); err != nil {
			return fmt.Errorf("failed to register %s handler: %w", jobType, err)
		}
	}
	return nil
}

var Module = fx.Module("deployment",
	fx.Provide(
		// Remote Dokku managers
		fx.Annotate(
			app_infrastructure.NewDokkuApplicationManager,
			fx.As(new(app_domain.Manager), new(proxy_domain.SSLEnabler)),
		),
		fx.Annotate(
			git_infrastructure.NewDokkuSourceManager,
			fx.As(new(git_domain.SourceManager)),
		),
		fx.Annotate(
			proxy_infrastructure.NewDokkuPortManager,
			fx.As(new(proxy_domain.PortManager)),
		),
		fx.Annotate(
			database_infrastructure.NewDokkuDatabaseManager,
			fx.As(new(database_domain.Manager)),
		),
		proxy_domain.NewReconciler,

		// Job variants
		deployment_domain.NewLinker,
		deployment_domain.NewGitDeployJob,
		deployment_domain.NewImageDeployJob,
		deployment_domain.NewRebuildJob,
		deployment_domain.NewLinkDatabaseJob,

		// MCP surface
		func(engine *jobs.Engine) JobQueue { return engine },
		fx.Annotate(
			NewDeploymentServerPlugin,
			fx.As(new(server_plugin_domain.ServerPlugin)),
			fx.ResultTags(`group:"server_plugins"`),
		),
	),
	fx.Invoke(registerHandlers),
)
