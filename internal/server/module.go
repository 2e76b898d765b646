package server

import (
	"log/slog"

	plugins "github.com/alex-galey/dokku-deployer/internal/server-plugin/application"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/infrastructure"
	"github.com/alex-galey/dokku-deployer/internal/server/auth"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

func NewMCPServerInstance(logger *slog.Logger) *server.MCPServer {
	logger.Debug("Creating MCP server instance", "version", Version)
	return server.NewMCPServer(
		"Dokku Deployer",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
	)
}

var Module = fx.Module("server",
	fx.Provide(
		NewMCPServerInstance,
		fx.Annotate(
			func(cfg config.SecurityConfig) *auth.StaticTokenAuthenticator {
				return auth.NewStaticTokenAuthenticator(cfg.APIToken)
			},
			fx.As(new(auth.Authenticator)),
		),
		fx.Annotate(
			auth.NewPermissionChecker,
			fx.As(new(auth.AuthorizationChecker)),
		),
		fx.Annotate(
			infrastructure.NewPluginDiscoveryService,
			fx.As(new(domain.ServerPluginDiscoveryService)),
		),
		plugins.NewRegistry,
		func(registry *plugins.Registry, mcpServer *server.MCPServer, logger *slog.Logger) *MCPAdapter {
			return NewMCPAdapter(registry, mcpServer, logger)
		},
		NewRouter,
	),
	fx.Invoke(registerServerHooks),
	fx.Invoke(func(registry *plugins.Registry, lc fx.Lifecycle) {
		registry.RegisterHooks(lc)
	}),
	fx.Invoke(RegisterHTTPServer),
)
