package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	plugins "github.com/alex-galey/dokku-deployer/internal/server-plugin/application"
	"github.com/alex-galey/dokku-deployer/internal/server/auth"
	"github.com/alex-galey/dokku-deployer/internal/shared"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/fx"
)

type serverHooksParams struct {
	fx.In
	Lifecycle     fx.Lifecycle
	Transport     config.TransportConfig
	MCPServer     *server.MCPServer
	Adapter       *MCPAdapter
	Registry      *plugins.Registry
	Authenticator auth.Authenticator
	Logger        *slog.Logger
}

// registerServerHooks syncs plugins, registers their capabilities and starts
// the configured MCP transport. "none" runs the workers without an MCP surface.
func registerServerHooks(p serverHooksParams) {
	var sseServer *server.SSEServer
	logger := p.Logger

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Registry.Sync(ctx)
			p.Adapter.RegisterActivePlugins(ctx)

			switch p.Transport.Type {
			case "sse":
				sseServer = server.NewSSEServer(p.MCPServer,
					server.WithSSEContextFunc(tenantFromRequest(p.Authenticator, logger)),
				)
				addr := fmt.Sprintf("%s:%d", p.Transport.Host, p.Transport.Port)
				go func() {
					logger.Info("MCP SSE server listening", "address", addr)
					if err := sseServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("MCP SSE server failed", "error", err)
					}
				}()
			case "stdio":
				logger.Info("Starting MCP server on stdio")
				go func() {
					if err := server.ServeStdio(p.MCPServer); err != nil {
						logger.Error("MCP stdio server failed", "error", err)
					}
				}()
			case "none":
				logger.Info("MCP transport disabled, running workers only")
			default:
				return fmt.Errorf("unknown transport type: %s", p.Transport.Type)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if sseServer == nil {
				return nil
			}
			logger.Info("Shutting down MCP SSE server")
			return sseServer.Shutdown(ctx)
		},
	})
}

// tenantFromRequest attaches the authenticated tenant to SSE tool calls. Calls
// with a bad token carry no tenant and are refused by the authorization wrapper.
func tenantFromRequest(authenticator auth.Authenticator, logger *slog.Logger) server.SSEContextFunc {
	return func(ctx context.Context, r *http.Request) context.Context {
		tenant, err := authenticator.Authenticate(ctx, BearerToken(r))
		if err != nil {
			logger.Warn("Unauthenticated MCP session", "remote", r.RemoteAddr, "error", err)
			return shared.WithTenantContext(ctx, &shared.TenantContext{TenantID: "anonymous"})
		}
		return shared.WithTenantContext(ctx, tenant)
	}
}
