package server

import (
	"context"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ActivePluginSource yields the plugins that should currently be exposed.
type ActivePluginSource interface {
	ActivePlugins() []domain.ServerPlugin
}

// CapabilityRegistrar is the part of *server.MCPServer the adapter writes to.
type CapabilityRegistrar interface {
	AddResource(resource mcp.Resource, handler server.ResourceHandlerFunc)
	AddTool(tool mcp.Tool, handler server.ToolHandlerFunc)
	AddPrompt(prompt mcp.Prompt, handler server.PromptHandlerFunc)
}

// MCPAdapter registers the capabilities of active plugins on the MCP server.
type MCPAdapter struct {
	plugins   ActivePluginSource
	mcpServer CapabilityRegistrar
	logger    *slog.Logger
}

func NewMCPAdapter(plugins ActivePluginSource, mcpServer CapabilityRegistrar, logger *slog.Logger) *MCPAdapter {
	return &MCPAdapter{plugins: plugins, mcpServer: mcpServer, logger: logger}
}

// RegisterActivePlugins registers every active plugin. A plugin that fails to
// list one kind of capability still gets its other capabilities registered.
func (a *MCPAdapter) RegisterActivePlugins(ctx context.Context) {
	active := a.plugins.ActivePlugins()
	for _, plugin := range active {
		a.RegisterPlugin(ctx, plugin)
	}
	a.logger.Info("Server plugins registered", "count", len(active))
}

func (a *MCPAdapter) RegisterPlugin(ctx context.Context, plugin domain.ServerPlugin) {
	log := a.logger.With("plugin", plugin.ID())
	caps := domain.CollectCapabilities(ctx, plugin)
	for kind, err := range caps.Errors {
		log.Error("Failed to list plugin capabilities", "kind", kind, "error", err)
	}

	for _, resource := range caps.Resources {
		a.mcpServer.AddResource(mcp.NewResource(
			resource.URI,
			resource.Name,
			mcp.WithResourceDescription(resource.Description),
			mcp.WithMIMEType(resource.MIMEType),
		), resource.Handler)
		log.Debug("Resource registered", "uri", resource.URI)
	}
	for _, tool := range caps.Tools {
		a.mcpServer.AddTool(tool.Builder(), tool.Handler)
		log.Debug("Tool registered", "tool", tool.Name)
	}
	for _, prompt := range caps.Prompts {
		a.mcpServer.AddPrompt(prompt.Builder(), prompt.Handler)
		log.Debug("Prompt registered", "prompt", prompt.Name)
	}
}
