package domain

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// CommandPluginList lists the plugins installed on the Dokku host.
const CommandPluginList = "plugin:list"

// ServerPlugin is a group of MCP capabilities. Plugins that depend on a Dokku
// plugin are only exposed while that plugin is enabled on the host.
type ServerPlugin interface {
	ID() string
	Name() string
	Description() string
	Version() string
	// DokkuPluginName is empty for plugins that only need Dokku core.
	DokkuPluginName() string
}

type ResourceProvider interface {
	ServerPlugin
	GetResources(ctx context.Context) ([]Resource, error)
}

type ToolProvider interface {
	ServerPlugin
	GetTools(ctx context.Context) ([]Tool, error)
}

type PromptProvider interface {
	ServerPlugin
	GetPrompts(ctx context.Context) ([]Prompt, error)
}

type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	Handler     ResourceHandler
}

type Tool struct {
	Name        string
	Description string
	Builder     func() mcp.Tool
	Handler     ToolHandler
}

type Prompt struct {
	Name        string
	Description string
	Builder     func() mcp.Prompt
	Handler     PromptHandler
}

type ResourceHandler = server.ResourceHandlerFunc
type ToolHandler = server.ToolHandlerFunc
type PromptHandler = server.PromptHandlerFunc

// ServerPluginDiscoveryService reports which Dokku plugins are enabled on the host.
type ServerPluginDiscoveryService interface {
	GetEnabledDokkuPlugins(ctx context.Context) ([]string, error)
}

// Capabilities is everything one plugin exposes. Errors is keyed by the
// capability kind ("resources", "tools", "prompts") that could not be listed.
type Capabilities struct {
	Resources []Resource
	Tools     []Tool
	Prompts   []Prompt
	Errors    map[string]error
}

// CollectCapabilities lists what plugin provides. A kind that fails to list
// does not hide the others.
func CollectCapabilities(ctx context.Context, plugin ServerPlugin) Capabilities {
	var caps Capabilities
	fail := func(kind string, err error) {
		if caps.Errors == nil {
			caps.Errors = make(map[string]error)
		}
		caps.Errors[kind] = err
	}

	if provider, ok := plugin.(ResourceProvider); ok {
		resources, err := provider.GetResources(ctx)
		if err != nil {
			fail("resources", err)
		}
		caps.Resources = resources
	}
	if provider, ok := plugin.(ToolProvider); ok {
		tools, err := provider.GetTools(ctx)
		if err != nil {
			fail("tools", err)
		}
		caps.Tools = tools
	}
	if provider, ok := plugin.(PromptProvider); ok {
		prompts, err := provider.GetPrompts(ctx)
		if err != nil {
			fail("prompts", err)
		}
		caps.Prompts = prompts
	}
	return caps
}
