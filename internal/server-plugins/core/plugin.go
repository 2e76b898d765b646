package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	mcpserver "github.com/alex-galey/dokku-deployer/internal/server"
	serverDomain "github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"github.com/alex-galey/dokku-deployer/pkg/config"
	"github.com/alex-galey/dokku-deployer/pkg/logger"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultLogLines = 100
	maxLogLines     = 1000
)

// SystemStatus summarizes the Dokku host and how the deployer is wired to it.
type SystemStatus struct {
	DokkuVersion  string    `json:"dokku_version,omitempty"`
	Reachable     bool      `json:"reachable"`
	Error         string    `json:"error,omitempty"`
	DokkuPlugins  []string  `json:"dokku_plugins,omitempty"`
	StorageDriver string    `json:"storage_driver"`
	QueueDriver   string    `json:"queue_driver"`
	Workers       int       `json:"workers"`
	MaxAttempts   int       `json:"max_attempts"`
	ServerVersion string    `json:"server_version"`
	CheckedAt     time.Time `json:"checked_at"`
}

// CoreServerPlugin reports on the Dokku host and the deployer's own logs.
type CoreServerPlugin struct {
	session   dokkuApi.Session
	discovery serverDomain.ServerPluginDiscoveryService
	buffer    *logger.RingBuffer
	cfg       *config.ServerConfig
	logger    *slog.Logger
}

func NewCoreServerPlugin(
	session dokkuApi.Session,
	discovery serverDomain.ServerPluginDiscoveryService,
	buffer *logger.RingBuffer,
	cfg *config.ServerConfig,
	logger *slog.Logger,
) *CoreServerPlugin {
	return &CoreServerPlugin{
		session:   session,
		discovery: discovery,
		buffer:    buffer,
		cfg:       cfg,
		logger:    logger,
	}
}

func (p *CoreServerPlugin) ID() string   { return "core" }
func (p *CoreServerPlugin) Name() string { return "Core Functionality" }

func (p *CoreServerPlugin) Description() string {
	return "Dokku host status and the deployer's own server logs"
}

func (p *CoreServerPlugin) Version() string { return "0.2.0" }

func (p *CoreServerPlugin) DokkuPluginName() string { return "" }

func (p *CoreServerPlugin) GetResources(ctx context.Context) ([]serverDomain.Resource, error) {
	return []serverDomain.Resource{
		{
			URI:         "dokku://core/system/status",
			Name:        "System Status",
			Description: "Dokku version, enabled plugins and the deployer's queue configuration",
			MIMEType:    "application/json",
			Handler:     p.handleSystemStatusResource,
		},
	}, nil
}

func (p *CoreServerPlugin) GetTools(ctx context.Context) ([]serverDomain.Tool, error) {
	return []serverDomain.Tool{
		{
			Name:        "get_system_status",
			Description: "Get the Dokku version and the deployer's configuration",
			Builder:     p.buildGetSystemStatusTool,
			Handler:     p.handleGetSystemStatus,
		},
		{
			Name:        "get_server_logs",
			Description: "Read the deployer's recent log lines",
			Builder:     p.buildGetServerLogsTool,
			Handler:     p.handleGetServerLogs,
		},
	}, nil
}

// SystemStatus never fails: an unreachable host is reported in the result.
func (p *CoreServerPlugin) SystemStatus(ctx context.Context) SystemStatus {
	status := SystemStatus{
		StorageDriver: p.cfg.Storage.Driver,
		QueueDriver:   p.cfg.Queue.Driver,
		Workers:       p.cfg.Worker.Concurrency,
		MaxAttempts:   p.cfg.Queue.MaxAttempts,
		ServerVersion: mcpserver.Version,
		CheckedAt:     time.Now().UTC(),
	}

	out, err := p.session.Output(ctx, "version", nil)
	if err != nil {
		p.logger.Warn("Dokku version check failed", "error", err)
		status.Error = mcpserver.SanitizeLine(err.Error())
		return status
	}
	status.Reachable = true
	status.DokkuVersion = parseVersion(string(out))

	plugins, err := p.discovery.GetEnabledDokkuPlugins(ctx)
	if err != nil {
		status.Error = mcpserver.SanitizeLine(err.Error())
		return status
	}
	status.DokkuPlugins = plugins
	return status
}

// parseVersion turns "dokku version 0.35.12" into "0.35.12".
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimPrefix(fields[len(fields)-1], "v")
}

func (p *CoreServerPlugin) handleSystemStatusResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(p.SystemStatus(ctx), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize system status: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}

func (p *CoreServerPlugin) buildGetSystemStatusTool() mcp.Tool {
	return mcp.NewTool(
		"get_system_status",
		mcp.WithDescription("Get the Dokku version, enabled Dokku plugins and the deployer's storage and queue configuration"),
	)
}

func (p *CoreServerPlugin) buildGetServerLogsTool() mcp.Tool {
	return mcp.NewTool(
		"get_server_logs",
		mcp.WithDescription("Read the deployer's most recent log lines, with credentials redacted"),
		mcp.WithNumber("lines", mcp.Description(fmt.Sprintf("Number of lines to return (default %d, max %d)", defaultLogLines, maxLogLines))),
		mcp.WithString("contains", mcp.Description("Only return lines containing this text, for example a job id")),
	)
}

func (p *CoreServerPlugin) handleGetSystemStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := p.SystemStatus(ctx)
	if !status.Reachable {
		return mcpserver.NewResult(mcpserver.ToolResponse{
			Status:  mcpserver.ToolStatusError,
			Code:    "dokku_unreachable",
			Message: "The Dokku host did not answer",
			Data:    status,
			Hint:    "Check the ssh settings and that the key is authorized for the dokku user",
		}, p.logger), nil
	}
	return mcpserver.OK("", status), nil
}

func (p *CoreServerPlugin) handleGetServerLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := req.GetInt("lines", defaultLogLines)
	if n <= 0 {
		n = defaultLogLines
	}
	if n > maxLogLines {
		n = maxLogLines
	}

	lines := p.buffer.GetLast(0)
	if filter := req.GetString("contains", ""); filter != "" {
		matched := lines[:0:0]
		for _, line := range lines {
			if strings.Contains(line, filter) {
				matched = append(matched, line)
			}
		}
		lines = matched
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return mcpserver.OK("", map[string]any{
		"lines":    mcpserver.SanitizeLogLines(lines),
		"capacity": p.buffer.Capacity(),
		"dropped":  p.buffer.Dropped(),
	}), nil
}
