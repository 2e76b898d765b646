package app

import (
	"context"
	"fmt"
	"log/slog"

	mcpserver "github.com/alex-galey/dokku-deployer/internal/server"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/authorization"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	usecases "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/application"
	"github.com/alex-galey/dokku-deployer/internal/server/auth"
	"github.com/mark3labs/mcp-go/mcp"
)

// AppsServerPlugin manages application records and exposes their logs and activity.
type AppsServerPlugin struct {
	useCase     *usecases.ApplicationUseCase
	authChecker auth.AuthorizationChecker
	logger      *slog.Logger
}

func NewAppsServerPlugin(useCase *usecases.ApplicationUseCase, authChecker auth.AuthorizationChecker, logger *slog.Logger) *AppsServerPlugin {
	return &AppsServerPlugin{
		useCase:     useCase,
		authChecker: authChecker,
		logger:      logger,
	}
}

func (p *AppsServerPlugin) ID() string   { return "apps" }
func (p *AppsServerPlugin) Name() string { return "Dokku Applications" }

func (p *AppsServerPlugin) Description() string {
	return "Register applications and read their deployment logs and activity"
}

func (p *AppsServerPlugin) Version() string { return "0.3.0" }

// Core apps functionality - no specific plugin dependency
func (p *AppsServerPlugin) DokkuPluginName() string { return "" }

func (p *AppsServerPlugin) GetTools(ctx context.Context) ([]domain.Tool, error) {
	createApp := domain.Tool{
		Name:        "create_app",
		Description: "Register a new application",
		Builder:     p.buildCreateAppTool,
		Handler:     p.handleCreateApp,
	}
	return []domain.Tool{
		authorization.WrapToolWithAuthorization(createApp, "apps", "write", p.authChecker, p.logger),
		{
			Name:        "get_app",
			Description: "Get an application's status and source",
			Builder:     p.buildGetAppTool,
			Handler:     p.handleGetApp,
		},
		{
			Name:        "get_app_logs",
			Description: "Read the deployment log buffer of an application",
			Builder:     p.buildGetAppLogsTool,
			Handler:     p.handleGetAppLogs,
		},
		{
			Name:        "get_activity",
			Description: "List the activity records of an application or database",
			Builder:     p.buildGetActivityTool,
			Handler:     p.handleGetActivity,
		},
	}, nil
}

func (p *AppsServerPlugin) GetPrompts(ctx context.Context) ([]domain.Prompt, error) {
	tmpl := DeploymentDoctorPrompt()
	return []domain.Prompt{
		{
			Name:        tmpl.Name,
			Description: tmpl.Description,
			Builder:     p.buildDeploymentDoctorPrompt,
			Handler:     p.handleDeploymentDoctorPrompt,
		},
	}, nil
}

// Tool builders
func (p *AppsServerPlugin) buildCreateAppTool() mcp.Tool {
	return mcp.NewTool(
		"create_app",
		mcp.WithDescription("Register an application. Attach a GitHub repository to deploy it with deploy_app, or leave it out and use deploy_image"),
		mcp.WithString("app_name", mcp.Description("Dokku application name (lowercase letters, digits and hyphens); defaults to one derived from repo_name")),
		mcp.WithString("repo_owner", mcp.Description("GitHub user or organization owning the repository")),
		mcp.WithString("repo_name", mcp.Description("GitHub repository name")),
		mcp.WithString("branch", mcp.Description("Branch to deploy (default main)")),
	)
}

func (p *AppsServerPlugin) buildGetAppTool() mcp.Tool {
	return mcp.NewTool(
		"get_app",
		mcp.WithDescription("Get the status, git source and linked databases of an application"),
		mcp.WithString("app_id", mcp.Required(), mcp.Description("Identifier of the application record")),
	)
}

func (p *AppsServerPlugin) buildGetAppLogsTool() mcp.Tool {
	return mcp.NewTool(
		"get_app_logs",
		mcp.WithDescription("Read the output of the latest deployment of an application, oldest line first"),
		mcp.WithString("app_id", mcp.Required(), mcp.Description("Identifier of the application record")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Number of newest entries to return (default %d)", usecases.DefaultLogLimit))),
	)
}

func (p *AppsServerPlugin) buildGetActivityTool() mcp.Tool {
	return mcp.NewTool(
		"get_activity",
		mcp.WithDescription("List who deployed, rebuilt or linked an application or database, newest first"),
		mcp.WithString("reference_id", mcp.Required(), mcp.Description("Identifier of the application or database record")),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of records (default %d)", usecases.DefaultActivityLimit))),
	)
}

// Tool handlers
func (p *AppsServerPlugin) handleCreateApp(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cmd := usecases.CreateApplicationCommand{
		Name:      req.GetString("app_name", ""),
		RepoOwner: req.GetString("repo_owner", ""),
		RepoName:  req.GetString("repo_name", ""),
		Branch:    req.GetString("branch", ""),
	}

	application, err := p.useCase.CreateApplication(ctx, cmd)
	if err != nil {
		return mcpserver.FromError("Cannot create application", err), nil
	}

	next := mcpserver.ToolLink{Rel: "deploy", Tool: "deploy_image", Params: map[string]any{"app_id": application.ID}}
	if application.HasSource() {
		next = mcpserver.ToolLink{Rel: "deploy", Tool: "deploy_app", Params: map[string]any{"app_id": application.ID}}
	}
	return mcpserver.OK(fmt.Sprintf("Application '%s' created", application.Name), application, next), nil
}

func (p *AppsServerPlugin) handleGetApp(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appID, err := req.RequireString("app_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "app_id is required", ""), nil
	}
	application, err := p.useCase.GetApplication(ctx, appID)
	if err != nil {
		return mcpserver.FromError("Cannot read application", err), nil
	}
	return mcpserver.OK("", application,
		mcpserver.ToolLink{Rel: "logs", Tool: "get_app_logs", Params: map[string]any{"app_id": appID}},
		mcpserver.ToolLink{Rel: "activity", Tool: "get_activity", Params: map[string]any{"reference_id": appID}},
	), nil
}

func (p *AppsServerPlugin) handleGetAppLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appID, err := req.RequireString("app_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "app_id is required", ""), nil
	}
	entries, err := p.useCase.GetLogs(ctx, appID, req.GetInt("limit", 0))
	if err != nil {
		return mcpserver.FromError("Cannot read application logs", err), nil
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Message
	}
	lines = mcpserver.SanitizeLogLines(lines)
	for i := range entries {
		entries[i].Message = lines[i]
	}

	finished := len(entries) > 0 && entries[len(entries)-1].Type.IsTerminal()
	return mcpserver.OK("", map[string]any{
		"app_id":   appID,
		"entries":  entries,
		"finished": finished,
	}), nil
}

func (p *AppsServerPlugin) handleGetActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	referenceID, err := req.RequireString("reference_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "reference_id is required", ""), nil
	}
	records, err := p.useCase.GetActivity(ctx, referenceID, req.GetInt("limit", 0))
	if err != nil {
		return mcpserver.FromError("Cannot read activity", err), nil
	}
	return mcpserver.OK("", map[string]any{"reference_id": referenceID, "records": records}), nil
}

// Prompt implementations
func (p *AppsServerPlugin) buildDeploymentDoctorPrompt() mcp.Prompt {
	tmpl := DeploymentDoctorPrompt()
	return mcp.NewPrompt(
		tmpl.Name,
		mcp.WithPromptDescription(tmpl.Description),
		mcp.WithArgument("app_id",
			mcp.RequiredArgument(),
			mcp.ArgumentDescription("Identifier of the application whose deployment failed"),
		),
	)
}

func (p *AppsServerPlugin) handleDeploymentDoctorPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	appID := req.Params.Arguments["app_id"]
	if appID == "" {
		return nil, fmt.Errorf("app_id parameter is required")
	}

	tmpl := DeploymentDoctorPrompt()
	return &mcp.GetPromptResult{
		Description: tmpl.Description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: tmpl.Render(appID)},
			},
		},
	}, nil
}
