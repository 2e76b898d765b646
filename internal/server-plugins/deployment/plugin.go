package deployment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	mcpserver "github.com/alex-galey/dokku-deployer/internal/server"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/authorization"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	deployment_domain "github.com/alex-galey/dokku-deployer/internal/server-plugins/deployment/domain"
	"github.com/alex-galey/dokku-deployer/internal/server/auth"
	"github.com/alex-galey/dokku-deployer/internal/shared"
	"github.com/mark3labs/mcp-go/mcp"
)

// JobQueue is what the tools need from the job engine.
type JobQueue interface {
	jobs.Enqueuer
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Cancel(ctx context.Context, id string) error
}

// DeploymentServerPlugin exposes the deployment jobs as MCP tools.
type DeploymentServerPlugin struct {
	queue       JobQueue
	apps        app.Repository
	linker      *deployment_domain.Linker
	authChecker auth.AuthorizationChecker
	logger      *slog.Logger
}

func NewDeploymentServerPlugin(
	queue JobQueue,
	apps app.Repository,
	linker *deployment_domain.Linker,
	authChecker auth.AuthorizationChecker,
	logger *slog.Logger,
) *DeploymentServerPlugin {
	return &DeploymentServerPlugin{
		queue:       queue,
		apps:        apps,
		linker:      linker,
		authChecker: authChecker,
		logger:      logger,
	}
}

func (p *DeploymentServerPlugin) ID() string   { return "deployment" }
func (p *DeploymentServerPlugin) Name() string { return "Dokku Deployment" }

func (p *DeploymentServerPlugin) Description() string {
	return "Queue deployments, rebuilds and database links, and follow their jobs"
}

func (p *DeploymentServerPlugin) Version() string { return "0.1.0" }

// No specific Dokku plugin dependency
func (p *DeploymentServerPlugin) DokkuPluginName() string { return "" }

func (p *DeploymentServerPlugin) GetTools(ctx context.Context) ([]domain.Tool, error) {
	mutating := []domain.Tool{
		{
			Name:        "deploy_app",
			Description: "Deploy an application from its GitHub repository",
			Builder:     p.buildDeployAppTool,
			Handler:     p.handleDeployApp,
		},
		{
			Name:        "deploy_image",
			Description: "Deploy an application from a container image",
			Builder:     p.buildDeployImageTool,
			Handler:     p.handleDeployImage,
		},
		{
			Name:        "rebuild_app",
			Description: "Rebuild an application from its current source",
			Builder:     p.buildRebuildAppTool,
			Handler:     p.handleRebuildApp,
		},
		{
			Name:        "link_database",
			Description: "Link a database service to an application",
			Builder:     p.buildLinkDatabaseTool,
			Handler:     p.handleLinkDatabase,
		},
		{
			Name:        "cancel_job",
			Description: "Cancel a job that has not started yet",
			Builder:     p.buildCancelJobTool,
			Handler:     p.handleCancelJob,
		},
	}

	tools := make([]domain.Tool, 0, len(mutating)+1)
	for _, tool := range mutating {
		tools = append(tools, authorization.WrapToolWithAuthorization(tool, "deployments", "write", p.authChecker, p.logger))
	}
	tools = append(tools, domain.Tool{
		Name:        "get_job",
		Description: "Get the status of a deployment job",
		Builder:     p.buildGetJobTool,
		Handler:     p.handleGetJob,
	})
	return tools, nil
}

// Tool builders
func (p *DeploymentServerPlugin) buildDeployAppTool() mcp.Tool {
	return mcp.NewTool(
		"deploy_app",
		mcp.WithDescription("Queue a deployment of an application from the GitHub repository recorded on it"),
		mcp.WithString("app_id", mcp.Required(), mcp.Description("Identifier of the application record")),
		mcp.WithString("user_name", mcp.Required(), mcp.Description("GitHub user the token belongs to")),
		mcp.WithString("token", mcp.Required(), mcp.Description("GitHub access token used to fetch the repository")),
		mcp.WithString("database_id", mcp.Description("Database to link once the deployment finishes")),
		mcp.WithBoolean("delete_on_failed", mcp.Description("Destroy the application if the deployment fails (default true)")),
	)
}

func (p *DeploymentServerPlugin) buildDeployImageTool() mcp.Tool {
	return mcp.NewTool(
		"deploy_image",
		mcp.WithDescription("Queue a deployment of an application from a container image"),
		mcp.WithString("app_id", mcp.Required(), mcp.Description("Identifier of the application record")),
		mcp.WithString("image", mcp.Required(), mcp.Description("Container image reference, for example nginx:1.27")),
		mcp.WithString("user_name", mcp.Description("User recorded as the author of the deployment")),
		mcp.WithString("database_id", mcp.Description("Database to link once the deployment finishes")),
		mcp.WithBoolean("delete_on_failed", mcp.Description("Destroy the application if the deployment fails (default true)")),
	)
}

func (p *DeploymentServerPlugin) buildRebuildAppTool() mcp.Tool {
	return mcp.NewTool(
		"rebuild_app",
		mcp.WithDescription("Queue a rebuild of an existing application"),
		mcp.WithString("app_name", mcp.Required(), mcp.Description("Dokku name of the application")),
		mcp.WithString("app_id", mcp.Description("Identifier of the application record, used as the event reference")),
		mcp.WithString("user_name", mcp.Description("User recorded as the author of the rebuild")),
	)
}

func (p *DeploymentServerPlugin) buildLinkDatabaseTool() mcp.Tool {
	return mcp.NewTool(
		"link_database",
		mcp.WithDescription("Link a database to an application unless it already is"),
		mcp.WithString("database_id", mcp.Required(), mcp.Description("Identifier of the database record")),
		mcp.WithString("app_id", mcp.Required(), mcp.Description("Identifier of the application record")),
		mcp.WithString("user_name", mcp.Description("User recorded as the author of the link")),
	)
}

func (p *DeploymentServerPlugin) buildGetJobTool() mcp.Tool {
	return mcp.NewTool(
		"get_job",
		mcp.WithDescription("Get the status, attempts and last error of a job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job identifier returned when it was queued")),
	)
}

func (p *DeploymentServerPlugin) buildCancelJobTool() mcp.Tool {
	return mcp.NewTool(
		"cancel_job",
		mcp.WithDescription("Cancel a queued job; running jobs cannot be cancelled"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job identifier returned when it was queued")),
	)
}

// Tool handlers
func (p *DeploymentServerPlugin) handleDeployApp(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appID, err := req.RequireString("app_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "app_id is required", ""), nil
	}
	userName, err := req.RequireString("user_name")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "user_name is required", ""), nil
	}
	token, err := req.RequireString("token")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "token is required", ""), nil
	}

	application, err := p.apps.Get(ctx, appID)
	if err != nil {
		return mcpserver.FromError("Cannot deploy application", err), nil
	}
	if !application.HasSource() {
		return mcpserver.Error("invalid_application",
			fmt.Sprintf("Application '%s' has no repository", application.Name),
			"Use deploy_image for applications without a GitHub repository"), nil
	}

	payload := jobs.Payload{
		AppID:      application.ID,
		AppName:    application.Name,
		UserName:   userName,
		Token:      token,
		DatabaseID: req.GetString("database_id", ""),
	}
	p.applyDeleteOnFailed(req, &payload)

	return p.enqueue(ctx, jobs.TypeDeployApp, payload, events.TopicAppCreated, application.ID)
}

func (p *DeploymentServerPlugin) handleDeployImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appID, err := req.RequireString("app_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "app_id is required", ""), nil
	}
	imageArg, err := req.RequireString("image")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "image is required", ""), nil
	}
	image, err := shared.NewDockerImage(imageArg)
	if err != nil {
		return mcpserver.Error("invalid_arguments", err.Error(), "Use a reference such as registry.example.com/team/app:1.2.0"), nil
	}

	application, err := p.apps.Get(ctx, appID)
	if err != nil {
		return mcpserver.FromError("Cannot deploy application", err), nil
	}

	payload := jobs.Payload{
		AppID:      application.ID,
		AppName:    application.Name,
		UserName:   req.GetString("user_name", ""),
		Image:      image.Value(),
		DatabaseID: req.GetString("database_id", ""),
	}
	p.applyDeleteOnFailed(req, &payload)

	return p.enqueue(ctx, jobs.TypeDeployImage, payload, events.TopicAppCreated, application.ID)
}

func (p *DeploymentServerPlugin) handleRebuildApp(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	appName, err := req.RequireString("app_name")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "app_name is required", ""), nil
	}
	if _, err := app.NewApplicationName(appName); err != nil {
		return mcpserver.FromError("Cannot rebuild application", err), nil
	}

	payload := jobs.Payload{
		AppID:    req.GetString("app_id", ""),
		AppName:  appName,
		UserName: req.GetString("user_name", ""),
	}
	reference := payload.AppID
	if reference == "" {
		reference = appName
	}
	return p.enqueue(ctx, jobs.TypeRebuildApp, payload, events.TopicAppRebuilt, reference)
}

func (p *DeploymentServerPlugin) handleLinkDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	databaseID, err := req.RequireString("database_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "database_id is required", ""), nil
	}
	appID, err := req.RequireString("app_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "app_id is required", ""), nil
	}

	application, err := p.apps.Get(ctx, appID)
	if err != nil {
		return mcpserver.FromError("Cannot link database", err), nil
	}

	outcome, err := p.linker.Request(ctx, databaseID, application.ID, application.Name, req.GetString("user_name", ""))
	if err != nil {
		return mcpserver.FromError("Cannot link database", err), nil
	}

	data := map[string]any{
		"outcome":      outcome,
		"database_id":  databaseID,
		"app_id":       application.ID,
		"subscribe_to": subscribePath(events.TopicDatabaseLinked, databaseID),
	}
	if outcome == deployment_domain.LinkOutcomeAlreadyLinked {
		return mcpserver.OK(fmt.Sprintf("Database is already linked to '%s'", application.Name), data), nil
	}
	return mcpserver.OK(fmt.Sprintf("Database link with '%s' queued", application.Name), data), nil
}

func (p *DeploymentServerPlugin) handleGetJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := req.RequireString("job_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "job_id is required", ""), nil
	}

	job, err := p.queue.Get(ctx, jobID)
	if err != nil {
		return mcpserver.FromError("Cannot get job", err), nil
	}
	job.Payload = job.Payload.Redacted()

	return mcpserver.OK(fmt.Sprintf("Job %s is %s", job.ID, job.Status), job), nil
}

func (p *DeploymentServerPlugin) handleCancelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := req.RequireString("job_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "job_id is required", ""), nil
	}

	if err := p.queue.Cancel(ctx, jobID); err != nil {
		return mcpserver.FromError("Cannot cancel job", err), nil
	}
	return mcpserver.OK(fmt.Sprintf("Job %s cancelled", jobID), map[string]string{"job_id": jobID}), nil
}

func (p *DeploymentServerPlugin) applyDeleteOnFailed(req mcp.CallToolRequest, payload *jobs.Payload) {
	if _, ok := req.GetArguments()["delete_on_failed"]; ok {
		v := req.GetBool("delete_on_failed", true)
		payload.DeleteOnFailed = &v
	}
}

func (p *DeploymentServerPlugin) enqueue(ctx context.Context, jobType jobs.Type, payload jobs.Payload, topic events.Topic, reference string) (*mcp.CallToolResult, error) {
	job, err := p.queue.Enqueue(ctx, jobType, payload)
	if err != nil {
		p.logger.Error("Failed to queue job", "job_type", jobType, "app_name", payload.AppName, "error", err)
		return mcpserver.FromError("Cannot queue job", err), nil
	}

	data := map[string]string{
		"job_id":       job.ID,
		"status":       string(job.Status),
		"subscribe_to": subscribePath(topic, reference),
	}
	return mcpserver.OK(
		fmt.Sprintf("%s job queued for '%s'", jobType, payload.AppName),
		data,
		mcpserver.ToolLink{Rel: "status", Tool: "get_job", Params: map[string]any{"job_id": job.ID}},
		mcpserver.ToolLink{Rel: "cancel", Tool: "cancel_job", Params: map[string]any{"job_id": job.ID}},
	), nil
}

func subscribePath(topic events.Topic, reference string) string {
	return fmt.Sprintf("/ws/%s?reference_id=%s", topic, reference)
}
