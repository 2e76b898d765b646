package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mcpserver "github.com/alex-galey/dokku-deployer/internal/server"
	serverDomain "github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	onbDomain "github.com/alex-galey/dokku-deployer/internal/server-plugins/onboarding/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	QuickstartURI   = "dokku://onboarding/quickstart"
	CapabilitiesURI = "dokku://onboarding/capabilities"
	IntentMapURI    = "dokku://onboarding/intent-map"
	ExamplesURI     = "dokku://onboarding/examples"
)

// OnboardingServerPlugin provides discovery and onboarding resources
type OnboardingServerPlugin struct {
	provider mcpserver.ActivePluginSource
	logger   *slog.Logger
	now      func() time.Time
}

func NewOnboardingServerPlugin(logger *slog.Logger) *OnboardingServerPlugin {
	return &OnboardingServerPlugin{
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetProvider allows late injection to avoid Fx cycles
func (p *OnboardingServerPlugin) SetProvider(provider mcpserver.ActivePluginSource) {
	p.provider = provider
}

func (p *OnboardingServerPlugin) ID() string   { return "onboarding" }
func (p *OnboardingServerPlugin) Name() string { return "Onboarding & Discovery" }
func (p *OnboardingServerPlugin) Description() string {
	return "Onboarding resources describing the deployment workflow"
}
func (p *OnboardingServerPlugin) Version() string { return "0.1.0" }
func (p *OnboardingServerPlugin) DokkuPluginName() string {
	return "" // always active
}

func (p *OnboardingServerPlugin) GetResources(ctx context.Context) ([]serverDomain.Resource, error) {
	return []serverDomain.Resource{
		{
			URI:         QuickstartURI,
			Name:        "Quickstart",
			Description: "Start here: how to register, deploy and follow an application",
			MIMEType:    "text/markdown",
			Handler:     p.handleQuickstartResource,
		},
		{
			URI:         CapabilitiesURI,
			Name:        "Capabilities Index",
			Description: "Index of the tools, resources and prompts currently exposed",
			MIMEType:    "application/json",
			Handler:     p.handleCapabilitiesIndexResource,
		},
		{
			URI:         IntentMapURI,
			Name:        "Intent Map",
			Description: "Mapping of common deployment intents and synonyms to tools",
			MIMEType:    "application/json",
			Handler:     p.handleIntentMapResource,
		},
		{
			URI:         ExamplesURI,
			Name:        "Recipes",
			Description: "Step-by-step recipes for the usual deployment flows",
			MIMEType:    "application/json",
			Handler:     p.handleExamplesResource,
		},
	}, nil
}

const quickstart = "# Quickstart\n\n" +
	"This server deploys applications and databases on a Dokku host.\n" +
	"Mutating tools only queue a job: they return a `job_id` right away and the work runs in the background.\n\n" +
	"## Core flow\n" +
	"1) `create_app` → `{ app_name: \"my-app\", repo_owner: \"acme\", repo_name: \"app\", branch: \"main\" }`\n" +
	"2) `deploy_app` → `{ app_id: \"<id>\", user_name: \"octocat\", token: \"<github token>\" }`\n" +
	"   or `deploy_image` → `{ app_id: \"<id>\", image: \"nginx:1.27\" }` for apps without a repository\n" +
	"3) `get_job` → `{ job_id: \"<job id>\" }` until the status is `succeeded` or `failed`\n" +
	"4) `get_app_logs` → `{ app_id: \"<id>\" }` to read the build output\n\n" +
	"## Databases\n" +
	"- `register_database` → `{ name: \"my-db\", type: \"postgres\" }` for a service that already exists on the host\n" +
	"- Pass `database_id` to `deploy_app` or `deploy_image` to link it once the deployment succeeds\n" +
	"- `link_database` → `{ database_id: \"<id>\", app_id: \"<id>\" }` links it later\n\n" +
	"## Live progress\n" +
	"Build lines and lifecycle events are streamed on `/ws/{topic}?reference_id=<id>` with topic\n" +
	"`APP_CREATED` (deployments), `APP_REBUILT` (rebuilds) or `DATABASE_LINKED` (links).\n" +
	"Every queued job returns its `subscribe_to` path.\n\n" +
	"## Troubleshooting\n" +
	"- A failed deployment destroys the app unless `delete_on_failed` is false\n" +
	"- `rebuild_app` → `{ app_name: \"my-app\" }` retries a build from the current source\n" +
	"- Use the prompt `deployment_doctor` with your `app_id`\n"

func (p *OnboardingServerPlugin) handleQuickstartResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/markdown", Text: quickstart}}, nil
}

// toolExamples holds ready-to-send arguments for the tools whose inputs are not obvious.
var toolExamples = map[string]map[string]any{
	"create_app":        {"app_name": "my-app", "repo_owner": "acme", "repo_name": "app", "branch": "main"},
	"deploy_app":        {"app_id": "<app id>", "user_name": "octocat", "token": "<github token>"},
	"deploy_image":      {"app_id": "<app id>", "image": "nginx:1.27", "delete_on_failed": false},
	"link_database":     {"database_id": "<database id>", "app_id": "<app id>"},
	"register_database": {"name": "my-db", "type": "postgres"},
}

// BuildCapabilityIndex lists what the active plugins expose. A capability kind
// a plugin fails to list is left out of the index.
func (p *OnboardingServerPlugin) BuildCapabilityIndex(ctx context.Context) onbDomain.CapabilityIndex {
	index := onbDomain.NewCapabilityIndex(p.now())
	if p.provider == nil {
		return index
	}

	for _, plugin := range p.provider.ActivePlugins() {
		caps := serverDomain.CollectCapabilities(ctx, plugin)
		for kind, err := range caps.Errors {
			p.logger.Warn("Failed to list plugin capabilities", "plugin", plugin.ID(), "kind", kind, "error", err)
		}
		for _, t := range caps.Tools {
			index.Tools = append(index.Tools, onbDomain.CapabilityTool{
				Plugin:      plugin.ID(),
				Name:        t.Name,
				Description: t.Description,
				Example:     toolExamples[t.Name],
			})
		}
		for _, r := range caps.Resources {
			index.Resources = append(index.Resources, onbDomain.CapabilityResource{
				URI:         r.URI,
				Name:        r.Name,
				Description: r.Description,
				MIMEType:    r.MIMEType,
			})
		}
		for _, pr := range caps.Prompts {
			index.Prompts = append(index.Prompts, onbDomain.PromptMeta{Plugin: plugin.ID(), Name: pr.Name, Description: pr.Description})
		}
	}
	return index
}

func (p *OnboardingServerPlugin) handleCapabilitiesIndexResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, p.BuildCapabilityIndex(ctx))
}

var intents = onbDomain.IntentMap{
	"register": {Synonyms: []string{"new app", "add app", "bootstrap"}, Tool: "create_app", Params: []string{"app_name", "repo_owner", "repo_name", "branch"}},
	"deploy":   {Synonyms: []string{"release", "ship", "publish", "push code"}, Tool: "deploy_app", Params: []string{"app_id", "user_name", "token", "database_id"}},
	"image":    {Synonyms: []string{"docker", "container", "run image"}, Tool: "deploy_image", Params: []string{"app_id", "image", "database_id"}},
	"rebuild":  {Synonyms: []string{"restart build", "retry", "redeploy"}, Tool: "rebuild_app", Params: []string{"app_name"}},
	"database": {Synonyms: []string{"attach db", "connect database", "link"}, Tool: "link_database", Params: []string{"database_id", "app_id"}},
	"progress": {Synonyms: []string{"status", "is it done", "job"}, Tool: "get_job", Params: []string{"job_id"}},
	"logs":     {Synonyms: []string{"build output", "what happened"}, Tool: "get_app_logs", Params: []string{"app_id"}},
}

func (p *OnboardingServerPlugin) handleIntentMapResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, intents)
}

func (p *OnboardingServerPlugin) recipes() onbDomain.Examples {
	return onbDomain.Examples{
		GeneratedAt: p.now(),
		Recipes: []onbDomain.Recipe{
			{
				ID:            "github-deploy",
				Title:         "Deploy a GitHub repository",
				Preconditions: []string{"a GitHub token with read access to the repository"},
				Steps: []onbDomain.RecipeStep{
					{Tool: "create_app", Params: map[string]string{"app_name": "my-app", "repo_owner": "acme", "repo_name": "app"}},
					{Tool: "deploy_app", Params: map[string]string{"app_id": "<app id>", "user_name": "octocat", "token": "<github token>"}},
					{Tool: "get_job", Params: map[string]string{"job_id": "<job id>"}},
				},
				Postconditions: []string{"the job succeeded", "the activity log records the deployment"},
			},
			{
				ID:            "image-with-database",
				Title:         "Deploy an image and link a database",
				Preconditions: []string{"the database service exists on the Dokku host"},
				Steps: []onbDomain.RecipeStep{
					{Tool: "register_database", Params: map[string]string{"name": "my-db", "type": "postgres"}},
					{Tool: "create_app", Params: map[string]string{"app_name": "my-app"}},
					{Tool: "deploy_image", Params: map[string]string{"app_id": "<app id>", "image": "nginx:1.27", "database_id": "<database id>"}},
					{Tool: "get_job", Params: map[string]string{"job_id": "<job id>"}},
				},
				Postconditions: []string{"the database is linked to the application"},
			},
		},
	}
}

func (p *OnboardingServerPlugin) handleExamplesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, p.recipes())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(b)}}, nil
}
