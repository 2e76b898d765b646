package database

import (
	"context"
	"fmt"
	"log/slog"

	mcpserver "github.com/alex-galey/dokku-deployer/internal/server"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/authorization"
	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/server/auth"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// DatabaseServerPlugin registers existing Dokku services so deployments can link them.
type DatabaseServerPlugin struct {
	repo        database.Repository
	manager     database.Manager
	authChecker auth.AuthorizationChecker
	logger      *slog.Logger
	newID       func() string
}

func NewDatabaseServerPlugin(
	repo database.Repository,
	manager database.Manager,
	authChecker auth.AuthorizationChecker,
	logger *slog.Logger,
) *DatabaseServerPlugin {
	return &DatabaseServerPlugin{
		repo:        repo,
		manager:     manager,
		authChecker: authChecker,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

func (p *DatabaseServerPlugin) ID() string   { return "databases" }
func (p *DatabaseServerPlugin) Name() string { return "Dokku Databases" }

func (p *DatabaseServerPlugin) Description() string {
	return "Register Dokku database services and inspect which applications use them"
}

func (p *DatabaseServerPlugin) Version() string { return "0.1.0" }

// Each service type has its own Dokku plugin, so none is required as a whole.
func (p *DatabaseServerPlugin) DokkuPluginName() string { return "" }

func (p *DatabaseServerPlugin) GetTools(ctx context.Context) ([]domain.Tool, error) {
	register := domain.Tool{
		Name:        "register_database",
		Description: "Register an existing Dokku database service",
		Builder:     p.buildRegisterDatabaseTool,
		Handler:     p.handleRegisterDatabase,
	}
	return []domain.Tool{
		authorization.WrapToolWithAuthorization(register, "databases", "write", p.authChecker, p.logger),
		{
			Name:        "get_database",
			Description: "Get a database and the applications linked to it",
			Builder:     p.buildGetDatabaseTool,
			Handler:     p.handleGetDatabase,
		},
	}, nil
}

func (p *DatabaseServerPlugin) buildRegisterDatabaseTool() mcp.Tool {
	return mcp.NewTool(
		"register_database",
		mcp.WithDescription("Register a database service that already exists on the Dokku host, so it can be linked to applications"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Service name on the Dokku host")),
		mcp.WithString("type", mcp.Required(),
			mcp.Enum(string(database.TypePostgreSQL), string(database.TypeMySQL), string(database.TypeMongoDB), string(database.TypeRedis)),
			mcp.Description("Service type")),
	)
}

func (p *DatabaseServerPlugin) buildGetDatabaseTool() mcp.Tool {
	return mcp.NewTool(
		"get_database",
		mcp.WithDescription("Get a registered database and the applications linked to it"),
		mcp.WithString("database_id", mcp.Required(), mcp.Description("Identifier of the database record")),
	)
}

func (p *DatabaseServerPlugin) handleRegisterDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "name is required", ""), nil
	}
	typeArg, err := req.RequireString("type")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "type is required", ""), nil
	}
	dbType, err := database.ParseType(typeArg)
	if err != nil {
		return mcpserver.FromError("Cannot register database", err), nil
	}

	db := &database.Database{ID: p.newID(), Name: name, Type: dbType}
	exists, err := p.manager.Exists(ctx, db)
	if err != nil {
		return mcpserver.FromError("Cannot reach the Dokku host", err), nil
	}
	if !exists {
		plugin, _ := dbType.ServicePlugin()
		return mcpserver.Error("database_not_found",
			fmt.Sprintf("Service '%s' does not exist on the Dokku host", name),
			fmt.Sprintf("Create it first with: dokku %s:create %s", plugin, name)), nil
	}

	if err := p.repo.SaveDatabase(ctx, db); err != nil {
		return mcpserver.FromError("Cannot register database", err), nil
	}
	p.logger.Info("Database registered", "database_id", db.ID, "database", db.Name, "database_type", db.Type)

	return mcpserver.OK(fmt.Sprintf("Database '%s' registered", db.Name), db,
		mcpserver.ToolLink{Rel: "link", Tool: "link_database", Params: map[string]any{"database_id": db.ID}},
	), nil
}

func (p *DatabaseServerPlugin) handleGetDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("database_id")
	if err != nil {
		return mcpserver.Error("invalid_arguments", "database_id is required", ""), nil
	}
	membership, err := p.repo.FetchWithMembership(ctx, id, "")
	if err != nil {
		return mcpserver.FromError("Cannot read database", err), nil
	}
	return mcpserver.OK("", membership.Database,
		mcpserver.ToolLink{Rel: "activity", Tool: "get_activity", Params: map[string]any{"reference_id": id}},
	), nil
}
