package authorization

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/server-plugin/domain"
	"github.com/alex-galey/dokku-deployer/internal/server/auth"
	"github.com/alex-galey/dokku-deployer/internal/shared"
	"github.com/mark3labs/mcp-go/mcp"
)

// WrapToolWithAuthorization guards tool with a "<resource>:<action>" check.
// Calls without a tenant (the stdio transport) come from the local operator
// and are let through.
func WrapToolWithAuthorization(
	tool domain.Tool,
	resource string,
	action string,
	authChecker auth.AuthorizationChecker,
	logger *slog.Logger,
) domain.Tool {
	next := tool.Handler

	tool.Handler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tenant, ok := shared.GetTenantContext(ctx)
		if !ok || authChecker == nil {
			return next(ctx, request)
		}

		if err := authChecker.CheckPermission(ctx, tenant, resource, action); err != nil {
			logger.Warn("Tool call refused",
				"tool", tool.Name,
				"tenant_id", tenant.TenantID,
				"user_id", tenant.UserID,
				"permission", resource+":"+action,
				"error", err)
			return mcp.NewToolResultError(fmt.Sprintf("Permission denied: %v", err)),
				fmt.Errorf("permission denied: %w", err)
		}

		logger.Debug("Tool call authorized",
			"tool", tool.Name,
			"user_id", tenant.UserID)
		return next(ctx, request)
	}
	return tool
}
