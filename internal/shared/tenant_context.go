package shared

import (
	"context"
	"slices"
	"time"
)

// WildcardPermission grants every action on every resource.
const WildcardPermission = "*"

// TenantContext identifies the caller of an MCP tool.
type TenantContext struct {
	TenantID        string
	UserID          string
	Permissions     []string
	AuthenticatedAt time.Time
	ExpiresAt       *time.Time
}

// HasPermission reports whether the tenant holds permission, either directly or
// through the wildcard.
func (tc *TenantContext) HasPermission(permission string) bool {
	return slices.Contains(tc.Permissions, WildcardPermission) || slices.Contains(tc.Permissions, permission)
}

func (tc *TenantContext) IsExpired(now time.Time) bool {
	return tc.ExpiresAt != nil && now.After(*tc.ExpiresAt)
}

type contextKey string

const tenantContextKey contextKey = "tenant"

func WithTenantContext(ctx context.Context, tenant *TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

func GetTenantContext(ctx context.Context) (*TenantContext, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(*TenantContext)
	return tenant, ok && tenant != nil
}
