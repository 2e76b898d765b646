package auth

import (
	"context"

	"github.com/alex-galey/dokku-deployer/internal/shared"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*shared.TenantContext, error)
}

type AuthorizationChecker interface {
	CheckPermission(ctx context.Context, tenant *shared.TenantContext, resource, action string) error
}
