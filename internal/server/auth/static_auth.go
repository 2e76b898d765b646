package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/alex-galey/dokku-deployer/internal/shared"
)

var (
	ErrInvalidToken     = errors.New("invalid API token")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTenantExpired    = errors.New("credentials expired")
)

// StaticTokenAuthenticator accepts a single shared API token. With no token
// configured every caller is the local operator with full permissions.
type StaticTokenAuthenticator struct {
	token string
	now   func() time.Time
}

func NewStaticTokenAuthenticator(token string) *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{token: token, now: time.Now}
}

func (a *StaticTokenAuthenticator) Authenticate(ctx context.Context, token string) (*shared.TenantContext, error) {
	if a.token != "" && subtle.ConstantTimeCompare([]byte(a.token), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}
	return &shared.TenantContext{
		TenantID:        "default",
		UserID:          "operator",
		Permissions:     []string{shared.WildcardPermission},
		AuthenticatedAt: a.now(),
	}, nil
}

// PermissionChecker grants "<resource>:<action>" from the tenant's permission list.
type PermissionChecker struct {
	now func() time.Time
}

func NewPermissionChecker() *PermissionChecker {
	return &PermissionChecker{now: time.Now}
}

func (c *PermissionChecker) CheckPermission(ctx context.Context, tenant *shared.TenantContext, resource, action string) error {
	if tenant.IsExpired(c.now()) {
		return ErrTenantExpired
	}
	permission := resource + ":" + action
	if !tenant.HasPermission(permission) {
		return fmt.Errorf("%w: %s lacks %s", ErrPermissionDenied, tenant.UserID, permission)
	}
	return nil
}
