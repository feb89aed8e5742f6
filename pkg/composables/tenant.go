package composables

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/tenantkit/pkg/constants"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
)

// WithTenantContext attaches the tenant context for the current request or job.
func WithTenantContext(ctx context.Context, tc tenancy.Context) context.Context {
	return context.WithValue(ctx, constants.TenantContextKey, tc)
}

// UseTenantContext returns the tenant context. A missing or invalid context
// is tenancy.ErrNoTenantContext; callers must not substitute a default.
func UseTenantContext(ctx context.Context) (tenancy.Context, error) {
	tc, ok := ctx.Value(constants.TenantContextKey).(tenancy.Context)
	if !ok {
		return tenancy.Context{}, tenancy.ErrNoTenantContext
	}
	if err := tc.Validate(); err != nil {
		return tenancy.Context{}, err
	}
	return tc, nil
}

// UseTenantID returns the tenant of the current context. Tenantless system
// contexts yield tenancy.ErrNoTenantContext.
func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	tc, err := UseTenantContext(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if err := tc.RequireTenant(); err != nil {
		return uuid.Nil, err
	}
	return tc.TenantID, nil
}

// TenantSetting is the value the connection binder pushes into the session:
// the tenant id, or "" when the context carries no tenant.
func TenantSetting(ctx context.Context) string {
	tc, ok := ctx.Value(constants.TenantContextKey).(tenancy.Context)
	if !ok || !tc.HasTenant() {
		return ""
	}
	return tc.TenantID.String()
}
