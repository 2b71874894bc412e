// Package requestctx carries request-scoped caller identity (tenant_id) from
// the HTTP middleware down to the anonymizer and the audit trail.
package requestctx

import "context"

// DefaultTenant is used when the server runs without API keys.
const DefaultTenant = "default"

type contextKey struct{}

var tenantIDKey = &contextKey{}

// SetTenantID stores tenant_id in the context.
func SetTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID returns the tenant_id from context, or "" if not set.
func TenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}

// TenantIDOrDefault returns the tenant_id from context, or DefaultTenant.
func TenantIDOrDefault(ctx context.Context) string {
	if v := TenantID(ctx); v != "" {
		return v
	}
	return DefaultTenant
}
