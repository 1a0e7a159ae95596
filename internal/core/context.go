package core

import "context"

type contextKey string

const (
	ctxKeyTenant    contextKey = "tenant_id"
	ctxKeyIPAddress contextKey = "client_ip"
)

// ContextWithTenant adds the school (ecole) id to context.
func ContextWithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, ctxKeyTenant, tenantID)
}

// TenantFromContext extracts the school id from context.
func TenantFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyTenant).(string)
	return v, ok && v != ""
}

// ContextWithIPAddress adds the client IP address to context for logging.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// GetIPAddressFromContext extracts IP address from context.
func GetIPAddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyIPAddress).(string); ok {
		return v
	}
	return ""
}
