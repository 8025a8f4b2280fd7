package middleware

import "context"

type contextKey string

const ctxAdminMethod contextKey = "admin_auth_method"

// AdminAuthMethodFromContext reports how the current admin request
// authenticated: "jwt" or "password". Empty means unauthenticated.
func AdminAuthMethodFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAdminMethod).(string); ok {
		return v
	}
	return ""
}

func withAdminMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, ctxAdminMethod, method)
}
