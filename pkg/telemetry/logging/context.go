package logging

import "context"

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// TenantKey is the context key for base tenant identifiers.
	TenantKey contextKey = "tenant"

	// SessionKey is the context key for session identifiers.
	SessionKey contextKey = "session"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithTenant adds a base tenant identifier to the context.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// GetTenant retrieves the base tenant identifier from the context.
func GetTenant(ctx context.Context) string {
	if tenant, ok := ctx.Value(TenantKey).(string); ok {
		return tenant
	}
	return ""
}

// WithSession adds a session identifier to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// GetSession retrieves the session identifier from the context.
func GetSession(ctx context.Context) string {
	if session, ok := ctx.Value(SessionKey).(string); ok {
		return session
	}
	return ""
}

// Fields extracts the known context fields as alternating key/value
// pairs suitable for slog calls.
func Fields(ctx context.Context) []any {
	var args []any
	if v := GetRequestID(ctx); v != "" {
		args = append(args, "request_id", v)
	}
	if v := GetTenant(ctx); v != "" {
		args = append(args, "tenant", v)
	}
	if v := GetSession(ctx); v != "" {
		args = append(args, "session", v)
	}
	return args
}
