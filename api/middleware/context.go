package middleware

import "context"

// caller is the authenticated identity attached by Auth.
type caller struct {
	userID string
	role   string
}

type callerKey struct{}

type requestIDKey struct{}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, c caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, c)
}

func UserIDFromContext(ctx context.Context) string {
	return callerFrom(ctx).userID
}

func RoleFromContext(ctx context.Context) string {
	return callerFrom(ctx).role
}

func WithUserID(ctx context.Context, userID string) context.Context {
	c := callerFrom(ctx)
	c.userID = userID
	return withCaller(ctx, c)
}

func WithRole(ctx context.Context, role string) context.Context {
	c := callerFrom(ctx)
	c.role = role
	return withCaller(ctx, c)
}

// RequestIDFromContext returns the id assigned by the RequestID middleware.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
