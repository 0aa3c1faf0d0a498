// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// SystemActor is recorded as author of writes that no user initiated
// (scheduled jobs, automatic resyncs).
const SystemActor = "system"

// UserContext identifies who performs an operation.
// Authentication happens upstream; the gateway forwards the user id.
type UserContext struct {
	UserID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// ActorOrSystem returns the user id from context, or SystemActor when absent.
func ActorOrSystem(ctx context.Context) string {
	if uid := GetUserID(ctx); uid != "" {
		return uid
	}
	return SystemActor
}
