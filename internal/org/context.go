package org

import "context"

type contextKey string

const orgIDKey contextKey = "organizationID"

// GinContextKey is where middleware stashes the resolved organization
// id on a gin context.
const GinContextKey = "organizationID"

// WithID returns a context carrying the resolved organization id.
// Tenant identity is always request-scoped; nothing global holds it.
func WithID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// IDFromContext returns the resolved organization id, if any.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(orgIDKey).(string)
	return id, ok && id != ""
}
