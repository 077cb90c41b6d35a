// Package actor carries the authenticated actor id through request contexts.
package actor

import "context"

// System is recorded when no authenticated actor is present (CLI, webhooks).
const System = "system"

type ctxKey struct{}

func WithID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the actor id, or System.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKey{}).(string); ok && id != "" {
		return id
	}
	return System
}
