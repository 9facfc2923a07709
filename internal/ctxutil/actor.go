// Package ctxutil carries request-scoped values through context.
// It has no internal dependencies so any layer may import it.
package ctxutil

import "context"

// ActorKey is the context key for the acting agent id.
type ActorKey struct{}

// WithActorID returns a context whose mutations are attributed to actorID.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// ActorFromContext returns the actor id, or "" when none is set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey{}).(string); ok {
		return v
	}
	return ""
}

// EnsureActor attaches actorID unless ctx already names an actor.
func EnsureActor(ctx context.Context, actorID string) context.Context {
	if ActorFromContext(ctx) != "" {
		return ctx
	}
	return WithActorID(ctx, actorID)
}
