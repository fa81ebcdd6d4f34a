package shared

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
)

type actorContextKey struct{}

// ContextWithActor stores the acting user id in context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext returns the acting user id, or zero when unknown.
func ActorFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(actorContextKey{}).(int64)
	return id
}

// RequestIDFromContext returns the chi request id if one was assigned.
func RequestIDFromContext(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
