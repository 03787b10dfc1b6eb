package context

import (
	"context"

	"stockledger/internal/core/id"
)

type actorKey struct{}

// WithActor stores the id of whoever is performing stock movements.
// Actor existence is not verified by this service.
func WithActor(ctx context.Context, actorID id.ID) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// GetActorID returns the actor id from context, or nil when the call is anonymous.
func GetActorID(ctx context.Context) *id.ID {
	if v, ok := ctx.Value(actorKey{}).(id.ID); ok && !id.IsNil(v) {
		return &v
	}
	return nil
}
