// Package auth carries the authenticated caller through request contexts.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the caller of an operation.
type Actor struct {
	UserID  uuid.UUID
	Email   string
	IsStaff bool
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
