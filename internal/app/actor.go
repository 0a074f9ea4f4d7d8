package app

import (
	"context"
	"strings"

	"github.com/hylla/itemflow/internal/domain"
)

// Actor carries normalized caller identity for mutation attribution.
type Actor struct {
	ID   string
	Type domain.ActorType
}

// actorContextKey stores context keys for actor values.
type actorContextKey struct{}

// WithActor attaches a normalized actor to ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, normalizeActor(actor))
}

// ActorFromContext returns the actor attached to ctx when present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}

// normalizeActor trims identity fields and defaults unknown types to user.
func normalizeActor(actor Actor) Actor {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.Type = domain.ActorType(strings.TrimSpace(strings.ToLower(string(actor.Type))))
	switch actor.Type {
	case domain.ActorTypeUser, domain.ActorTypeAgent, domain.ActorTypeSystem:
	default:
		actor.Type = domain.ActorTypeUser
	}
	return actor
}
