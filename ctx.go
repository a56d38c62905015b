package auth

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}
var actorCtxKey = &contextKey{"actor"}

type contextKey struct {
	name string
}

// WithSessionContext stores verified session claims in ctx
func WithSessionContext(ctx context.Context, session SessionClaims) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext returns the claims stored by SessionMiddleware
func SessionFromContext(ctx context.Context) (SessionClaims, bool) {
	if ctx == nil {
		return SessionClaims{}, false
	}
	session, ok := ctx.Value(sessionCtxKey).(SessionClaims)
	return session, ok
}

// WithActorContext records who is performing the current operation
func WithActorContext(ctx context.Context, actor ActorRef) context.Context {
	return context.WithValue(ctx, actorCtxKey, actor)
}

// ActorFromContext returns the actor for ctx, falling back to the session
// subject and then to the system actor.
func ActorFromContext(ctx context.Context) ActorRef {
	if ctx != nil {
		if actor, ok := ctx.Value(actorCtxKey).(ActorRef); ok && actor.ID != "" {
			return actor
		}
		if session, ok := SessionFromContext(ctx); ok && session.Subject != "" {
			return ActorRef{ID: session.Subject, Type: "user"}
		}
	}
	return ActorRef{ID: DefaultActor, Type: "system"}
}
