package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type actorKey struct{}

type actor struct {
	kind string
	id   string
}

const (
	ActorWebhook = "webhook"
	ActorAdmin   = "admin"
	ActorDonor   = "donor"
	ActorCLI     = "cli"
)

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithActor records who triggered the current operation.
func WithActor(ctx stdcontext.Context, kind, id string) stdcontext.Context {
	return stdcontext.WithValue(ctx, actorKey{}, actor{
		kind: strings.TrimSpace(kind),
		id:   strings.TrimSpace(id),
	})
}

func ActorFromContext(ctx stdcontext.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if v, ok := ctx.Value(actorKey{}).(actor); ok {
		return v.kind, v.id
	}
	return "", ""
}
