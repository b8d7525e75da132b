package steward

import "context"

type contextKey int

const (
	ctxKeyActor contextKey = iota
	ctxKeyOwner
)

// WithActor returns a context carrying the acting identity, used by the API
// layer to attribute transitions when the request body does not name one.
// Use this for standalone mode (without Forge).
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKeyActor, actor)
}

// WithResourceOwner returns a context carrying a default resource owner.
func WithResourceOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, owner)
}

func actorFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyActor).(string)
	if !ok {
		return ""
	}
	return v
}

func ownerFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyOwner).(string)
	if !ok {
		return ""
	}
	return v
}
