// Package middleware provides HTTP middleware for the Steward API.
package middleware

import (
	"encoding/json"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
)

// RequireActor rejects requests with no resolvable acting identity
// (Authsome user or an explicit steward.WithActor value). Mount it on the
// human-gated transition routes (approve, reject, revoke) so a transition
// is never recorded without an accountable actor.
func RequireActor() forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			if steward.Actor(ctx.Context()) == "" {
				return denyResponse(ctx)
			}
			return next(ctx)
		}
	}
}

func denyResponse(ctx forge.Context) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(401)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": "acting identity required"})
}
