package steward

import (
	"context"

	"github.com/xraph/forge"
)

// Actor resolves the acting identity for a call: the Forge-authenticated
// user if present (Authsome), otherwise an explicit WithActor value,
// otherwise "".
func Actor(ctx context.Context) string {
	if userID := forge.UserIDFromContext(ctx); userID != "" {
		return userID
	}
	return actorFromContext(ctx)
}

// DefaultResourceOwner resolves the default resource owner for a call: the
// Forge tenant scope if present, otherwise an explicit WithResourceOwner
// value, otherwise "".
func DefaultResourceOwner(ctx context.Context) string {
	if s, ok := forge.ScopeFrom(ctx); ok {
		if org := s.OrgID(); org != "" {
			return org
		}
	}
	return ownerFromContext(ctx)
}
