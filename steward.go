// Package steward manages the time-bound access-grant lifecycle: the state
// machine that turns a human request into a provisioned (or denied) access
// grant on an external resource, keeps that grant valid for a bounded
// period, and autonomously finalizes or warns about approaching expiry.
//
// The Controller drives all mutating transitions (request, approve, reject,
// renew, upgrade, revoke, expire); the Scheduler periodically sweeps active
// grants, fires each expiry-warning threshold at most once per cycle, and
// finalizes passed expirations. Every successful transition writes exactly
// one audit entry in the same atomic unit as the grant mutation.
//
//	ctrl, err := steward.New(
//	    steward.WithStore(memStore),
//	    steward.WithProvisioner(prov),
//	    steward.WithNotifier(mailer),
//	)
//	g, err := ctrl.RequestGrant(ctx, steward.RequestInput{
//	    Principal:     "alice@example.com",
//	    ResourceOwner: "acct-1",
//	    ResourceID:    "prop-42",
//	    Level:         grant.LevelViewer,
//	    RequestedBy:   "alice@example.com",
//	})
package steward

import (
	"context"

	"github.com/xraph/steward/grant"
)

// Provisioner performs the actual grant/revoke call against the external
// system. Both operations are idempotent: repeating a call after a prior
// success is a no-op success, which is what makes retry-after-failure safe.
type Provisioner interface {
	// Grant provisions access for the principal on the resource at the
	// given level. Re-granting at a different level replaces the old level.
	Grant(ctx context.Context, principal, resourceOwner, resourceID string, level grant.Level) error

	// Revoke removes the principal's access to the resource. Revoking an
	// already-revoked or absent grant succeeds.
	Revoke(ctx context.Context, principal, resourceOwner, resourceID string) error
}

// Notifier sends a message to a recipient using a named template.
type Notifier interface {
	Send(ctx context.Context, recipient, templateID string, data map[string]any) error
}

// RequestInput is the input to Controller.RequestGrant.
type RequestInput struct {
	Principal     string      `json:"principal"`
	ResourceOwner string      `json:"resource_owner"`
	ResourceID    string      `json:"resource_id"`
	Level         grant.Level `json:"level"`
	RequestedBy   string      `json:"requested_by"`
}

// SweepResult summarizes one expiration sweep.
type SweepResult struct {
	Notified int `json:"notified"`
	Expired  int `json:"expired"`
	Errors   int `json:"errors"`
}
