// Package plugin defines the plugin system for Steward.
// Plugins are notified of lifecycle events (grant transitions, warnings
// sent, sweeps completed) and can react — logging, metrics, tracing, etc.
// Hooks observe only: they run after the state change is durable and can
// never affect or revert it. The audit trail is not built on these hooks;
// it is written transactionally with each transition.
//
// Each lifecycle hook is a separate interface so plugins opt in only
// to the events they care about.
package plugin

import (
	"context"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// GrantTransition is called after any successful grant state change.
type GrantTransition interface {
	OnGrantTransition(ctx context.Context, g *grant.Grant, action audit.Action) error
}

// NotificationSent is called after an expiry warning was sent and recorded.
type NotificationSent interface {
	OnNotificationSent(ctx context.Context, g *grant.Grant, thresholdDays int) error
}

// SweepCompleted is called after each expiration sweep with its counts.
type SweepCompleted interface {
	OnSweepCompleted(ctx context.Context, notified, expired, errs int) error
}

// Shutdown is called when the controller shuts down.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
