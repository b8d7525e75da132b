package plugin

import (
	"context"
	"log/slog"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
)

// Named entry types pair a hook with the plugin name for logging.

type grantTransitionEntry struct {
	name string
	hook GrantTransition
}
type notificationSentEntry struct {
	name string
	hook NotificationSent
}
type sweepCompletedEntry struct {
	name string
	hook SweepCompleted
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate
// only over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	grantTransition  []grantTransitionEntry
	notificationSent []notificationSentEntry
	sweepCompleted   []sweepCompletedEntry
	shutdown         []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable
// hook caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(GrantTransition); ok {
		r.grantTransition = append(r.grantTransition, grantTransitionEntry{name, h})
	}
	if h, ok := p.(NotificationSent); ok {
		r.notificationSent = append(r.notificationSent, notificationSentEntry{name, h})
	}
	if h, ok := p.(SweepCompleted); ok {
		r.sweepCompleted = append(r.sweepCompleted, sweepCompletedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// EmitGrantTransition notifies all plugins that implement GrantTransition.
func (r *Registry) EmitGrantTransition(ctx context.Context, g *grant.Grant, action audit.Action) {
	for _, e := range r.grantTransition {
		if err := e.hook.OnGrantTransition(ctx, g, action); err != nil {
			r.logHookError("OnGrantTransition", e.name, err)
		}
	}
}

// EmitNotificationSent notifies all plugins that implement NotificationSent.
func (r *Registry) EmitNotificationSent(ctx context.Context, g *grant.Grant, thresholdDays int) {
	for _, e := range r.notificationSent {
		if err := e.hook.OnNotificationSent(ctx, g, thresholdDays); err != nil {
			r.logHookError("OnNotificationSent", e.name, err)
		}
	}
}

// EmitSweepCompleted notifies all plugins that implement SweepCompleted.
func (r *Registry) EmitSweepCompleted(ctx context.Context, notified, expired, errs int) {
	for _, e := range r.sweepCompleted {
		if err := e.hook.OnSweepCompleted(ctx, notified, expired, errs); err != nil {
			r.logHookError("OnSweepCompleted", e.name, err)
		}
	}
}

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
