package extension

import (
	"log/slog"

	"github.com/xraph/steward"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/store"
)

// ExtOption configures the Steward Forge extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.stewardOpts = append(e.stewardOpts, steward.WithStore(s))
	}
}

// WithProvisioner sets the downstream access provisioner.
func WithProvisioner(p steward.Provisioner) ExtOption {
	return func(e *Extension) {
		e.stewardOpts = append(e.stewardOpts, steward.WithProvisioner(p))
	}
}

// WithNotifier sets the notification sender used for expiry warnings.
func WithNotifier(n steward.Notifier) ExtOption {
	return func(e *Extension) {
		e.stewardOpts = append(e.stewardOpts, steward.WithNotifier(n))
	}
}

// WithConfig sets the extension configuration.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithControllerOptions adds controller-level options.
func WithControllerOptions(opts ...steward.Option) ExtOption {
	return func(e *Extension) {
		e.stewardOpts = append(e.stewardOpts, opts...)
	}
}

// WithPlugin registers a lifecycle hook plugin.
func WithPlugin(x plugin.Plugin) ExtOption {
	return func(e *Extension) {
		e.stewardOpts = append(e.stewardOpts, steward.WithPlugin(x))
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrate disables auto-migration on start.
func WithDisableMigrate() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}

// WithDisableScheduler disables the background expiration scheduler.
func WithDisableScheduler() ExtOption {
	return func(e *Extension) {
		e.config.DisableScheduler = true
	}
}
