// Package extension provides a Forge extension entry point for Steward.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/steward"
	"github.com/xraph/steward/api"
	"github.com/xraph/steward/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "steward"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Time-bound access grant lifecycle with approval workflow and expiry notifications"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Steward as a Forge extension.
type Extension struct {
	config      Config
	ctrl        *steward.Controller
	scheduler   *steward.Scheduler
	apiHandler  *api.API
	logger      *slog.Logger
	stewardOpts []steward.Option
}

// New creates a Steward Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Controller returns the underlying lifecycle controller.
func (e *Extension) Controller() *steward.Controller { return e.ctrl }

// Scheduler returns the expiration scheduler, if one was created.
func (e *Extension) Scheduler() *steward.Scheduler { return e.scheduler }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// Register implements [forge.Extension]. It initializes the controller,
// registers it in the DI container, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.init(fapp); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*steward.Controller, error) {
		return e.ctrl, nil
	}); err != nil {
		return fmt.Errorf("steward: register controller in container: %w", err)
	}
	if e.scheduler != nil {
		if err := vessel.Provide(fapp.Container(), func() (*steward.Scheduler, error) {
			return e.scheduler, nil
		}); err != nil {
			return fmt.Errorf("steward: register scheduler in container: %w", err)
		}
	}

	return nil
}

func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Build controller options.
	opts := make([]steward.Option, 0, len(e.stewardOpts)+1)
	opts = append(opts, steward.WithLogger(logger))

	// Try to resolve collaborators from the DI container; option-provided
	// values override.
	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		opts = append(opts, steward.WithStore(s))
	}
	if p, err := forge.Inject[steward.Provisioner](fapp.Container()); err == nil {
		opts = append(opts, steward.WithProvisioner(p))
	}
	if n, err := forge.Inject[steward.Notifier](fapp.Container()); err == nil {
		opts = append(opts, steward.WithNotifier(n))
	}

	opts = append(opts, e.stewardOpts...)

	ctrl, err := steward.New(opts...)
	if err != nil {
		return fmt.Errorf("steward: create controller: %w", err)
	}
	e.ctrl = ctrl

	// The scheduler needs a notifier; without one only manual expiry via
	// the controller is available.
	if !e.config.DisableScheduler {
		sched, err := steward.NewScheduler(ctrl)
		if err == nil {
			e.scheduler = sched
		} else {
			logger.Warn("steward: scheduler disabled", "reason", err)
		}
	}

	e.apiHandler = api.New(ctrl, e.scheduler, fapp.Router())

	if !e.config.DisableRoutes {
		if err := e.apiHandler.RegisterRoutes(fapp.Router()); err != nil {
			return fmt.Errorf("steward: register routes: %w", err)
		}
	}

	return nil
}

// Start runs migrations if enabled, starts the controller, and launches the
// expiration scheduler.
func (e *Extension) Start(ctx context.Context) error {
	if e.ctrl == nil {
		return errors.New("steward: extension not initialized")
	}

	if !e.config.DisableMigrate {
		s := e.ctrl.Store()
		if s != nil {
			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("steward: migration failed: %w", err)
			}
		}
	}

	if err := e.ctrl.Start(ctx); err != nil {
		return err
	}
	if e.scheduler != nil {
		return e.scheduler.Start(ctx)
	}
	return nil
}

// Stop gracefully shuts down the scheduler and controller.
func (e *Extension) Stop(ctx context.Context) error {
	if e.scheduler != nil {
		if err := e.scheduler.Stop(ctx); err != nil {
			return err
		}
	}
	if e.ctrl == nil {
		return nil
	}
	return e.ctrl.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.ctrl == nil {
		return errors.New("steward: extension not initialized")
	}
	s := e.ctrl.Store()
	if s == nil {
		return errors.New("steward: no store configured")
	}
	return s.Ping(ctx)
}

// Handler returns the HTTP handler for all API routes.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all steward API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) error {
	if e.apiHandler != nil {
		return e.apiHandler.RegisterRoutes(router)
	}
	return nil
}
