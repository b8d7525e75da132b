package steward

import (
	"log/slog"

	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/policy"
	"github.com/xraph/steward/store"
)

// Option is a functional option for the Controller.
type Option func(*Controller)

// WithStore sets the composite store.
func WithStore(s store.Store) Option { return func(c *Controller) { c.store = s } }

// WithProvisioner sets the external access provisioner.
func WithProvisioner(p Provisioner) Option { return func(c *Controller) { c.provisioner = p } }

// WithNotifier sets the expiry-warning notifier.
func WithNotifier(n Notifier) Option { return func(c *Controller) { c.notifier = n } }

// WithPolicyTable sets the level→duration/approval policy table.
func WithPolicyTable(t *policy.Table) Option { return func(c *Controller) { c.policies = t } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithClock sets the clock. Tests inject a fake here.
func WithClock(clk Clock) Option { return func(c *Controller) { c.clock = clk } }

// WithConfig sets the controller configuration.
func WithConfig(cfg Config) Option { return func(c *Controller) { c.config = cfg } }

// WithPlugin registers a plugin with the controller.
func WithPlugin(p plugin.Plugin) Option {
	return func(c *Controller) {
		if c.plugins == nil {
			c.plugins = plugin.NewRegistry(c.logger)
		}
		c.plugins.Register(p)
	}
}
