// Package api provides HTTP handlers for the Steward grant lifecycle.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
)

// API wires all Steward HTTP handlers together.
type API struct {
	ctrl      *steward.Controller
	scheduler *steward.Scheduler
	router    forge.Router
}

// New creates an API from a Controller and a Forge router. The scheduler is
// optional; without one the manual sweep route is not registered.
func New(ctrl *steward.Controller, scheduler *steward.Scheduler, router forge.Router) *API {
	return &API{ctrl: ctrl, scheduler: scheduler, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	if err := a.RegisterRoutes(a.router); err != nil {
		panic("steward: register routes: " + err.Error())
	}
	return a.router.Handler()
}

// RegisterRoutes registers all API routes into the given Forge router.
func (a *API) RegisterRoutes(router forge.Router) error {
	registerers := []func(forge.Router) error{
		a.registerGrantRoutes,
		a.registerAuditRoutes,
	}
	if a.scheduler != nil {
		registerers = append(registerers, a.registerSweepRoutes)
	}
	for _, fn := range registerers {
		if err := fn(router); err != nil {
			return err
		}
	}
	return nil
}
