// Package store defines the aggregate persistence interface. The grant and
// audit subsystems each define their own store interface; the composite
// Store composes them. Backends: Postgres, SQLite, MongoDB, and Memory.
package store

import (
	"context"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
)

// Store is the aggregate persistence interface. A single backend
// (postgres, sqlite, mongo, memory) implements all of it.
type Store interface {
	grant.Store
	audit.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
