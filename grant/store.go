package grant

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/id"
)

// Store defines persistence operations for grants.
//
// State-changing operations take the audit entry describing the change and
// commit grant and entry as one atomic unit: if either write fails, neither
// is visible.
type Store interface {
	// CreateGrant persists a new grant together with its audit entry.
	// The backend enforces that at most one open (pending_approval or
	// active) grant exists per (principal, resource_owner, resource_id);
	// a violation returns an error matching ErrDuplicateActiveGrant.
	CreateGrant(ctx context.Context, g *Grant, entry *audit.Entry) error

	// GetGrant retrieves a grant by ID.
	GetGrant(ctx context.Context, grantID id.GrantID) (*Grant, error)

	// UpdateGrant performs a compare-and-set update: the write applies only
	// if the stored version equals expectedVersion, and bumps the version.
	// The audit entry is written in the same atomic unit. A stale
	// expectedVersion returns an error matching ErrVersionConflict.
	UpdateGrant(ctx context.Context, g *Grant, expectedVersion int64, entry *audit.Entry) error

	// ListGrants returns grants matching the filter.
	ListGrants(ctx context.Context, filter *ListFilter) ([]*Grant, error)

	// CountGrants returns the number of grants matching the filter.
	CountGrants(ctx context.Context, filter *ListFilter) (int64, error)

	// ListExpiring returns active grants with expires_at before the given
	// time, ordered by expires_at ascending. This is the sweep working set.
	ListExpiring(ctx context.Context, before time.Time, limit int) ([]*Grant, error)

	// MarkNotified conditionally records a warning notification: it applies
	// only if the grant is still active, still carries the given expiry
	// (a renewal moves it and voids the ledger), and its recorded threshold
	// is absent or less urgent than the one being recorded. Returns false
	// when the condition no longer holds (a concurrent sweep won the race
	// or the grant moved on); that is not an error.
	MarkNotified(ctx context.Context, grantID id.GrantID, threshold int, at, expiresAt time.Time) (bool, error)
}

// Sentinel errors shared by all store backends. Backends wrap them with
// context; callers discriminate with errors.Is.
var (
	// ErrNotFound is returned when a grant cannot be found.
	ErrNotFound = errors.New("grant: not found")

	// ErrDuplicateActiveGrant is returned when the open-grant uniqueness
	// constraint on (principal, resource_owner, resource_id) is violated.
	ErrDuplicateActiveGrant = errors.New("grant: duplicate open grant for principal and resource")

	// ErrVersionConflict is returned when a compare-and-set update lost a
	// race: the stored version no longer matches the expected one.
	ErrVersionConflict = errors.New("grant: version conflict")
)
