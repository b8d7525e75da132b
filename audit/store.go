package audit

import (
	"context"
	"time"

	"github.com/xraph/steward/id"
)

// Store defines read and retention operations for the audit trail.
//
// There is deliberately no CreateEntry here: entries enter the store only
// through the grant store's atomic create/update operations, so a grant
// mutation and its audit record are both-or-neither.
type Store interface {
	// ListAuditTrail returns all entries for a grant, oldest first.
	ListAuditTrail(ctx context.Context, grantID id.GrantID) ([]*Entry, error)

	// ListAuditEntries returns entries matching the filter, oldest first.
	ListAuditEntries(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// CountAuditEntries returns the number of entries matching the filter.
	CountAuditEntries(ctx context.Context, filter *QueryFilter) (int64, error)

	// PurgeAuditEntries removes entries older than the given time.
	// Retention only; individual entries are never mutated.
	PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error)
}
