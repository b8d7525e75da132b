// Package mongo provides a MongoDB implementation of the Steward composite
// store using grove ORM. The uniqueness invariant on open grants is enforced
// with a partial unique index.
//
// MongoDB offers no cross-collection transaction through the grove driver,
// so grant writes and their audit entries are kept consistent with guarded
// writes plus compensating actions: the grant write happens first, and a
// failed audit insert rolls the grant back to its pre-image.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/store"
)

// Collection name constants.
const (
	colGrants       = "steward_grants"
	colAuditEntries = "steward_audit_entries"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Steward store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all steward collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("steward/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// isNoDocuments checks for the mongo no-documents sentinel.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// openStatuses is the partial-index filter for the open-grant uniqueness
// constraint.
var openStatuses = bson.A{string(grant.StatusPendingApproval), string(grant.StatusActive)}

// migrationIndexes returns the index definitions for all steward collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colGrants: {
			{
				Keys: bson.D{
					{Key: "principal", Value: 1},
					{Key: "resource_owner", Value: 1},
					{Key: "resource_id", Value: 1},
				},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.D{
						{Key: "status", Value: bson.D{{Key: "$in", Value: openStatuses}}},
					}),
			},
			{Keys: bson.D{{Key: "principal", Value: 1}}},
			{Keys: bson.D{{Key: "resource_owner", Value: 1}, {Key: "resource_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
		colAuditEntries: {
			{Keys: bson.D{{Key: "grant_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "actor", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGrant(ctx context.Context, g *grant.Grant, entry *audit.Entry) error {
	g.Version = 1
	m := grantToModel(g)

	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("grant for %s on %s/%s: %w",
				g.Principal, g.ResourceOwner, g.ResourceID, grant.ErrDuplicateActiveGrant)
		}
		return fmt.Errorf("steward: create grant: %w", err)
	}

	if _, err := s.mdb.NewInsert(auditEntryToModel(entry)).Exec(ctx); err != nil {
		// Compensate: remove the grant so the unit stays both-or-neither.
		//nolint:errcheck // best-effort compensation
		_, _ = s.mdb.NewDelete((*grantModel)(nil)).
			Filter(bson.M{"_id": m.ID}).
			Exec(ctx)
		return fmt.Errorf("steward: create grant: audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": grantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
		}
		return nil, fmt.Errorf("steward: get grant: %w", err)
	}
	return grantFromModel(&m), nil
}

func (s *Store) UpdateGrant(ctx context.Context, g *grant.Grant, expectedVersion int64, entry *audit.Entry) error {
	// Capture the pre-image so a failed audit insert can be compensated.
	var pre grantModel
	err := s.mdb.NewFind(&pre).
		Filter(bson.M{"_id": g.ID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return fmt.Errorf("grant %s: %w", g.ID, grant.ErrNotFound)
		}
		return fmt.Errorf("steward: update grant: %w", err)
	}

	g.Version = expectedVersion + 1
	m := grantToModel(g)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": expectedVersion}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: update grant: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("grant %s: expected version %d, have %d: %w",
			g.ID, expectedVersion, pre.Version, grant.ErrVersionConflict)
	}

	if _, err := s.mdb.NewInsert(auditEntryToModel(entry)).Exec(ctx); err != nil {
		// Compensate: restore the pre-image, guarded on the version this
		// update installed so a newer write is never clobbered.
		//nolint:errcheck // best-effort compensation
		_, _ = s.mdb.NewUpdate(&pre).
			Filter(bson.M{"_id": m.ID, "version": g.Version}).
			Exec(ctx)
		return fmt.Errorf("steward: update grant: audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.mdb.NewFind(&models).
		Filter(grantFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list grants: %w", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*grantModel)(nil)).
		Filter(grantFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count grants: %w", err)
	}
	return count, nil
}

func grantFilter(filter *grant.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Status != "" {
		f["status"] = string(filter.Status)
	}
	if filter.Principal != "" {
		f["principal"] = filter.Principal
	}
	if filter.ResourceOwner != "" {
		f["resource_owner"] = filter.ResourceOwner
	}
	if filter.ResourceID != "" {
		f["resource_id"] = filter.ResourceID
	}
	if filter.ExpiringBefore != nil {
		f["expires_at"] = bson.M{"$ne": nil, "$lt": filter.ExpiringBefore.UTC()}
	}
	return f
}

func (s *Store) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":     string(grant.StatusActive),
			"expires_at": bson.M{"$ne": nil, "$lt": before.UTC()},
		}).
		Sort(bson.D{{Key: "expires_at", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list expiring grants: %w", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) MarkNotified(ctx context.Context, grantID id.GrantID, threshold int, at, expiresAt time.Time) (bool, error) {
	// Read, check the ledger condition, then replace guarded on the
	// version read. A lost race surfaces as MatchedCount zero.
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": grantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return false, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
		}
		return false, fmt.Errorf("steward: mark notified: %w", err)
	}

	if m.Status != string(grant.StatusActive) || m.ExpiresAt == nil || !m.ExpiresAt.Equal(expiresAt) {
		return false, nil
	}
	if m.LastNotifiedThreshold != 0 && m.LastNotifiedThreshold <= threshold {
		return false, nil
	}

	prevVersion := m.Version
	m.LastNotifiedThreshold = threshold
	notifiedAt := at.UTC()
	m.LastNotifiedAt = &notifiedAt
	m.UpdatedAt = notifiedAt
	m.Version++

	res, err := s.mdb.NewUpdate(&m).
		Filter(bson.M{"_id": m.ID, "version": prevVersion}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("steward: mark notified: %w", err)
	}
	return res.MatchedCount() > 0, nil
}

// ──────────────────────────────────────────────────
// Audit operations
// ──────────────────────────────────────────────────

func (s *Store) ListAuditTrail(ctx context.Context, grantID id.GrantID) ([]*audit.Entry, error) {
	var models []auditEntryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"grant_id": grantID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list audit trail: %w", err)
	}
	result := make([]*audit.Entry, len(models))
	for i := range models {
		result[i] = auditEntryFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditEntryModel
	q := s.mdb.NewFind(&models).
		Filter(auditFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list audit entries: %w", err)
	}
	result := make([]*audit.Entry, len(models))
	for i := range models {
		result[i] = auditEntryFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	count, err := s.mdb.NewFind((*auditEntryModel)(nil)).
		Filter(auditFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count audit entries: %w", err)
	}
	return count, nil
}

func auditFilter(filter *audit.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if !filter.GrantID.IsNil() {
		f["grant_id"] = filter.GrantID.String()
	}
	if filter.Actor != "" {
		f["actor"] = filter.Actor
	}
	if filter.Action != "" {
		f["action"] = string(filter.Action)
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gte"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lte"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*auditEntryModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before.UTC()}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: purge audit entries: %w", err)
	}
	return res.DeletedCount(), nil
}
