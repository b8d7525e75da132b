// Package sqlite provides a SQLite implementation of the Steward composite
// store using grove ORM with Go-based migrations. Suited to embedded and
// single-node deployments; the uniqueness invariant on open grants is
// enforced with a partial unique index.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite Steward store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("steward/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("steward/sqlite: migration failed: %w", err)
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation detects the SQLite unique-constraint error raised by
// the partial index on open grants.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGrant(ctx context.Context, g *grant.Grant, entry *audit.Entry) error {
	g.Version = 1
	m := grantToModel(g)
	em, err := auditEntryToModel(entry)
	if err != nil {
		return fmt.Errorf("steward: create grant: %w", err)
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("steward: create grant: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	if _, err := tx.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("grant for %s on %s/%s: %w",
				g.Principal, g.ResourceOwner, g.ResourceID, grant.ErrDuplicateActiveGrant)
		}
		return fmt.Errorf("steward: create grant: %w", err)
	}
	if _, err := tx.NewInsert(em).Exec(ctx); err != nil {
		return fmt.Errorf("steward: create grant: audit entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("steward: create grant: commit: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	m := new(grantModel)
	err := s.sdb.NewSelect(m).Where("id = ?", grantID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
		}
		return nil, fmt.Errorf("steward: get grant: %w", err)
	}
	return grantFromModel(m), nil
}

func (s *Store) UpdateGrant(ctx context.Context, g *grant.Grant, expectedVersion int64, entry *audit.Entry) error {
	g.Version = expectedVersion + 1
	m := grantToModel(g)
	em, err := auditEntryToModel(entry)
	if err != nil {
		return fmt.Errorf("steward: update grant: %w", err)
	}

	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("steward: update grant: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	res, err := tx.NewUpdate(m).
		Where("id = ?", m.ID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("steward: update grant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("steward: update grant: %w", err)
	}
	if rows == 0 {
		// The guarded write did not apply. Distinguish a missing grant
		// from a lost compare-and-set race.
		count, err := s.sdb.NewSelect((*grantModel)(nil)).
			Where("id = ?", m.ID).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("steward: update grant: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("grant %s: %w", g.ID, grant.ErrNotFound)
		}
		return fmt.Errorf("grant %s: expected version %d: %w",
			g.ID, expectedVersion, grant.ErrVersionConflict)
	}

	if _, err := tx.NewInsert(em).Exec(ctx); err != nil {
		return fmt.Errorf("steward: update grant: audit entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("steward: update grant: commit: %w", err)
	}
	return nil
}

func (s *Store) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.Principal != "" {
			q = q.Where("principal = ?", filter.Principal)
		}
		if filter.ResourceOwner != "" {
			q = q.Where("resource_owner = ?", filter.ResourceOwner)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.ExpiringBefore != nil {
			q = q.Where("expires_at IS NOT NULL").
				Where("expires_at < ?", filter.ExpiringBefore.UTC())
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*grantModel)(nil))
	if filter != nil {
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.Principal != "" {
			q = q.Where("principal = ?", filter.Principal)
		}
		if filter.ResourceOwner != "" {
			q = q.Where("resource_owner = ?", filter.ResourceOwner)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.ExpiringBefore != nil {
			q = q.Where("expires_at IS NOT NULL").
				Where("expires_at < ?", filter.ExpiringBefore.UTC())
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count grants: %w", err)
	}
	return count, nil
}

func (s *Store) ListExpiring(ctx context.Context, before time.Time, limit int) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.sdb.NewSelect(&models).
		Where("status = ?", string(grant.StatusActive)).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", before.UTC()).
		OrderExpr("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
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
	res, err := s.sdb.NewUpdate((*grantModel)(nil)).
		Set("last_notified_threshold = ?", threshold).
		Set("last_notified_at = ?", at.UTC()).
		Set("updated_at = ?", at.UTC()).
		Set("version = version + 1").
		Where("id = ?", grantID.String()).
		Where("status = ?", string(grant.StatusActive)).
		Where("expires_at = ?", expiresAt.UTC()).
		Where("(last_notified_threshold = 0 OR last_notified_threshold > ?)", threshold).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("steward: mark notified: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("steward: mark notified: %w", err)
	}
	return rows > 0, nil
}

// ──────────────────────────────────────────────────
// Audit operations
// ──────────────────────────────────────────────────

func (s *Store) ListAuditTrail(ctx context.Context, grantID id.GrantID) ([]*audit.Entry, error) {
	var models []auditEntryModel
	err := s.sdb.NewSelect(&models).
		Where("grant_id = ?", grantID.String()).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("steward: list audit trail: %w", err)
	}
	return auditEntriesFromModels(models)
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditEntryModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if !filter.GrantID.IsNil() {
			q = q.Where("grant_id = ?", filter.GrantID.String())
		}
		if filter.Actor != "" {
			q = q.Where("actor = ?", filter.Actor)
		}
		if filter.Action != "" {
			q = q.Where("action = ?", string(filter.Action))
		}
		if filter.After != nil {
			q = q.Where("created_at >= ?", filter.After.UTC())
		}
		if filter.Before != nil {
			q = q.Where("created_at <= ?", filter.Before.UTC())
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("steward: list audit entries: %w", err)
	}
	return auditEntriesFromModels(models)
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*auditEntryModel)(nil))
	if filter != nil {
		if !filter.GrantID.IsNil() {
			q = q.Where("grant_id = ?", filter.GrantID.String())
		}
		if filter.Actor != "" {
			q = q.Where("actor = ?", filter.Actor)
		}
		if filter.Action != "" {
			q = q.Where("action = ?", string(filter.Action))
		}
		if filter.After != nil {
			q = q.Where("created_at >= ?", filter.After.UTC())
		}
		if filter.Before != nil {
			q = q.Where("created_at <= ?", filter.Before.UTC())
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: count audit entries: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*auditEntryModel)(nil)).
		Where("created_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("steward: purge audit entries: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("steward: purge audit entries: %w", err)
	}
	return rows, nil
}

func auditEntriesFromModels(models []auditEntryModel) ([]*audit.Entry, error) {
	result := make([]*audit.Entry, len(models))
	for i := range models {
		e, err := auditEntryFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("steward: decode audit entry: %w", err)
		}
		result[i] = e
	}
	return result, nil
}
