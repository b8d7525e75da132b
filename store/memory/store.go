// Package memory provides an in-memory implementation of the Steward
// composite store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
)

// Compile-time interface checks.
var (
	_ grant.Store = (*Store)(nil)
	_ audit.Store = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Steward entities.
// All operations run under a single mutex, which makes every grant write
// (including the duplicate-open-grant check and the compare-and-set update)
// atomic without further machinery.
type Store struct {
	mu sync.RWMutex

	grants  map[string]*grant.Grant
	entries []*audit.Entry // append-only, insertion-ordered
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		grants: make(map[string]*grant.Grant),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Grant store
// ──────────────────────────────────────────────────

func (s *Store) CreateGrant(_ context.Context, g *grant.Grant, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.grants {
		if existing.Status.Open() &&
			existing.Principal == g.Principal &&
			existing.ResourceOwner == g.ResourceOwner &&
			existing.ResourceID == g.ResourceID {
			return fmt.Errorf("grant for %s on %s/%s: %w",
				g.Principal, g.ResourceOwner, g.ResourceID, grant.ErrDuplicateActiveGrant)
		}
	}

	g.Version = 1
	s.grants[g.ID.String()] = copyGrant(g)
	s.entries = append(s.entries, copyEntry(entry))
	return nil
}

func (s *Store) GetGrant(_ context.Context, grantID id.GrantID) (*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID.String()]
	if !ok {
		return nil, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
	}
	return copyGrant(g), nil
}

func (s *Store) UpdateGrant(_ context.Context, g *grant.Grant, expectedVersion int64, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.grants[g.ID.String()]
	if !ok {
		return fmt.Errorf("grant %s: %w", g.ID, grant.ErrNotFound)
	}
	if existing.Version != expectedVersion {
		return fmt.Errorf("grant %s: expected version %d, have %d: %w",
			g.ID, expectedVersion, existing.Version, grant.ErrVersionConflict)
	}

	g.Version = expectedVersion + 1
	s.grants[g.ID.String()] = copyGrant(g)
	s.entries = append(s.entries, copyEntry(entry))
	return nil
}

func (s *Store) ListGrants(_ context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*grant.Grant, 0, len(s.grants))
	for _, g := range s.grants {
		if filter != nil {
			if filter.Status != "" && g.Status != filter.Status {
				continue
			}
			if filter.Principal != "" && g.Principal != filter.Principal {
				continue
			}
			if filter.ResourceOwner != "" && g.ResourceOwner != filter.ResourceOwner {
				continue
			}
			if filter.ResourceID != "" && g.ResourceID != filter.ResourceID {
				continue
			}
			if filter.ExpiringBefore != nil {
				if g.ExpiresAt == nil || !g.ExpiresAt.Before(*filter.ExpiringBefore) {
					continue
				}
			}
		}
		result = append(result, copyGrant(g))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, paginationOpts(filter)), nil
}

func (s *Store) CountGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	var unpaged *grant.ListFilter
	if filter != nil {
		f := *filter
		f.Limit = 0
		f.Offset = 0
		unpaged = &f
	}
	list, err := s.ListGrants(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) ListExpiring(_ context.Context, before time.Time, limit int) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*grant.Grant, 0)
	for _, g := range s.grants {
		if g.Status != grant.StatusActive || g.ExpiresAt == nil {
			continue
		}
		if g.ExpiresAt.Before(before) {
			result = append(result, copyGrant(g))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})

	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkNotified(_ context.Context, grantID id.GrantID, threshold int, at, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[grantID.String()]
	if !ok {
		return false, fmt.Errorf("grant %s: %w", grantID, grant.ErrNotFound)
	}

	// The ledger write applies only while the expiry cycle it describes is
	// still current and the recorded threshold is less urgent.
	if g.Status != grant.StatusActive || g.ExpiresAt == nil || !g.ExpiresAt.Equal(expiresAt) {
		return false, nil
	}
	if g.LastNotifiedThreshold != 0 && g.LastNotifiedThreshold <= threshold {
		return false, nil
	}

	g.LastNotifiedThreshold = threshold
	notifiedAt := at
	g.LastNotifiedAt = &notifiedAt
	g.UpdatedAt = at
	g.Version++
	return true, nil
}

// ──────────────────────────────────────────────────
// Audit store
// ──────────────────────────────────────────────────

func (s *Store) ListAuditTrail(ctx context.Context, grantID id.GrantID) ([]*audit.Entry, error) {
	return s.ListAuditEntries(ctx, &audit.QueryFilter{GrantID: grantID})
}

func (s *Store) ListAuditEntries(_ context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Entry, 0)
	for _, e := range s.entries {
		if filter != nil {
			if !filter.GrantID.IsNil() && e.GrantID != filter.GrantID {
				continue
			}
			if filter.Actor != "" && e.Actor != filter.Actor {
				continue
			}
			if filter.Action != "" && e.Action != filter.Action {
				continue
			}
			if filter.After != nil && !e.CreatedAt.After(*filter.After) {
				continue
			}
			if filter.Before != nil && !e.CreatedAt.Before(*filter.Before) {
				continue
			}
		}
		result = append(result, copyEntry(e))
	}

	if filter != nil {
		result = applyPagination(result, pagOpts{limit: filter.Limit, offset: filter.Offset})
	}
	return result, nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	var unpaged *audit.QueryFilter
	if filter != nil {
		f := *filter
		f.Limit = 0
		f.Offset = 0
		unpaged = &f
	}
	list, err := s.ListAuditEntries(ctx, unpaged)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) PurgeAuditEntries(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var purged int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return purged, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

type pagOpts struct {
	limit  int
	offset int
}

func paginationOpts(filter *grant.ListFilter) pagOpts {
	if filter == nil {
		return pagOpts{}
	}
	return pagOpts{limit: filter.Limit, offset: filter.Offset}
}

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset >= len(items) && p.offset > 0 {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}

func copyGrant(g *grant.Grant) *grant.Grant {
	out := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		out.ExpiresAt = &t
	}
	if g.LastNotifiedAt != nil {
		t := *g.LastNotifiedAt
		out.LastNotifiedAt = &t
	}
	return &out
}

func copyEntry(e *audit.Entry) *audit.Entry {
	out := *e
	if e.Details != nil {
		out.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			out.Details[k] = v
		}
	}
	return &out
}
