package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/store"
)

// Compile-time check that *Store implements store.Store.
var _ store.Store = (*Store)(nil)

func newGrant(status grant.Status, expiresAt *time.Time) *grant.Grant {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &grant.Grant{
		ID:            id.NewGrantID(),
		Principal:     "alice@example.com",
		ResourceOwner: "acct-1",
		ResourceID:    "prop-42",
		Level:         grant.LevelViewer,
		Status:        status,
		ExpiresAt:     expiresAt,
		RequestedBy:   "alice@example.com",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func createEntry(g *grant.Grant) *audit.Entry {
	return &audit.Entry{
		ID:        id.NewAuditID(),
		GrantID:   g.ID,
		Actor:     g.RequestedBy,
		Action:    audit.ActionCreate,
		CreatedAt: g.CreatedAt,
	}
}

func TestGrantCreateGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := newGrant(grant.StatusPendingApproval, nil)
	if err := s.CreateGrant(ctx, g, createEntry(g)); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetGrant(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Principal != "alice@example.com" {
		t.Fatalf("expected alice, got %s", got.Principal)
	}
	if got.Version != 1 {
		t.Fatalf("expected version 1, got %d", got.Version)
	}

	// Creation writes exactly one audit entry.
	trail, err := s.ListAuditTrail(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || trail[0].Action != audit.ActionCreate {
		t.Fatalf("expected one create entry, got %d", len(trail))
	}
}

func TestGrantGet_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetGrant(context.Background(), id.NewGrantID())
	if !errors.Is(err, grant.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateGrant_DuplicateOpen(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := newGrant(grant.StatusPendingApproval, nil)
	if err := s.CreateGrant(ctx, first, createEntry(first)); err != nil {
		t.Fatal(err)
	}

	second := newGrant(grant.StatusActive, nil)
	err := s.CreateGrant(ctx, second, createEntry(second))
	if !errors.Is(err, grant.ErrDuplicateActiveGrant) {
		t.Fatalf("expected ErrDuplicateActiveGrant, got %v", err)
	}

	// A terminal grant frees the slot.
	first.Status = grant.StatusRejected
	if err := s.UpdateGrant(ctx, first, 1, &audit.Entry{
		ID: id.NewAuditID(), GrantID: first.ID, Actor: "admin", Action: audit.ActionReject,
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateGrant(ctx, second, createEntry(second)); err != nil {
		t.Fatalf("expected create to succeed after rejection, got %v", err)
	}
}

func TestUpdateGrant_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := newGrant(grant.StatusPendingApproval, nil)
	if err := s.CreateGrant(ctx, g, createEntry(g)); err != nil {
		t.Fatal(err)
	}

	g.Status = grant.StatusRejected
	entry := &audit.Entry{ID: id.NewAuditID(), GrantID: g.ID, Actor: "admin", Action: audit.ActionReject}
	if err := s.UpdateGrant(ctx, g, 1, entry); err != nil {
		t.Fatal(err)
	}

	// A second writer holding the stale version loses.
	stale := &audit.Entry{ID: id.NewAuditID(), GrantID: g.ID, Actor: "admin", Action: audit.ActionRevoke}
	err := s.UpdateGrant(ctx, g, 1, stale)
	if !errors.Is(err, grant.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	// The losing writer's audit entry must not appear.
	trail, _ := s.ListAuditTrail(ctx, g.ID)
	if len(trail) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(trail))
	}
}

func TestListExpiring(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	soon := now.Add(24 * time.Hour)
	later := now.Add(20 * 24 * time.Hour)
	far := now.Add(90 * 24 * time.Hour)

	mk := func(principal string, exp time.Time) {
		g := newGrant(grant.StatusActive, &exp)
		g.Principal = principal
		g.ResourceID = "prop-" + principal
		if err := s.CreateGrant(ctx, g, createEntry(g)); err != nil {
			t.Fatal(err)
		}
	}
	mk("b@example.com", later)
	mk("a@example.com", soon)
	mk("c@example.com", far)

	got, err := s.ListExpiring(ctx, now.Add(30*24*time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 expiring grants, got %d", len(got))
	}
	if got[0].Principal != "a@example.com" {
		t.Fatalf("expected soonest first, got %s", got[0].Principal)
	}
}

func TestMarkNotified(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(6 * 24 * time.Hour)

	g := newGrant(grant.StatusActive, &exp)
	if err := s.CreateGrant(ctx, g, createEntry(g)); err != nil {
		t.Fatal(err)
	}

	ok, err := s.MarkNotified(ctx, g.ID, 7, now, exp)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected first mark to apply")
	}

	// Same threshold again: already recorded, skipped.
	ok, _ = s.MarkNotified(ctx, g.ID, 7, now, exp)
	if ok {
		t.Fatal("expected repeat mark to be skipped")
	}

	// Less urgent threshold after a more urgent one: never re-sent.
	ok, _ = s.MarkNotified(ctx, g.ID, 30, now, exp)
	if ok {
		t.Fatal("expected less urgent mark to be skipped")
	}

	// More urgent threshold still applies.
	ok, _ = s.MarkNotified(ctx, g.ID, 1, now, exp)
	if !ok {
		t.Fatal("expected more urgent mark to apply")
	}

	got, _ := s.GetGrant(ctx, g.ID)
	if got.LastNotifiedThreshold != 1 {
		t.Fatalf("expected threshold 1, got %d", got.LastNotifiedThreshold)
	}
}

func TestMarkNotified_StaleExpiry(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(6 * 24 * time.Hour)

	g := newGrant(grant.StatusActive, &exp)
	if err := s.CreateGrant(ctx, g, createEntry(g)); err != nil {
		t.Fatal(err)
	}

	// A renewal moved the expiry; the sweep's snapshot is stale.
	staleExp := exp.Add(-24 * time.Hour)
	ok, err := s.MarkNotified(ctx, g.ID, 7, now, staleExp)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected stale mark to be skipped")
	}
}

func TestListGrants_Filter(t *testing.T) {
	ctx := context.Background()
	s := New()

	active := newGrant(grant.StatusActive, nil)
	exp := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	active.ExpiresAt = &exp
	if err := s.CreateGrant(ctx, active, createEntry(active)); err != nil {
		t.Fatal(err)
	}

	other := newGrant(grant.StatusPendingApproval, nil)
	other.Principal = "bob@example.com"
	other.ResourceID = "prop-7"
	if err := s.CreateGrant(ctx, other, createEntry(other)); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListGrants(ctx, &grant.ListFilter{Status: grant.StatusActive})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Fatalf("status filter mismatch: %d results", len(got))
	}

	got, _ = s.ListGrants(ctx, &grant.ListFilter{Principal: "bob@example.com"})
	if len(got) != 1 || got[0].ID != other.ID {
		t.Fatalf("principal filter mismatch: %d results", len(got))
	}

	n, err := s.CountGrants(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected count 2, got %d", n)
	}
}

func TestPurgeAuditEntries(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := newGrant(grant.StatusPendingApproval, nil)
	if err := s.CreateGrant(ctx, g, createEntry(g)); err != nil {
		t.Fatal(err)
	}

	purged, err := s.PurgeAuditEntries(ctx, g.CreatedAt.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}

	trail, _ := s.ListAuditTrail(ctx, g.ID)
	if len(trail) != 0 {
		t.Fatalf("expected empty trail after purge, got %d", len(trail))
	}
}
