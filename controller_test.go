package steward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/store/memory"
)

// fakeClock is a settable clock for deterministic expiry math.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvisioner records calls and fails on demand.
type fakeProvisioner struct {
	mu        sync.Mutex
	grants    []string
	revokes   []string
	level     grant.Level
	grantErr  error
	revokeErr error
}

func (p *fakeProvisioner) Grant(_ context.Context, principal, owner, resID string, level grant.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grantErr != nil {
		return p.grantErr
	}
	p.grants = append(p.grants, principal+"/"+owner+"/"+resID)
	p.level = level
	return nil
}

func (p *fakeProvisioner) Revoke(_ context.Context, principal, owner, resID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revokeErr != nil {
		return p.revokeErr
	}
	p.revokes = append(p.revokes, principal+"/"+owner+"/"+resID)
	return nil
}

func (p *fakeProvisioner) grantCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.grants)
}

func (p *fakeProvisioner) revokeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.revokes)
}

// fakeNotifier records sends and fails on demand.
type fakeNotifier struct {
	mu      sync.Mutex
	sends   []sentNotice
	sendErr error
}

type sentNotice struct {
	recipient string
	template  string
	data      map[string]any
}

func (n *fakeNotifier) Send(_ context.Context, recipient, templateID string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		return n.sendErr
	}
	n.sends = append(n.sends, sentNotice{recipient: recipient, template: templateID, data: data})
	return nil
}

func (n *fakeNotifier) sent() []sentNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentNotice, len(n.sends))
	copy(out, n.sends)
	return out
}

func (n *fakeNotifier) setErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

type testRig struct {
	ctrl  *Controller
	store *memory.Store
	prov  *fakeProvisioner
	notif *fakeNotifier
	clock *fakeClock
}

func newTestController(t *testing.T, opts ...Option) *testRig {
	t.Helper()
	rig := &testRig{
		store: memory.New(),
		prov:  &fakeProvisioner{},
		notif: &fakeNotifier{},
		clock: newFakeClock(),
	}
	base := []Option{
		WithStore(rig.store),
		WithProvisioner(rig.prov),
		WithNotifier(rig.notif),
		WithClock(rig.clock),
	}
	ctrl, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	rig.ctrl = ctrl
	return rig
}

func viewerInput() RequestInput {
	return RequestInput{
		Principal:     "alice@example.com",
		ResourceOwner: "data-team",
		ResourceID:    "warehouse-main",
		Level:         grant.LevelViewer,
		RequestedBy:   "alice@example.com",
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(); err == nil {
		t.Fatal("expected error when store is nil")
	}
	if _, err := New(WithStore(memory.New())); err == nil {
		t.Fatal("expected error when provisioner is nil")
	}
	_, err := New(
		WithStore(memory.New()),
		WithProvisioner(&fakeProvisioner{}),
		WithConfig(Config{WarnThresholds: []int{7, 0}}),
	)
	if err == nil {
		t.Fatal("expected error for non-positive threshold")
	}
}

func TestRequestGrant_AutoApprove(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	g, err := rig.ctrl.RequestGrant(ctx, viewerInput())
	if err != nil {
		t.Fatal(err)
	}
	if g.Status != grant.StatusActive {
		t.Fatalf("expected active, got %s", g.Status)
	}
	if g.ExpiresAt == nil {
		t.Fatal("expected expiry on active grant")
	}
	wantExp := rig.clock.Now().Add(60 * 24 * time.Hour)
	if !g.ExpiresAt.Equal(wantExp) {
		t.Fatalf("expected expiry %v, got %v", wantExp, *g.ExpiresAt)
	}
	if rig.prov.grantCalls() != 1 {
		t.Fatalf("expected 1 provision call, got %d", rig.prov.grantCalls())
	}
	if rig.prov.level != grant.LevelViewer {
		t.Fatalf("provisioned at wrong level: %s", rig.prov.level)
	}

	trail, err := rig.ctrl.AuditTrail(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || trail[0].Action != audit.ActionCreate {
		t.Fatalf("expected single create entry, got %+v", trail)
	}
}

func TestRequestGrant_ApprovalRequired(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelEditor
	g, err := rig.ctrl.RequestGrant(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if g.Status != grant.StatusPendingApproval {
		t.Fatalf("expected pending_approval, got %s", g.Status)
	}
	if g.ExpiresAt != nil {
		t.Fatal("pending grant must not carry an expiry")
	}
	if rig.prov.grantCalls() != 0 {
		t.Fatal("pending request must not provision")
	}
}

func TestRequestGrant_Validation(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	cases := []RequestInput{
		{ResourceOwner: "o", ResourceID: "r", Level: grant.LevelViewer, RequestedBy: "x"},
		{Principal: "p", Level: grant.LevelViewer, RequestedBy: "x"},
		{Principal: "p", ResourceOwner: "o", ResourceID: "r", Level: "superuser", RequestedBy: "x"},
		{Principal: "p", ResourceOwner: "o", ResourceID: "r", Level: grant.LevelViewer},
	}
	for i, in := range cases {
		if _, err := rig.ctrl.RequestGrant(ctx, in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected ErrValidation, got %v", i, err)
		}
	}
}

func TestRequestGrant_NormalizesPrincipal(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Principal = "  Alice@Example.COM "
	g, err := rig.ctrl.RequestGrant(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if g.Principal != "alice@example.com" {
		t.Fatalf("expected normalized principal, got %q", g.Principal)
	}

	// The normalized form collides with the same pair spelled differently.
	in2 := viewerInput()
	in2.Principal = "ALICE@example.com"
	if _, err := rig.ctrl.RequestGrant(ctx, in2); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestRequestGrant_DuplicateOpen(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	if _, err := rig.ctrl.RequestGrant(ctx, viewerInput()); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.ctrl.RequestGrant(ctx, viewerInput()); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	// A different resource for the same principal is fine.
	other := viewerInput()
	other.ResourceID = "warehouse-staging"
	if _, err := rig.ctrl.RequestGrant(ctx, other); err != nil {
		t.Fatal(err)
	}
}

func TestRequestGrant_ProvisionFailureParksGrant(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)
	rig.prov.grantErr = errors.New("iam timeout")

	g, err := rig.ctrl.RequestGrant(ctx, viewerInput())
	if !errors.Is(err, ErrProvisioning) {
		t.Fatalf("expected ErrProvisioning, got %v", err)
	}
	if g == nil {
		t.Fatal("grant must still be recorded on provisioning failure")
	}
	if g.Status != grant.StatusPendingApproval || !g.ProvisionPending {
		t.Fatalf("expected parked pending grant, got status=%s pending=%v", g.Status, g.ProvisionPending)
	}

	// Retry through approval once the dependency recovers.
	rig.prov.grantErr = nil
	approved, err := rig.ctrl.ApproveGrant(ctx, g.ID, "ops@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != grant.StatusActive || approved.ProvisionPending {
		t.Fatalf("expected active grant after retry, got %+v", approved)
	}
}

func TestApproveGrant(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelEditor
	g, err := rig.ctrl.RequestGrant(ctx, in)
	if err != nil {
		t.Fatal(err)
	}

	rig.clock.Advance(2 * time.Hour)
	approved, err := rig.ctrl.ApproveGrant(ctx, g.ID, "manager@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	if approved.Status != grant.StatusActive {
		t.Fatalf("expected active, got %s", approved.Status)
	}
	if approved.ApprovedBy != "manager@example.com" {
		t.Fatalf("approved_by not recorded: %q", approved.ApprovedBy)
	}
	// Expiry runs from approval time, not request time.
	wantExp := rig.clock.Now().Add(7 * 24 * time.Hour)
	if approved.ExpiresAt == nil || !approved.ExpiresAt.Equal(wantExp) {
		t.Fatalf("expected expiry %v, got %v", wantExp, approved.ExpiresAt)
	}
	if rig.prov.grantCalls() != 1 {
		t.Fatalf("expected 1 provision call, got %d", rig.prov.grantCalls())
	}

	// Approving twice is an invalid transition.
	if _, err := rig.ctrl.ApproveGrant(ctx, g.ID, "manager@example.com", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApproveGrant_OverrideExpiry(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelEditor
	g, _ := rig.ctrl.RequestGrant(ctx, in)

	past := rig.clock.Now().Add(-time.Hour)
	if _, err := rig.ctrl.ApproveGrant(ctx, g.ID, "mgr", &past); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for past override, got %v", err)
	}

	future := rig.clock.Now().Add(48 * time.Hour)
	approved, err := rig.ctrl.ApproveGrant(ctx, g.ID, "mgr", &future)
	if err != nil {
		t.Fatal(err)
	}
	if !approved.ExpiresAt.Equal(future) {
		t.Fatalf("override expiry not honored: %v", approved.ExpiresAt)
	}
}

func TestApproveGrant_ProvisionFailureKeepsPending(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelEditor
	g, _ := rig.ctrl.RequestGrant(ctx, in)

	rig.prov.grantErr = errors.New("downstream 503")
	if _, err := rig.ctrl.ApproveGrant(ctx, g.ID, "mgr", nil); !errors.Is(err, ErrProvisioning) {
		t.Fatalf("expected ErrProvisioning, got %v", err)
	}

	got, _ := rig.ctrl.GetGrant(ctx, g.ID)
	if got.Status != grant.StatusPendingApproval {
		t.Fatalf("grant must stay pending on provisioning failure, got %s", got.Status)
	}
	// No approve entry was written.
	trail, _ := rig.ctrl.AuditTrail(ctx, g.ID)
	if len(trail) != 1 {
		t.Fatalf("expected only the create entry, got %d", len(trail))
	}
}

func TestRejectGrant(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelAdministrator
	g, _ := rig.ctrl.RequestGrant(ctx, in)

	if _, err := rig.ctrl.RejectGrant(ctx, g.ID, "mgr", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing reason, got %v", err)
	}

	rejected, err := rig.ctrl.RejectGrant(ctx, g.ID, "mgr", "least privilege: viewer suffices")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != grant.StatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if rejected.RejectionReason == "" {
		t.Fatal("rejection reason not recorded")
	}
	if rig.prov.grantCalls() != 0 {
		t.Fatal("reject must not provision")
	}

	// The rejection frees the uniqueness slot.
	if _, err := rig.ctrl.RequestGrant(ctx, in); err != nil {
		t.Fatalf("expected a fresh request to succeed after rejection: %v", err)
	}
}

func TestRenewGrant(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	g, _ := rig.ctrl.RequestGrant(ctx, viewerInput())

	if _, err := rig.ctrl.RenewGrant(ctx, g.ID, rig.clock.Now().Add(-time.Hour)); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for past expiry, got %v", err)
	}

	newExp := rig.clock.Now().Add(90 * 24 * time.Hour)
	renewed, err := rig.ctrl.RenewGrant(ctx, g.ID, newExp)
	if err != nil {
		t.Fatal(err)
	}
	if !renewed.ExpiresAt.Equal(newExp) {
		t.Fatalf("expiry not moved: %v", renewed.ExpiresAt)
	}
	if renewed.LastNotifiedThreshold != 0 || renewed.LastNotifiedAt != nil {
		t.Fatal("renewal must reset the notification ledger")
	}
	// Renewal does not call the provisioner; access is unchanged.
	if rig.prov.grantCalls() != 1 {
		t.Fatalf("expected no extra provision calls, got %d", rig.prov.grantCalls())
	}
}

func TestRenewGrant_RequiresActive(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelEditor
	g, _ := rig.ctrl.RequestGrant(ctx, in)

	_, err := rig.ctrl.RenewGrant(ctx, g.ID, rig.clock.Now().Add(24*time.Hour))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpgradeGrant(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	g, _ := rig.ctrl.RequestGrant(ctx, viewerInput())

	upgraded, err := rig.ctrl.UpgradeGrant(ctx, g.ID, grant.LevelAnalyst)
	if err != nil {
		t.Fatal(err)
	}
	if upgraded.Level != grant.LevelAnalyst {
		t.Fatalf("expected analyst, got %s", upgraded.Level)
	}
	// The new level's policy duration applies from now.
	wantExp := rig.clock.Now().Add(30 * 24 * time.Hour)
	if !upgraded.ExpiresAt.Equal(wantExp) {
		t.Fatalf("expected expiry %v, got %v", wantExp, upgraded.ExpiresAt)
	}
	if upgraded.LastNotifiedThreshold != 0 {
		t.Fatal("upgrade must reset the notification ledger")
	}
	if rig.prov.grantCalls() != 2 || rig.prov.level != grant.LevelAnalyst {
		t.Fatalf("expected re-provision at analyst, calls=%d level=%s", rig.prov.grantCalls(), rig.prov.level)
	}
}

func TestUpgradeGrant_ApprovalGate(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	g, _ := rig.ctrl.RequestGrant(ctx, viewerInput())

	if _, err := rig.ctrl.UpgradeGrant(ctx, g.ID, grant.LevelEditor); !errors.Is(err, ErrApprovalRequired) {
		t.Fatalf("expected ErrApprovalRequired, got %v", err)
	}
	if _, err := rig.ctrl.UpgradeGrant(ctx, g.ID, grant.LevelViewer); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for same level, got %v", err)
	}

	// The grant is untouched by refused upgrades.
	got, _ := rig.ctrl.GetGrant(ctx, g.ID)
	if got.Level != grant.LevelViewer || got.Version != g.Version {
		t.Fatalf("refused upgrade mutated the grant: %+v", got)
	}
}

func TestRevokeGrant(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	g, _ := rig.ctrl.RequestGrant(ctx, viewerInput())

	revoked, err := rig.ctrl.RevokeGrant(ctx, g.ID, "secops@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if revoked.Status != grant.StatusRevoked {
		t.Fatalf("expected revoked, got %s", revoked.Status)
	}
	if revoked.ExpiresAt != nil {
		t.Fatal("revoked grant must not carry an expiry")
	}
	if rig.prov.revokeCalls() != 1 {
		t.Fatalf("expected 1 revoke call, got %d", rig.prov.revokeCalls())
	}

	// Terminal states admit no further transitions.
	if _, err := rig.ctrl.RevokeGrant(ctx, g.ID, "secops@example.com"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRevokeGrant_PendingSkipsDeprovision(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelEditor
	g, _ := rig.ctrl.RequestGrant(ctx, in)

	revoked, err := rig.ctrl.RevokeGrant(ctx, g.ID, "mgr")
	if err != nil {
		t.Fatal(err)
	}
	if revoked.Status != grant.StatusRevoked {
		t.Fatalf("expected revoked, got %s", revoked.Status)
	}
	if rig.prov.revokeCalls() != 0 {
		t.Fatal("pending grant was never provisioned; revoke must not call out")
	}
}

func TestExpireGrant(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	g, _ := rig.ctrl.RequestGrant(ctx, viewerInput())

	// Not yet past expiry.
	if _, err := rig.ctrl.ExpireGrant(ctx, g.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before expiry, got %v", err)
	}

	rig.clock.Advance(61 * 24 * time.Hour)
	expired, err := rig.ctrl.ExpireGrant(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if expired.Status != grant.StatusExpired {
		t.Fatalf("expected expired, got %s", expired.Status)
	}
	// The historical expiry stays on the record.
	if expired.ExpiresAt == nil {
		t.Fatal("expired grant keeps its expiry timestamp")
	}
	if rig.prov.revokeCalls() != 1 {
		t.Fatalf("expected deprovision before expiry, got %d calls", rig.prov.revokeCalls())
	}
}

func TestExpireGrant_DeprovisionFailureKeepsActive(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	g, _ := rig.ctrl.RequestGrant(ctx, viewerInput())
	rig.clock.Advance(61 * 24 * time.Hour)

	rig.prov.revokeErr = errors.New("iam unavailable")
	if _, err := rig.ctrl.ExpireGrant(ctx, g.ID); !errors.Is(err, ErrProvisioning) {
		t.Fatalf("expected ErrProvisioning, got %v", err)
	}

	got, _ := rig.ctrl.GetGrant(ctx, g.ID)
	if got.Status != grant.StatusActive {
		t.Fatalf("grant must stay active until deprovisioned, got %s", got.Status)
	}
}

func TestAuditTrail_FullJourney(t *testing.T) {
	ctx := context.Background()
	rig := newTestController(t)

	in := viewerInput()
	in.Level = grant.LevelEditor
	g, _ := rig.ctrl.RequestGrant(ctx, in)
	if _, err := rig.ctrl.ApproveGrant(ctx, g.ID, "mgr", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.ctrl.RenewGrant(ctx, g.ID, rig.clock.Now().Add(14*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := rig.ctrl.RevokeGrant(ctx, g.ID, "secops"); err != nil {
		t.Fatal(err)
	}

	trail, err := rig.ctrl.AuditTrail(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []audit.Action{audit.ActionCreate, audit.ActionApprove, audit.ActionRenew, audit.ActionRevoke}
	if len(trail) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(trail))
	}
	for i, a := range want {
		if trail[i].Action != a {
			t.Fatalf("entry %d: expected %s, got %s", i, a, trail[i].Action)
		}
	}
}
