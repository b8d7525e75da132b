package steward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
	"github.com/xraph/steward/plugin"
	"github.com/xraph/steward/policy"
	"github.com/xraph/steward/store"
)

// Controller is the grant lifecycle state machine. It validates requests,
// applies policy, drives provisioning, and performs all mutating
// transitions. Per-grant transitions are linearizable: every update is a
// compare-and-set against the version read at the start of the operation,
// so concurrent transitions on the same grant resolve deterministically.
type Controller struct {
	store       store.Store
	provisioner Provisioner
	notifier    Notifier
	policies    *policy.Table
	plugins     *plugin.Registry
	logger      *slog.Logger
	clock       Clock
	config      Config
}

// New creates a new lifecycle controller with the given options.
func New(opts ...Option) (*Controller, error) {
	c := &Controller{
		policies: policy.DefaultTable(),
		logger:   slog.Default(),
		clock:    realClock{},
		config:   DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		return nil, errors.New("steward: store is required")
	}
	if c.provisioner == nil {
		return nil, errors.New("steward: provisioner is required")
	}
	for _, t := range c.config.WarnThresholds {
		if t <= 0 {
			return nil, fmt.Errorf("steward: warn threshold must be positive, got %d", t)
		}
	}
	return c, nil
}

// Store returns the underlying composite store.
func (c *Controller) Store() store.Store { return c.store }

// Plugins returns the plugin registry (may be nil).
func (c *Controller) Plugins() *plugin.Registry { return c.plugins }

// Policies returns the policy table.
func (c *Controller) Policies() *policy.Table { return c.policies }

// Start performs any startup initialization.
func (c *Controller) Start(_ context.Context) error { return nil }

// Stop performs graceful shutdown and notifies shutdown hooks.
func (c *Controller) Stop(ctx context.Context) error {
	if c.plugins != nil {
		c.plugins.EmitShutdown(ctx)
	}
	return nil
}

// RequestGrant creates a grant for the given principal/resource/level.
//
// Auto-approved levels are provisioned synchronously and become active with
// the policy duration. If the provisioning call fails, the grant is still
// created as pending_approval with ProvisionPending set, and the returned
// error matches ErrProvisioning so the caller can retry via ApproveGrant.
// An open grant already covering the pair returns ErrDuplicateRequest.
func (c *Controller) RequestGrant(ctx context.Context, in RequestInput) (*grant.Grant, error) {
	principal := grant.NormalizePrincipal(in.Principal)
	switch {
	case principal == "":
		return nil, fmt.Errorf("%w: principal is required", ErrValidation)
	case in.ResourceOwner == "" || in.ResourceID == "":
		return nil, fmt.Errorf("%w: resource owner and id are required", ErrValidation)
	case !in.Level.Valid():
		return nil, fmt.Errorf("%w: unknown level %q", ErrValidation, in.Level)
	case in.RequestedBy == "":
		return nil, fmt.Errorf("%w: requested_by is required", ErrValidation)
	}

	rule, err := c.policies.Decide(in.Level)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	g := &grant.Grant{
		ID:            id.NewGrantID(),
		Principal:     principal,
		ResourceOwner: in.ResourceOwner,
		ResourceID:    in.ResourceID,
		Level:         in.Level,
		Status:        grant.StatusPendingApproval,
		RequestedBy:   in.RequestedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var provErr error
	if !rule.RequiresApproval {
		provErr = c.provision(ctx, g, in.Level)
		if provErr == nil {
			exp := now.Add(rule.Duration())
			g.Status = grant.StatusActive
			g.ExpiresAt = &exp
		} else {
			// Provisioning may not have partially succeeded; park the grant
			// so an idempotent retry goes through ApproveGrant.
			g.ProvisionPending = true
		}
	}

	entry := c.newEntry(g.ID, in.RequestedBy, audit.ActionCreate, now, map[string]any{
		"level":             string(g.Level),
		"status":            string(g.Status),
		"requires_approval": rule.RequiresApproval,
	})
	if g.ExpiresAt != nil {
		entry.Details["expires_at"] = g.ExpiresAt.Format(time.RFC3339)
	}

	if err := c.store.CreateGrant(ctx, g, entry); err != nil {
		if errors.Is(err, grant.ErrDuplicateActiveGrant) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateRequest, err)
		}
		return nil, fmt.Errorf("steward: create grant: %w", err)
	}

	c.logger.Info("grant requested",
		"grant_id", g.ID.String(),
		"principal", g.Principal,
		"level", string(g.Level),
		"status", string(g.Status),
	)
	c.emitTransition(ctx, g, audit.ActionCreate)

	if provErr != nil {
		return g, provErr
	}
	return g, nil
}

// ApproveGrant activates a pending grant. The provisioning call happens
// first; the transition does not occur if it fails, and the error is
// returned to the caller for retry. Expiry is the override if given,
// otherwise the policy duration from approval time.
func (c *Controller) ApproveGrant(ctx context.Context, grantID id.GrantID, approvedBy string, overrideExpiry *time.Time) (*grant.Grant, error) {
	if approvedBy == "" {
		return nil, fmt.Errorf("%w: approved_by is required", ErrValidation)
	}

	g, err := c.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.Status != grant.StatusPendingApproval {
		return nil, fmt.Errorf("%w: approve requires pending_approval, grant is %s", ErrInvalidTransition, g.Status)
	}

	rule, err := c.policies.Decide(g.Level)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	exp := now.Add(rule.Duration())
	if overrideExpiry != nil {
		if !overrideExpiry.After(now) {
			return nil, fmt.Errorf("%w: override expiry must be in the future", ErrValidation)
		}
		exp = *overrideExpiry
	}

	if err := c.provision(ctx, g, g.Level); err != nil {
		return nil, err
	}

	updated := *g
	updated.Status = grant.StatusActive
	updated.ApprovedBy = approvedBy
	updated.ProvisionPending = false
	updated.ExpiresAt = &exp
	updated.UpdatedAt = now

	entry := c.newEntry(g.ID, approvedBy, audit.ActionApprove, now, map[string]any{
		"level":      string(g.Level),
		"expires_at": exp.Format(time.RFC3339),
	})

	if err := c.commit(ctx, &updated, g.Version, entry); err != nil {
		return nil, err
	}

	c.logger.Info("grant approved",
		"grant_id", g.ID.String(),
		"approved_by", approvedBy,
		"expires_at", exp,
	)
	c.emitTransition(ctx, &updated, audit.ActionApprove)
	return &updated, nil
}

// RejectGrant denies a pending grant. No provisioning call is made.
func (c *Controller) RejectGrant(ctx context.Context, grantID id.GrantID, approvedBy, reason string) (*grant.Grant, error) {
	if approvedBy == "" {
		return nil, fmt.Errorf("%w: approved_by is required", ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	g, err := c.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.Status != grant.StatusPendingApproval {
		return nil, fmt.Errorf("%w: reject requires pending_approval, grant is %s", ErrInvalidTransition, g.Status)
	}

	now := c.clock.Now()
	updated := *g
	updated.Status = grant.StatusRejected
	updated.ApprovedBy = approvedBy
	updated.RejectionReason = reason
	updated.UpdatedAt = now

	entry := c.newEntry(g.ID, approvedBy, audit.ActionReject, now, map[string]any{
		"reason": reason,
	})

	if err := c.commit(ctx, &updated, g.Version, entry); err != nil {
		return nil, err
	}

	c.logger.Info("grant rejected", "grant_id", g.ID.String(), "reason", reason)
	c.emitTransition(ctx, &updated, audit.ActionReject)
	return &updated, nil
}

// RenewGrant moves an active grant's expiry and resets the notification
// ledger so the warning thresholds can fire again for the new cycle.
// Access itself is unchanged; no re-provisioning call is made.
func (c *Controller) RenewGrant(ctx context.Context, grantID id.GrantID, newExpiresAt time.Time) (*grant.Grant, error) {
	g, err := c.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.Status != grant.StatusActive {
		return nil, fmt.Errorf("%w: renew requires active, grant is %s", ErrInvalidTransition, g.Status)
	}

	now := c.clock.Now()
	if !newExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: new expiry must be in the future", ErrValidation)
	}

	updated := *g
	updated.ExpiresAt = &newExpiresAt
	updated.LastNotifiedThreshold = 0
	updated.LastNotifiedAt = nil
	updated.UpdatedAt = now

	entry := c.newEntry(g.ID, g.Principal, audit.ActionRenew, now, map[string]any{
		"old_expires_at": g.ExpiresAt.Format(time.RFC3339),
		"new_expires_at": newExpiresAt.Format(time.RFC3339),
	})

	if err := c.commit(ctx, &updated, g.Version, entry); err != nil {
		return nil, err
	}

	c.logger.Info("grant renewed", "grant_id", g.ID.String(), "expires_at", newExpiresAt)
	c.emitTransition(ctx, &updated, audit.ActionRenew)
	return &updated, nil
}

// UpgradeGrant changes an active grant's level in place via an idempotent
// re-grant, re-applying the new level's policy duration from now. If the
// target level's policy requires approval, the upgrade is refused with
// ErrApprovalRequired: changing level must never silently bypass the
// approval gate, so callers submit a new request instead.
func (c *Controller) UpgradeGrant(ctx context.Context, grantID id.GrantID, newLevel grant.Level) (*grant.Grant, error) {
	if !newLevel.Valid() {
		return nil, fmt.Errorf("%w: unknown level %q", ErrValidation, newLevel)
	}

	g, err := c.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.Status != grant.StatusActive {
		return nil, fmt.Errorf("%w: upgrade requires active, grant is %s", ErrInvalidTransition, g.Status)
	}
	if newLevel == g.Level {
		return nil, fmt.Errorf("%w: grant already at level %q", ErrValidation, newLevel)
	}

	rule, err := c.policies.Decide(newLevel)
	if err != nil {
		return nil, err
	}
	if rule.RequiresApproval {
		return nil, fmt.Errorf("%w: level %q", ErrApprovalRequired, newLevel)
	}

	if err := c.provision(ctx, g, newLevel); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	exp := now.Add(rule.Duration())
	updated := *g
	updated.Level = newLevel
	updated.ExpiresAt = &exp
	updated.LastNotifiedThreshold = 0
	updated.LastNotifiedAt = nil
	updated.UpdatedAt = now

	entry := c.newEntry(g.ID, g.Principal, audit.ActionUpgrade, now, map[string]any{
		"from_level": string(g.Level),
		"to_level":   string(newLevel),
		"expires_at": exp.Format(time.RFC3339),
	})

	if err := c.commit(ctx, &updated, g.Version, entry); err != nil {
		return nil, err
	}

	c.logger.Info("grant upgraded",
		"grant_id", g.ID.String(),
		"from", string(g.Level),
		"to", string(newLevel),
	)
	c.emitTransition(ctx, &updated, audit.ActionUpgrade)
	return &updated, nil
}

// RevokeGrant withdraws an active or pending grant. The external revoke
// call is made only if the grant was active; a pending grant never had
// access provisioned.
func (c *Controller) RevokeGrant(ctx context.Context, grantID id.GrantID, actor string) (*grant.Grant, error) {
	if actor == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrValidation)
	}

	g, err := c.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if !g.Status.Open() {
		return nil, fmt.Errorf("%w: revoke requires active or pending_approval, grant is %s", ErrInvalidTransition, g.Status)
	}

	if g.Status == grant.StatusActive {
		if err := c.deprovision(ctx, g); err != nil {
			return nil, err
		}
	}

	now := c.clock.Now()
	updated := *g
	updated.Status = grant.StatusRevoked
	updated.ExpiresAt = nil
	updated.UpdatedAt = now

	entry := c.newEntry(g.ID, actor, audit.ActionRevoke, now, map[string]any{
		"previous_status": string(g.Status),
	})

	if err := c.commit(ctx, &updated, g.Version, entry); err != nil {
		return nil, err
	}

	c.logger.Info("grant revoked", "grant_id", g.ID.String(), "actor", actor)
	c.emitTransition(ctx, &updated, audit.ActionRevoke)
	return &updated, nil
}

// ExpireGrant finalizes an active grant whose expiry has passed. This is a
// system-only transition: the external revoke must succeed first, so a
// grant is never marked expired while access may still be provisioned. On
// provisioner failure the grant stays active and the next sweep retries.
func (c *Controller) ExpireGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	g, err := c.store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	if g.Status != grant.StatusActive || g.ExpiresAt == nil || g.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%w: expire requires an active grant past its expiry", ErrInvalidTransition)
	}

	if err := c.deprovision(ctx, g); err != nil {
		return nil, err
	}

	updated := *g
	updated.Status = grant.StatusExpired
	updated.UpdatedAt = now

	entry := c.newEntry(g.ID, audit.SystemActor, audit.ActionExpire, now, map[string]any{
		"expired_at": g.ExpiresAt.Format(time.RFC3339),
	})

	if err := c.commit(ctx, &updated, g.Version, entry); err != nil {
		return nil, err
	}

	c.logger.Info("grant expired", "grant_id", g.ID.String())
	c.emitTransition(ctx, &updated, audit.ActionExpire)
	return &updated, nil
}

// GetGrant retrieves a grant by ID.
func (c *Controller) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	return c.store.GetGrant(ctx, grantID)
}

// ListGrants returns grants matching the filter.
func (c *Controller) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	return c.store.ListGrants(ctx, filter)
}

// AuditTrail returns the audit entries for a grant, oldest first.
func (c *Controller) AuditTrail(ctx context.Context, grantID id.GrantID) ([]*audit.Entry, error) {
	return c.store.ListAuditTrail(ctx, grantID)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// provision calls the external grant endpoint with a bounded context.
func (c *Controller) provision(ctx context.Context, g *grant.Grant, level grant.Level) error {
	callCtx, cancel := c.boundedCtx(ctx)
	defer cancel()

	if err := c.provisioner.Grant(callCtx, g.Principal, g.ResourceOwner, g.ResourceID, level); err != nil {
		c.logger.Warn("provisioning grant call failed",
			"grant_id", g.ID.String(),
			"level", string(level),
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	return nil
}

// deprovision calls the external revoke endpoint with a bounded context.
func (c *Controller) deprovision(ctx context.Context, g *grant.Grant) error {
	callCtx, cancel := c.boundedCtx(ctx)
	defer cancel()

	if err := c.provisioner.Revoke(callCtx, g.Principal, g.ResourceOwner, g.ResourceID); err != nil {
		c.logger.Warn("provisioning revoke call failed",
			"grant_id", g.ID.String(),
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	return nil
}

func (c *Controller) boundedCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.config.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// commit performs the compare-and-set write, mapping a lost race to
// ErrInvalidTransition: the precondition state no longer holds.
func (c *Controller) commit(ctx context.Context, g *grant.Grant, expectedVersion int64, entry *audit.Entry) error {
	err := c.store.UpdateGrant(ctx, g, expectedVersion, entry)
	if err == nil {
		return nil
	}
	if errors.Is(err, grant.ErrVersionConflict) {
		return fmt.Errorf("%w: lost race to a concurrent transition", ErrInvalidTransition)
	}
	return fmt.Errorf("steward: update grant: %w", err)
}

func (c *Controller) newEntry(grantID id.GrantID, actor string, action audit.Action, at time.Time, details map[string]any) *audit.Entry {
	return &audit.Entry{
		ID:        id.NewAuditID(),
		GrantID:   grantID,
		Actor:     actor,
		Action:    action,
		Details:   details,
		CreatedAt: at,
	}
}

func (c *Controller) emitTransition(ctx context.Context, g *grant.Grant, action audit.Action) {
	if c.plugins != nil {
		c.plugins.EmitGrantTransition(ctx, g, action)
	}
}
