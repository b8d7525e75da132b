package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
)

// ──────────────────────────────────────────────────
// Grant model
// ──────────────────────────────────────────────────

type grantModel struct {
	grove.BaseModel       `grove:"table:steward_grants"`
	ID                    string     `grove:"id,pk"`
	Principal             string     `grove:"principal,notnull"`
	ResourceOwner         string     `grove:"resource_owner,notnull"`
	ResourceID            string     `grove:"resource_id,notnull"`
	Level                 string     `grove:"level,notnull"`
	Status                string     `grove:"status,notnull"`
	ExpiresAt             *time.Time `grove:"expires_at"`
	RequestedBy           string     `grove:"requested_by"`
	ApprovedBy            string     `grove:"approved_by"`
	RejectionReason       string     `grove:"rejection_reason"`
	ProvisionPending      bool       `grove:"provision_pending,notnull"`
	LastNotifiedThreshold int        `grove:"last_notified_threshold,notnull"`
	LastNotifiedAt        *time.Time `grove:"last_notified_at"`
	Version               int64      `grove:"version,notnull"`
	CreatedAt             time.Time  `grove:"created_at,notnull"`
	UpdatedAt             time.Time  `grove:"updated_at,notnull"`
}

func grantToModel(g *grant.Grant) *grantModel {
	m := &grantModel{
		ID:                    g.ID.String(),
		Principal:             g.Principal,
		ResourceOwner:         g.ResourceOwner,
		ResourceID:            g.ResourceID,
		Level:                 string(g.Level),
		Status:                string(g.Status),
		RequestedBy:           g.RequestedBy,
		ApprovedBy:            g.ApprovedBy,
		RejectionReason:       g.RejectionReason,
		ProvisionPending:      g.ProvisionPending,
		LastNotifiedThreshold: g.LastNotifiedThreshold,
		Version:               g.Version,
		CreatedAt:             g.CreatedAt,
		UpdatedAt:             g.UpdatedAt,
	}
	if g.ExpiresAt != nil {
		t := g.ExpiresAt.UTC()
		m.ExpiresAt = &t
	}
	if g.LastNotifiedAt != nil {
		t := g.LastNotifiedAt.UTC()
		m.LastNotifiedAt = &t
	}
	return m
}

func grantFromModel(m *grantModel) *grant.Grant {
	gid, _ := id.ParseGrantID(m.ID) //nolint:errcheck // stored IDs are always valid
	g := &grant.Grant{
		ID:                    gid,
		Principal:             m.Principal,
		ResourceOwner:         m.ResourceOwner,
		ResourceID:            m.ResourceID,
		Level:                 grant.Level(m.Level),
		Status:                grant.Status(m.Status),
		RequestedBy:           m.RequestedBy,
		ApprovedBy:            m.ApprovedBy,
		RejectionReason:       m.RejectionReason,
		ProvisionPending:      m.ProvisionPending,
		LastNotifiedThreshold: m.LastNotifiedThreshold,
		Version:               m.Version,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
	if m.ExpiresAt != nil {
		t := *m.ExpiresAt
		g.ExpiresAt = &t
	}
	if m.LastNotifiedAt != nil {
		t := *m.LastNotifiedAt
		g.LastNotifiedAt = &t
	}
	return g
}

// ──────────────────────────────────────────────────
// Audit entry model
// ──────────────────────────────────────────────────

type auditEntryModel struct {
	grove.BaseModel `grove:"table:steward_audit_entries"`
	ID              string         `grove:"id,pk"`
	GrantID         string         `grove:"grant_id,notnull"`
	Actor           string         `grove:"actor,notnull"`
	Action          string         `grove:"action,notnull"`
	Details         map[string]any `grove:"details,type:jsonb"`
	CreatedAt       time.Time      `grove:"created_at,notnull"`
}

func auditEntryToModel(e *audit.Entry) *auditEntryModel {
	return &auditEntryModel{
		ID:        e.ID.String(),
		GrantID:   e.GrantID.String(),
		Actor:     e.Actor,
		Action:    string(e.Action),
		Details:   e.Details,
		CreatedAt: e.CreatedAt,
	}
}

func auditEntryFromModel(m *auditEntryModel) *audit.Entry {
	eid, _ := id.ParseAuditID(m.ID)      //nolint:errcheck // stored IDs are always valid
	gid, _ := id.ParseGrantID(m.GrantID) //nolint:errcheck // stored IDs are always valid
	return &audit.Entry{
		ID:        eid,
		GrantID:   gid,
		Actor:     m.Actor,
		Action:    audit.Action(m.Action),
		Details:   m.Details,
		CreatedAt: m.CreatedAt,
	}
}
