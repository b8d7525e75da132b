package api

// ──────────────────────────────────────────────────
// Grant requests
// ──────────────────────────────────────────────────

// RequestGrantRequest is the body for requesting a new grant.
type RequestGrantRequest struct {
	Principal     string `json:"principal" description:"Principal receiving access"`
	ResourceOwner string `json:"resource_owner" description:"Owner of the resource"`
	ResourceID    string `json:"resource_id" description:"Resource identifier"`
	Level         string `json:"level" description:"Access level (viewer, analyst, editor, administrator)"`
	RequestedBy   string `json:"requested_by,omitempty" description:"Requesting actor (defaults to the authenticated user)"`
}

// GetGrantRequest is the path parameter for getting a grant.
type GetGrantRequest struct {
	GrantID string `path:"grantId" description:"Grant ID"`
}

// ApproveGrantRequest is the body for approving a pending grant.
type ApproveGrantRequest struct {
	ApprovedBy string `json:"approved_by,omitempty" description:"Approving actor (defaults to the authenticated user)"`
	ExpiresAt  string `json:"expires_at,omitempty" description:"Override expiry (RFC 3339); defaults to the policy duration"`
}

// RejectGrantRequest is the body for rejecting a pending grant.
type RejectGrantRequest struct {
	ApprovedBy string `json:"approved_by,omitempty" description:"Rejecting actor (defaults to the authenticated user)"`
	Reason     string `json:"reason" description:"Rejection reason"`
}

// RenewGrantRequest is the body for renewing an active grant.
type RenewGrantRequest struct {
	ExpiresAt string `json:"expires_at" description:"New expiry (RFC 3339), must be in the future"`
}

// UpgradeGrantRequest is the body for changing the level of an active grant.
type UpgradeGrantRequest struct {
	Level string `json:"level" description:"New access level"`
}

// RevokeGrantRequest is the body for revoking an open grant.
type RevokeGrantRequest struct {
	Actor string `json:"actor,omitempty" description:"Revoking actor (defaults to the authenticated user)"`
}

// ListGrantsRequest holds query parameters for listing grants.
type ListGrantsRequest struct {
	Status        string `query:"status" description:"Filter by status"`
	Principal     string `query:"principal" description:"Filter by principal"`
	ResourceOwner string `query:"resource_owner" description:"Filter by resource owner"`
	ResourceID    string `query:"resource_id" description:"Filter by resource"`
	Limit         int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset        int    `query:"offset" description:"Results to skip"`
}

// ──────────────────────────────────────────────────
// Audit requests
// ──────────────────────────────────────────────────

// ListAuditTrailRequest is the path parameter for a grant audit trail.
type ListAuditTrailRequest struct {
	GrantID string `path:"grantId" description:"Grant ID"`
}

// ListAuditEntriesRequest holds query parameters for querying audit entries.
type ListAuditEntriesRequest struct {
	GrantID string `query:"grant_id" description:"Filter by grant"`
	Actor   string `query:"actor" description:"Filter by actor"`
	Action  string `query:"action" description:"Filter by action"`
	After   string `query:"after" description:"Entries at or after this time (RFC 3339)"`
	Before  string `query:"before" description:"Entries at or before this time (RFC 3339)"`
	Limit   int    `query:"limit" description:"Maximum results (default: 50)"`
	Offset  int    `query:"offset" description:"Results to skip"`
}

// RunSweepRequest is the (empty) body for a manual sweep.
type RunSweepRequest struct{}
