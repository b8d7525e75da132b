// Package grant defines the Grant entity: one principal's time-bounded
// access to one resource at one level.
package grant

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/steward/id"
)

// Level is an ordered access tier. Viewer < Analyst < Editor < Administrator.
type Level string

// Access level constants, least to most privileged.
const (
	LevelViewer        Level = "viewer"
	LevelAnalyst       Level = "analyst"
	LevelEditor        Level = "editor"
	LevelAdministrator Level = "administrator"
)

// levelRank orders levels for upgrade/downgrade decisions.
var levelRank = map[Level]int{
	LevelViewer:        1,
	LevelAnalyst:       2,
	LevelEditor:        3,
	LevelAdministrator: 4,
}

// Levels returns all valid levels in ascending order of privilege.
func Levels() []Level {
	return []Level{LevelViewer, LevelAnalyst, LevelEditor, LevelAdministrator}
}

// ParseLevel parses a level string. Unknown values are a construction-time
// error, never a runtime string-compare bug.
func ParseLevel(s string) (Level, error) {
	lvl := Level(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := levelRank[lvl]; !ok {
		return "", fmt.Errorf("grant: unknown level %q", s)
	}
	return lvl, nil
}

// Valid reports whether the level is a member of the closed enumeration.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// Cmp compares two levels: -1 if l is less privileged than other,
// 0 if equal, +1 if more privileged.
func (l Level) Cmp(other Level) int {
	a, b := levelRank[l], levelRank[other]
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Status is the lifecycle state of a grant.
type Status string

// Grant status constants.
const (
	StatusPendingApproval Status = "pending_approval"
	StatusActive          Status = "active"
	StatusExpired         Status = "expired"
	StatusRevoked         Status = "revoked"
	StatusRejected        Status = "rejected"
)

var validStatus = map[Status]struct{}{
	StatusPendingApproval: {},
	StatusActive:          {},
	StatusExpired:         {},
	StatusRevoked:         {},
	StatusRejected:        {},
}

// ParseStatus parses a status string into the closed enumeration.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := validStatus[st]; !ok {
		return "", fmt.Errorf("grant: unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether the status is a member of the closed enumeration.
func (s Status) Valid() bool {
	_, ok := validStatus[s]
	return ok
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusRevoked || s == StatusRejected
}

// Open reports whether the grant occupies the (principal, resource) slot:
// at most one open grant may exist per pair at any time.
func (s Status) Open() bool {
	return s == StatusPendingApproval || s == StatusActive
}

// Grant is one principal's time-bounded access to one resource at one level.
//
// ExpiresAt is present iff the status is Active or Expired. Version is an
// optimistic-concurrency counter bumped by the store on every update, so
// concurrent transitions on the same grant resolve deterministically.
type Grant struct {
	ID                    id.GrantID `json:"id" db:"id"`
	Principal             string     `json:"principal" db:"principal"`
	ResourceOwner         string     `json:"resource_owner" db:"resource_owner"`
	ResourceID            string     `json:"resource_id" db:"resource_id"`
	Level                 Level      `json:"level" db:"level"`
	Status                Status     `json:"status" db:"status"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	RequestedBy           string     `json:"requested_by" db:"requested_by"`
	ApprovedBy            string     `json:"approved_by,omitempty" db:"approved_by"`
	RejectionReason       string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ProvisionPending      bool       `json:"provision_pending,omitempty" db:"provision_pending"`
	LastNotifiedThreshold int        `json:"last_notified_threshold,omitempty" db:"last_notified_threshold"`
	LastNotifiedAt        *time.Time `json:"last_notified_at,omitempty" db:"last_notified_at"`
	Version               int64      `json:"version" db:"version"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at" db:"updated_at"`
}

// NormalizePrincipal lower-cases and trims a principal identifier.
func NormalizePrincipal(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

// ListFilter contains filters for listing grants.
type ListFilter struct {
	Status         Status     `json:"status,omitempty"`
	Principal      string     `json:"principal,omitempty"`
	ResourceOwner  string     `json:"resource_owner,omitempty"`
	ResourceID     string     `json:"resource_id,omitempty"`
	ExpiringBefore *time.Time `json:"expiring_before,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Offset         int        `json:"offset,omitempty"`
}
