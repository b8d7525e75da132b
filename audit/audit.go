// Package audit defines the append-only audit trail Entry entity.
//
// Exactly one entry is written per state-changing grant operation, in the
// same atomic unit as the grant mutation it describes. Entries are created,
// never mutated or deleted (retention purge aside).
package audit

import (
	"fmt"
	"time"

	"github.com/xraph/steward/id"
)

// Action identifies the grant transition an entry records.
type Action string

// Audit action constants, one per state-changing operation.
const (
	ActionCreate  Action = "create"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRenew   Action = "renew"
	ActionUpgrade Action = "upgrade"
	ActionRevoke  Action = "revoke"
	ActionExpire  Action = "expire"
)

var validAction = map[Action]struct{}{
	ActionCreate:  {},
	ActionApprove: {},
	ActionReject:  {},
	ActionRenew:   {},
	ActionUpgrade: {},
	ActionRevoke:  {},
	ActionExpire:  {},
}

// ParseAction parses an action string into the closed enumeration.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := validAction[a]; !ok {
		return "", fmt.Errorf("audit: unknown action %q", s)
	}
	return a, nil
}

// Valid reports whether the action is a member of the closed enumeration.
func (a Action) Valid() bool {
	_, ok := validAction[a]
	return ok
}

// SystemActor is the actor recorded for scheduler-initiated transitions.
const SystemActor = "system"

// Entry is a single immutable audit record for one grant transition.
type Entry struct {
	ID        id.AuditID     `json:"id" db:"id"`
	GrantID   id.GrantID     `json:"grant_id" db:"grant_id"`
	Actor     string         `json:"actor" db:"actor"`
	Action    Action         `json:"action" db:"action"`
	Details   map[string]any `json:"details,omitempty" db:"details"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// QueryFilter contains filters for querying audit entries.
type QueryFilter struct {
	GrantID id.GrantID `json:"grant_id,omitempty"`
	Actor   string     `json:"actor,omitempty"`
	Action  Action     `json:"action,omitempty"`
	After   *time.Time `json:"after,omitempty"`
	Before  *time.Time `json:"before,omitempty"`
	Limit   int        `json:"limit,omitempty"`
	Offset  int        `json:"offset,omitempty"`
}
