// Package policy defines the static policy table: the mapping from access
// level to default grant duration and approval requirement.
//
// The table is read-only from the lifecycle controller's perspective; it is
// validated once at construction and total over all levels, so an unknown
// level is a startup configuration error, never a request-time surprise.
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/steward/grant"
)

// Sentinel errors for table construction.
var (
	// ErrIncompleteTable is returned when a rule is missing for a level.
	ErrIncompleteTable = errors.New("policy: rule missing for level")

	// ErrInvalidRule is returned when a rule carries a non-positive duration.
	ErrInvalidRule = errors.New("policy: duration must be positive")

	// ErrUnknownLevel is returned when a rule names a level outside the
	// closed enumeration.
	ErrUnknownLevel = errors.New("policy: unknown level")
)

// Rule maps one access level to its default grant duration and whether a
// human approval gate applies.
type Rule struct {
	DurationDays     int  `json:"duration_days"`
	RequiresApproval bool `json:"requires_approval"`
}

// Duration returns the rule's grant duration.
func (r Rule) Duration() time.Duration {
	return time.Duration(r.DurationDays) * 24 * time.Hour
}

// Table is a validated, total mapping from level to rule.
type Table struct {
	rules map[grant.Level]Rule
}

// NewTable builds a table from the given rules. Every valid level must have
// a rule with a positive duration, or construction fails.
func NewTable(rules map[grant.Level]Rule) (*Table, error) {
	for lvl := range rules {
		if !lvl.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, lvl)
		}
	}

	out := make(map[grant.Level]Rule, len(rules))
	for _, lvl := range grant.Levels() {
		rule, ok := rules[lvl]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrIncompleteTable, lvl)
		}
		if rule.DurationDays <= 0 {
			return nil, fmt.Errorf("%w: level %q has %d days", ErrInvalidRule, lvl, rule.DurationDays)
		}
		out[lvl] = rule
	}

	return &Table{rules: out}, nil
}

// MustTable is like NewTable but panics on error. Use for static tables.
func MustTable(rules map[grant.Level]Rule) *Table {
	t, err := NewTable(rules)
	if err != nil {
		panic(fmt.Sprintf("policy: invalid table: %v", err))
	}
	return t
}

// DefaultTable returns the stock policy: read-oriented levels auto-approve
// with long durations, write-capable levels need human approval and short
// durations.
func DefaultTable() *Table {
	return MustTable(map[grant.Level]Rule{
		grant.LevelViewer:        {DurationDays: 60},
		grant.LevelAnalyst:       {DurationDays: 30},
		grant.LevelEditor:        {DurationDays: 7, RequiresApproval: true},
		grant.LevelAdministrator: {DurationDays: 7, RequiresApproval: true},
	})
}

// Decide returns the rule for the given level. After a validated
// construction the error path is only reachable with a level that bypassed
// ParseLevel.
func (t *Table) Decide(level grant.Level) (Rule, error) {
	rule, ok := t.rules[level]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return rule, nil
}

// Rules returns a copy of the underlying mapping.
func (t *Table) Rules() map[grant.Level]Rule {
	out := make(map[grant.Level]Rule, len(t.rules))
	for lvl, r := range t.rules {
		out[lvl] = r
	}
	return out
}
