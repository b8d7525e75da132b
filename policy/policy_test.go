package policy

import (
	"errors"
	"testing"

	"github.com/xraph/steward/grant"
)

func TestNewTable_Total(t *testing.T) {
	tbl, err := NewTable(map[grant.Level]Rule{
		grant.LevelViewer:        {DurationDays: 60},
		grant.LevelAnalyst:       {DurationDays: 30},
		grant.LevelEditor:        {DurationDays: 7, RequiresApproval: true},
		grant.LevelAdministrator: {DurationDays: 7, RequiresApproval: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	rule, err := tbl.Decide(grant.LevelViewer)
	if err != nil {
		t.Fatal(err)
	}
	if rule.DurationDays != 60 || rule.RequiresApproval {
		t.Fatalf("unexpected viewer rule: %+v", rule)
	}
}

func TestNewTable_MissingLevel(t *testing.T) {
	_, err := NewTable(map[grant.Level]Rule{
		grant.LevelViewer: {DurationDays: 60},
	})
	if !errors.Is(err, ErrIncompleteTable) {
		t.Fatalf("expected ErrIncompleteTable, got %v", err)
	}
}

func TestNewTable_NonPositiveDuration(t *testing.T) {
	rules := DefaultTable().Rules()
	rules[grant.LevelAnalyst] = Rule{DurationDays: 0}

	_, err := NewTable(rules)
	if !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
}

func TestNewTable_UnknownLevel(t *testing.T) {
	rules := DefaultTable().Rules()
	rules[grant.Level("superuser")] = Rule{DurationDays: 1}

	_, err := NewTable(rules)
	if !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
}

func TestDecide_UnknownLevel(t *testing.T) {
	_, err := DefaultTable().Decide(grant.Level("superuser"))
	if !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel, got %v", err)
	}
}

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	for _, lvl := range grant.Levels() {
		if _, err := tbl.Decide(lvl); err != nil {
			t.Fatalf("default table not total: %v", err)
		}
	}

	rule, _ := tbl.Decide(grant.LevelEditor)
	if !rule.RequiresApproval {
		t.Fatal("editor should require approval")
	}
}
