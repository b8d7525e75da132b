package plugin

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/xraph/steward/audit"
	"github.com/xraph/steward/grant"
	"github.com/xraph/steward/id"
)

// testPlugin implements Plugin + GrantTransition + SweepCompleted.
type testPlugin struct {
	transitionCalled bool
	sweepCalled      bool
}

func (t *testPlugin) Name() string { return "test-plugin" }

func (t *testPlugin) OnGrantTransition(_ context.Context, _ *grant.Grant, _ audit.Action) error {
	t.transitionCalled = true
	return nil
}

func (t *testPlugin) OnSweepCompleted(_ context.Context, _, _, _ int) error {
	t.sweepCalled = true
	return nil
}

// minimalPlugin only implements Plugin (no hooks).
type minimalPlugin struct{}

func (m *minimalPlugin) Name() string { return "minimal" }

// failingPlugin returns errors from its hook; errors must not propagate.
type failingPlugin struct{}

func (f *failingPlugin) Name() string { return "failing" }

func (f *failingPlugin) OnGrantTransition(_ context.Context, _ *grant.Grant, _ audit.Action) error {
	return errors.New("boom")
}

func TestRegistryDispatch(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	tp := &testPlugin{}
	reg.Register(tp)
	reg.Register(&minimalPlugin{})

	if len(reg.Plugins()) != 2 {
		t.Fatalf("expected 2 plugins, got %d", len(reg.Plugins()))
	}

	g := &grant.Grant{ID: id.NewGrantID(), Status: grant.StatusActive}
	reg.EmitGrantTransition(ctx, g, audit.ActionApprove)
	if !tp.transitionCalled {
		t.Fatal("OnGrantTransition was not called")
	}

	reg.EmitSweepCompleted(ctx, 1, 2, 0)
	if !tp.sweepCalled {
		t.Fatal("OnSweepCompleted was not called")
	}

	// Should not panic on hooks with no listeners.
	reg.EmitNotificationSent(ctx, g, 7)
	reg.EmitShutdown(ctx)
}

func TestRegistryHookErrorsDoNotPropagate(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(&failingPlugin{})

	// Must not panic or propagate.
	reg.EmitGrantTransition(context.Background(), &grant.Grant{ID: id.NewGrantID()}, audit.ActionCreate)
}
