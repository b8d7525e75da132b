package steward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/xraph/steward/grant"
)

// TemplateGrantExpired is the notification template sent after an expiry
// is finalized. Warning templates are derived per threshold, e.g.
// "grant-expiry-warning-7d".
const TemplateGrantExpired = "grant-expired"

// WarnTemplate returns the notification template ID for a threshold.
func WarnTemplate(thresholdDays int) string {
	return fmt.Sprintf("grant-expiry-warning-%dd", thresholdDays)
}

// Scheduler periodically sweeps active grants: it finalizes passed
// expirations and fires each warning threshold at most once per expiry
// cycle. Sweeps are idempotent and safe to run concurrently — every
// per-grant decision resolves through a conditional write, so a second
// runner either sees the updated ledger and skips or loses the race
// harmlessly.
type Scheduler struct {
	ctrl   *Controller
	logger *slog.Logger
	clock  Clock
	config Config

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler creates an expiration scheduler driving the given
// controller. The controller must carry a notifier.
func NewScheduler(ctrl *Controller) (*Scheduler, error) {
	if ctrl == nil {
		return nil, errors.New("steward: controller is required")
	}
	if ctrl.notifier == nil {
		return nil, errors.New("steward: notifier is required for the scheduler")
	}
	return &Scheduler{
		ctrl:   ctrl,
		logger: ctrl.logger,
		clock:  ctrl.clock,
		config: ctrl.config,
	}, nil
}

// Start launches the sweep loop: one sweep immediately, then one per
// SweepInterval until Stop is called.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("steward: scheduler already started")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx)
	return nil
}

// Stop terminates the sweep loop, waiting for an in-flight sweep to finish
// or the given context to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("steward: scheduler stop: %w", ctx.Err())
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	interval := s.config.SweepInterval
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepAndLog(ctx)
		}
	}
}

func (s *Scheduler) sweepAndLog(ctx context.Context) {
	result, err := s.RunSweep(ctx)
	if err != nil {
		s.logger.Error("expiration sweep failed", "error", err)
		return
	}
	s.logger.Info("expiration sweep completed",
		"notified", result.Notified,
		"expired", result.Expired,
		"errors", result.Errors,
	)
}

// RunSweep executes one full sweep over active grants and returns the
// counts. It is the manual-trigger hook for operational use and the body
// of every scheduled tick.
func (s *Scheduler) RunSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	now := s.clock.Now()
	horizon := now.Add(time.Duration(s.config.maxThreshold()+1) * 24 * time.Hour)

	grants, err := s.ctrl.store.ListExpiring(ctx, horizon, s.config.SweepBatchSize)
	if err != nil {
		return result, fmt.Errorf("steward: sweep list: %w", err)
	}

	thresholds := s.sortedThresholds()
	for _, g := range grants {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		s.sweepGrant(ctx, g, now, thresholds, &result)
	}

	if s.ctrl.plugins != nil {
		s.ctrl.plugins.EmitSweepCompleted(ctx, result.Notified, result.Expired, result.Errors)
	}
	return result, nil
}

// sweepGrant makes exactly one decision for one active grant: finalize
// expiration, send a warning, or do nothing.
func (s *Scheduler) sweepGrant(ctx context.Context, g *grant.Grant, now time.Time, thresholds []int, result *SweepResult) {
	if g.ExpiresAt == nil {
		return
	}

	remaining := daysRemaining(now, *g.ExpiresAt)
	if remaining <= 0 {
		s.finalizeExpiry(ctx, g, result)
		return
	}

	// Most-urgent threshold first; the first one covering the remaining
	// days wins, so a sweep skipped across a boundary still fires the most
	// urgent eligible warning instead of silently missing it.
	for _, t := range thresholds {
		if remaining > t {
			continue
		}
		if g.LastNotifiedThreshold == 0 || g.LastNotifiedThreshold > t {
			s.fireWarning(ctx, g, t, remaining, now, result)
		}
		return
	}
}

func (s *Scheduler) finalizeExpiry(ctx context.Context, g *grant.Grant, result *SweepResult) {
	updated, err := s.ctrl.ExpireGrant(ctx, g.ID)
	if err != nil {
		// Another runner finalized it, or a renewal moved the expiry.
		if errors.Is(err, ErrInvalidTransition) {
			return
		}
		result.Errors++
		s.logger.Warn("expiry finalization failed, will retry next sweep",
			"grant_id", g.ID.String(),
			"error", err,
		)
		return
	}
	result.Expired++

	// Best-effort courtesy notice; the expiry itself is already durable.
	if err := s.send(ctx, updated.Principal, TemplateGrantExpired, map[string]any{
		"resource_owner": updated.ResourceOwner,
		"resource_id":    updated.ResourceID,
		"level":          string(updated.Level),
	}); err != nil {
		s.logger.Warn("expired notice send failed",
			"grant_id", g.ID.String(),
			"error", err,
		)
	}
}

func (s *Scheduler) fireWarning(ctx context.Context, g *grant.Grant, threshold, remaining int, now time.Time, result *SweepResult) {
	data := map[string]any{
		"resource_owner": g.ResourceOwner,
		"resource_id":    g.ResourceID,
		"level":          string(g.Level),
		"days_remaining": remaining,
		"expires_at":     g.ExpiresAt.Format(time.RFC3339),
	}

	// Send first, record second: a crash between the two re-sends rather
	// than silently suppressing a legitimate warning.
	if err := s.send(ctx, g.Principal, WarnTemplate(threshold), data); err != nil {
		result.Errors++
		s.logger.Warn("expiry warning send failed, will retry next sweep",
			"grant_id", g.ID.String(),
			"threshold_days", threshold,
			"error", err,
		)
		return
	}

	applied, err := s.ctrl.store.MarkNotified(ctx, g.ID, threshold, now, *g.ExpiresAt)
	if err != nil {
		result.Errors++
		s.logger.Warn("notification ledger write failed",
			"grant_id", g.ID.String(),
			"threshold_days", threshold,
			"error", err,
		)
		return
	}
	if !applied {
		// Lost the race to a concurrent sweep or a renewal; the send may
		// have duplicated, which we prefer over suppression.
		return
	}

	result.Notified++
	s.logger.Info("expiry warning sent",
		"grant_id", g.ID.String(),
		"threshold_days", threshold,
		"days_remaining", remaining,
	)
	if s.ctrl.plugins != nil {
		s.ctrl.plugins.EmitNotificationSent(ctx, g, threshold)
	}
}

func (s *Scheduler) send(ctx context.Context, recipient, templateID string, data map[string]any) error {
	callCtx, cancel := s.ctrl.boundedCtx(ctx)
	defer cancel()

	if err := s.ctrl.notifier.Send(callCtx, recipient, templateID, data); err != nil {
		return fmt.Errorf("%w: %v", ErrNotify, err)
	}
	return nil
}

func (s *Scheduler) sortedThresholds() []int {
	thresholds := make([]int, len(s.config.WarnThresholds))
	copy(thresholds, s.config.WarnThresholds)
	sort.Ints(thresholds)
	return thresholds
}

// daysRemaining computes ceil(expiresAt - now) in whole days.
func daysRemaining(now, expiresAt time.Time) int {
	return int(math.Ceil(expiresAt.Sub(now).Hours() / 24))
}
