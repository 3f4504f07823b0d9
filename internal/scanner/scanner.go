// Package scanner finds tasks past their SLA deadline and claims the breach.
//
// Claiming goes through the store's conditional update, so any number of
// scanner instances can overlap: exactly one claims a given task, the rest
// see the claim and skip it.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hilops/titleflow/internal/audit"
	"github.com/hilops/titleflow/internal/eventbus"
	"github.com/hilops/titleflow/internal/notify"
	"github.com/hilops/titleflow/internal/sla"
	"github.com/hilops/titleflow/internal/storage"
	"github.com/hilops/titleflow/internal/telemetry"
	"github.com/hilops/titleflow/internal/types"
)

const systemActor = "system:breach-scanner"

// Result summarizes one scan pass.
type Result struct {
	// Found is the number of candidate tasks the queries returned.
	Found int
	// Processed is the number this pass claimed and notified about.
	Processed int
}

// Scanner periodically sweeps for breached SLAs.
type Scanner struct {
	store          storage.Storage
	dispatcher     *notify.Dispatcher
	recorder       *audit.Recorder
	bus            *eventbus.Bus
	interval       time.Duration
	fallbackWindow time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

// Config tunes the scanner.
type Config struct {
	// Interval between ticker-driven scans. Zero disables Start.
	Interval time.Duration
	// FallbackWindow is the breach window for tasks without SLA
	// configuration, measured from creation time.
	FallbackWindow time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// New creates a Scanner. bus may be nil; dispatcher and recorder must not be.
func New(store storage.Storage, dispatcher *notify.Dispatcher, recorder *audit.Recorder, bus *eventbus.Bus, cfg Config, log zerolog.Logger) *Scanner {
	if cfg.FallbackWindow <= 0 {
		cfg.FallbackWindow = sla.DefaultFallbackWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scanner{
		store:          store,
		dispatcher:     dispatcher,
		recorder:       recorder,
		bus:            bus,
		interval:       cfg.Interval,
		fallbackWindow: cfg.FallbackWindow,
		now:            cfg.Now,
		log:            log.With().Str("component", "scanner").Logger(),
	}
}

// Start runs the ticker loop until ctx is cancelled. Each tick is one Run.
func (s *Scanner) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Warn().Msg("scan interval not set, breach scanning disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				res, err := s.Run(ctx)
				if err != nil {
					s.log.Error().Err(err).Msg("breach scan failed")
					continue
				}
				if res.Found > 0 {
					s.log.Info().
						Int("found", res.Found).
						Int("processed", res.Processed).
						Msg("breach scan complete")
				}
			}
		}
	}()
}

// Run performs a single scan pass. Per-task failures are logged and the pass
// continues; only a failed candidate query aborts the run.
func (s *Scanner) Run(ctx context.Context) (Result, error) {
	now := s.now().UTC()

	overdue, err := s.store.OverdueTasks(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("failed to query overdue tasks: %w", err)
	}
	stale, err := s.store.StaleUnconfiguredTasks(ctx, now, s.fallbackWindow)
	if err != nil {
		return Result{}, fmt.Errorf("failed to query stale tasks: %w", err)
	}

	// The two queries select disjoint rows (sla_due_at set vs NULL), but
	// dedupe anyway so a policy change mid-scan cannot double-process.
	seen := make(map[string]bool, len(overdue)+len(stale))
	var candidates []*types.Task
	for _, t := range append(overdue, stale...) {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		candidates = append(candidates, t)
	}

	result := Result{Found: len(candidates)}
	for _, task := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		claimed, err := s.processBreach(ctx, task, now)
		if err != nil {
			s.log.Error().Err(err).Str("task", task.ID).Msg("breach processing failed")
			continue
		}
		if claimed {
			result.Processed++
		}
	}
	telemetry.CountScan(ctx, result.Found, result.Processed)
	return result, nil
}

// processBreach claims one task's breach and fans out the notification.
// Losing the claim race is not an error; it reports claimed=false.
func (s *Scanner) processBreach(ctx context.Context, task *types.Task, now time.Time) (bool, error) {
	if err := s.store.ClaimBreach(ctx, task.ID); err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyBreached):
			// Another scanner got here first.
			return false, nil
		case errors.Is(err, storage.ErrNotFound):
			// Deleted between query and claim.
			return false, nil
		default:
			return false, fmt.Errorf("failed to claim breach: %w", err)
		}
	}

	verdict := sla.Evaluate(task, now, s.fallbackWindow)
	hours := sla.HoursOverdue(verdict.Due, now)
	message := fmt.Sprintf("%s is %d hours overdue", task.Name, hours)

	s.recorder.RecordTransition(ctx, systemActor, "sla_breached", "task", task.ID,
		string(types.SLAOnTime), string(types.SLABreached))

	if _, err := s.dispatcher.Dispatch(ctx, notify.Event{
		Type:     types.NotifySLAWarning,
		Priority: types.PriorityHigh,
		Title:    "SLA breached",
		Message:  message,
		Metadata: map[string]string{
			"workflow_id": task.WorkflowID,
			"task_id":     task.ID,
			"sla_path":    string(verdict.Path),
		},
	}); err != nil {
		// The claim stands either way; the row is already breached.
		return true, fmt.Errorf("failed to dispatch breach notification: %w", err)
	}

	if s.bus != nil {
		if _, err := s.bus.Dispatch(ctx, &eventbus.Event{
			Type:       eventbus.EventSLABreached,
			WorkflowID: task.WorkflowID,
			TaskID:     task.ID,
			Actor:      systemActor,
			Priority:   types.PriorityHigh,
			Title:      "SLA breached",
			Message:    message,
		}); err != nil {
			s.log.Warn().Err(err).Str("task", task.ID).Msg("breach event dispatch failed")
		}
	}
	return true, nil
}
