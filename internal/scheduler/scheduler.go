// Package scheduler runs the periodic stale-run report: suspended runs
// waiting past a threshold are surfaced to operators via log warnings
// and run.stale events. Suspended runs wait indefinitely for a resume;
// the reporter only observes, it never expires or mutates a run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/handoff/internal/store"
	"github.com/rendis/handoff/internal/streaming"
	"github.com/rendis/handoff/pkg/schema"
)

// DefaultStaleAfter is how long a run may stay suspended before it is
// reported.
const DefaultStaleAfter = 24 * time.Hour

// DefaultSchedule checks for stale runs hourly.
const DefaultSchedule = "0 * * * *"

// StaleReporter periodically lists long-suspended runs and reports them.
type StaleReporter struct {
	store      store.Store
	hub        streaming.EventHub
	schedule   cron.Schedule
	staleAfter time.Duration
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
	mu         sync.Mutex

	reportedMu sync.Mutex
	reported   map[string]struct{} // run IDs already reported (dedup across ticks)
}

// NewStaleReporter creates a StaleReporter. cronExpr uses the standard
// five-field format; staleAfter <= 0 falls back to DefaultStaleAfter.
// hub may be nil to disable run.stale events.
func NewStaleReporter(s store.Store, hub streaming.EventHub, cronExpr string, staleAfter time.Duration, logger *slog.Logger) (*StaleReporter, error) {
	if cronExpr == "" {
		cronExpr = DefaultSchedule
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "invalid stale report schedule %q", cronExpr).WithCause(err)
	}

	return &StaleReporter{
		store:      s,
		hub:        hub,
		schedule:   schedule,
		staleAfter: staleAfter,
		logger:     logger,
		reported:   make(map[string]struct{}),
	}, nil
}

// Start launches the background reporting loop.
func (r *StaleReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.done != nil {
		r.mu.Unlock()
		return fmt.Errorf("stale reporter already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(loopCtx)
	r.logger.Info("stale run reporter started", slog.Duration("stale_after", r.staleAfter))
	return nil
}

func (r *StaleReporter) loop(ctx context.Context) {
	defer close(r.done)

	// Run an initial tick immediately, then follow the cron schedule.
	r.Tick(ctx)

	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.Tick(ctx)
		}
	}
}

// Tick reports every suspended run older than the threshold exactly
// once. Runs that leave suspension are forgotten so a later suspension
// of the same run is reported again.
func (r *StaleReporter) Tick(ctx context.Context) {
	suspended := schema.RunStatusSuspended
	cutoff := time.Now().UTC().Add(-r.staleAfter)
	runs, err := r.store.ListRuns(ctx, store.RunFilter{Status: &suspended, SuspendedSince: &cutoff})
	if err != nil {
		r.logger.Error("failed to list suspended runs", slog.String("error", err.Error()))
		return
	}

	stale := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		stale[run.ID] = struct{}{}
		if !r.markReported(run.ID) {
			continue
		}

		age := time.Duration(0)
		if run.SuspendedAt != nil {
			age = time.Since(*run.SuspendedAt)
		}
		r.logger.Warn("run suspended past threshold",
			slog.String("run_id", run.ID),
			slog.String("workflow", run.WorkflowID),
			slog.String("step_id", run.CurrentStepID),
			slog.Duration("suspended_for", age),
		)
		if r.hub != nil {
			_ = r.hub.Publish(ctx, streaming.StreamEvent{
				RunID:     run.ID,
				StepID:    run.CurrentStepID,
				EventType: schema.EventRunStale,
				Payload:   map[string]any{"suspendedFor": age.String()},
			})
		}
	}

	r.forgetResolved(stale)
}

// markReported returns true if the run has not been reported yet.
func (r *StaleReporter) markReported(runID string) bool {
	r.reportedMu.Lock()
	defer r.reportedMu.Unlock()
	if _, ok := r.reported[runID]; ok {
		return false
	}
	r.reported[runID] = struct{}{}
	return true
}

// forgetResolved drops reported entries no longer in the stale set.
func (r *StaleReporter) forgetResolved(stale map[string]struct{}) {
	r.reportedMu.Lock()
	defer r.reportedMu.Unlock()
	for id := range r.reported {
		if _, ok := stale[id]; !ok {
			delete(r.reported, id)
		}
	}
}

// Stop gracefully shuts down the reporter.
func (r *StaleReporter) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return nil
	}

	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil

	r.logger.Info("stale run reporter stopped")
	return nil
}
