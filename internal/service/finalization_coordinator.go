// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

// FinalizeSignal names what suggested that the meeting is over.
type FinalizeSignal string

const (
	SignalExplicitClose  FinalizeSignal = "explicit_close"
	SignalEndMarker      FinalizeSignal = "end_marker"
	SignalVisibilityLost FinalizeSignal = "visibility_lost"
	SignalHostAbsent     FinalizeSignal = "host_absent"
	SignalLivenessStale  FinalizeSignal = "liveness_stale"
	SignalEndNow         FinalizeSignal = "end_now"
)

// Critical signals are debounced with the short delay.
func (s FinalizeSignal) Critical() bool {
	return s == SignalExplicitClose || s == SignalEndMarker || s == SignalEndNow
}

func (s FinalizeSignal) delay() time.Duration {
	if s.Critical() {
		return constants.CriticalFinalizeDelay
	}
	return constants.NormalFinalizeDelay
}

// FinalizationState is the coordinator's guard state.
type FinalizationState string

const (
	FinalizationIdle       FinalizationState = "idle"
	FinalizationScheduled  FinalizationState = "scheduled"
	FinalizationFinalizing FinalizationState = "finalizing"
	FinalizationFinalized  FinalizationState = "finalized"
	FinalizationFailed     FinalizationState = "failed"
)

// FinalizeFunc produces and dispatches the final report.
type FinalizeFunc func(ctx context.Context, signal FinalizeSignal) (*models.AttendanceReport, error)

// FinalizationCoordinator turns any number of end-of-meeting signals into a
// single finalize run, re-running a failed one up to MaxFinalizeAttempts.
type FinalizationCoordinator struct {
	mu       sync.Mutex
	clock    scheduler.Scheduler
	finalize FinalizeFunc

	state      FinalizationState
	generation uint64
	timer      scheduler.Timer
	pending    FinalizeSignal
	attempts   int
	report     *models.AttendanceReport
	lastErr    error
}

// NewFinalizationCoordinator creates an idle coordinator.
func NewFinalizationCoordinator(clock scheduler.Scheduler, finalize FinalizeFunc) *FinalizationCoordinator {
	return &FinalizationCoordinator{
		clock:    clock,
		finalize: finalize,
		state:    FinalizationIdle,
	}
}

// Signal schedules finalization after the signal's debounce delay. A pending
// timer is replaced, except that a normal signal never postpones a pending
// critical one. Signals are ignored once finalization has begun. It reports
// whether a timer was (re)scheduled.
func (c *FinalizationCoordinator) Signal(ctx context.Context, signal FinalizeSignal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case FinalizationFinalizing, FinalizationFinalized:
		slog.DebugContext(ctx, "ignoring finalize signal", "signal", signal, "state", c.state)
		return false
	case FinalizationFailed:
		if c.attempts >= constants.MaxFinalizeAttempts {
			slog.DebugContext(ctx, "ignoring finalize signal, attempts exhausted", "signal", signal)
			return false
		}
	case FinalizationScheduled:
		if c.pending.Critical() && !signal.Critical() {
			return false
		}
	}

	c.schedule(ctx, signal, signal.delay())
	slog.DebugContext(ctx, "finalize scheduled", "signal", signal, "delay", signal.delay())
	return true
}

// schedule replaces the pending timer. Caller holds c.mu.
func (c *FinalizationCoordinator) schedule(ctx context.Context, signal FinalizeSignal, delay time.Duration) {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.state = FinalizationScheduled
	c.pending = signal
	gen := c.generation
	runCtx := context.WithoutCancel(ctx)
	c.timer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := gen != c.generation || c.state != FinalizationScheduled || c.pending != signal
		c.mu.Unlock()
		if stale {
			return
		}
		_, _ = c.run(runCtx, signal)
	})
}

// FinalizeNow cancels any pending timer and finalizes immediately. After a
// successful finalize it returns the stored report without running again.
func (c *FinalizationCoordinator) FinalizeNow(ctx context.Context, signal FinalizeSignal) (*models.AttendanceReport, error) {
	return c.run(ctx, signal)
}

func (c *FinalizationCoordinator) run(ctx context.Context, signal FinalizeSignal) (*models.AttendanceReport, error) {
	c.mu.Lock()
	switch {
	case c.state == FinalizationFinalized:
		report := c.report
		c.mu.Unlock()
		return report, nil
	case c.state == FinalizationFinalizing:
		c.mu.Unlock()
		return nil, domain.NewConflictError("finalization already in progress")
	case c.attempts >= constants.MaxFinalizeAttempts:
		err := c.lastErr
		c.mu.Unlock()
		return nil, domain.NewInternalError("finalization attempts exhausted", err)
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = FinalizationFinalizing
	c.attempts++
	attempt := c.attempts
	gen := c.generation
	c.mu.Unlock()

	slog.InfoContext(ctx, "finalizing session", "signal", signal, "attempt", attempt)
	report, err := c.finalize(ctx, signal)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		// reset while running
		return report, err
	}

	if err != nil {
		c.state = FinalizationFailed
		c.lastErr = err
		if c.attempts < constants.MaxFinalizeAttempts {
			slog.WarnContext(ctx, "finalize failed, will retry",
				logging.ErrKey, err,
				"attempt", attempt,
			)
			c.schedule(ctx, signal, constants.NormalFinalizeDelay)
		} else {
			slog.ErrorContext(ctx, "finalize failed, giving up",
				logging.ErrKey, err,
				"attempt", attempt,
				logging.PriorityCritical(),
			)
		}
		return nil, err
	}

	c.state = FinalizationFinalized
	c.report = report
	c.lastErr = nil
	return report, nil
}

// State returns the current guard state.
func (c *FinalizationCoordinator) State() FinalizationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns how many times finalize has run.
func (c *FinalizationCoordinator) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Report returns the final report once finalized.
func (c *FinalizationCoordinator) Report() *models.AttendanceReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Reset cancels any pending timer and returns to idle.
func (c *FinalizationCoordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.generation++
	c.state = FinalizationIdle
	c.pending = ""
	c.attempts = 0
	c.report = nil
	c.lastErr = nil
}
