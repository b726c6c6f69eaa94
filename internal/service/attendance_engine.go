// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

// EngineDeps are the ports the engine is wired to.
type EngineDeps struct {
	Sessions    domain.SessionRepository
	HostLocks   domain.HostLockRepository
	Snapshots   domain.SnapshotRepository
	RetryQueue  domain.RetryQueueRepository
	Ledger      domain.SubmissionLedger
	DeadLetters domain.DeadLetterRepository
	Backend     domain.AttendanceBackend
	Publisher   domain.AttendanceEventPublisher
	Clock       scheduler.Scheduler
}

// AttendanceEngine reconciles observation ticks into participant records, a
// locked host and a final report. Every entry point runs as one atomic
// read-modify-write under mu; backend submissions happen outside it.
type AttendanceEngine struct {
	mu sync.Mutex

	config    ServiceConfig
	clock     scheduler.Scheduler
	snapshots domain.SnapshotRepository
	publisher domain.AttendanceEventPublisher
	tracer    trace.Tracer
	metrics   *engineMetrics

	resolver   *IdentityResolver
	detectors  []HostDetector
	classifier *StatusClassifier
	hostLocks  *HostLockManager
	sessions   *SessionManager
	submitter  *ReportSubmitter
	queue      *RetryQueue
	finalizer  *FinalizationCoordinator

	sessionKey        string
	roster            *Roster
	lastTickAt        time.Time
	lastParticipantAt time.Time
	visibilityTimer   scheduler.Timer
	periodic          []scheduler.Timer

	ready atomic.Bool
}

var _ Service = (*AttendanceEngine)(nil)

// NewAttendanceEngine wires the engine components together.
func NewAttendanceEngine(config ServiceConfig, deps EngineDeps) *AttendanceEngine {
	config = config.withDefaults()
	if deps.Clock == nil {
		deps.Clock = scheduler.NewReal()
	}

	e := &AttendanceEngine{
		config:     config,
		clock:      deps.Clock,
		snapshots:  deps.Snapshots,
		publisher:  deps.Publisher,
		tracer:     otel.Tracer(instrumentationName),
		metrics:    newEngineMetrics(),
		resolver:   NewIdentityResolver(),
		detectors:  DefaultHostDetectors(),
		classifier: NewStatusClassifier(config),
		hostLocks:  NewHostLockManager(deps.HostLocks, config),
		sessions:   NewSessionManager(deps.Sessions, deps.Clock),
		roster:     NewRoster(),
	}
	e.submitter = NewReportSubmitter(deps.Backend, deps.Publisher, deps.Clock, e.sessions.Token)
	e.queue = NewRetryQueue(RetryQueueDeps{
		Repo:        deps.RetryQueue,
		Ledger:      deps.Ledger,
		DeadLetters: deps.DeadLetters,
		Publisher:   deps.Publisher,
		Clock:       deps.Clock,
		Workers:     config.DrainWorkers,
	}, e.submitter.Deliver, e.onSettled)
	e.finalizer = NewFinalizationCoordinator(deps.Clock, e.finalize)
	return e
}

// Start restores persisted state and starts the periodic progress, drain and
// liveness timers.
func (e *AttendanceEngine) Start(ctx context.Context) error {
	if err := e.sessions.Load(ctx); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	e.mu.Lock()
	session := e.sessions.Status()
	if session.SessionKey != "" && !session.State.IsRest() {
		sessionCtx := logging.WithSessionKey(ctx, session.SessionKey)
		e.resetLocked(sessionCtx, session.SessionKey, e.clock.Now())
		e.restoreRosterLocked(sessionCtx, session.SessionKey)
	}
	bg := context.WithoutCancel(ctx)
	e.periodic = []scheduler.Timer{
		e.clock.Every(e.config.ProgressInterval, func() { e.SendProgress(bg) }),
		e.clock.Every(e.config.DrainInterval, func() { e.queue.Drain(bg) }),
		e.clock.Every(e.config.LivenessInterval, func() { e.CheckLiveness(bg) }),
	}
	e.mu.Unlock()

	e.ready.Store(true)
	slog.InfoContext(ctx, "attendance engine started",
		"progress_interval", e.config.ProgressInterval,
		"drain_interval", e.config.DrainInterval,
		"liveness_interval", e.config.LivenessInterval,
	)
	return nil
}

// Stop cancels the periodic timers.
func (e *AttendanceEngine) Stop() {
	e.ready.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range e.periodic {
		t.Stop()
	}
	e.periodic = nil
	e.stopVisibilityLocked()
}

// ServiceReady reports whether Start has completed.
func (e *AttendanceEngine) ServiceReady() bool {
	return e.ready.Load()
}

// resetLocked starts tracking a new session key. Caller holds e.mu.
func (e *AttendanceEngine) resetLocked(ctx context.Context, sessionKey string, now time.Time) {
	e.stopVisibilityLocked()
	e.finalizer.Reset()
	e.roster = NewRoster()
	e.sessionKey = sessionKey
	e.lastTickAt = now
	e.lastParticipantAt = now
	e.hostLocks.Restore(ctx, sessionKey, now)
	e.submitter.ResetNotice()
}

// restoreRosterLocked rebuilds the roster from the last live snapshot of
// sessionKey so a restart keeps accrued attendance. Caller holds e.mu.
func (e *AttendanceEngine) restoreRosterLocked(ctx context.Context, sessionKey string) {
	snapshot, err := e.snapshots.Get(ctx, sessionKey)
	if err != nil {
		if domain.GetErrorType(err) != domain.ErrorTypeNotFound {
			slog.WarnContext(ctx, "unable to load live snapshot, starting with an empty roster", logging.ErrKey, err)
		}
		return
	}
	if snapshot.SessionKey != sessionKey {
		return
	}

	roster := NewRoster()
	for _, rec := range snapshot.Participants {
		if rec == nil {
			continue
		}
		roster.Add(rec.Clone(), normalizeName(CleanDisplayName(rec.DisplayName)))
	}
	e.roster = roster
	slog.InfoContext(ctx, "roster restored from live snapshot",
		"participants", roster.Len(),
		"snapshot_updated_at", snapshot.UpdatedAt,
	)
}

func (e *AttendanceEngine) stopVisibilityLocked() {
	if e.visibilityTimer != nil {
		e.visibilityTimer.Stop()
		e.visibilityTimer = nil
	}
}

// finalizationStarted reports whether observations should no longer change
// the roster.
func (e *AttendanceEngine) finalizationStarted() bool {
	state := e.finalizer.State()
	return state == FinalizationFinalizing || state == FinalizationFinalized
}

// HandleTick applies one observation tick.
func (e *AttendanceEngine) HandleTick(ctx context.Context, tick *models.ObservationTick) error {
	if tick == nil || tick.SessionKey == "" {
		return domain.NewValidationError("observation tick requires a session key")
	}
	ctx = logging.WithSessionKey(ctx, tick.SessionKey)
	ctx, span := e.tracer.Start(ctx, "attendance.tick", trace.WithAttributes(
		attribute.String("session_key", tick.SessionKey),
		attribute.Int("observations", len(tick.Observations)),
	))
	defer span.End()

	e.mu.Lock()
	now := e.clock.Now()

	if tick.SessionKey != e.sessionKey {
		session := e.sessions.Status()
		if session.State == models.SessionActive && session.SessionKey != tick.SessionKey {
			e.mu.Unlock()
			err := domain.NewConflictError(
				fmt.Sprintf("session %q is active, ignoring tick", session.SessionKey),
				domain.ErrSessionBlocked,
			)
			span.SetStatus(codes.Error, "session blocked")
			e.notifyBlocked(ctx, tick.SessionKey, session.SessionKey)
			return err
		}
		slog.InfoContext(ctx, "tracking new session", "previous_session_key", e.sessionKey)
		e.resetLocked(ctx, tick.SessionKey, now)
	} else if e.finalizationStarted() {
		e.mu.Unlock()
		slog.DebugContext(ctx, "session finalized, ignoring tick")
		return nil
	}

	var sessionStart *time.Time
	if session := e.sessions.Status(); session.SessionKey == tick.SessionKey && !session.State.IsRest() {
		sessionStart = session.StartedAt
	}

	resolved := e.resolver.Resolve(ctx, tick.Observations, e.roster)
	e.classifier.Observe(e.roster, resolved, sessionStart, now)

	seen := make(map[string]struct{}, len(resolved))
	for _, obs := range resolved {
		seen[obs.IdentityKey] = struct{}{}
	}

	var candidate *models.HostIdentity
	detected, reason := DetectHost(e.detectors, resolved, tick.Signals)
	if detected != nil {
		candidate = &models.HostIdentity{IdentityKey: detected.IdentityKey, DisplayName: detected.CleanName}
	}

	lockedSeen, lockedLastSeen := false, time.Time{}
	if lock := e.hostLocks.Lock(); lock.IsLocked() {
		_, lockedSeen = seen[lock.LockedIdentity.IdentityKey]
		if rec := e.roster.Get(lock.LockedIdentity.IdentityKey); rec != nil {
			lockedLastSeen = rec.LastSeenAt
		}
	}
	outcome := e.hostLocks.Observe(ctx, candidate, reason, lockedSeen, lockedLastSeen, now)
	lock := e.hostLocks.Lock()
	if lock.IsLocked() {
		e.roster.SetHost(lock.LockedIdentity.IdentityKey)
	}

	var (
		hostAbsent bool
		blockedBy  string
	)
	switch outcome.Event {
	case HostLockPromoted:
		e.metrics.hostLock(ctx, "promoted")
		if _, err := e.sessions.Start(ctx, tick.SessionKey); err != nil {
			slog.WarnContext(ctx, "host locked but session could not start", logging.ErrKey, err)
			if errors.Is(err, domain.ErrSessionBlocked) {
				blockedBy = e.sessions.Status().SessionKey
			}
		}
	case HostLockLeft:
		e.metrics.hostLock(ctx, "left")
		e.classifier.HostDeparted(e.roster, hostPresence(lock))
	case HostLockUnlocked:
		e.metrics.hostLock(ctx, "unlocked")
		e.classifier.HostDeparted(e.roster, hostPresence(lock))
		hostAbsent = true
	case HostLockReturned:
		e.metrics.hostLock(ctx, "returned")
	}

	for _, rec := range e.classifier.MarkMissing(e.roster, seen, hostPresence(lock)) {
		slog.DebugContext(logging.WithIdentityKey(ctx, rec.IdentityKey), "participant departed",
			"status", rec.Status,
			"attended_seconds", rec.AttendedSeconds,
		)
	}

	live := e.roster.LiveCount()
	e.sessions.UpdateParticipantCount(ctx, live)
	e.sessions.RefreshToken(ctx)
	e.lastTickAt = now
	if live > 0 {
		e.lastParticipantAt = now
	}
	snapshot := e.snapshotLocked(now)
	e.mu.Unlock()

	e.metrics.tick(ctx, live)
	e.storeSnapshot(ctx, snapshot)

	if blockedBy != "" {
		e.notifyBlocked(ctx, tick.SessionKey, blockedBy)
	}
	if hostAbsent {
		e.finalizer.Signal(ctx, SignalHostAbsent)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// snapshotLocked builds the live snapshot. Caller holds e.mu.
func (e *AttendanceEngine) snapshotLocked(now time.Time) *models.LiveSnapshot {
	snapshot := &models.LiveSnapshot{
		SessionKey:       e.sessionKey,
		UpdatedAt:        now,
		ParticipantCount: e.roster.LiveCount(),
		Participants:     e.roster.Snapshot(),
	}
	if lock := e.hostLocks.Lock(); lock.IsLocked() {
		info := *lock.LockedIdentity
		snapshot.HostLocked = true
		snapshot.LockedHostInfo = &info
	}
	return snapshot
}

func (e *AttendanceEngine) storeSnapshot(ctx context.Context, snapshot *models.LiveSnapshot) {
	if err := e.snapshots.Save(ctx, snapshot); err != nil {
		slog.WarnContext(ctx, "unable to store live snapshot", logging.ErrKey, err)
	}
	if err := e.publisher.PublishSnapshot(ctx, snapshot); err != nil {
		slog.WarnContext(ctx, "unable to publish live snapshot", logging.ErrKey, err)
	}
}

func (e *AttendanceEngine) notifyBlocked(ctx context.Context, requested, active string) {
	slog.WarnContext(ctx, "session blocked by another active session", "active_session_key", active)
	err := e.publisher.PublishNotice(ctx, models.NoticeMessage{
		Kind:       models.NoticeSessionBlocked,
		SessionKey: requested,
		Message:    fmt.Sprintf("Another meeting (%s) is already being tracked.", active),
		SentAt:     e.clock.Now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "unable to publish notice", logging.ErrKey, err)
	}
}

// buildReportLocked assembles a report from the roster. Caller holds e.mu.
func (e *AttendanceEngine) buildReportLocked(kind models.ReportKind, now time.Time) *models.AttendanceReport {
	session := e.sessions.Status()
	report := &models.AttendanceReport{
		Kind:         kind,
		SessionKey:   e.sessionKey,
		GeneratedAt:  now,
		Participants: e.roster.Snapshot(),
	}

	keyDate := now
	if session.SessionKey == e.sessionKey && session.StartedAt != nil {
		report.SessionStartedAt = session.StartedAt
		keyDate = *session.StartedAt
	}
	report.SubmissionKey = models.SubmissionKey(kind, e.sessionKey, keyDate)

	if host := e.roster.Host(); host != nil {
		report.Host = &models.HostIdentity{IdentityKey: host.IdentityKey, DisplayName: host.DisplayName}
	}
	return report
}

// finalize closes the roster and dispatches the final report. It only fails
// when the report could neither be submitted nor queued.
func (e *AttendanceEngine) finalize(ctx context.Context, signal FinalizeSignal) (*models.AttendanceReport, error) {
	e.mu.Lock()
	sessionKey := e.sessionKey
	if sessionKey == "" {
		e.mu.Unlock()
		return nil, domain.NewValidationError("no session to finalize")
	}
	ctx = logging.WithSessionKey(ctx, sessionKey)
	ctx, span := e.tracer.Start(ctx, "attendance.finalize", trace.WithAttributes(
		attribute.String("session_key", sessionKey),
		attribute.String("signal", string(signal)),
	))
	defer span.End()

	now := e.clock.Now()
	e.stopVisibilityLocked()
	e.classifier.CloseAll(e.roster, now)
	report := e.buildReportLocked(models.ReportFinal, now)
	snapshot := e.snapshotLocked(now)
	e.mu.Unlock()

	e.sessions.BeginEnding(ctx, sessionKey)
	e.storeSnapshot(ctx, snapshot)
	e.metrics.finalize(ctx, signal)

	switch {
	case e.queue.Delivered(ctx, report.SubmissionKey):
		slog.InfoContext(ctx, "final report already delivered", "submission_key", report.SubmissionKey)
		e.metrics.submission(ctx, constants.FinalEndpoint, submissionResultSkipped)
		e.sessions.MarkEnded(ctx)
	default:
		if err := e.submitter.Submit(ctx, report); err != nil {
			if qErr := e.enqueue(ctx, report); qErr != nil {
				span.SetStatus(codes.Error, "final report lost")
				return nil, errors.Join(err, qErr)
			}
			break
		}
		e.queue.RecordDelivered(ctx, report.SubmissionKey, constants.FinalEndpoint)
		e.sessions.MarkEnded(ctx)
	}

	if err := e.publisher.PublishReportFinalized(ctx, report); err != nil {
		slog.WarnContext(ctx, "unable to publish final report", logging.ErrKey, err)
	}
	slog.InfoContext(ctx, "session finalized",
		"signal", signal,
		"participants", len(report.Participants),
		"submission_key", report.SubmissionKey,
	)
	span.SetStatus(codes.Ok, "")
	return report, nil
}

func (e *AttendanceEngine) enqueue(ctx context.Context, report *models.AttendanceReport) error {
	payload, err := Encode(report)
	if err != nil {
		return err
	}
	endpoint := EndpointFor(report.Kind)
	if err := e.queue.Enqueue(ctx, report.SubmissionKey, endpoint, payload); err != nil {
		slog.ErrorContext(ctx, "unable to queue report",
			logging.ErrKey, err,
			"submission_key", report.SubmissionKey,
			logging.PriorityCritical(),
		)
		return err
	}
	e.metrics.submission(ctx, endpoint, submissionResultQueued)
	return nil
}

// onSettled ends the session once its queued final report left the queue.
func (e *AttendanceEngine) onSettled(ctx context.Context, entry *models.RetryQueueEntry, delivered bool) {
	if entry.Endpoint != constants.FinalEndpoint {
		return
	}
	if !delivered {
		slog.ErrorContext(ctx, "final report could not be delivered",
			"submission_key", entry.SubmissionKey,
			logging.PriorityCritical(),
		)
	}
	if e.sessions.Status().State == models.SessionEnding {
		e.sessions.MarkEnded(ctx)
	}
}

// SendProgress submits a progress report for the active session, queueing
// it when the backend is unreachable.
func (e *AttendanceEngine) SendProgress(ctx context.Context) {
	e.mu.Lock()
	session := e.sessions.Status()
	if e.sessionKey == "" || !session.IsActiveFor(e.sessionKey) || e.roster.Len() == 0 || e.finalizationStarted() {
		e.mu.Unlock()
		return
	}
	report := e.buildReportLocked(models.ReportProgress, e.clock.Now())
	e.mu.Unlock()

	ctx = logging.WithSessionKey(ctx, report.SessionKey)
	if err := e.submitter.Submit(ctx, report); err != nil {
		_ = e.enqueue(ctx, report)
	}
}

// DrainQueue runs one retry queue pass.
func (e *AttendanceEngine) DrainQueue(ctx context.Context) DrainResult {
	return e.queue.Drain(ctx)
}

// CheckLiveness ends sessions stuck in ending and signals finalization when
// ticks stopped arriving or the meeting has been empty for too long.
func (e *AttendanceEngine) CheckLiveness(ctx context.Context) {
	now := e.clock.Now()
	session := e.sessions.Status()
	if session.State == models.SessionEnding && session.EndingSince != nil &&
		now.Sub(*session.EndingSince) > e.config.EndingTimeout {
		slog.WarnContext(ctx, "session stuck ending, marking ended",
			logging.SessionKeyAttr, session.SessionKey,
			"ending_since", session.EndingSince,
		)
		e.sessions.MarkEnded(ctx)
	}

	e.mu.Lock()
	sessionKey := e.sessionKey
	tracking := sessionKey != "" && (session.IsActiveFor(sessionKey) || e.roster.Len() > 0) && !e.finalizationStarted()
	staleTicks := now.Sub(e.lastTickAt) > e.config.StaleTickTimeout
	empty := now.Sub(e.lastParticipantAt) > e.config.EmptyMeetingTimeout
	e.mu.Unlock()

	if !tracking || (!staleTicks && !empty) {
		return
	}
	ctx = logging.WithSessionKey(ctx, sessionKey)
	slog.InfoContext(ctx, "session looks stale", "no_ticks", staleTicks, "empty", empty)
	e.finalizer.Signal(ctx, SignalLivenessStale)
}

// SetVisibility tracks whether the meeting view is hidden. Staying hidden
// for VisibilityLossThreshold signals finalization.
func (e *AttendanceEngine) SetVisibility(ctx context.Context, msg models.VisibilityMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sessionKey == "" || (msg.SessionKey != "" && msg.SessionKey != e.sessionKey) {
		return
	}
	if !msg.Hidden {
		e.stopVisibilityLocked()
		return
	}
	if e.visibilityTimer != nil {
		return
	}

	ctx = logging.WithSessionKey(context.WithoutCancel(ctx), e.sessionKey)
	var timer scheduler.Timer
	timer = e.clock.AfterFunc(e.config.VisibilityLossThreshold, func() {
		e.mu.Lock()
		current := e.visibilityTimer == timer
		if current {
			e.visibilityTimer = nil
		}
		e.mu.Unlock()
		if current {
			e.finalizer.Signal(ctx, SignalVisibilityLost)
		}
	})
	e.visibilityTimer = timer
}

// Signal forwards an end-of-meeting signal for sessionKey. An empty key
// means the tracked session.
func (e *AttendanceEngine) Signal(ctx context.Context, sessionKey string, signal FinalizeSignal) bool {
	e.mu.Lock()
	tracked := e.sessionKey
	e.mu.Unlock()

	if tracked == "" || (sessionKey != "" && sessionKey != tracked) {
		slog.DebugContext(ctx, "ignoring signal for untracked session", "signal", signal, logging.SessionKeyAttr, sessionKey)
		return false
	}
	return e.finalizer.Signal(logging.WithSessionKey(ctx, tracked), signal)
}

// EndNow finalizes immediately and returns the final report.
func (e *AttendanceEngine) EndNow(ctx context.Context) (*models.AttendanceReport, error) {
	e.mu.Lock()
	tracked := e.sessionKey
	e.mu.Unlock()
	if tracked == "" {
		return nil, domain.NewNotFoundError("no session to end")
	}
	return e.finalizer.FinalizeNow(logging.WithSessionKey(ctx, tracked), SignalEndNow)
}

// StartSession explicitly starts a session for sessionKey.
func (e *AttendanceEngine) StartSession(ctx context.Context, sessionKey string) (*models.Session, error) {
	ctx = logging.WithSessionKey(ctx, sessionKey)

	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.sessions.Start(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	if e.sessionKey != sessionKey {
		e.resetLocked(ctx, sessionKey, e.clock.Now())
	}
	return session, nil
}

// Clear forgets the session, the roster and the host lock. Queued
// submissions are kept.
func (e *AttendanceEngine) Clear(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopVisibilityLocked()
	e.finalizer.Reset()
	e.roster = NewRoster()
	e.sessionKey = ""
	e.hostLocks.Clear(ctx)
	e.sessions.Clear(ctx)
	e.submitter.ResetNotice()
	slog.InfoContext(ctx, "session cleared")
}

// Status describes the session, its live snapshot and the queue.
func (e *AttendanceEngine) Status(ctx context.Context) *models.StatusResponse {
	e.mu.Lock()
	var snapshot *models.LiveSnapshot
	if e.sessionKey != "" {
		snapshot = e.snapshotLocked(e.clock.Now())
	}
	e.mu.Unlock()

	return &models.StatusResponse{
		Session:      e.sessions.Status(),
		Snapshot:     snapshot,
		Finalization: string(e.finalizer.State()),
		QueueLength:  e.queue.Len(ctx),
	}
}
