// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/concurrent"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

// DeliverFunc attempts one delivery of a queued submission.
type DeliverFunc func(ctx context.Context, entry *models.RetryQueueEntry) error

// SettleFunc is told when a queued submission leaves the queue, either
// delivered or dropped.
type SettleFunc func(ctx context.Context, entry *models.RetryQueueEntry, delivered bool)

// DrainResult summarizes one Drain pass.
type DrainResult struct {
	Attempted int
	Delivered int
	Failed    int
	Dropped   int
}

// RetryQueue persists failed submissions and re-delivers them with
// exponential backoff until they succeed or run out of attempts.
type RetryQueue struct {
	repo        domain.RetryQueueRepository
	ledger      domain.SubmissionLedger
	deadLetters domain.DeadLetterRepository
	publisher   domain.AttendanceEventPublisher
	clock       scheduler.Scheduler
	pool        *concurrent.WorkerPool
	metrics     *engineMetrics

	deliver   DeliverFunc
	onSettled SettleFunc

	draining sync.Mutex
}

// RetryQueueDeps are the stores and collaborators of a RetryQueue.
type RetryQueueDeps struct {
	Repo        domain.RetryQueueRepository
	Ledger      domain.SubmissionLedger
	DeadLetters domain.DeadLetterRepository
	Publisher   domain.AttendanceEventPublisher
	Clock       scheduler.Scheduler
	Workers     int
}

// NewRetryQueue creates a RetryQueue. deliver must be set before Drain.
func NewRetryQueue(deps RetryQueueDeps, deliver DeliverFunc, onSettled SettleFunc) *RetryQueue {
	return &RetryQueue{
		repo:        deps.Repo,
		ledger:      deps.Ledger,
		deadLetters: deps.DeadLetters,
		publisher:   deps.Publisher,
		clock:       deps.Clock,
		pool:        concurrent.NewWorkerPool(deps.Workers),
		metrics:     newEngineMetrics(),
		deliver:     deliver,
		onSettled:   onSettled,
	}
}

// backoff is the delay before the next attempt after attempts failures.
func backoff(attempts int) time.Duration {
	if attempts < 1 {
		return constants.RetryBaseDelay
	}
	return constants.RetryBaseDelay << (attempts - 1)
}

// Delivered reports whether submissionKey has already been accepted.
func (q *RetryQueue) Delivered(ctx context.Context, submissionKey string) bool {
	has, err := q.ledger.Has(ctx, submissionKey)
	if err != nil {
		slog.WarnContext(ctx, "unable to check submission ledger", logging.ErrKey, err)
		return false
	}
	return has
}

// RecordDelivered adds a final submission to the ledger.
func (q *RetryQueue) RecordDelivered(ctx context.Context, submissionKey, endpoint string) {
	if endpoint != constants.FinalEndpoint {
		return
	}
	err := q.ledger.Record(ctx, &models.SubmissionRecord{
		SubmissionKey: submissionKey,
		Endpoint:      endpoint,
		DeliveredAt:   q.clock.Now(),
	})
	if err != nil {
		slog.WarnContext(ctx, "unable to record delivered submission",
			logging.ErrKey, err,
			"submission_key", submissionKey,
		)
	}
}

// Enqueue stores a submission for later delivery. Keys already delivered are
// skipped. Re-enqueueing a queued key replaces its payload and keeps its
// attempt count and schedule.
func (q *RetryQueue) Enqueue(ctx context.Context, submissionKey, endpoint string, payload []byte) error {
	if submissionKey == "" {
		return domain.NewValidationError("submission key is required")
	}
	if q.Delivered(ctx, submissionKey) {
		slog.DebugContext(ctx, "submission already delivered, not queueing", "submission_key", submissionKey)
		return nil
	}

	existing, err := q.repo.Get(ctx, submissionKey)
	switch {
	case err == nil:
		existing.Endpoint = endpoint
		existing.Payload = payload
		if errSave := q.repo.Save(ctx, existing); errSave != nil {
			return errSave
		}
		slog.DebugContext(ctx, "queued submission replaced", "submission_key", submissionKey)
		return nil
	case domain.GetErrorType(err) != domain.ErrorTypeNotFound:
		return err
	}

	now := q.clock.Now()
	entry := &models.RetryQueueEntry{
		ID:            uuid.NewString(),
		SubmissionKey: submissionKey,
		Endpoint:      endpoint,
		Payload:       payload,
		NextRetryAt:   now.Add(backoff(0)),
		CreatedAt:     now,
	}
	if err := q.repo.Save(ctx, entry); err != nil {
		return err
	}
	slog.InfoContext(ctx, "submission queued for retry",
		"submission_key", submissionKey,
		"endpoint", endpoint,
		"next_retry_at", entry.NextRetryAt,
	)
	return nil
}

// Len returns the number of queued submissions.
func (q *RetryQueue) Len(ctx context.Context) int {
	entries, err := q.repo.List(ctx)
	if err != nil {
		return 0
	}
	return len(entries)
}

// Drain delivers every due entry concurrently. Only one Drain runs at a
// time; an overlapping call returns immediately.
func (q *RetryQueue) Drain(ctx context.Context) DrainResult {
	var result DrainResult
	if !q.draining.TryLock() {
		return result
	}
	defer q.draining.Unlock()

	entries, err := q.repo.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "unable to list retry queue", logging.ErrKey, err)
		return result
	}

	now := q.clock.Now()
	due := make([]*models.RetryQueueEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDue(now) {
			due = append(due, entry)
		}
	}
	if len(due) == 0 {
		return result
	}

	jobs := make([]func(context.Context) error, len(due))
	for i, entry := range due {
		jobs[i] = func(ctx context.Context) error {
			return q.deliver(ctx, entry)
		}
	}
	errs := q.pool.RunEach(ctx, jobs...)

	result.Attempted = len(due)
	for i, entry := range due {
		if errs[i] == nil {
			q.settleDelivered(ctx, entry)
			result.Delivered++
			continue
		}
		if q.settleFailed(ctx, entry, errs[i]) {
			result.Dropped++
		} else {
			result.Failed++
		}
	}

	slog.DebugContext(ctx, "retry queue drained",
		"attempted", result.Attempted,
		"delivered", result.Delivered,
		"failed", result.Failed,
		"dropped", result.Dropped,
	)
	return result
}

// current re-reads an entry after delivery, since Enqueue may have replaced
// its payload meanwhile.
func (q *RetryQueue) current(ctx context.Context, entry *models.RetryQueueEntry) *models.RetryQueueEntry {
	latest, err := q.repo.Get(ctx, entry.SubmissionKey)
	if err != nil {
		return nil
	}
	return latest
}

func (q *RetryQueue) settleDelivered(ctx context.Context, entry *models.RetryQueueEntry) {
	q.RecordDelivered(ctx, entry.SubmissionKey, entry.Endpoint)

	latest := q.current(ctx, entry)
	if latest != nil && !bytes.Equal(latest.Payload, entry.Payload) {
		// a newer payload arrived during delivery and still needs sending
		return
	}
	if err := q.repo.Delete(ctx, entry.SubmissionKey); err != nil {
		slog.WarnContext(ctx, "unable to remove delivered entry", logging.ErrKey, err)
	}
	slog.InfoContext(ctx, "queued submission delivered",
		"submission_key", entry.SubmissionKey,
		"attempts", entry.AttemptCount+1,
	)
	if q.onSettled != nil {
		q.onSettled(ctx, entry, true)
	}
}

// settleFailed records a failed attempt and reports whether the entry was dropped.
func (q *RetryQueue) settleFailed(ctx context.Context, entry *models.RetryQueueEntry, deliverErr error) bool {
	if latest := q.current(ctx, entry); latest != nil {
		entry = latest
	}
	entry.AttemptCount++
	entry.LastError = deliverErr.Error()

	// a rejected payload fails the same way on every attempt
	if entry.AttemptCount >= constants.MaxRetryAttempts || !domain.IsRetryable(deliverErr) {
		q.drop(ctx, entry)
		return true
	}

	now := q.clock.Now()
	entry.NextRetryAt = now.Add(backoff(entry.AttemptCount))
	if err := q.repo.Save(ctx, entry); err != nil {
		slog.WarnContext(ctx, "unable to reschedule queued submission", logging.ErrKey, err)
	}
	slog.WarnContext(ctx, "queued submission failed, backing off",
		logging.ErrKey, deliverErr,
		"submission_key", entry.SubmissionKey,
		"attempt", entry.AttemptCount,
		"next_retry_at", entry.NextRetryAt,
	)
	return false
}

func (q *RetryQueue) drop(ctx context.Context, entry *models.RetryQueueEntry) {
	if err := q.repo.Delete(ctx, entry.SubmissionKey); err != nil {
		slog.WarnContext(ctx, "unable to remove dropped entry", logging.ErrKey, err)
	}

	dropped := &models.DroppedSubmission{
		Entry:     *entry,
		DroppedAt: q.clock.Now(),
		Reason:    entry.LastError,
	}
	if err := q.deadLetters.Save(ctx, dropped); err != nil {
		slog.WarnContext(ctx, "unable to store dead letter", logging.ErrKey, err)
	}
	if err := q.publisher.PublishSubmissionDropped(ctx, dropped); err != nil {
		slog.WarnContext(ctx, "unable to publish dropped submission", logging.ErrKey, err)
	}
	q.metrics.dropped(ctx, entry.Endpoint)

	slog.ErrorContext(ctx, "submission dropped",
		"submission_key", entry.SubmissionKey,
		"endpoint", entry.Endpoint,
		"attempts", entry.AttemptCount,
		"last_error", entry.LastError,
		logging.PriorityCritical(),
	)
	if q.onSettled != nil {
		q.onSettled(ctx, entry, false)
	}
}
