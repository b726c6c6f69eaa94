// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

// TokenSource returns the current session token, if any.
type TokenSource func() (tokenID string, expiresAt *time.Time, ok bool)

// ReportSubmitter sends reports to the backend, attaching the session token
// when one is valid and degrading to an unauthenticated submission otherwise.
type ReportSubmitter struct {
	backend   domain.AttendanceBackend
	publisher domain.AttendanceEventPublisher
	clock     scheduler.Scheduler
	tokens    TokenSource
	metrics   *engineMetrics

	mu       sync.Mutex
	notified bool
}

// NewReportSubmitter creates a ReportSubmitter.
func NewReportSubmitter(
	backend domain.AttendanceBackend,
	publisher domain.AttendanceEventPublisher,
	clock scheduler.Scheduler,
	tokens TokenSource,
) *ReportSubmitter {
	return &ReportSubmitter{
		backend:   backend,
		publisher: publisher,
		clock:     clock,
		tokens:    tokens,
		metrics:   newEngineMetrics(),
	}
}

// EndpointFor returns the backend endpoint of a report kind.
func EndpointFor(kind models.ReportKind) string {
	if kind == models.ReportFinal {
		return constants.FinalEndpoint
	}
	return constants.ProgressEndpoint
}

// Encode serializes a report without credentials, as stored in the retry queue.
func Encode(report *models.AttendanceReport) ([]byte, error) {
	r := *report
	r.TokenID = ""
	r.TokenExpiresAt = nil
	r.IsUnauthenticated = false
	return json.Marshal(&r)
}

// Submit sends report. A conflict from the backend means the submission key
// was already accepted and counts as success. An authorization failure is
// retried once without credentials.
func (s *ReportSubmitter) Submit(ctx context.Context, report *models.AttendanceReport) error {
	r := *report
	endpoint := EndpointFor(r.Kind)

	bearer := ""
	if tokenID, expiresAt, ok := s.tokens(); ok {
		r.TokenID = tokenID
		r.TokenExpiresAt = expiresAt
		r.IsUnauthenticated = false
		bearer = tokenID
	} else {
		s.markUnauthenticated(ctx, &r)
	}

	err := s.send(ctx, endpoint, &r, bearer)
	if err != nil && bearer != "" && domain.GetErrorType(err) == domain.ErrorTypeUnauthorized {
		slog.WarnContext(ctx, "session token rejected, resubmitting unauthenticated",
			logging.ErrKey, err,
			"submission_key", r.SubmissionKey,
		)
		s.markUnauthenticated(ctx, &r)
		err = s.send(ctx, endpoint, &r, "")
	}
	return err
}

func (s *ReportSubmitter) send(ctx context.Context, endpoint string, r *models.AttendanceReport, bearer string) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return domain.NewValidationError("failed to encode report", err)
	}

	err = s.backend.Submit(ctx, domain.Submission{
		Endpoint:      endpoint,
		SubmissionKey: r.SubmissionKey,
		Payload:       payload,
		BearerToken:   bearer,
	})
	if err != nil && domain.GetErrorType(err) == domain.ErrorTypeConflict {
		slog.InfoContext(ctx, "submission already accepted by backend", "submission_key", r.SubmissionKey)
		err = nil
	}

	if err != nil {
		s.metrics.submission(ctx, endpoint, submissionResultFailed)
		slog.WarnContext(ctx, "report submission failed",
			logging.ErrKey, err,
			"endpoint", endpoint,
			"submission_key", r.SubmissionKey,
		)
		return err
	}
	s.metrics.submission(ctx, endpoint, submissionResultDelivered)
	slog.DebugContext(ctx, "report submitted",
		"endpoint", endpoint,
		"submission_key", r.SubmissionKey,
		"unauthenticated", r.IsUnauthenticated,
	)
	return nil
}

// Deliver resubmits a queued report.
func (s *ReportSubmitter) Deliver(ctx context.Context, entry *models.RetryQueueEntry) error {
	var report models.AttendanceReport
	if err := json.Unmarshal(entry.Payload, &report); err != nil {
		return domain.NewValidationError("queued report is not valid JSON", err)
	}
	if report.SubmissionKey == "" {
		report.SubmissionKey = entry.SubmissionKey
	}
	return s.Submit(ctx, &report)
}

// markUnauthenticated strips credentials and raises the unauthenticated
// notice the first time it happens.
func (s *ReportSubmitter) markUnauthenticated(ctx context.Context, r *models.AttendanceReport) {
	r.IsUnauthenticated = true
	r.TokenID = ""
	r.TokenExpiresAt = nil

	s.mu.Lock()
	first := !s.notified
	s.notified = true
	s.mu.Unlock()
	if !first {
		return
	}

	slog.WarnContext(ctx, "submitting attendance without a session token")
	notice := models.NoticeMessage{
		Kind:       models.NoticeUnauthenticated,
		SessionKey: r.SessionKey,
		Message:    "Attendance is being submitted without a session token.",
		SentAt:     s.clock.Now(),
	}
	if err := s.publisher.PublishNotice(ctx, notice); err != nil {
		slog.WarnContext(ctx, "unable to publish notice", logging.ErrKey, err)
	}
}

// ResetNotice allows the unauthenticated notice to be raised again, e.g.
// for a new session.
func (s *ReportSubmitter) ResetNotice() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified = false
}
