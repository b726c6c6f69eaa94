// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package messaging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/messaging"

// INatsConn is the subset of *nats.Conn the publisher needs.
type INatsConn interface {
	IsConnected() bool
	Publish(subj string, data []byte) error
}

// MessageBuilder publishes attendance events to NATS.
type MessageBuilder struct {
	NatsConn INatsConn
}

var _ domain.AttendanceEventPublisher = (*MessageBuilder)(nil)

// NewMessageBuilder creates a new MessageBuilder.
func NewMessageBuilder(natsConn INatsConn) *MessageBuilder {
	return &MessageBuilder{
		NatsConn: natsConn,
	}
}

// publish sends data to subject. A disconnected client is reported as
// unavailable instead of buffering, since every event is superseded by the
// next tick.
func (m *MessageBuilder) publish(ctx context.Context, subject string, data []byte) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "nats"),
			attribute.String("messaging.destination.name", subject),
			attribute.Int("messaging.message.body.size", len(data)),
		),
	)
	defer span.End()

	if m.NatsConn == nil || !m.NatsConn.IsConnected() {
		err := domain.NewUnavailableError("NATS connection is not available")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := m.NatsConn.Publish(subject, data); err != nil {
		slog.ErrorContext(ctx, "error sending message to NATS", logging.ErrKey, err, "subject", subject)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.NewUnavailableError("failed to publish message", err)
	}

	slog.DebugContext(ctx, "sent message to NATS", "subject", subject)
	span.SetStatus(codes.Ok, "")
	return nil
}

func (m *MessageBuilder) publishJSON(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "error marshalling data into JSON", logging.ErrKey, err, "subject", subject)
		return domain.NewInternalError("failed to marshal message", err)
	}
	return m.publish(ctx, subject, data)
}

// PublishSnapshot sends the per-tick live snapshot.
func (m *MessageBuilder) PublishSnapshot(ctx context.Context, snapshot *models.LiveSnapshot) error {
	return m.publishJSON(ctx, models.SnapshotSubject, snapshot)
}

// PublishReportFinalized sends the final report once per session.
func (m *MessageBuilder) PublishReportFinalized(ctx context.Context, report *models.AttendanceReport) error {
	slog.DebugContext(ctx, "publishing finalized report",
		"submission_key", report.SubmissionKey,
		"participants", len(report.Participants),
	)
	return m.publishJSON(ctx, models.ReportFinalizedSubject, report)
}

// PublishSubmissionDropped sends the dead letter of a submission that
// exhausted its attempts.
func (m *MessageBuilder) PublishSubmissionDropped(ctx context.Context, dropped *models.DroppedSubmission) error {
	return m.publishJSON(ctx, models.SubmissionDroppedSubject, dropped)
}

// PublishNotice sends a one-time notice for the operator.
func (m *MessageBuilder) PublishNotice(ctx context.Context, notice models.NoticeMessage) error {
	return m.publishJSON(ctx, models.NoticeSubject, notice)
}
