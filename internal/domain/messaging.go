// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// Message represents a domain message interface
type Message interface {
	Subject() string
	Data() []byte
	Respond(data []byte) error
	HasReply() bool
}

// MessageHandler defines how the service handles incoming messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg Message)
	HandlerReady() bool
}

// AttendanceEventPublisher publishes engine events for display surfaces and
// operators.
type AttendanceEventPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot *models.LiveSnapshot) error
	PublishReportFinalized(ctx context.Context, report *models.AttendanceReport) error
	PublishSubmissionDropped(ctx context.Context, dropped *models.DroppedSubmission) error
	PublishNotice(ctx context.Context, notice models.NoticeMessage) error
}
