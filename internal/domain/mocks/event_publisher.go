// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// MockAttendanceEventPublisher implements AttendanceEventPublisher for testing
type MockAttendanceEventPublisher struct {
	mock.Mock
}

func (m *MockAttendanceEventPublisher) PublishSnapshot(ctx context.Context, snapshot *models.LiveSnapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockAttendanceEventPublisher) PublishReportFinalized(ctx context.Context, report *models.AttendanceReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

func (m *MockAttendanceEventPublisher) PublishSubmissionDropped(ctx context.Context, dropped *models.DroppedSubmission) error {
	args := m.Called(ctx, dropped)
	return args.Error(0)
}

func (m *MockAttendanceEventPublisher) PublishNotice(ctx context.Context, notice models.NoticeMessage) error {
	args := m.Called(ctx, notice)
	return args.Error(0)
}

// NewPermissiveEventPublisher returns a publisher mock that accepts every
// event, for tests that only assert on engine state.
func NewPermissiveEventPublisher() *MockAttendanceEventPublisher {
	m := &MockAttendanceEventPublisher{}
	m.On("PublishSnapshot", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishReportFinalized", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishSubmissionDropped", mock.Anything, mock.Anything).Return(nil).Maybe()
	m.On("PublishNotice", mock.Anything, mock.Anything).Return(nil).Maybe()
	return m
}
