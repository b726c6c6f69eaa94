// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
)

// MockAttendanceBackend implements AttendanceBackend for testing
type MockAttendanceBackend struct {
	mock.Mock
}

func (m *MockAttendanceBackend) Submit(ctx context.Context, submission domain.Submission) error {
	args := m.Called(ctx, submission)
	return args.Error(0)
}
