// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Get(ctx context.Context) (*models.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockSessionRepository) Save(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) Delete(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockHostLockRepository implements HostLockRepository for testing
type MockHostLockRepository struct {
	mock.Mock
}

func (m *MockHostLockRepository) Get(ctx context.Context) (*models.HostLock, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.HostLock), args.Error(1)
}

func (m *MockHostLockRepository) Save(ctx context.Context, lock *models.HostLock) error {
	args := m.Called(ctx, lock)
	return args.Error(0)
}

func (m *MockHostLockRepository) Delete(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockRetryQueueRepository implements RetryQueueRepository for testing
type MockRetryQueueRepository struct {
	mock.Mock
}

func (m *MockRetryQueueRepository) Get(ctx context.Context, submissionKey string) (*models.RetryQueueEntry, error) {
	args := m.Called(ctx, submissionKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RetryQueueEntry), args.Error(1)
}

func (m *MockRetryQueueRepository) Save(ctx context.Context, entry *models.RetryQueueEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRetryQueueRepository) Delete(ctx context.Context, submissionKey string) error {
	args := m.Called(ctx, submissionKey)
	return args.Error(0)
}

func (m *MockRetryQueueRepository) List(ctx context.Context) ([]*models.RetryQueueEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RetryQueueEntry), args.Error(1)
}
