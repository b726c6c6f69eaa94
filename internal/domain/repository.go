// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// SessionRepository persists the client's single session in the
// synchronized scope. Get returns a not found error when nothing is stored.
type SessionRepository interface {
	Get(ctx context.Context) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context) error
}

// HostLockRepository persists the host lock in the synchronized scope.
type HostLockRepository interface {
	Get(ctx context.Context) (*models.HostLock, error)
	Save(ctx context.Context, lock *models.HostLock) error
	Delete(ctx context.Context) error
}

// SnapshotRepository keeps the latest live snapshot per session key in the
// local scope.
type SnapshotRepository interface {
	Get(ctx context.Context, sessionKey string) (*models.LiveSnapshot, error)
	Save(ctx context.Context, snapshot *models.LiveSnapshot) error
}

// RetryQueueRepository stores pending submissions keyed by submission key, so
// saving an entry for a key already queued replaces it.
type RetryQueueRepository interface {
	Get(ctx context.Context, submissionKey string) (*models.RetryQueueEntry, error)
	Save(ctx context.Context, entry *models.RetryQueueEntry) error
	Delete(ctx context.Context, submissionKey string) error
	List(ctx context.Context) ([]*models.RetryQueueEntry, error)
}

// SubmissionLedger records submission keys the backend has accepted.
type SubmissionLedger interface {
	Record(ctx context.Context, record *models.SubmissionRecord) error
	Has(ctx context.Context, submissionKey string) (bool, error)
}

// DeadLetterRepository keeps submissions dropped after every attempt failed.
type DeadLetterRepository interface {
	Save(ctx context.Context, dropped *models.DroppedSubmission) error
	List(ctx context.Context) ([]*models.DroppedSubmission, error)
}
