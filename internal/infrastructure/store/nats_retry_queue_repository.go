// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// NatsRetryQueueRepository stores queued submissions in the local bucket
// keyed by submission key.
type NatsRetryQueueRepository struct {
	base *NatsBaseRepository[models.RetryQueueEntry]
	kb   *KeyBuilder
}

var _ domain.RetryQueueRepository = (*NatsRetryQueueRepository)(nil)

// NewNatsRetryQueueRepository creates a retry queue repository on kv.
func NewNatsRetryQueueRepository(kv INatsKeyValue, kb *KeyBuilder) *NatsRetryQueueRepository {
	return &NatsRetryQueueRepository{
		base: NewNatsBaseRepository[models.RetryQueueEntry](kv, MsgpackCodec{}, "retry entry"),
		kb:   kb,
	}
}

func (r *NatsRetryQueueRepository) Get(ctx context.Context, submissionKey string) (*models.RetryQueueEntry, error) {
	return r.base.Get(ctx, r.kb.EntityKey(KeyPrefixRetry, submissionKey))
}

func (r *NatsRetryQueueRepository) Save(ctx context.Context, entry *models.RetryQueueEntry) error {
	if entry.SubmissionKey == "" {
		return domain.NewValidationError("retry entry submission key is required")
	}
	_, err := r.base.Put(ctx, r.kb.EntityKey(KeyPrefixRetry, entry.SubmissionKey), entry)
	return err
}

func (r *NatsRetryQueueRepository) Delete(ctx context.Context, submissionKey string) error {
	return r.base.Delete(ctx, r.kb.EntityKey(KeyPrefixRetry, submissionKey))
}

// List returns every queued entry, oldest first.
func (r *NatsRetryQueueRepository) List(ctx context.Context) ([]*models.RetryQueueEntry, error) {
	entries, err := r.base.ListEntities(ctx, r.kb.EntityPrefix(KeyPrefixRetry))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}
