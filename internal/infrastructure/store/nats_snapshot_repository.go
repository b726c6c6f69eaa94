// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// NatsSnapshotRepository keeps the latest live snapshot per session in the
// local bucket, msgpack encoded.
type NatsSnapshotRepository struct {
	base *NatsBaseRepository[models.LiveSnapshot]
	kb   *KeyBuilder
}

var _ domain.SnapshotRepository = (*NatsSnapshotRepository)(nil)

// NewNatsSnapshotRepository creates a snapshot repository on kv.
func NewNatsSnapshotRepository(kv INatsKeyValue, kb *KeyBuilder) *NatsSnapshotRepository {
	return &NatsSnapshotRepository{
		base: NewNatsBaseRepository[models.LiveSnapshot](kv, MsgpackCodec{}, "snapshot"),
		kb:   kb,
	}
}

func (r *NatsSnapshotRepository) Get(ctx context.Context, sessionKey string) (*models.LiveSnapshot, error) {
	return r.base.Get(ctx, r.kb.EntityKeyEncoded(KeyPrefixSnapshot, sessionKey))
}

func (r *NatsSnapshotRepository) Save(ctx context.Context, snapshot *models.LiveSnapshot) error {
	if snapshot.SessionKey == "" {
		return domain.NewValidationError("snapshot session key is required")
	}
	_, err := r.base.Put(ctx, r.kb.EntityKeyEncoded(KeyPrefixSnapshot, snapshot.SessionKey), snapshot)
	return err
}
