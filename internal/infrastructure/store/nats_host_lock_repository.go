// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// NatsHostLockRepository stores the host lock in the synchronized bucket.
type NatsHostLockRepository struct {
	base *NatsBaseRepository[models.HostLock]
	key  string
}

var _ domain.HostLockRepository = (*NatsHostLockRepository)(nil)

// NewNatsHostLockRepository creates a host lock repository on kv.
func NewNatsHostLockRepository(kv INatsKeyValue, kb *KeyBuilder) *NatsHostLockRepository {
	return &NatsHostLockRepository{
		base: NewNatsBaseRepository[models.HostLock](kv, JSONCodec{}, "host lock"),
		key:  kb.EntityKey(KeyPrefixHostLock, KeyCurrent),
	}
}

func (r *NatsHostLockRepository) Get(ctx context.Context) (*models.HostLock, error) {
	return r.base.Get(ctx, r.key)
}

func (r *NatsHostLockRepository) Save(ctx context.Context, lock *models.HostLock) error {
	_, err := r.base.Put(ctx, r.key, lock)
	return err
}

func (r *NatsHostLockRepository) Delete(ctx context.Context) error {
	return r.base.Delete(ctx, r.key)
}
