// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// NatsSessionRepository stores the client session in the synchronized bucket.
type NatsSessionRepository struct {
	base *NatsBaseRepository[models.Session]
	key  string
}

var _ domain.SessionRepository = (*NatsSessionRepository)(nil)

// NewNatsSessionRepository creates a session repository on kv.
func NewNatsSessionRepository(kv INatsKeyValue, kb *KeyBuilder) *NatsSessionRepository {
	return &NatsSessionRepository{
		base: NewNatsBaseRepository[models.Session](kv, JSONCodec{}, "session"),
		key:  kb.EntityKey(KeyPrefixSession, KeyCurrent),
	}
}

func (r *NatsSessionRepository) Get(ctx context.Context) (*models.Session, error) {
	return r.base.Get(ctx, r.key)
}

func (r *NatsSessionRepository) Save(ctx context.Context, session *models.Session) error {
	_, err := r.base.Put(ctx, r.key, session)
	return err
}

func (r *NatsSessionRepository) Delete(ctx context.Context) error {
	return r.base.Delete(ctx, r.key)
}
