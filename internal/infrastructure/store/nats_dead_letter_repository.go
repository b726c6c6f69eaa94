// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// NatsDeadLetterRepository keeps dropped submissions in the local bucket.
type NatsDeadLetterRepository struct {
	base *NatsBaseRepository[models.DroppedSubmission]
	kb   *KeyBuilder
}

var _ domain.DeadLetterRepository = (*NatsDeadLetterRepository)(nil)

// NewNatsDeadLetterRepository creates a dead letter repository on kv.
func NewNatsDeadLetterRepository(kv INatsKeyValue, kb *KeyBuilder) *NatsDeadLetterRepository {
	return &NatsDeadLetterRepository{
		base: NewNatsBaseRepository[models.DroppedSubmission](kv, MsgpackCodec{}, "dead letter"),
		kb:   kb,
	}
}

// Save stores dropped under its entry ID, generating one when missing.
func (r *NatsDeadLetterRepository) Save(ctx context.Context, dropped *models.DroppedSubmission) error {
	id := dropped.Entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.base.Put(ctx, r.kb.EntityKey(KeyPrefixDeadLetter, id), dropped)
	return err
}

func (r *NatsDeadLetterRepository) List(ctx context.Context) ([]*models.DroppedSubmission, error) {
	return r.base.ListEntities(ctx, r.kb.EntityPrefix(KeyPrefixDeadLetter))
}
