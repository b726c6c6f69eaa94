// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// NatsSubmissionLedger records delivered submission keys in the local bucket.
type NatsSubmissionLedger struct {
	base *NatsBaseRepository[models.SubmissionRecord]
	kb   *KeyBuilder
}

var _ domain.SubmissionLedger = (*NatsSubmissionLedger)(nil)

// NewNatsSubmissionLedger creates a ledger on kv.
func NewNatsSubmissionLedger(kv INatsKeyValue, kb *KeyBuilder) *NatsSubmissionLedger {
	return &NatsSubmissionLedger{
		base: NewNatsBaseRepository[models.SubmissionRecord](kv, MsgpackCodec{}, "submission record"),
		kb:   kb,
	}
}

func (l *NatsSubmissionLedger) Record(ctx context.Context, record *models.SubmissionRecord) error {
	_, err := l.base.Put(ctx, l.kb.EntityKey(KeyPrefixLedger, record.SubmissionKey), record)
	return err
}

func (l *NatsSubmissionLedger) Has(ctx context.Context, submissionKey string) (bool, error) {
	return l.base.Exists(ctx, l.kb.EntityKey(KeyPrefixLedger, submissionKey))
}
