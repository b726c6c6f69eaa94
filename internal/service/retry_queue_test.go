// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

type queueHarness struct {
	clock       *scheduler.Fake
	repo        *store.NatsRetryQueueRepository
	ledger      *store.NatsSubmissionLedger
	deadLetters *store.NatsDeadLetterRepository
	publisher   *mocks.MockAttendanceEventPublisher
	queue       *RetryQueue

	deliveries atomic.Int32
	failWith   atomic.Value

	mu      sync.Mutex
	settled map[string]bool
}

func newQueueHarness() *queueHarness {
	kv := store.NewInMemoryKeyValue(store.KVStoreNameLocal)
	kb := store.NewKeyBuilder("")
	h := &queueHarness{
		clock:       scheduler.NewFake(testStart),
		repo:        store.NewNatsRetryQueueRepository(kv, kb),
		ledger:      store.NewNatsSubmissionLedger(kv, kb),
		deadLetters: store.NewNatsDeadLetterRepository(kv, kb),
		publisher:   mocks.NewPermissiveEventPublisher(),
		settled:     make(map[string]bool),
	}
	h.queue = NewRetryQueue(RetryQueueDeps{
		Repo:        h.repo,
		Ledger:      h.ledger,
		DeadLetters: h.deadLetters,
		Publisher:   h.publisher,
		Clock:       h.clock,
		Workers:     2,
	}, h.deliver, h.onSettled)
	return h
}

func (h *queueHarness) deliver(_ context.Context, _ *models.RetryQueueEntry) error {
	h.deliveries.Add(1)
	if err, ok := h.failWith.Load().(error); ok {
		return err
	}
	return nil
}

func (h *queueHarness) onSettled(_ context.Context, entry *models.RetryQueueEntry, delivered bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settled[entry.SubmissionKey] = delivered
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, backoff(0))
	assert.Equal(t, 2*time.Second, backoff(1))
	assert.Equal(t, 4*time.Second, backoff(2))
	assert.Equal(t, 8*time.Second, backoff(3))
}

func TestRetryQueue_DeliversWhenDue(t *testing.T) {
	ctx := context.Background()
	h := newQueueHarness()

	require.NoError(t, h.queue.Enqueue(ctx, "key-final", constants.FinalEndpoint, []byte(`{"a":1}`)))
	assert.Equal(t, 1, h.queue.Len(ctx))

	result := h.queue.Drain(ctx)
	assert.Equal(t, 0, result.Attempted)

	h.clock.Advance(constants.RetryBaseDelay)
	result = h.queue.Drain(ctx)
	assert.Equal(t, DrainResult{Attempted: 1, Delivered: 1}, result)
	assert.Equal(t, 0, h.queue.Len(ctx))
	assert.True(t, h.settled["key-final"])

	delivered, err := h.ledger.Has(ctx, "key-final")
	require.NoError(t, err)
	assert.True(t, delivered)

	// a delivered final report is never queued again
	require.NoError(t, h.queue.Enqueue(ctx, "key-final", constants.FinalEndpoint, []byte(`{"a":2}`)))
	assert.Equal(t, 0, h.queue.Len(ctx))
}

func TestRetryQueue_ProgressIsNotRecordedInLedger(t *testing.T) {
	ctx := context.Background()
	h := newQueueHarness()

	require.NoError(t, h.queue.Enqueue(ctx, "key-progress", constants.ProgressEndpoint, []byte(`{}`)))
	h.clock.Advance(constants.RetryBaseDelay)
	h.queue.Drain(ctx)

	delivered, err := h.ledger.Has(ctx, "key-progress")
	require.NoError(t, err)
	assert.False(t, delivered)
}

func TestRetryQueue_LatestPayloadWins(t *testing.T) {
	ctx := context.Background()
	h := newQueueHarness()
	h.failWith.Store(errors.New("offline"))

	require.NoError(t, h.queue.Enqueue(ctx, "key-progress", constants.ProgressEndpoint, []byte(`{"v":1}`)))
	h.clock.Advance(constants.RetryBaseDelay)
	h.queue.Drain(ctx)

	require.NoError(t, h.queue.Enqueue(ctx, "key-progress", constants.ProgressEndpoint, []byte(`{"v":2}`)))

	entries, err := h.repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"v":2}`, string(entries[0].Payload))
	assert.Equal(t, 1, entries[0].AttemptCount)
	assert.Equal(t, "offline", entries[0].LastError)
}

func TestRetryQueue_DropsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	h := newQueueHarness()
	h.failWith.Store(domain.NewUnavailableError("backend down"))

	require.NoError(t, h.queue.Enqueue(ctx, "key-final", constants.FinalEndpoint, []byte(`{}`)))

	// attempt 1 after 2s, attempt 2 after 2s more, attempt 3 after 4s more
	for _, wait := range []time.Duration{2 * time.Second, 2 * time.Second, 4 * time.Second} {
		h.clock.Advance(wait)
		h.queue.Drain(ctx)
	}
	assert.Equal(t, int32(constants.MaxRetryAttempts), h.deliveries.Load())
	assert.Equal(t, 0, h.queue.Len(ctx))

	h.clock.Advance(time.Hour)
	h.queue.Drain(ctx)
	assert.Equal(t, int32(3), h.deliveries.Load(), "dropped entry must not be retried a 4th time")

	dropped, err := h.deadLetters.List(ctx)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, "key-final", dropped[0].Entry.SubmissionKey)
	assert.Equal(t, 3, dropped[0].Entry.AttemptCount)
	assert.Contains(t, dropped[0].Reason, "backend down")

	h.publisher.AssertCalled(t, "PublishSubmissionDropped", mock.Anything, mock.Anything)
	delivered, settled := h.settled["key-final"]
	assert.True(t, settled)
	assert.False(t, delivered)
}

func TestRetryQueue_BacksOffBetweenAttempts(t *testing.T) {
	ctx := context.Background()
	h := newQueueHarness()
	h.failWith.Store(errors.New("offline"))

	require.NoError(t, h.queue.Enqueue(ctx, "k", constants.ProgressEndpoint, []byte(`{}`)))
	h.clock.Advance(2 * time.Second)
	h.queue.Drain(ctx)

	entry, err := h.repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.WithinDuration(t, h.clock.Now().Add(2*time.Second), entry.NextRetryAt, 0)

	h.clock.Advance(time.Second)
	assert.Equal(t, 0, h.queue.Drain(ctx).Attempted)

	h.clock.Advance(time.Second)
	h.queue.Drain(ctx)
	entry, err = h.repo.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.AttemptCount)
	assert.WithinDuration(t, h.clock.Now().Add(4*time.Second), entry.NextRetryAt, 0)
}

func TestRetryQueue_EnqueueValidation(t *testing.T) {
	h := newQueueHarness()
	err := h.queue.Enqueue(context.Background(), "", constants.FinalEndpoint, nil)
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}

func TestRetryQueue_DropsRejectedPayloadWithoutRetrying(t *testing.T) {
	ctx := context.Background()
	h := newQueueHarness()
	h.failWith.Store(domain.NewValidationError("400 bad request"))

	require.NoError(t, h.queue.Enqueue(ctx, "k", constants.FinalEndpoint, []byte(`{}`)))
	h.clock.Advance(2 * time.Second)

	result := h.queue.Drain(ctx)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, int32(1), h.deliveries.Load())
	assert.Equal(t, 0, h.queue.Len(ctx))

	dropped, err := h.deadLetters.List(ctx)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, 1, dropped[0].Entry.AttemptCount)
}

func TestRetryQueue_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	h := newQueueHarness()

	repo := &mocks.MockRetryQueueRepository{}
	repo.On("List", mock.Anything).Return(nil, domain.NewUnavailableError("kv down"))

	queue := NewRetryQueue(RetryQueueDeps{
		Repo:        repo,
		Ledger:      h.ledger,
		DeadLetters: h.deadLetters,
		Publisher:   h.publisher,
		Clock:       h.clock,
		Workers:     1,
	}, h.deliver, h.onSettled)

	assert.Equal(t, DrainResult{}, queue.Drain(ctx))
	assert.Equal(t, 0, queue.Len(ctx))
	assert.Equal(t, int32(0), h.deliveries.Load())
	repo.AssertExpectations(t)
}
