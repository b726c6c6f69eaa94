// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/mocks"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/store"
)

var testStart = time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

func newHostLockRepo() *store.NatsHostLockRepository {
	return store.NewNatsHostLockRepository(store.NewInMemoryKeyValue(store.KVStoreNameSync), store.NewKeyBuilder(""))
}

func hostIdentity(key string) *models.HostIdentity {
	return &models.HostIdentity{IdentityKey: key, DisplayName: key}
}

func TestHostLockManager_ConfirmationThreshold(t *testing.T) {
	ctx := context.Background()

	t.Run("threshold 1 locks on the first detection", func(t *testing.T) {
		m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 1})
		m.Restore(ctx, "s-1", testStart)

		outcome := m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)

		assert.Equal(t, HostLockPromoted, outcome.Event)
		assert.True(t, m.Lock().IsLockedTo("alice"))
	})

	t.Run("threshold 2 stays unlocked after one detection", func(t *testing.T) {
		m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 2})
		m.Restore(ctx, "s-1", testStart)

		outcome := m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)

		assert.Equal(t, HostLockUnchanged, outcome.Event)
		lock := m.Lock()
		assert.False(t, lock.IsLocked())
		assert.Equal(t, 1, lock.ConfirmationCount)
		require.NotNil(t, lock.CandidateIdentity)
		assert.Equal(t, "alice", lock.CandidateIdentity.IdentityKey)

		outcome = m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart.Add(time.Second))
		assert.Equal(t, HostLockPromoted, outcome.Event)
		assert.True(t, m.Lock().IsLockedTo("alice"))
	})

	t.Run("a different candidate restarts the count", func(t *testing.T) {
		m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 2})
		m.Restore(ctx, "s-1", testStart)

		m.Observe(ctx, hostIdentity("alice"), ReasonRoleFlag, false, time.Time{}, testStart)
		m.Observe(ctx, hostIdentity("bob"), ReasonRoleFlag, false, time.Time{}, testStart)

		lock := m.Lock()
		assert.False(t, lock.IsLocked())
		assert.Equal(t, 1, lock.ConfirmationCount)
		assert.Equal(t, "bob", lock.CandidateIdentity.IdentityKey)
	})

	t.Run("a tick without a candidate resets the count", func(t *testing.T) {
		m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 2})
		m.Restore(ctx, "s-1", testStart)

		m.Observe(ctx, hostIdentity("alice"), ReasonRoleFlag, false, time.Time{}, testStart)
		m.Observe(ctx, nil, "", false, time.Time{}, testStart)

		lock := m.Lock()
		assert.Equal(t, 0, lock.ConfirmationCount)
		assert.Nil(t, lock.CandidateIdentity)
	})
}

func TestHostLockManager_FirstLockWins(t *testing.T) {
	ctx := context.Background()
	m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 1})
	m.Restore(ctx, "s-1", testStart)

	m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)
	outcome := m.Observe(ctx, hostIdentity("bob"), ReasonSourceFlagged, true, testStart, testStart)

	assert.Equal(t, HostLockUnchanged, outcome.Event)
	assert.True(t, m.Lock().IsLockedTo("alice"))
}

func TestHostLockManager_MissedThreshold(t *testing.T) {
	ctx := context.Background()
	lastSeen := testStart.Add(100 * time.Second)

	t.Run("non-permanent lock is released", func(t *testing.T) {
		m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 1, HostMissedThreshold: 3})
		m.Restore(ctx, "s-1", testStart)
		m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)

		for i := 0; i < 2; i++ {
			outcome := m.Observe(ctx, nil, "", false, lastSeen, testStart)
			assert.Equal(t, HostLockUnchanged, outcome.Event)
		}
		assert.Equal(t, 2, m.Lock().MissedCount)

		outcome := m.Observe(ctx, nil, "", false, lastSeen, testStart)
		assert.Equal(t, HostLockUnlocked, outcome.Event)
		require.NotNil(t, outcome.Identity)
		assert.Equal(t, "alice", outcome.Identity.IdentityKey)

		lock := m.Lock()
		assert.False(t, lock.IsLocked())
		assert.True(t, lock.HasLeft)
		require.NotNil(t, lock.LeftAt)
		assert.Equal(t, lastSeen, *lock.LeftAt)
	})

	t.Run("being seen resets the missed count", func(t *testing.T) {
		m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 1, HostMissedThreshold: 3})
		m.Restore(ctx, "s-1", testStart)
		m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)

		m.Observe(ctx, nil, "", false, lastSeen, testStart)
		m.Observe(ctx, nil, "", false, lastSeen, testStart)
		m.Observe(ctx, nil, "", true, lastSeen, testStart)
		assert.Equal(t, 0, m.Lock().MissedCount)
		assert.True(t, m.Lock().IsLocked())
	})

	t.Run("permanent lock only marks the host as left", func(t *testing.T) {
		m := NewHostLockManager(newHostLockRepo(), ServiceConfig{HostConfirmationThreshold: 1, HostMissedThreshold: 3, HostPermanentLock: true})
		m.Restore(ctx, "s-1", testStart)
		m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)

		var events []HostLockEvent
		for i := 0; i < 5; i++ {
			events = append(events, m.Observe(ctx, nil, "", false, lastSeen, testStart).Event)
		}
		assert.Equal(t, []HostLockEvent{
			HostLockUnchanged, HostLockUnchanged, HostLockLeft, HostLockUnchanged, HostLockUnchanged,
		}, events)

		lock := m.Lock()
		assert.True(t, lock.IsLockedTo("alice"))
		assert.True(t, lock.HasLeft)
		assert.Equal(t, lastSeen, *lock.LeftAt)

		outcome := m.Observe(ctx, nil, "", true, lastSeen, testStart)
		assert.Equal(t, HostLockReturned, outcome.Event)
		assert.False(t, m.Lock().HasLeft)
		assert.Nil(t, m.Lock().LeftAt)
	})
}

func TestHostLockManager_Restore(t *testing.T) {
	ctx := context.Background()

	lockedRepo := func(t *testing.T) *store.NatsHostLockRepository {
		repo := newHostLockRepo()
		m := NewHostLockManager(repo, ServiceConfig{HostConfirmationThreshold: 1})
		m.Restore(ctx, "s-1", testStart)
		m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)
		return repo
	}

	t.Run("recent lock for the same session is restored", func(t *testing.T) {
		m := NewHostLockManager(lockedRepo(t), ServiceConfig{})
		lock := m.Restore(ctx, "s-1", testStart.Add(10*time.Minute))
		assert.True(t, lock.IsLockedTo("alice"))
	})

	t.Run("lock for another session is discarded", func(t *testing.T) {
		repo := lockedRepo(t)
		m := NewHostLockManager(repo, ServiceConfig{})
		lock := m.Restore(ctx, "s-2", testStart.Add(time.Minute))
		assert.False(t, lock.IsLocked())
		assert.Equal(t, "s-2", lock.SessionKey)

		stored, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s-2", stored.SessionKey)
	})

	t.Run("stale lock is discarded", func(t *testing.T) {
		m := NewHostLockManager(lockedRepo(t), ServiceConfig{})
		lock := m.Restore(ctx, "s-1", testStart.Add(31*time.Minute))
		assert.False(t, lock.IsLocked())
	})

	t.Run("every observation is persisted", func(t *testing.T) {
		repo := newHostLockRepo()
		m := NewHostLockManager(repo, ServiceConfig{HostConfirmationThreshold: 3})
		m.Restore(ctx, "s-1", testStart)
		m.Observe(ctx, hostIdentity("alice"), ReasonRoleFlag, false, time.Time{}, testStart.Add(time.Second))

		stored, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.ConfirmationCount)
		assert.Equal(t, testStart.Add(time.Second), stored.UpdatedAt)
	})

	t.Run("clear removes the persisted lock", func(t *testing.T) {
		repo := lockedRepo(t)
		m := NewHostLockManager(repo, ServiceConfig{})
		m.Restore(ctx, "s-1", testStart)
		m.Clear(ctx)

		assert.Nil(t, m.Lock())
		_, err := repo.Get(ctx)
		assert.Error(t, err)
	})
}

func TestHostLockManager_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.MockHostLockRepository{}
	repo.On("Get", mock.Anything).Return(nil, domain.NewUnavailableError("kv down"))
	repo.On("Save", mock.Anything, mock.Anything).Return(domain.NewUnavailableError("kv down"))

	m := NewHostLockManager(repo, ServiceConfig{HostConfirmationThreshold: 1})
	restored := m.Restore(ctx, "s-1", testStart)
	require.NotNil(t, restored)
	assert.False(t, restored.IsLocked())

	outcome := m.Observe(ctx, hostIdentity("alice"), ReasonSourceFlagged, false, time.Time{}, testStart)
	assert.Equal(t, HostLockPromoted, outcome.Event)
	assert.True(t, m.Lock().IsLockedTo("alice"))
	repo.AssertNumberOfCalls(t, "Save", 2)
}
