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
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

func newSessionRepo() *store.NatsSessionRepository {
	return store.NewNatsSessionRepository(store.NewInMemoryKeyValue(store.KVStoreNameSync), store.NewKeyBuilder(""))
}

func TestSessionManager_SingleSession(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(newSessionRepo(), scheduler.NewFake(testStart))

	a, err := m.Start(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, a.State)

	_, err = m.Start(ctx, "session-b")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionBlocked)
	assert.Equal(t, domain.ErrorTypeConflict, domain.GetErrorType(err))

	status := m.Status()
	assert.Equal(t, "session-a", status.SessionKey)
	assert.Equal(t, a.TokenID, status.TokenID)
	assert.Equal(t, models.SessionActive, status.State)
}

func TestSessionManager_StartIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(newSessionRepo(), scheduler.NewFake(testStart))

	first, err := m.Start(ctx, "session-a")
	require.NoError(t, err)
	second, err := m.Start(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, first.TokenID, second.TokenID)

	_, err = m.Start(ctx, "")
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}

func TestSessionManager_TokenExpiry(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	m := NewSessionManager(newSessionRepo(), clock)

	_, err := m.Start(ctx, "session-a")
	require.NoError(t, err)

	_, _, ok := m.Token()
	assert.True(t, ok)

	clock.Advance(30 * time.Minute)
	assert.Equal(t, models.SessionIdle, m.Status().State)
	_, _, ok = m.Token()
	assert.False(t, ok)

	b, err := m.Start(ctx, "session-b")
	require.NoError(t, err)
	assert.Equal(t, "session-b", b.SessionKey)
}

func TestSessionManager_RefreshToken(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	m := NewSessionManager(newSessionRepo(), clock)

	started, err := m.Start(ctx, "session-a")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	assert.False(t, m.RefreshToken(ctx))

	clock.Advance(16 * time.Minute)
	assert.True(t, m.RefreshToken(ctx))

	status := m.Status()
	assert.NotEqual(t, started.TokenID, status.TokenID)
	assert.Equal(t, clock.Now().Add(30*time.Minute), *status.TokenExpiresAt)
	assert.Equal(t, *started.StartedAt, *status.StartedAt)
}

func TestSessionManager_RefreshDoesNotReviveExpiredToken(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	m := NewSessionManager(newSessionRepo(), clock)

	_, err := m.Start(ctx, "session-a")
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	assert.False(t, m.RefreshToken(ctx))
	assert.Equal(t, models.SessionIdle, m.Status().State)
	_, _, ok := m.Token()
	assert.False(t, ok)
}

func TestSessionManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	repo := newSessionRepo()
	m := NewSessionManager(repo, clock)

	_, err := m.Start(ctx, "session-a")
	require.NoError(t, err)
	m.UpdateParticipantCount(ctx, 4)

	m.BeginEnding(ctx, "session-a")
	status := m.Status()
	assert.Equal(t, models.SessionEnding, status.State)
	assert.Equal(t, 4, status.ParticipantCount)
	require.NotNil(t, status.EndingSince)

	m.MarkEnded(ctx)
	assert.Equal(t, models.SessionEnded, m.Status().State)
	assert.Nil(t, m.Status().EndingSince)

	stored, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, stored.State)

	reloaded := NewSessionManager(repo, clock)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, "session-a", reloaded.Status().SessionKey)

	m.Clear(ctx)
	assert.Equal(t, models.SessionIdle, m.Status().State)
	_, err = repo.Get(ctx)
	assert.Equal(t, domain.ErrorTypeNotFound, domain.GetErrorType(err))
}

func TestSessionManager_BeginEndingFromIdle(t *testing.T) {
	ctx := context.Background()
	m := NewSessionManager(newSessionRepo(), scheduler.NewFake(testStart))

	m.BeginEnding(ctx, "session-a")
	status := m.Status()
	assert.Equal(t, models.SessionEnding, status.State)
	assert.Equal(t, "session-a", status.SessionKey)
}

func TestSessionManager_PersistFailuresAreNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.MockSessionRepository{}
	repo.On("Save", mock.Anything, mock.Anything).Return(domain.NewUnavailableError("store down"))

	m := NewSessionManager(repo, scheduler.NewFake(testStart))
	session, err := m.Start(ctx, "session-a")
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, session.State)
	repo.AssertCalled(t, "Save", mock.Anything, mock.Anything)
}
