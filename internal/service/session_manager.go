// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/utils"
)

// SessionManager owns the session singleton: idle -> active -> ending -> ended.
type SessionManager struct {
	mu      sync.RWMutex
	repo    domain.SessionRepository
	clock   scheduler.Scheduler
	session *models.Session
}

// NewSessionManager creates a SessionManager starting idle.
func NewSessionManager(repo domain.SessionRepository, clock scheduler.Scheduler) *SessionManager {
	return &SessionManager{
		repo:    repo,
		clock:   clock,
		session: models.IdleSession(clock.Now()),
	}
}

// Load restores the persisted session. A missing session leaves it idle.
func (m *SessionManager) Load(ctx context.Context) error {
	stored, err := m.repo.Get(ctx)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return nil
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = stored
	slog.InfoContext(ctx, "session restored",
		logging.SessionKeyAttr, stored.SessionKey,
		"state", stored.State,
	)
	return nil
}

// expired reports whether an active session's token has lapsed. Caller holds m.mu.
func (m *SessionManager) expired(now time.Time) bool {
	s := m.session
	return s.State == models.SessionActive && s.TokenExpiresAt != nil && !now.Before(*s.TokenExpiresAt)
}

// Status returns a copy of the session. An active session whose token has
// expired is reported as idle.
func (m *SessionManager) Status() *models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	if m.expired(now) {
		return models.IdleSession(now)
	}
	return cloneSession(m.session)
}

// Start activates a session for sessionKey. Starting the already active key
// is a no-op; any other key is rejected while a session is active.
func (m *SessionManager) Start(ctx context.Context, sessionKey string) (*models.Session, error) {
	if sessionKey == "" {
		return nil, domain.NewValidationError("session key is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	current := m.session
	if current.State == models.SessionActive && !m.expired(now) {
		if current.SessionKey == sessionKey {
			return cloneSession(current), nil
		}
		return nil, domain.NewConflictError(
			fmt.Sprintf("cannot start session %q while %q is active", sessionKey, current.SessionKey),
			domain.ErrSessionBlocked,
		)
	}

	next := &models.Session{
		State:         models.SessionActive,
		SessionKey:    sessionKey,
		StartedAt:     utils.TimePtr(now),
		LastUpdatedAt: now,
	}
	issueToken(next, now)
	m.session = next
	m.save(ctx)

	slog.InfoContext(ctx, "session started",
		logging.SessionKeyAttr, sessionKey,
		"token_expires_at", next.TokenExpiresAt,
	)
	return cloneSession(next), nil
}

// RefreshToken re-issues the token of an active session when it is within
// SessionTokenRefreshBefore of expiring. A lapsed token is never revived. It
// reports whether it refreshed.
func (m *SessionManager) RefreshToken(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.State != models.SessionActive || s.TokenExpiresAt == nil {
		return false
	}
	now := m.clock.Now()
	if !now.Before(*s.TokenExpiresAt) || s.TokenExpiresAt.Sub(now) > constants.SessionTokenRefreshBefore {
		return false
	}

	issueToken(s, now)
	s.LastUpdatedAt = now
	m.save(ctx)
	slog.DebugContext(ctx, "session token refreshed", "token_expires_at", s.TokenExpiresAt)
	return true
}

// Token returns the session token if one is valid now.
func (m *SessionManager) Token() (string, *time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.session
	if s.State == models.SessionIdle || !s.TokenValid(m.clock.Now()) {
		return "", nil, false
	}
	return s.TokenID, utils.CloneTime(s.TokenExpiresAt), true
}

// BeginEnding moves an active or idle session to ending. Sessions already
// ending or ended are left alone.
func (m *SessionManager) BeginEnding(ctx context.Context, sessionKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	switch s.State {
	case models.SessionEnding, models.SessionEnded:
		return
	case models.SessionIdle, "":
		s.SessionKey = sessionKey
	}

	now := m.clock.Now()
	s.State = models.SessionEnding
	s.EndingSince = utils.TimePtr(now)
	s.LastUpdatedAt = now
	m.save(ctx)
	slog.InfoContext(ctx, "session ending", logging.SessionKeyAttr, s.SessionKey)
}

// MarkEnded moves an ending (or still active) session to ended.
func (m *SessionManager) MarkEnded(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.State != models.SessionEnding && s.State != models.SessionActive {
		return
	}
	now := m.clock.Now()
	s.State = models.SessionEnded
	s.EndingSince = nil
	s.LastUpdatedAt = now
	m.save(ctx)
	slog.InfoContext(ctx, "session ended", logging.SessionKeyAttr, s.SessionKey)
}

// UpdateParticipantCount records the live participant count of an active session.
func (m *SessionManager) UpdateParticipantCount(ctx context.Context, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.session
	if s.State != models.SessionActive || s.ParticipantCount == count {
		return
	}
	s.ParticipantCount = count
	s.LastUpdatedAt = m.clock.Now()
	m.save(ctx)
}

// Clear resets to idle and removes the persisted session.
func (m *SessionManager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.session = models.IdleSession(m.clock.Now())
	if err := m.repo.Delete(ctx); err != nil {
		slog.WarnContext(ctx, "unable to delete session", logging.ErrKey, err)
	}
}

// save persists the session. Caller holds m.mu.
func (m *SessionManager) save(ctx context.Context) {
	if err := m.repo.Save(ctx, cloneSession(m.session)); err != nil {
		slog.WarnContext(ctx, "unable to persist session", logging.ErrKey, err)
	}
}

func issueToken(s *models.Session, now time.Time) {
	s.TokenID = uuid.NewString()
	s.TokenIssuedAt = utils.TimePtr(now)
	s.TokenExpiresAt = utils.TimePtr(now.Add(constants.SessionTokenTTL))
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	c.StartedAt = utils.CloneTime(s.StartedAt)
	c.TokenIssuedAt = utils.CloneTime(s.TokenIssuedAt)
	c.TokenExpiresAt = utils.CloneTime(s.TokenExpiresAt)
	c.EndingSince = utils.CloneTime(s.EndingSince)
	return &c
}
