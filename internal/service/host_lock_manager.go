// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/utils"
)

// HostLockEvent is the transition produced by one HostLockManager.Observe call.
type HostLockEvent int

const (
	HostLockUnchanged HostLockEvent = iota
	// HostLockPromoted means the candidate reached the confirmation threshold.
	HostLockPromoted
	// HostLockUnlocked means the locked host was missing for too long and
	// the lock was released.
	HostLockUnlocked
	// HostLockLeft means the permanently locked host was missing for too long.
	HostLockLeft
	// HostLockReturned means a permanently locked host that had left was seen again.
	HostLockReturned
)

// HostLockOutcome reports what an observation did to the lock.
type HostLockOutcome struct {
	Event    HostLockEvent
	Identity *models.HostIdentity
}

// HostLockManager owns the host lock of the current session. It is not safe
// for concurrent use; the engine serializes calls.
type HostLockManager struct {
	repo                  domain.HostLockRepository
	confirmationThreshold int
	missedThreshold       int
	permanent             bool

	lock *models.HostLock
}

// NewHostLockManager creates a HostLockManager.
func NewHostLockManager(repo domain.HostLockRepository, config ServiceConfig) *HostLockManager {
	config = config.withDefaults()
	return &HostLockManager{
		repo:                  repo,
		confirmationThreshold: config.HostConfirmationThreshold,
		missedThreshold:       config.HostMissedThreshold,
		permanent:             config.HostPermanentLock,
	}
}

// Restore loads the persisted lock for sessionKey. A lock for a different
// session or one not updated within HostLockStaleAfter is discarded and an
// empty lock is started instead.
func (m *HostLockManager) Restore(ctx context.Context, sessionKey string, now time.Time) *models.HostLock {
	stored, err := m.repo.Get(ctx)
	switch {
	case err != nil && domain.GetErrorType(err) != domain.ErrorTypeNotFound:
		slog.WarnContext(ctx, "unable to load host lock, starting unlocked", logging.ErrKey, err)
	case err == nil && stored.SessionKey == sessionKey && now.Sub(stored.UpdatedAt) <= constants.HostLockStaleAfter:
		m.lock = stored
		slog.InfoContext(ctx, "host lock restored",
			"locked", stored.IsLocked(),
			"confirmation_count", stored.ConfirmationCount,
		)
		return m.lock.Clone()
	case err == nil:
		slog.DebugContext(ctx, "discarding persisted host lock",
			"stored_session_key", stored.SessionKey,
			"updated_at", stored.UpdatedAt,
		)
	}

	m.lock = models.NewHostLock(sessionKey, now)
	m.save(ctx)
	return m.lock.Clone()
}

// Lock returns a copy of the current lock, or nil before Restore.
func (m *HostLockManager) Lock() *models.HostLock {
	return m.lock.Clone()
}

// Observe advances the lock by one tick. candidate is this tick's detected
// host (nil when none was detected). lockedSeen reports whether the locked
// identity was observed this tick and lockedLastSeen is when it was last
// observed.
func (m *HostLockManager) Observe(
	ctx context.Context,
	candidate *models.HostIdentity,
	reason string,
	lockedSeen bool,
	lockedLastSeen time.Time,
	now time.Time,
) HostLockOutcome {
	if m.lock == nil {
		m.lock = models.NewHostLock("", now)
	}
	l := m.lock

	var outcome HostLockOutcome
	if l.IsLocked() {
		outcome = m.observeLocked(ctx, candidate, lockedSeen, lockedLastSeen)
	} else {
		outcome = m.observeUnlocked(ctx, candidate, reason, now)
	}

	l.UpdatedAt = now
	m.save(ctx)
	return outcome
}

func (m *HostLockManager) observeLocked(ctx context.Context, candidate *models.HostIdentity, seen bool, lastSeen time.Time) HostLockOutcome {
	l := m.lock
	locked := *l.LockedIdentity

	if candidate != nil && candidate.IdentityKey != locked.IdentityKey {
		// first lock wins
		slog.DebugContext(ctx, "ignoring host candidate while locked",
			"candidate", candidate.IdentityKey,
			"locked", locked.IdentityKey,
		)
	}

	if seen {
		l.MissedCount = 0
		if l.HasLeft {
			l.HasLeft = false
			l.LeftAt = nil
			slog.InfoContext(ctx, "locked host returned", "host", locked.IdentityKey)
			return HostLockOutcome{Event: HostLockReturned, Identity: &locked}
		}
		return HostLockOutcome{}
	}

	l.MissedCount++
	if l.MissedCount < m.missedThreshold {
		return HostLockOutcome{}
	}

	if m.permanent {
		if l.HasLeft {
			return HostLockOutcome{}
		}
		l.HasLeft = true
		l.LeftAt = utils.TimePtr(lastSeen)
		slog.InfoContext(ctx, "locked host left, keeping permanent lock",
			"host", locked.IdentityKey,
			"missed_count", l.MissedCount,
		)
		return HostLockOutcome{Event: HostLockLeft, Identity: &locked}
	}

	l.LockedIdentity = nil
	l.LockedAt = nil
	l.CandidateIdentity = nil
	l.ConfirmationCount = 0
	l.MissedCount = 0
	l.HasLeft = true
	l.LeftAt = utils.TimePtr(lastSeen)
	slog.InfoContext(ctx, "host lock released after missed ticks", "host", locked.IdentityKey)
	return HostLockOutcome{Event: HostLockUnlocked, Identity: &locked}
}

func (m *HostLockManager) observeUnlocked(ctx context.Context, candidate *models.HostIdentity, reason string, now time.Time) HostLockOutcome {
	l := m.lock

	if candidate == nil {
		l.CandidateIdentity = nil
		l.ConfirmationCount = 0
		return HostLockOutcome{}
	}

	if l.CandidateIdentity != nil && l.CandidateIdentity.IdentityKey == candidate.IdentityKey {
		l.ConfirmationCount++
	} else {
		c := *candidate
		l.CandidateIdentity = &c
		l.ConfirmationCount = 1
	}

	if l.ConfirmationCount < m.confirmationThreshold {
		slog.DebugContext(ctx, "host candidate detected",
			"candidate", candidate.IdentityKey,
			"reason", reason,
			"confirmation_count", l.ConfirmationCount,
		)
		return HostLockOutcome{}
	}

	locked := *candidate
	l.LockedIdentity = &locked
	l.LockedAt = utils.TimePtr(now)
	l.CandidateIdentity = nil
	l.MissedCount = 0
	l.HasLeft = false
	l.LeftAt = nil
	slog.InfoContext(ctx, "host locked",
		"host", locked.IdentityKey,
		"reason", reason,
		"confirmation_count", l.ConfirmationCount,
	)
	return HostLockOutcome{Event: HostLockPromoted, Identity: &locked}
}

// Clear forgets the lock and removes it from the store.
func (m *HostLockManager) Clear(ctx context.Context) {
	m.lock = nil
	if err := m.repo.Delete(ctx); err != nil {
		slog.WarnContext(ctx, "unable to delete host lock", logging.ErrKey, err)
	}
}

func (m *HostLockManager) save(ctx context.Context) {
	if err := m.repo.Save(ctx, m.lock.Clone()); err != nil {
		slog.WarnContext(ctx, "unable to persist host lock", logging.ErrKey, err)
	}
}
