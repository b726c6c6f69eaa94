// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/utils"
)

// HostPresence is the host departure state the classifier judges against.
type HostPresence struct {
	Left   bool
	LeftAt time.Time
}

// hostPresence derives the presence from a host lock.
func hostPresence(lock *models.HostLock) HostPresence {
	if lock == nil || !lock.HasLeft || lock.LeftAt == nil {
		return HostPresence{}
	}
	return HostPresence{Left: true, LeftAt: *lock.LeftAt}
}

// StatusClassifier moves participant records through
// pending -> present -> {late, absent, left}.
type StatusClassifier struct {
	departureMissThreshold int
}

// NewStatusClassifier creates a StatusClassifier.
func NewStatusClassifier(config ServiceConfig) *StatusClassifier {
	return &StatusClassifier{departureMissThreshold: config.withDefaults().DepartureMissThreshold}
}

// Observe applies one tick of resolved observations to the roster, creating
// records for new identities. sessionStart may be nil before a session is
// active, in which case nobody is judged late.
func (c *StatusClassifier) Observe(roster *Roster, resolved []models.ResolvedObservation, sessionStart *time.Time, now time.Time) {
	for _, obs := range resolved {
		rec := roster.Get(obs.IdentityKey)
		if rec == nil {
			roster.Add(&models.ParticipantRecord{
				IdentityKey:  obs.IdentityKey,
				IdentityHint: obs.IdentityHint,
				DisplayName:  obs.CleanName,
				JoinedAt:     now,
				Status:       models.StatusPending,
				IsLive:       true,
				JoinedLate:   sessionStart != nil && now.Sub(*sessionStart) > constants.LateThreshold,
				LastSeenAt:   now,
			}, obs.NormalizedName)
			continue
		}

		if obs.NormalizedName != "" {
			rec.DisplayName = obs.CleanName
		}

		if rec.IsLive {
			rec.Accrue(now.Sub(rec.LastSeenAt))
			if rec.Status == models.StatusPending {
				rec.Status = models.StatusPresent
			}
		} else {
			// returning participant: accrual resumes from the prior total
			rec.IsLive = true
			rec.LeftAt = nil
			rec.Status = models.StatusPresent
		}
		rec.MissedTicks = 0
		rec.LastSeenAt = now
	}
}

// MarkMissing counts a missed tick for every live record not in seen and
// classifies the ones whose departure is now confirmed. It returns the
// records that departed.
func (c *StatusClassifier) MarkMissing(roster *Roster, seen map[string]struct{}, host HostPresence) []*models.ParticipantRecord {
	var departed []*models.ParticipantRecord
	for _, rec := range roster.Records() {
		if !rec.IsLive {
			continue
		}
		if _, ok := seen[rec.IdentityKey]; ok {
			continue
		}
		rec.MissedTicks++
		if rec.MissedTicks < c.departureMissThreshold {
			continue
		}
		rec.IsLive = false
		rec.LeftAt = utils.TimePtr(rec.LastSeenAt)
		rec.Status = departureStatus(rec, host)
		departed = append(departed, rec)
	}
	return departed
}

// HostDeparted re-evaluates participants that were marked absent while the
// host was still around.
func (c *StatusClassifier) HostDeparted(roster *Roster, host HostPresence) {
	if !host.Left {
		return
	}
	for _, rec := range roster.Records() {
		if rec.IsLive || rec.Status != models.StatusAbsent || rec.LeftAt == nil {
			continue
		}
		rec.Status = departureStatus(rec, host)
	}
}

// CloseAll ends every live record at now. Attendance is not accrued past
// the last observation.
func (c *StatusClassifier) CloseAll(roster *Roster, now time.Time) {
	for _, rec := range roster.Records() {
		if rec.IsLive {
			rec.IsLive = false
			rec.LeftAt = utils.TimePtr(now)
			rec.Status = attendedStatus(rec)
			continue
		}
		if rec.Status == models.StatusPending {
			rec.Status = attendedStatus(rec)
		}
	}
}

// departureStatus classifies a confirmed departure.
func departureStatus(rec *models.ParticipantRecord, host HostPresence) models.ParticipantStatus {
	if rec.IsHost {
		return models.StatusPresent
	}
	if !host.Left {
		return models.StatusAbsent
	}
	gap := utils.TimeValue(rec.LeftAt).Sub(host.LeftAt)
	if gap < 0 {
		gap = -gap
	}
	if gap > constants.GraceWindow {
		return models.StatusLeft
	}
	return attendedStatus(rec)
}

func attendedStatus(rec *models.ParticipantRecord) models.ParticipantStatus {
	if rec.JoinedLate && !rec.IsHost {
		return models.StatusLate
	}
	return models.StatusPresent
}
