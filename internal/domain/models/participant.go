// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/utils"
)

// ParticipantStatus is the attendance classification of a participant.
type ParticipantStatus string

// Participant statuses
const (
	StatusPending ParticipantStatus = "pending"
	StatusPresent ParticipantStatus = "present"
	StatusLate    ParticipantStatus = "late"
	StatusAbsent  ParticipantStatus = "absent"
	StatusLeft    ParticipantStatus = "left"
)

// IsTerminal reports whether the status is only assigned on departure.
func (s ParticipantStatus) IsTerminal() bool {
	return s == StatusLate || s == StatusAbsent || s == StatusLeft
}

// ParticipantRecord is the reconciled attendance of one identity.
type ParticipantRecord struct {
	IdentityKey     string            `json:"identity_key" msgpack:"identity_key"`
	IdentityHint    string            `json:"identity_hint,omitempty" msgpack:"identity_hint,omitempty"`
	DisplayName     string            `json:"display_name" msgpack:"display_name"`
	IsHost          bool              `json:"is_host" msgpack:"is_host"`
	JoinedAt        time.Time         `json:"joined_at" msgpack:"joined_at"`
	LeftAt          *time.Time        `json:"left_at,omitempty" msgpack:"left_at,omitempty"`
	AttendedSeconds int64             `json:"attended_seconds" msgpack:"attended_seconds"`
	Status          ParticipantStatus `json:"status" msgpack:"status"`
	IsLive          bool              `json:"is_live" msgpack:"is_live"`
	// JoinedLate is decided at first observation and applied on departure.
	JoinedLate bool      `json:"joined_late,omitempty" msgpack:"joined_late,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at" msgpack:"last_seen_at"`
	// AttendedTime is the exact accrued time; AttendedSeconds is derived from it.
	AttendedTime time.Duration `json:"attended_time_ns,omitempty" msgpack:"attended_time_ns,omitempty"`
	MissedTicks  int           `json:"-" msgpack:"-"`
}

// Clone returns a deep copy of the record.
func (p *ParticipantRecord) Clone() *ParticipantRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.LeftAt = utils.CloneTime(p.LeftAt)
	return &c
}

// AttendedDuration returns the accrued attendance as a duration. A record
// that only carries whole seconds counts from those.
func (p *ParticipantRecord) AttendedDuration() time.Duration {
	if p == nil {
		return 0
	}
	return max(p.AttendedTime, time.Duration(p.AttendedSeconds)*time.Second)
}

// Accrue adds d to the attended time. Sub-second remainders are kept so
// frequent ticks add up.
func (p *ParticipantRecord) Accrue(d time.Duration) {
	if d <= 0 {
		return
	}
	p.AttendedTime = p.AttendedDuration() + d
	p.AttendedSeconds = int64(p.AttendedTime / time.Second)
}
