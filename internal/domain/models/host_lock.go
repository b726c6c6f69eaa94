// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/utils"
)

// HostIdentity names the participant that is (or may become) the host.
type HostIdentity struct {
	IdentityKey string `json:"identity_key" msgpack:"identity_key"`
	DisplayName string `json:"display_name" msgpack:"display_name"`
}

// HostLock pins one participant as the meeting host for a session.
type HostLock struct {
	SessionKey        string        `json:"session_key"`
	LockedIdentity    *HostIdentity `json:"locked_identity,omitempty"`
	LockedAt          *time.Time    `json:"locked_at,omitempty"`
	ConfirmationCount int           `json:"confirmation_count"`
	MissedCount       int           `json:"missed_count"`
	CandidateIdentity *HostIdentity `json:"candidate_identity,omitempty"`
	HasLeft           bool          `json:"has_left"`
	LeftAt            *time.Time    `json:"left_at,omitempty"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// NewHostLock returns an empty, unlocked lock scoped to sessionKey.
func NewHostLock(sessionKey string, now time.Time) *HostLock {
	return &HostLock{SessionKey: sessionKey, UpdatedAt: now}
}

// IsLocked reports whether a host is pinned.
func (l *HostLock) IsLocked() bool {
	return l != nil && l.LockedIdentity != nil
}

// IsLockedTo reports whether identityKey is the pinned host.
func (l *HostLock) IsLockedTo(identityKey string) bool {
	return l.IsLocked() && l.LockedIdentity.IdentityKey == identityKey
}

// Clone returns a deep copy of the lock.
func (l *HostLock) Clone() *HostLock {
	if l == nil {
		return nil
	}
	c := *l
	if l.LockedIdentity != nil {
		id := *l.LockedIdentity
		c.LockedIdentity = &id
	}
	if l.CandidateIdentity != nil {
		id := *l.CandidateIdentity
		c.CandidateIdentity = &id
	}
	c.LockedAt = utils.CloneTime(l.LockedAt)
	c.LeftAt = utils.CloneTime(l.LeftAt)
	return &c
}
