// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"time"
)

// SessionState is the lifecycle state of the recording session.
type SessionState string

// Session states
const (
	SessionIdle   SessionState = "idle"
	SessionActive SessionState = "active"
	SessionEnding SessionState = "ending"
	SessionEnded  SessionState = "ended"
)

// IsRest reports whether the state allows a new session to start.
func (s SessionState) IsRest() bool {
	return s == "" || s == SessionIdle || s == SessionEnded
}

// Session is the client's single recording session.
type Session struct {
	State            SessionState `json:"state"`
	SessionKey       string       `json:"session_key,omitempty"`
	StartedAt        *time.Time   `json:"started_at,omitempty"`
	TokenID          string       `json:"token_id,omitempty"`
	TokenIssuedAt    *time.Time   `json:"token_issued_at,omitempty"`
	TokenExpiresAt   *time.Time   `json:"token_expires_at,omitempty"`
	ParticipantCount int          `json:"participant_count"`
	LastUpdatedAt    time.Time    `json:"last_updated_at"`
	EndingSince      *time.Time   `json:"ending_since,omitempty"`
}

// IdleSession is the rest state returned when no session exists.
func IdleSession(now time.Time) *Session {
	return &Session{State: SessionIdle, LastUpdatedAt: now}
}

// TokenValid reports whether the session token is still usable at now.
func (s *Session) TokenValid(now time.Time) bool {
	return s != nil && s.TokenID != "" && s.TokenExpiresAt != nil && now.Before(*s.TokenExpiresAt)
}

// IsActiveFor reports whether sessionKey owns the active session.
func (s *Session) IsActiveFor(sessionKey string) bool {
	return s != nil && s.State == SessionActive && s.SessionKey == sessionKey
}
