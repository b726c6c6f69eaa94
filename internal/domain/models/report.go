// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"fmt"
	"time"

	"github.com/akamensky/base58"
)

// ReportKind distinguishes incremental from final reports.
type ReportKind string

// Report kinds
const (
	ReportProgress ReportKind = "progress"
	ReportFinal    ReportKind = "final"
)

// AttendanceReport is the payload POSTed to the backend. Token fields are
// attached at send time so retried reports use the freshest credentials.
type AttendanceReport struct {
	SubmissionKey     string               `json:"submission_key"`
	Kind              ReportKind           `json:"kind"`
	SessionKey        string               `json:"session_key"`
	GeneratedAt       time.Time            `json:"generated_at"`
	SessionStartedAt  *time.Time           `json:"session_started_at,omitempty"`
	Host              *HostIdentity        `json:"host,omitempty"`
	Participants      []*ParticipantRecord `json:"participants"`
	IsUnauthenticated bool                 `json:"is_unauthenticated"`
	TokenID           string               `json:"token_id,omitempty"`
	TokenExpiresAt    *time.Time           `json:"token_expires_at,omitempty"`
}

// LiveSnapshot is the per-tick view written for display surfaces.
type LiveSnapshot struct {
	SessionKey       string               `json:"session_key" msgpack:"session_key"`
	UpdatedAt        time.Time            `json:"updated_at" msgpack:"updated_at"`
	ParticipantCount int                  `json:"participant_count" msgpack:"participant_count"`
	Participants     []*ParticipantRecord `json:"participants" msgpack:"participants"`
	HostLocked       bool                 `json:"host_locked" msgpack:"host_locked"`
	LockedHostInfo   *HostIdentity        `json:"locked_host_info,omitempty" msgpack:"locked_host_info,omitempty"`
}

// SubmissionKey derives the dedupe key of a report: the session key plus the
// UTC date, base58 encoded so it is safe as a KV key token.
func SubmissionKey(kind ReportKind, sessionKey string, at time.Time) string {
	raw := fmt.Sprintf("%s|%s|%s", kind, sessionKey, at.UTC().Format(time.DateOnly))
	return base58.Encode([]byte(raw))
}

// DecodeSubmissionKey reverses SubmissionKey, mostly for log output.
func DecodeSubmissionKey(key string) (string, error) {
	raw, err := base58.Decode(key)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
