// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// NATS subjects that the attendance engine handles messages about.
const (
	// ObservationsSubject carries one ObservationTick per message.
	// The subject is of the form: lfx.meeting-attendance.observations
	ObservationsSubject = "lfx.meeting-attendance.observations"

	// VisibilitySubject carries VisibilityMessage updates.
	// The subject is of the form: lfx.meeting-attendance.visibility
	VisibilitySubject = "lfx.meeting-attendance.visibility"

	// EndMarkerSubject carries EndSignalMessage when the meeting UI shows an
	// end-of-meeting marker.
	// The subject is of the form: lfx.meeting-attendance.end_marker
	EndMarkerSubject = "lfx.meeting-attendance.end_marker"

	// CloseSubject is sent when the observation source is closed or unloaded.
	// The subject is of the form: lfx.meeting-attendance.close
	CloseSubject = "lfx.meeting-attendance.close"

	// EndNowSubject is the operator "end now" request. Replies with the final report.
	// The subject is of the form: lfx.meeting-attendance.end_now
	EndNowSubject = "lfx.meeting-attendance.end_now"

	// ClearSubject resets the session and roster.
	// The subject is of the form: lfx.meeting-attendance.clear
	ClearSubject = "lfx.meeting-attendance.clear"

	// StatusSubject replies with StatusResponse.
	// The subject is of the form: lfx.meeting-attendance.status
	StatusSubject = "lfx.meeting-attendance.status"
)

// NATS subjects that the attendance engine publishes to.
const (
	SnapshotSubject          = "lfx.meeting-attendance.snapshot"
	ReportFinalizedSubject   = "lfx.meeting-attendance.report_finalized"
	SubmissionDroppedSubject = "lfx.meeting-attendance.submission_dropped"
	NoticeSubject            = "lfx.meeting-attendance.notice"
)

// VisibilityMessage reports whether the meeting view is hidden.
type VisibilityMessage struct {
	SessionKey string `json:"session_key"`
	Hidden     bool   `json:"hidden"`
}

// EndSignalMessage is the body of close, end marker, end now and clear messages.
type EndSignalMessage struct {
	SessionKey string `json:"session_key"`
	Reason     string `json:"reason,omitempty"`
}

// NoticeKind names a one-time user-facing notice.
type NoticeKind string

// Notice kinds
const (
	NoticeUnauthenticated NoticeKind = "unauthenticated_submission"
	NoticeSessionBlocked  NoticeKind = "session_blocked"
)

// NoticeMessage is published on NoticeSubject.
type NoticeMessage struct {
	Kind       NoticeKind `json:"kind"`
	SessionKey string     `json:"session_key,omitempty"`
	Message    string     `json:"message"`
	SentAt     time.Time  `json:"sent_at"`
}

// StatusResponse is the reply to StatusSubject requests.
type StatusResponse struct {
	Session      *Session      `json:"session"`
	Snapshot     *LiveSnapshot `json:"snapshot,omitempty"`
	Finalization string        `json:"finalization"`
	QueueLength  int           `json:"queue_length"`
}

// ErrorResponse is the reply sent to a request that could not be served.
type ErrorResponse struct {
	Error string `json:"error"`
}
