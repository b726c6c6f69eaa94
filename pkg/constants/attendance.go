// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

import "time"

// Attendance classification windows. These are fixed product rules, not
// deployment settings.
const (
	// LateThreshold is how long after the session start a first observation
	// still counts as on time.
	LateThreshold = 15 * time.Minute

	// GraceWindow is the tolerance within which a participant's departure is
	// treated as leaving together with the host.
	GraceWindow = 5 * time.Minute
)

// Session token and host lock lifetimes
const (
	// SessionTokenTTL is how long an issued session token stays valid.
	SessionTokenTTL = 30 * time.Minute

	// SessionTokenRefreshBefore is how close to expiry an active session's
	// token gets re-issued during a tick.
	SessionTokenRefreshBefore = 5 * time.Minute

	// HostLockStaleAfter bounds the age of a persisted host lock that may be
	// restored after a restart.
	HostLockStaleAfter = 30 * time.Minute
)

// Host lock defaults
const (
	DefaultHostConfirmationThreshold = 2
	DefaultHostMissedThreshold       = 3
	DefaultDepartureMissThreshold    = 2
)

// Finalization debounce
const (
	// CriticalFinalizeDelay is used for explicit close and end markers.
	CriticalFinalizeDelay = 200 * time.Millisecond

	// NormalFinalizeDelay absorbs flapping signals such as visibility loss.
	NormalFinalizeDelay = 2 * time.Second

	// MaxFinalizeAttempts caps how many times finalize may run after failures.
	MaxFinalizeAttempts = 3
)

// Submission retry queue
const (
	// MaxRetryAttempts is the number of queued delivery attempts before an
	// entry is dropped.
	MaxRetryAttempts = 3

	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay = 2 * time.Second

	// DefaultDrainWorkers is how many queued submissions are delivered at once.
	DefaultDrainWorkers = 4
)

// Liveness and periodic work defaults
const (
	DefaultProgressInterval        = time.Minute
	DefaultDrainInterval           = 5 * time.Second
	DefaultLivenessInterval        = 30 * time.Second
	DefaultVisibilityLossThreshold = time.Minute
	DefaultEmptyMeetingTimeout     = 5 * time.Minute
	DefaultStaleTickTimeout        = 3 * time.Minute
	DefaultEndingTimeout           = 2 * time.Minute
)

// Backend endpoints
const (
	ProgressEndpoint = "/progress"
	FinalEndpoint    = "/attendance/final"
)

// UnknownParticipantName is shown for observations without a usable name.
const UnknownParticipantName = "Unknown"
