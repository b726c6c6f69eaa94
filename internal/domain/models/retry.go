// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"encoding/json"
	"time"
)

// RetryQueueEntry is a submission that failed and waits for another attempt.
type RetryQueueEntry struct {
	ID            string          `msgpack:"id" json:"id"`
	SubmissionKey string          `msgpack:"submission_key" json:"submission_key"`
	Endpoint      string          `msgpack:"endpoint" json:"endpoint"`
	Payload       json.RawMessage `msgpack:"payload" json:"payload"`
	AttemptCount  int             `msgpack:"attempt_count" json:"attempt_count"`
	NextRetryAt   time.Time       `msgpack:"next_retry_at" json:"next_retry_at"`
	CreatedAt     time.Time       `msgpack:"created_at" json:"created_at"`
	LastError     string          `msgpack:"last_error,omitempty" json:"last_error,omitempty"`
}

// IsDue reports whether the entry may be attempted at now.
func (e *RetryQueueEntry) IsDue(now time.Time) bool {
	return !e.NextRetryAt.After(now)
}

// SubmissionRecord marks a submission key the backend accepted.
type SubmissionRecord struct {
	SubmissionKey string    `msgpack:"submission_key" json:"submission_key"`
	Endpoint      string    `msgpack:"endpoint" json:"endpoint"`
	DeliveredAt   time.Time `msgpack:"delivered_at" json:"delivered_at"`
}

// DroppedSubmission is the terminal failure marker left behind when an
// entry exhausts its attempts.
type DroppedSubmission struct {
	Entry     RetryQueueEntry `msgpack:"entry" json:"entry"`
	DroppedAt time.Time       `msgpack:"dropped_at" json:"dropped_at"`
	Reason    string          `msgpack:"reason" json:"reason"`
}
