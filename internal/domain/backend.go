// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package domain

import "context"

// Submission is one report delivery to the attendance backend.
type Submission struct {
	Endpoint      string
	SubmissionKey string
	Payload       []byte
	// BearerToken is empty for unauthenticated submissions.
	BearerToken string
}

// AttendanceBackend delivers reports to the backend API.
//
// Implementations classify failures with DomainError types: unavailable or
// internal for transient failures, unauthorized for rejected credentials,
// validation for rejected payloads. A report the backend already holds is
// reported as a conflict.
type AttendanceBackend interface {
	Submit(ctx context.Context, submission Submission) error
}
