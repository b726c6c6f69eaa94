// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

// Constants for the HTTP request headers
const (
	// AuthorizationHeader is the header name for the authorization
	AuthorizationHeader string = "authorization"

	// RequestIDHeader is the header name for the request ID
	RequestIDHeader string = "X-REQUEST-ID"

	// SubmissionKeyHeader carries the dedupe key of a report submission so the
	// backend can reject a repeat of an already accepted report.
	SubmissionKeyHeader string = "X-SUBMISSION-KEY"

	// ContentTypeJSON is the content type of every backend submission.
	ContentTypeJSON string = "application/json"
)

// contextRequestID is the type for the request ID context key
type contextRequestID string

// RequestIDContextID is the context ID for the request ID
const RequestIDContextID contextRequestID = "X-REQUEST-ID"

// Health check paths
const (
	LivezPath  = "/livez"
	ReadyzPath = "/readyz"
)
