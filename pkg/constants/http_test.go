// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

import (
	"testing"
	"time"
)

func TestHTTPHeaderConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{
			name:     "AuthorizationHeader",
			constant: AuthorizationHeader,
			expected: "authorization",
		},
		{
			name:     "RequestIDHeader",
			constant: RequestIDHeader,
			expected: "X-REQUEST-ID",
		},
		{
			name:     "SubmissionKeyHeader",
			constant: SubmissionKeyHeader,
			expected: "X-SUBMISSION-KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, tt.constant)
			}
		})
	}
}

func TestAttendanceWindows(t *testing.T) {
	if LateThreshold != 15*time.Minute {
		t.Errorf("expected late threshold of 15m, got %s", LateThreshold)
	}
	if GraceWindow != 5*time.Minute {
		t.Errorf("expected grace window of 5m, got %s", GraceWindow)
	}
	if SessionTokenTTL != 30*time.Minute {
		t.Errorf("expected token TTL of 30m, got %s", SessionTokenTTL)
	}
	if MaxRetryAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", MaxRetryAttempts)
	}
	if RetryBaseDelay != 2*time.Second {
		t.Errorf("expected 2s base delay, got %s", RetryBaseDelay)
	}
	if CriticalFinalizeDelay >= NormalFinalizeDelay {
		t.Error("critical finalize delay must be shorter than the normal one")
	}
}
