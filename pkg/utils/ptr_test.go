// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"testing"
	"time"
)

func TestTimePtrValueRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	ptr := TimePtr(now)
	if ptr == nil {
		t.Fatal("expected non-nil pointer")
	}
	if !TimeValue(ptr).Equal(now) {
		t.Errorf("expected %s, got %s", now, TimeValue(ptr))
	}
	if !TimeValue(nil).IsZero() {
		t.Error("expected zero time for nil pointer")
	}
}

func TestCloneTime(t *testing.T) {
	if CloneTime(nil) != nil {
		t.Error("expected nil clone of nil pointer")
	}

	original := TimePtr(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
	clone := CloneTime(original)
	if clone == original {
		t.Error("expected a distinct pointer")
	}
	*clone = clone.Add(time.Hour)
	if original.Equal(*clone) {
		t.Error("mutating the clone must not affect the original")
	}
}
