// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import "time"

// TimePtr converts a time.Time to a pointer to a time.Time.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// TimeValue safely dereferences a time.Time pointer, returning zero time if nil.
func TimeValue(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Time{}
}

// CloneTime returns an independent copy of t, or nil.
func CloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return TimePtr(*t)
}
