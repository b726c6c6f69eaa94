// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
)

type Service interface {
	ServiceReady() bool
}

// ServiceConfig is the configuration for the attendance engine.
type ServiceConfig struct {
	// HostConfirmationThreshold is how many consecutive ticks must detect the
	// same candidate before it is locked as host.
	HostConfirmationThreshold int
	// HostMissedThreshold is how many consecutive ticks the locked host may
	// be missing before it is considered gone.
	HostMissedThreshold int
	// HostPermanentLock keeps the lock when the host goes missing and only
	// marks it as having left.
	HostPermanentLock bool
	// DepartureMissThreshold is how many consecutive ticks a participant may
	// be missing before the departure is confirmed.
	DepartureMissThreshold int

	ProgressInterval        time.Duration
	DrainInterval           time.Duration
	LivenessInterval        time.Duration
	VisibilityLossThreshold time.Duration
	EmptyMeetingTimeout     time.Duration
	StaleTickTimeout        time.Duration
	EndingTimeout           time.Duration

	// DrainWorkers bounds concurrent retry deliveries.
	DrainWorkers int
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		HostConfirmationThreshold: constants.DefaultHostConfirmationThreshold,
		HostMissedThreshold:       constants.DefaultHostMissedThreshold,
		DepartureMissThreshold:    constants.DefaultDepartureMissThreshold,
		ProgressInterval:          constants.DefaultProgressInterval,
		DrainInterval:             constants.DefaultDrainInterval,
		LivenessInterval:          constants.DefaultLivenessInterval,
		VisibilityLossThreshold:   constants.DefaultVisibilityLossThreshold,
		EmptyMeetingTimeout:       constants.DefaultEmptyMeetingTimeout,
		StaleTickTimeout:          constants.DefaultStaleTickTimeout,
		EndingTimeout:             constants.DefaultEndingTimeout,
		DrainWorkers:              constants.DefaultDrainWorkers,
	}
}

// withDefaults fills zero values from DefaultServiceConfig.
func (c ServiceConfig) withDefaults() ServiceConfig {
	d := DefaultServiceConfig()
	if c.HostConfirmationThreshold <= 0 {
		c.HostConfirmationThreshold = d.HostConfirmationThreshold
	}
	if c.HostMissedThreshold <= 0 {
		c.HostMissedThreshold = d.HostMissedThreshold
	}
	if c.DepartureMissThreshold <= 0 {
		c.DepartureMissThreshold = d.DepartureMissThreshold
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = d.ProgressInterval
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = d.DrainInterval
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = d.LivenessInterval
	}
	if c.VisibilityLossThreshold <= 0 {
		c.VisibilityLossThreshold = d.VisibilityLossThreshold
	}
	if c.EmptyMeetingTimeout <= 0 {
		c.EmptyMeetingTimeout = d.EmptyMeetingTimeout
	}
	if c.StaleTickTimeout <= 0 {
		c.StaleTickTimeout = d.StaleTickTimeout
	}
	if c.EndingTimeout <= 0 {
		c.EndingTimeout = d.EndingTimeout
	}
	if c.DrainWorkers <= 0 {
		c.DrainWorkers = d.DrainWorkers
	}
	return c
}
