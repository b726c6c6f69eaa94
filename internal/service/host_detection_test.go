// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

func resolvedObs(key, name string, obs models.Observation) models.ResolvedObservation {
	obs.DisplayName = name
	return models.ResolvedObservation{
		IdentityKey: key,
		CleanName:   CleanDisplayName(name),
		Observation: obs,
	}
}

func TestHostDetectors(t *testing.T) {
	tests := []struct {
		name     string
		detector HostDetector
		obs      models.ResolvedObservation
		dctx     DetectionContext
		expected bool
	}{
		{
			name:     "source flagged",
			detector: detectSourceFlagged,
			obs:      resolvedObs("a", "Alice", models.Observation{IsHost: true}),
			expected: true,
		},
		{
			name:     "host controls on own tile",
			detector: detectHostControls,
			obs:      resolvedObs("a", "Alice", models.Observation{IsSelf: true}),
			dctx:     DetectionContext{Signals: models.HostSignals{HostControlsVisible: true}},
			expected: true,
		},
		{
			name:     "host controls match operator name",
			detector: detectHostControls,
			obs:      resolvedObs("a", "Alice Smith", models.Observation{}),
			dctx:     DetectionContext{Signals: models.HostSignals{HostControlsVisible: true, OperatorName: "alice smith (LF)"}},
			expected: true,
		},
		{
			name:     "host controls hidden",
			detector: detectHostControls,
			obs:      resolvedObs("a", "Alice", models.Observation{IsSelf: true}),
			expected: false,
		},
		{
			name:     "host marker in name",
			detector: detectNameMarker,
			obs:      resolvedObs("a", "Alice (Host)", models.Observation{}),
			expected: true,
		},
		{
			name:     "organizer marker in name",
			detector: detectNameMarker,
			obs:      resolvedObs("a", "Alice - Organizer", models.Observation{}),
			expected: true,
		},
		{
			name:     "co-host is not host",
			detector: detectNameMarker,
			obs:      resolvedObs("a", "Alice (Co-host)", models.Observation{}),
			expected: false,
		},
		{
			name:     "host as part of a word",
			detector: detectNameMarker,
			obs:      resolvedObs("a", "Hostetler", models.Observation{}),
			expected: false,
		},
		{
			name:     "presenter role",
			detector: detectRoleFlag,
			obs:      resolvedObs("a", "Alice", models.Observation{Role: "Presenter"}),
			expected: true,
		},
		{
			name:     "attendee role",
			detector: detectRoleFlag,
			obs:      resolvedObs("a", "Alice", models.Observation{Role: "attendee"}),
			expected: false,
		},
		{
			name:     "sole participant",
			detector: detectSoleParticipant,
			obs:      resolvedObs("a", "Alice", models.Observation{}),
			dctx:     DetectionContext{ObservationCount: 1},
			expected: true,
		},
		{
			name:     "not alone",
			detector: detectSoleParticipant,
			obs:      resolvedObs("a", "Alice", models.Observation{}),
			dctx:     DetectionContext{ObservationCount: 2},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.detector(tt.obs, tt.dctx).Matched)
		})
	}
}

func TestDetectHost_PriorityOrder(t *testing.T) {
	detectors := DefaultHostDetectors()

	t.Run("higher priority detector wins over observation order", func(t *testing.T) {
		resolved := []models.ResolvedObservation{
			resolvedObs("a", "Alice (Host)", models.Observation{}),
			resolvedObs("b", "Bob", models.Observation{IsHost: true}),
		}
		host, reason := DetectHost(detectors, resolved, models.HostSignals{})
		require.NotNil(t, host)
		assert.Equal(t, "b", host.IdentityKey)
		assert.Equal(t, ReasonSourceFlagged, reason)
	})

	t.Run("first matching observation wins within a detector", func(t *testing.T) {
		resolved := []models.ResolvedObservation{
			resolvedObs("a", "Alice", models.Observation{Role: "host"}),
			resolvedObs("b", "Bob", models.Observation{Role: "host"}),
		}
		host, reason := DetectHost(detectors, resolved, models.HostSignals{})
		require.NotNil(t, host)
		assert.Equal(t, "a", host.IdentityKey)
		assert.Equal(t, ReasonRoleFlag, reason)
	})

	t.Run("sole participant fallback", func(t *testing.T) {
		host, reason := DetectHost(detectors, []models.ResolvedObservation{resolvedObs("a", "Alice", models.Observation{})}, models.HostSignals{})
		require.NotNil(t, host)
		assert.Equal(t, ReasonSoleParticipant, reason)
	})

	t.Run("no match", func(t *testing.T) {
		resolved := []models.ResolvedObservation{
			resolvedObs("a", "Alice", models.Observation{}),
			resolvedObs("b", "Bob", models.Observation{}),
		}
		host, reason := DetectHost(detectors, resolved, models.HostSignals{})
		assert.Nil(t, host)
		assert.Empty(t, reason)
	})
}
