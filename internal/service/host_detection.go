// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"regexp"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// Host detection reasons, reported in logs and metrics.
const (
	ReasonSourceFlagged   = "source_flagged"
	ReasonHostControls    = "host_controls"
	ReasonNameMarker      = "name_marker"
	ReasonRoleFlag        = "role_flag"
	ReasonSoleParticipant = "sole_participant"
)

// DetectionContext is the per-tick information shared by every detector.
type DetectionContext struct {
	Signals          models.HostSignals
	ObservationCount int
}

// HostDetection is the tagged result of a single detector.
type HostDetection struct {
	Matched bool
	Reason  string
}

// HostDetector is a pure predicate over one resolved observation.
type HostDetector func(obs models.ResolvedObservation, dctx DetectionContext) HostDetection

var (
	hostNameMarker = regexp.MustCompile(`(?i)(^|[\s\-(\[])(host|organi[sz]er)($|[\s\-)\]])`)
	coHostMarker   = regexp.MustCompile(`(?i)co-?\s?host`)

	hostRoles = map[string]struct{}{
		"host":      {},
		"cohost":    {},
		"co-host":   {},
		"presenter": {},
		"organizer": {},
		"organiser": {},
	}
)

// DefaultHostDetectors returns the detectors in priority order.
func DefaultHostDetectors() []HostDetector {
	return []HostDetector{
		detectSourceFlagged,
		detectHostControls,
		detectNameMarker,
		detectRoleFlag,
		detectSoleParticipant,
	}
}

func detectSourceFlagged(obs models.ResolvedObservation, _ DetectionContext) HostDetection {
	return HostDetection{Matched: obs.Observation.IsHost, Reason: ReasonSourceFlagged}
}

// detectHostControls matches the operator's own tile while host-only
// controls are visible to them.
func detectHostControls(obs models.ResolvedObservation, dctx DetectionContext) HostDetection {
	if !dctx.Signals.HostControlsVisible {
		return HostDetection{Reason: ReasonHostControls}
	}
	if obs.Observation.IsSelf {
		return HostDetection{Matched: true, Reason: ReasonHostControls}
	}
	operator := CleanDisplayName(dctx.Signals.OperatorName)
	matched := operator != "" && strings.EqualFold(operator, obs.CleanName)
	return HostDetection{Matched: matched, Reason: ReasonHostControls}
}

// detectNameMarker matches "(Host)" style suffixes. The raw name is used
// because cleaning drops parentheticals.
func detectNameMarker(obs models.ResolvedObservation, _ DetectionContext) HostDetection {
	name := obs.Observation.DisplayName
	matched := hostNameMarker.MatchString(name) && !coHostMarker.MatchString(name)
	return HostDetection{Matched: matched, Reason: ReasonNameMarker}
}

func detectRoleFlag(obs models.ResolvedObservation, _ DetectionContext) HostDetection {
	_, ok := hostRoles[strings.ToLower(strings.TrimSpace(obs.Observation.Role))]
	return HostDetection{Matched: ok, Reason: ReasonRoleFlag}
}

func detectSoleParticipant(_ models.ResolvedObservation, dctx DetectionContext) HostDetection {
	return HostDetection{Matched: dctx.ObservationCount == 1, Reason: ReasonSoleParticipant}
}

// DetectHost runs the detectors in order and returns the first observation
// matched by the highest priority detector, or nil.
func DetectHost(detectors []HostDetector, resolved []models.ResolvedObservation, signals models.HostSignals) (*models.ResolvedObservation, string) {
	dctx := DetectionContext{Signals: signals, ObservationCount: len(resolved)}
	for _, detect := range detectors {
		for i := range resolved {
			if result := detect(resolved[i], dctx); result.Matched {
				return &resolved[i], result.Reason
			}
		}
	}
	return nil, ""
}
