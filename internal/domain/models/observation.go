// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "time"

// Observation is one raw "participant seen" tuple from the observation source.
type Observation struct {
	// IdentityHint is a stable visual-identity token such as an avatar URL.
	IdentityHint string `json:"identity_hint,omitempty"`
	DisplayName  string `json:"display_name"`
	// IsHost is set when the source itself flags the participant as host.
	IsHost bool `json:"is_host,omitempty"`
	// IsSelf marks the observation of the operator running the source.
	IsSelf bool `json:"is_self,omitempty"`
	// Role is an explicit role or presenter flag, e.g. "host" or "presenter".
	Role string `json:"role,omitempty"`
}

// HostSignals are structural hints about the observation context.
type HostSignals struct {
	// HostControlsVisible reports that host-only UI affordances are visible
	// to the operator.
	HostControlsVisible bool   `json:"host_controls_visible"`
	OperatorName        string `json:"operator_name,omitempty"`
}

// ObservationTick is everything the source saw during one tick.
type ObservationTick struct {
	SessionKey   string        `json:"session_key"`
	ObservedAt   time.Time     `json:"observed_at"`
	Observations []Observation `json:"observations"`
	// Context is the loosely typed signal map sent by the source; it is
	// decoded into Signals on receipt.
	Context map[string]any `json:"context,omitempty"`
	Signals HostSignals    `json:"-"`
}

// ResolvedObservation is an observation mapped onto a canonical identity.
type ResolvedObservation struct {
	IdentityKey    string
	IdentityHint   string
	CleanName      string
	NormalizedName string
	Observation    Observation
}
