// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
)

// Roster holds the participant records of one session in first-seen order,
// with lookup indexes by identity hint and normalized name.
type Roster struct {
	records map[string]*models.ParticipantRecord
	order   []string
	byHint  map[string]string
	byName  map[string]string
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{
		records: make(map[string]*models.ParticipantRecord),
		byHint:  make(map[string]string),
		byName:  make(map[string]string),
	}
}

// Get returns the record for identityKey, or nil.
func (r *Roster) Get(identityKey string) *models.ParticipantRecord {
	return r.records[identityKey]
}

// Len returns the number of records.
func (r *Roster) Len() int {
	return len(r.order)
}

// LiveCount returns the number of records currently observed.
func (r *Roster) LiveCount() int {
	n := 0
	for _, rec := range r.records {
		if rec.IsLive {
			n++
		}
	}
	return n
}

// Add stores a new record and indexes it. normalizedName may be empty for
// records that must never be matched by name.
func (r *Roster) Add(rec *models.ParticipantRecord, normalizedName string) {
	if _, exists := r.records[rec.IdentityKey]; exists {
		return
	}
	r.records[rec.IdentityKey] = rec
	r.order = append(r.order, rec.IdentityKey)
	if rec.IdentityHint != "" {
		r.byHint[rec.IdentityHint] = rec.IdentityKey
	}
	if normalizedName != "" {
		if _, taken := r.byName[normalizedName]; !taken {
			r.byName[normalizedName] = rec.IdentityKey
		}
	}
}

// lookupHint returns the identity key indexed under hint.
func (r *Roster) lookupHint(hint string) (string, bool) {
	key, ok := r.byHint[hint]
	return key, ok
}

// lookupName returns the identity key indexed under a normalized name.
func (r *Roster) lookupName(normalizedName string) (string, bool) {
	key, ok := r.byName[normalizedName]
	return key, ok
}

// AdoptHint attaches hint to a record that was created without one.
func (r *Roster) AdoptHint(identityKey, hint string) {
	rec := r.records[identityKey]
	if rec == nil || rec.IdentityHint != "" || hint == "" {
		return
	}
	rec.IdentityHint = hint
	r.byHint[hint] = identityKey
}

// SetHost flags identityKey as the host and clears the flag everywhere else.
// It reports whether the host record exists.
func (r *Roster) SetHost(identityKey string) bool {
	found := false
	for key, rec := range r.records {
		rec.IsHost = key == identityKey
		found = found || rec.IsHost
	}
	return found
}

// Host returns the record flagged as host, or nil.
func (r *Roster) Host() *models.ParticipantRecord {
	for _, key := range r.order {
		if rec := r.records[key]; rec.IsHost {
			return rec
		}
	}
	return nil
}

// Records returns the live records in first-seen order.
func (r *Roster) Records() []*models.ParticipantRecord {
	out := make([]*models.ParticipantRecord, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key])
	}
	return out
}

// Snapshot returns deep copies of every record in first-seen order.
func (r *Roster) Snapshot() []*models.ParticipantRecord {
	out := make([]*models.ParticipantRecord, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.records[key].Clone())
	}
	return out
}
