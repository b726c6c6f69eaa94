// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/constants"
)

// Identity key prefixes
const (
	identityKeyHint    = "hint:"
	identityKeyName    = "name:"
	identityKeyUnknown = "unknown:"
)

// fillerTokens are UI chrome words that leak into scraped display names,
// mostly icon ligatures rendered as text.
var fillerTokens = map[string]struct{}{
	"mic_off":          {},
	"mic_none":         {},
	"mic_external_off": {},
	"videocam_off":     {},
	"videocam":         {},
	"more_vert":        {},
	"more_horiz":       {},
	"keep":             {},
	"keep_outline":     {},
	"keep_off":         {},
	"push_pin":         {},
	"frame_person":     {},
	"visual_effects":   {},
	"closed_caption":   {},
	"present_to_all":   {},
	"back_hand":        {},
	"devices":          {},
	"muted":            {},
	"unmuted":          {},
	"presenting":       {},
}

// placeholderNames are never used as merge keys.
var placeholderNames = map[string]struct{}{
	"unknown":     {},
	"participant": {},
	"anonymous":   {},
}

// CleanDisplayName removes UI filler tokens and a trailing parenthetical
// organization, e.g. "Jane Doe (The Linux Foundation) mic_off" becomes
// "Jane Doe". It returns "" when nothing usable remains.
func CleanDisplayName(name string) string {
	if idx := strings.Index(name, "("); idx != -1 {
		name = name[:idx]
	}

	kept := make([]string, 0, 4)
	for _, token := range strings.Fields(name) {
		if _, filler := fillerTokens[strings.ToLower(token)]; filler {
			continue
		}
		kept = append(kept, token)
	}
	return strings.Join(kept, " ")
}

// normalizeName case-folds and collapses whitespace. Placeholders normalize
// to "".
func normalizeName(clean string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(clean), " "))
	if _, placeholder := placeholderNames[norm]; placeholder {
		return ""
	}
	return norm
}

// IdentityResolver maps raw observations onto stable identity keys.
type IdentityResolver struct{}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{}
}

// Resolve returns one entry per distinct identity in observations, in
// observation order. Within the batch the first occurrence of a key wins.
// Records in roster are preferred when either the hint or the name matches,
// and a name-keyed record seen with a hint for the first time adopts it.
// Resolve never adds records to roster.
func (r *IdentityResolver) Resolve(ctx context.Context, observations []models.Observation, roster *Roster) []models.ResolvedObservation {
	resolved := make([]models.ResolvedObservation, 0, len(observations))
	seen := make(map[string]int, len(observations))
	batchHints := make(map[string]string)
	batchNames := make(map[string]string)
	unknowns := 0

	for _, obs := range observations {
		hint := strings.TrimSpace(obs.IdentityHint)
		clean := CleanDisplayName(obs.DisplayName)
		norm := normalizeName(clean)
		if norm == "" {
			clean = constants.UnknownParticipantName
		}

		key := ""
		switch {
		case hint != "":
			if k, ok := roster.lookupHint(hint); ok {
				key = k
			} else if k, ok := batchHints[hint]; ok {
				key = k
			} else if k, ok := roster.lookupName(norm); ok {
				if roster.Get(k).IdentityHint == "" {
					roster.AdoptHint(k, hint)
					slog.DebugContext(ctx, "name-keyed participant adopted identity hint",
						"identity_key", k)
				}
				key = k
			} else if k, ok := batchNames[norm]; ok {
				key = k
			} else {
				key = identityKeyHint + hint
			}
		case norm != "":
			if k, ok := roster.lookupName(norm); ok {
				key = k
			} else if k, ok := batchNames[norm]; ok {
				key = k
			} else {
				key = identityKeyName + norm
			}
		default:
			// Unknowns are never merged with each other within a tick. The
			// ordinal is their only key, so the n-th unknown of one tick
			// continues the n-th unknown of the previous one.
			unknowns++
			key = fmt.Sprintf("%s%d", identityKeyUnknown, unknowns)
		}

		if hint != "" {
			batchHints[hint] = key
		}
		if norm != "" {
			if _, taken := batchNames[norm]; !taken {
				batchNames[norm] = key
			}
		}

		if idx, dup := seen[key]; dup {
			// a later hint completes an unhinted first occurrence
			if resolved[idx].IdentityHint == "" && roster.Get(key) == nil {
				resolved[idx].IdentityHint = hint
			}
			continue
		}
		seen[key] = len(resolved)

		resolved = append(resolved, models.ResolvedObservation{
			IdentityKey:    key,
			IdentityHint:   hint,
			CleanName:      clean,
			NormalizedName: norm,
			Observation:    obs,
		})
	}

	return resolved
}
