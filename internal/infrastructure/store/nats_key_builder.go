// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/nats-io/nats.go"
)

// Common key prefixes
const (
	KeyPrefixSession    = "session"
	KeyPrefixHostLock   = "host-lock"
	KeyPrefixSnapshot   = "snapshot"
	KeyPrefixRetry      = "retry"
	KeyPrefixLedger     = "ledger"
	KeyPrefixDeadLetter = "dead-letter"

	// KeyCurrent names the singleton entry of a prefix.
	KeyCurrent = "current"
)

// KeyBuilder provides utilities for building consistent NATS KV keys
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with an optional prefix, e.g. a
// client ID when several clients share one bucket.
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix: prefix,
	}
}

// EntityKey builds a key for an entity (e.g., "retry/3mJr7AoUXx2Wqd")
func (kb *KeyBuilder) EntityKey(entityType, id string) string {
	return kb.applyPrefix(fmt.Sprintf("%s/%s", entityType, id), false)
}

// EntityKeyEncoded builds an encoded key for an entity whose ID may contain
// characters NATS does not allow in keys, such as a meeting URL.
func (kb *KeyBuilder) EntityKeyEncoded(entityType, id string) string {
	return kb.applyPrefix(fmt.Sprintf("%s/%s", entityType, id), true)
}

// EntityPrefix is the key prefix shared by every entity of a type.
func (kb *KeyBuilder) EntityPrefix(entityType string) string {
	return kb.applyPrefix(entityType+"/", false)
}

// applyPrefix adds the builder's prefix if one is set
func (kb *KeyBuilder) applyPrefix(key string, encode bool) string {
	fullKey := key
	if kb.prefix != "" {
		fullKey = fmt.Sprintf("%s/%s", kb.prefix, key)
	}

	if encode {
		encodedKey, err := kb.EncodeKey(fullKey)
		if err != nil {
			slog.Error("error encoding key", logging.ErrKey, err, "key", fullKey)
			return fullKey
		}
		return encodedKey
	}
	return fullKey
}

// EncodeKey encodes each "/" separated part of a key with URL-safe base64
// and joins them with ".", so every part only uses characters NATS accepts.
// Adapted from https://github.com/ripienaar/encodedkv
//
// NATS limitations: https://docs.nats.io/nats-concepts/jetstream/key-value-store#notes
func (kb *KeyBuilder) EncodeKey(key string) (string, error) {
	res := []string{}
	for _, part := range strings.Split(strings.Trim(key, "/"), "/") {
		if part == "" {
			continue
		}
		if part == ">" || part == "*" {
			res = append(res, part)
			continue
		}
		res = append(res, base64.RawURLEncoding.EncodeToString([]byte(part)))
	}

	if len(res) == 0 {
		return "", nats.ErrInvalidKey
	}

	return strings.Join(res, "."), nil
}

// DecodeKey reverses EncodeKey.
func (kb *KeyBuilder) DecodeKey(key string) (string, error) {
	if key == "" {
		return "", nats.ErrInvalidKey
	}

	res := []string{}
	for _, part := range strings.Split(key, ".") {
		k, err := base64.RawURLEncoding.DecodeString(part)
		if err != nil {
			return "", err
		}
		res = append(res, string(k))
	}

	return fmt.Sprintf("/%s", strings.Join(res, "/")), nil
}
