// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes entities for a KV bucket.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is used for the synchronized scope, which other tools read.
type JSONCodec struct{}

func (JSONCodec) Name() string                       { return "json" }
func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MsgpackCodec is used for the local scope, where snapshots and queued
// payloads are rewritten every tick.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string                       { return "msgpack" }
func (MsgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
