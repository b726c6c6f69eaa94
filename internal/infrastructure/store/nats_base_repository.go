// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NATS Key-Value store bucket names
const (
	// KVStoreNameSync holds state shared by every engine instance of a
	// client: the session and the host lock.
	KVStoreNameSync = "meeting-attendance-sync"
	// KVStoreNameLocal holds per-instance state: snapshots, the retry queue,
	// the delivery ledger and dead letters.
	KVStoreNameLocal = "meeting-attendance-local"
)

// tracerName is the instrumentation name for the store package.
const tracerName = "github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/store"

// errWrongLastSequence is the server message for a failed revision check.
const errWrongLastSequence = "wrong last sequence"

// INatsKeyValue is the subset of jetstream.KeyValue the repositories use.
type INatsKeyValue interface {
	ListKeys(context.Context, ...jetstream.WatchOpt) (jetstream.KeyLister, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(context.Context, string, []byte) (uint64, error)
	Update(context.Context, string, []byte, uint64) (uint64, error)
	Delete(context.Context, string, ...jetstream.KVDeleteOpt) error
}

// NatsBaseRepository provides common NATS KV operations that can be reused across all repositories
type NatsBaseRepository[T any] struct {
	kvStore    INatsKeyValue
	codec      Codec
	entityName string // Used in error messages (e.g., "session", "retry entry")
}

// NewNatsBaseRepository creates a new base repository for NATS KV operations.
// A nil codec defaults to JSON.
func NewNatsBaseRepository[T any](kvStore INatsKeyValue, codec Codec, entityName string) *NatsBaseRepository[T] {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &NatsBaseRepository[T]{
		kvStore:    kvStore,
		codec:      codec,
		entityName: entityName,
	}
}

// IsReady checks if the repository is ready for use
func (r *NatsBaseRepository[T]) IsReady() bool {
	return r.kvStore != nil
}

func (r *NatsBaseRepository[T]) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "nats"),
		attribute.String("db.operation", operation),
		attribute.String("db.nats.entity", r.entityName),
		attribute.String("db.nats.codec", r.codec.Name()),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("db.nats.key", key))
	}
	return otel.Tracer(tracerName).Start(ctx, "nats.kv."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func recordSpanError(span trace.Span, err error, status string) error {
	span.RecordError(err)
	if status == "" {
		status = err.Error()
	}
	span.SetStatus(codes.Error, status)
	return err
}

func (r *NatsBaseRepository[T]) unavailable() error {
	return domain.NewUnavailableError(fmt.Sprintf("%s repository is not available", r.entityName))
}

// GetRaw retrieves a raw entry from NATS KV store
func (r *NatsBaseRepository[T]) GetRaw(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	ctx, span := r.startSpan(ctx, "get", key)
	defer span.End()

	if !r.IsReady() {
		return nil, recordSpanError(span, r.unavailable(), "")
	}

	entry, err := r.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			err = domain.NewNotFoundError(
				fmt.Sprintf("%s with key '%s' not found", r.entityName, key), err)
			return nil, recordSpanError(span, err, "not found")
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error getting %s from NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		err = domain.NewUnavailableError(
			fmt.Sprintf("failed to retrieve %s from store", r.entityName), err)
		return nil, recordSpanError(span, err, "")
	}

	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// Get retrieves and decodes an entity from NATS KV store
func (r *NatsBaseRepository[T]) Get(ctx context.Context, key string) (*T, error) {
	entity, _, err := r.GetWithRevision(ctx, key)
	return entity, err
}

// GetWithRevision retrieves an entity with its revision from NATS KV store
func (r *NatsBaseRepository[T]) GetWithRevision(ctx context.Context, key string) (*T, uint64, error) {
	entry, err := r.GetRaw(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	entity, err := r.Unmarshal(ctx, entry.Value())
	if err != nil {
		return nil, 0, domain.NewInternalError(
			fmt.Sprintf("failed to decode %s data", r.entityName), err)
	}

	return entity, entry.Revision(), nil
}

// Unmarshal decodes stored bytes into the entity type
func (r *NatsBaseRepository[T]) Unmarshal(ctx context.Context, data []byte) (*T, error) {
	var entity T
	if err := r.codec.Unmarshal(data, &entity); err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error decoding %s", r.entityName),
			logging.ErrKey, err, "codec", r.codec.Name())
		return nil, err
	}

	return &entity, nil
}

// Marshal encodes an entity with the repository codec
func (r *NatsBaseRepository[T]) Marshal(ctx context.Context, entity *T) ([]byte, error) {
	data, err := r.codec.Marshal(entity)
	if err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error encoding %s", r.entityName),
			logging.ErrKey, err, "codec", r.codec.Name())
		return nil, err
	}

	return data, nil
}

// Exists checks if an entity exists in the store
func (r *NatsBaseRepository[T]) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.GetRaw(ctx, key)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Put writes an entity regardless of the stored revision and returns the new one
func (r *NatsBaseRepository[T]) Put(ctx context.Context, key string, entity *T) (uint64, error) {
	ctx, span := r.startSpan(ctx, "put", key)
	defer span.End()

	if !r.IsReady() {
		return 0, recordSpanError(span, r.unavailable(), "")
	}

	data, err := r.Marshal(ctx, entity)
	if err != nil {
		err = domain.NewInternalError(fmt.Sprintf("failed to encode %s", r.entityName), err)
		return 0, recordSpanError(span, err, "")
	}

	revision, err := r.kvStore.Put(ctx, key, data)
	if err != nil {
		slog.ErrorContext(ctx, fmt.Sprintf("error writing %s to NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		err = domain.NewUnavailableError(fmt.Sprintf("failed to write %s to store", r.entityName), err)
		return 0, recordSpanError(span, err, "")
	}

	span.SetAttributes(attribute.Int64("db.nats.revision", int64(revision)))
	span.SetStatus(codes.Ok, "")
	return revision, nil
}

// Update updates an existing entity in the store with optimistic concurrency control
func (r *NatsBaseRepository[T]) Update(ctx context.Context, key string, entity *T, revision uint64) (uint64, error) {
	ctx, span := r.startSpan(ctx, "update", key)
	defer span.End()
	span.SetAttributes(attribute.Int64("db.nats.revision", int64(revision)))

	if !r.IsReady() {
		return 0, recordSpanError(span, r.unavailable(), "")
	}

	data, err := r.Marshal(ctx, entity)
	if err != nil {
		err = domain.NewInternalError(fmt.Sprintf("failed to encode %s", r.entityName), err)
		return 0, recordSpanError(span, err, "")
	}

	next, err := r.kvStore.Update(ctx, key, data, revision)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			err = domain.NewNotFoundError(fmt.Sprintf("%s not found", r.entityName), err)
			return 0, recordSpanError(span, err, "not found")
		}
		if strings.Contains(err.Error(), errWrongLastSequence) {
			err = domain.NewConflictError(fmt.Sprintf("%s has been modified", r.entityName), err)
			return 0, recordSpanError(span, err, "conflict")
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error updating %s in NATS KV", r.entityName),
			logging.ErrKey, err, "key", key, "revision", revision)
		err = domain.NewUnavailableError(fmt.Sprintf("failed to update %s in store", r.entityName), err)
		return 0, recordSpanError(span, err, "")
	}

	span.SetStatus(codes.Ok, "")
	return next, nil
}

// Delete removes an entity regardless of its revision. Deleting a missing
// key is not an error.
func (r *NatsBaseRepository[T]) Delete(ctx context.Context, key string) error {
	ctx, span := r.startSpan(ctx, "delete", key)
	defer span.End()

	if !r.IsReady() {
		return recordSpanError(span, r.unavailable(), "")
	}

	err := r.kvStore.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		slog.ErrorContext(ctx, fmt.Sprintf("error deleting %s from NATS KV", r.entityName),
			logging.ErrKey, err, "key", key)
		err = domain.NewUnavailableError(fmt.Sprintf("failed to delete %s from store", r.entityName), err)
		return recordSpanError(span, err, "")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListKeys lists all keys in the bucket. An empty bucket yields no keys.
func (r *NatsBaseRepository[T]) ListKeys(ctx context.Context) ([]string, error) {
	ctx, span := r.startSpan(ctx, "list_keys", "")
	defer span.End()

	if !r.IsReady() {
		return nil, recordSpanError(span, r.unavailable(), "")
	}

	lister, err := r.kvStore.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			span.SetStatus(codes.Ok, "")
			return nil, nil
		}
		slog.ErrorContext(ctx, fmt.Sprintf("error listing %s keys from NATS KV", r.entityName),
			logging.ErrKey, err)
		err = domain.NewUnavailableError(
			fmt.Sprintf("failed to list %s keys from store", r.entityName), err)
		return nil, recordSpanError(span, err, "")
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}

	span.SetAttributes(attribute.Int("db.nats.keys_count", len(keys)))
	span.SetStatus(codes.Ok, "")
	return keys, nil
}

// ListEntities returns every entity whose key starts with prefix. Entries
// that fail to load are logged and skipped.
func (r *NatsBaseRepository[T]) ListEntities(ctx context.Context, prefix string) ([]*T, error) {
	keys, err := r.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	var entities []*T
	for _, key := range keys {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}

		entity, err := r.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, fmt.Sprintf("failed to get %s, skipping", r.entityName),
				"key", key, logging.ErrKey, err)
			continue
		}

		entities = append(entities, entity)
	}

	return entities, nil
}
