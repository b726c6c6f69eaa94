// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// InMemoryKeyValue is an INatsKeyValue kept in process memory. It backs
// local development without a NATS server and the package tests.
type InMemoryKeyValue struct {
	bucket string

	mu       sync.RWMutex
	entries  map[string]*memoryEntry
	sequence uint64
}

type memoryEntry struct {
	bucket   string
	key      string
	value    []byte
	revision uint64
	created  time.Time
}

func (e *memoryEntry) Key() string                     { return e.key }
func (e *memoryEntry) Value() []byte                   { return e.value }
func (e *memoryEntry) Revision() uint64                { return e.revision }
func (e *memoryEntry) Created() time.Time              { return e.created }
func (e *memoryEntry) Delta() uint64                   { return 0 }
func (e *memoryEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }
func (e *memoryEntry) Bucket() string                  { return e.bucket }

type memoryKeyLister struct {
	keys []string
}

func (l *memoryKeyLister) Keys() <-chan string {
	ch := make(chan string, len(l.keys))
	for _, key := range l.keys {
		ch <- key
	}
	close(ch)
	return ch
}

func (l *memoryKeyLister) Stop() error { return nil }

// NewInMemoryKeyValue creates an empty in-memory bucket.
func NewInMemoryKeyValue(bucket string) *InMemoryKeyValue {
	return &InMemoryKeyValue{
		bucket:  bucket,
		entries: make(map[string]*memoryEntry),
	}
}

// ListKeys returns the stored keys in lexical order.
func (kv *InMemoryKeyValue) ListKeys(_ context.Context, _ ...jetstream.WatchOpt) (jetstream.KeyLister, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	keys := make([]string, 0, len(kv.entries))
	for key := range kv.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return &memoryKeyLister{keys: keys}, nil
}

func (kv *InMemoryKeyValue) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()

	entry, ok := kv.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	copied := *entry
	copied.value = append([]byte(nil), entry.value...)
	return &copied, nil
}

func (kv *InMemoryKeyValue) Put(_ context.Context, key string, value []byte) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	return kv.store(key, value), nil
}

// Update writes value only when the stored revision equals last.
func (kv *InMemoryKeyValue) Update(_ context.Context, key string, value []byte, last uint64) (uint64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	entry, ok := kv.entries[key]
	if !ok {
		if last != 0 {
			return 0, jetstream.ErrKeyNotFound
		}
		return kv.store(key, value), nil
	}
	if entry.revision != last {
		return 0, errors.New("nats: " + errWrongLastSequence)
	}
	return kv.store(key, value), nil
}

func (kv *InMemoryKeyValue) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()

	if _, ok := kv.entries[key]; !ok {
		return jetstream.ErrKeyNotFound
	}
	delete(kv.entries, key)
	return nil
}

// Len returns the number of stored keys.
func (kv *InMemoryKeyValue) Len() int {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	return len(kv.entries)
}

// store must be called with the write lock held.
func (kv *InMemoryKeyValue) store(key string, value []byte) uint64 {
	kv.sequence++
	kv.entries[key] = &memoryEntry{
		bucket:   kv.bucket,
		key:      key,
		value:    append([]byte(nil), value...),
		revision: kv.sequence,
		created:  time.Now().UTC(),
	}
	return kv.sequence
}
