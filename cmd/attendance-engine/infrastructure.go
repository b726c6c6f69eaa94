// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/infrastructure/store"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/logging"
)

const gracefulShutdownSeconds = 25

// repositories are the state stores the engine is wired to.
type repositories struct {
	Sessions    domain.SessionRepository
	HostLocks   domain.HostLockRepository
	Snapshots   domain.SnapshotRepository
	RetryQueue  domain.RetryQueueRepository
	Ledger      domain.SubmissionLedger
	DeadLetters domain.DeadLetterRepository
}

// newRepositories builds the repositories over the synchronized and local
// buckets. Local keys are namespaced by instanceID when it is set.
func newRepositories(syncKV, localKV store.INatsKeyValue, instanceID string) repositories {
	syncKeys := store.NewKeyBuilder("")
	localKeys := store.NewKeyBuilder(instanceID)
	return repositories{
		Sessions:    store.NewNatsSessionRepository(syncKV, syncKeys),
		HostLocks:   store.NewNatsHostLockRepository(syncKV, syncKeys),
		Snapshots:   store.NewNatsSnapshotRepository(localKV, localKeys),
		RetryQueue:  store.NewNatsRetryQueueRepository(localKV, localKeys),
		Ledger:      store.NewNatsSubmissionLedger(localKV, localKeys),
		DeadLetters: store.NewNatsDeadLetterRepository(localKV, localKeys),
	}
}

// setupNATS connects to NATS. The connection's close handler releases
// gracefulCloseWG once draining completes.
func setupNATS(ctx context.Context, env environment, gracefulCloseWG *sync.WaitGroup, done chan os.Signal) (*nats.Conn, error) {
	natsURL := env.NatsURL
	slog.InfoContext(ctx, "connecting to NATS", "nats_url", natsURL)

	gracefulCloseWG.Add(1)
	conn, err := nats.Connect(
		natsURL,
		nats.Name("lfx-v2-meeting-attendance-service"),
		nats.DrainTimeout(gracefulShutdownSeconds*time.Second),
		nats.MaxReconnects(-1),
		nats.ConnectHandler(func(_ *nats.Conn) {
			slog.With("nats_url", natsURL).Info("NATS connection established")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.With(logging.ErrKey, err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.With("nats_url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, s *nats.Subscription, err error) {
			if s != nil {
				slog.With(logging.ErrKey, err, "subject", s.Subject).Error("async NATS error")
			} else {
				slog.With(logging.ErrKey, err).Error("async NATS error outside subscription")
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if ctx.Err() != nil {
				// Expected additional close event from the graceful shutdown.
				slog.Info("NATS connection closed gracefully")
				gracefulCloseWG.Done()
				return
			}
			slog.Error("NATS connection closed unexpectedly")
			gracefulCloseWG.Done()
			done <- os.Interrupt
		}),
	)
	if err != nil {
		gracefulCloseWG.Done()
		return nil, fmt.Errorf("error creating NATS client: %w", err)
	}
	return conn, nil
}

// getKeyValueStores returns the synchronized and local buckets. With the
// memory backend both live in process memory and do not survive a restart.
func getKeyValueStores(ctx context.Context, env environment, natsConn *nats.Conn) (syncKV, localKV store.INatsKeyValue, err error) {
	if env.StoreBackend == storeBackendMemory {
		slog.WarnContext(ctx, "using in-memory state stores")
		return store.NewInMemoryKeyValue(store.KVStoreNameSync), store.NewInMemoryKeyValue(store.KVStoreNameLocal), nil
	}

	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating JetStream context: %w", err)
	}

	syncKV, err = keyValueBucket(ctx, js, store.KVStoreNameSync)
	if err != nil {
		return nil, nil, err
	}
	localKV, err = keyValueBucket(ctx, js, store.KVStoreNameLocal)
	if err != nil {
		return nil, nil, err
	}
	return syncKV, localKV, nil
}

// keyValueBucket binds to bucket, creating it on first start.
func keyValueBucket(ctx context.Context, js jetstream.JetStream, bucket string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		slog.InfoContext(ctx, "creating NATS KV bucket", "bucket", bucket)
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
			Storage: jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("error getting NATS KV bucket %s: %w", bucket, err)
	}
	return kv, nil
}
