// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/internal/domain/models"
	"github.com/linuxfoundation/lfx-v2-meeting-attendance-service/pkg/scheduler"
)

type countingFinalizer struct {
	calls   atomic.Int32
	fail    atomic.Bool
	signals []FinalizeSignal
}

func (f *countingFinalizer) finalize(_ context.Context, signal FinalizeSignal) (*models.AttendanceReport, error) {
	f.calls.Add(1)
	f.signals = append(f.signals, signal)
	if f.fail.Load() {
		return nil, errors.New("backend unreachable")
	}
	return &models.AttendanceReport{SessionKey: "s-1", Kind: models.ReportFinal}, nil
}

func TestFinalizationCoordinator_Debounce(t *testing.T) {
	ctx := context.Background()

	t.Run("critical signals finalize after the short delay", func(t *testing.T) {
		clock := scheduler.NewFake(testStart)
		f := &countingFinalizer{}
		c := NewFinalizationCoordinator(clock, f.finalize)

		assert.True(t, c.Signal(ctx, SignalExplicitClose))
		assert.Equal(t, FinalizationScheduled, c.State())

		clock.Advance(199 * time.Millisecond)
		assert.Equal(t, int32(0), f.calls.Load())

		clock.Advance(time.Millisecond)
		assert.Equal(t, int32(1), f.calls.Load())
		assert.Equal(t, FinalizationFinalized, c.State())
	})

	t.Run("normal signals reschedule each other", func(t *testing.T) {
		clock := scheduler.NewFake(testStart)
		f := &countingFinalizer{}
		c := NewFinalizationCoordinator(clock, f.finalize)

		c.Signal(ctx, SignalVisibilityLost)
		clock.Advance(1500 * time.Millisecond)
		c.Signal(ctx, SignalHostAbsent)

		clock.Advance(1500 * time.Millisecond)
		assert.Equal(t, int32(0), f.calls.Load())

		clock.Advance(500 * time.Millisecond)
		assert.Equal(t, int32(1), f.calls.Load())
		assert.Equal(t, []FinalizeSignal{SignalHostAbsent}, f.signals)
	})

	t.Run("a normal signal never postpones a critical one", func(t *testing.T) {
		clock := scheduler.NewFake(testStart)
		f := &countingFinalizer{}
		c := NewFinalizationCoordinator(clock, f.finalize)

		c.Signal(ctx, SignalEndMarker)
		clock.Advance(100 * time.Millisecond)
		assert.False(t, c.Signal(ctx, SignalVisibilityLost))

		clock.Advance(100 * time.Millisecond)
		assert.Equal(t, int32(1), f.calls.Load())
		assert.Equal(t, []FinalizeSignal{SignalEndMarker}, f.signals)
	})

	t.Run("a critical signal preempts a pending normal one", func(t *testing.T) {
		clock := scheduler.NewFake(testStart)
		f := &countingFinalizer{}
		c := NewFinalizationCoordinator(clock, f.finalize)

		c.Signal(ctx, SignalLivenessStale)
		c.Signal(ctx, SignalExplicitClose)
		clock.Advance(200 * time.Millisecond)
		assert.Equal(t, int32(1), f.calls.Load())

		clock.Advance(5 * time.Second)
		assert.Equal(t, int32(1), f.calls.Load())
	})
}

func TestFinalizationCoordinator_Idempotent(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	f := &countingFinalizer{}
	c := NewFinalizationCoordinator(clock, f.finalize)

	first, err := c.FinalizeNow(ctx, SignalEndNow)
	require.NoError(t, err)
	second, err := c.FinalizeNow(ctx, SignalEndNow)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), f.calls.Load())

	assert.False(t, c.Signal(ctx, SignalExplicitClose))
	clock.Advance(time.Minute)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestFinalizationCoordinator_BoundedRetries(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	f := &countingFinalizer{}
	f.fail.Store(true)
	c := NewFinalizationCoordinator(clock, f.finalize)

	_, err := c.FinalizeNow(ctx, SignalEndNow)
	require.Error(t, err)
	assert.Equal(t, FinalizationScheduled, c.State())

	clock.Advance(2 * time.Second)
	assert.Equal(t, int32(2), f.calls.Load())

	clock.Advance(2 * time.Second)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, FinalizationFailed, c.State())

	clock.Advance(time.Minute)
	assert.False(t, c.Signal(ctx, SignalExplicitClose))
	_, err = c.FinalizeNow(ctx, SignalEndNow)
	require.Error(t, err)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.Equal(t, 3, c.Attempts())
}

func TestFinalizationCoordinator_RecoversAfterFailure(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	f := &countingFinalizer{}
	f.fail.Store(true)
	c := NewFinalizationCoordinator(clock, f.finalize)

	_, err := c.FinalizeNow(ctx, SignalEndNow)
	require.Error(t, err)

	f.fail.Store(false)
	clock.Advance(2 * time.Second)
	assert.Equal(t, FinalizationFinalized, c.State())
	require.NotNil(t, c.Report())
	assert.Equal(t, 2, c.Attempts())
}

func TestFinalizationCoordinator_Reset(t *testing.T) {
	ctx := context.Background()
	clock := scheduler.NewFake(testStart)
	f := &countingFinalizer{}
	c := NewFinalizationCoordinator(clock, f.finalize)

	c.Signal(ctx, SignalVisibilityLost)
	c.Reset()
	clock.Advance(5 * time.Second)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, FinalizationIdle, c.State())

	_, err := c.FinalizeNow(ctx, SignalEndNow)
	require.NoError(t, err)
	c.Reset()
	assert.Nil(t, c.Report())
	assert.True(t, c.Signal(ctx, SignalExplicitClose))
}
