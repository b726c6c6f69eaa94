// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package scheduler is the single timer service used for debouncing,
// periodic work and retry backoff. Everything that needs "call me at T"
// goes through a Scheduler so tests can drive time with Fake.
package scheduler

import (
	"sync"
	"time"
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped a
	// timer that had not yet fired (or, for periodic timers, was still running).
	Stop() bool
}

// Scheduler schedules callbacks against a clock.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
	Every(d time.Duration, f func()) Timer
}

// Real is a Scheduler backed by the runtime timers. Callbacks run on their
// own goroutines; callers serialize state access themselves.
type Real struct{}

var _ Scheduler = Real{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real {
	return Real{}
}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// AfterFunc calls f once after d.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Every calls f every d until stopped. d must be positive.
func (Real) Every(d time.Duration, f func()) Timer {
	t := &periodic{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.done:
				return
			case <-t.ticker.C:
				f()
			}
		}
	}()
	return t
}

type periodic struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (p *periodic) Stop() bool {
	stopped := false
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.done)
		stopped = true
	})
	return stopped
}
