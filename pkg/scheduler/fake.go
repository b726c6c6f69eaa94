// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package scheduler

import (
	"sync"
	"time"
)

// Fake is a manually advanced Scheduler. Callbacks run synchronously inside
// Advance, in due-time order, on the caller's goroutine.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[uint64]*fakeTimer
}

var _ Scheduler = (*Fake)(nil)

type fakeTimer struct {
	fake  *Fake
	id    uint64
	at    time.Time
	every time.Duration
	fn    func()
}

// NewFake returns a fake scheduler whose clock starts at start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:    start,
		timers: make(map[uint64]*fakeTimer),
	}
}

// Now returns the fake clock's current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn at Now()+d.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.add(d, 0, fn)
}

// Every schedules fn at every multiple of d from Now(). d must be positive.
func (f *Fake) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		panic("scheduler: non-positive interval for Every")
	}
	return f.add(d, d, fn)
}

func (f *Fake) add(d, every time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTimer{
		fake:  f,
		id:    f.seq,
		at:    f.now.Add(d),
		every: every,
		fn:    fn,
	}
	f.timers[t.id] = t
	return t
}

// Advance moves the clock forward by d, firing every callback that becomes due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = next.at
		if next.every > 0 {
			next.at = next.at.Add(next.every)
		} else {
			delete(f.timers, next.id)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending reports how many timers are still scheduled.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// nextDue returns the earliest timer due at or before target; ties go to the
// timer scheduled first. Caller holds f.mu.
func (f *Fake) nextDue(target time.Time) *fakeTimer {
	var next *fakeTimer
	for _, t := range f.timers {
		if t.at.After(target) {
			continue
		}
		if next == nil || t.at.Before(next.at) || (t.at.Equal(next.at) && t.id < next.id) {
			next = t
		}
	}
	return next
}

func (t *fakeTimer) Stop() bool {
	t.fake.mu.Lock()
	defer t.fake.mu.Unlock()
	if _, ok := t.fake.timers[t.id]; !ok {
		return false
	}
	delete(t.fake.timers, t.id)
	return true
}
