// Package looptest provides a hand-cranked scheduler with a virtual clock.
package looptest

import (
	"sort"
	"sync"
	"time"

	"github.com/open-teleop/go2bridge/pkg/loop"
)

// Manual is a loop.Scheduler driven explicitly by the test. Posting is safe
// from any goroutine; tasks only run inside Run, Advance or RunUntil.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	queue  []func()
	timers []*manualTimer
}

type manualTimer struct {
	owner   *Manual
	due     time.Time
	fn      func()
	stopped bool
	fired   bool
}

// Stop implements loop.Timer.
func (t *manualTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

var _ loop.Scheduler = (*Manual)(nil)

// NewManual creates a scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Post implements loop.Scheduler.
func (m *Manual) Post(fn func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, fn)
	return true
}

// Deliver implements loop.Scheduler. The queue is unbounded so it never waits.
func (m *Manual) Deliver(fn func()) bool {
	return m.Post(fn)
}

// AfterFunc implements loop.Scheduler.
func (m *Manual) AfterFunc(d time.Duration, fn func()) loop.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{owner: m, due: m.now.Add(d), fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now implements loop.Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Run executes queued tasks, including ones they post, and returns how many ran.
func (m *Manual) Run() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		ran++
	}
}

// Advance moves the clock forward, posts every timer that became due in due
// order and runs the queue.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	var due []*manualTimer
	remaining := m.timers[:0]
	for _, t := range m.timers {
		switch {
		case t.stopped:
		case !t.due.After(m.now):
			t.fired = true
			due = append(due, t)
		default:
			remaining = append(remaining, t)
		}
	}
	m.timers = remaining
	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })
	for _, t := range due {
		m.queue = append(m.queue, t.fn)
	}
	m.mu.Unlock()

	m.Run()
}

// PendingTimers returns the delays, relative to now, of timers not yet fired.
func (m *Manual) PendingTimers() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.due.Sub(m.now))
		}
	}
	return out
}

// RunUntil keeps running the queue until cond holds or the real-time timeout
// expires. It is meant for tasks posted by background goroutines.
func (m *Manual) RunUntil(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		m.Run()
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
