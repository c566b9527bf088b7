// Package loop provides the single logical thread every core component runs on.
//
// Transport readers, device readers and timers never touch component state
// directly. They post closures to the loop, which runs them one at a time in
// arrival order.
package loop

import (
	"errors"
	"fmt"
	"sync"
	"time"

	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

// ErrStopped is returned by Run when the loop was stopped before starting.
var ErrStopped = errors.New("event loop is stopped")

// Timer is a pending scheduled callback.
type Timer interface {
	// Stop prevents the callback from being posted. It reports whether the
	// callback was still pending.
	Stop() bool
}

// Scheduler is what components need from the loop.
type Scheduler interface {
	// Post enqueues fn without blocking. False means fn was dropped.
	Post(fn func()) bool
	// Deliver enqueues fn, waiting for room when the queue is full. False
	// means the scheduler stopped. It must not be called from the loop itself.
	Deliver(fn func()) bool
	// AfterFunc posts fn once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
	// Now is the scheduler's clock.
	Now() time.Time
}

// Metrics tracks loop activity.
type Metrics struct {
	Executed     int64
	Dropped      int64
	Delayed      int64 // Deliver calls that waited for room
	Panics       int64
	TaskTimeAvg  int64 // in microseconds
	TaskTimeMax  int64 // in microseconds
	LastExecuted int64
}

// Loop runs posted tasks on a single goroutine.
type Loop struct {
	logger    customlog.Logger
	tasks     chan func()
	queueSize int
	running   bool
	stopped   bool
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	metrics   Metrics
	metricsMu sync.Mutex
}

// New creates a loop with a bounded task queue.
func New(queueSize int, logger customlog.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}
	return &Loop{
		logger:    logger,
		tasks:     make(chan func(), queueSize),
		queueSize: queueSize,
		done:      make(chan struct{}),
	}
}

var _ Scheduler = (*Loop)(nil)

// Start launches the loop goroutine.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrStopped
	}
	if l.running {
		return nil
	}

	l.running = true
	l.wg.Add(1)
	go l.run()

	l.logger.Debugf("Event loop started (queue=%d)", l.queueSize)
	return nil
}

// Stop drains nothing further: tasks still queued are discarded.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	wasRunning := l.running
	l.running = false
	close(l.done)
	l.mu.Unlock()

	if wasRunning {
		l.wg.Wait()
	}
	l.logMetrics()
}

// Post implements Scheduler.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()

	if stopped || fn == nil {
		return false
	}

	select {
	case l.tasks <- fn:
		return true
	default:
		l.metricsMu.Lock()
		l.metrics.Dropped++
		l.metricsMu.Unlock()
		l.logger.Warnf("Event loop queue is full, dropping task")
		return false
	}
}

// Deliver implements Scheduler. Transport lifecycle events go through here
// so a busy loop delays them instead of losing them.
func (l *Loop) Deliver(fn func()) bool {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()

	if stopped || fn == nil {
		return false
	}

	select {
	case l.tasks <- fn:
		return true
	default:
	}

	l.metricsMu.Lock()
	l.metrics.Delayed++
	l.metricsMu.Unlock()
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Invoke posts fn and waits for it to run. It must not be called from the
// loop goroutine itself.
func (l *Loop) Invoke(fn func()) error {
	finished := make(chan struct{})
	if !l.Deliver(func() {
		defer close(finished)
		fn()
	}) {
		return fmt.Errorf("invoke: %w", ErrStopped)
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return fmt.Errorf("invoke: %w", ErrStopped)
	}
}

type timer struct {
	t *time.Timer
}

func (t *timer) Stop() bool {
	return t.t.Stop()
}

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	return &timer{t: time.AfterFunc(d, func() {
		l.Deliver(fn)
	})}
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Every posts fn at a fixed interval until the returned stop function is
// called or the loop stops. Once stop returns no further tick is posted. Ticks are skipped while a previous tick is still
// queued so a slow loop never builds a backlog of refreshes.
func (l *Loop) Every(interval time.Duration, fn func(now time.Time)) (stop func()) {
	ticker := time.NewTicker(interval)
	quit := make(chan struct{})
	exited := make(chan struct{})
	var once sync.Once
	var pending sync.Mutex
	inFlight := false

	go func() {
		defer close(exited)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				pending.Lock()
				if inFlight {
					pending.Unlock()
					continue
				}
				inFlight = true
				pending.Unlock()

				posted := l.Post(func() {
					pending.Lock()
					inFlight = false
					pending.Unlock()
					fn(now)
				})
				if !posted {
					pending.Lock()
					inFlight = false
					pending.Unlock()
				}
			case <-quit:
				return
			case <-l.done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(quit) })
		<-exited
	}
}

func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case fn := <-l.tasks:
			l.execute(fn)
		case <-l.done:
			l.logger.Debugf("Event loop stopped")
			return
		}
	}
}

// execute runs one task. A panicking task is logged and the loop keeps going.
func (l *Loop) execute(fn func()) {
	start := time.Now()
	panicked := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				l.logger.Errorf("Recovered panic in event loop task: %v", r)
			}
		}()
		fn()
	}()

	elapsed := time.Since(start).Microseconds()

	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	l.metrics.Executed++
	l.metrics.LastExecuted = time.Now().UnixNano()
	if l.metrics.TaskTimeAvg == 0 {
		l.metrics.TaskTimeAvg = elapsed
	} else {
		l.metrics.TaskTimeAvg = (l.metrics.TaskTimeAvg + elapsed) / 2
	}
	if elapsed > l.metrics.TaskTimeMax {
		l.metrics.TaskTimeMax = elapsed
	}
	if panicked {
		l.metrics.Panics++
	}
}

// GetMetrics returns a copy of the current metrics.
func (l *Loop) GetMetrics() Metrics {
	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	return l.metrics
}

// GetQueueLength returns the number of queued tasks.
func (l *Loop) GetQueueLength() int {
	return len(l.tasks)
}

func (l *Loop) logMetrics() {
	m := l.GetMetrics()
	l.logger.Infof("Event loop metrics: executed=%d, dropped=%d, delayed=%d, panics=%d, avg_time=%dµs, max_time=%dµs",
		m.Executed, m.Dropped, m.Delayed, m.Panics, m.TaskTimeAvg, m.TaskTimeMax)
}
