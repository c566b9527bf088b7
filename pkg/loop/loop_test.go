package loop

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPostRunsInOrder(t *testing.T) {
	l := New(16, nil)
	if err := l.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer l.Stop()

	var got []int
	for i := 0; i < 5; i++ {
		i := i
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatalf("Post %d was rejected", i)
		}
	}
	if err := l.Invoke(func() {}); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("Expected tasks in order, got %v", got)
		}
	}
	if len(got) != 5 {
		t.Errorf("Expected 5 tasks, got %d", len(got))
	}
}

func TestPanicIsContained(t *testing.T) {
	l := New(16, nil)
	l.Start()
	defer l.Stop()

	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Invoke(func() { ran = true }); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if !ran {
		t.Error("Expected task after panic to run")
	}
	if m := l.GetMetrics(); m.Panics != 1 {
		t.Errorf("Expected 1 panic recorded, got %d", m.Panics)
	}
}

func TestPostAfterStopIsRejected(t *testing.T) {
	l := New(4, nil)
	l.Start()
	l.Stop()

	if l.Post(func() {}) {
		t.Error("Expected Post after Stop to return false")
	}
	if err := l.Start(); err != ErrStopped {
		t.Errorf("Expected ErrStopped restarting a stopped loop, got %v", err)
	}
}

func TestFullQueueDrops(t *testing.T) {
	l := New(1, nil)
	// not started: the single slot fills and the next post is dropped
	if !l.Post(func() {}) {
		t.Fatal("Expected first post to be accepted")
	}
	if l.Post(func() {}) {
		t.Error("Expected second post to be dropped")
	}
	if m := l.GetMetrics(); m.Dropped != 1 {
		t.Errorf("Expected 1 dropped task, got %d", m.Dropped)
	}
	l.Stop()
}

func TestDeliverWaitsForRoom(t *testing.T) {
	l := New(1, nil)
	l.Start()
	defer l.Stop()

	release := make(chan struct{})
	busy := make(chan struct{})
	l.Post(func() {
		close(busy)
		<-release
	})
	<-busy
	if !l.Post(func() {}) {
		t.Fatal("Expected the single slot to take one task")
	}
	if l.Post(func() {}) {
		t.Fatal("Expected Post on a full queue to drop")
	}

	ran := make(chan struct{})
	accepted := make(chan bool, 1)
	go func() { accepted <- l.Deliver(func() { close(ran) }) }()

	select {
	case <-accepted:
		t.Fatal("Expected Deliver to wait while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	if ok := <-accepted; !ok {
		t.Fatal("Expected Deliver to be accepted once room was made")
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Expected delivered task to run")
	}
	if m := l.GetMetrics(); m.Delayed != 1 {
		t.Errorf("Expected 1 delayed task, got %d", m.Delayed)
	}
}

func TestDeliverReturnsOnStop(t *testing.T) {
	l := New(1, nil)
	// not started: the slot stays full
	l.Post(func() {})

	accepted := make(chan bool, 1)
	go func() { accepted <- l.Deliver(func() {}) }()
	time.Sleep(20 * time.Millisecond)
	l.Stop()

	select {
	case ok := <-accepted:
		if ok {
			t.Error("Expected Deliver to report the stop")
		}
	case <-time.After(time.Second):
		t.Fatal("Expected Deliver to return after Stop")
	}
}

func TestAfterFuncRunsOnLoop(t *testing.T) {
	l := New(16, nil)
	l.Start()
	defer l.Stop()

	fired := make(chan struct{})
	l.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Expected scheduled callback to fire")
	}
}

func TestAfterFuncStop(t *testing.T) {
	l := New(16, nil)
	l.Start()
	defer l.Stop()

	var fired atomic.Bool
	timer := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
	if !timer.Stop() {
		t.Error("Expected Stop to report a pending timer")
	}
	time.Sleep(40 * time.Millisecond)
	l.Invoke(func() {})

	if fired.Load() {
		t.Error("Expected stopped timer not to fire")
	}
}

func TestEveryTicksUntilStopped(t *testing.T) {
	l := New(16, nil)
	l.Start()
	defer l.Stop()

	var ticks atomic.Int64
	stop := l.Every(2*time.Millisecond, func(time.Time) { ticks.Add(1) })
	time.Sleep(30 * time.Millisecond)
	stop()
	l.Invoke(func() {})
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	l.Invoke(func() {})

	if after == 0 {
		t.Fatal("Expected at least one tick")
	}
	if ticks.Load() != after {
		t.Errorf("Expected no ticks after stop, got %d more", ticks.Load()-after)
	}
}
