package searchindexer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsJobsAndIncrementsLatch(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var count int64
	latch := NewCountUpLatch()
	const n = 100
	for i := 0; i < n; i++ {
		p.Submit(func() { atomic.AddInt64(&count, 1) }, latch)
	}
	latch.WaitFor(n)
	if atomic.LoadInt64(&count) != n {
		t.Fatalf("expected %d completed jobs, got %d", n, count)
	}
}

func TestNewClampsToMinimumThreeWorkers(t *testing.T) {
	p := New(1)
	defer p.Shutdown()
	var count int64
	latch := NewCountUpLatch()
	p.Submit(func() { atomic.AddInt64(&count, 1) }, latch)
	latch.WaitFor(1)
	if atomic.LoadInt64(&count) != 1 {
		t.Fatalf("expected job to run")
	}
}

func TestCountUpLatchWaitForBlocksUntilTarget(t *testing.T) {
	l := NewCountUpLatch()
	done := make(chan struct{})
	go func() {
		l.WaitFor(3)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("WaitFor returned before target was reached")
	case <-time.After(20 * time.Millisecond):
	}

	l.Increment()
	l.Increment()
	l.Increment()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("WaitFor did not return after target was reached")
	}
}

func TestDefaultThreadsIsAtLeastThree(t *testing.T) {
	if DefaultThreads() < 3 {
		t.Fatalf("expected DefaultThreads >= 3, got %d", DefaultThreads())
	}
}
