package searchindexer

import "sync"

// CountUpLatch lets a producer that has enqueued N asynchronous jobs block
// until at least N of them have completed, without knowing in advance how
// many will ultimately run (spec §5: "Jobs carry explicit references to the
// target SearchIndex and a CountUpLatch").
type CountUpLatch struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// NewCountUpLatch returns a latch starting at zero.
func NewCountUpLatch() *CountUpLatch {
	l := &CountUpLatch{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Increment records one completed job.
func (l *CountUpLatch) Increment() {
	l.mu.Lock()
	l.count++
	l.cond.Broadcast()
	l.mu.Unlock()
}

// WaitFor blocks until the latch has counted up to at least target.
func (l *CountUpLatch) WaitFor(target int) {
	l.mu.Lock()
	for l.count < target {
		l.cond.Wait()
	}
	l.mu.Unlock()
}

// Count returns the current count.
func (l *CountUpLatch) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
