package lock

import "sync"

// Permit is released exactly once by the holder of a lock.
type Permit struct {
	release func()
	once    sync.Once
}

// Release returns the permit, decrementing the hold count. Safe to call
// more than once; only the first call has an effect.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		if p.release != nil {
			p.release()
		}
	})
}

// recordEntry serves both a RecordToken's exclusive read/write semantics
// and a ShareableToken's multi-writer semantics within the same entry
// implementation (spec §4.7).
type recordEntry struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers int
	writer  bool // an exclusive (non-shareable) writer holds this entry
	shared  int  // number of shareable writers currently holding

	refs int // not read or written; the broker counts references on recordSlot.refs
}

func newRecordEntry() *recordEntry {
	e := &recordEntry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *recordEntry) readLock(shareable bool, block bool) (*Permit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// A read is blocked by an exclusive writer always, and by a shareable
	// writer too: "a reader on the same token blocks writers and vice versa"
	// (spec §4.7) makes readers and shareable writers mutually exclusive.
	for e.writer || (shareable && e.shared > 0) {
		if !block {
			return nil, false
		}
		e.cond.Wait()
	}
	e.readers++
	return e.permit(func() {
		e.mu.Lock()
		e.readers--
		e.cond.Broadcast()
		e.mu.Unlock()
	}), true
}

func (e *recordEntry) writeLock(shareable bool, block bool) (*Permit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if shareable {
		for e.readers > 0 {
			if !block {
				return nil, false
			}
			e.cond.Wait()
		}
		e.shared++
		return e.permit(func() {
			e.mu.Lock()
			e.shared--
			e.cond.Broadcast()
			e.mu.Unlock()
		}), true
	}
	for e.writer || e.readers > 0 {
		if !block {
			return nil, false
		}
		e.cond.Wait()
	}
	e.writer = true
	return e.permit(func() {
		e.mu.Lock()
		e.writer = false
		e.cond.Broadcast()
		e.mu.Unlock()
	}), true
}

// permit must be called with e.mu held; it does not itself touch e.mu.
func (e *recordEntry) permit(release func()) *Permit {
	return &Permit{release: release}
}

func (e *recordEntry) idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readers == 0 && !e.writer && e.shared == 0
}
