package lock

import (
	"sync"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
)

// held is one active range-lock hold: a write at a single value, or a read
// predicate over a span of values, plus the requester that holds it (spec
// §4.7 re-entrancy: a requester's own write is not counted against its own
// later read).
type held struct {
	requester any
	isWrite   bool
	op        Operator
	v1, v2    byteable.Value
}

func (h held) blocksWrite(w byteable.Value) bool {
	if h.isWrite {
		return h.v1.Compare(w) == 0
	}
	return covers(h.op, h.v1, h.v2, w)
}

func (h held) blocksRead(op Operator, v1, v2 byteable.Value) bool {
	if !h.isWrite {
		return false // two reads never block each other
	}
	return covers(op, v1, v2, h.v1)
}

// rangeEntry implements the RangeToken half of the broker: one entry per
// key, guarding point writes against overlapping predicate reads and vice
// versa (spec §4.7).
type rangeEntry struct {
	mu    sync.Mutex
	cond  *sync.Cond
	holds []held
}

func newRangeEntry() *rangeEntry {
	e := &rangeEntry{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *rangeEntry) writeLock(requester any, w byteable.Value, block bool) (*Permit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.blockedByWrite(requester, w) {
		if !block {
			return nil, false
		}
		e.cond.Wait()
	}
	h := held{requester: requester, isWrite: true, v1: w}
	e.holds = append(e.holds, h)
	return e.permit(h), true
}

func (e *rangeEntry) readLock(requester any, op Operator, v1, v2 byteable.Value, block bool) (*Permit, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.blockedByRead(requester, op, v1, v2) {
		if !block {
			return nil, false
		}
		e.cond.Wait()
	}
	h := held{requester: requester, isWrite: false, op: op, v1: v1, v2: v2}
	e.holds = append(e.holds, h)
	return e.permit(h), true
}

func (e *rangeEntry) blockedByWrite(requester any, w byteable.Value) bool {
	for _, h := range e.holds {
		if h.requester == requester {
			continue
		}
		if h.blocksWrite(w) {
			return true
		}
	}
	return false
}

func (e *rangeEntry) blockedByRead(requester any, op Operator, v1, v2 byteable.Value) bool {
	for _, h := range e.holds {
		if h.requester == requester {
			continue
		}
		if h.blocksRead(op, v1, v2) {
			return true
		}
	}
	return false
}

func (e *rangeEntry) permit(h held) *Permit {
	return &Permit{release: func() {
		e.mu.Lock()
		for i := range e.holds {
			if e.holds[i] == h {
				e.holds = append(e.holds[:i], e.holds[i+1:]...)
				break
			}
		}
		e.cond.Broadcast()
		e.mu.Unlock()
	}}
}

func (e *rangeEntry) idle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.holds) == 0
}
