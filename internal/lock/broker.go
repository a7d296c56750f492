package lock

import "sync"

// LockBroker grants RecordToken, ShareableToken, and RangeToken permits
// backed by refcounted per-key entries: an entry is created lazily on first
// acquire and removed once its last holder/waiter releases, so the broker
// never retains locks for keys nobody references (spec §4.7 eviction
// safety). Acquirers take their reference under the broker's mutex, the same
// mutex the final releaser holds when it removes the entry, so an entry is
// never removed while an acquirer holds a reference to it.
type LockBroker struct {
	mu      sync.Mutex
	records map[string]*recordSlot
	ranges  map[string]*rangeSlot
}

type recordSlot struct {
	entry *recordEntry
	refs  int
}

type rangeSlot struct {
	entry *rangeEntry
	refs  int
}

// NewBroker creates an empty LockBroker.
func NewBroker() *LockBroker {
	return &LockBroker{
		records: make(map[string]*recordSlot),
		ranges:  make(map[string]*rangeSlot),
	}
}

func (b *LockBroker) recordEntryFor(key string) *recordSlot {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.records[key]
	if !ok {
		slot = &recordSlot{entry: newRecordEntry()}
		b.records[key] = slot
	}
	slot.refs++
	return slot
}

func (b *LockBroker) releaseRecordSlot(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.records[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(b.records, key)
	}
}

func (b *LockBroker) rangeEntryFor(key string) *rangeSlot {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.ranges[key]
	if !ok {
		slot = &rangeSlot{entry: newRangeEntry()}
		b.ranges[key] = slot
	}
	slot.refs++
	return slot
}

func (b *LockBroker) releaseRangeSlot(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.ranges[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(b.ranges, key)
	}
}

// wrapRecord decrements the slot's refcount when the returned permit is
// released, so the broker's map entry is reclaimed once nobody holds or is
// waiting on it.
func wrapRecord(b *LockBroker, key string, p *Permit) *Permit {
	if p == nil {
		b.releaseRecordSlot(key)
		return nil
	}
	inner := p.release
	return &Permit{release: func() {
		inner()
		b.releaseRecordSlot(key)
	}}
}

func wrapRange(b *LockBroker, key string, p *Permit) *Permit {
	if p == nil {
		b.releaseRangeSlot(key)
		return nil
	}
	inner := p.release
	return &Permit{release: func() {
		inner()
		b.releaseRangeSlot(key)
	}}
}

// ReadLock acquires a blocking shared read lock on a RecordToken.
func (b *LockBroker) ReadLock(t RecordToken) *Permit {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, _ := slot.entry.readLock(false, true)
	return wrapRecord(b, key, p)
}

// WriteLock acquires a blocking exclusive write lock on a RecordToken.
func (b *LockBroker) WriteLock(t RecordToken) *Permit {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, _ := slot.entry.writeLock(false, true)
	return wrapRecord(b, key, p)
}

// TryReadLock attempts a non-blocking shared read lock on a RecordToken.
func (b *LockBroker) TryReadLock(t RecordToken) (*Permit, bool) {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, ok := slot.entry.readLock(false, false)
	if !ok {
		b.releaseRecordSlot(key)
		return nil, false
	}
	return wrapRecord(b, key, p), true
}

// TryWriteLock attempts a non-blocking exclusive write lock on a RecordToken.
func (b *LockBroker) TryWriteLock(t RecordToken) (*Permit, bool) {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, ok := slot.entry.writeLock(false, false)
	if !ok {
		b.releaseRecordSlot(key)
		return nil, false
	}
	return wrapRecord(b, key, p), true
}

// ReadLockShareable acquires a blocking read lock on a ShareableToken; it
// blocks while any shareable writer holds the token.
func (b *LockBroker) ReadLockShareable(t ShareableToken) *Permit {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, _ := slot.entry.readLock(true, true)
	return wrapRecord(b, key, p)
}

// WriteLockShareable acquires a shareable write lock: it never blocks on
// other shareable writers, only on readers (spec §4.7).
func (b *LockBroker) WriteLockShareable(t ShareableToken) *Permit {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, _ := slot.entry.writeLock(true, true)
	return wrapRecord(b, key, p)
}

// TryReadLockShareable is the non-blocking form of ReadLockShareable.
func (b *LockBroker) TryReadLockShareable(t ShareableToken) (*Permit, bool) {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, ok := slot.entry.readLock(true, false)
	if !ok {
		b.releaseRecordSlot(key)
		return nil, false
	}
	return wrapRecord(b, key, p), true
}

// TryWriteLockShareable is the non-blocking form of WriteLockShareable.
func (b *LockBroker) TryWriteLockShareable(t ShareableToken) (*Permit, bool) {
	key := t.cacheKey()
	slot := b.recordEntryFor(key)
	p, ok := slot.entry.writeLock(true, false)
	if !ok {
		b.releaseRecordSlot(key)
		return nil, false
	}
	return wrapRecord(b, key, p), true
}

// ReadRangeLock acquires a blocking predicate read lock on a RangeToken.
// requester identifies the calling transaction/thread so that its own
// subsequent writes are not counted against this read (spec §4.7
// re-entrancy); pass requester consistently across a transaction's lock
// calls, e.g. a *Transaction pointer or other stable identity.
func (b *LockBroker) ReadRangeLock(requester any, t RangeToken) *Permit {
	key := t.cacheKey()
	slot := b.rangeEntryFor(key)
	p, _ := slot.entry.readLock(requester, t.Op, t.V1, t.V2, true)
	return wrapRange(b, key, p)
}

// WriteRangeLock acquires a blocking point write lock on a RangeToken.
func (b *LockBroker) WriteRangeLock(requester any, t RangeToken) *Permit {
	key := t.cacheKey()
	slot := b.rangeEntryFor(key)
	p, _ := slot.entry.writeLock(requester, t.V1, true)
	return wrapRange(b, key, p)
}

// TryReadRangeLock is the non-blocking form of ReadRangeLock.
func (b *LockBroker) TryReadRangeLock(requester any, t RangeToken) (*Permit, bool) {
	key := t.cacheKey()
	slot := b.rangeEntryFor(key)
	p, ok := slot.entry.readLock(requester, t.Op, t.V1, t.V2, false)
	if !ok {
		b.releaseRangeSlot(key)
		return nil, false
	}
	return wrapRange(b, key, p), true
}

// TryWriteRangeLock is the non-blocking form of WriteRangeLock.
func (b *LockBroker) TryWriteRangeLock(requester any, t RangeToken) (*Permit, bool) {
	key := t.cacheKey()
	slot := b.rangeEntryFor(key)
	p, ok := slot.entry.writeLock(requester, t.V1, false)
	if !ok {
		b.releaseRangeSlot(key)
		return nil, false
	}
	return wrapRange(b, key, p), true
}

// Sweep removes any map entries left with a non-positive refcount. Eviction
// is normally immediate (the final Release on a permit deletes its own
// entry); Sweep is a defensive backstop run periodically by the
// orchestrator so a missed release path never leaks a broker-wide map
// entry (spec §4.7 eviction safety).
func (b *LockBroker) Sweep() (recordsRemoved, rangesRemoved int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, slot := range b.records {
		if slot.refs <= 0 {
			delete(b.records, k)
			recordsRemoved++
		}
	}
	for k, slot := range b.ranges {
		if slot.refs <= 0 {
			delete(b.ranges, k)
			rangesRemoved++
		}
	}
	return
}

// Len reports the number of live record-token and range-token entries.
func (b *LockBroker) Len() (records, ranges int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records), len(b.ranges)
}
