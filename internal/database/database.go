// Package database implements the external-contract surface named in spec
// §4.9 ("Database façade (interface only)") plus the nested-stage Transaction
// design fixed by the spec's Open Question resolutions. The spec states
// plainly that this façade's query planning, CCL parsing, and sort-order
// evaluation are implemented "outside the core" — this package provides a
// direct, unoptimized implementation of the well-specified parts (add/
// remove/set under the LockBroker, the effective-state read rule, and
// chronologize/audit/trace/navigate as straight revision-log replays) so the
// contract is exercised end-to-end rather than left as bare signatures.
package database

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cinchapi/concourse-kernel/internal/buffer"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/lock"
	"github.com/cinchapi/concourse-kernel/internal/revision"
	"github.com/cinchapi/concourse-kernel/internal/segment"
)

// ErrSelfLink is returned when add() would insert a Link value pointing at
// its own record (spec §9 Open Question resolution #3).
var ErrSelfLink = errors.New("database: a record cannot link to itself")

// Facade fixes the external contract named in spec §4.9. find(ccl) is
// omitted: CCL parsing is an explicit Non-goal, so only the pre-parsed
// predicate form of find is exposed.
type Facade interface {
	Add(key byteable.Text, value byteable.Value, record byteable.Identifier) (bool, error)
	Remove(key byteable.Text, value byteable.Value, record byteable.Identifier) (bool, error)
	Set(key byteable.Text, value byteable.Value, record byteable.Identifier) error

	Select(record byteable.Identifier) (map[string][]byteable.Value, error)
	SelectKey(key byteable.Text, record byteable.Identifier) ([]byteable.Value, error)
	SelectKeyAt(key byteable.Text, record byteable.Identifier, atVersion uint64) ([]byteable.Value, error)

	Find(key byteable.Text, op lock.Operator, v1, v2 byteable.Value) ([]byteable.Identifier, error)

	Chronologize(key byteable.Text, record byteable.Identifier, start, end uint64) ([]ChronologizeEntry, error)
	Audit(key byteable.Text, record byteable.Identifier, start, end uint64) ([]AuditEntry, error)
	Trace(record byteable.Identifier) (map[string][]byteable.Identifier, error)
	Navigate(record byteable.Identifier, path []byteable.Text) ([]byteable.Identifier, error)

	Stage(requester any) *Transaction
}

// ChronologizeEntry is one change point in a chronologize() sequence (spec
// §4.9): the version at which the field's value set changed, and the set
// itself. Empty intermediate sets are filtered by the caller loop in
// Database.Chronologize, never yielded here.
type ChronologizeEntry struct {
	Version uint64
	Values  []byteable.Value
}

// AuditEntry is one entry in an audit() sequence: the version and a
// human-readable description of the change, matching the teacher's
// human-readable audit-log idiom.
type AuditEntry struct {
	Version     uint64
	Description string
}

// Database is the in-process Facade implementation. Writes land in a
// buffer.ToggleQueue (spec §4.6) and transfer into one mutable Segment once
// the queue signals a drain; reads also consult a temporally-ordered list of
// immutable synced segments (spec §4.5 Compare), which New leaves empty and
// nothing in this package adds to. A LockBroker (spec §4.7) coordinates cross-goroutine
// access to (key, record) pairs.
type Database struct {
	mu      sync.RWMutex
	broker  *lock.LockBroker
	queue   *buffer.ToggleQueue
	current *segment.Segment
	synced  []*segment.Segment // oldest-first, per spec §4.5/§5 merge order
	clock   atomic.Uint64

	txMu         sync.Mutex
	transactions map[any]*Transaction // requester -> its open Transaction, per Stage
}

var _ Facade = (*Database)(nil)

// New creates a Database with a fresh mutable Segment, an empty write
// queue, and the given LockBroker (typically process-global, shared with
// the orchestrator's eviction sweep).
func New(broker *lock.LockBroker, opts segment.Options, bufferPageSize int) *Database {
	return &Database{
		broker:       broker,
		queue:        buffer.NewToggleQueue(bufferPageSize),
		current:      segment.New(opts),
		transactions: make(map[any]*Transaction),
	}
}

// nextVersion issues a strictly increasing logical version, playing the
// role of spec §3's "globally increasing version" clock.
func (d *Database) nextVersion() uint64 {
	return d.clock.Add(1)
}

func recordToken(key byteable.Text, record byteable.Identifier) lock.RecordToken {
	return lock.RecordToken{Key: key, Record: record}
}

// Segments returns every segment this Database currently holds, oldest
// synced first then the mutable current segment, for callers that need to
// reach a segment's manifests directly (e.g. wiring
// orchestrator.Scheduler.AddManifestReap for each synced segment at
// startup).
func (d *Database) Segments() []*segment.Segment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.allSegmentsLocked()
}

// Add inserts (key, value) into record if not already present, returning
// whether it was newly added. Presence is decided by Value.Compare, the same
// exact-type equality values() keys its replay map by — Value.Equal's
// optimized numeric equality is reserved for IndexChunk key matching (spec
// §4.4) and must not decide whether an add/remove is observable here.
func (d *Database) Add(key byteable.Text, value byteable.Value, record byteable.Identifier) (bool, error) {
	if value.Type() == byteable.TypeLink && value.Link() == record {
		return false, ErrSelfLink
	}
	permit := d.broker.WriteLock(recordToken(key, record))
	defer permit.Release()

	present, err := d.values(key, record, 0)
	if err != nil {
		return false, err
	}
	for _, v := range present {
		if v.Compare(value) == 0 {
			return false, nil
		}
	}
	if err := d.write(revision.Add, record, key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Remove retracts (key, value) from record if present, returning whether a
// retraction was written.
func (d *Database) Remove(key byteable.Text, value byteable.Value, record byteable.Identifier) (bool, error) {
	permit := d.broker.WriteLock(recordToken(key, record))
	defer permit.Release()
	return d.removeLocked(key, value, record)
}

func (d *Database) removeLocked(key byteable.Text, value byteable.Value, record byteable.Identifier) (bool, error) {
	present, err := d.values(key, record, 0)
	if err != nil {
		return false, err
	}
	found := false
	for _, v := range present {
		if v.Compare(value) == 0 {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if err := d.write(revision.Remove, record, key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Set atomically replaces key's entire value set on record with {value}:
// every currently-present value is removed, then value is added, all under
// one write lock hold (spec §4.9: "remove-then-add atomically under a write
// lock on (key,record)").
func (d *Database) Set(key byteable.Text, value byteable.Value, record byteable.Identifier) error {
	if value.Type() == byteable.TypeLink && value.Link() == record {
		return ErrSelfLink
	}
	permit := d.broker.WriteLock(recordToken(key, record))
	defer permit.Release()

	present, err := d.values(key, record, 0)
	if err != nil {
		return err
	}
	for _, v := range present {
		if _, err := d.removeLocked(key, v, record); err != nil {
			return err
		}
	}
	return d.write(revision.Add, record, key, value)
}

func (d *Database) write(action revision.Action, record byteable.Identifier, key byteable.Text, value byteable.Value) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	w := buffer.New(action, record, key, value, d.nextVersion())
	shouldDrain, err := d.queue.Append(w)
	if err != nil {
		return fmt.Errorf("database: append write: %w", err)
	}
	if shouldDrain {
		for _, pending := range d.queue.Drain() {
			if _, err := d.current.Acquire(pending); err != nil {
				return fmt.Errorf("database: acquire write: %w", err)
			}
		}
	}
	return nil
}
