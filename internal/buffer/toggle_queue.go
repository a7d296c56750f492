package buffer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cinchapi/concourse-kernel/internal/format"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

// logVersion is the current buffer log page format version (format.Header's
// per-type version byte).
const logVersion = 1

// ErrClosed is returned by Append once the queue has been closed.
var ErrClosed = errors.New("buffer: toggle queue is closed")

// Acquirer is anything a ToggleQueue can transfer its accumulated writes
// into once the page threshold is reached (spec §4.6: "transfer into
// Segment::acquire when a threshold is reached"). *segment.Segment
// implements this.
type Acquirer interface {
	Acquire(w Write) (Receipt, error)
}

// Receipt is returned by Acquirer.Acquire: the TableRevision/IndexRevision
// produced for one Write (spec §4.5 Acquire; corpus artifacts are
// intentionally not itemized).
type Receipt struct {
	Table revision.TableRevision
	Index revision.IndexRevision
}

// ToggleQueue is the durable, ordered landing zone for writes before they
// transfer to a Segment (spec §4.6). An ADD at version v cancels a pending
// REMOVE of the identical (locator, key, value) at the same version, and
// vice versa: the cancelled pair is erased, not retained, so a toggled
// write never reaches a segment or the durable log.
type ToggleQueue struct {
	mu       sync.Mutex
	pageSize int
	order    []string // toggleKey insertion order, for deterministic log replay
	pending  map[string]Write
	closed   bool
}

// NewToggleQueue creates an empty queue. pageSize is the number of
// surviving (non-cancelled) writes at which Append signals the caller should
// drain and transfer the page to a segment (spec §6: "buffer_page_size").
func NewToggleQueue(pageSize int) *ToggleQueue {
	if pageSize <= 0 {
		pageSize = 1
	}
	return &ToggleQueue{pageSize: pageSize, pending: make(map[string]Write)}
}

// Append adds w to the queue. A prior entry at the same toggle key
// (locator, key, value, version) with the opposite action is cancelled
// together with w; one with the same action is replaced by w. Returns true if the queue has reached its page threshold and should be
// drained.
func (q *ToggleQueue) Append(w Write) (shouldDrain bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrClosed
	}

	key := w.toggleKey()
	if prior, ok := q.pending[key]; ok && prior.Action != w.Action {
		delete(q.pending, key)
		q.removeFromOrder(key)
		return len(q.pending) >= q.pageSize, nil
	}

	if _, ok := q.pending[key]; !ok {
		q.order = append(q.order, key)
	}
	q.pending[key] = w
	return len(q.pending) >= q.pageSize, nil
}

func (q *ToggleQueue) removeFromOrder(key string) {
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// Drain returns every surviving write in insertion order and empties the
// queue, ready for transfer into a segment via Acquirer.Acquire.
func (q *ToggleQueue) Drain() []Write {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Write, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, q.pending[key])
	}
	q.order = nil
	q.pending = make(map[string]Write)
	return out
}

// Snapshot returns every surviving write in insertion order without
// draining the queue, so a reader can observe its own not-yet-transferred
// writes (read-your-writes) before the next Drain hands them to a segment.
func (q *ToggleQueue) Snapshot() []Write {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Write, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, q.pending[key])
	}
	return out
}

// Len reports the number of surviving (non-cancelled) writes currently
// queued.
func (q *ToggleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close marks the queue closed; subsequent Appends fail with ErrClosed.
func (q *ToggleQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// EncodeLog serializes the surviving writes as the durable ordered log
// format (spec §6 "Buffer log encoding"): a 4-byte format.Header
// (type=format.TypeBufferPage) followed by one record per surviving write,
// each (entry_size:u32 | write-bytes | tombstone:u8). Tombstone is always 0
// here since cancelled entries are erased rather than retained and
// therefore never reach the log.
func (q *ToggleQueue) EncodeLog() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	var buf bytes.Buffer
	h := format.Header{Type: format.TypeBufferPage, Version: logVersion}
	hdr := h.Encode()
	buf.Write(hdr[:])
	for _, key := range q.order {
		w := q.pending[key]
		size := w.size()
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], uint32(size))
		buf.Write(header[:])
		body := make([]byte, size)
		w.copyTo(body)
		buf.Write(body)
		buf.WriteByte(0) // tombstone: 0 = live
	}
	return buf.Bytes()
}

// DecodeLog replays a persisted buffer log page back into an ordered slice
// of live writes, skipping any record whose tombstone byte is set. Fails if
// the leading format.Header does not identify a buffer log page at a
// version this build understands.
func DecodeLog(data []byte) ([]Write, error) {
	if _, err := format.DecodeAndValidate(data, format.TypeBufferPage, logVersion); err != nil {
		return nil, err
	}
	var out []Write
	off := format.HeaderSize
	for off < len(data) {
		if len(data)-off < 4 {
			return nil, ErrCorruptLog
		}
		size := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if size < 0 || len(data)-off < size+1 {
			return nil, ErrCorruptLog
		}
		w, _, err := decodeWrite(data[off : off+size])
		if err != nil {
			return nil, err
		}
		off += size
		tombstone := data[off]
		off++
		if tombstone == 0 {
			out = append(out, w)
		}
	}
	return out, nil
}

// ErrCorruptLog is returned by DecodeLog when the framing is malformed.
var ErrCorruptLog = errors.New("buffer: corrupt log page")
