// Package manifest implements the Composite -> byte-range index paired with
// every Chunk (spec §4.3): a map from a Composite lookup key to the
// [start,end) byte range of the matching revision group within a frozen
// chunk's file region.
//
// A Manifest is built once while its owning chunk is being serialized
// (put_start/put_end), then persisted and reloaded read-only. Two loading
// strategies are supported depending on persisted size: an eager heap map
// for manifests under the streaming threshold, and on-disk streaming scans
// for larger ones, with an opportunistic background fill that promotes a
// streaming manifest to an eager map over time.
package manifest

import (
	"encoding/binary"
	"errors"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/callgroup"
)

// NoEntry is the sentinel value for an unset Range bound (spec §4.3).
const NoEntry int64 = -1

// DefaultStreamingThreshold is the default persisted-size cutoff above which
// a Manifest loads in streaming mode rather than eagerly (spec §4.3: "when
// persisted length < STREAMING_THRESHOLD (default ~32 MiB)").
const DefaultStreamingThreshold = 32 << 20

// DefaultEagerCacheEntries bounds the number of entries Load/BackgroundFill
// will materialize into the soft-reference eager LRU. Wired from
// kernel.Config.ManifestCacheEntries at startup via SetEagerCacheEntries.
const DefaultEagerCacheEntries = 1 << 20

var eagerCacheSize = DefaultEagerCacheEntries

// SetEagerCacheEntries resizes the eager map every subsequently Load'd or
// BackgroundFill'd Manifest will use. Manifests already loaded keep their
// existing cache size.
func SetEagerCacheEntries(n int) {
	if n <= 0 {
		n = DefaultEagerCacheEntries
	}
	eagerCacheSize = n
}

var (
	ErrInvalidPosition = errors.New("manifest: position must be non-negative")
	ErrMissingStart    = errors.New("manifest: end set before start")
	ErrCorrupt         = errors.New("manifest: corrupt entry")
)

// Range is a half-open-by-convention byte span [Start, End) within a
// chunk's persisted region. NullRange (NoEntry, NoEntry) means absent.
type Range struct {
	Start int64
	End   int64
}

// NullRange is returned by Lookup when the composite has no entry.
var NullRange = Range{Start: NoEntry, End: NoEntry}

// Manifest maps Composite keys to byte Ranges. The zero value is a fresh,
// mutable, empty manifest.
type Manifest struct {
	mutable bool
	entries map[string]Range // raw composite bytes -> range, used while mutable

	// read path, populated on Load
	eager     *lru.Cache[string, Range]
	streaming []byte // raw persisted bytes, retained for streaming scans
	group     *callgroup.Group[string]
	pending   *lru.Cache[string, Range] // recent streaming-scan results, shared across callers coalesced on the same key
}

// New returns an empty, mutable Manifest ready for put_start/put_end calls
// during chunk serialization.
func New() *Manifest {
	return &Manifest{mutable: true, entries: make(map[string]Range)}
}

// PutStart records the starting byte position of composite's revision
// group, creating the entry if absent.
func (m *Manifest) PutStart(pos int64, composite byteable.Composite) error {
	if !m.mutable {
		panic("manifest: PutStart on a loaded (immutable) manifest")
	}
	if pos < 0 {
		return ErrInvalidPosition
	}
	key := string(composite.Bytes())
	r, ok := m.entries[key]
	if !ok {
		r = Range{Start: pos, End: NoEntry}
	} else {
		r.Start = pos
	}
	m.entries[key] = r
	return nil
}

// PutEnd records the ending byte position of composite's revision group.
// Fails with ErrMissingStart if PutStart was never called for this key.
func (m *Manifest) PutEnd(pos int64, composite byteable.Composite) error {
	if !m.mutable {
		panic("manifest: PutEnd on a loaded (immutable) manifest")
	}
	if pos < 0 {
		return ErrInvalidPosition
	}
	key := string(composite.Bytes())
	r, ok := m.entries[key]
	if !ok {
		return ErrMissingStart
	}
	r.End = pos
	m.entries[key] = r
	return nil
}

// Lookup returns composite's Range, or NullRange if absent.
func (m *Manifest) Lookup(composite byteable.Composite) Range {
	key := string(composite.Bytes())
	if m.mutable {
		if r, ok := m.entries[key]; ok {
			return r
		}
		return NullRange
	}
	if m.eager != nil {
		if r, ok := m.eager.Get(key); ok {
			return r
		}
		if m.streaming == nil {
			return NullRange
		}
	}
	// Streaming mode, or the eager cache missed and full entries live on
	// disk: coalesce concurrent scans for the same key and block behind any
	// in-flight scan so a concurrent lookup observes a consistent result
	// either way (spec §4.3: "a lookup issued concurrently with a
	// background fill blocks until either the background finds the key or
	// finishes").
	errCh := m.group.DoChan(key, func() error {
		m.pending.Add(key, scanFor(m.streaming, composite))
		return nil
	})
	<-errCh
	r, _ := m.pending.Get(key)
	return r
}

// Encode serializes the manifest as an ordered sequence of
// (size:u32, start:i64, end:i64, composite-bytes) records (spec §6).
func (m *Manifest) Encode() []byte {
	if !m.mutable {
		panic("manifest: Encode on a loaded manifest")
	}
	total := 0
	type rec struct {
		key string
		r   Range
	}
	recs := make([]rec, 0, len(m.entries))
	for k, r := range m.entries {
		recs = append(recs, rec{k, r})
		total += 4 + 16 + len(k)
	}
	buf := make([]byte, total)
	off := 0
	for _, rc := range recs {
		size := 16 + len(rc.key)
		binary.BigEndian.PutUint32(buf[off:], uint32(size))
		off += 4
		binary.BigEndian.PutUint64(buf[off:], uint64(rc.r.Start))
		off += 8
		binary.BigEndian.PutUint64(buf[off:], uint64(rc.r.End))
		off += 8
		off += copy(buf[off:], rc.key)
	}
	return buf
}

// Load reconstructs a read-only Manifest from its persisted byte form,
// choosing eager or streaming strategy based on streamingThreshold.
func Load(data []byte, streamingThreshold int) (*Manifest, error) {
	if streamingThreshold <= 0 {
		streamingThreshold = DefaultStreamingThreshold
	}
	m := &Manifest{mutable: false, group: &callgroup.Group[string]{}}
	if len(data) < streamingThreshold {
		eager, err := lru.New[string, Range](eagerCacheSize)
		if err != nil {
			return nil, err
		}
		if err := scanInto(data, func(key string, r Range) {
			eager.Add(key, r)
		}); err != nil {
			return nil, err
		}
		m.eager = eager
		return m, nil
	}
	pending, err := lru.New[string, Range](256)
	if err != nil {
		return nil, err
	}
	m.pending = pending
	m.streaming = data
	return m, nil
}

// BackgroundFill opportunistically promotes a streaming manifest to an
// eager map by scanning the full persisted form once. Safe to call
// concurrently with Lookup; Lookup blocks on the same key via the internal
// callgroup rather than racing the fill.
func (m *Manifest) BackgroundFill() error {
	if m.mutable || m.streaming == nil {
		return nil
	}
	eager, err := lru.New[string, Range](eagerCacheSize)
	if err != nil {
		return err
	}
	if err := scanInto(m.streaming, func(key string, r Range) {
		eager.Add(key, r)
	}); err != nil {
		return err
	}
	m.eager = eager
	m.streaming = nil
	return nil
}

// Reap purges the streaming scan's coalesced-result cache, the soft
// reference bounding a streaming manifest's recent Lookup traffic. Safe to
// call periodically in the background; a purged entry just re-scans on the
// next Lookup miss rather than erroring.
func (m *Manifest) Reap() {
	if m.pending != nil {
		m.pending.Purge()
	}
}

func scanFor(data []byte, composite byteable.Composite) Range {
	want := composite.Bytes()
	off := 0
	for off < len(data) {
		if len(data)-off < 4 {
			break
		}
		size := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if size < 16 || len(data)-off < size {
			break
		}
		start := int64(binary.BigEndian.Uint64(data[off:]))
		end := int64(binary.BigEndian.Uint64(data[off+8:]))
		key := data[off+16 : off+size]
		if string(key) == string(want) {
			return Range{Start: start, End: end}
		}
		off += size
	}
	return NullRange
}

func scanInto(data []byte, fn func(key string, r Range)) error {
	off := 0
	for off < len(data) {
		if len(data)-off < 4 {
			return io.ErrUnexpectedEOF
		}
		size := int(binary.BigEndian.Uint32(data[off:]))
		off += 4
		if size < 16 || len(data)-off < size {
			return ErrCorrupt
		}
		start := int64(binary.BigEndian.Uint64(data[off:]))
		end := int64(binary.BigEndian.Uint64(data[off+8:]))
		key := string(data[off+16 : off+size])
		fn(key, Range{Start: start, End: end})
		off += size
	}
	return nil
}
