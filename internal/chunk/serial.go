package chunk

import (
	"sort"
	"sync"

	"github.com/cinchapi/concourse-kernel/internal/bloom"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
)

// serialEngine backs TableChunk and IndexChunk: a single read/write lock
// guards the sorted revision slice, the bloom filter, and the manifest
// (spec §4.4: "SerialChunk uses a single read/write lock; insert acquires
// write, seek acquires read").
type serialEngine[R revisionRecord] struct {
	mu        sync.RWMutex
	mutable   bool
	revisions []R // sorted; nil once frozen
	cached    []R // soft-reference snapshot kept after freeze; DropCache releases it
	compare   func(a, b R) int
	decode    func([]byte) (R, int, error)
	filter    *bloom.Filter
	man       *manifest.Manifest
	size      int

	region RegionReader
}

func newSerialEngine[R revisionRecord](expectedInsertions int, compare func(a, b R) int, decode func([]byte) (R, int, error)) *serialEngine[R] {
	return &serialEngine[R]{
		mutable: true,
		compare: compare,
		decode:  decode,
		filter:  bloom.New(expectedInsertions, bloom.DefaultFalsePositiveRate),
	}
}

// loadSerialEngine reconstructs an already-frozen engine from a segment's
// persisted filter/manifest/region, without replaying inserts (spec §4.5
// Load).
func loadSerialEngine[R revisionRecord](filter *bloom.Filter, man *manifest.Manifest, region RegionReader, compare func(a, b R) int, decode func([]byte) (R, int, error)) *serialEngine[R] {
	return &serialEngine[R]{
		mutable: false,
		compare: compare,
		decode:  decode,
		filter:  filter,
		man:     man,
		region:  region,
	}
}

func (e *serialEngine[R]) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.size
}

func (e *serialEngine[R]) Filter() *bloom.Filter {
	return e.filter
}

// Manifest returns the chunk's persisted Composite->range index, or nil
// while still mutable or when the chunk has no on-disk manifest (e.g. an
// unsynced segment).
func (e *serialEngine[R]) Manifest() *manifest.Manifest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.man
}

func (e *serialEngine[R]) insert(rev R) (Artifact[R], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mutable {
		return Artifact[R]{}, ErrImmutableChunk
	}
	artifact, err := makeArtifact(rev)
	if err != nil {
		return Artifact[R]{}, err
	}
	pos := sort.Search(len(e.revisions), func(i int) bool { return e.compare(e.revisions[i], rev) >= 0 })
	e.revisions = append(e.revisions, rev)
	copy(e.revisions[pos+1:], e.revisions[pos:])
	e.revisions[pos] = rev

	e.filter.Put(artifact.Locator)
	e.filter.Put(artifact.LocatorKey)
	e.filter.Put(artifact.Full)
	e.size += rev.Size() + 4
	e.man = nil
	return artifact, nil
}

func (e *serialEngine[R]) seek(c byteable.Composite, emit func(r R)) error {
	if !e.filter.MightContain(c) {
		return nil
	}
	e.mu.RLock()
	var revs []R
	if e.mutable {
		revs = e.revisions
	} else {
		revs = e.cached
	}
	man := e.man
	region := e.region
	e.mu.RUnlock()

	if revs != nil {
		if !e.mutable {
			chunkCache.Get(e) // bump recency; a cold chunk is evicted first
		}
		return scanSorted(revs, c, emit)
	}
	if man == nil || region == nil {
		return nil
	}
	r := man.Lookup(c)
	if r == manifest.NullRange {
		return nil
	}
	length := r.End - r.Start
	if length <= 0 {
		return nil
	}
	raw := make([]byte, length)
	if _, err := region.ReadAt(raw, r.Start); err != nil {
		return err
	}
	return decodeGroup(raw, e.decode, emit)
}

// serialize produces the (Manifest, bytes) pair for this chunk's current
// sorted revisions, without mutating chunk state (spec §4.4 Serialize).
func (e *serialEngine[R]) serialize() (*manifest.Manifest, []byte, error) {
	e.mu.RLock()
	revs := append([]R(nil), e.revisions...)
	e.mu.RUnlock()
	return buildManifestAndBytes(revs)
}

// freeze transitions the chunk to immutable, retaining man and region for
// subsequent seeks (spec §4.4 Freeze).
func (e *serialEngine[R]) freeze(region RegionReader, man *manifest.Manifest, allowEmpty bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mutable {
		return nil
	}
	if len(e.revisions) == 0 && !allowEmpty {
		return ErrEmptyChunk
	}
	e.cached = e.revisions
	e.revisions = nil
	e.mutable = false
	e.man = man
	e.region = region
	chunkCache.Add(e, struct{}{})
	return nil
}

// DropCache releases the soft-reference snapshot kept after freeze,
// forcing subsequent seeks through filter+manifest+region. Also the target
// of chunkCache's eviction callback once the process-global cache is over
// capacity, so a frozen chunk's memory residency is bounded rather than
// held for the chunk's whole lifetime.
func (e *serialEngine[R]) DropCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cached = nil
}

// onEvict satisfies evictable for chunkCache's eviction callback.
func (e *serialEngine[R]) onEvict() {
	e.DropCache()
}

func (e *serialEngine[R]) Mutable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mutable
}

// RevisionCount returns the number of revisions currently held, whether
// mutable or cached after freeze. Returns 0 once the cache has been
// dropped.
func (e *serialEngine[R]) RevisionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.mutable {
		return len(e.revisions)
	}
	return len(e.cached)
}

// all emits every revision currently resident in memory, in sorted order,
// with no locator to filter by. While mutable this is the live revision
// set; once frozen it is only the soft-reference cache, so a prior
// DropCache makes all a no-op rather than paying for a full region
// re-read. Callers that need this guarantee (e.g. trace()) must run before
// memory pressure drops the cache, or accept a partial result.
func (e *serialEngine[R]) all(emit func(r R)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var revs []R
	if e.mutable {
		revs = e.revisions
	} else {
		revs = e.cached
		chunkCache.Get(e) // bump recency alongside seek
	}
	for _, r := range revs {
		emit(r)
	}
}
