package chunk

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/cinchapi/concourse-kernel/internal/bloom"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
)

// shardCount bounds the parallelism of concurrentEngine inserts. A fixed,
// modest shard count avoids unbounded goroutine-local lock contention
// without the bookkeeping of a dynamically-sized sharded map.
const shardCount = 16

type shard[R revisionRecord] struct {
	mu        sync.RWMutex
	revisions []R
}

// concurrentEngine backs CorpusChunk: a concurrent sorted multiset realized
// as a fixed set of independently-locked shards keyed by a hash of the
// revision's locator, so concurrent inserts to different locators proceed
// without contending on a single lock (spec §4.4: "ConcurrentChunk...
// permits concurrent inserts using a concurrent sorted set; seek is still
// guarded by the read lock for visibility").
type concurrentEngine[R revisionRecord] struct {
	shards  [shardCount]*shard[R]
	compare func(a, b R) int
	decode  func([]byte) (R, int, error)
	filter  *bloom.Filter
	size    atomic.Int64

	frozenMu sync.RWMutex
	mutable  bool
	man      *manifest.Manifest
	region   RegionReader
}

func newConcurrentEngine[R revisionRecord](expectedInsertions int, compare func(a, b R) int, decode func([]byte) (R, int, error)) *concurrentEngine[R] {
	e := &concurrentEngine[R]{
		compare: compare,
		decode:  decode,
		filter:  bloom.New(expectedInsertions, bloom.DefaultFalsePositiveRate),
		mutable: true,
	}
	for i := range e.shards {
		e.shards[i] = &shard[R]{}
	}
	return e
}

// loadConcurrentEngine reconstructs an already-frozen engine from a
// segment's persisted filter/manifest/region, without replaying inserts.
func loadConcurrentEngine[R revisionRecord](filter *bloom.Filter, man *manifest.Manifest, region RegionReader, compare func(a, b R) int, decode func([]byte) (R, int, error)) *concurrentEngine[R] {
	e := &concurrentEngine[R]{
		compare: compare,
		decode:  decode,
		filter:  filter,
		mutable: false,
		man:     man,
		region:  region,
	}
	for i := range e.shards {
		e.shards[i] = &shard[R]{}
	}
	return e
}

func (e *concurrentEngine[R]) shardFor(locator byteable.Byteable) *shard[R] {
	h := xxhash.Sum64(byteable.Bytes(locator))
	return e.shards[h%shardCount]
}

func (e *concurrentEngine[R]) Size() int {
	return int(e.size.Load())
}

func (e *concurrentEngine[R]) Filter() *bloom.Filter {
	return e.filter
}

// Manifest returns the chunk's persisted Composite->range index, or nil
// while still mutable or when the chunk has no on-disk manifest.
func (e *concurrentEngine[R]) Manifest() *manifest.Manifest {
	e.frozenMu.RLock()
	defer e.frozenMu.RUnlock()
	return e.man
}

func (e *concurrentEngine[R]) Mutable() bool {
	e.frozenMu.RLock()
	defer e.frozenMu.RUnlock()
	return e.mutable
}

func (e *concurrentEngine[R]) insert(rev R) (Artifact[R], error) {
	e.frozenMu.RLock()
	mutable := e.mutable
	e.frozenMu.RUnlock()
	if !mutable {
		return Artifact[R]{}, ErrImmutableChunk
	}

	artifact, err := makeArtifact(rev)
	if err != nil {
		return Artifact[R]{}, err
	}

	s := e.shardFor(rev.Locator())
	s.mu.Lock()
	pos := sort.Search(len(s.revisions), func(i int) bool { return e.compare(s.revisions[i], rev) >= 0 })
	s.revisions = append(s.revisions, rev)
	copy(s.revisions[pos+1:], s.revisions[pos:])
	s.revisions[pos] = rev
	s.mu.Unlock()

	e.filter.Put(artifact.Locator)
	e.filter.Put(artifact.LocatorKey)
	e.filter.Put(artifact.Full)
	e.size.Add(int64(rev.Size() + 4))
	return artifact, nil
}

// snapshot returns a single globally-sorted slice across all shards, used
// by both seek (mutable path) and serialize.
func (e *concurrentEngine[R]) snapshot() []R {
	var all []R
	for _, s := range e.shards {
		s.mu.RLock()
		all = append(all, s.revisions...)
		s.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool { return e.compare(all[i], all[j]) < 0 })
	return all
}

func (e *concurrentEngine[R]) seek(c byteable.Composite, emit func(r R)) error {
	if !e.filter.MightContain(c) {
		return nil
	}
	e.frozenMu.RLock()
	mutable := e.mutable
	man := e.man
	region := e.region
	e.frozenMu.RUnlock()

	if mutable {
		return scanSorted(e.snapshot(), c, emit)
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

func (e *concurrentEngine[R]) serialize() (*manifest.Manifest, []byte, error) {
	return buildManifestAndBytes(e.snapshot())
}

// freeze transitions to immutable. Unlike serialEngine, CorpusChunk may opt
// into empty-freeze (spec §4.4: "Freezing an empty non-CorpusChunk fails;
// freezing an empty CorpusChunk succeeds").
func (e *concurrentEngine[R]) freeze(region RegionReader, man *manifest.Manifest) error {
	e.frozenMu.Lock()
	defer e.frozenMu.Unlock()
	if !e.mutable {
		return nil
	}
	e.mutable = false
	e.man = man
	e.region = region
	for _, s := range e.shards {
		s.mu.Lock()
		s.revisions = nil
		s.mu.Unlock()
	}
	return nil
}

func (e *concurrentEngine[R]) RevisionCount() int {
	if e.Mutable() {
		n := 0
		for _, s := range e.shards {
			s.mu.RLock()
			n += len(s.revisions)
			s.mu.RUnlock()
		}
		return n
	}
	return 0
}
