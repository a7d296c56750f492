// Package segment implements the immutable, memory-mapped unit of storage
// that bundles a TableChunk, IndexChunk, and CorpusChunk with their filters
// and manifests behind a single file (spec §4.5). A Segment starts life
// mutable (freshly created, backed by nothing but in-memory chunks),
// accepts writes via Acquire, and becomes durable and read-only once Sync
// persists it to disk and freezes its chunks.
package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/cinchapi/concourse-kernel/internal/bloom"
	"github.com/cinchapi/concourse-kernel/internal/buffer"
	"github.com/cinchapi/concourse-kernel/internal/chunk"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
	"github.com/cinchapi/concourse-kernel/internal/revision"
	"github.com/cinchapi/concourse-kernel/internal/searchindexer"
)

// ErrLoad wraps any failure while validating or mapping a persisted segment
// file (spec §4.5 Load: "fails SegmentLoadError on signature/version
// mismatch").
type ErrLoad struct{ Err error }

func (e *ErrLoad) Error() string { return "segment: load failed: " + e.Err.Error() }
func (e *ErrLoad) Unwrap() error { return e.Err }

// seekableFrameSize is the uncompressed frame size used when writing a
// compressed segment, matching compress.go's choice of 256 KiB: small
// enough to bound read amplification on a random ReadAt, large enough to
// keep the compression ratio reasonable.
const seekableFrameSize = 256 << 10

// ErrAlreadySynced is returned by Sync on a segment that has already been
// persisted and frozen.
var ErrAlreadySynced = errors.New("segment: already synced")

// ErrNotSynced names the state of a segment that has not been persisted. No
// operation in this package returns it; Similarity, for one, works on
// mutable segments too.
var ErrNotSynced = errors.New("segment: not yet synced")

// Segment bundles the table/index/corpus views of one contiguous slice of
// revisions (spec §4.5).
type Segment struct {
	mu sync.RWMutex // segment-level write lock (spec §5): serializes Acquire and Sync; reads take the read side

	mutable bool
	table   *chunk.TableChunk
	index   *chunk.IndexChunk
	corpus  *chunk.CorpusChunk

	minTs, maxTs, syncTs int64
	count                uint64

	path       string
	compressed bool
	closer     interface{ Close() error }

	maxSubstringLength         int
	maxSubstringScanTerms      int
	manifestStreamingThreshold int
}

// Options configures a new or loaded Segment.
type Options struct {
	ExpectedInsertions        int
	MaxSubstringLength        int
	MaxSubstringScanTerms     int
	ManifestStreamingThreshold int
	Compressed                bool
	Pool                       *searchindexer.Pool
}

// New creates an empty, mutable, in-memory Segment ready to Acquire writes.
func New(opts Options) *Segment {
	pool := opts.Pool
	if pool == nil {
		pool = searchindexer.New(searchindexer.DefaultThreads())
	}
	return &Segment{
		mutable:                    true,
		table:                      chunk.NewTableChunk(opts.ExpectedInsertions),
		index:                      chunk.NewIndexChunk(opts.ExpectedInsertions),
		corpus:                     chunk.NewCorpusChunk(opts.ExpectedInsertions, pool, opts.MaxSubstringLength, opts.MaxSubstringScanTerms),
		minTs:                      0,
		maxTs:                      0,
		compressed:                 opts.Compressed,
		maxSubstringLength:         opts.MaxSubstringLength,
		maxSubstringScanTerms:      opts.MaxSubstringScanTerms,
		manifestStreamingThreshold: opts.ManifestStreamingThreshold,
	}
}

// Acquire applies w to all three chunk views, dispatching the table, index
// and corpus inserts concurrently via an errgroup (the corpus insert in turn
// fans its substrings out to the search indexer pool), grounded on
// build.go's BuildHelper.Build pattern of errgroup.WithContext over a
// detached context. Returns a Receipt naming the table/index artifacts
// produced; corpus artifacts are intentionally not itemized (spec §4.5).
func (s *Segment) Acquire(w buffer.Write) (buffer.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable {
		return buffer.Receipt{}, ErrAlreadySynced
	}

	var (
		tableArtifact chunk.Artifact[revision.TableRevision]
		indexArtifact chunk.Artifact[revision.IndexRevision]
	)

	g, _ := errgroup.WithContext(context.WithoutCancel(context.Background()))
	g.Go(func() error {
		a, err := s.table.Insert(w.Locator, w.Key, w.Val, w.Version, w.Action)
		if err != nil {
			return err
		}
		tableArtifact = a
		return nil
	})
	g.Go(func() error {
		a, err := s.index.Insert(w.Key, w.Val, w.Locator, w.Version, w.Action)
		if err != nil {
			return err
		}
		indexArtifact = a
		return nil
	})
	g.Go(func() error {
		_, err := s.corpus.Insert(w.Key, w.Val, w.Locator, w.Version, w.Action)
		return err
	})
	if err := g.Wait(); err != nil {
		return buffer.Receipt{}, err
	}

	if s.minTs == 0 || int64(w.Version) < s.minTs {
		s.minTs = int64(w.Version)
	}
	if int64(w.Version) > s.maxTs {
		s.maxTs = int64(w.Version)
	}

	return buffer.Receipt{Table: tableArtifact.Revision, Index: indexArtifact.Revision}, nil
}

// Sync persists the segment to path, freezes its chunks, and sets syncTs.
// Count is computed from the index chunk's revision count (spec §4.5 Sync:
// "flush bytes, set syncTs, compute count from index chunk, freeze each
// chunk"). syncTs is supplied by the caller (the kernel's monotonic clock
// source) rather than read internally, keeping Segment free of a direct
// time.Now dependency.
func (s *Segment) Sync(path string, syncTs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mutable {
		return ErrAlreadySynced
	}

	tableMan, tableBytes, err := s.table.Serialize()
	if err != nil {
		return err
	}
	indexMan, indexBytes, err := s.index.Serialize()
	if err != nil {
		return err
	}
	corpusMan, corpusBytes, err := s.corpus.Serialize()
	if err != nil {
		return err
	}

	// Freeze in place first so the ErrEmptyChunk invariant (no TableChunk or
	// IndexChunk may freeze with zero revisions) surfaces before anything is
	// written to disk. The region argument is nil here since the chunks
	// backing this Segment value are about to be discarded in favor of ones
	// Load reconstructs straight from the persisted file below.
	if err := s.table.Freeze(nil, tableMan); err != nil {
		return err
	}
	if err := s.index.Freeze(nil, indexMan); err != nil {
		return err
	}
	if err := s.corpus.Freeze(nil, corpusMan); err != nil {
		return err
	}

	tableFilter := s.table.Filter().Encode()
	indexFilter := s.index.Filter().Encode()
	corpusFilter := s.corpus.Filter().Encode()
	tableManBytes := tableMan.Encode()
	indexManBytes := indexMan.Encode()
	corpusManBytes := corpusMan.Encode()

	count := uint64(s.index.RevisionCount())

	h := header{
		count:             count,
		minTs:             s.minTs,
		maxTs:             s.maxTs,
		syncTs:            syncTs,
		tableFilterLen:    uint64(len(tableFilter)),
		indexFilterLen:    uint64(len(indexFilter)),
		corpusFilterLen:   uint64(len(corpusFilter)),
		tableManifestLen:  uint64(len(tableManBytes)),
		indexManifestLen:  uint64(len(indexManBytes)),
		corpusManifestLen: uint64(len(corpusManBytes)),
		tableChunkLen:     uint64(len(tableBytes)),
		indexChunkLen:     uint64(len(indexBytes)),
		corpusChunkLen:    uint64(len(corpusBytes)),
	}

	body := append([]byte{}, tableFilter...)
	body = append(body, indexFilter...)
	body = append(body, corpusFilter...)
	body = append(body, tableManBytes...)
	body = append(body, indexManBytes...)
	body = append(body, corpusManBytes...)
	body = append(body, tableBytes...)
	body = append(body, indexBytes...)
	body = append(body, corpusBytes...)

	if err := writeFile(path, append(encodeHeader(h), body...), s.compressed); err != nil {
		return err
	}

	streamingThreshold := s.manifestStreamingThreshold
	if streamingThreshold <= 0 {
		streamingThreshold = manifest.DefaultStreamingThreshold
	}
	loaded, err := Load(path, LoadOptions{
		MaxSubstringLength:         s.maxSubstringLength,
		MaxSubstringScanTerms:      s.maxSubstringScanTerms,
		ManifestStreamingThreshold: streamingThreshold,
		Compressed:                 s.compressed,
	})
	if err != nil {
		return err
	}

	s.table = loaded.table
	s.index = loaded.index
	s.corpus = loaded.corpus
	s.closer = loaded.closer
	s.path = path
	s.count = count
	s.syncTs = syncTs
	s.mutable = false
	return nil
}

// writeFile persists data to path, atomically (temp file then rename),
// optionally compressing the body with seekable zstd so later ReadAt calls
// decompress only the touched frame(s) (grounded on compress.go's
// compressFile pattern).
func writeFile(path string, data []byte, compressed bool) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".segment-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if !compressed {
		if _, err := tmp.Write(data); err != nil {
			cleanup()
			return err
		}
	} else {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			cleanup()
			return err
		}
		defer enc.Close()
		sw, err := seekable.NewWriter(tmp, enc)
		if err != nil {
			cleanup()
			return err
		}
		for off := 0; off < len(data); off += seekableFrameSize {
			end := off + seekableFrameSize
			if end > len(data) {
				end = len(data)
			}
			if _, err := sw.Write(data[off:end]); err != nil {
				cleanup()
				return err
			}
		}
		if err := sw.Close(); err != nil {
			cleanup()
			return err
		}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// LoadOptions configures how a persisted segment file is mapped back into
// memory.
type LoadOptions struct {
	MaxSubstringLength         int
	MaxSubstringScanTerms      int
	ManifestStreamingThreshold int
	Compressed                 bool
}

// Load validates a segment file's header and maps its filter, manifest, and
// chunk regions, instantiating frozen chunks that read through the mapped
// regions on demand (spec §4.5 Load). Fails with ErrLoad wrapping
// ErrBadSignature/ErrUnsupportedVersion on a corrupt or foreign file.
func Load(path string, opts LoadOptions) (*Segment, error) {
	var (
		r      region
		closer interface{ Close() error }
		err    error
	)
	if opts.Compressed {
		zf, e := openZstdFile(path)
		err = e
		if e == nil {
			r, closer = zf, zf
		}
	} else {
		mf, e := openMmapFile(path)
		err = e
		if e == nil {
			r, closer = mf, mf
		}
	}
	if err != nil {
		return nil, &ErrLoad{Err: err}
	}

	var headerBuf [headerSize]byte
	if _, err := r.ReadAt(headerBuf[:], 0); err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	h, err := decodeHeader(headerBuf[:])
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}

	off := int64(headerSize)
	tableFilterOff, indexFilterOff, corpusFilterOff := off, off+int64(h.tableFilterLen), off+int64(h.tableFilterLen)+int64(h.indexFilterLen)
	off = corpusFilterOff + int64(h.corpusFilterLen)
	tableManOff, indexManOff, corpusManOff := off, off+int64(h.tableManifestLen), off+int64(h.tableManifestLen)+int64(h.indexManifestLen)
	off = corpusManOff + int64(h.corpusManifestLen)
	tableChunkOff, indexChunkOff, corpusChunkOff := off, off+int64(h.tableChunkLen), off+int64(h.tableChunkLen)+int64(h.indexChunkLen)

	readRegion := func(regionOff int64, length uint64) ([]byte, error) {
		buf := make([]byte, length)
		if length == 0 {
			return buf, nil
		}
		if _, err := r.ReadAt(buf, regionOff); err != nil {
			return nil, err
		}
		return buf, nil
	}

	tableFilterBytes, err := readRegion(tableFilterOff, h.tableFilterLen)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	indexFilterBytes, err := readRegion(indexFilterOff, h.indexFilterLen)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	corpusFilterBytes, err := readRegion(corpusFilterOff, h.corpusFilterLen)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	tableManBytes, err := readRegion(tableManOff, h.tableManifestLen)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	indexManBytes, err := readRegion(indexManOff, h.indexManifestLen)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	corpusManBytes, err := readRegion(corpusManOff, h.corpusManifestLen)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}

	tableFilter, err := bloom.Decode(tableFilterBytes)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	indexFilter, err := bloom.Decode(indexFilterBytes)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	corpusFilter, err := bloom.Decode(corpusFilterBytes)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}

	threshold := opts.ManifestStreamingThreshold
	tableMan, err := manifest.Load(tableManBytes, threshold)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	indexMan, err := manifest.Load(indexManBytes, threshold)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}
	corpusMan, err := manifest.Load(corpusManBytes, threshold)
	if err != nil {
		closer.Close()
		return nil, &ErrLoad{Err: err}
	}

	tableRegion := offsetRegion{base: r, offset: tableChunkOff, length: int64(h.tableChunkLen)}
	indexRegion := offsetRegion{base: r, offset: indexChunkOff, length: int64(h.indexChunkLen)}
	corpusRegion := offsetRegion{base: r, offset: corpusChunkOff, length: int64(h.corpusChunkLen)}

	seg := &Segment{
		mutable:    false,
		table:      chunk.LoadTableChunk(tableFilter, tableMan, tableRegion),
		index:      chunk.LoadIndexChunk(indexFilter, indexMan, indexRegion),
		corpus:     chunk.LoadCorpusChunk(corpusFilter, corpusMan, corpusRegion, opts.MaxSubstringLength, opts.MaxSubstringScanTerms),
		minTs:      h.minTs,
		maxTs:      h.maxTs,
		syncTs:     h.syncTs,
		count:      h.count,
		path:       path,
		compressed: opts.Compressed,
		closer:     closer,

		maxSubstringLength:         opts.MaxSubstringLength,
		maxSubstringScanTerms:      opts.MaxSubstringScanTerms,
		manifestStreamingThreshold: opts.ManifestStreamingThreshold,
	}
	return seg, nil
}

// Close releases the segment's backing file resources (mmap/zstd reader).
// A no-op for a segment that has never been synced.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

func (s *Segment) Mutable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mutable
}

func (s *Segment) MinTs() int64  { return s.atomicTs(func() int64 { return s.minTs }) }
func (s *Segment) MaxTs() int64  { return s.atomicTs(func() int64 { return s.maxTs }) }
func (s *Segment) SyncTs() int64 { return s.atomicTs(func() int64 { return s.syncTs }) }
func (s *Segment) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Segment) atomicTs(f func() int64) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return f()
}

func (s *Segment) Table() *chunk.TableChunk   { return s.table }
func (s *Segment) Index() *chunk.IndexChunk   { return s.index }
func (s *Segment) Corpus() *chunk.CorpusChunk { return s.corpus }

// Manifests returns every chunk manifest this segment currently has loaded,
// for periodic soft-reference maintenance (orchestrator.Scheduler's
// AddManifestReap). A still-mutable segment contributes nothing: its chunks
// have no persisted manifest yet.
func (s *Segment) Manifests() []*manifest.Manifest {
	var out []*manifest.Manifest
	for _, m := range []*manifest.Manifest{s.table.Manifest(), s.index.Manifest(), s.corpus.Manifest()} {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Similarity estimates overlap between s and other as the max of their
// table and index filter similarities (spec §4.5: "similarity_with = max of
// table/index filter similarity").
func (s *Segment) Similarity(other *Segment) (float64, error) {
	tableSim, err := bloom.EstimateSimilarity(s.table.Filter(), other.table.Filter())
	if err != nil {
		return 0, err
	}
	indexSim, err := bloom.EstimateSimilarity(s.index.Filter(), other.index.Filter())
	if err != nil {
		return 0, err
	}
	if indexSim > tableSim {
		return indexSim, nil
	}
	return tableSim, nil
}

// Compare orders segments temporally (spec §4.5): a segment whose maxTs
// precedes other's minTs sorts first and vice versa; overlapping ranges
// fall back to syncTs, with an immutable (already-synced) segment ordered
// before a still-mutable one sharing the same syncTs of zero.
func (s *Segment) Compare(other *Segment) int {
	s.mu.RLock()
	sMin, sMax, sSync, sMutable := s.minTs, s.maxTs, s.syncTs, s.mutable
	s.mu.RUnlock()
	other.mu.RLock()
	oMin, oMax, oSync, oMutable := other.minTs, other.maxTs, other.syncTs, other.mutable
	other.mu.RUnlock()

	switch {
	case sMax < oMin:
		return -1
	case sMin > oMax:
		return 1
	}
	switch {
	case sSync < oSync:
		return -1
	case sSync > oSync:
		return 1
	}
	switch {
	case !sMutable && oMutable:
		return -1
	case sMutable && !oMutable:
		return 1
	default:
		return 0
	}
}
