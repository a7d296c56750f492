// Package chunk implements the sorted-multiset-of-revisions abstraction
// shared by TableChunk, IndexChunk, and CorpusChunk (spec §4.4): each is a
// distinct instantiation of the same insert/seek/serialize/freeze protocol
// over a different revision shape, grounded on the "three concrete
// implementors of a Chunk<L,K,V> abstraction with shared flush/seek/freeze
// behavior implemented once" realization in spec §9.
package chunk

import (
	"encoding/binary"
	"errors"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

var (
	// ErrImmutableChunk is returned by Insert once a chunk has been frozen
	// (spec §4.4 invariant 5).
	ErrImmutableChunk = errors.New("chunk: chunk is frozen and immutable")
	// ErrEmptyChunk is returned by Freeze on a non-Corpus chunk with zero
	// revisions (spec §4.4: "Freeze... Fails with EmptyChunk unless the
	// chunk type opts into empty-freeze (only CorpusChunk does)").
	ErrEmptyChunk = errors.New("chunk: cannot freeze an empty chunk")
	// ErrCorruptChunk is returned when a frozen chunk's persisted region
	// cannot be parsed as a sequence of length-prefixed revisions.
	ErrCorruptChunk = errors.New("chunk: corrupt persisted region")
	// ErrInvalidComposite is returned when a seek composite's arity does
	// not match 1, 2, or 3 parts.
	ErrInvalidComposite = errors.New("chunk: composite must have 1, 2, or 3 parts")
)

// revisionRecord is the constraint every concrete revision type satisfies:
// the shared contract from spec §9 plus the locator/key/value accessors
// needed to build bloom/manifest composites generically.
type revisionRecord interface {
	revision.Triple
	Version() uint64
	Action() revision.Action
	Size() int
	CopyTo(sink []byte) int
	Bytes() []byte
}

// Artifact is an insert receipt: the stored revision plus the three
// composite keys it was filed under (spec glossary: "Artifact. An insert
// receipt holding a revision and its three locating composites").
type Artifact[R any] struct {
	Revision   R
	Locator    byteable.Composite
	LocatorKey byteable.Composite
	Full       byteable.Composite
}

func makeArtifact[R revisionRecord](rev R) (Artifact[R], error) {
	locator, locatorKey, full, err := revision.Composites(rev)
	if err != nil {
		return Artifact[R]{}, err
	}
	return Artifact[R]{Revision: rev, Locator: locator, LocatorKey: locatorKey, Full: full}, nil
}

// RegionReader reads byte ranges from a frozen chunk's persisted region.
// Implementations live in package segment: one backed by a memory-mapped
// file for the uncompressed layout, one backed by a seekable zstd reader
// when the segment opts into compression.
type RegionReader interface {
	ReadAt(p []byte, off int64) (int, error)
}

func compositeForGranularity[R revision.Triple](r R, parts int) (byteable.Composite, error) {
	switch parts {
	case 1:
		return byteable.Create(r.Locator())
	case 2:
		return byteable.Create(r.Locator(), r.KeyPart())
	case 3:
		return byteable.Create(r.Locator(), r.KeyPart(), r.ValPart())
	default:
		return byteable.Composite{}, ErrInvalidComposite
	}
}

// scanSorted walks revs (already sorted by (locator,key,version,value)) and
// emits every revision whose prefix equals c, stopping at the first
// mismatch after emission has begun (spec §4.4 Seek protocol step 2).
func scanSorted[R revisionRecord](revs []R, c byteable.Composite, emit func(r R)) error {
	started := false
	for _, r := range revs {
		candidate, err := compositeForGranularity[R](r, c.PartCount())
		if err != nil {
			return err
		}
		if candidate.Equal(c) {
			started = true
			emit(r)
		} else if started {
			break
		}
	}
	return nil
}

// decodeGroup decodes a contiguous run of (size:u32, bytes) revision frames
// read from a frozen chunk's manifest-addressed byte range.
func decodeGroup[R revisionRecord](raw []byte, decode func([]byte) (R, int, error), emit func(r R)) error {
	off := 0
	for off < len(raw) {
		if len(raw)-off < 4 {
			return ErrCorruptChunk
		}
		size := int(binary.BigEndian.Uint32(raw[off:]))
		off += 4
		if size < 0 || len(raw)-off < size {
			return ErrCorruptChunk
		}
		rev, _, err := decode(raw[off : off+size])
		if err != nil {
			return err
		}
		emit(rev)
		off += size
	}
	return nil
}

// buildManifestAndBytes serializes an already-sorted revision slice into the
// (manifest, bytes) pair a chunk's Serialize produces (spec §4.4 Serialize).
func buildManifestAndBytes[R revisionRecord](revs []R) (*manifest.Manifest, []byte, error) {
	man := manifest.New()
	buf := make([]byte, 0, 64*len(revs))
	var prevLocator, prevLocatorKey byteable.Composite
	haveLocator, haveLocatorKey := false, false
	pos := int64(0)

	for _, r := range revs {
		locator, locatorKey, _, err := revision.Composites(r)
		if err != nil {
			return nil, nil, err
		}
		if !haveLocator || !locator.Equal(prevLocator) {
			if haveLocator {
				if err := man.PutEnd(pos, prevLocator); err != nil {
					return nil, nil, err
				}
			}
			if err := man.PutStart(pos, locator); err != nil {
				return nil, nil, err
			}
			prevLocator, haveLocator = locator, true
		}
		if !haveLocatorKey || !locatorKey.Equal(prevLocatorKey) {
			if haveLocatorKey {
				if err := man.PutEnd(pos, prevLocatorKey); err != nil {
					return nil, nil, err
				}
			}
			if err := man.PutStart(pos, locatorKey); err != nil {
				return nil, nil, err
			}
			prevLocatorKey, haveLocatorKey = locatorKey, true
		}

		size := r.Size()
		frame := make([]byte, 4+size)
		binary.BigEndian.PutUint32(frame, uint32(size))
		r.CopyTo(frame[4:])
		buf = append(buf, frame...)
		pos += int64(len(frame))
	}
	if haveLocator {
		if err := man.PutEnd(pos, prevLocator); err != nil {
			return nil, nil, err
		}
	}
	if haveLocatorKey {
		if err := man.PutEnd(pos, prevLocatorKey); err != nil {
			return nil, nil, err
		}
	}
	return man, buf, nil
}
