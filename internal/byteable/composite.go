package byteable

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// MaxCompositeParts is the maximum number of components a Composite may
// combine (spec §4.1: "Variable-length concatenation of 1..3 Byteable
// components").
const MaxCompositeParts = 3

// Composite is the lookup key for bloom filters and manifests: a
// variable-length concatenation of 1..3 Byteable components, prefixed with a
// count byte and a 4-byte length per component. Equality is byte-equality;
// hash is content-derived. Composites round-trip: Load(Bytes(c)) == c.
type Composite struct {
	raw []byte
}

// Create builds a Composite from 1 to MaxCompositeParts components.
func Create(parts ...Byteable) (Composite, error) {
	if len(parts) == 0 || len(parts) > MaxCompositeParts {
		return Composite{}, ErrTooManyParts
	}
	size := 1
	for _, p := range parts {
		size += 4 + p.Size()
	}
	buf := make([]byte, size)
	buf[0] = byte(len(parts))
	off := 1
	for _, p := range parts {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(p.Size()))
		off += 4
		off += p.CopyTo(buf[off:])
	}
	return Composite{raw: buf}, nil
}

// Load reconstructs a Composite from its canonical byte encoding, validating
// structure (count byte in range, each length prefix consistent with the
// remaining buffer, no trailing bytes).
func Load(buf []byte) (Composite, error) {
	if len(buf) < 1 {
		return Composite{}, ErrShortBuffer
	}
	count := int(buf[0])
	if count < 1 || count > MaxCompositeParts {
		return Composite{}, ErrMalformed
	}
	off := 1
	for range count {
		if len(buf) < off+4 {
			return Composite{}, ErrShortBuffer
		}
		n := int(binary.BigEndian.Uint32(buf[off : off+4]))
		off += 4
		if n < 0 || len(buf) < off+n {
			return Composite{}, ErrMalformed
		}
		off += n
	}
	if off != len(buf) {
		return Composite{}, ErrMalformed
	}
	raw := make([]byte, len(buf))
	copy(raw, buf)
	return Composite{raw: raw}, nil
}

// Size implements Byteable.
func (c Composite) Size() int { return len(c.raw) }

// CopyTo implements Byteable.
func (c Composite) CopyTo(sink []byte) int { return copy(sink, c.raw) }

// Bytes returns the canonical byte encoding. Callers must not mutate it.
func (c Composite) Bytes() []byte { return c.raw }

// Equal reports byte-equality.
func (c Composite) Equal(other Composite) bool { return bytes.Equal(c.raw, other.raw) }

// Hash returns a content-derived hash suitable for map keys and bloom filter
// seeding.
func (c Composite) Hash() uint64 { return xxhash.Sum64(c.raw) }

// PartCount returns the number of components this Composite was built from.
func (c Composite) PartCount() int {
	if len(c.raw) == 0 {
		return 0
	}
	return int(c.raw[0])
}

// Part returns the raw bytes of the i-th component (0-indexed).
func (c Composite) Part(i int) ([]byte, error) {
	if i < 0 || i >= c.PartCount() {
		return nil, ErrMalformed
	}
	off := 1
	for j := 0; j <= i; j++ {
		n := int(binary.BigEndian.Uint32(c.raw[off : off+4]))
		off += 4
		if j == i {
			return c.raw[off : off+n], nil
		}
		off += n
	}
	return nil, ErrMalformed
}
