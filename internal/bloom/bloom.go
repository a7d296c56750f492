// Package bloom implements the fixed-size probabilistic membership filter
// used by every Chunk (spec §4.2) to precheck Composite membership before a
// manifest lookup or mmap seek.
package bloom

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
)

// DefaultFalsePositiveRate is the target false-positive rate at capacity
// (spec §4.2: "target false-positive rate ≤ 3% at capacity").
const DefaultFalsePositiveRate = 0.03

// seedCount is the number of independent hash seeds combined via double
// hashing (spec §4.2: "Hash with at least two independent seeds").
const seedCount = 2

// ErrIncompatibleFilterShapes is returned by EstimateSimilarity when the two
// filters have different bit counts.
var ErrIncompatibleFilterShapes = errors.New("bloom: incompatible filter shapes")

// Filter is a fixed-size Bloom filter over byteable.Composite keys. Put and
// MightContain are safe for concurrent use: bits are only ever set (never
// cleared), so a racing MightContain observes either the pre- or
// post-insertion state and never corrupts the bit array.
type Filter struct {
	words []uint64 // atomic bit words
	nbits uint64
	seeds [seedCount]uint32
}

// New creates a Filter sized for expectedInsertions at the target false
// positive rate, using exactly seedCount (2) independent hash seeds
// (spec §4.2). falsePositiveRate <= 0 uses DefaultFalsePositiveRate.
func New(expectedInsertions int, falsePositiveRate float64) *Filter {
	if expectedInsertions < 1 {
		expectedInsertions = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = DefaultFalsePositiveRate
	}
	m := optimalBits(expectedInsertions, falsePositiveRate)
	return &Filter{
		words: make([]uint64, (m+63)/64),
		nbits: uint64(m),
		seeds: [seedCount]uint32{0x9e3779b9, 0x85ebca6b},
	}
}

// optimalBits sizes the bit array for k=2 hash probes targeting false
// positive rate p over n expected insertions.
func optimalBits(n int, p float64) int {
	// With k fixed at 2, p = (1 - e^(-2n/m))^2, so m = -2n / ln(1 - sqrt(p)).
	m := -2 * float64(n) / math.Log(1-math.Sqrt(p))
	if m < 64 {
		m = 64
	}
	return int(math.Ceil(m))
}

// hashPair computes the two independent base hashes combined via double
// hashing: position_i = (h1 + i*h2) mod nbits, for i in [0, seedCount).
func (f *Filter) hashPair(c byteable.Composite) (uint64, uint64) {
	raw := c.Bytes()
	var seedBuf [4]byte
	binary.BigEndian.PutUint32(seedBuf[:], f.seeds[0])
	h1 := xxhash.Sum64(append(seedBuf[:], raw...))
	binary.BigEndian.PutUint32(seedBuf[:], f.seeds[1])
	h2 := xxhash.Sum64(append(seedBuf[:], raw...))
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

// Put records c's membership.
func (f *Filter) Put(c byteable.Composite) {
	h1, h2 := f.hashPair(c)
	for i := range seedCount {
		pos := (h1 + uint64(i)*h2) % f.nbits
		f.setBit(pos)
	}
}

// MightContain returns false only if c is definitely absent.
func (f *Filter) MightContain(c byteable.Composite) bool {
	h1, h2 := f.hashPair(c)
	for i := range seedCount {
		pos := (h1 + uint64(i)*h2) % f.nbits
		if !f.getBit(pos) {
			return false
		}
	}
	return true
}

func (f *Filter) setBit(pos uint64) {
	word := pos / 64
	mask := uint64(1) << (pos % 64)
	for {
		old := atomic.LoadUint64(&f.words[word])
		if old&mask != 0 {
			return
		}
		if atomic.CompareAndSwapUint64(&f.words[word], old, old|mask) {
			return
		}
	}
}

func (f *Filter) getBit(pos uint64) bool {
	word := pos / 64
	mask := uint64(1) << (pos % 64)
	return atomic.LoadUint64(&f.words[word])&mask != 0
}

// BitCount returns the number of bits backing this filter.
func (f *Filter) BitCount() int { return int(f.nbits) }

// popcount returns the number of set bits.
func (f *Filter) popcount() uint64 {
	var n uint64
	for _, w := range f.words {
		n += uint64(popcountWord(atomic.LoadUint64(&w)))
	}
	return n
}

func popcountWord(w uint64) int {
	count := 0
	for w != 0 {
		w &= w - 1
		count++
	}
	return count
}

// EstimateSimilarity approximates Jaccard overlap between two equally-sized
// filters from the AND/OR bit-counts of their bit arrays (spec §4.2).
// Returns a value in [0,1]. Fails with ErrIncompatibleFilterShapes if the
// filters have different bit counts.
func EstimateSimilarity(a, b *Filter) (float64, error) {
	if a.nbits != b.nbits || len(a.words) != len(b.words) {
		return 0, ErrIncompatibleFilterShapes
	}
	var andCount, orCount uint64
	for i := range a.words {
		aw := atomic.LoadUint64(&a.words[i])
		bw := atomic.LoadUint64(&b.words[i])
		andCount += uint64(popcountWord(aw & bw))
		orCount += uint64(popcountWord(aw | bw))
	}
	if orCount == 0 {
		return 1, nil
	}
	return float64(andCount) / float64(orCount), nil
}

// Encode writes the canonical wire form: bit_count:u32 | seeds:[u32;k] | bit_bytes.
func (f *Filter) Encode() []byte {
	buf := make([]byte, 4+4*seedCount+len(f.words)*8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(f.nbits))
	off := 4
	for _, s := range f.seeds {
		binary.BigEndian.PutUint32(buf[off:off+4], s)
		off += 4
	}
	for _, w := range f.words {
		binary.BigEndian.PutUint64(buf[off:off+8], w)
		off += 8
	}
	return buf
}

// Decode reconstructs a Filter from its canonical wire form.
func Decode(buf []byte) (*Filter, error) {
	if len(buf) < 4+4*seedCount {
		return nil, errShortFilter
	}
	nbits := uint64(binary.BigEndian.Uint32(buf[0:4]))
	off := 4
	var seeds [seedCount]uint32
	for i := range seeds {
		seeds[i] = binary.BigEndian.Uint32(buf[off : off+4])
		off += 4
	}
	nwords := (nbits + 63) / 64
	if uint64(len(buf)-off) < nwords*8 {
		return nil, errShortFilter
	}
	words := make([]uint64, nwords)
	for i := range words {
		words[i] = binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
	}
	return &Filter{words: words, nbits: nbits, seeds: seeds}, nil
}

var errShortFilter = errors.New("bloom: encoded filter too short")
