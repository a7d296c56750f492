// Package revision defines the immutable tuple at the heart of the storage
// kernel: (locator L, key K, value V, version, action). Three concrete
// shapes realize it — TableRevision, IndexRevision, CorpusRevision — each a
// distinct instantiation of the same tagged-variant contract (spec §9:
// "a tagged variant Revision = Table|Index|Corpus with a shared contract
// (L, K, V, version, action, bytes, size, compare)").
//
// Revisions never mutate after construction. version is a monotonically
// issued commit timestamp in microseconds, though revisions may land in a
// chunk out of monotonic order; chunks sort by (locator, key, version,
// value) regardless of insertion order.
package revision

import (
	"encoding/binary"
	"errors"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
)

// Action records whether a revision establishes or retracts presence of
// (L, K, V) at its version.
type Action byte

const (
	Add    Action = 1
	Remove Action = 2
)

func (a Action) String() string {
	switch a {
	case Add:
		return "ADD"
	case Remove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

var (
	ErrShortBuffer   = byteable.ErrShortBuffer
	ErrMalformed     = byteable.ErrMalformed
	ErrUnknownAction = errors.New("revision: unknown action byte")
)

// Revision is the contract shared by TableRevision, IndexRevision, and
// CorpusRevision.
type Revision interface {
	Version() uint64
	Action() Action
	Size() int
	CopyTo(sink []byte) int
	Bytes() []byte
}

// Triple exposes a revision's three components as generic Byteables, used
// to build the bloom filter prechecks C(L), C(L,K), C(L,K,V) (spec §4.4)
// without each chunk implementation knowing the concrete L/K/V types.
type Triple interface {
	Locator() byteable.Byteable
	KeyPart() byteable.Byteable
	ValPart() byteable.Byteable
}

// Composites returns the three granularities of composite key a chunk
// records in its bloom filter on every insert.
func Composites(r Triple) (locator, locatorKey, full byteable.Composite, err error) {
	locator, err = byteable.Create(r.Locator())
	if err != nil {
		return
	}
	locatorKey, err = byteable.Create(r.Locator(), r.KeyPart())
	if err != nil {
		return
	}
	full, err = byteable.Create(r.Locator(), r.KeyPart(), r.ValPart())
	return
}

// encodedSize computes the on-disk size of (locator-bytes | key-bytes |
// value-bytes | version:u64 | action:u8), each component length-prefixed
// (spec §6 "Revision encoding").
func encodedSize(l, k, v byteable.Byteable) int {
	return 4 + l.Size() + 4 + k.Size() + 4 + v.Size() + 8 + 1
}

func copyTo(sink []byte, l, k, v byteable.Byteable, version uint64, action Action) int {
	off := putLengthPrefixed(sink, l)
	off += putLengthPrefixed(sink[off:], k)
	off += putLengthPrefixed(sink[off:], v)
	binary.BigEndian.PutUint64(sink[off:], version)
	off += 8
	sink[off] = byte(action)
	return off + 1
}

func putLengthPrefixed(sink []byte, b byteable.Byteable) int {
	binary.BigEndian.PutUint32(sink, uint32(b.Size()))
	return 4 + b.CopyTo(sink[4:])
}

func readLengthPrefixed(buf []byte) (part []byte, n int, err error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortBuffer
	}
	size := int(binary.BigEndian.Uint32(buf))
	if size < 0 || len(buf) < 4+size {
		return nil, 0, ErrMalformed
	}
	return buf[4 : 4+size], 4 + size, nil
}

// decodeFrame splits a revision's encoded bytes into its three raw
// components plus version and action, without interpreting the component
// types (the caller's concrete DecodeXRevision does that).
func decodeFrame(buf []byte) (l, k, v []byte, version uint64, action Action, n int, err error) {
	off := 0
	l, step, err := readLengthPrefixed(buf[off:])
	if err != nil {
		return
	}
	off += step
	k, step, err = readLengthPrefixed(buf[off:])
	if err != nil {
		return
	}
	off += step
	v, step, err = readLengthPrefixed(buf[off:])
	if err != nil {
		return
	}
	off += step
	if len(buf) < off+9 {
		err = ErrShortBuffer
		return
	}
	version = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	actionByte := buf[off]
	off++
	if actionByte != byte(Add) && actionByte != byte(Remove) {
		err = ErrUnknownAction
		return
	}
	action = Action(actionByte)
	n = off
	return
}

func compareVersion(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
