package byteable

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"time"
)

// ValueType tags a Value's variant. The numeric order of these constants IS
// the total tag order used to compare values of different types (spec §3:
// "cross-type comparison uses a total tag order").
type ValueType byte

const (
	TypeBool ValueType = iota + 1
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeTimestamp
	TypeString
	TypeTag
	TypeLink
)

// ErrTagContainsBacktick is returned by NewTag when the string contains a
// backtick, which the tag variant forbids (spec §3: "tag(string-without-backticks)").
var ErrTagContainsBacktick = errors.New("byteable: tag value must not contain a backtick")

// Value is a tagged scalar: one of bool, int32, int64, float32, float64,
// string, link (Identifier), tag (string without backticks), or timestamp.
// Each Value carries its type tag and has a canonical byte form.
type Value struct {
	typ  ValueType
	b    bool
	i    int64
	f    float64
	s    string
	link Identifier
	ts   int64 // microseconds since Unix epoch
}

func NewBool(v bool) Value           { return Value{typ: TypeBool, b: v} }
func NewInt32(v int32) Value         { return Value{typ: TypeInt32, i: int64(v)} }
func NewInt64(v int64) Value         { return Value{typ: TypeInt64, i: v} }
func NewFloat32(v float32) Value     { return Value{typ: TypeFloat32, f: float64(v)} }
func NewFloat64(v float64) Value     { return Value{typ: TypeFloat64, f: v} }
func NewString(v string) Value       { return Value{typ: TypeString, s: v} }
func NewLink(record Identifier) Value { return Value{typ: TypeLink, link: record} }

// NewTag creates a tag-variant Value. Tags are plain strings used for
// exact-match categorical values and may not contain a backtick.
func NewTag(v string) (Value, error) {
	if strings.ContainsRune(v, '`') {
		return Value{}, ErrTagContainsBacktick
	}
	return Value{typ: TypeTag, s: v}, nil
}

// NewTimestamp creates a timestamp-variant Value, truncated to microsecond
// precision to match the microsecond unit of a revision's version.
func NewTimestamp(t time.Time) Value {
	return Value{typ: TypeTimestamp, ts: t.UnixMicro()}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) Bool() bool              { return v.b }
func (v Value) Int32() int32            { return int32(v.i) }
func (v Value) Int64() int64            { return v.i }
func (v Value) Float32() float32        { return float32(v.f) }
func (v Value) Float64() float64        { return v.f }
func (v Value) String() string          { return v.s }
func (v Value) Link() Identifier        { return v.link }
func (v Value) Timestamp() time.Time    { return time.UnixMicro(v.ts).UTC() }

func (v Value) isNumeric() bool {
	switch v.typ {
	case TypeInt32, TypeInt64, TypeFloat32, TypeFloat64:
		return true
	default:
		return false
	}
}

// numeric returns the value widened to float64, for numeric variants only.
func (v Value) numeric() float64 {
	switch v.typ {
	case TypeInt32, TypeInt64:
		return float64(v.i)
	case TypeFloat32, TypeFloat64:
		return v.f
	default:
		return 0
	}
}

// Optimize returns the canonical form used before insertion into an
// IndexChunk key (spec §4.4): numeric variants of differing width are
// collapsed onto a single Float64 representation so that numerically-equal
// values of different Go types compare equal under an equality-key lookup.
// Non-numeric variants are returned unchanged.
func (v Value) Optimize() Value {
	if !v.isNumeric() {
		return v
	}
	return Value{typ: TypeFloat64, f: v.numeric()}
}

// Equal reports whether two values are equal after optimization — i.e.
// type-agnostic numeric equality, exact match otherwise.
func (v Value) Equal(other Value) bool {
	return v.Optimize().Compare(other.Optimize()) == 0
}

// Compare orders values by tag, then by type-natural order within a tag
// (spec §3). Cross-type comparisons use the ValueType tag order.
func (v Value) Compare(other Value) int {
	if v.typ != other.typ {
		if v.typ < other.typ {
			return -1
		}
		return 1
	}
	switch v.typ {
	case TypeBool:
		if v.b == other.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case TypeInt32, TypeInt64:
		switch {
		case v.i < other.i:
			return -1
		case v.i > other.i:
			return 1
		default:
			return 0
		}
	case TypeFloat32, TypeFloat64:
		switch {
		case v.f < other.f:
			return -1
		case v.f > other.f:
			return 1
		default:
			return 0
		}
	case TypeTimestamp:
		switch {
		case v.ts < other.ts:
			return -1
		case v.ts > other.ts:
			return 1
		default:
			return 0
		}
	case TypeString, TypeTag:
		switch {
		case v.s < other.s:
			return -1
		case v.s > other.s:
			return 1
		default:
			return 0
		}
	case TypeLink:
		return v.link.Compare(other.link)
	default:
		return 0
	}
}

// Size implements Byteable: 1 tag byte plus the variant's payload.
func (v Value) Size() int {
	switch v.typ {
	case TypeBool:
		return 2
	case TypeInt32, TypeFloat32:
		return 5
	case TypeInt64, TypeFloat64, TypeTimestamp:
		return 9
	case TypeLink:
		return 1 + IdentifierSize
	case TypeString, TypeTag:
		return 1 + 4 + len(v.s)
	default:
		return 1
	}
}

// CopyTo implements Byteable.
func (v Value) CopyTo(sink []byte) int {
	sink[0] = byte(v.typ)
	switch v.typ {
	case TypeBool:
		if v.b {
			sink[1] = 1
		} else {
			sink[1] = 0
		}
		return 2
	case TypeInt32:
		binary.BigEndian.PutUint32(sink[1:], uint32(int32(v.i)))
		return 5
	case TypeInt64:
		binary.BigEndian.PutUint64(sink[1:], uint64(v.i))
		return 9
	case TypeFloat32:
		binary.BigEndian.PutUint32(sink[1:], math.Float32bits(float32(v.f)))
		return 5
	case TypeFloat64:
		binary.BigEndian.PutUint64(sink[1:], math.Float64bits(v.f))
		return 9
	case TypeTimestamp:
		binary.BigEndian.PutUint64(sink[1:], uint64(v.ts))
		return 9
	case TypeLink:
		v.link.CopyTo(sink[1:])
		return 1 + IdentifierSize
	case TypeString, TypeTag:
		binary.BigEndian.PutUint32(sink[1:5], uint32(len(v.s)))
		n := 5 + copy(sink[5:], v.s)
		return n
	default:
		return 1
	}
}

// DecodeValue reads a Value from the front of buf, returning the value and
// the number of bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ErrShortBuffer
	}
	typ := ValueType(buf[0])
	rest := buf[1:]
	switch typ {
	case TypeBool:
		if len(rest) < 1 {
			return Value{}, 0, ErrShortBuffer
		}
		return Value{typ: typ, b: rest[0] != 0}, 2, nil
	case TypeInt32:
		if len(rest) < 4 {
			return Value{}, 0, ErrShortBuffer
		}
		return Value{typ: typ, i: int64(int32(binary.BigEndian.Uint32(rest)))}, 5, nil
	case TypeInt64:
		if len(rest) < 8 {
			return Value{}, 0, ErrShortBuffer
		}
		return Value{typ: typ, i: int64(binary.BigEndian.Uint64(rest))}, 9, nil
	case TypeFloat32:
		if len(rest) < 4 {
			return Value{}, 0, ErrShortBuffer
		}
		return Value{typ: typ, f: float64(math.Float32frombits(binary.BigEndian.Uint32(rest)))}, 5, nil
	case TypeFloat64:
		if len(rest) < 8 {
			return Value{}, 0, ErrShortBuffer
		}
		return Value{typ: typ, f: math.Float64frombits(binary.BigEndian.Uint64(rest))}, 9, nil
	case TypeTimestamp:
		if len(rest) < 8 {
			return Value{}, 0, ErrShortBuffer
		}
		return Value{typ: typ, ts: int64(binary.BigEndian.Uint64(rest))}, 9, nil
	case TypeLink:
		id, err := DecodeIdentifier(rest)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{typ: typ, link: id}, 1 + IdentifierSize, nil
	case TypeString, TypeTag:
		if len(rest) < 4 {
			return Value{}, 0, ErrShortBuffer
		}
		n := int(binary.BigEndian.Uint32(rest))
		if n < 0 || len(rest) < 4+n {
			return Value{}, 0, ErrMalformed
		}
		return Value{typ: typ, s: string(rest[4 : 4+n])}, 5 + n, nil
	default:
		return Value{}, 0, ErrUnknownValueTag
	}
}
