package byteable

import "encoding/binary"

// Text is a UTF-8 string with a deterministic, length-prefixed byte
// encoding. Ordering is codepoint-lexicographic (Go's native string
// ordering, which is byte-lexicographic and agrees with codepoint order for
// valid UTF-8).
//
// Text values are cheap to intern: two Text values with equal underlying
// strings are indistinguishable, so callers may freely deduplicate them in a
// string interning table.
type Text string

// NewText wraps a Go string as a Text value.
func NewText(s string) Text { return Text(s) }

// Size implements Byteable: a 4-byte length prefix plus the UTF-8 bytes.
func (t Text) Size() int { return 4 + len(t) }

// CopyTo implements Byteable.
func (t Text) CopyTo(sink []byte) int {
	binary.BigEndian.PutUint32(sink, uint32(len(t)))
	n := 4 + copy(sink[4:], t)
	return n
}

// Compare returns -1, 0, or 1 per Go's native (codepoint-lexicographic for
// valid UTF-8) string ordering.
func (t Text) Compare(other Text) int {
	switch {
	case t < other:
		return -1
	case t > other:
		return 1
	default:
		return 0
	}
}

// String returns the underlying string, for debugging/logging only.
func (t Text) String() string { return string(t) }

// DecodeText reads a length-prefixed Text from the front of buf, returning
// the value and the number of bytes consumed.
func DecodeText(buf []byte) (Text, int, error) {
	if len(buf) < 4 {
		return "", 0, ErrShortBuffer
	}
	n := int(binary.BigEndian.Uint32(buf))
	if n < 0 || len(buf) < 4+n {
		return "", 0, ErrMalformed
	}
	return Text(buf[4 : 4+n]), 4 + n, nil
}
