// Package byteable defines the deterministic binary encoding shared by every
// domain value in the storage kernel (Identifier, Text, Value, Position) and
// the Composite keys built from them.
//
// Every type in this package implements Byteable: a canonical CopyTo that
// writes a reproducible byte sequence, and a Size that must equal the number
// of bytes CopyTo writes. Byte sequences are never order-preserving on their
// own — ordering between values is defined by Compare functions on the
// concrete types, not by comparing encoded bytes.
package byteable

// Byteable is implemented by every domain type with a canonical binary form.
type Byteable interface {
	// Size returns the exact number of bytes CopyTo will write.
	Size() int

	// CopyTo writes the canonical byte encoding into sink, which must have
	// length >= Size(), and returns the number of bytes written.
	CopyTo(sink []byte) int
}

// Bytes returns the canonical encoding of b as a freshly allocated slice.
func Bytes(b Byteable) []byte {
	buf := make([]byte, b.Size())
	b.CopyTo(buf)
	return buf
}
