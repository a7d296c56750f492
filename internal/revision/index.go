package revision

import "github.com/cinchapi/concourse-kernel/internal/byteable"

// IndexRevision is a value-oriented revision: field -> value -> record
// (spec §3: "IndexRevision: L=Text, K=Value, V=Identifier"). Before insert,
// Val is replaced with Value.Optimize() so numerically-equal values of
// different widths collide under equality lookup (spec §4.4).
type IndexRevision struct {
	Field   byteable.Text
	Val     byteable.Value
	Record  byteable.Identifier
	version uint64
	action  Action
}

// NewIndexRevision constructs an IndexRevision, optimizing val per spec
// §4.4's IndexChunk insert rule.
func NewIndexRevision(field byteable.Text, val byteable.Value, record byteable.Identifier, version uint64, action Action) IndexRevision {
	return IndexRevision{Field: field, Val: val.Optimize(), Record: record, version: version, action: action}
}

func (r IndexRevision) Version() uint64 { return r.version }
func (r IndexRevision) Action() Action  { return r.action }
func (r IndexRevision) Size() int       { return encodedSize(r.Field, r.Val, r.Record) }

func (r IndexRevision) CopyTo(sink []byte) int {
	return copyTo(sink, r.Field, r.Val, r.Record, r.version, r.action)
}

func (r IndexRevision) Bytes() []byte {
	buf := make([]byte, r.Size())
	r.CopyTo(buf)
	return buf
}

func (r IndexRevision) Locator() byteable.Byteable { return r.Field }
func (r IndexRevision) KeyPart() byteable.Byteable { return r.Val }
func (r IndexRevision) ValPart() byteable.Byteable { return r.Record }

// Compare orders two IndexRevisions by (field, value, version, record).
func (r IndexRevision) Compare(other IndexRevision) int {
	if c := r.Field.Compare(other.Field); c != 0 {
		return c
	}
	if c := r.Val.Compare(other.Val); c != 0 {
		return c
	}
	if c := compareVersion(r.version, other.version); c != 0 {
		return c
	}
	return r.Record.Compare(other.Record)
}

// DecodeIndexRevision reads an IndexRevision from the front of buf.
func DecodeIndexRevision(buf []byte) (IndexRevision, int, error) {
	lb, kb, vb, version, action, n, err := decodeFrame(buf)
	if err != nil {
		return IndexRevision{}, 0, err
	}
	field, _, err := byteable.DecodeText(lb)
	if err != nil {
		return IndexRevision{}, 0, err
	}
	val, _, err := byteable.DecodeValue(kb)
	if err != nil {
		return IndexRevision{}, 0, err
	}
	record, err := byteable.DecodeIdentifier(vb)
	if err != nil {
		return IndexRevision{}, 0, err
	}
	return IndexRevision{Field: field, Val: val, Record: record, version: version, action: action}, n, nil
}
