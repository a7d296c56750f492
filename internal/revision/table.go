package revision

import "github.com/cinchapi/concourse-kernel/internal/byteable"

// TableRevision is a row-oriented revision: record -> field -> value
// (spec §3: "TableRevision: L=Identifier, K=Text, V=Value").
type TableRevision struct {
	Record  byteable.Identifier
	Field   byteable.Text
	Val     byteable.Value
	version uint64
	action  Action
}

// NewTableRevision constructs a TableRevision.
func NewTableRevision(record byteable.Identifier, field byteable.Text, val byteable.Value, version uint64, action Action) TableRevision {
	return TableRevision{Record: record, Field: field, Val: val, version: version, action: action}
}

func (r TableRevision) Version() uint64 { return r.version }
func (r TableRevision) Action() Action  { return r.action }
func (r TableRevision) Size() int       { return encodedSize(r.Record, r.Field, r.Val) }

func (r TableRevision) CopyTo(sink []byte) int {
	return copyTo(sink, r.Record, r.Field, r.Val, r.version, r.action)
}

func (r TableRevision) Bytes() []byte {
	buf := make([]byte, r.Size())
	r.CopyTo(buf)
	return buf
}

func (r TableRevision) Locator() byteable.Byteable { return r.Record }
func (r TableRevision) KeyPart() byteable.Byteable { return r.Field }
func (r TableRevision) ValPart() byteable.Byteable { return r.Val }

// Compare orders two TableRevisions by (record, field, version, value), the
// chunk's canonical sort order.
func (r TableRevision) Compare(other TableRevision) int {
	if c := r.Record.Compare(other.Record); c != 0 {
		return c
	}
	if c := r.Field.Compare(other.Field); c != 0 {
		return c
	}
	if c := compareVersion(r.version, other.version); c != 0 {
		return c
	}
	return r.Val.Compare(other.Val)
}

// DecodeTableRevision reads a TableRevision from the front of buf, returning
// the value and the number of bytes consumed.
func DecodeTableRevision(buf []byte) (TableRevision, int, error) {
	lb, kb, vb, version, action, n, err := decodeFrame(buf)
	if err != nil {
		return TableRevision{}, 0, err
	}
	record, err := byteable.DecodeIdentifier(lb)
	if err != nil {
		return TableRevision{}, 0, err
	}
	field, _, err := byteable.DecodeText(kb)
	if err != nil {
		return TableRevision{}, 0, err
	}
	val, _, err := byteable.DecodeValue(vb)
	if err != nil {
		return TableRevision{}, 0, err
	}
	return TableRevision{Record: record, Field: field, Val: val, version: version, action: action}, n, nil
}
