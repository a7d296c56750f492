package revision

import "github.com/cinchapi/concourse-kernel/internal/byteable"

// CorpusRevision is a search-index revision: text field -> substring term ->
// position (spec §3: "CorpusRevision: L=Text (field), K=Text (substring
// term), V=Position").
type CorpusRevision struct {
	Field    byteable.Text
	Term     byteable.Text
	Position byteable.Position
	version  uint64
	action   Action
}

// NewCorpusRevision constructs a CorpusRevision.
func NewCorpusRevision(field, term byteable.Text, position byteable.Position, version uint64, action Action) CorpusRevision {
	return CorpusRevision{Field: field, Term: term, Position: position, version: version, action: action}
}

func (r CorpusRevision) Version() uint64 { return r.version }
func (r CorpusRevision) Action() Action  { return r.action }
func (r CorpusRevision) Size() int       { return encodedSize(r.Field, r.Term, r.Position) }

func (r CorpusRevision) CopyTo(sink []byte) int {
	return copyTo(sink, r.Field, r.Term, r.Position, r.version, r.action)
}

func (r CorpusRevision) Bytes() []byte {
	buf := make([]byte, r.Size())
	r.CopyTo(buf)
	return buf
}

func (r CorpusRevision) Locator() byteable.Byteable { return r.Field }
func (r CorpusRevision) KeyPart() byteable.Byteable { return r.Term }
func (r CorpusRevision) ValPart() byteable.Byteable { return r.Position }

// Compare orders two CorpusRevisions by (field, term, version, position).
func (r CorpusRevision) Compare(other CorpusRevision) int {
	if c := r.Field.Compare(other.Field); c != 0 {
		return c
	}
	if c := r.Term.Compare(other.Term); c != 0 {
		return c
	}
	if c := compareVersion(r.version, other.version); c != 0 {
		return c
	}
	return r.Position.Compare(other.Position)
}

// DecodeCorpusRevision reads a CorpusRevision from the front of buf.
func DecodeCorpusRevision(buf []byte) (CorpusRevision, int, error) {
	lb, kb, vb, version, action, n, err := decodeFrame(buf)
	if err != nil {
		return CorpusRevision{}, 0, err
	}
	field, _, err := byteable.DecodeText(lb)
	if err != nil {
		return CorpusRevision{}, 0, err
	}
	term, _, err := byteable.DecodeText(kb)
	if err != nil {
		return CorpusRevision{}, 0, err
	}
	position, err := byteable.DecodePosition(vb)
	if err != nil {
		return CorpusRevision{}, 0, err
	}
	return CorpusRevision{Field: field, Term: term, Position: position, version: version, action: action}, n, nil
}
