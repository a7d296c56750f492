package chunk

import (
	"github.com/cinchapi/concourse-kernel/internal/bloom"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

// IndexChunk is the field -> value -> record view of a revision set
// (spec §4.4 Variants: "IndexChunk. Before insert, key is replaced with
// Value::optimize(key) so numerically-equal values of different widths
// match under equality lookup").
type IndexChunk struct {
	engine *serialEngine[revision.IndexRevision]
}

// NewIndexChunk creates an empty, mutable IndexChunk sized for
// expectedInsertions.
func NewIndexChunk(expectedInsertions int) *IndexChunk {
	return &IndexChunk{engine: newSerialEngine(expectedInsertions, revision.IndexRevision.Compare, revision.DecodeIndexRevision)}
}

// LoadIndexChunk reconstructs an already-frozen IndexChunk from a segment's
// persisted filter, manifest, and region reader (spec §4.5 Load).
func LoadIndexChunk(filter *bloom.Filter, man *manifest.Manifest, region RegionReader) *IndexChunk {
	return &IndexChunk{engine: loadSerialEngine(filter, man, region, revision.IndexRevision.Compare, revision.DecodeIndexRevision)}
}

// Insert records an ADD or REMOVE of (field, value, record) at version.
// value is optimized before construction so equality lookups are
// type-agnostic across numeric widths.
func (c *IndexChunk) Insert(field byteable.Text, value byteable.Value, record byteable.Identifier, version uint64, action revision.Action) (Artifact[revision.IndexRevision], error) {
	rev := revision.NewIndexRevision(field, value, record, version, action)
	return c.engine.insert(rev)
}

func (c *IndexChunk) Seek(composite byteable.Composite, emit func(revision.IndexRevision)) error {
	return c.engine.seek(composite, emit)
}

func (c *IndexChunk) Serialize() (*manifest.Manifest, []byte, error) {
	return c.engine.serialize()
}

func (c *IndexChunk) Freeze(region RegionReader, man *manifest.Manifest) error {
	return c.engine.freeze(region, man, false)
}

func (c *IndexChunk) Mutable() bool             { return c.engine.Mutable() }
func (c *IndexChunk) Size() int                 { return c.engine.Size() }
func (c *IndexChunk) RevisionCount() int        { return c.engine.RevisionCount() }
func (c *IndexChunk) Filter() *bloom.Filter     { return c.engine.Filter() }
func (c *IndexChunk) Manifest() *manifest.Manifest { return c.engine.Manifest() }
func (c *IndexChunk) DropCache()                { c.engine.DropCache() }
