package chunk

import (
	"github.com/cinchapi/concourse-kernel/internal/bloom"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

// TableChunk is the record -> field -> value view of a revision set
// (spec §4.4 Variants: "TableChunk. make_revision(id,text,value,v,a) ->
// TableRevision. insert returns a TableArtifact").
type TableChunk struct {
	engine *serialEngine[revision.TableRevision]
}

// NewTableChunk creates an empty, mutable TableChunk sized for
// expectedInsertions.
func NewTableChunk(expectedInsertions int) *TableChunk {
	return &TableChunk{engine: newSerialEngine(expectedInsertions, revision.TableRevision.Compare, revision.DecodeTableRevision)}
}

// LoadTableChunk reconstructs an already-frozen TableChunk from a segment's
// persisted filter, manifest, and region reader (spec §4.5 Load).
func LoadTableChunk(filter *bloom.Filter, man *manifest.Manifest, region RegionReader) *TableChunk {
	return &TableChunk{engine: loadSerialEngine(filter, man, region, revision.TableRevision.Compare, revision.DecodeTableRevision)}
}

// Insert records an ADD or REMOVE of (record, field, value) at version.
func (c *TableChunk) Insert(record byteable.Identifier, field byteable.Text, value byteable.Value, version uint64, action revision.Action) (Artifact[revision.TableRevision], error) {
	rev := revision.NewTableRevision(record, field, value, version, action)
	return c.engine.insert(rev)
}

// Seek emits every revision whose locator/key/value prefix matches c, in
// sorted order.
func (c *TableChunk) Seek(composite byteable.Composite, emit func(revision.TableRevision)) error {
	return c.engine.seek(composite, emit)
}

// Serialize produces the (Manifest, bytes) pair for the current contents.
func (c *TableChunk) Serialize() (*manifest.Manifest, []byte, error) {
	return c.engine.serialize()
}

// Freeze transitions the chunk to immutable. Fails with ErrEmptyChunk if
// the chunk has never received an insert.
func (c *TableChunk) Freeze(region RegionReader, man *manifest.Manifest) error {
	return c.engine.freeze(region, man, false)
}

// SeekAll emits every revision the chunk currently holds in memory,
// unconstrained by locator, for operations like trace() that have no
// fixed composite to scope a Seek to (spec §4.9 trace). Subject to the
// same soft-reference caveat as the underlying engine: a frozen chunk
// whose cache has been dropped emits nothing.
func (c *TableChunk) SeekAll(emit func(revision.TableRevision)) error {
	c.engine.all(emit)
	return nil
}

func (c *TableChunk) Mutable() bool             { return c.engine.Mutable() }
func (c *TableChunk) Size() int                 { return c.engine.Size() }
func (c *TableChunk) RevisionCount() int        { return c.engine.RevisionCount() }
func (c *TableChunk) Filter() *bloom.Filter     { return c.engine.Filter() }
func (c *TableChunk) Manifest() *manifest.Manifest { return c.engine.Manifest() }
func (c *TableChunk) DropCache()                { c.engine.DropCache() }
