package chunk

import (
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

func TestTableChunkInsertAndSeek(t *testing.T) {
	c := NewTableChunk(16)
	record := byteable.Identifier(1)
	field := byteable.NewText("name")
	value := byteable.NewString("jeff")

	artifact, err := c.Insert(record, field, value, 100, revision.Add)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var seen []revision.TableRevision
	if err := c.Seek(artifact.Full, func(r revision.TableRevision) { seen = append(seen, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(seen) != 1 || seen[0].Compare(artifact.Revision) != 0 {
		t.Fatalf("expected to find the inserted revision, got %+v", seen)
	}
}

func TestTableChunkInsertIntoFrozenFails(t *testing.T) {
	c := NewTableChunk(16)
	if _, err := c.Insert(byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 1, revision.Add); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	man, _, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := c.Freeze(nil, man); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if _, err := c.Insert(byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("bob"), 2, revision.Add); err != ErrImmutableChunk {
		t.Fatalf("expected ErrImmutableChunk, got %v", err)
	}
}

func TestTableChunkFreezeEmptyFails(t *testing.T) {
	c := NewTableChunk(16)
	man, _, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := c.Freeze(nil, man); err != ErrEmptyChunk {
		t.Fatalf("expected ErrEmptyChunk, got %v", err)
	}
}

func TestTableChunkSortedOrder(t *testing.T) {
	c := NewTableChunk(16)
	record := byteable.Identifier(1)
	field := byteable.NewText("a")
	for _, v := range []int64{3, 1, 2} {
		if _, err := c.Insert(record, field, byteable.NewInt64(v), uint64(v), revision.Add); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	locator, err := byteable.Create(record)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var versions []uint64
	if err := c.Seek(locator, func(r revision.TableRevision) { versions = append(versions, r.Version()) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[1] != 2 || versions[2] != 3 {
		t.Fatalf("expected revisions sorted by version, got %v", versions)
	}
}

func TestTableChunkSeekMissingReturnsNothing(t *testing.T) {
	c := NewTableChunk(16)
	if _, err := c.Insert(byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 1, revision.Add); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	absent, err := byteable.Create(byteable.Identifier(99))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var seen []revision.TableRevision
	if err := c.Seek(absent, func(r revision.TableRevision) { seen = append(seen, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("expected no matches, got %d", len(seen))
	}
}
