package chunk

import (
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

func TestIndexChunkOptimizesValueBeforeInsert(t *testing.T) {
	c := NewIndexChunk(16)
	if _, err := c.Insert(byteable.NewText("age"), byteable.NewInt32(30), byteable.Identifier(1), 1, revision.Add); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// A lookup keyed by a Float64 of the same numeric value must match,
	// since IndexChunk optimizes values to a type-agnostic numeric form.
	composite, err := byteable.Create(byteable.NewText("age"), byteable.NewFloat64(30))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var seen []revision.IndexRevision
	if err := c.Seek(composite, func(r revision.IndexRevision) { seen = append(seen, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected numeric-width-agnostic match, got %d hits", len(seen))
	}
}

func TestIndexChunkSeekByFieldOnly(t *testing.T) {
	c := NewIndexChunk(16)
	if _, err := c.Insert(byteable.NewText("age"), byteable.NewInt64(30), byteable.Identifier(1), 1, revision.Add); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := c.Insert(byteable.NewText("age"), byteable.NewInt64(40), byteable.Identifier(2), 2, revision.Add); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	locator, err := byteable.Create(byteable.NewText("age"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var seen []revision.IndexRevision
	if err := c.Seek(locator, func(r revision.IndexRevision) { seen = append(seen, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected both revisions under field 'age', got %d", len(seen))
	}
}
