package chunk

import (
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

func TestChunkCacheEvictsColdEntries(t *testing.T) {
	SetChunkCacheSize(1)
	defer SetChunkCacheSize(DefaultChunkCacheEntries)

	a := NewTableChunk(16)
	if _, err := a.Insert(byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 1, revision.Add); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	manA, _, err := a.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := a.Freeze(nil, manA); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	locatorA, err := byteable.Create(byteable.Identifier(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var seen []revision.TableRevision
	if err := a.Seek(locatorA, func(r revision.TableRevision) { seen = append(seen, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("expected a's cache still warm before b freezes, got %d", len(seen))
	}

	b := NewTableChunk(16)
	if _, err := b.Insert(byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("bob"), 2, revision.Add); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	manB, _, err := b.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := b.Freeze(nil, manB); err != nil {
		t.Fatalf("Freeze: %v", err)
	}

	// Cache capacity is 1: freezing b must evict a's cached revisions. With
	// no region backing a (nil), a's Seek now has nothing to fall back to.
	seen = nil
	if err := a.Seek(locatorA, func(r revision.TableRevision) { seen = append(seen, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("expected a's cache evicted once b froze, got %d", len(seen))
	}
}
