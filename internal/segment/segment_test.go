package segment

import (
	"path/filepath"
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/buffer"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
)

func newTestSegment() *Segment {
	return New(Options{ExpectedInsertions: 64, ManifestStreamingThreshold: 1 << 20})
}

func TestAcquireAppliesToAllThreeChunks(t *testing.T) {
	s := newTestSegment()
	w := buffer.New(revision.Add, byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 100)
	receipt, err := s.Acquire(w)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if receipt.Table.Version() != 100 || receipt.Index.Version() != 100 {
		t.Fatalf("expected receipt versions to match the write, got %+v", receipt)
	}

	locator, err := byteable.Create(byteable.Identifier(1))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var tableHits []revision.TableRevision
	if err := s.Table().Seek(locator, func(r revision.TableRevision) { tableHits = append(tableHits, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(tableHits) != 1 {
		t.Fatalf("expected a table hit, got %d", len(tableHits))
	}

	fieldLocator, err := byteable.Create(byteable.NewText("name"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var indexHits []revision.IndexRevision
	if err := s.Index().Seek(fieldLocator, func(r revision.IndexRevision) { indexHits = append(indexHits, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(indexHits) != 1 {
		t.Fatalf("expected an index hit, got %d", len(indexHits))
	}

	searchComposite, err := byteable.Create(byteable.NewText("name"), byteable.NewText("jeff"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var corpusHits []revision.CorpusRevision
	if err := s.Corpus().Seek(searchComposite, func(r revision.CorpusRevision) { corpusHits = append(corpusHits, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(corpusHits) != 1 {
		t.Fatalf("expected a corpus hit for the indexed term, got %d", len(corpusHits))
	}
}

func TestAcquireAfterSyncFails(t *testing.T) {
	s := newTestSegment()
	s.Acquire(buffer.New(revision.Add, byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 1))
	path := filepath.Join(t.TempDir(), "segment.dat")
	if err := s.Sync(path, 2); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := s.Acquire(buffer.New(revision.Add, byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("bob"), 3)); err != ErrAlreadySynced {
		t.Fatalf("expected ErrAlreadySynced, got %v", err)
	}
}

func TestSyncThenLoadPreservesSeekability(t *testing.T) {
	s := newTestSegment()
	s.Acquire(buffer.New(revision.Add, byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 10))
	s.Acquire(buffer.New(revision.Add, byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("bob"), 20))

	path := filepath.Join(t.TempDir(), "segment.dat")
	if err := s.Sync(path, 30); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if s.Mutable() {
		t.Fatalf("expected segment to be immutable after Sync")
	}
	if s.Count() != 2 {
		t.Fatalf("expected count 2, got %d", s.Count())
	}

	loaded, err := Load(path, LoadOptions{ManifestStreamingThreshold: 1 << 20})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loaded.Close()

	locator, err := byteable.Create(byteable.Identifier(2))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var hits []revision.TableRevision
	if err := loaded.Table().Seek(locator, func(r revision.TableRevision) { hits = append(hits, r) }); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if len(hits) != 1 || hits[0].Val.String() != "bob" {
		t.Fatalf("expected to find record 2's revision after reload, got %+v", hits)
	}
	if loaded.MinTs() != 10 || loaded.MaxTs() != 20 || loaded.SyncTs() != 30 {
		t.Fatalf("expected preserved ts bounds, got min=%d max=%d sync=%d", loaded.MinTs(), loaded.MaxTs(), loaded.SyncTs())
	}
}

func TestLoadRejectsBadSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dat")
	if err := writeFile(path, []byte("not a segment file at all, too short"), false); err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	if _, err := Load(path, LoadOptions{}); err == nil {
		t.Fatalf("expected an error loading a malformed file")
	}
}

func TestCompareOrdersByTemporalRange(t *testing.T) {
	early := newTestSegment()
	early.Acquire(buffer.New(revision.Add, byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("a"), 1))
	early.Sync(filepath.Join(t.TempDir(), "early.dat"), 5)

	late := newTestSegment()
	late.Acquire(buffer.New(revision.Add, byteable.Identifier(2), byteable.NewText("name"), byteable.NewString("b"), 100))
	late.Sync(filepath.Join(t.TempDir(), "late.dat"), 105)

	if early.Compare(late) >= 0 {
		t.Fatalf("expected early segment to sort before late segment")
	}
	if late.Compare(early) <= 0 {
		t.Fatalf("expected late segment to sort after early segment")
	}
}

func TestSimilarityOfIdenticalWritesIsHigh(t *testing.T) {
	a := newTestSegment()
	a.Acquire(buffer.New(revision.Add, byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 1))
	b := newTestSegment()
	b.Acquire(buffer.New(revision.Add, byteable.Identifier(1), byteable.NewText("name"), byteable.NewString("jeff"), 1))

	sim, err := a.Similarity(b)
	if err != nil {
		t.Fatalf("Similarity: %v", err)
	}
	if sim < 0.5 {
		t.Fatalf("expected high similarity for identical writes, got %f", sim)
	}
}
