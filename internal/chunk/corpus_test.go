package chunk

import (
	"testing"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/revision"
	"github.com/cinchapi/concourse-kernel/internal/searchindexer"
)

func newTestCorpusChunk() *CorpusChunk {
	pool := searchindexer.New(4)
	return NewCorpusChunk(1000, pool, 0, DefaultMaxSubstringScanTerms)
}

func TestCorpusChunkSearchScenario(t *testing.T) {
	c := newTestCorpusChunk()
	field := byteable.NewText("content")
	record := byteable.Identifier(1)
	value := byteable.NewString("The quick brown fox")

	artifacts, err := c.Insert(field, value, record, 1, revision.Add)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(artifacts) == 0 {
		t.Fatalf("expected indexing artifacts for a string value")
	}

	assertSearch := func(term string, wantHit bool) {
		t.Helper()
		composite, err := byteable.Create(field, byteable.NewText(term))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		var hits []revision.CorpusRevision
		if err := c.Seek(composite, func(r revision.CorpusRevision) { hits = append(hits, r) }); err != nil {
			t.Fatalf("Seek: %v", err)
		}
		if wantHit && len(hits) == 0 {
			t.Fatalf("expected a hit for term %q", term)
		}
		if !wantHit && len(hits) != 0 {
			t.Fatalf("expected no hit for term %q, got %d", term, len(hits))
		}
	}

	assertSearch("quick", true)
	assertSearch("quic", true)
	assertSearch("cat", false)
}

func TestCorpusChunkInsertNonStringReturnsEmpty(t *testing.T) {
	c := newTestCorpusChunk()
	artifacts, err := c.Insert(byteable.NewText("age"), byteable.NewInt64(30), byteable.Identifier(1), 1, revision.Add)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if artifacts != nil {
		t.Fatalf("expected no artifacts for a non-string value, got %d", len(artifacts))
	}
}

func TestCorpusChunkFreezeEmptySucceeds(t *testing.T) {
	c := newTestCorpusChunk()
	man, _, err := c.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := c.Freeze(nil, man); err != nil {
		t.Fatalf("expected empty CorpusChunk to freeze successfully, got %v", err)
	}
}

func TestSubstringsOfDeduplicatesAndRespectsMaxLength(t *testing.T) {
	c := newTestCorpusChunk()
	c.maxSubstringLength = 2
	subs := c.substringsOf("aa")
	seen := map[string]int{}
	for _, s := range subs {
		seen[s]++
		if len(s) > 2 {
			t.Fatalf("substring %q exceeds max length 2", s)
		}
	}
	for s, n := range seen {
		if n > 1 {
			t.Fatalf("substring %q appeared more than once", s)
		}
	}
}

func TestSubstringsOfFallsBackForPathologicalTerms(t *testing.T) {
	c := newTestCorpusChunk()
	c.maxSubstringScanTerms = 5
	long := "abcdefghij"
	subs := c.substringsOf(long)
	if len(subs) != 1 || subs[0] != long {
		t.Fatalf("expected fallback to the whole token, got %v", subs)
	}
}

func TestTokenizeLowercasesAndSplitsOnWhitespace(t *testing.T) {
	tokens := tokenize("The Quick\tBrown\nFox")
	want := []string{"the", "quick", "brown", "fox"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, tokens)
		}
	}
}
