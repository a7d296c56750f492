package chunk

import (
	"sync"

	"github.com/cinchapi/concourse-kernel/internal/bloom"
	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
	"github.com/cinchapi/concourse-kernel/internal/revision"
	"github.com/cinchapi/concourse-kernel/internal/searchindexer"
	"github.com/cinchapi/concourse-kernel/internal/tokenizer"
)

// DefaultMaxSubstringScanTerms bounds the number of substrings a single
// token may expand to before CorpusChunk falls back to indexing the whole
// token rather than every substring (spec §9 Open Question 2: "Corpus
// substring upper bound... Make it a configuration knob", resolved as
// kernel.Config.MaxSubstringScanTerms, default 5,000,000).
const DefaultMaxSubstringScanTerms = 5_000_000

// CorpusChunk is the field -> substring -> position view used for search
// (spec §4.4 Variants: "CorpusChunk. Exposes insert(field, value, record,
// version, action) -> Collection<CorpusArtifact>"). Unlike TableChunk and
// IndexChunk it uses the ConcurrentChunk locking flavor and is the only
// chunk shape that may freeze while empty.
type CorpusChunk struct {
	engine                *concurrentEngine[revision.CorpusRevision]
	pool                  *searchindexer.Pool
	maxSubstringLength    int // 0 = unlimited
	maxSubstringScanTerms int
}

// NewCorpusChunk creates an empty, mutable CorpusChunk. maxSubstringLength
// of 0 means unlimited (spec §6: "max_search_substring_length (int, 0 =
// unlimited)"). pool dispatches per-substring indexing work; maxSubstringLength
// and maxScanTerms come from kernel.Config.
func NewCorpusChunk(expectedInsertions int, pool *searchindexer.Pool, maxSubstringLength, maxSubstringScanTerms int) *CorpusChunk {
	if maxSubstringScanTerms <= 0 {
		maxSubstringScanTerms = DefaultMaxSubstringScanTerms
	}
	return &CorpusChunk{
		engine:                newConcurrentEngine(expectedInsertions, revision.CorpusRevision.Compare, revision.DecodeCorpusRevision),
		pool:                  pool,
		maxSubstringLength:    maxSubstringLength,
		maxSubstringScanTerms: maxSubstringScanTerms,
	}
}

// LoadCorpusChunk reconstructs an already-frozen CorpusChunk from a
// segment's persisted filter, manifest, and region reader (spec §4.5 Load).
// The returned chunk has no search indexer pool since a frozen chunk never
// receives further inserts.
func LoadCorpusChunk(filter *bloom.Filter, man *manifest.Manifest, region RegionReader, maxSubstringLength, maxSubstringScanTerms int) *CorpusChunk {
	if maxSubstringScanTerms <= 0 {
		maxSubstringScanTerms = DefaultMaxSubstringScanTerms
	}
	return &CorpusChunk{
		engine:                loadConcurrentEngine(filter, man, region, revision.CorpusRevision.Compare, revision.DecodeCorpusRevision),
		maxSubstringLength:    maxSubstringLength,
		maxSubstringScanTerms: maxSubstringScanTerms,
	}
}

// Insert indexes value's text under field at record/version/action. Returns
// empty with no error if value is not a string (spec §4.4: "If value.type !=
// STRING, returns empty"). Substring indexing jobs are dispatched to the
// pool and this call blocks until all of them finish via a CountUpLatch.
func (c *CorpusChunk) Insert(field byteable.Text, value byteable.Value, record byteable.Identifier, version uint64, action revision.Action) ([]Artifact[revision.CorpusRevision], error) {
	if value.Type() != byteable.TypeString {
		return nil, nil
	}

	tokens := tokenize(value.String())
	latch := searchindexer.NewCountUpLatch()

	var (
		mu         sync.Mutex
		artifacts  []Artifact[revision.CorpusRevision]
		firstErr   error
		numPrepared int
	)

	for tokenIndex, token := range tokens {
		terms := c.substringsOf(token)
		for _, term := range terms {
			numPrepared++
			termCopy := term
			position := byteable.NewPosition(record, int32(tokenIndex))
			c.pool.Submit(func() {
				artifact, err := c.engine.insert(revision.NewCorpusRevision(field, byteable.NewText(termCopy), position, version, action))
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					artifacts = append(artifacts, artifact)
				}
				mu.Unlock()
			}, latch)
		}
	}

	latch.WaitFor(numPrepared)
	return artifacts, firstErr
}

// tokenize lowercases s and splits on runs of whitespace, matching
// spec §4.4's CorpusChunk insert description: "lowercase the string, split
// on runs of whitespace into tokens".
func tokenize(s string) []string {
	var tokens []string
	start := -1
	lower := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		lower[i] = tokenizer.Lowercase(s[i])
	}
	for i, c := range lower {
		if tokenizer.IsWhitespace(c) {
			if start >= 0 {
				tokens = append(tokens, string(lower[start:i]))
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, string(lower[start:]))
	}
	return tokens
}

// substringsOf enumerates every substring of token, deduplicated, capped at
// maxSubstringLength (spec §4.4 / §6). For pathological terms whose
// combinatorial substring count would exceed maxSubstringScanTerms, indexing
// falls back to the whole token only, trading recall on extreme inputs for
// bounded memory (spec §4.4: "for pathological terms (upper-bound
// substrings > 5M) use an off-heap/lazy substring deduplicator").
func (c *CorpusChunk) substringsOf(token string) []string {
	n := len(token)
	if n == 0 {
		return nil
	}
	maxLen := n
	if c.maxSubstringLength > 0 && c.maxSubstringLength < maxLen {
		maxLen = c.maxSubstringLength
	}
	upperBound := n * (n + 1) / 2
	if upperBound > c.maxSubstringScanTerms {
		return []string{token}
	}

	seen := make(map[string]struct{}, n*maxLen)
	var out []string
	for start := 0; start < n; start++ {
		limit := min(n, start+maxLen)
		for end := start + 1; end <= limit; end++ {
			sub := token[start:end]
			if _, ok := seen[sub]; ok {
				continue
			}
			seen[sub] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

func (c *CorpusChunk) Seek(composite byteable.Composite, emit func(revision.CorpusRevision)) error {
	return c.engine.seek(composite, emit)
}

func (c *CorpusChunk) Serialize() (*manifest.Manifest, []byte, error) {
	return c.engine.serialize()
}

// Freeze transitions the chunk to immutable. Unlike TableChunk/IndexChunk,
// an empty CorpusChunk freezes successfully (spec §4.4 boundary behavior).
func (c *CorpusChunk) Freeze(region RegionReader, man *manifest.Manifest) error {
	return c.engine.freeze(region, man)
}

func (c *CorpusChunk) Mutable() bool             { return c.engine.Mutable() }
func (c *CorpusChunk) Size() int                 { return c.engine.Size() }
func (c *CorpusChunk) RevisionCount() int        { return c.engine.RevisionCount() }
func (c *CorpusChunk) Filter() *bloom.Filter     { return c.engine.Filter() }
func (c *CorpusChunk) Manifest() *manifest.Manifest { return c.engine.Manifest() }
