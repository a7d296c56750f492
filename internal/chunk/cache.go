package chunk

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultChunkCacheEntries bounds the process-global cache of frozen chunks'
// sorted revision sets (spec §4.3/§9's "soft reference" idiom, applied to
// chunk data the way manifest.Manifest already bounds its eager map).
// Wired from kernel.Config.ManifestCacheEntries at startup.
const DefaultChunkCacheEntries = 4096

// evictable is implemented by every *serialEngine[R] regardless of R, since
// onEvict takes no R-dependent parameters.
type evictable interface{ onEvict() }

// chunkCache tracks which frozen serialEngines currently hold a resident
// cached slice. It stores no payload of its own — the revisions live on the
// engine as before — it only decides, by capacity and recency, when an
// engine's onEvict should run and release its slice. Get/Add calls on a
// frozen engine bump its recency on every seek so hot chunks survive
// eviction longer than cold ones.
var chunkCache = newChunkCache(DefaultChunkCacheEntries)

func newChunkCache(size int) *lru.Cache[evictable, struct{}] {
	if size <= 0 {
		size = DefaultChunkCacheEntries
	}
	c, err := lru.NewWithEvict[evictable, struct{}](size, func(key evictable, _ struct{}) {
		key.onEvict()
	})
	if err != nil {
		panic(err)
	}
	return c
}

// SetChunkCacheSize resizes the process-global chunk cache. Existing entries
// are dropped (their owning engines fall back to manifest+region reads on
// the next seek, same as any other DropCache).
func SetChunkCacheSize(n int) {
	chunkCache = newChunkCache(n)
}
