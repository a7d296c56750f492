// Package config persists the kernel's declarative configuration (spec §6):
// buffer/segment/index tuning knobs the kernel reads at startup. Like the
// teacher's config package, persistence is load-on-start only — there is no
// hot-reload and Store is never on the Acquire/Lookup hot path.
package config

import "context"

// Store persists and loads a kernel Config.
type Store interface {
	// Load reads the configuration. Returns a zero-value Config, not an
	// error, if none has ever been saved.
	Load(ctx context.Context) (*Config, error)

	// Save persists the configuration.
	Save(ctx context.Context, cfg *Config) error
}

// Config is the kernel's declarative tuning surface (spec §6). Every field
// has a documented default applied by Default(); a Config read from disk
// with zero-valued fields is defaulted the same way before use.
type Config struct {
	// BufferPageSize is the number of toggle-surviving writes a
	// buffer.ToggleQueue accumulates before signaling a drain to
	// Segment.Acquire (spec §4.6).
	BufferPageSize int `json:"buffer_page_size"`

	// MaxSearchSubstringLength caps the length of an indexed term's
	// generated substrings (spec §4.8); a longer term is still exploded,
	// but only into substrings of at most this length.
	MaxSearchSubstringLength int `json:"max_search_substring_length"`

	// MaxSubstringScanTerms bounds how many substrings a single token may
	// expand to on CorpusChunk insert; a token whose substring count would
	// exceed it is indexed whole instead (spec open question resolution,
	// see DESIGN.md).
	MaxSubstringScanTerms int `json:"max_substring_scan_terms"`

	// EnableSearchCache is loaded and saved with the rest of the Config,
	// but no component reads it: the chunk LRU and CorpusChunk's returned
	// artifacts are the same whatever its value.
	EnableSearchCache bool `json:"enable_search_cache"`

	// DiskReadBufferSize is defaulted, loaded and saved with the rest of
	// the Config, but no component reads it: manifest and chunk regions
	// are read without a configurable buffer.
	DiskReadBufferSize int `json:"disk_read_buffer_size"`

	// IndexerThreads sizes the searchindexer.Pool used by CorpusChunk
	// tokenization (spec §4.8).
	IndexerThreads int `json:"indexer_threads"`

	// ManifestStreamingThreshold is the persisted-manifest byte size above
	// which Manifest.Load chooses streaming mode over an eager map (spec
	// §4.3).
	ManifestStreamingThreshold int `json:"manifest_streaming_threshold"`

	// CompressSegments enables optional zstd-seekable compression of a
	// synced Segment's on-disk byte regions (off by default; spec §4.5/§6
	// defines the uncompressed layout as the wire format).
	CompressSegments bool `json:"compress_segments"`

	// ManifestCacheEntries bounds the process-global, size-bounded LRU
	// backing both a frozen chunk's soft-reference revision cache
	// (internal/chunk) and a loaded Manifest's eager heap map
	// (internal/manifest), per spec §4.3/§9's "soft reference" idiom.
	ManifestCacheEntries int `json:"manifest_cache_entries"`
}

// Default fields are applied to any zero-valued field, so a freshly
// constructed or partially-specified Config is always safe to use.
func (c *Config) Default() {
	if c.BufferPageSize <= 0 {
		c.BufferPageSize = DefaultBufferPageSize
	}
	if c.MaxSearchSubstringLength <= 0 {
		c.MaxSearchSubstringLength = DefaultMaxSearchSubstringLength
	}
	if c.MaxSubstringScanTerms <= 0 {
		c.MaxSubstringScanTerms = DefaultMaxSubstringScanTerms
	}
	if c.DiskReadBufferSize <= 0 {
		c.DiskReadBufferSize = DefaultDiskReadBufferSize
	}
	if c.IndexerThreads <= 0 {
		c.IndexerThreads = DefaultIndexerThreads()
	}
	if c.ManifestStreamingThreshold <= 0 {
		c.ManifestStreamingThreshold = DefaultManifestStreamingThreshold
	}
	if c.ManifestCacheEntries <= 0 {
		c.ManifestCacheEntries = DefaultManifestCacheEntries
	}
}
