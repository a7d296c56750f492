package config

import (
	"github.com/cinchapi/concourse-kernel/internal/chunk"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
	"github.com/cinchapi/concourse-kernel/internal/searchindexer"
)

// DefaultManifestCacheEntries mirrors chunk.DefaultChunkCacheEntries: the
// same knob bounds both the chunk cache and manifest.DefaultEagerCacheEntries
// once SetEagerCacheEntries/chunk.SetChunkCacheSize are wired from it.
const DefaultManifestCacheEntries = chunk.DefaultChunkCacheEntries

// Default knob values (spec §6). Exported so callers constructing a Config
// by hand can reference the same constants Default() falls back to.
const (
	DefaultBufferPageSize           = 8192
	DefaultMaxSearchSubstringLength = 64
	DefaultDiskReadBufferSize       = 64 << 10
)

// DefaultMaxSubstringScanTerms mirrors chunk.DefaultMaxSubstringScanTerms,
// the corpus substring upper bound resolved in DESIGN.md's Open Question
// ledger.
const DefaultMaxSubstringScanTerms = chunk.DefaultMaxSubstringScanTerms

// DefaultManifestStreamingThreshold mirrors manifest.DefaultStreamingThreshold
// (spec §4.3: "persisted length < STREAMING_THRESHOLD, default ~32 MiB").
var DefaultManifestStreamingThreshold = manifest.DefaultStreamingThreshold

// DefaultIndexerThreads mirrors searchindexer.DefaultThreads: max(3, ceil(0.5*cores)).
func DefaultIndexerThreads() int {
	return searchindexer.DefaultThreads()
}
