package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cinchapi/concourse-kernel/internal/byteable"
	"github.com/cinchapi/concourse-kernel/internal/chunk"
	"github.com/cinchapi/concourse-kernel/internal/config"
	"github.com/cinchapi/concourse-kernel/internal/database"
	"github.com/cinchapi/concourse-kernel/internal/lock"
	"github.com/cinchapi/concourse-kernel/internal/logging"
	"github.com/cinchapi/concourse-kernel/internal/manifest"
	"github.com/cinchapi/concourse-kernel/internal/orchestrator"
	"github.com/cinchapi/concourse-kernel/internal/searchindexer"
	"github.com/cinchapi/concourse-kernel/internal/segment"
)

func main() {

	// set up slog, filtered per-component so an operator can quiet one
	// noisy component (e.g. the broker sweep's per-tick Debug logs)
	// without lowering everyone else's level.

	filter := logging.NewComponentFilterHandler(
		slog.NewJSONHandler(os.Stderr, nil),
		slog.LevelDebug,
	)
	filter.SetLevel("orchestrator", slog.LevelInfo)
	logger := slog.New(filter)
	slog.SetDefault(logger)

	kernel(logger)
}

// kernel wires a minimal in-process instance together: a file-backed Config,
// a process-wide LockBroker, a Database façade, and the gocron-backed
// orchestrator that periodically sweeps the broker's idle lock entries and
// reaps the manifest soft-reference cache of every synced segment known at
// startup. A fresh kernel has no synced segments yet, so the reap job list
// starts empty; Database.Segments would need to grow a rotation/reload path
// before a long-running process has anything durable to reap here.
func kernel(logger *slog.Logger) {
	ctx := context.Background()

	store := config.NewFileStore("concourse-kernel.json")
	cfg, err := store.Load(ctx)
	if err != nil {
		log.Fatal(err)
	}

	chunk.SetChunkCacheSize(cfg.ManifestCacheEntries)
	manifest.SetEagerCacheEntries(cfg.ManifestCacheEntries)

	broker := lock.NewBroker()
	opts := segment.Options{
		ExpectedInsertions:         4096,
		MaxSubstringLength:         cfg.MaxSearchSubstringLength,
		MaxSubstringScanTerms:      cfg.MaxSubstringScanTerms,
		ManifestStreamingThreshold: cfg.ManifestStreamingThreshold,
		Compressed:                 cfg.CompressSegments,
		Pool:                       searchindexer.New(cfg.IndexerThreads),
	}
	db := database.New(broker, opts, cfg.BufferPageSize)

	scheduler, err := orchestrator.NewScheduler(logger)
	if err != nil {
		log.Fatal(err)
	}
	if err := scheduler.AddBrokerSweep("broker-sweep", "*/5 * * * *", broker); err != nil {
		log.Fatal(err)
	}
	for i, seg := range db.Segments() {
		for j, m := range seg.Manifests() {
			name := fmt.Sprintf("manifest-reap-%d-%d", i, j)
			if err := scheduler.AddManifestReap(name, "*/5 * * * *", m); err != nil {
				log.Fatal(err)
			}
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("kernel started", "buffer_page_size", cfg.BufferPageSize)

	// Demonstration workload; a real deployment would instead expose db over
	// whatever transport wraps this process.
	if _, err := db.Add(byteable.NewText("name"), byteable.NewString("jeff"), byteable.Identifier(1)); err != nil {
		logger.Error("add failed", "error", err)
	}

	time.Sleep(10 * time.Second)
}
