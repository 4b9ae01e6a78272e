// Package worker orchestrates a full run: it drives the fetcher through
// every category, flushes accumulated records to the sink and the local
// checkpoint store, announces synced records, and aggregates run-level
// statistics.
package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"brleiloes/superbidworker/config"
	"brleiloes/superbidworker/helpers"
	"brleiloes/superbidworker/internal/crawler"
	"brleiloes/superbidworker/internal/offer"
	"brleiloes/superbidworker/logger"
	"brleiloes/superbidworker/pkg/errors"
	"brleiloes/superbidworker/services/cache"
	"brleiloes/superbidworker/services/checkpoint"
	"brleiloes/superbidworker/services/publisher"
	"brleiloes/superbidworker/services/sink"
)

// RunStats aggregates one run's outcome across all categories. Statistics
// are values merged explicitly here, never shared counters.
type RunStats struct {
	RunID      string
	Categories int
	Abandoned  int
	Kept       int
	Filter     offer.FilterStats
	Upsert     sink.UpsertStats
	Stopped    bool
	Elapsed    time.Duration
}

// Worker runs the crawl-filter-normalize-sync pipeline.
type Worker struct {
	cfg     config.Config
	Fetcher *crawler.Fetcher
	sink    sink.Sink
	pub     publisher.Publisher
	store   *checkpoint.Store
	log     *logger.Logger

	// Sleep is injectable for tests; production uses time.Sleep
	Sleep func(time.Duration)

	// set for the duration of one Run so periodic checkpoint flushes
	// merge into the same totals as the final flushes
	runUpsert *sink.UpsertStats
}

// New wires a worker. fetchPage is the page request function (the
// SourceClient in production); guard may be nil when no memcache is
// configured; pub may be nil when publishing is disabled.
func New(cfg config.Config, fetchPage crawler.FetchPageFunc, s sink.Sink, pub publisher.Publisher, store *checkpoint.Store, guard cache.CacheService) *Worker {
	normalizer := &offer.Normalizer{
		SiteURL:    cfg.SiteURL,
		Categories: categoryNames(),
	}

	w := &Worker{
		cfg:   cfg,
		sink:  s,
		pub:   pub,
		store: store,
		log:   logger.ForWorker(),
		Sleep: time.Sleep,
	}

	fetcherCfg := crawler.DefaultConfig(cfg.PageSize, cfg.MaxPages, cfg.MaxRetries, cfg.CheckpointEvery)
	fetcherCfg.PageDelayMin = cfg.PageDelayMin
	fetcherCfg.PageDelayMax = cfg.PageDelayMax

	w.Fetcher = crawler.NewFetcher(fetcherCfg, normalizer, fetchPage, w.flushCheckpoint)
	w.Fetcher.Guard = guard
	w.Fetcher.GuardKey = cache.GuardKey(offer.Source)

	return w
}

// Run crawls every configured category sequentially and always reports
// aggregate statistics, even when individual units were abandoned.
func (w *Worker) Run(ctx context.Context) RunStats {
	start := time.Now()
	stats := RunStats{RunID: uuid.NewString()}
	w.runUpsert = &stats.Upsert
	defer func() { w.runUpsert = nil }()

	if w.cfg.MaxExecutionTime > 0 {
		w.Fetcher.Deadline = start.Add(w.cfg.MaxExecutionTime)
	}

	categories := w.categories()
	consolidated := offer.NewAccumulator()

	w.log.Info().
		Str("run_id", stats.RunID).
		Int("categories", len(categories)).
		Msg("Starting crawl run")

	for i, cat := range categories {
		if ctx.Err() != nil {
			stats.Stopped = true
			break
		}

		result := w.Fetcher.FetchCategory(ctx, cat.Slug)
		stats.Categories++
		stats.Kept += result.Kept()
		stats.Filter.Merge(result.Stats)
		if result.Abandoned != nil {
			stats.Abandoned++
			if perr, ok := result.Abandoned.(*errors.PipelineError); ok && perr.IsTransient() {
				// Transient source trouble; the next scheduled run retries
				w.log.Warn().Err(result.Abandoned).Str("category", cat.Slug).Msg("Unit abandoned")
			} else {
				w.log.Error().Err(result.Abandoned).Str("category", cat.Slug).Msg("Unit abandoned")
			}
		}

		// Final per-unit flush, independent of the checkpoint cadence.
		// Runs even on timeout or abandonment: fetched work is never
		// discarded.
		w.flushFinal(ctx, cat.Slug, result.Records)

		for _, record := range result.Records {
			consolidated.Add(record)
		}

		if result.Stopped {
			stats.Stopped = true
			w.log.Info().Str("category", cat.Slug).Msg("Run stopped by global deadline")
			break
		}

		if i < len(categories)-1 {
			w.Sleep(helpers.RandomDuration(w.cfg.CategoryDelayMin, w.cfg.CategoryDelayMax))
		}
	}

	if consolidated.Len() > 0 && w.store != nil {
		if _, err := w.store.WriteConsolidated(consolidated.Snapshot()); err != nil {
			logger.LogError("checkpoint", err, "failed to write consolidated file")
		}
	}

	if w.pub != nil {
		if err := w.pub.TrimStreams(); err != nil {
			logger.LogError("publisher", err, "failed to trim streams")
		}
	}

	stats.Elapsed = time.Since(start)
	w.log.Info().
		Str("run_id", stats.RunID).
		Int("categories", stats.Categories).
		Int("kept", stats.Kept).
		Int("filtered", stats.Filter.Total()).
		Int("invalid", stats.Filter.Invalid).
		Int("inserted", stats.Upsert.Inserted).
		Int("updated", stats.Upsert.Updated).
		Int("duplicated", stats.Upsert.Duplicated).
		Int("errors", stats.Upsert.Errors).
		Bool("stopped", stats.Stopped).
		Dur("elapsed", stats.Elapsed).
		Msg("Run finished")
	return stats
}

// flushCheckpoint handles the fetcher's periodic checkpoints: local
// snapshot first (durability), then the sink.
func (w *Worker) flushCheckpoint(slug string, ckpt int, records []offer.CanonicalRecord) {
	if w.store != nil {
		if _, err := w.store.WriteCheckpoint(slug, ckpt, records); err != nil {
			logger.LogError("checkpoint", err, "failed to write checkpoint %d for %s", ckpt, slug)
		}
	}
	ustats := w.sink.Upsert(context.Background(), records)
	if w.runUpsert != nil {
		w.runUpsert.Merge(ustats)
	}
}

// flushFinal writes a unit's final deduplicated set and announces the
// records. Publishing is best-effort; the canonical path never depends
// on it.
func (w *Worker) flushFinal(ctx context.Context, slug string, records []offer.CanonicalRecord) {
	if len(records) == 0 {
		return
	}

	// The run context is canceled on interrupt and the fetcher has already
	// honored it; the flush itself runs detached so the fetched work still
	// reaches the sink before the process exits.
	ctx = context.WithoutCancel(ctx)

	if w.store != nil {
		if _, err := w.store.WriteFinal(slug, records); err != nil {
			logger.LogError("checkpoint", err, "failed to write final set for %s", slug)
		}
	}

	ustats := w.sink.Upsert(ctx, records)
	if w.runUpsert != nil {
		w.runUpsert.Merge(ustats)
	}

	if w.pub != nil {
		for _, record := range records {
			payload, err := json.Marshal(record)
			if err != nil {
				logger.LogError("publisher", err, "failed to encode record %s", record.ExternalID)
				continue
			}
			if err := w.pub.Publish(slug, payload); err != nil {
				logger.LogError("publisher", err, "failed to publish record %s", record.ExternalID)
			}
		}
	}
}

// categories returns the crawl plan: all categories, or the single one
// selected by configuration.
func (w *Worker) categories() []config.Category {
	if w.cfg.Category == "" {
		return config.Categories
	}
	for _, c := range config.Categories {
		if c.Slug == w.cfg.Category {
			return []config.Category{c}
		}
	}
	return nil
}

func categoryNames() map[string]string {
	names := make(map[string]string, len(config.Categories))
	for _, c := range config.Categories {
		names[c.Slug] = c.Name
	}
	return names
}
