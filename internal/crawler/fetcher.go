// Package crawler drives the paginated crawl of one category at a time:
// page iteration, retry and backoff, the global deadline, and periodic
// checkpoint flushes of the accumulated records.
package crawler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"brleiloes/superbidworker/helpers"
	"brleiloes/superbidworker/internal/offer"
	"brleiloes/superbidworker/logger"
	"brleiloes/superbidworker/pkg/errors"
	"brleiloes/superbidworker/services/cache"
)

// FetchPageFunc fetches one page body for a category.
type FetchPageFunc func(slug string, page int) ([]byte, int, error)

// FlushFunc receives a periodic checkpoint: the deduplicated records
// accumulated so far for the unit. Snapshots are monotonic supersets, so
// replaying them in order toward the sink is safe.
type FlushFunc func(slug string, checkpoint int, records []offer.CanonicalRecord)

// Config holds the pacing and budget knobs for the fetch loop.
type Config struct {
	PageSize        int
	MaxPages        int
	MaxRetries      int
	CheckpointEvery int

	PageDelayMin     time.Duration
	PageDelayMax     time.Duration
	RateLimitWaitMin time.Duration
	RateLimitWaitMax time.Duration
	TransientWaitMin time.Duration
	TransientWaitMax time.Duration
}

// DefaultConfig returns the production pacing for a given page size.
func DefaultConfig(pageSize, maxPages, maxRetries, checkpointEvery int) Config {
	return Config{
		PageSize:         pageSize,
		MaxPages:         maxPages,
		MaxRetries:       maxRetries,
		CheckpointEvery:  checkpointEvery,
		PageDelayMin:     2 * time.Second,
		PageDelayMax:     5 * time.Second,
		RateLimitWaitMin: 15 * time.Second,
		RateLimitWaitMax: 30 * time.Second,
		TransientWaitMin: 10 * time.Second,
		TransientWaitMax: 20 * time.Second,
	}
}

// Result is the outcome of one crawl unit. A unit never fails the run:
// Abandoned carries the last transient error when the retry budget ran
// out, and the accumulated records are always usable.
type Result struct {
	Slug        string
	Records     []offer.CanonicalRecord
	Stats       offer.FilterStats
	Pages       int
	Checkpoints int
	Stopped     bool
	Abandoned   error
}

// Kept returns the number of distinct records the unit accumulated.
func (r *Result) Kept() int {
	return len(r.Records)
}

// Fetcher crawls categories sequentially. Fetch, sleep, and now are
// injectable for tests; production wiring uses SourceClient, time.Sleep,
// and time.Now.
type Fetcher struct {
	Config     Config
	Normalizer *offer.Normalizer
	FetchPage  FetchPageFunc
	Flush      FlushFunc

	// Deadline is the global wall-clock limit for the whole run; the
	// zero value disables it. Exceeding it is a graceful stop.
	Deadline time.Time

	// Guard is an optional cross-run rate-limit block keyed by GuardKey.
	Guard    cache.CacheService
	GuardKey string

	Sleep func(time.Duration)
	Now   func() time.Time
}

// NewFetcher wires a fetcher with production defaults.
func NewFetcher(cfg Config, normalizer *offer.Normalizer, fetchPage FetchPageFunc, flush FlushFunc) *Fetcher {
	return &Fetcher{
		Config:     cfg,
		Normalizer: normalizer,
		FetchPage:  fetchPage,
		Flush:      flush,
		Sleep:      time.Sleep,
		Now:        time.Now,
	}
}

// FetchCategory runs the pagination state machine for one category.
// Termination: empty page, 404, or a short page end the unit successfully;
// the global deadline or context cancellation stop it gracefully; too many
// consecutive transient errors abandon it. In every case the records
// accumulated so far are returned for the final flush.
func (f *Fetcher) FetchCategory(ctx context.Context, slug string) *Result {
	log := logger.ForCategory(slug)
	result := &Result{Slug: slug}
	acc := offer.NewAccumulator()
	consecutive := 0
	page := 1

	// Honor a rate-limit block left by a previous run
	if f.Guard != nil && f.GuardKey != "" {
		if _, err := f.Guard.Get(f.GuardKey); err == nil {
			wait := helpers.RandomDuration(f.Config.RateLimitWaitMin, f.Config.RateLimitWaitMax)
			log.Warn().Dur("wait", wait).Msg("Source still rate limited, waiting before first page")
			f.Sleep(wait)
		}
	}

	for {
		if f.stopRequested(ctx) {
			log.Info().Int("page", page).Msg("Global deadline reached, stopping unit")
			result.Stopped = true
			break
		}
		if f.Config.MaxPages > 0 && page > f.Config.MaxPages {
			log.Info().Int("max_pages", f.Config.MaxPages).Msg("Page limit reached")
			break
		}

		body, status, err := f.FetchPage(slug, page)
		if err != nil {
			consecutive++
			log.Warn().Err(err).Int("page", page).
				Int("consecutive", consecutive).Msg("Page fetch failed")
			if consecutive >= f.Config.MaxRetries {
				result.Abandoned = errors.NewSource(slug, fmt.Sprintf("abandoned at page %d", page), err)
				break
			}
			f.Sleep(helpers.RandomDuration(f.Config.TransientWaitMin, f.Config.TransientWaitMax))
			continue
		}

		if status == http.StatusNotFound {
			log.Info().Int("page", page).Msg("End of results (404)")
			break
		}

		if status == http.StatusTooManyRequests {
			consecutive++
			wait := helpers.RandomDuration(f.Config.RateLimitWaitMin, f.Config.RateLimitWaitMax)
			if f.Guard != nil && f.GuardKey != "" {
				f.Guard.Set(f.GuardKey, []byte(wait.String()), wait)
			}
			log.Warn().Dur("wait", wait).Int("page", page).
				Int("consecutive", consecutive).Msg("Rate limited")
			if consecutive >= f.Config.MaxRetries {
				result.Abandoned = errors.NewRateLimit(slug, wait)
				break
			}
			f.Sleep(wait)
			continue
		}

		if status != http.StatusOK {
			consecutive++
			log.Warn().Int("status", status).Int("page", page).
				Int("consecutive", consecutive).Msg("Unexpected status")
			if consecutive >= f.Config.MaxRetries {
				result.Abandoned = errors.NewSource(slug, fmt.Sprintf("status %d at page %d", status, page), nil)
				break
			}
			f.Sleep(helpers.RandomDuration(f.Config.TransientWaitMin, f.Config.TransientWaitMax))
			continue
		}

		decoded, err := offer.DecodePage(body)
		if err != nil {
			consecutive++
			log.Warn().Err(err).Int("page", page).
				Int("consecutive", consecutive).Msg("Malformed page body")
			if consecutive >= f.Config.MaxRetries {
				result.Abandoned = errors.NewDecode(slug, fmt.Sprintf("abandoned at page %d", page), err)
				break
			}
			continue
		}

		if len(decoded.Offers) == 0 {
			log.Info().Int("page", page).Msg("End of results (empty page)")
			break
		}

		kept := f.processPage(decoded, slug, acc, &result.Stats)
		result.Pages++
		log.Debug().Int("page", page).Int("kept", kept).
			Int("accumulated", acc.Len()).Msg("Page processed")

		if f.Config.CheckpointEvery > 0 && f.Flush != nil &&
			acc.Len() >= (result.Checkpoints+1)*f.Config.CheckpointEvery {
			result.Checkpoints++
			f.Flush(slug, result.Checkpoints, acc.Snapshot())
		}

		if len(decoded.Offers) < f.Config.PageSize {
			log.Info().Int("page", page).Int("results", len(decoded.Offers)).
				Msg("End of results (short page)")
			break
		}

		page++
		consecutive = 0
		f.Sleep(helpers.RandomDuration(f.Config.PageDelayMin, f.Config.PageDelayMax))
	}

	result.Records = acc.Snapshot()
	return result
}

// processPage classifies and normalizes one page of offers into the
// accumulator, returning how many were kept.
func (f *Fetcher) processPage(page *offer.Page, slug string, acc *offer.Accumulator, stats *offer.FilterStats) int {
	kept := 0
	for i := range page.Offers {
		raw := &page.Offers[i]

		if synthetic, reason := offer.Classify(raw); synthetic {
			stats.Count(reason)
			continue
		}

		record, err := f.Normalizer.Normalize(raw, slug, f.Now())
		if err != nil {
			stats.Invalid++
			continue
		}

		acc.Add(*record)
		kept++
	}
	return kept
}

func (f *Fetcher) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return !f.Deadline.IsZero() && f.Now().After(f.Deadline)
}
