package sink

import (
	"context"
	"time"

	"brleiloes/superbidworker/internal/offer"
)

// Mode is the write path the sink decided on at construction: the bulk
// RPC when the capability probe succeeds, the table-level insert-or-merge
// path otherwise. It is decided once and never re-probed.
type Mode string

const (
	// ModeFast uses the bulk-upsert RPC
	ModeFast Mode = "fast"
	// ModeDegraded uses smaller conflict-tolerant table writes
	ModeDegraded Mode = "degraded"
)

// UpsertStats aggregates the outcome of sink writes: per batch, per
// category, per run. Conflicts are an expected, counted, non-fatal
// outcome, reported as Duplicated, never as Errors.
type UpsertStats struct {
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Duplicated int           `json:"duplicated"`
	Errors     int           `json:"errors"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Merge adds other's counters into s.
func (s *UpsertStats) Merge(other UpsertStats) {
	s.Inserted += other.Inserted
	s.Updated += other.Updated
	s.Duplicated += other.Duplicated
	s.Errors += other.Errors
	s.Elapsed += other.Elapsed
}

// Sink represents the persistent store for canonical records.
type Sink interface {
	// Upsert writes records idempotently keyed on (source, external_id).
	// Batch failures are counted in the returned stats and never abort
	// the remaining batches.
	Upsert(ctx context.Context, records []offer.CanonicalRecord) UpsertStats

	// Mode reports which write path the sink is using.
	Mode() Mode
}
