// Package checkpoint writes the local JSON snapshot artifacts produced
// during a crawl: per-unit checkpoints, per-unit final sets, and the
// consolidated run file. The files are a durability fallback for operator
// inspection and replay; the pipeline never reads them back.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"brleiloes/superbidworker/internal/offer"
	"brleiloes/superbidworker/logger"
)

const timestampLayout = "20060102_150405"

// Store writes snapshot files under a single output directory.
type Store struct {
	dir string
	log *logger.Logger

	// Now is injectable for deterministic filenames in tests
	Now func() time.Time
}

// NewStore creates the output directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &Store{dir: dir, log: logger.ForCheckpoint(), Now: time.Now}, nil
}

// WriteCheckpoint writes a periodic snapshot for one crawl unit.
func (s *Store) WriteCheckpoint(slug string, checkpoint int, records []offer.CanonicalRecord) (string, error) {
	name := fmt.Sprintf("%s_%s_ckpt%d_%s.json", offer.Source, slug, checkpoint, s.Now().Format(timestampLayout))
	return s.write(name, records)
}

// WriteFinal writes the final deduplicated set for one crawl unit.
func (s *Store) WriteFinal(slug string, records []offer.CanonicalRecord) (string, error) {
	name := fmt.Sprintf("%s_%s_final_%s.json", offer.Source, slug, s.Now().Format(timestampLayout))
	return s.write(name, records)
}

// WriteConsolidated writes the whole run's deduplicated set.
func (s *Store) WriteConsolidated(records []offer.CanonicalRecord) (string, error) {
	name := fmt.Sprintf("%s_full_consolidated_%s.json", offer.Source, s.Now().Format(timestampLayout))
	return s.write(name, records)
}

func (s *Store) write(name string, records []offer.CanonicalRecord) (string, error) {
	path := filepath.Join(s.dir, name)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	s.log.Debug().Str("file", name).Int("records", len(records)).Msg("Snapshot written")
	return path, nil
}
