package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"brleiloes/superbidworker/internal/offer"
	"brleiloes/superbidworker/logger"
	"brleiloes/superbidworker/pkg/errors"
)

const (
	fastBatchSize = 500
	// Conflict resolution is more expensive without the bulk path
	degradedBatchSize = 200

	rpcPath     = "/rest/v1/rpc/upsert_auctions"
	tablePath   = "/rest/v1/auctions"
	archivePath = "/rest/v1/raw_auctions"
)

// SupabaseSink writes canonical records to Supabase over PostgREST. The
// HTTP client pools connections for the whole run and retries idempotent
// writes on 429 and transient 5xx with exponential backoff; retried POSTs
// are safe because the sink upserts keyed on (source, external_id).
type SupabaseSink struct {
	baseURL    string
	serviceKey string
	client     *retryablehttp.Client
	mode       Mode
	log        *logger.Logger
}

// NewSupabaseSink validates credentials, probes the bulk-upsert
// capability with a side-effect-free empty call, and caches the resulting
// mode for the client's lifetime.
func NewSupabaseSink(ctx context.Context, baseURL, serviceKey string) (*SupabaseSink, error) {
	if baseURL == "" || serviceKey == "" {
		return nil, errors.NewConfiguration("supabase url and service key are required", nil)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = 60 * time.Second
	client.Logger = nil

	s := &SupabaseSink{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		client:     client,
		log:        logger.ForSink(),
	}
	s.mode = s.probeCapability(ctx)

	s.log.Info().Str("mode", string(s.mode)).Msg("Sink initialized")
	return s, nil
}

// Mode reports the cached write path.
func (s *SupabaseSink) Mode() Mode {
	return s.mode
}

// Upsert archives the raw batch, then writes it through the cached path.
// The archive is a best-effort side channel for offline replay; its
// failure never blocks the canonical write.
func (s *SupabaseSink) Upsert(ctx context.Context, records []offer.CanonicalRecord) UpsertStats {
	var stats UpsertStats
	if len(records) == 0 {
		return stats
	}
	start := time.Now()

	s.archiveRaw(ctx, records)

	if s.mode == ModeFast {
		s.upsertRPC(ctx, records, &stats)
	} else {
		s.upsertTable(ctx, records, &stats)
	}

	stats.Elapsed = time.Since(start)
	s.log.Info().
		Int("records", len(records)).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("duplicated", stats.Duplicated).
		Int("errors", stats.Errors).
		Dur("elapsed", stats.Elapsed).
		Msg("Upsert finished")
	return stats
}

// probeCapability issues a zero-record call to the bulk RPC. Any
// non-success answer means the capability is absent, not a fatal error.
func (s *SupabaseSink) probeCapability(ctx context.Context) Mode {
	status, _, err := s.post(ctx, rpcPath, map[string]interface{}{
		"items": []offer.CanonicalRecord{},
	}, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Capability probe failed, using degraded path")
		return ModeDegraded
	}
	if status < 200 || status >= 300 {
		s.log.Warn().Int("status", status).Msg("Bulk upsert unavailable, using degraded path")
		return ModeDegraded
	}
	return ModeFast
}

type rpcResponse struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// upsertRPC sends batches of up to 500 records through the bulk RPC. A
// failed batch counts entirely as errors; the remaining batches still go.
func (s *SupabaseSink) upsertRPC(ctx context.Context, records []offer.CanonicalRecord, stats *UpsertStats) {
	for start := 0; start < len(records); start += fastBatchSize {
		batch := records[start:min(start+fastBatchSize, len(records))]

		status, body, err := s.post(ctx, rpcPath, map[string]interface{}{
			"items": batch,
		}, nil)
		if err != nil || status < 200 || status >= 300 {
			stats.Errors += len(batch)
			serr := errors.NewSink("rpc", fmt.Sprintf("batch of %d rejected with status %d", len(batch), status), err)
			s.log.Error().Err(serr).Msg("Bulk upsert batch failed")
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			stats.Errors += len(batch)
			s.log.Error().Err(err).Msg("Bulk upsert response malformed")
			continue
		}
		stats.Inserted += resp.Inserted
		stats.Updated += resp.Updated
		stats.Errors += resp.Errors
	}
}

// upsertTable is the degraded path: smaller batches against the table
// endpoint with insert-or-merge conflict handling on (source,
// external_id). A batch that conflicts entirely is duplicated, not an
// error.
func (s *SupabaseSink) upsertTable(ctx context.Context, records []offer.CanonicalRecord, stats *UpsertStats) {
	headers := map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	}
	path := tablePath + "?on_conflict=source,external_id"

	for start := 0; start < len(records); start += degradedBatchSize {
		batch := records[start:min(start+degradedBatchSize, len(records))]

		status, _, err := s.post(ctx, path, batch, headers)
		switch {
		case err != nil:
			stats.Errors += len(batch)
			serr := errors.NewSink("table", fmt.Sprintf("batch of %d failed", len(batch)), err)
			s.log.Error().Err(serr).Msg("Table upsert batch failed")
		case status == http.StatusConflict:
			stats.Duplicated += len(batch)
		case status >= 200 && status < 300:
			stats.Inserted += len(batch)
		default:
			stats.Errors += len(batch)
			serr := errors.NewSink("table", fmt.Sprintf("batch of %d rejected with status %d", len(batch), status), nil)
			s.log.Error().Err(serr).Msg("Table upsert batch rejected")
		}
	}
}

// archiveRaw persists the submitted batch verbatim for offline replay.
func (s *SupabaseSink) archiveRaw(ctx context.Context, records []offer.CanonicalRecord) {
	status, _, err := s.post(ctx, archivePath, map[string]interface{}{
		"source": offer.Source,
		"data":   records,
	}, nil)
	if err != nil {
		s.log.Warn().Err(errors.NewSink("archive", "raw archive write failed", err)).Msg("Raw archive write failed")
		return
	}
	if status < 200 || status >= 300 {
		s.log.Warn().Err(errors.NewSink("archive", fmt.Sprintf("raw archive rejected with status %d", status), nil)).Msg("Raw archive write rejected")
	}
}

// post sends a JSON POST and returns the status and body. Transport-level
// retries are handled by the retrying client.
func (s *SupabaseSink) post(ctx context.Context, path string, payload interface{}, headers map[string]string) (int, []byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
