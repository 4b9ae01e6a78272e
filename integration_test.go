package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"brleiloes/superbidworker/config"
	"brleiloes/superbidworker/helpers"
	"brleiloes/superbidworker/internal/crawler"
	"brleiloes/superbidworker/internal/offer"
	"brleiloes/superbidworker/services/checkpoint"
	"brleiloes/superbidworker/services/sink"
	"brleiloes/superbidworker/services/worker"
)

// fakeSource serves three listing pages for one category: a full page with
// demo records mixed in, a clean full page, and a short final page.
func fakeSource(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/seo/offers/"))
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))

		var body []byte
		switch page {
		case 1:
			body = sourcePage(t, 1, 100, 10)
		case 2:
			body = sourcePage(t, 101, 100, 0)
		case 3:
			body = sourcePage(t, 201, 7, 0)
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
}

func sourcePage(t *testing.T, firstID, count, demo int) []byte {
	t.Helper()

	offers := make([]map[string]interface{}, 0, count)
	for i := 0; i < count; i++ {
		id := firstID + i
		o := map[string]interface{}{
			"id":      id,
			"endDate": "2026-06-01T18:00:00Z",
			"store":   map[string]interface{}{"name": "Loja Alfa"},
			"seller":  map[string]interface{}{"name": "Vendedor Real", "city": "São Paulo/SP"},
			"product": map[string]interface{}{"shortDesc": fmt.Sprintf("Lote %d", id)},
			"offerDetail": map[string]interface{}{
				"currentMinBid":          15000,
				"currentMinBidFormatted": "R$ 15.000,00",
			},
		}
		if i < demo {
			o["seller"] = map[string]interface{}{"name": "Demo Vendedor"}
		}
		offers = append(offers, o)
	}

	body, err := json.Marshal(map[string]interface{}{"offers": offers})
	assert.NoError(t, err)
	return body
}

// fakeSupabase implements the bulk RPC with a persistent seen-set, so a
// second submission of the same records reports updates, not inserts.
type fakeSupabase struct {
	mu       sync.Mutex
	seen     map[string]bool
	archives int
	rpcDown  bool
	table    int
}

func (f *fakeSupabase) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("apikey"))

		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.URL.Path {
		case "/rest/v1/rpc/upsert_auctions":
			if f.rpcDown {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			var payload struct {
				Items []offer.CanonicalRecord `json:"items"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

			inserted, updated := 0, 0
			for _, record := range payload.Items {
				if f.seen[record.ExternalID] {
					updated++
				} else {
					f.seen[record.ExternalID] = true
					inserted++
				}
			}
			json.NewEncoder(w).Encode(map[string]int{
				"inserted": inserted,
				"updated":  updated,
				"errors":   0,
			})

		case "/rest/v1/auctions":
			var batch []offer.CanonicalRecord
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
			f.table += len(batch)
			w.WriteHeader(http.StatusCreated)

		case "/rest/v1/raw_auctions":
			f.archives++
			w.WriteHeader(http.StatusCreated)

		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newIntegrationWorker(t *testing.T, sourceURL string, s sink.Sink) (*worker.Worker, string) {
	cfg := config.Config{
		Category:        "tecnologia",
		SiteURL:         "https://exchange.superbid.net",
		APIURL:          sourceURL,
		PageSize:        100,
		MaxRetries:      3,
		CheckpointEvery: 1000,
		RequestTimeout:  5 * time.Second,
		PortalIDs:       "[2,15]",
		TimeZone:        "America/Sao_Paulo",
		OutputDir:       t.TempDir(),
	}

	store, err := checkpoint.NewStore(cfg.OutputDir)
	assert.NoError(t, err)

	source := &crawler.SourceClient{
		APIURL:    cfg.APIURL,
		SiteURL:   cfg.SiteURL,
		PageSize:  cfg.PageSize,
		PortalIDs: cfg.PortalIDs,
		TimeZone:  cfg.TimeZone,
		Client:    helpers.NewHTTPClient(cfg.RequestTimeout),
	}

	w := worker.New(cfg, source.FetchPage, s, nil, store, nil)
	w.Sleep = func(time.Duration) {}
	w.Fetcher.Sleep = func(time.Duration) {}
	w.Fetcher.Now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return w, cfg.OutputDir
}

func TestEndToEndFastPath(t *testing.T) {
	source := fakeSource(t)
	defer source.Close()

	supa := &fakeSupabase{seen: make(map[string]bool)}
	supaServer := httptest.NewServer(supa.handler(t))
	defer supaServer.Close()

	s, err := sink.NewSupabaseSink(context.Background(), supaServer.URL, "test-key")
	assert.NoError(t, err)
	assert.Equal(t, sink.ModeFast, s.Mode())

	w, _ := newIntegrationWorker(t, source.URL, s)
	stats := w.Run(context.Background())

	// 100 offers with 10 demos, 100 clean, 7 on the short page
	assert.Equal(t, 197, stats.Kept)
	assert.Equal(t, 10, stats.Filter.DemoSeller)
	assert.Equal(t, 197, stats.Upsert.Inserted)
	assert.Equal(t, 0, stats.Upsert.Updated)
	assert.Equal(t, 0, stats.Upsert.Errors)
	assert.Equal(t, 1, supa.archives)
}

func TestEndToEndRerunIsIdempotent(t *testing.T) {
	source := fakeSource(t)
	defer source.Close()

	supa := &fakeSupabase{seen: make(map[string]bool)}
	supaServer := httptest.NewServer(supa.handler(t))
	defer supaServer.Close()

	s, err := sink.NewSupabaseSink(context.Background(), supaServer.URL, "test-key")
	assert.NoError(t, err)

	w1, _ := newIntegrationWorker(t, source.URL, s)
	first := w1.Run(context.Background())
	assert.Equal(t, 197, first.Upsert.Inserted)

	w2, _ := newIntegrationWorker(t, source.URL, s)
	second := w2.Run(context.Background())
	assert.Equal(t, 0, second.Upsert.Inserted)
	assert.Equal(t, 197, second.Upsert.Updated)
	assert.Equal(t, 0, second.Upsert.Errors)
}

func TestEndToEndDegradedPath(t *testing.T) {
	source := fakeSource(t)
	defer source.Close()

	supa := &fakeSupabase{seen: make(map[string]bool), rpcDown: true}
	supaServer := httptest.NewServer(supa.handler(t))
	defer supaServer.Close()

	s, err := sink.NewSupabaseSink(context.Background(), supaServer.URL, "test-key")
	assert.NoError(t, err)
	assert.Equal(t, sink.ModeDegraded, s.Mode())

	w, _ := newIntegrationWorker(t, source.URL, s)
	stats := w.Run(context.Background())

	assert.Equal(t, 197, stats.Kept)
	assert.Equal(t, 197, stats.Upsert.Inserted)
	assert.Equal(t, 197, supa.table)
}

func TestEndToEndInterruptStillFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNumber"))
		if page > 1 {
			t.Errorf("page %d requested after the interrupt", page)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		// Cancel the run while the first page is still being served
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		w.Write(sourcePage(t, 1, 100, 0))
	}))
	defer source.Close()

	supa := &fakeSupabase{seen: make(map[string]bool)}
	supaServer := httptest.NewServer(supa.handler(t))
	defer supaServer.Close()

	s, err := sink.NewSupabaseSink(context.Background(), supaServer.URL, "test-key")
	assert.NoError(t, err)

	w, _ := newIntegrationWorker(t, source.URL, s)
	stats := w.Run(ctx)

	// The canceled run context must not poison the final flush
	assert.True(t, stats.Stopped)
	assert.Equal(t, 100, stats.Kept)
	assert.Equal(t, 100, stats.Upsert.Inserted)
	assert.Equal(t, 0, stats.Upsert.Errors)
	assert.Equal(t, 1, supa.archives)
}

func TestEndToEndWritesCheckpointArtifacts(t *testing.T) {
	source := fakeSource(t)
	defer source.Close()

	supa := &fakeSupabase{seen: make(map[string]bool)}
	supaServer := httptest.NewServer(supa.handler(t))
	defer supaServer.Close()

	s, err := sink.NewSupabaseSink(context.Background(), supaServer.URL, "test-key")
	assert.NoError(t, err)

	w, outputDir := newIntegrationWorker(t, source.URL, s)
	w.Run(context.Background())

	entries, err := os.ReadDir(outputDir)
	assert.NoError(t, err)

	var finals, consolidated int
	for _, e := range entries {
		name := filepath.Base(e.Name())
		if strings.Contains(name, "_final_") {
			finals++
		}
		if strings.Contains(name, "_consolidated_") {
			consolidated++
		}
	}
	assert.Equal(t, 1, finals)
	assert.Equal(t, 1, consolidated)
}
