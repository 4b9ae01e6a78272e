package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"brleiloes/superbidworker/internal/offer"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testNormalizer() *offer.Normalizer {
	return &offer.Normalizer{
		SiteURL:    "https://exchange.superbid.net",
		Categories: map[string]string{"tecnologia": "Tecnologia"},
	}
}

// newTestFetcher wires a fetcher with no real sleeping and a fixed clock.
func newTestFetcher(cfg Config, fetch FetchPageFunc, flush FlushFunc) *Fetcher {
	f := NewFetcher(cfg, testNormalizer(), fetch, flush)
	f.Sleep = func(time.Duration) {}
	f.Now = func() time.Time { return testNow }
	return f
}

// pageBody builds one source page with count offers starting at firstID.
// The first synthetic offers carry a demo seller so the classifier drops
// them.
func pageBody(t *testing.T, firstID, count, synthetic int) []byte {
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
				"currentMinBid": 1000,
			},
		}
		if i < synthetic {
			o["seller"] = map[string]interface{}{"name": "Demo Vendedor"}
		}
		offers = append(offers, o)
	}

	body, err := json.Marshal(map[string]interface{}{"offers": offers})
	assert.NoError(t, err)
	return body
}

func TestFetchCategoryPagination(t *testing.T) {
	// Three pages: a full page with 10 demo offers, a clean full page, and
	// a short page that ends the unit. No fourth request must happen.
	var requested []int
	fetch := func(slug string, page int) ([]byte, int, error) {
		requested = append(requested, page)
		switch page {
		case 1:
			return pageBody(t, 1, 100, 10), http.StatusOK, nil
		case 2:
			return pageBody(t, 101, 100, 0), http.StatusOK, nil
		case 3:
			return pageBody(t, 201, 7, 0), http.StatusOK, nil
		default:
			t.Fatalf("unexpected request for page %d", page)
			return nil, 0, nil
		}
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, []int{1, 2, 3}, requested)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 197, result.Kept())
	assert.Equal(t, 10, result.Stats.DemoSeller)
	assert.Equal(t, 0, result.Checkpoints)
	assert.False(t, result.Stopped)
	assert.NoError(t, result.Abandoned)
}

func TestFetchCategoryCheckpoints(t *testing.T) {
	fetch := func(slug string, page int) ([]byte, int, error) {
		switch page {
		case 1:
			return pageBody(t, 1, 100, 0), http.StatusOK, nil
		case 2:
			return pageBody(t, 101, 100, 0), http.StatusOK, nil
		default:
			return pageBody(t, 201, 50, 0), http.StatusOK, nil
		}
	}

	var flushed []int
	flush := func(slug string, checkpoint int, records []offer.CanonicalRecord) {
		assert.Equal(t, "tecnologia", slug)
		assert.Equal(t, len(flushed)+1, checkpoint)
		flushed = append(flushed, len(records))
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 100), fetch, flush)
	result := f.FetchCategory(context.Background(), "tecnologia")

	// Snapshots are cumulative: the second checkpoint contains the first.
	assert.Equal(t, []int{100, 200}, flushed)
	assert.Equal(t, 2, result.Checkpoints)
	assert.Equal(t, 250, result.Kept())
}

func TestFetchCategoryEndsOn404(t *testing.T) {
	fetch := func(slug string, page int) ([]byte, int, error) {
		if page == 1 {
			return pageBody(t, 1, 100, 0), http.StatusOK, nil
		}
		return nil, http.StatusNotFound, nil
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 100, result.Kept())
	assert.NoError(t, result.Abandoned)
}

func TestFetchCategoryEndsOnEmptyPage(t *testing.T) {
	fetch := func(slug string, page int) ([]byte, int, error) {
		return []byte(`{"offers":[]}`), http.StatusOK, nil
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 0, result.Pages)
	assert.Equal(t, 0, result.Kept())
	assert.NoError(t, result.Abandoned)
}

func TestFetchCategoryAbandonsAfterRateLimitBudget(t *testing.T) {
	calls := 0
	fetch := func(slug string, page int) ([]byte, int, error) {
		calls++
		return nil, http.StatusTooManyRequests, nil
	}

	guard := &fakeGuard{}
	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	f.Guard = guard
	f.GuardKey = "superbid_rate_limited"
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 3, calls)
	assert.Error(t, result.Abandoned)
	assert.Equal(t, 0, result.Kept())
	// Every 429 refreshes the cross-run block marker
	assert.Equal(t, 3, guard.sets)
}

func TestFetchCategoryRecoversFromRateLimit(t *testing.T) {
	calls := 0
	fetch := func(slug string, page int) ([]byte, int, error) {
		calls++
		if calls == 1 {
			return nil, http.StatusTooManyRequests, nil
		}
		return pageBody(t, 1, 5, 0), http.StatusOK, nil
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 2, calls)
	assert.Equal(t, 5, result.Kept())
	assert.NoError(t, result.Abandoned)
}

func TestFetchCategoryAbandonsAfterErrorBudget(t *testing.T) {
	calls := 0
	fetch := func(slug string, page int) ([]byte, int, error) {
		calls++
		return nil, 0, fmt.Errorf("connection reset")
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 3, calls)
	assert.Error(t, result.Abandoned)
}

func TestFetchCategoryAbandonsOnMalformedBodies(t *testing.T) {
	fetch := func(slug string, page int) ([]byte, int, error) {
		return []byte("<html>not json</html>"), http.StatusOK, nil
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Error(t, result.Abandoned)
	assert.Equal(t, 0, result.Kept())
}

func TestFetchCategoryDeduplicatesRepeatedIDs(t *testing.T) {
	fetch := func(slug string, page int) ([]byte, int, error) {
		// The later duplicate wins but keeps the original position
		body, err := json.Marshal(map[string]interface{}{
			"offers": []map[string]interface{}{
				offerWithID(1, "Primeira versão"),
				offerWithID(2, "Outro lote"),
				offerWithID(1, "Versão mais recente"),
			},
		})
		assert.NoError(t, err)
		return body, http.StatusOK, nil
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 2, result.Kept())
	assert.Equal(t, "superbid_1", result.Records[0].ExternalID)
	assert.Equal(t, "Versão mais recente", result.Records[0].Title)
}

func TestFetchCategoryStopsAtDeadline(t *testing.T) {
	fetch := func(slug string, page int) ([]byte, int, error) {
		return pageBody(t, page*1000, 100, 0), http.StatusOK, nil
	}

	nowCalls := 0
	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	f.Deadline = testNow.Add(time.Second)
	f.Now = func() time.Time {
		nowCalls++
		if nowCalls == 1 {
			return testNow
		}
		return testNow.Add(2 * time.Second)
	}

	result := f.FetchCategory(context.Background(), "tecnologia")

	// The first page completes; the deadline check before page 2 stops
	// the unit with the records kept.
	assert.True(t, result.Stopped)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 100, result.Kept())
}

func TestFetchCategoryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch := func(slug string, page int) ([]byte, int, error) {
		t.Fatal("fetch must not run after cancellation")
		return nil, 0, nil
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	result := f.FetchCategory(ctx, "tecnologia")

	assert.True(t, result.Stopped)
	assert.Equal(t, 0, result.Pages)
}

func TestFetchCategoryHonorsMaxPages(t *testing.T) {
	fetch := func(slug string, page int) ([]byte, int, error) {
		return pageBody(t, page*1000, 100, 0), http.StatusOK, nil
	}

	f := newTestFetcher(DefaultConfig(100, 2, 3, 1000), fetch, nil)
	result := f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 200, result.Kept())
	assert.False(t, result.Stopped)
}

func TestFetchCategoryWaitsOnGuard(t *testing.T) {
	guard := &fakeGuard{data: map[string][]byte{
		"superbid_rate_limited": []byte("20s"),
	}}

	slept := 0
	fetch := func(slug string, page int) ([]byte, int, error) {
		return []byte(`{"offers":[]}`), http.StatusOK, nil
	}

	f := newTestFetcher(DefaultConfig(100, 0, 3, 1000), fetch, nil)
	f.Guard = guard
	f.GuardKey = "superbid_rate_limited"
	f.Sleep = func(time.Duration) { slept++ }

	f.FetchCategory(context.Background(), "tecnologia")

	assert.Equal(t, 1, slept)
}

func offerWithID(id int, title string) map[string]interface{} {
	return map[string]interface{}{
		"id":      id,
		"endDate": "2026-06-01T18:00:00Z",
		"store":   map[string]interface{}{"name": "Loja Alfa"},
		"seller":  map[string]interface{}{"name": "Vendedor Real", "city": "São Paulo/SP"},
		"product": map[string]interface{}{"shortDesc": title},
		"offerDetail": map[string]interface{}{
			"currentMinBid": 1000,
		},
	}
}

type fakeGuard struct {
	data map[string][]byte
	sets int
}

func (g *fakeGuard) Get(key string) ([]byte, error) {
	if v, ok := g.data[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("cache miss")
}

func (g *fakeGuard) Set(key string, value []byte, expiration time.Duration) error {
	if g.data == nil {
		g.data = make(map[string][]byte)
	}
	g.data[key] = value
	g.sets++
	return nil
}

func (g *fakeGuard) Delete(key string) error {
	delete(g.data, key)
	return nil
}
