package main

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResults_ResponseTimeDistribution(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping response time distribution test in short mode")
	}

	srv := setupServer(t, nil)

	w := request(t, srv.router, http.MethodPost, "/api/session", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	token := decodeBody(t, w)["token"].(string)

	answers := map[string]any{}
	for id := 1; id <= 16; id++ {
		answers[strconv.Itoa(id)] = "agree"
	}
	w = request(t, srv.router, http.MethodPut, "/api/tests/1/progress", token, map[string]any{"answers": answers})
	require.Equal(t, http.StatusOK, w.Code)

	const numRequests = 50
	durations := make([]time.Duration, numRequests)

	// Forced recompute exercises the full scoring path every time.
	for i := 0; i < numRequests; i++ {
		start := time.Now()
		w := request(t, srv.router, http.MethodPost, "/api/tests/1/results?forceUpdate=true", token, nil)
		durations[i] = time.Since(start)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	percentiles := calculatePercentiles(durations, 0.5, 0.95, 0.99)
	t.Logf("Scoring response times: p50=%v p95=%v p99=%v", percentiles[0], percentiles[1], percentiles[2])

	assert.True(t, percentiles[1] < time.Second, "95th percentile should be under 1 second")
}

func TestCatalog_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping load test in short mode")
	}

	srv := setupServer(t, nil)

	const (
		workers    = 10
		perWorker  = 20
		totalCalls = workers * perWorker
	)
	paths := []string{"/api/tests", "/api/tests/1/questions?lang=es", "/api/categories?testId=1", "/api/ideologies"}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		failures  int
	)

	start := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				path := paths[(worker+j)%len(paths)]
				begin := time.Now()
				w := httptest.NewRecorder()
				srv.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				elapsed := time.Since(begin)

				mu.Lock()
				durations = append(durations, elapsed)
				if w.Code != http.StatusOK {
					failures++
				}
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	total := time.Since(start)

	assert.Len(t, durations, totalCalls)
	assert.Zero(t, failures)

	p95 := calculatePercentiles(durations, 0.95)[0]
	t.Logf("Catalog load test: %d requests in %v, p95=%v", totalCalls, total, p95)
	assert.True(t, p95 < 500*time.Millisecond, "95th percentile should be under 500ms")
}

func calculatePercentiles(durations []time.Duration, percentiles ...float64) []time.Duration {
	if len(percentiles) == 0 || len(durations) == 0 {
		return make([]time.Duration, len(percentiles))
	}

	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	results := make([]time.Duration, len(percentiles))
	for i, p := range percentiles {
		index := int(float64(len(sorted)-1) * p)
		if index >= len(sorted) {
			index = len(sorted) - 1
		}
		results[i] = sorted[index]
	}
	return results
}
