package monitoring

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// latencySamples is how many recent response times feed the percentiles.
const latencySamples = 1000

// Metrics holds in-process counters exposed on /metrics. All methods are
// safe for concurrent use.
type Metrics struct {
	startTime time.Time

	requests        atomic.Int64
	errors          atomic.Int64
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	scoringRuns     atomic.Int64
	scoringFailures atomic.Int64
	ideologyMatches atomic.Int64
	narrativeCalls  atomic.Int64

	breakerOpens  atomic.Int64
	breakerCloses atomic.Int64

	gcCount        atomic.Int64
	gcPauseTotalNs atomic.Int64
	heapAlloc      atomic.Int64
	heapSys        atomic.Int64

	rlIPBlocks    atomic.Int64
	rlUserBlocks  atomic.Int64
	rlRedisErrors atomic.Int64
	rlFallbacks   atomic.Int64

	latency *latencyWindow

	byStatus       *counterMap[int]
	externalCalls  *counterMap[string]
	externalErrors *counterMap[string]
	endpointBlocks *counterMap[string]
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		startTime:      time.Now(),
		latency:        newLatencyWindow(latencySamples),
		byStatus:       newCounterMap[int](),
		externalCalls:  newCounterMap[string](),
		externalErrors: newCounterMap[string](),
		endpointBlocks: newCounterMap[string](),
	}
}

func (m *Metrics) IncrementRequest() { m.requests.Add(1) }
func (m *Metrics) IncrementError() { m.errors.Add(1) }
func (m *Metrics) IncrementCacheHit() { m.cacheHits.Add(1) }
func (m *Metrics) IncrementCacheMiss() { m.cacheMisses.Add(1) }
func (m *Metrics) IncrementScoringRun() { m.scoringRuns.Add(1) }
func (m *Metrics) IncrementScoringFailure() { m.scoringFailures.Add(1) }
func (m *Metrics) IncrementIdeologyMatch() { m.ideologyMatches.Add(1) }
func (m *Metrics) IncrementNarrativeCalls() { m.narrativeCalls.Add(1) }
func (m *Metrics) IncrementCircuitBreakerOpen() { m.breakerOpens.Add(1) }
func (m *Metrics) IncrementCircuitBreakerClose() { m.breakerCloses.Add(1) }

func (m *Metrics) IncrementRateLimitIPBlock() { m.rlIPBlocks.Add(1) }
func (m *Metrics) IncrementRateLimitUserBlock() { m.rlUserBlocks.Add(1) }
func (m *Metrics) IncrementRateLimitRedisError() { m.rlRedisErrors.Add(1) }
func (m *Metrics) IncrementRateLimitFallback() { m.rlFallbacks.Add(1) }

// IncrementRateLimitEndpoint counts a block on one endpoint's limit.
func (m *Metrics) IncrementRateLimitEndpoint(endpoint string) {
	m.endpointBlocks.inc(endpoint)
}

// RecordResponseTime adds a sample to the latency window.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.latency.add(duration)
}

// RecordRequestByStatus records request count by HTTP status code
func (m *Metrics) RecordRequestByStatus(statusCode int) {
	m.byStatus.inc(statusCode)
}

// RecordExternalAPIRequest records an external API request
func (m *Metrics) RecordExternalAPIRequest(apiName string, success bool) {
	m.externalCalls.inc(apiName)
	if !success {
		m.externalErrors.inc(apiName)
	}
}

// RecordGCMetrics stores the latest runtime.MemStats sample.
func (m *Metrics) RecordGCMetrics(gcCount, gcPauseTotalNs, heapAlloc, heapSys int64) {
	m.gcCount.Store(gcCount)
	m.gcPauseTotalNs.Store(gcPauseTotalNs)
	m.heapAlloc.Store(heapAlloc)
	m.heapSys.Store(heapSys)
}

// GetPercentileResponseTime returns the given percentile (0-100) of the
// recent response times, or zero before the first sample.
func (m *Metrics) GetPercentileResponseTime(percentile float64) time.Duration {
	return m.latency.percentile(percentile)
}

// ErrorRatePercent is the share of requests answered with 4xx or 5xx.
func (m *Metrics) ErrorRatePercent() float64 {
	return percent(m.errors.Load(), m.requests.Load())
}

// HeapUsagePercent compares the last sampled heap in use to heap obtained
// from the OS.
func (m *Metrics) HeapUsagePercent() float64 {
	return percent(m.heapAlloc.Load(), m.heapSys.Load())
}

// ScoringFailurePercent is the share of scoring attempts that failed.
// Runs count completed attempts only.
func (m *Metrics) ScoringFailurePercent() float64 {
	failures := m.scoringFailures.Load()
	return percent(failures, m.scoringRuns.Load()+failures)
}

// GetStatusCodeDistribution returns request count by status code
func (m *Metrics) GetStatusCodeDistribution() map[int]int64 {
	return m.byStatus.snapshot()
}

// GetExternalAPIStats returns per-provider request and error counts.
func (m *Metrics) GetExternalAPIStats() map[string]interface{} {
	calls := m.externalCalls.snapshot()
	failures := m.externalErrors.snapshot()

	stats := make(map[string]interface{}, len(calls))
	for api, requests := range calls {
		errs := failures[api]
		stats[api] = map[string]interface{}{
			"requests":   requests,
			"errors":     errs,
			"error_rate": percent(errs, requests),
		}
	}
	return stats
}

// GetRateLimitStats returns rate limiting statistics
func (m *Metrics) GetRateLimitStats() map[string]interface{} {
	return map[string]interface{}{
		"ip_blocks":       m.rlIPBlocks.Load(),
		"user_blocks":     m.rlUserBlocks.Load(),
		"redis_errors":    m.rlRedisErrors.Load(),
		"fallback_count":  m.rlFallbacks.Load(),
		"endpoint_blocks": m.endpointBlocks.snapshot(),
	}
}

// GetStats returns current metrics statistics
func (m *Metrics) GetStats() map[string]interface{} {
	requests := m.requests.Load()
	errs := m.errors.Load()
	hits := m.cacheHits.Load()
	misses := m.cacheMisses.Load()
	heapAlloc := m.heapAlloc.Load()
	heapSys := m.heapSys.Load()

	return map[string]interface{}{
		"uptime_seconds":         time.Since(m.startTime).Seconds(),
		"start_time":             m.startTime.Format(time.RFC3339),
		"total_requests":         requests,
		"error_count":            errs,
		"error_rate_percent":     percent(errs, requests),
		"cache_hits":             hits,
		"cache_misses":           misses,
		"cache_hit_rate_percent": percent(hits, hits+misses),

		"scoring_runs":     m.scoringRuns.Load(),
		"scoring_failures": m.scoringFailures.Load(),
		"ideology_matches": m.ideologyMatches.Load(),
		"narrative_calls":  m.narrativeCalls.Load(),

		"avg_response_time_ms":     millis(m.latency.mean()),
		"p50_response_time_ms":     millis(m.latency.percentile(50)),
		"p95_response_time_ms":     millis(m.latency.percentile(95)),
		"p99_response_time_ms":     millis(m.latency.percentile(99)),
		"status_code_distribution": m.GetStatusCodeDistribution(),
		"external_api_stats":       m.GetExternalAPIStats(),

		"circuit_breaker_opens":  m.breakerOpens.Load(),
		"circuit_breaker_closes": m.breakerCloses.Load(),

		"go_gc_count":           m.gcCount.Load(),
		"go_gc_pause_total_ns":  m.gcPauseTotalNs.Load(),
		"go_heap_alloc_bytes":   heapAlloc,
		"go_heap_sys_bytes":     heapSys,
		"go_heap_usage_percent": percent(heapAlloc, heapSys),

		"rate_limit": m.GetRateLimitStats(),
	}
}

// Reset zeroes every counter and restarts the uptime clock.
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Int64{
		&m.requests, &m.errors, &m.cacheHits, &m.cacheMisses,
		&m.scoringRuns, &m.scoringFailures, &m.ideologyMatches, &m.narrativeCalls,
		&m.breakerOpens, &m.breakerCloses,
		&m.gcCount, &m.gcPauseTotalNs, &m.heapAlloc, &m.heapSys,
		&m.rlIPBlocks, &m.rlUserBlocks, &m.rlRedisErrors, &m.rlFallbacks,
	} {
		c.Store(0)
	}

	m.latency.reset()
	m.byStatus.reset()
	m.externalCalls.reset()
	m.externalErrors.reset()
	m.endpointBlocks.reset()
	m.startTime = time.Now()
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// counterMap is a mutex-guarded labelled counter.
type counterMap[K comparable] struct {
	mu     sync.RWMutex
	counts map[K]int64
}

func newCounterMap[K comparable]() *counterMap[K] {
	return &counterMap[K]{counts: make(map[K]int64)}
}

func (c *counterMap[K]) inc(key K) {
	c.mu.Lock()
	c.counts[key]++
	c.mu.Unlock()
}

func (c *counterMap[K]) snapshot() map[K]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[K]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c *counterMap[K]) reset() {
	c.mu.Lock()
	c.counts = make(map[K]int64)
	c.mu.Unlock()
}

// latencyWindow keeps the most recent samples in a ring.
type latencyWindow struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.mu.Lock()
	w.samples[w.next] = d
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
	w.mu.Unlock()
}

func (w *latencyWindow) values() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.next
	if w.full {
		n = len(w.samples)
	}
	out := make([]time.Duration, n)
	copy(out, w.samples[:n])
	return out
}

func (w *latencyWindow) percentile(p float64) time.Duration {
	times := w.values()
	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	index := int(float64(len(times)-1) * p / 100.0)
	if index < 0 {
		index = 0
	}
	if index >= len(times) {
		index = len(times) - 1
	}
	return times[index]
}

func (w *latencyWindow) mean() time.Duration {
	times := w.values()
	if len(times) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range times {
		total += d
	}
	return total / time.Duration(len(times))
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	w.next = 0
	w.full = false
	w.mu.Unlock()
}
