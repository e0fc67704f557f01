package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
)

const (
	// Week is the narrative quota window.
	Week = 7 * 24 * time.Hour

	keyPrefix = "ratelimit:"
)

// Config holds the limits.
type Config struct {
	// IPLimit is requests per minute per client IP.
	IPLimit int
	// NarrativeLimit is narrative requests per week per user.
	NarrativeLimit int
	// BurstMultiplier scales the IP burst.
	BurstMultiplier int
	// CleanupInterval is how often idle fallback limiters are dropped.
	CleanupInterval time.Duration
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		IPLimit:         60,
		NarrativeLimit:  5,
		BurstMultiplier: 2,
		CleanupInterval: time.Hour,
	}
}

// Rate is a limit over a period. Burst defaults to Limit.
type Rate struct {
	Limit  int
	Period time.Duration
	Burst  int
}

func (r Rate) burst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return r.Limit
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type fallbackEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces limits in Redis with redis_rate and falls back to
// per-process token buckets when Redis is disabled or failing.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	metrics      *monitoring.Metrics

	fallbackLimiters map[string]*fallbackEntry
	fallbackMutex    sync.Mutex

	stop      chan struct{}
	closeOnce sync.Once
}

// NewRateLimiter creates a limiter. redisClient may be nil or disabled.
func NewRateLimiter(redisClient *RedisClient, config Config, metrics *monitoring.Metrics) *RateLimiter {
	defaults := DefaultConfig()
	if config.IPLimit <= 0 {
		config.IPLimit = defaults.IPLimit
	}
	if config.NarrativeLimit <= 0 {
		config.NarrativeLimit = defaults.NarrativeLimit
	}
	if config.BurstMultiplier <= 0 {
		config.BurstMultiplier = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		metrics:          metrics,
		fallbackLimiters: make(map[string]*fallbackEntry),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.Client())
	}

	go rl.cleanupLoop()
	return rl
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() { close(rl.stop) })
}

// Config returns the effective limits.
func (rl *RateLimiter) Config() Config {
	return rl.config
}

func ipKey(ip string) string {
	return keyPrefix + "ip:" + ip
}

func narrativeKey(userID string) string {
	return keyPrefix + "user:" + userID + ":narrative"
}

func endpointKey(endpoint, ip string) string {
	return fmt.Sprintf("%sendpoint:%s:%s", keyPrefix, endpoint, ip)
}

// IPRate is the per-minute client limit.
func (rl *RateLimiter) IPRate() Rate {
	return Rate{
		Limit:  rl.config.IPLimit,
		Period: time.Minute,
		Burst:  rl.config.IPLimit * rl.config.BurstMultiplier,
	}
}

// NarrativeRate is the weekly narrative quota. It has no burst beyond the
// quota itself.
func (rl *RateLimiter) NarrativeRate() Rate {
	return Rate{Limit: rl.config.NarrativeLimit, Period: Week}
}

// AllowIP consumes one request from the IP's per-minute budget.
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.Allow(ctx, ipKey(ip), rl.IPRate())
}

// AllowNarrative consumes one narrative from the user's weekly quota.
func (rl *RateLimiter) AllowNarrative(ctx context.Context, userID string) (*Result, error) {
	return rl.Allow(ctx, narrativeKey(userID), rl.NarrativeRate())
}

// NarrativeStatus reports the user's remaining quota without consuming it.
func (rl *RateLimiter) NarrativeStatus(ctx context.Context, userID string) (*Result, error) {
	return rl.allowN(ctx, narrativeKey(userID), rl.NarrativeRate(), 0)
}

// Allow consumes one request from key's budget.
func (rl *RateLimiter) Allow(ctx context.Context, key string, r Rate) (*Result, error) {
	return rl.allowN(ctx, key, r, 1)
}

func (rl *RateLimiter) allowN(ctx context.Context, key string, r Rate, n int) (*Result, error) {
	if r.Limit <= 0 || r.Period <= 0 {
		return nil, fmt.Errorf("invalid rate %d/%s", r.Limit, r.Period)
	}

	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, r, n)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.metrics != nil {
			rl.metrics.IncrementRateLimitRedisError()
		}
	}

	if rl.metrics != nil {
		rl.metrics.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, r, n), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, r Rate, n int) (*Result, error) {
	limit := redis_rate.Limit{
		Rate:   r.Limit,
		Burst:  r.burst(),
		Period: r.Period,
	}

	res, err := rl.redisLimiter.AllowN(ctx, key, limit, n)
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	result := &Result{
		Allowed:   n == 0 || res.Allowed > 0,
		Limit:     r.Limit,
		Remaining: res.Remaining,
		ResetAt:   time.Now().Add(res.ResetAfter),
	}
	if !result.Allowed && res.RetryAfter > 0 {
		result.RetryAfter = res.RetryAfter
	}
	return result, nil
}

func (rl *RateLimiter) allowFallback(key string, r Rate, n int) *Result {
	now := time.Now()

	rl.fallbackMutex.Lock()
	entry, ok := rl.fallbackLimiters[key]
	if !ok {
		perSecond := rate.Limit(float64(r.Limit) / r.Period.Seconds())
		entry = &fallbackEntry{limiter: rate.NewLimiter(perSecond, r.burst())}
		rl.fallbackLimiters[key] = entry
	}
	entry.lastSeen = now
	rl.fallbackMutex.Unlock()

	allowed := n == 0 || entry.limiter.AllowN(now, n)
	tokens := entry.limiter.TokensAt(now)

	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	// Time until one token is available, and until the bucket is full.
	perToken := time.Duration(float64(time.Second) / float64(entry.limiter.Limit()))
	result := &Result{
		Allowed:   allowed,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration((float64(r.burst()) - tokens) * float64(perToken))),
	}
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) * float64(perToken))
		if result.RetryAfter <= 0 {
			result.RetryAfter = time.Second
		}
	}
	return result
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.cleanup(now)
		}
	}
}

// cleanup drops fallback limiters idle for longer than a full window.
func (rl *RateLimiter) cleanup(now time.Time) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	removed := 0
	for key, entry := range rl.fallbackLimiters {
		limit := entry.limiter.Limit()
		if limit <= 0 {
			continue
		}
		refill := time.Duration(float64(entry.limiter.Burst()) / float64(limit) * float64(time.Second))
		if now.Sub(entry.lastSeen) > refill {
			delete(rl.fallbackLimiters, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("Dropped idle fallback rate limiters", "count", removed)
	}
	return removed
}

// GetStats returns limiter statistics.
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	return map[string]interface{}{
		"redis_enabled":      rl.redisClient.IsEnabled(),
		"fallback_limiters":  fallbackCount,
		"redis_pool":         rl.redisClient.PoolStats(),
		"ip_per_minute":      rl.config.IPLimit,
		"narrative_per_week": rl.config.NarrativeLimit,
	}
}
