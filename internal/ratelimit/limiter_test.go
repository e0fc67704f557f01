package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
)

func newTestLimiter(t *testing.T, config Config) (*RateLimiter, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	limiter := NewRateLimiter(&RedisClient{}, config, metrics)
	t.Cleanup(limiter.Close)
	return limiter, metrics
}

func TestNewRedisClientWithoutAddress(t *testing.T) {
	client, err := NewRedisClient(context.Background(), RedisConfig{})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Error(t, client.HealthCheck(context.Background()))
	assert.Equal(t, false, client.PoolStats()["enabled"])
	assert.NoError(t, client.Close())
}

func TestRateLimiterFallbackMode(t *testing.T) {
	limiter, metrics := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()
	r := Rate{Limit: 5, Period: time.Minute}

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "test:user:123", r)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 4-i, result.Remaining)
	}

	result, err := limiter.Allow(ctx, "test:user:123", r)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, result.RetryAfter, 12*time.Second)

	assert.Equal(t, int64(6), metrics.GetRateLimitStats()["fallback_count"])
}

func TestRateLimiterBurstCapacity(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{IPLimit: 5, BurstMultiplier: 2})
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 15; i++ {
		result, err := limiter.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		if result.Allowed {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{NarrativeLimit: 1})
	ctx := context.Background()

	first, err := limiter.AllowNarrative(ctx, "user-a")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	again, err := limiter.AllowNarrative(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, again.Allowed)

	other, err := limiter.AllowNarrative(ctx, "user-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestNarrativeStatusDoesNotConsume(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{NarrativeLimit: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := limiter.NarrativeStatus(ctx, "user-a")
		require.NoError(t, err)
		assert.Equal(t, 3, status.Remaining)
	}

	_, err := limiter.AllowNarrative(ctx, "user-a")
	require.NoError(t, err)

	status, err := limiter.NarrativeStatus(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Remaining)
	// One spent unit of a weekly quota of three refills in about 56 hours.
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour/3), status.ResetAt, time.Hour)
}

func TestAllowRejectsInvalidRate(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultConfig())
	_, err := limiter.Allow(context.Background(), "k", Rate{Limit: 0, Period: time.Minute})
	assert.Error(t, err)
	_, err = limiter.Allow(context.Background(), "k", Rate{Limit: 1})
	assert.Error(t, err)
}

func TestCleanupDropsIdleLimiters(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "short", Rate{Limit: 10, Period: time.Second})
	require.NoError(t, err)
	_, err = limiter.AllowNarrative(ctx, "user-a")
	require.NoError(t, err)

	removed := limiter.cleanup(time.Now().Add(time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, limiter.GetStats()["fallback_limiters"])
}

func TestInvalidateUserResetsQuota(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{NarrativeLimit: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.AllowNarrative(ctx, "user-a")
		require.NoError(t, err)
	}
	blocked, err := limiter.AllowNarrative(ctx, "user-a")
	require.NoError(t, err)
	require.False(t, blocked.Allowed)

	require.NoError(t, limiter.ResetOnUpgrade(ctx, "user-a"))

	for i := 0; i < 2; i++ {
		result, err := limiter.AllowNarrative(ctx, "user-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d after reset", i+1)
	}
}

func TestInvalidateIP(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{IPLimit: 1, BurstMultiplier: 1})
	ctx := context.Background()
	endpoint := Rate{Limit: 1, Period: time.Minute}

	_, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	_, err = limiter.Allow(ctx, endpointKey("session", "10.0.0.1"), endpoint)
	require.NoError(t, err)
	_, err = limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)

	require.NoError(t, limiter.InvalidateIP(ctx, "10.0.0.1"))

	result, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, endpointKey("session", "10.0.0.1"), endpoint)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestInvalidateAll(t *testing.T) {
	limiter, _ := newTestLimiter(t, DefaultConfig())
	ctx := context.Background()

	_, _ = limiter.AllowIP(ctx, "10.0.0.1")
	_, _ = limiter.AllowNarrative(ctx, "user-a")
	require.NoError(t, limiter.InvalidateAll(ctx))
	assert.Equal(t, 0, limiter.GetStats()["fallback_limiters"])
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIPRateLimitMiddleware(t *testing.T) {
	limiter, metrics := newTestLimiter(t, Config{IPLimit: 2, BurstMultiplier: 1})

	router := gin.New()
	router.Use(limiter.IPRateLimitMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	assert.NotEmpty(t, w.Body.String())

	assert.Equal(t, int64(1), metrics.GetRateLimitStats()["ip_blocks"])
}

func TestNarrativeQuotaMiddleware(t *testing.T) {
	limiter, metrics := newTestLimiter(t, Config{NarrativeLimit: 1})

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	})
	router.Use(limiter.NarrativeQuotaMiddleware())
	router.POST("/narrative", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/narrative", nil)
		if user != "" {
			req.Header.Set("X-Test-User", user)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("first request passes", func(t *testing.T) {
		w := send("user-a")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-User-Remaining"))
	})

	t.Run("quota exhausted", func(t *testing.T) {
		w := send("user-a")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, int64(1), metrics.GetRateLimitStats()["user_blocks"])
	})

	t.Run("anonymous requests are not counted", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, send("").Code)
		assert.Equal(t, http.StatusOK, send("").Code)
	})
}

func TestEndpointRateLimitMiddleware(t *testing.T) {
	limiter, metrics := newTestLimiter(t, DefaultConfig())

	router := gin.New()
	router.POST("/session", limiter.EndpointRateLimitMiddleware("session", 1), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/session", nil))
	assert.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/session", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	blocks := metrics.GetRateLimitStats()["endpoint_blocks"].(map[string]int64)
	assert.Equal(t, int64(1), blocks["session"])
}

func TestHandleRateLimitStatus(t *testing.T) {
	limiter, _ := newTestLimiter(t, Config{NarrativeLimit: 4})
	_, err := limiter.AllowNarrative(context.Background(), "user-a")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/status", func(c *gin.Context) {
		c.Set("user_id", "user-a")
		c.Next()
	}, limiter.HandleRateLimitStatus())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		UserID    string `json:"user_id"`
		Narrative struct {
			Remaining int `json:"remaining"`
		} `json:"narrative"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user-a", body.UserID)
	assert.Equal(t, 3, body.Narrative.Remaining)
}
