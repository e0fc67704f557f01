package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
)

// guard is one limit check wired into a middleware.
type guard struct {
	// headerPrefix names the X-RateLimit headers this limit reports.
	headerPrefix string
	// subject identifies the caller; an empty subject skips the check.
	subject func(c *gin.Context) string
	check   func(ctx context.Context, subject string) (*Result, error)
	blocked func()
	logKey  string
}

// handler never blocks a request because the limiter itself failed.
func (g guard) handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := g.subject(c)
		if subject == "" {
			c.Next()
			return
		}

		result, err := g.check(c.Request.Context(), subject)
		if err != nil {
			slog.Error("Rate limit check failed", "limit", g.headerPrefix, g.logKey, redact(g.logKey, subject), "error", err)
			c.Next()
			return
		}

		c.Header(g.headerPrefix+"-Limit", strconv.Itoa(result.Limit))
		c.Header(g.headerPrefix+"-Remaining", strconv.Itoa(result.Remaining))
		c.Header(g.headerPrefix+"-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if result.Allowed {
			c.Next()
			return
		}
		if g.blocked != nil {
			g.blocked()
		}
		reject(c, result)
	}
}

func reject(c *gin.Context, result *Result) {
	secs := max(1, int(result.RetryAfter.Round(time.Second)/time.Second))
	c.Header("Retry-After", strconv.Itoa(secs))

	appErr := apperrors.NewRateLimitError(strconv.Itoa(secs) + "s")
	appErr.RequestID = c.GetString("request_id")
	c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
}

// IPRateLimitMiddleware limits every request per client IP.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return guard{
		headerPrefix: "X-RateLimit",
		subject:      (*gin.Context).ClientIP,
		check:        rl.AllowIP,
		blocked:      rl.count(func() { rl.metrics.IncrementRateLimitIPBlock() }),
		logKey:       "ip",
	}.handler()
}

// NarrativeQuotaMiddleware consumes one unit of the weekly narrative quota
// of the authenticated user. It must run after the session middleware.
func (rl *RateLimiter) NarrativeQuotaMiddleware() gin.HandlerFunc {
	return guard{
		headerPrefix: "X-RateLimit-User",
		subject:      func(c *gin.Context) string { return c.GetString("user_id") },
		check:        rl.AllowNarrative,
		blocked:      rl.count(func() { rl.metrics.IncrementRateLimitUserBlock() }),
		logKey:       "user_id",
	}.handler()
}

// EndpointRateLimitMiddleware applies a separate per-minute limit per IP to
// one endpoint.
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	r := Rate{Limit: limit, Period: time.Minute}
	return guard{
		headerPrefix: "X-RateLimit-Endpoint",
		subject:      (*gin.Context).ClientIP,
		check: func(ctx context.Context, ip string) (*Result, error) {
			return rl.Allow(ctx, endpointKey(endpoint, ip), r)
		},
		blocked: rl.count(func() { rl.metrics.IncrementRateLimitEndpoint(endpoint) }),
		logKey:  "ip",
	}.handler()
}

// count returns inc, or nil when the limiter has no metrics.
func (rl *RateLimiter) count(inc func()) func() {
	if rl.metrics == nil {
		return nil
	}
	return inc
}

func redact(kind, subject string) string {
	if kind == "user_id" {
		return shortID(subject)
	}
	return subject
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
