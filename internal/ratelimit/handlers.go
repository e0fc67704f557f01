package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HandleRateLimitStatus reports the caller's limits and, for a session, the
// remaining narrative quota.
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{
			"ip": c.ClientIP(),
			"limits": gin.H{
				"ip_per_minute":      rl.config.IPLimit,
				"narrative_per_week": rl.config.NarrativeLimit,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		if userID := c.GetString("user_id"); userID != "" {
			status["user_id"] = userID
			if result, err := rl.NarrativeStatus(c.Request.Context(), userID); err == nil {
				status["narrative"] = gin.H{
					"remaining": result.Remaining,
					"reset_at":  result.ResetAt.Unix(),
				}
			}
		}

		c.JSON(http.StatusOK, status)
	}
}

// HandleRateLimitStats exposes limiter and metrics counters.
func (rl *RateLimiter) HandleRateLimitStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := gin.H{
			"limiter":   rl.GetStats(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if rl.metrics != nil {
			response["metrics"] = rl.metrics.GetRateLimitStats()
		}
		c.JSON(http.StatusOK, response)
	}
}
