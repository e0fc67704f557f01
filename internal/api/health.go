package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
	"github.com/ZanzyTHEbar/ideoscope/internal/resilience"
)

// Health godoc
// @Summary Service health
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ctx := c.Request.Context()

	status := "ok"
	code := http.StatusOK

	checks := gin.H{}
	if err := h.DB.HealthCheck(ctx); err != nil {
		checks["database"] = err.Error()
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case !h.Redis.IsEnabled():
		checks["redis"] = "disabled"
	case h.Redis.HealthCheck(ctx) != nil:
		// Rate limiting falls back to memory, so redis is not fatal.
		checks["redis"] = "unreachable"
		if status == "ok" {
			status = "degraded"
		}
	default:
		checks["redis"] = "ok"
	}

	checks["narrative"] = "disabled"
	if h.Narrative.Enabled() {
		checks["narrative"] = "enabled"
	}

	level := h.Degradation.OverallLevel()
	if level == resilience.LevelEmergency && code == http.StatusOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"version":   Version,
		"timestamp": timestamp(),
		"checks":    checks,
		"level":     level,
		"services":  h.Degradation.GetAllServiceHealth(),
		"alerts":    len(h.Alerts.GetActiveAlerts()),

		"circuit_breakers": h.Breakers.GetStats(),
	})
}

// MetricsStats godoc
// @Summary In-process metrics
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /metrics [get]
func (h *Handlers) MetricsStats(c *gin.Context) {
	response := gin.H{
		"metrics":       h.Metrics.GetStats(),
		"external_apis": h.Metrics.GetExternalAPIStats(),
		"database":      h.DB.GetPoolStats(),
		"redis":         h.Redis.PoolStats(),
		"rate_limit":    h.Limiter.GetStats(),
		"timestamp":     timestamp(),
	}
	if h.ResponseCache != nil {
		response["response_cache"] = h.ResponseCache.Stats()
	}
	if h.compression != nil {
		response["compression"] = h.compression.GetStats()
	}
	response["leaderboard_cache"] = h.Leaderboard.GetCacheStats()
	c.JSON(http.StatusOK, response)
}

// ListAlerts godoc
// @Summary Alerts raised from the in-process metrics
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /alerts [get]
func (h *Handlers) ListAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"alerts":    h.Alerts.GetAlerts(),
		"timestamp": timestamp(),
	})
}

// SilenceAlert godoc
// @Summary Stop notifications for a firing alert
// @Tags ops
// @Produce json
// @Param id path string true "Alert id"
// @Param duration query string false "Go duration, default 30m"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /alerts/{id}/silence [post]
func (h *Handlers) SilenceAlert(c *gin.Context) {
	d := 30 * time.Minute
	if raw := c.Query("duration"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			respondError(c, apperrors.NewValidationErrorWithMap("Invalid duration", map[string]string{
				"duration": "must be a positive Go duration such as 45m",
			}))
			return
		}
		d = parsed
	}

	id := c.Param("id")
	if !h.Alerts.Silence(id, d) {
		respondError(c, apperrors.NewNotFoundError("Active alert"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"silenced":  id,
		"until":     time.Now().Add(d).UTC().Format(time.RFC3339),
		"timestamp": timestamp(),
	})
}

// ResetCircuitBreakers godoc
// @Summary Close one named circuit breaker, or all of them
// @Tags ops
// @Produce json
// @Param name query string false "Breaker name, all when empty"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /circuit-breakers/reset [post]
func (h *Handlers) ResetCircuitBreakers(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		h.Breakers.ResetAll()
	} else {
		breaker, ok := h.Breakers.Get(name)
		if !ok {
			respondError(c, apperrors.NewNotFoundError("Circuit breaker"))
			return
		}
		breaker.Reset()
	}
	c.JSON(http.StatusOK, gin.H{
		"circuit_breakers": h.Breakers.GetStats(),
		"timestamp":        timestamp(),
	})
}
