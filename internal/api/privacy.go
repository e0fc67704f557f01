package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/security"
)

// ExportData godoc
// @Summary Download everything stored about the current user
// @Tags privacy
// @Produce json
// @Success 200 {object} privacy.Export
// @Router /api/privacy/export [get]
func (h *Handlers) ExportData(c *gin.Context) {
	export, err := h.Privacy.ExportUserData(c.Request.Context(), security.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="ideoscope-export.json"`)
	c.JSON(http.StatusOK, export)
}

// DeleteData godoc
// @Summary Erase the current user's answers, insights and match history
// @Description Payment records are kept; the session stays valid.
// @Tags privacy
// @Produce json
// @Success 200 {object} privacy.DeletionResult
// @Router /api/privacy/data [delete]
func (h *Handlers) DeleteData(c *gin.Context) {
	result, err := h.Privacy.DeleteUserData(c.Request.Context(), security.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Ideologies > 0 {
		h.Leaderboard.Invalidate()
	}
	h.Logger.SecurityLogger("user_data_deleted", c.ClientIP(), c.GetHeader("User-Agent"), map[string]interface{}{
		"progress":   result.Progress,
		"insights":   result.Insights,
		"ideologies": result.Ideologies,
	})

	c.JSON(http.StatusOK, gin.H{
		"deleted":   result,
		"timestamp": timestamp(),
	})
}

// RetentionPolicy godoc
// @Summary Describe what is stored and for how long
// @Tags privacy
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/privacy/retention [get]
func (h *Handlers) RetentionPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, h.Privacy.GetDataRetentionInfo())
}
