package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/leaderboard"
	"github.com/ZanzyTHEbar/ideoscope/internal/security"
)

func leaderboardPeriod(c *gin.Context) (string, bool) {
	period := c.DefaultQuery("period", leaderboard.PeriodAllTime)
	if _, err := leaderboard.PeriodStart(period, time.Now()); err != nil {
		respondError(c, apperrors.NewValidationErrorWithMap("Invalid period", map[string]string{
			"period": "must be one of daily, weekly, monthly, all_time",
		}))
		return "", false
	}
	return period, true
}

// GetLeaderboard godoc
// @Summary Rank ideologies by how many users currently match them
// @Description Each user counts once, under their most recent match.
// @Tags leaderboard
// @Produce json
// @Param period query string false "daily, weekly, monthly or all_time" default(all_time)
// @Param limit query int false "Entries to return, at most 100" default(10)
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} leaderboard.Response
// @Failure 400 {object} map[string]interface{}
// @Router /api/leaderboard [get]
func (h *Handlers) GetLeaderboard(c *gin.Context) {
	period, ok := leaderboardPeriod(c)
	if !ok {
		return
	}

	limit := leaderboard.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, apperrors.NewValidationError("limit must be a positive integer", raw))
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	board, err := h.Leaderboard.GetLeaderboard(ctx, period, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	lang := h.lang(c)
	// The board is shared with the cache; localize a copy.
	localized := *board
	localized.Entries = make([]leaderboard.Entry, len(board.Entries))
	for i, entry := range board.Entries {
		entry.Name = h.Localizer.Localize(ctx, i18n.EntityIdeology, entry.IdeologyID, "name", lang, entry.Name)
		localized.Entries[i] = entry
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard": localized,
		"lang":        lang,
	})
}

// GetMyRank godoc
// @Summary Place the user's current ideology on the leaderboard
// @Tags leaderboard
// @Produce json
// @Param period query string false "daily, weekly, monthly or all_time" default(all_time)
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} leaderboard.UserRank
// @Failure 404 {object} map[string]interface{}
// @Router /api/leaderboard/me [get]
func (h *Handlers) GetMyRank(c *gin.Context) {
	period, ok := leaderboardPeriod(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	lang := h.lang(c)

	rank, err := h.Leaderboard.GetUserRank(ctx, security.UserID(c), period)
	switch {
	case errors.Is(err, database.ErrNotFound):
		h.respondNoIdeology(c, lang)
		return
	case errors.Is(err, leaderboard.ErrNotRanked):
		respondError(c, apperrors.NewNotFoundError("Leaderboard rank"))
		return
	case err != nil:
		respondError(c, err)
		return
	}

	localized := *rank
	localized.Name = h.Localizer.Localize(ctx, i18n.EntityIdeology, rank.IdeologyID, "name", lang, rank.Name)
	c.JSON(http.StatusOK, gin.H{
		"rank": localized,
		"lang": lang,
	})
}
