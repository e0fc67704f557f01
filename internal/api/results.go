package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/insights"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/security"
)

// progressRequest carries answers keyed by question id. Each value is a
// Likert key ("agree") or a number in [-1, 1].
type progressRequest struct {
	Answers map[string]json.RawMessage `json:"answers" binding:"required"`
}

type insightView struct {
	Category   scoring.Axis        `json:"category"`
	CategoryID int64               `json:"category_id"`
	Name       string              `json:"name"`
	LeftLabel  string              `json:"left_label"`
	RightLabel string              `json:"right_label"`
	Band       scoring.InsightBand `json:"description"`
	BandLabel  string              `json:"band_label"`
	Percentage int                 `json:"percentage"`
	Insight    string              `json:"insight"`
	CreatedAt  string              `json:"created_at"`
}

func parseResponse(raw json.RawMessage) (float64, error) {
	var option string
	if err := json.Unmarshal(raw, &option); err == nil {
		return scoring.ParseLikert(option)
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("answer must be a likert option or a number")
	}
	if value < scoring.StronglyDisagree || value > scoring.StronglyAgree {
		return 0, fmt.Errorf("answer %v outside [-1, 1]", value)
	}
	return value, nil
}

// SaveProgress godoc
// @Summary Store the user's answers for a test
// @Description Replaces the stored answer set and reopens a completed attempt.
// @Tags results
// @Accept json
// @Produce json
// @Param testId path int true "Test ID"
// @Success 200 {object} database.TestProgress
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/tests/{testId}/progress [put]
func (h *Handlers) SaveProgress(c *gin.Context) {
	testID, ok := parseID(c, "testId")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("Invalid request body", err.Error()))
		return
	}

	questions, err := h.Repo.ListQuestions(ctx, testID)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(questions) == 0 {
		respondError(c, insights.ErrUnknownTest)
		return
	}
	known := make(map[int64]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}

	answers := make(map[int64]float64, len(req.Answers))
	invalid := map[string]string{}
	for key, raw := range req.Answers {
		questionID, err := strconv.ParseInt(key, 10, 64)
		if err != nil || !known[questionID] {
			invalid[key] = "unknown question"
			continue
		}
		value, err := parseResponse(raw)
		if err != nil {
			invalid[key] = err.Error()
			continue
		}
		answers[questionID] = value
	}
	if len(invalid) > 0 {
		respondError(c, apperrors.NewValidationErrorWithMap("Invalid answers", invalid))
		return
	}

	progress, err := h.Repo.SaveProgress(ctx, security.UserID(c), testID, answers)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"progress": progress,
		"answered": len(answers),
		"total":    len(questions),
	})
}

// ComputeResults godoc
// @Summary Score the user's answers for a test
// @Description Without forceUpdate an existing result is returned unchanged.
// @Tags results
// @Produce json
// @Param testId path int true "Test ID"
// @Param forceUpdate query bool false "Recompute even if results exist"
// @Success 200 {object} insights.Result
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/tests/{testId}/results [post]
func (h *Handlers) ComputeResults(c *gin.Context) {
	testID, ok := parseID(c, "testId")
	if !ok {
		return
	}

	force := false
	if raw := c.Query("forceUpdate"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, apperrors.NewValidationError("Invalid forceUpdate", raw))
			return
		}
		force = v
	}

	result, err := h.Insights.Run(c.Request.Context(), security.UserID(c), testID, force)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListCompletedTests godoc
// @Summary List tests the user has results for
// @Tags results
// @Produce json
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} map[string]interface{}
// @Router /api/insights [get]
func (h *Handlers) ListCompletedTests(c *gin.Context) {
	ctx := c.Request.Context()
	lang := h.lang(c)

	ids, err := h.Repo.ListCompletedTests(ctx, security.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	snap, err := h.Catalog.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	tests := make([]testView, 0, len(ids))
	for _, id := range ids {
		t, ok := snap.Test(id)
		if !ok {
			continue
		}
		tests = append(tests, testView{
			ID:            t.ID,
			Name:          h.Localizer.Localize(ctx, i18n.EntityTest, t.ID, "name", lang, t.Name),
			Description:   h.Localizer.Localize(ctx, i18n.EntityTest, t.ID, "description", lang, t.Description),
			QuestionCount: t.QuestionCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tests": tests, "lang": lang})
}

// GetInsights godoc
// @Summary Get the stored insights of a test
// @Tags results
// @Produce json
// @Param testId path int true "Test ID"
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/insights/{testId} [get]
func (h *Handlers) GetInsights(c *gin.Context) {
	testID, ok := parseID(c, "testId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	lang := h.lang(c)

	records, err := h.Repo.ListInsights(ctx, security.UserID(c), testID)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(records) == 0 {
		respondError(c, apperrors.NewNotFoundError("Insights"))
		return
	}

	snap, err := h.Catalog.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	texts := make(map[int64]string, len(snap.Insights))
	for _, e := range snap.Insights {
		texts[e.ID] = e.InsightText
	}

	views := make([]insightView, len(records))
	for i, rec := range records {
		view := insightView{
			Category:   rec.Category,
			CategoryID: rec.CategoryID,
			Band:       rec.Band,
			BandLabel:  h.Localizer.BandLabel(rec.Band, lang),
			Percentage: rec.Percentage,
			Insight:    h.Localizer.Localize(ctx, i18n.EntityInsight, rec.InsightID, "insight", lang, texts[rec.InsightID]),
			CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		}
		if cat, ok := snap.Category(rec.Category); ok {
			cv := h.localizeCategory(c, cat, lang)
			view.Name, view.LeftLabel, view.RightLabel = cv.Name, cv.LeftLabel, cv.RightLabel
		}
		views[i] = view
	}

	c.JSON(http.StatusOK, gin.H{"test_id": testID, "insights": views, "lang": lang})
}

// MatchIdeology godoc
// @Summary Match submitted scores to the nearest ideology
// @Tags ideology
// @Accept json
// @Produce json
// @Param scores body scoring.ScoreInput true "Axis scores in [0, 100]"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/ideology [post]
func (h *Handlers) MatchIdeology(c *gin.Context) {
	var input scoring.ScoreInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, apperrors.NewValidationError(h.Localizer.Message(i18n.MsgMissingFields, h.lang(c)), err.Error()))
		return
	}

	result, err := h.Insights.MatchScores(c.Request.Context(), security.UserID(c), input)
	if err != nil {
		respondError(c, err)
		return
	}

	lang := h.lang(c)
	c.JSON(http.StatusOK, gin.H{
		"ideology": gin.H{
			"sequence_id": result.SequenceID,
			"id":          result.ID,
			"name":        h.Localizer.Localize(c.Request.Context(), i18n.EntityIdeology, result.ID, "name", lang, result.Name),
			"distance":    result.Distance,
		},
		"lang": lang,
	})
}

// LatestIdeology godoc
// @Summary Get the user's most recent ideology match
// @Tags ideology
// @Produce json
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/ideology [get]
func (h *Handlers) LatestIdeology(c *gin.Context) {
	ctx := c.Request.Context()
	lang := h.lang(c)

	record, err := h.Insights.LatestIdeology(ctx, security.UserID(c))
	if errors.Is(err, database.ErrNotFound) {
		h.respondNoIdeology(c, lang)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ideology": gin.H{
			"sequence_id": record.SequenceID,
			"id":          record.IdeologyID,
			"name":        h.Localizer.Localize(ctx, i18n.EntityIdeology, record.IdeologyID, "name", lang, record.IdeologyName),
			"distance":    record.Distance,
			"test_id":     record.TestID,
			"created_at":  record.CreatedAt,
		},
		"lang": lang,
	})
}

func (h *Handlers) respondNoIdeology(c *gin.Context, lang string) {
	appErr := apperrors.NewNotFoundError("Ideology")
	appErr.ErrBuilder = appErr.ErrBuilder.WithMsg(h.Localizer.Message(i18n.MsgNoIdeology, lang))
	respondError(c, appErr)
}

// PublicFigure godoc
// @Summary Get a public figure sharing the user's ideology
// @Description Picks uniformly among figures sharing the ideology. substituted
// @Description is true when none do and the lowest-id figure was returned.
// @Tags ideology
// @Produce json
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/public-figures [get]
func (h *Handlers) PublicFigure(c *gin.Context) {
	ctx := c.Request.Context()
	lang := h.lang(c)

	match, err := h.Insights.PublicFigure(ctx, security.UserID(c))
	if errors.Is(err, database.ErrNotFound) {
		h.respondNoIdeology(c, lang)
		return
	}
	var noFigures *scoring.NoPublicFiguresError
	if errors.As(err, &noFigures) {
		respondError(c, apperrors.NewNotFoundError("Public figure"))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{
		"figure": gin.H{
			"id":          match.Figure.ID,
			"name":        match.Figure.Name,
			"ideology_id": match.Figure.IdeologyID,
		},
		"substituted": match.Substituted,
		"lang":        lang,
	}
	if snap, err := h.Catalog.Snapshot(ctx); err == nil {
		if ideo, ok := snap.Ideology(match.Figure.IdeologyID); ok {
			response["ideology"] = h.Localizer.Localize(ctx, i18n.EntityIdeology, ideo.ID, "name", lang, ideo.Name)
		}
	}
	if match.Substituted {
		response["note"] = h.Localizer.Message(i18n.MsgFigureFallbackNote, lang)
	}

	c.JSON(http.StatusOK, response)
}
