package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/insights"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// likertOptions are the answer keys a client may send, strongest agreement
// first.
var likertOptions = []string{"strongly_agree", "agree", "neutral", "disagree", "strongly_disagree"}

type testView struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	QuestionCount int    `json:"question_count"`
}

type questionView struct {
	ID        int64  `json:"id"`
	Question  string `json:"question"`
	SortOrder int    `json:"sort_order"`
}

type categoryView struct {
	ID         int64        `json:"id"`
	Axis       scoring.Axis `json:"axis"`
	Name       string       `json:"name"`
	LeftLabel  string       `json:"left_label"`
	RightLabel string       `json:"right_label"`
}

type ideologyView struct {
	ID     int64                   `json:"id"`
	Name   string                  `json:"name"`
	Scores scoring.AxisScoreVector `json:"scores"`
}

// parseID reads a positive integer path parameter. It writes a 400 and
// returns false when the value is malformed.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperrors.NewValidationError("Invalid "+name, c.Param(name)))
		return 0, false
	}
	return id, true
}

// ListTests godoc
// @Summary List available tests
// @Tags catalog
// @Produce json
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} map[string]interface{}
// @Router /api/tests [get]
func (h *Handlers) ListTests(c *gin.Context) {
	ctx := c.Request.Context()
	lang := h.queryLang(c)

	snap, err := h.Catalog.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	tests := make([]testView, 0, len(snap.Tests))
	for _, t := range snap.Tests {
		tests = append(tests, testView{
			ID:            t.ID,
			Name:          h.Localizer.Localize(ctx, i18n.EntityTest, t.ID, "name", lang, t.Name),
			Description:   h.Localizer.Localize(ctx, i18n.EntityTest, t.ID, "description", lang, t.Description),
			QuestionCount: t.QuestionCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tests": tests, "lang": lang})
}

// ListQuestions godoc
// @Summary List the ordered questions of a test
// @Tags catalog
// @Produce json
// @Param testId path int true "Test ID"
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/tests/{testId}/questions [get]
func (h *Handlers) ListQuestions(c *gin.Context) {
	testID, ok := parseID(c, "testId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	lang := h.queryLang(c)

	questions, err := h.Repo.ListQuestions(ctx, testID)
	if err != nil {
		respondError(c, err)
		return
	}
	if len(questions) == 0 {
		respondError(c, insights.ErrUnknownTest)
		return
	}

	views := make([]questionView, len(questions))
	for i, q := range questions {
		views[i] = questionView{
			ID:        q.ID,
			Question:  h.Localizer.Localize(ctx, i18n.EntityQuestion, q.ID, "question", lang, q.Text),
			SortOrder: q.SortOrder,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"test_id":   testID,
		"questions": views,
		"options":   likertOptions,
		"lang":      lang,
	})
}

// ListCategories godoc
// @Summary List the scoring axes
// @Description With testId, only the axes the test's questions touch.
// @Tags catalog
// @Produce json
// @Param lang query string false "Language (en, es)"
// @Param testId query int false "Restrict to one test"
// @Success 200 {object} map[string]interface{}
// @Router /api/categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	ctx := c.Request.Context()
	lang := h.queryLang(c)

	snap, err := h.Catalog.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	var touched map[scoring.Axis]bool
	if raw := c.Query("testId"); raw != "" {
		testID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || testID <= 0 {
			respondError(c, apperrors.NewValidationError("Invalid testId", raw))
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
		touched = map[scoring.Axis]bool{}
		for _, q := range questions {
			for axis, w := range q.Effect {
				if w != 0 {
					touched[axis] = true
				}
			}
		}
	}

	categories := make([]categoryView, 0, len(snap.Categories))
	for _, cat := range snap.Categories {
		if touched != nil && !touched[cat.Axis] {
			continue
		}
		categories = append(categories, h.localizeCategory(c, cat, lang))
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories, "lang": lang})
}

func (h *Handlers) localizeCategory(c *gin.Context, cat database.Category, lang string) categoryView {
	ctx := c.Request.Context()
	return categoryView{
		ID:         cat.ID,
		Axis:       cat.Axis,
		Name:       h.Localizer.Localize(ctx, i18n.EntityCategory, cat.ID, "name", lang, cat.Name),
		LeftLabel:  h.Localizer.Localize(ctx, i18n.EntityCategory, cat.ID, "left_label", lang, cat.LeftLabel),
		RightLabel: h.Localizer.Localize(ctx, i18n.EntityCategory, cat.ID, "right_label", lang, cat.RightLabel),
	}
}

// ListIdeologies godoc
// @Summary List the reference ideologies
// @Tags ideology
// @Produce json
// @Param lang query string false "Language (en, es)"
// @Success 200 {object} map[string]interface{}
// @Router /api/ideologies [get]
func (h *Handlers) ListIdeologies(c *gin.Context) {
	ctx := c.Request.Context()
	lang := h.queryLang(c)

	snap, err := h.Catalog.Snapshot(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	ideologies := make([]ideologyView, len(snap.Ideologies))
	for i, ideo := range snap.Ideologies {
		ideologies[i] = ideologyView{
			ID:     ideo.ID,
			Name:   h.Localizer.Localize(ctx, i18n.EntityIdeology, ideo.ID, "name", lang, ideo.Name),
			Scores: ideo.ScoreVector,
		}
	}

	c.JSON(http.StatusOK, gin.H{"ideologies": ideologies, "lang": lang})
}
