package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/security"
)

// CreateSession godoc
// @Summary Start an anonymous session
// @Description Reuses a valid session when one is presented.
// @Tags session
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Success 200 {object} map[string]interface{}
// @Router /api/session [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()

	if userID := security.UserID(c); userID != "" {
		user, err := h.Users.GetUser(ctx, userID)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"user_id": user.ID, "is_pro": user.IsPro})
			return
		}
		if !errors.Is(err, database.ErrNotFound) {
			respondError(c, err)
			return
		}
	}

	user, token, err := h.Users.StartSession(ctx, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		respondError(c, err)
		return
	}

	ttl := h.Users.SessionTTL()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, int(ttl.Seconds()), "/", "", h.secureCookie, true)

	c.JSON(http.StatusCreated, gin.H{
		"user_id":    user.ID,
		"token":      token,
		"is_pro":     user.IsPro,
		"expires_at": time.Now().Add(ttl).UTC().Format(time.RFC3339),
	})
}

type narrativeRequest struct {
	scoring.ScoreInput
	Lang string `json:"lang"`
}

// GenerateNarrative godoc
// @Summary Generate a written analysis of axis scores
// @Description Pro only, limited per week.
// @Tags narrative
// @Accept json
// @Produce json
// @Success 200 {object} narrative.Analysis
// @Failure 400 {object} map[string]interface{}
// @Failure 402 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Router /api/narrative [post]
func (h *Handlers) GenerateNarrative(c *gin.Context) {
	var req narrativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError("Invalid request body", err.Error()))
		return
	}

	scores, err := req.Vector()
	if err != nil {
		respondError(c, err)
		return
	}

	if !h.Narrative.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "narrative provider not configured"})
		return
	}

	lang := req.Lang
	if lang == "" {
		lang = h.lang(c)
	}

	// Detached from the request deadline; the client applies its own timeout.
	analysis, err := h.Narrative.Analyze(context.WithoutCancel(c.Request.Context()), scores, lang)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, analysis)
}

// CreateCheckout godoc
// @Summary Create a Stripe checkout session for the pro plan
// @Tags payment
// @Produce json
// @Success 200 {object} payments.CheckoutSession
// @Failure 503 {object} map[string]interface{}
// @Router /api/payment/create-session [post]
func (h *Handlers) CreateCheckout(c *gin.Context) {
	if !h.Payments.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
		return
	}

	session, err := h.Payments.CreateCheckoutSession(c.Request.Context(), security.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// PaymentWebhook godoc
// @Summary Receive Stripe events
// @Tags payment
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/payment/webhook [post]
func (h *Handlers) PaymentWebhook(c *gin.Context) {
	if !h.Payments.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "payment system not configured"})
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, apperrors.NewValidationError("Failed to read request body", err.Error()))
		return
	}

	eventType, err := h.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "type": eventType})
}
