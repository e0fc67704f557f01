// Package api is the HTTP surface of the quiz. Handlers translate requests
// into calls on the scoring service and the catalog, and map typed errors to
// status codes through internal/errors.
package api

import (
	"errors"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/ideoscope/internal/cache"
	"github.com/ZanzyTHEbar/ideoscope/internal/catalog"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	_ "github.com/ZanzyTHEbar/ideoscope/internal/docs"
	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/insights"
	"github.com/ZanzyTHEbar/ideoscope/internal/leaderboard"
	"github.com/ZanzyTHEbar/ideoscope/internal/middleware"
	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/narrative"
	"github.com/ZanzyTHEbar/ideoscope/internal/payments"
	"github.com/ZanzyTHEbar/ideoscope/internal/privacy"
	"github.com/ZanzyTHEbar/ideoscope/internal/ratelimit"
	"github.com/ZanzyTHEbar/ideoscope/internal/resilience"
	"github.com/ZanzyTHEbar/ideoscope/internal/security"
)

// Version is reported by /health.
const Version = "1.0.0"

// Deps are the services the handlers call into. Narrative, Payments and
// Redis may be disabled but must not be nil.
type Deps struct {
	DB            *database.DB
	Repo          *database.Repository
	Users         *database.UserService
	Insights      *insights.Service
	Catalog       *catalog.Store
	Localizer     *i18n.Localizer
	Narrative     *narrative.Client
	Payments      *payments.Service
	Privacy       *privacy.Service
	Leaderboard   *leaderboard.Service
	Alerts        *monitoring.AlertManager
	Limiter       *ratelimit.RateLimiter
	Redis         *ratelimit.RedisClient
	Degradation   *resilience.DegradationManager
	Breakers      *resilience.CircuitBreakerRegistry
	Metrics       *monitoring.Metrics
	Logger        *monitoring.Logger
	ResponseCache *cache.Cache[[]byte]
}

// Options tune the router.
type Options struct {
	Security      security.Config
	CookieName    string
	SecureCookie  bool
	SessionPerMin int
	ServiceName   string
	Tracing       bool
	Profiling     bool
	Compression   bool
}

// Handlers holds the route handlers.
type Handlers struct {
	Deps
	cookieName   string
	secureCookie bool
	compression  *middleware.CompressionMiddleware
}

// NewHandlers creates the handler set.
func NewHandlers(deps Deps, opts Options) *Handlers {
	cookieName := opts.CookieName
	if cookieName == "" {
		cookieName = security.DefaultCookieName
	}
	h := &Handlers{Deps: deps, cookieName: cookieName, secureCookie: opts.SecureCookie}
	if opts.Compression {
		h.compression = middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())
	}
	return h
}

// cachedPrefixes are the public catalog routes served from the response
// cache. They take the language from ?lang= only so the URI is a complete key.
var cachedPrefixes = []string{"/api/tests", "/api/categories", "/api/ideologies"}

// NewRouter builds the gin engine with the full middleware chain.
func NewRouter(h *Handlers, opts Options) *gin.Engine {
	r := gin.New()

	r.Use(monitoring.RequestIDMiddleware())
	if h.compression != nil {
		r.Use(h.compression.Handler())
	}
	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())
	r.Use(monitoring.MonitoringMiddleware(h.Metrics, h.Logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(h.Logger))
	if opts.Tracing {
		r.Use(monitoring.TracingMiddleware(opts.ServiceName))
	}

	r.Use(security.SecurityHeadersMiddleware(opts.Security.EnableHSTS))
	r.Use(security.CORS(opts.Security))
	r.Use(security.RequestTimeout(opts.Security.RequestTimeout))
	r.Use(security.ValidateContentType())
	r.Use(security.BodyLimit(opts.Security.MaxBodyBytes))
	r.Use(h.Limiter.IPRateLimitMiddleware())
	r.Use(security.SessionMiddleware(h.Users, h.cookieName))

	r.GET("/health", h.Health)
	r.GET("/metrics", h.MetricsStats)
	r.GET("/alerts", h.ListAlerts)
	r.POST("/alerts/:id/silence", h.SilenceAlert)
	r.POST("/circuit-breakers/reset", h.ResetCircuitBreakers)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	if h.ResponseCache != nil {
		api.Use(cache.ResponseMiddleware(h.ResponseCache, h.Metrics, cachedPrefixes...))
	}

	sessionLimit := opts.SessionPerMin
	if sessionLimit <= 0 {
		sessionLimit = 10
	}
	api.POST("/session", h.Limiter.EndpointRateLimitMiddleware("session", sessionLimit), h.CreateSession)

	api.GET("/tests", h.ListTests)
	api.GET("/tests/:testId/questions", h.ListQuestions)
	api.GET("/categories", h.ListCategories)
	api.GET("/ideologies", h.ListIdeologies)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/privacy/retention", h.RetentionPolicy)

	authed := api.Group("")
	authed.Use(security.RequireSession())
	{
		authed.PUT("/tests/:testId/progress", h.SaveProgress)
		authed.POST("/tests/:testId/results", h.ComputeResults)
		authed.GET("/insights", h.ListCompletedTests)
		authed.GET("/insights/:testId", h.GetInsights)
		authed.POST("/ideology", h.MatchIdeology)
		authed.GET("/ideology", h.LatestIdeology)
		authed.GET("/public-figures", h.PublicFigure)
		authed.POST("/narrative",
			security.RequirePro(h.Users, "narrative"),
			h.Limiter.NarrativeQuotaMiddleware(),
			h.GenerateNarrative,
		)
		authed.POST("/payment/create-session", h.CreateCheckout)
		authed.GET("/leaderboard/me", h.GetMyRank)
		authed.GET("/privacy/export", h.ExportData)
		authed.DELETE("/privacy/data", h.DeleteData)
	}

	api.POST("/payment/webhook", h.PaymentWebhook)
	api.GET("/rate-limit", h.Limiter.HandleRateLimitStatus())
	api.GET("/rate-limit/stats", h.Limiter.HandleRateLimitStats())

	if opts.Profiling {
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	return r
}

// respondError writes err as the JSON error envelope.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, database.ErrNotFound):
		appErr = apperrors.NewNotFoundError("Resource")
	case errors.Is(err, insights.ErrUnknownTest):
		appErr = apperrors.NewNotFoundError("Test")
	default:
		appErr = apperrors.ToAppError(err)
	}
	appErr.RequestID = c.GetString("request_id")
	apperrors.LogError(c, appErr)
	c.JSON(appErr.HTTPStatus, appErr)
}

// lang resolves the response language from ?lang= or Accept-Language.
func (h *Handlers) lang(c *gin.Context) string {
	if q := c.Query("lang"); q != "" {
		return h.Localizer.NormalizeLang(q)
	}
	return h.Localizer.FromAcceptLanguage(c.GetHeader("Accept-Language"))
}

// queryLang resolves the language from ?lang= only.
func (h *Handlers) queryLang(c *gin.Context) string {
	return h.Localizer.NormalizeLang(c.Query("lang"))
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
