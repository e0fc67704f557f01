package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/ideoscope/internal/cache"
	"github.com/ZanzyTHEbar/ideoscope/internal/catalog"
	"github.com/ZanzyTHEbar/ideoscope/internal/database"
	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/insights"
	"github.com/ZanzyTHEbar/ideoscope/internal/leaderboard"
	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/narrative"
	"github.com/ZanzyTHEbar/ideoscope/internal/payments"
	"github.com/ZanzyTHEbar/ideoscope/internal/privacy"
	"github.com/ZanzyTHEbar/ideoscope/internal/ratelimit"
	"github.com/ZanzyTHEbar/ideoscope/internal/resilience"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/security"
)

type testServer struct {
	router *gin.Engine
	repo   *database.Repository
	users  *database.UserService
	alerts *monitoring.AlertManager

	breaker *resilience.CircuitBreaker
}

func newTestServer(t *testing.T, narrativeEndpoint string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := database.NewDB(database.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := database.NewRepository(db)
	_, err = repo.SeedIfEmpty(ctx)
	require.NoError(t, err)

	logger := monitoring.NewLoggerTo(io.Discard, 0)
	metrics := monitoring.NewMetrics()

	store := catalog.NewStore(repo, time.Minute)
	t.Cleanup(store.Close)

	localizer, err := i18n.NewLocalizer(repo, i18n.LangEnglish, time.Minute)
	require.NoError(t, err)
	t.Cleanup(localizer.Close)

	engine := scoring.NewEngine(scoring.Config{MissingAnswerPolicy: scoring.MissingAnswerReject, Seed: 7})
	users := database.NewUserService(repo, "test-secret", time.Hour)

	redisClient, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisConfig{})
	require.NoError(t, err)
	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimit:         1000,
		NarrativeLimit:  2,
		BurstMultiplier: 1,
		CleanupInterval: time.Hour,
	}, metrics)
	t.Cleanup(limiter.Close)

	degradation := resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	degradation.RegisterService(narrative.APIName(), nil, true)

	breakers := resilience.NewCircuitBreakerRegistry()
	breaker := breakers.GetOrCreate(narrative.APIName(), resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
		SuccessThreshold: 1,
	})

	pool := resilience.NewConnectionPool(resilience.PoolConfig{
		MaxActive: 2,
		Retry: resilience.RetryConfig{
			MaxAttempts:   1,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1,
		},
	}, breaker)
	t.Cleanup(func() { _ = pool.Close() })

	apiKey := ""
	if narrativeEndpoint != "" {
		apiKey = "test-key"
	}
	narrativeClient := narrative.NewClient(narrative.Config{
		APIKey:   apiKey,
		Endpoint: narrativeEndpoint,
		Timeout:  5 * time.Second,
	}, pool, localizer, logger, metrics, degradation)

	responseCache := cache.NewCache[[]byte](time.Minute)
	t.Cleanup(responseCache.Close)

	board := leaderboard.NewService(db, repo, time.Minute)
	t.Cleanup(board.Close)

	alerts := monitoring.NewAlertManager(logger, 0)
	alerts.AddRule(monitoring.AlertRule{
		Name:      "AlwaysFiring",
		Severity:  monitoring.SeverityInfo,
		Operator:  "gte",
		Threshold: 0,
		Value:     func() float64 { return 1 },
	})

	opts := Options{Security: security.DefaultConfig(), ServiceName: "ideoscope-test"}
	h := NewHandlers(Deps{
		DB:            db,
		Repo:          repo,
		Users:         users,
		Insights:      insights.NewService(repo, store, engine, logger, metrics),
		Catalog:       store,
		Localizer:     localizer,
		Narrative:     narrativeClient,
		Payments:      payments.NewService(payments.Config{}, users, limiter, nil),
		Privacy:       privacy.NewService(db, repo, 90),
		Leaderboard:   board,
		Alerts:        alerts,
		Limiter:       limiter,
		Redis:         redisClient,
		Degradation:   degradation,
		Breakers:      breakers,
		Metrics:       metrics,
		Logger:        logger,
		ResponseCache: responseCache,
	}, opts)

	return &testServer{
		router:  NewRouter(h, opts),
		repo:    repo,
		users:   users,
		alerts:  alerts,
		breaker: breaker,
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) session(t *testing.T) (string, string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/session", "", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.UserID, resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func allAnswers(option string) map[string]any {
	answers := map[string]any{}
	for id := 1; id <= 16; id++ {
		answers[strconv.Itoa(id)] = option
	}
	return map[string]any{"answers": answers}
}

func TestCreateSession(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodPost, "/api/session", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, security.DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	body := decode(t, w)
	assert.Equal(t, false, body["is_pro"])
	token := body["token"].(string)

	t.Run("existing session is reused", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/session", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, body["user_id"], decode(t, w)["user_id"])
	})
}

func TestSessionRequired(t *testing.T) {
	s := newTestServer(t, "")

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/tests/1/results"},
		{http.MethodGet, "/api/insights/1"},
		{http.MethodGet, "/api/ideology"},
		{http.MethodGet, "/api/public-figures"},
		{http.MethodPost, "/api/narrative"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := s.do(t, tc.method, tc.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	w := s.do(t, http.MethodGet, "/api/ideology", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t, "")

	t.Run("tests", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/tests?lang=es", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

		tests := decode(t, w)["tests"].([]any)
		require.Len(t, tests, 1)
		first := tests[0].(map[string]any)
		assert.Equal(t, "Brújula Política", first["name"])
		assert.Equal(t, float64(16), first["question_count"])

		w = s.do(t, http.MethodGet, "/api/tests?lang=es", "", nil)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	})

	t.Run("questions are ordered and localized", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/tests/1/questions?lang=es", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := decode(t, w)
		questions := body["questions"].([]any)
		require.Len(t, questions, 16)
		first := questions[0].(map[string]any)
		assert.Equal(t, float64(1), first["id"])
		assert.Contains(t, first["question"], "sanidad")
		assert.Len(t, body["options"], 5)
	})

	t.Run("unknown test", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/tests/99/questions", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = s.do(t, http.MethodGet, "/api/tests/abc/questions", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("categories", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/categories?testId=1", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		categories := decode(t, w)["categories"].([]any)
		require.Len(t, categories, 4)
		econ := categories[0].(map[string]any)
		assert.Equal(t, "econ", econ["axis"])
		assert.Equal(t, "Markets", econ["left_label"])

		w = s.do(t, http.MethodGet, "/api/categories?testId=zero", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ideologies", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/ideologies?lang=es", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		ideologies := decode(t, w)["ideologies"].([]any)
		require.Len(t, ideologies, 15)
		assert.Equal(t, "Anarcocomunismo", ideologies[0].(map[string]any)["name"])
	})
}

func TestScoringFlow(t *testing.T) {
	s := newTestServer(t, "")
	userID, token := s.session(t)
	ctx := context.Background()

	w := s.do(t, http.MethodPut, "/api/tests/1/progress", token, allAnswers("neutral"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(16), decode(t, w)["answered"])

	w = s.do(t, http.MethodPost, "/api/tests/1/results", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result insights.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Recomputed)
	require.Len(t, result.Insights, 4)
	for _, in := range result.Insights {
		assert.Equal(t, scoring.BandCentrist, in.Band)
		assert.Equal(t, 50, in.Percentage)
	}
	require.NotNil(t, result.Ideology)
	assert.Equal(t, "Centrism", result.Ideology.Name)
	assert.Equal(t, 0.0, result.Ideology.Distance)
	require.NotNil(t, result.Figure)
	assert.Equal(t, "Emmanuel Macron", result.Figure.Figure.Name)

	t.Run("repeat without force returns stored insights", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/tests/1/results", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var again insights.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
		assert.False(t, again.Recomputed)
		assert.Len(t, again.Insights, 4)

		n, err := s.repo.CountIdeologyMatches(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("forced recompute appends history", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/tests/1/results?forceUpdate=true", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		n, err := s.repo.CountIdeologyMatches(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		records, err := s.repo.ListInsights(ctx, userID, 1)
		require.NoError(t, err)
		assert.Len(t, records, 4)
	})

	t.Run("invalid force flag", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/tests/1/results?forceUpdate=maybe", token, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("localized insights", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/insights/1?lang=es", token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		list := decode(t, w)["insights"].([]any)
		require.Len(t, list, 4)
		econ := list[0].(map[string]any)
		assert.Equal(t, "econ", econ["category"])
		assert.Equal(t, "Económico", econ["name"])
		assert.Equal(t, "Mercado", econ["left_label"])
		assert.Equal(t, "centrist", econ["description"])
		assert.Equal(t, "Centrista", econ["band_label"])
		assert.Equal(t, "Equilibras la eficiencia del mercado y la redistribución.", econ["insight"])
	})

	t.Run("accept-language is honoured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/ideology", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept-Language", "es-ES,es;q=0.9")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		ideology := decode(t, w)["ideology"].(map[string]any)
		assert.Equal(t, "Centrismo", ideology["name"])
	})

	t.Run("completed tests", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/insights", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w)["tests"], 1)
	})
}

func TestResultsRejectIncompleteAnswers(t *testing.T) {
	s := newTestServer(t, "")
	userID, token := s.session(t)

	w := s.do(t, http.MethodPut, "/api/tests/1/progress", token, map[string]any{
		"answers": map[string]any{"1": "agree", "2": -0.5, "3": 1},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/tests/1/results", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	records, err := s.repo.ListInsights(context.Background(), userID, 1)
	require.NoError(t, err)
	assert.Empty(t, records, "nothing is written when aggregation fails")

	w = s.do(t, http.MethodGet, "/api/insights/1", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveProgressValidation(t *testing.T) {
	s := newTestServer(t, "")
	_, token := s.session(t)

	tests := []struct {
		name     string
		path     string
		body     any
		expected int
	}{
		{name: "unknown likert option", path: "/api/tests/1/progress", body: map[string]any{"answers": map[string]any{"1": "sometimes"}}, expected: http.StatusBadRequest},
		{name: "number out of range", path: "/api/tests/1/progress", body: map[string]any{"answers": map[string]any{"1": 2}}, expected: http.StatusBadRequest},
		{name: "question from another test", path: "/api/tests/1/progress", body: map[string]any{"answers": map[string]any{"999": "agree"}}, expected: http.StatusBadRequest},
		{name: "missing answers", path: "/api/tests/1/progress", body: map[string]any{}, expected: http.StatusBadRequest},
		{name: "unknown test", path: "/api/tests/42/progress", body: map[string]any{"answers": map[string]any{"1": "agree"}}, expected: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPut, tt.path, token, tt.body)
			assert.Equal(t, tt.expected, w.Code, w.Body.String())
		})
	}
}

func TestIdeologyRoutes(t *testing.T) {
	s := newTestServer(t, "")
	_, token := s.session(t)

	t.Run("no history yet", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/ideology?lang=es", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Todavía no se ha asignado")

		w = s.do(t, http.MethodGet, "/api/public-figures", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid scores", func(t *testing.T) {
		for _, body := range []map[string]any{
			{"econ": 50, "dipl": 50, "govt": 50},
			{"econ": 50, "dipl": 50, "govt": 50, "scty": 101},
			{"econ": -1, "dipl": 50, "govt": 50, "scty": 50},
		} {
			w := s.do(t, http.MethodPost, "/api/ideology", token, body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		}
	})

	t.Run("match then read back", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/ideology", token, map[string]any{
			"econ": 100, "dipl": 70, "govt": 40, "scty": 80,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		matched := decode(t, w)["ideology"].(map[string]any)
		assert.Equal(t, "Marxism", matched["name"])
		assert.Equal(t, 0.0, matched["distance"])

		w = s.do(t, http.MethodGet, "/api/ideology", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		latest := decode(t, w)["ideology"].(map[string]any)
		assert.Equal(t, matched["sequence_id"], latest["sequence_id"])

		w = s.do(t, http.MethodGet, "/api/public-figures", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, false, body["substituted"])
		assert.Equal(t, "Karl Marx", body["figure"].(map[string]any)["name"])
		assert.NotContains(t, body, "note")
	})

	t.Run("figure substitution carries a note", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/ideology", token, map[string]any{
			"econ": 40, "dipl": 10, "govt": 10, "scty": 20,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Authoritarian Nationalism", decode(t, w)["ideology"].(map[string]any)["name"])

		w = s.do(t, http.MethodGet, "/api/public-figures?lang=es", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, true, body["substituted"])
		assert.Equal(t, "Figura de respaldo usada (sin coincidencia de ideología)", body["note"])
	})
}

func TestNarrativeRoute(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Your economic score of 50 suggests balance."}]}}]}`))
	}))
	defer provider.Close()

	s := newTestServer(t, provider.URL)
	userID, token := s.session(t)
	scores := map[string]any{"econ": 50, "dipl": 50, "govt": 50, "scty": 50, "lang": "en"}

	w := s.do(t, http.MethodPost, "/api/narrative", token, scores)
	require.Equal(t, http.StatusPaymentRequired, w.Code)

	require.NoError(t, s.users.UpgradeUserToPro(context.Background(), userID, "cus_test"))

	w = s.do(t, http.MethodPost, "/api/narrative", token, scores)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var analysis narrative.Analysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.Equal(t, "Your economic score of 50 suggests balance.", analysis.Text)
	assert.False(t, analysis.Fallback)

	w = s.do(t, http.MethodPost, "/api/narrative", token, map[string]any{"econ": 50, "dipl": 50, "govt": 50})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/narrative", token, scores)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestNarrativeDisabled(t *testing.T) {
	s := newTestServer(t, "")
	userID, token := s.session(t)
	require.NoError(t, s.users.UpgradeUserToPro(context.Background(), userID, "cus_test"))

	w := s.do(t, http.MethodPost, "/api/narrative", token, map[string]any{"econ": 50, "dipl": 50, "govt": 50, "scty": 50})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPaymentsDisabled(t *testing.T) {
	s := newTestServer(t, "")
	_, token := s.session(t)

	w := s.do(t, http.MethodPost, "/api/payment/create-session", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodPost, "/api/payment/webhook", "", map[string]any{"type": "checkout.session.completed"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["database"])
	assert.Equal(t, "disabled", checks["redis"])
	assert.Equal(t, "disabled", checks["narrative"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	metrics := decode(t, w)
	assert.Contains(t, metrics, "metrics")
	assert.Contains(t, metrics, "rate_limit")
	assert.Contains(t, metrics, "response_cache")

	w = s.do(t, http.MethodGet, "/api/rate-limit", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "limits")
}

func TestAlertRoutes(t *testing.T) {
	s := newTestServer(t, "")

	w := s.do(t, http.MethodGet, "/alerts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["alerts"])

	s.alerts.Evaluate(context.Background())

	w = s.do(t, http.MethodGet, "/alerts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	alerts := decode(t, w)["alerts"].([]any)
	require.Len(t, alerts, 1)
	assert.Equal(t, "active", alerts[0].(map[string]any)["status"])

	w = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, float64(1), decode(t, w)["alerts"])

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad duration", "/alerts/AlwaysFiring/silence?duration=soon", http.StatusBadRequest},
		{"unknown alert", "/alerts/Missing/silence", http.StatusNotFound},
		{"silenced", "/alerts/AlwaysFiring/silence?duration=1h", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	assert.Equal(t, monitoring.StatusSuppressed, s.alerts.GetAlerts()[0].Status)
}

func TestCircuitBreakerRoutes(t *testing.T) {
	s := newTestServer(t, "")
	name := narrative.APIName()

	breakerState := func(t *testing.T) string {
		t.Helper()
		w := s.do(t, http.MethodGet, "/health", "", nil)
		breakers := decode(t, w)["circuit_breakers"].(map[string]any)
		require.Contains(t, breakers, name)
		return breakers[name].(map[string]any)["state"].(string)
	}

	assert.Equal(t, "closed", breakerState(t))

	trip := func() {
		_ = s.breaker.Call(func() error { return assert.AnError })
		require.Equal(t, resilience.StateOpen, s.breaker.State())
	}

	tests := []struct {
		name string
		path string
		want int
		open bool
	}{
		{"unknown breaker", "/circuit-breakers/reset?name=missing", http.StatusNotFound, true},
		{"named breaker", "/circuit-breakers/reset?name=" + name, http.StatusOK, false},
		{"all breakers", "/circuit-breakers/reset", http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trip()
			assert.Equal(t, "open", breakerState(t))

			w := s.do(t, http.MethodPost, tt.path, "", nil)
			assert.Equal(t, tt.want, w.Code)
			if tt.open {
				assert.Equal(t, "open", breakerState(t))
				s.breaker.Reset()
				return
			}
			assert.Equal(t, "closed", breakerState(t))
		})
	}
}

func TestLeaderboardRoutes(t *testing.T) {
	s := newTestServer(t, "")
	_, token := s.session(t)

	t.Run("empty board", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/leaderboard", "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		board := decode(t, w)["leaderboard"].(map[string]any)
		assert.Equal(t, "all_time", board["period"])
		assert.Empty(t, board["entries"])
	})

	t.Run("rank before any match", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/leaderboard/me", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	w := s.do(t, http.MethodPost, "/api/ideology", token, map[string]any{
		"econ": 100, "dipl": 70, "govt": 40, "scty": 80,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("localized board", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/leaderboard?period=weekly&limit=5&lang=es", "", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		board := decode(t, w)["leaderboard"].(map[string]any)
		entries := board["entries"].([]any)
		require.Len(t, entries, 1)
		first := entries[0].(map[string]any)
		assert.Equal(t, "Marxismo", first["name"])
		assert.Equal(t, 100.0, first["share"])
		assert.Equal(t, 1.0, board["total"])
		assert.NotEmpty(t, board["period_start"])
	})

	t.Run("cached board keeps canonical names", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/leaderboard?period=weekly&limit=5", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		entries := decode(t, w)["leaderboard"].(map[string]any)["entries"].([]any)
		assert.Equal(t, "Marxism", entries[0].(map[string]any)["name"])
	})

	t.Run("my rank", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/leaderboard/me?period=daily", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		rank := decode(t, w)["rank"].(map[string]any)
		assert.Equal(t, 1.0, rank["rank"])
		assert.Equal(t, "Marxism", rank["name"])
	})

	t.Run("validation", func(t *testing.T) {
		for _, path := range []string{
			"/api/leaderboard?period=yearly",
			"/api/leaderboard?limit=0",
			"/api/leaderboard?limit=ten",
		} {
			w := s.do(t, http.MethodGet, path, "", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, path)
		}
	})

	t.Run("rank requires a session", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/leaderboard/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestPrivacyRoutes(t *testing.T) {
	s := newTestServer(t, "")
	userID, token := s.session(t)

	w := s.do(t, http.MethodPut, "/api/tests/1/progress", token, allAnswers("agree"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(t, http.MethodPost, "/api/tests/1/results", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("retention is public", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/privacy/retention", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 90.0, decode(t, w)["inactive_session_retention_days"])
	})

	t.Run("export", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/privacy/export", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

		body := decode(t, w)
		assert.Equal(t, userID, body["user"].(map[string]any)["id"])
		assert.Len(t, body["progress"], 1)
		assert.Len(t, body["ideologies"], 1)
		assert.NotEmpty(t, body["insights"])
	})

	t.Run("delete", func(t *testing.T) {
		w := s.do(t, http.MethodDelete, "/api/privacy/data", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		deleted := decode(t, w)["deleted"].(map[string]any)
		assert.Equal(t, 1.0, deleted["ideologies"])
		assert.Equal(t, true, deleted["anonymized"])

		w = s.do(t, http.MethodGet, "/api/ideology", token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = s.do(t, http.MethodGet, "/api/leaderboard", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0.0, decode(t, w)["leaderboard"].(map[string]any)["total"])
	})

	t.Run("requires a session", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/privacy/export", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		w = s.do(t, http.MethodDelete, "/api/privacy/data", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
