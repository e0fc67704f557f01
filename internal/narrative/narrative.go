// Package narrative asks a generative language model for a long-form reading
// of a score vector. It is a pro feature and never part of a scoring run.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ZanzyTHEbar/ideoscope/internal/errors"
	"github.com/ZanzyTHEbar/ideoscope/internal/i18n"
	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
	"github.com/ZanzyTHEbar/ideoscope/internal/resilience"
	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

const (
	apiName         = "gemini"
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.0-flash"
)

// Config configures the provider client.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// Analysis is a generated narrative.
type Analysis struct {
	Text     string `json:"analysis"`
	Language string `json:"language"`
	Model    string `json:"model"`
	// Fallback is set when the provider returned no text.
	Fallback bool `json:"fallback"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Client calls the generateContent endpoint.
type Client struct {
	cfg         Config
	pool        *resilience.ConnectionPool
	localizer   *i18n.Localizer
	logger      *monitoring.Logger
	metrics     *monitoring.Metrics
	degradation *resilience.DegradationManager
}

// NewClient creates a client. degradation may be nil.
func NewClient(cfg Config, pool *resilience.ConnectionPool, localizer *i18n.Localizer, logger *monitoring.Logger, metrics *monitoring.Metrics, degradation *resilience.DegradationManager) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg:         cfg,
		pool:        pool,
		localizer:   localizer,
		logger:      logger,
		metrics:     metrics,
		degradation: degradation,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// apiKeyHeader carries the key. It stays out of the URL, which transport
// errors quote verbatim.
const apiKeyHeader = "x-goog-api-key"

func (c *Client) url() string {
	return fmt.Sprintf("%s/models/%s:generateContent", c.cfg.Endpoint, url.PathEscape(c.cfg.Model))
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		apiKeyHeader:   c.cfg.APIKey,
	}
}

// Analyze validates scores, renders the prompt for lang and calls the
// provider under the client's own timeout.
func (c *Client) Analyze(ctx context.Context, scores scoring.AxisScoreVector, lang string) (result *Analysis, err error) {
	if err := scores.Validate(); err != nil {
		return nil, err
	}
	if !c.Enabled() {
		return nil, errors.NewConfigurationError("Narrative provider is not configured", nil)
	}
	lang = c.localizer.NormalizeLang(lang)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := monitoring.StartSpan(ctx, "narrative.Analyze",
		attribute.String("narrative.model", c.cfg.Model),
		attribute.String("narrative.lang", lang),
	)
	defer func() { monitoring.EndSpan(span, err) }()

	prompt, err := c.localizer.NarrativePrompt(scores, lang)
	if err != nil {
		return nil, errors.NewInternalError("Failed to build narrative prompt", err)
	}

	body, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return nil, errors.NewInternalError("Failed to encode narrative request", err)
	}

	c.metrics.IncrementNarrativeCalls()
	start := time.Now()
	resp, err := c.pool.DoRequest(ctx, http.MethodPost, c.url(), c.headers(), body)
	if err != nil {
		c.record(0, time.Since(start), err)
		return nil, errors.NewExternalAPIError(apiName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.record(resp.StatusCode, time.Since(start), err)
		return nil, errors.NewExternalAPIError(apiName, err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("status %d: %s", resp.StatusCode, snippet(raw))
		c.record(resp.StatusCode, time.Since(start), err)
		return nil, errors.NewExternalAPIError(apiName, err)
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		c.record(resp.StatusCode, time.Since(start), err)
		return nil, errors.NewExternalAPIError(apiName, fmt.Errorf("failed to decode response: %w", err))
	}
	c.record(resp.StatusCode, time.Since(start), nil)

	result = &Analysis{Language: lang, Model: c.cfg.Model}
	if text := firstText(decoded); text != "" {
		result.Text = text
	} else {
		result.Text = c.localizer.Message(i18n.MsgNarrativeDefault, lang)
		result.Fallback = true
	}
	return result, nil
}

func (c *Client) record(status int, d time.Duration, err error) {
	success := err == nil
	c.metrics.RecordExternalAPIRequest(apiName, success)
	c.logger.ExternalAPILogger(apiName, http.MethodPost, c.cfg.Model+":generateContent", status, d, success)
	if c.degradation != nil {
		if success {
			c.degradation.RecordRequest(apiName, true)
		} else {
			c.degradation.RecordError(apiName, err)
		}
	}
}

func firstText(r generateResponse) string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Candidates[0].Content.Parts[0].Text)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// HealthCheck reports whether the provider can currently be called.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.Enabled() {
		return fmt.Errorf("narrative provider not configured")
	}
	if state := c.pool.Breaker().State(); state == resilience.StateOpen {
		return fmt.Errorf("narrative circuit breaker is %s", state)
	}
	return nil
}

// APIName is the name the client reports under in metrics and health.
func APIName() string {
	return apiName
}
