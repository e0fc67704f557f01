package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	StatusActive     AlertStatus = "active"
	StatusResolved   AlertStatus = "resolved"
	StatusSuppressed AlertStatus = "suppressed"
)

// Alert is the state of one rule that has fired at least once.
type Alert struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Severity      AlertSeverity `json:"severity"`
	Status        AlertStatus   `json:"status"`
	Value         float64       `json:"value"`
	Threshold     float64       `json:"threshold"`
	FiredAt       time.Time     `json:"fired_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	SilencedUntil *time.Time    `json:"silenced_until,omitempty"`
}

// AlertRule fires when Value compares true against Threshold for at least
// For. Operator is one of gt, gte, lt, lte.
type AlertRule struct {
	Name        string
	Description string
	Severity    AlertSeverity
	Operator    string
	Threshold   float64
	For         time.Duration
	Value       func() float64
}

func (r AlertRule) breached(v float64) bool {
	switch r.Operator {
	case "gt":
		return v > r.Threshold
	case "gte":
		return v >= r.Threshold
	case "lt":
		return v < r.Threshold
	case "lte":
		return v <= r.Threshold
	}
	return false
}

// AlertNotifier delivers alert transitions.
type AlertNotifier interface {
	SendAlert(ctx context.Context, alert Alert) error
	ResolveAlert(ctx context.Context, alert Alert) error
}

// WebhookNotifier posts a Slack-compatible {"text": ...} message.
type WebhookNotifier struct {
	URL    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{URL: url, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookNotifier) SendAlert(ctx context.Context, alert Alert) error {
	return w.post(ctx, fmt.Sprintf(":rotating_light: [%s] %s: %s (value %.2f, threshold %.2f)",
		alert.Severity, alert.Name, alert.Description, alert.Value, alert.Threshold))
}

func (w *WebhookNotifier) ResolveAlert(ctx context.Context, alert Alert) error {
	return w.post(ctx, fmt.Sprintf(":white_check_mark: %s resolved", alert.Name))
}

func (w *WebhookNotifier) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %s", resp.Status)
	}
	return nil
}

// AlertManager evaluates rules on an interval and notifies on transitions.
type AlertManager struct {
	logger   *Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	rules     []AlertRule
	notifiers []AlertNotifier
	alerts    map[string]*Alert
	breachAt  map[string]time.Time
}

func NewAlertManager(logger *Logger, interval time.Duration) *AlertManager {
	return &AlertManager{
		logger:   logger,
		interval: interval,
		now:      time.Now,
		alerts:   make(map[string]*Alert),
		breachAt: make(map[string]time.Time),
	}
}

func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	am.rules = append(am.rules, rule)
	am.mu.Unlock()
}

func (am *AlertManager) AddNotifier(n AlertNotifier) {
	am.mu.Lock()
	am.notifiers = append(am.notifiers, n)
	am.mu.Unlock()
}

// Start evaluates every interval until ctx is done. A non-positive interval
// disables evaluation.
func (am *AlertManager) Start(ctx context.Context) {
	if am.interval <= 0 {
		return
	}
	ticker := time.NewTicker(am.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.Evaluate(ctx)
		}
	}
}

type transition struct {
	alert    Alert
	resolved bool
}

// Evaluate checks every rule once. Notifications go out after the lock is
// released, so a slow webhook never blocks readers.
func (am *AlertManager) Evaluate(ctx context.Context) {
	am.mu.Lock()
	now := am.now()
	var changes []transition
	for _, rule := range am.rules {
		if t, ok := am.evaluate(rule, now); ok {
			changes = append(changes, t)
		}
	}
	notifiers := append([]AlertNotifier(nil), am.notifiers...)
	am.mu.Unlock()

	for _, t := range changes {
		event := "alert_fired"
		if t.resolved {
			event = "alert_resolved"
		}
		am.logger.SystemLogger(event, fmt.Sprintf("%s (%s) value %.2f", t.alert.Name, t.alert.Severity, t.alert.Value))

		for _, n := range notifiers {
			var err error
			if t.resolved {
				err = n.ResolveAlert(ctx, t.alert)
			} else {
				err = n.SendAlert(ctx, t.alert)
			}
			if err != nil {
				slog.Warn("Alert notification failed", "alert", t.alert.Name, "error", err)
			}
		}
	}
}

// evaluate must be called with am.mu held.
func (am *AlertManager) evaluate(rule AlertRule, now time.Time) (transition, bool) {
	value := rule.Value()
	alert, exists := am.alerts[rule.Name]
	if exists {
		alert.Value = value
		if alert.Status == StatusSuppressed && alert.SilencedUntil != nil && !now.Before(*alert.SilencedUntil) {
			alert.Status = StatusActive
			alert.SilencedUntil = nil
		}
	}

	if !rule.breached(value) {
		delete(am.breachAt, rule.Name)
		if !exists || alert.Status == StatusResolved {
			return transition{}, false
		}
		wasSilenced := alert.Status == StatusSuppressed
		alert.Status = StatusResolved
		alert.ResolvedAt = &now
		alert.SilencedUntil = nil
		return transition{alert: *alert, resolved: true}, !wasSilenced
	}

	since, pending := am.breachAt[rule.Name]
	if !pending {
		since = now
		am.breachAt[rule.Name] = now
	}
	if now.Sub(since) < rule.For || (exists && alert.Status != StatusResolved) {
		return transition{}, false
	}

	if !exists {
		alert = &Alert{ID: rule.Name, Name: rule.Name}
		am.alerts[rule.Name] = alert
	}
	alert.Description = rule.Description
	alert.Severity = rule.Severity
	alert.Threshold = rule.Threshold
	alert.Value = value
	alert.Status = StatusActive
	alert.FiredAt = now
	alert.ResolvedAt = nil
	return transition{alert: *alert}, true
}

// Silence suppresses notifications for an alert until d has passed or it
// resolves. It reports false for unknown or resolved alerts.
func (am *AlertManager) Silence(id string, d time.Duration) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	alert, ok := am.alerts[id]
	if !ok || alert.Status == StatusResolved {
		return false
	}
	until := am.now().Add(d)
	alert.Status = StatusSuppressed
	alert.SilencedUntil = &until
	am.logger.SystemLogger("alert_silenced", fmt.Sprintf("%s silenced for %s", alert.Name, d))
	return true
}

// GetAlerts returns copies of every known alert, ordered by name.
func (am *AlertManager) GetAlerts() []Alert {
	return am.collect(func(*Alert) bool { return true })
}

// GetActiveAlerts returns the alerts currently firing, silenced or not.
func (am *AlertManager) GetActiveAlerts() []Alert {
	return am.collect(func(a *Alert) bool { return a.Status != StatusResolved })
}

func (am *AlertManager) collect(keep func(*Alert) bool) []Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	out := make([]Alert, 0, len(am.alerts))
	for _, a := range am.alerts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DefaultAlertRules watches the service's own metrics.
func DefaultAlertRules(m *Metrics) []AlertRule {
	return []AlertRule{
		{
			Name:        "HighErrorRate",
			Description: "More than 10% of requests fail",
			Severity:    SeverityWarning,
			Operator:    "gt",
			Threshold:   10,
			For:         5 * time.Minute,
			Value:       m.ErrorRatePercent,
		},
		{
			Name:        "SlowResponseTime",
			Description: "p95 response time above one second",
			Severity:    SeverityWarning,
			Operator:    "gt",
			Threshold:   1000,
			For:         2 * time.Minute,
			Value:       func() float64 { return millis(m.GetPercentileResponseTime(95)) },
		},
		{
			Name:        "HighHeapUsage",
			Description: "Heap in use above 90% of heap obtained from the OS",
			Severity:    SeverityCritical,
			Operator:    "gt",
			Threshold:   90,
			For:         time.Minute,
			Value:       m.HeapUsagePercent,
		},
		{
			Name:        "ScoringFailures",
			Description: "Scoring runs are failing",
			Severity:    SeverityError,
			Operator:    "gt",
			Threshold:   5,
			For:         5 * time.Minute,
			Value:       m.ScoringFailurePercent,
		},
	}
}
