package monitoring

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu       sync.Mutex
	fired    []string
	resolved []string
}

func (r *recordingNotifier) SendAlert(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, a.Name)
	return nil
}

func (r *recordingNotifier) ResolveAlert(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, a.Name)
	return nil
}

func newTestAlertManager(value *float64) (*AlertManager, *recordingNotifier, *time.Time) {
	clock := time.Date(2026, time.October, 16, 12, 0, 0, 0, time.UTC)
	am := NewAlertManager(NewLoggerTo(io.Discard, slog.LevelError), time.Minute)
	am.now = func() time.Time { return clock }

	am.AddRule(AlertRule{
		Name:      "HighErrorRate",
		Severity:  SeverityWarning,
		Operator:  "gt",
		Threshold: 10,
		For:       2 * time.Minute,
		Value:     func() float64 { return *value },
	})
	n := &recordingNotifier{}
	am.AddNotifier(n)
	return am, n, &clock
}

func TestAlertManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	value := 25.0
	am, n, clock := newTestAlertManager(&value)

	am.Evaluate(ctx)
	assert.Empty(t, n.fired, "breach must hold for the rule duration")
	assert.Empty(t, am.GetAlerts())

	*clock = clock.Add(2 * time.Minute)
	am.Evaluate(ctx)
	assert.Equal(t, []string{"HighErrorRate"}, n.fired)

	active := am.GetActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, StatusActive, active[0].Status)
	assert.Equal(t, 25.0, active[0].Value)

	*clock = clock.Add(time.Minute)
	am.Evaluate(ctx)
	assert.Len(t, n.fired, 1, "an active alert does not fire twice")

	value = 3
	am.Evaluate(ctx)
	assert.Equal(t, []string{"HighErrorRate"}, n.resolved)
	assert.Empty(t, am.GetActiveAlerts())

	all := am.GetAlerts()
	require.Len(t, all, 1)
	assert.Equal(t, StatusResolved, all[0].Status)
	assert.NotNil(t, all[0].ResolvedAt)
}

func TestAlertManagerSilence(t *testing.T) {
	ctx := context.Background()
	value := 50.0
	am, n, clock := newTestAlertManager(&value)

	assert.False(t, am.Silence("HighErrorRate", time.Hour), "unknown alert")

	am.Evaluate(ctx)
	*clock = clock.Add(3 * time.Minute)
	am.Evaluate(ctx)
	require.Len(t, n.fired, 1)

	require.True(t, am.Silence("HighErrorRate", 10*time.Minute))
	assert.Equal(t, StatusSuppressed, am.GetActiveAlerts()[0].Status)

	*clock = clock.Add(11 * time.Minute)
	am.Evaluate(ctx)
	assert.Equal(t, StatusActive, am.GetActiveAlerts()[0].Status)
	assert.Len(t, n.fired, 1)

	require.True(t, am.Silence("HighErrorRate", time.Hour))
	value = 0
	am.Evaluate(ctx)
	assert.Empty(t, n.resolved, "silenced alerts resolve quietly")
	assert.Empty(t, am.GetActiveAlerts())
}

func TestAlertRuleOperators(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{"gt", 11, true},
		{"gt", 10, false},
		{"gte", 10, true},
		{"lt", 9, true},
		{"lte", 10, true},
		{"lte", 11, false},
		{"between", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, AlertRule{Operator: tt.op, Threshold: 10}.breached(tt.value))
		})
	}
}

func TestDefaultAlertRulesReadMetrics(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 4; i++ {
		m.IncrementRequest()
	}
	m.IncrementError()
	m.RecordGCMetrics(1, 1, 95, 100)
	m.IncrementScoringRun()
	m.IncrementScoringFailure()

	values := map[string]float64{}
	for _, r := range DefaultAlertRules(m) {
		values[r.Name] = r.Value()
	}
	assert.Equal(t, 25.0, values["HighErrorRate"])
	assert.Equal(t, 95.0, values["HighHeapUsage"])
	assert.Equal(t, 50.0, values["ScoringFailures"])
	assert.Zero(t, values["SlowResponseTime"])
}

func TestWebhookNotifier(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body["text"])
		if len(got) > 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	alert := Alert{Name: "HighHeapUsage", Severity: SeverityCritical, Value: 93, Threshold: 90}

	require.NoError(t, n.SendAlert(context.Background(), alert))
	assert.Contains(t, got[0], "HighHeapUsage")
	assert.Contains(t, got[0], "critical")

	assert.Error(t, n.ResolveAlert(context.Background(), alert))
}
