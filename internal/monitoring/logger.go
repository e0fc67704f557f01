package monitoring

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Log formats accepted by NewLoggerWithOptions.
const (
	FormatJSON = "json"
	FormatText = "text"
)

var processStart = time.Now()

// Logger is a slog.Logger with helpers for the events the service emits
// repeatedly, so their field names stay stable across call sites.
type Logger struct {
	*slog.Logger
}

// LogOptions configures a Logger. Unknown levels fall back to info and
// unknown formats to JSON.
type LogOptions struct {
	Level  string
	Format string
	Output io.Writer
}

// NewLogger creates a JSON logger at info level writing to stdout.
func NewLogger() *Logger {
	return NewLoggerWithOptions(LogOptions{})
}

// NewLoggerTo creates a JSON logger writing to w.
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, handlerOptions(level)))}
}

// NewLoggerWithOptions builds the process logger from configuration.
func NewLoggerWithOptions(opts LogOptions) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	hopts := handlerOptions(ParseLevel(opts.Level))

	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatText) {
		return &Logger{Logger: slog.New(slog.NewTextHandler(out, hopts))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(out, hopts))}
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key != slog.TimeKey {
				return a
			}
			return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339))
		},
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// RequestLogger logs one served HTTP request.
func (l *Logger) RequestLogger(method, path, ip, userAgent string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		slog.String("method", method),
		slog.String("path", path),
		slog.String("ip", ip),
		slog.String("user_agent", userAgent),
		slog.Int("status_code", statusCode),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)
}

// ScoringLogger logs a completed scoring run.
func (l *Logger) ScoringLogger(userID string, testID, ideologyID int64, duration time.Duration, forced bool) {
	l.Info("Scoring Run Completed",
		slog.String("user_id", userID),
		slog.Int64("test_id", testID),
		slog.Int64("ideology_id", ideologyID),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.Bool("forced", forced),
	)
}

// APIErrorLogger logs a handler error together with the caller of the
// middleware that observed it.
func (l *Logger) APIErrorLogger(err error, method, path, ip string, statusCode int) {
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	l.Error("API Error",
		slog.String("error", err.Error()),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("ip", ip),
		slog.Int("status_code", statusCode),
		slog.String("caller", caller),
	)
}

// ExternalAPILogger logs a call to an upstream provider. Failures log at
// warn level.
func (l *Logger) ExternalAPILogger(apiName, method, endpoint string, statusCode int, duration time.Duration, success bool) {
	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}

	l.LogAttrs(context.Background(), level, "External API Call",
		slog.String("api_name", apiName),
		slog.String("method", method),
		slog.String("endpoint", endpoint),
		slog.Int("status_code", statusCode),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.Bool("success", success),
	)
}

// SystemLogger logs a lifecycle event.
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		slog.String("event", event),
		slog.String("details", details),
		slog.String("uptime", time.Since(processStart).Round(time.Second).String()),
	)
}

// SecurityLogger logs an event worth auditing, such as a data erasure or a
// scanner probe.
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := make([]any, 0, 3+len(details))
	attrs = append(attrs,
		slog.String("event", event),
		slog.String("ip", ip),
		slog.String("user_agent", userAgent),
	)
	for key, value := range details {
		attrs = append(attrs, slog.Any(key, value))
	}

	l.Warn("Security Event", attrs...)
}

// PerformanceLogger logs a single measured value.
func (l *Logger) PerformanceLogger(metric string, value float64, unit string) {
	l.Info("Performance Metric",
		slog.String("metric", metric),
		slog.Float64("value", value),
		slog.String("unit", unit),
	)
}
