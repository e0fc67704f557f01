// Package errors is the HTTP error model. Every failure a handler reports is
// turned into an AppError whose category decides the status code, the log
// level and whether callers may retry.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/scoring"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryNetwork         ErrorCategory = "network"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryRateLimit       ErrorCategory = "rate_limit"
	CategoryInternal        ErrorCategory = "internal"
	CategoryExternalAPI     ErrorCategory = "external_api"
	CategoryConfiguration   ErrorCategory = "configuration"
	CategoryCatalog         ErrorCategory = "catalog"
	CategoryNotFound        ErrorCategory = "not_found"
	CategoryUnauthorized    ErrorCategory = "unauthorized"
	CategoryPaymentRequired ErrorCategory = "payment_required"
)

type categoryInfo struct {
	label     string
	status    int
	level     slog.Level
	retryable bool
}

var categories = map[ErrorCategory]categoryInfo{
	CategoryValidation:      {"VALIDATION_ERROR", http.StatusBadRequest, slog.LevelWarn, false},
	CategoryNetwork:         {"NETWORK_ERROR", http.StatusBadGateway, slog.LevelInfo, true},
	CategoryTimeout:         {"TIMEOUT_ERROR", http.StatusGatewayTimeout, slog.LevelInfo, true},
	CategoryRateLimit:       {"RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests, slog.LevelWarn, true},
	CategoryInternal:        {"INTERNAL_ERROR", http.StatusInternalServerError, slog.LevelError, false},
	CategoryExternalAPI:     {"EXTERNAL_API_ERROR", http.StatusBadGateway, slog.LevelInfo, true},
	CategoryConfiguration:   {"CONFIGURATION_ERROR", http.StatusInternalServerError, slog.LevelError, false},
	CategoryCatalog:         {"CATALOG_ERROR", http.StatusInternalServerError, slog.LevelError, false},
	CategoryNotFound:        {"NOT_FOUND", http.StatusNotFound, slog.LevelWarn, false},
	CategoryUnauthorized:    {"UNAUTHORIZED", http.StatusUnauthorized, slog.LevelWarn, false},
	CategoryPaymentRequired: {"PAYMENT_REQUIRED", http.StatusPaymentRequired, slog.LevelWarn, false},
}

func infoFor(category ErrorCategory) categoryInfo {
	if info, ok := categories[category]; ok {
		return info
	}
	return categories[CategoryInternal]
}

func withCode(b *errbuilder.ErrBuilder, category ErrorCategory) *errbuilder.ErrBuilder {
	switch category {
	case CategoryValidation:
		return b.WithCode(errbuilder.CodeInvalidArgument)
	case CategoryNetwork, CategoryExternalAPI:
		return b.WithCode(errbuilder.CodeUnavailable)
	case CategoryTimeout:
		return b.WithCode(errbuilder.CodeDeadlineExceeded)
	case CategoryRateLimit:
		return b.WithCode(errbuilder.CodeResourceExhausted)
	case CategoryConfiguration, CategoryCatalog:
		return b.WithCode(errbuilder.CodeFailedPrecondition)
	case CategoryNotFound:
		return b.WithCode(errbuilder.CodeNotFound)
	case CategoryUnauthorized:
		return b.WithCode(errbuilder.CodeUnauthenticated)
	case CategoryPaymentRequired:
		return b.WithCode(errbuilder.CodePermissionDenied)
	}
	return b.WithCode(errbuilder.CodeInternal)
}

// AppError wraps an errbuilder error with HTTP and request context
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory `json:"category"`
	HTTPStatus int           `json:"http_status"`
	Timestamp  time.Time     `json:"timestamp"`
	RequestID  string        `json:"request_id,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`

	// logged with the error, never sent to the client
	internal string
}

// errorEnvelope is the body every error response carries. The cause is
// not part of it.
type errorEnvelope struct {
	Code       errbuilder.ErrCode `json:"code"`
	Label      string             `json:"label"`
	Message    string             `json:"message"`
	Category   ErrorCategory      `json:"category"`
	HTTPStatus int                `json:"http_status"`
	Timestamp  time.Time          `json:"timestamp"`
	RequestID  string             `json:"request_id,omitempty"`
	Details    map[string]string  `json:"details,omitempty"`
	StackTrace string             `json:"stack_trace,omitempty"`
}

// MarshalJSON replaces the promoted errbuilder marshaller, which requires a
// cause.
func (e *AppError) MarshalJSON() ([]byte, error) {
	env := errorEnvelope{
		Code:       e.ErrBuilder.Code,
		Label:      infoFor(e.Category).label,
		Message:    e.ErrBuilder.Msg,
		Category:   e.Category,
		HTTPStatus: e.HTTPStatus,
		Timestamp:  e.Timestamp.UTC(),
		RequestID:  e.RequestID,
		StackTrace: e.StackTrace,
	}
	if details := e.ErrBuilder.Details.Errors; len(details) > 0 {
		env.Details = make(map[string]string, len(details))
		for key, detail := range details {
			if detail != nil {
				env.Details[key] = detailText(detail)
			}
		}
	}
	return json.Marshal(env)
}

func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", infoFor(e.Category).label, e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

func detailText(err error) string {
	var eb *errbuilder.ErrBuilder
	if errors.As(err, &eb) && eb.Msg != "" {
		return eb.Msg
	}
	return err.Error()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// build assembles an AppError for category. Each detail becomes one entry
// of the errbuilder details map.
func build(category ErrorCategory, msg string, cause error, details map[string]error) *AppError {
	info := infoFor(category)
	builder := withCode(errbuilder.New(), category).WithMsg(msg)
	if len(details) > 0 {
		errMap := errbuilder.ErrorMap{}
		for key, detail := range details {
			errMap.Set(key, detail)
		}
		builder = builder.WithDetails(errbuilder.NewErrDetails(errMap))
	}
	if cause != nil {
		builder = builder.WithCause(cause)
	}
	return NewAppError(builder, category, info.status)
}

func detail(key, value string) map[string]error {
	return map[string]error{key: errors.New(value)}
}

// NewValidationError creates a 400. An optional first detail is attached
// verbatim.
func NewValidationError(message string, details ...interface{}) *AppError {
	var extra map[string]error
	if len(details) > 0 {
		extra = detail("validation_details", fmt.Sprint(details[0]))
	}
	return build(CategoryValidation, message, nil, extra)
}

// NewValidationErrorWithMap creates a validation error carrying one entry per
// offending field
func NewValidationErrorWithMap(message string, fields map[string]string) *AppError {
	extra := make(map[string]error, len(fields))
	for field, msg := range fields {
		extra[field] = errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg(msg)
	}
	return build(CategoryValidation, message, nil, extra)
}

func NewNetworkError(message string, cause error) *AppError {
	return build(CategoryNetwork, message, cause, nil)
}

func NewTimeoutError(message string, cause error) *AppError {
	return build(CategoryTimeout, message, cause, nil)
}

// NewRateLimitError creates a 429. retryAfter is echoed in the details.
func NewRateLimitError(retryAfter string) *AppError {
	return build(CategoryRateLimit, "Rate limit exceeded", nil, detail("retry_after", retryAfter))
}

// NewExternalAPIError reports a failed upstream call, such as the narrative
// model.
func NewExternalAPIError(apiName string, cause error) *AppError {
	return build(CategoryExternalAPI, apiName+" API error", cause, detail("api_name", apiName))
}

// NewInternalError hides message from the client behind a generic text. The
// stack is attached outside release mode.
func NewInternalError(message string, cause error) *AppError {
	appErr := build(CategoryInternal, "Internal server error", cause, nil)
	appErr.internal = message
	if gin.Mode() != gin.ReleaseMode {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

func NewConfigurationError(message string, cause error) *AppError {
	appErr := build(CategoryConfiguration, "Configuration error", cause, nil)
	appErr.internal = message
	return appErr
}

// NewCatalogError reports incomplete reference data. The client cannot fix
// it, so it is a server error.
func NewCatalogError(message string, cause error) *AppError {
	return build(CategoryCatalog, message, cause, nil)
}

// NewNotFoundError creates a 404 for a missing resource
func NewNotFoundError(resource string) *AppError {
	return build(CategoryNotFound, resource+" not found", nil, nil)
}

// NewUnauthorizedError creates a 401 for missing or invalid sessions
func NewUnauthorizedError(message string) *AppError {
	return build(CategoryUnauthorized, message, nil, nil)
}

// NewPaymentRequiredError creates a 402 for features gated behind Pro
func NewPaymentRequiredError(feature string) *AppError {
	return build(CategoryPaymentRequired, feature+" requires a Pro account", nil, detail("feature", feature))
}

// FromScoring maps a scoring engine error onto the HTTP error model.
// User-input failures are 400s, catalog gaps and internal failures are 500s.
func FromScoring(err error) *AppError {
	var invalidScores *scoring.InvalidScoresError
	if errors.As(err, &invalidScores) {
		fields := make(map[string]string, len(invalidScores.Fields))
		for axis, msg := range invalidScores.Fields {
			fields[string(axis)] = msg
		}
		appErr := NewValidationErrorWithMap("Invalid scores", fields)
		appErr.ErrBuilder = appErr.ErrBuilder.WithCause(err)
		return appErr
	}

	switch scoring.KindOf(err) {
	case scoring.KindUserInput:
		return NewValidationError(err.Error())
	case scoring.KindCatalog:
		return NewCatalogError(err.Error(), err)
	case scoring.KindInternal:
		return NewInternalError(err.Error(), err)
	}
	return ToAppError(err)
}

func captureStackTrace() string {
	buf := make([]byte, 4096)
	return string(buf[:runtime.Stack(buf, false)])
}

// ErrorHandler renders the last error a handler attached with c.Error,
// unless the handler already wrote a response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := ToAppError(c.Errors.Last().Err)
		if appErr.RequestID == "" {
			appErr.RequestID = c.GetString("request_id")
		}
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns a panic into a logged 500 in the usual error shape.
func RecoveryHandler() gin.HandlerFunc {
	return gin.RecoveryWithWriter(nil, func(c *gin.Context, recovered interface{}) {
		cause := fmt.Errorf("%v", recovered)
		appErr := NewInternalError("Panic recovered: "+cause.Error(), cause)
		appErr.StackTrace = captureStackTrace()
		appErr.RequestID = c.GetString("request_id")

		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	})
}

var networkFailures = []string{"connection refused", "no such host", "network is unreachable"}

// ToAppError converts any error to an AppError. An AppError anywhere in the
// chain is returned as is.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if scoring.KindOf(err) != "" {
		return FromScoring(err)
	}

	var ebErr *errbuilder.ErrBuilder
	switch {
	case errors.As(err, &ebErr):
		return NewAppError(ebErr, CategoryInternal, http.StatusInternalServerError)
	case errors.Is(err, context.Canceled):
		return NewTimeoutError("Request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("Request deadline exceeded", err)
	}

	msg := err.Error()
	for _, needle := range networkFailures {
		if strings.Contains(msg, needle) {
			return NewNetworkError("Network connection failed", err)
		}
	}
	if strings.Contains(msg, "timeout") {
		return NewTimeoutError("Request timeout", err)
	}
	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs err at the level its category calls for.
func LogError(c *gin.Context, err *AppError) {
	attrs := []any{
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetString("request_id"),
	}

	if err.internal != "" {
		attrs = append(attrs, "internal_details", err.internal)
	}

	level := infoFor(err.Category).level
	if level == slog.LevelWarn {
		if details := err.ErrBuilder.Details.Errors; len(details) > 0 {
			attrs = append(attrs, "details", details)
		}
	} else if cause := err.ErrBuilder.Unwrap(); cause != nil {
		attrs = append(attrs, "cause", cause)
	}

	ctx := c.Request.Context()
	slog.Log(ctx, level, err.ErrBuilder.Msg, attrs...)

	if err.StackTrace != "" && gin.Mode() != gin.ReleaseMode {
		slog.DebugContext(ctx, "stack_trace", "trace", err.StackTrace)
	}
}

// IsRetryableError reports whether err is transient: network, timeout,
// upstream or rate-limit failures.
func IsRetryableError(err error) bool {
	appErr := ToAppError(err)
	return appErr != nil && infoFor(appErr.Category).retryable
}

// GetRetryDelay returns how long to wait before retry number attempt.
func GetRetryDelay(err error, attempt int) time.Duration {
	base := time.Duration(100*attempt) * time.Millisecond

	appErr := ToAppError(err)
	if appErr == nil {
		return base
	}
	switch appErr.Category {
	case CategoryRateLimit:
		return time.Duration(attempt*attempt) * time.Second
	case CategoryNetwork, CategoryTimeout:
		return base << attempt
	case CategoryExternalAPI:
		return base * time.Duration(attempt)
	}
	return base
}

// WrapError prefixes err with a formatted message. A nil err stays nil.
func WrapError(err error, message string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(message, args...), err)
}
