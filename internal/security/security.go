package security

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
)

// Config holds HTTP hardening settings.
type Config struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxBodyBytes   int64         `json:"max_body_bytes"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultConfig returns secure defaults for local development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173", "https://checkout.stripe.com"},
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   64 << 10,
	}
}

// CORS allows the configured origins with credentials, so the session cookie
// travels with cross-origin requests from the quiz frontend.
func CORS(cfg Config) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept-Language", "X-Request-ID", "Stripe-Signature"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-User-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

var allowedContentTypes = []string{
	"application/json",
	"application/x-www-form-urlencoded",
	"multipart/form-data",
}

// ValidateContentType rejects bodies that are not JSON or form encoded.
// Requests without a Content-Type pass.
func ValidateContentType() gin.HandlerFunc {
	return func(c *gin.Context) {
		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		if contentType == "" {
			c.Next()
			return
		}

		for _, allowed := range allowedContentTypes {
			if strings.HasPrefix(contentType, allowed) {
				c.Next()
				return
			}
		}

		appErr := apperrors.NewValidationError("Unsupported content type", contentType)
		appErr.HTTPStatus = http.StatusUnsupportedMediaType
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	}
}

// BodyLimit caps request bodies at max bytes. Reads past the cap fail and
// the JSON binder reports a 400.
func BodyLimit(max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max > 0 && c.Request.Body != nil {
			if c.Request.ContentLength > max {
				appErr := apperrors.NewValidationError("Request body too large")
				appErr.HTTPStatus = http.StatusRequestEntityTooLarge
				c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, max)
		}
		c.Next()
	}
}

// RequestTimeout bounds the request context.
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Timeout", strconv.Itoa(int(timeout.Seconds())))
		c.Next()
	}
}
