package security

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/ideoscope/internal/errors"
)

const (
	// UserIDKey is the gin context key of the authenticated user.
	UserIDKey = "user_id"

	DefaultCookieName = "ideoscope_session"
)

// TokenValidator resolves a session token to a user id.
type TokenValidator interface {
	ValidateSessionToken(token string) (string, error)
}

// ProChecker reports whether a user holds an active subscription.
type ProChecker interface {
	IsPro(ctx context.Context, userID string) (bool, error)
}

// SessionMiddleware reads the session from the cookie or an
// "Authorization: Bearer" header and stores the user id in the context.
// Invalid or missing tokens leave the request anonymous.
func SessionMiddleware(validator TokenValidator, cookieName string) gin.HandlerFunc {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return func(c *gin.Context) {
		token := extractToken(c, cookieName)
		if token != "" {
			if userID, err := validator.ValidateSessionToken(token); err == nil {
				c.Set(UserIDKey, userID)
			}
		}
		c.Next()
	}
}

// RequireSession aborts anonymous requests with 401.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			appErr := apperrors.NewUnauthorizedError("A valid session is required")
			appErr.RequestID = c.GetString("request_id")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}
		c.Next()
	}
}

// RequirePro aborts with 402 unless the session user is pro. It must run
// after RequireSession.
func RequirePro(checker ProChecker, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		pro, err := checker.IsPro(c.Request.Context(), UserID(c))
		if err != nil {
			appErr := apperrors.ToAppError(err)
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}
		if !pro {
			appErr := apperrors.NewPaymentRequiredError(feature)
			appErr.RequestID = c.GetString("request_id")
			c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
			return
		}
		c.Next()
	}
}

// UserID returns the session user id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func extractToken(c *gin.Context, cookieName string) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	if cookie, err := c.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}
