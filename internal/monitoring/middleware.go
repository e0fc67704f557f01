package monitoring

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const (
	maxRequestIDLen = 128
	// maxBodyBytes above which a write request is flagged as suspicious.
	maxBodyBytes = 64 * 1024
	slowRequest  = 5 * time.Second
)

// RequestIDMiddleware reuses an incoming X-Request-ID or generates one, and
// stores it under "request_id" for the error handler.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// MonitoringMiddleware records request metrics and logs every request.
func MonitoringMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.IncrementRequest()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		method, path, ip := c.Request.Method, c.Request.URL.Path, c.ClientIP()

		metrics.RecordResponseTime(elapsed)
		metrics.RecordRequestByStatus(status)
		if status >= http.StatusBadRequest {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, c.GetHeader("User-Agent"), status, elapsed)
		for _, err := range c.Errors {
			logger.APIErrorLogger(err.Err, method, path, ip, status)
		}

		if elapsed > slowRequest {
			logger.PerformanceLogger("slow_request", elapsed.Seconds(), "seconds")
		}
		if status >= http.StatusInternalServerError {
			logger.SystemLogger("server_error", fmt.Sprintf("Status %d for %s %s", status, method, path))
		}
	}
}

// probe inspects a request and returns the fields to log when it looks
// hostile.
type probe func(r *http.Request) (kind string, fields map[string]interface{})

var probes = []probe{
	func(r *http.Request) (string, map[string]interface{}) {
		if !containsSQLInjectionPatterns(r.URL.RawQuery) {
			return "", nil
		}
		return "potential_sql_injection", map[string]interface{}{"query": r.URL.RawQuery}
	},
	func(r *http.Request) (string, map[string]interface{}) {
		if r.Method == http.MethodGet || r.ContentLength <= maxBodyBytes {
			return "", nil
		}
		return "large_request_body", map[string]interface{}{"size_bytes": r.ContentLength}
	},
	func(r *http.Request) (string, map[string]interface{}) {
		ua := r.UserAgent()
		if !containsSuspiciousUserAgent(ua) {
			return "", nil
		}
		return "suspicious_user_agent", map[string]interface{}{"user_agent": ua}
	},
}

// SecurityMonitoringMiddleware logs suspicious requests. It never blocks.
func SecurityMonitoringMiddleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var kinds []string
		details := map[string]interface{}{}
		for _, p := range probes {
			kind, fields := p(c.Request)
			if kind == "" {
				continue
			}
			kinds = append(kinds, kind)
			for k, v := range fields {
				details[k] = v
			}
		}

		if len(kinds) > 0 {
			details["type"] = strings.Join(kinds, ",")
			details["path"] = c.Request.URL.Path
			logger.SecurityLogger("suspicious_activity_detected", c.ClientIP(), c.Request.UserAgent(), details)
		}

		c.Next()
	}
}

var sqlInjectionPatterns = []string{
	"union select", "union all", "select * from",
	"drop table", "delete from", "update users set",
	"';--", "/*", "*/", " xp_", " sp_",
}

func containsSQLInjectionPatterns(query string) bool {
	if decoded, err := url.QueryUnescape(query); err == nil {
		query = decoded
	}
	return containsAny(strings.ToLower(query), sqlInjectionPatterns)
}

var suspiciousAgents = []string{
	"sqlmap", "nmap", "masscan", "zmap", "dirbuster",
	"gobuster", "nikto", "acunetix", "openvas", "nessus",
}

func containsSuspiciousUserAgent(userAgent string) bool {
	return containsAny(strings.ToLower(userAgent), suspiciousAgents)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
