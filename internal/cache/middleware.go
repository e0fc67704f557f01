package cache

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/ideoscope/internal/monitoring"
)

// ResponseMiddleware caches successful GET responses of public catalog
// routes. The key is the full request URI so ?lang= variants are cached
// separately.
func ResponseMiddleware(c *Cache[[]byte], metrics *monitoring.Metrics, prefixes ...string) gin.HandlerFunc {
	cacheable := func(r *http.Request) bool {
		if r.Method != http.MethodGet {
			return false
		}
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}

	return func(ctx *gin.Context) {
		if !cacheable(ctx.Request) {
			ctx.Next()
			return
		}

		key := Key(ctx.Request.URL.RequestURI())
		if body, ok := c.Get(key); ok {
			slog.Debug("Cache hit", "key", key[:8]+"...", "path", ctx.Request.URL.Path)
			metrics.IncrementCacheHit()
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, "application/json; charset=utf-8", body)
			ctx.Abort()
			return
		}

		metrics.IncrementCacheMiss()
		ctx.Header("X-Cache", "MISS")

		tee := &teeWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = tee
		ctx.Next()

		if tee.Status() == http.StatusOK {
			c.Set(key, tee.body.Bytes())
		}
	}
}

// teeWriter copies the body it writes through.
type teeWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *teeWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
