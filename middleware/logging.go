package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	maxLoggedRequestBody  = 4 << 10
	maxLoggedResponseBody = 10000
)

// bodyLogWriter keeps up to limit bytes of the response for logging.
type bodyLogWriter struct {
	gin.ResponseWriter
	body  *bytes.Buffer
	limit int
	total int
}

func (w *bodyLogWriter) Write(b []byte) (int, error) {
	w.total += len(b)
	if room := w.limit - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

// LoggingMiddleware logs every request and its response. JSON bodies are
// logged compacted; large or binary bodies only by size.
func LoggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		reqLog := log.With(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"client_ip", c.ClientIP(),
		)

		attrs := []any{}
		if c.Request.URL.RawQuery != "" {
			attrs = append(attrs, "query", c.Request.URL.RawQuery)
		}
		if contentType := c.GetHeader("Content-Type"); contentType != "" {
			attrs = append(attrs, "content_type", contentType, "content_length", c.Request.ContentLength)
			if isJSON(contentType) && c.Request.ContentLength >= 0 && c.Request.ContentLength <= maxLoggedRequestBody {
				bodyBytes, err := io.ReadAll(c.Request.Body)
				if err == nil {
					c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
					attrs = append(attrs, "body", compactJSON(bodyBytes))
				}
			}
		}
		reqLog.Info("Request", attrs...)

		blw := &bodyLogWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}, limit: maxLoggedResponseBody}
		c.Writer = blw

		c.Next()

		attrs = []any{
			"status", c.Writer.Status(),
			"duration", time.Since(startTime),
			"size", blw.total,
		}
		responseType := c.Writer.Header().Get("Content-Type")
		if isJSON(responseType) && blw.total > 0 && blw.total <= maxLoggedResponseBody {
			attrs = append(attrs, "body", compactJSON(blw.body.Bytes()))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		reqLog.Log(c.Request.Context(), level, "Response", attrs...)
	}
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func compactJSON(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}
