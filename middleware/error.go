package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorMiddleware turns errors attached with c.Error into the JSON error
// envelope, unless the handler already wrote a response.
func ErrorMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last()
		log.Error("Error processing request", "path", c.Request.URL.Path, "error", err.Err)

		if c.Writer.Written() {
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_server_error",
			"message": "An internal error occurred",
		})
	}
}
