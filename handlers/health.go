package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"pms-api/models"
	"pms-api/preview"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness along with database and resource stats.
type HealthHandler struct {
	db        *sql.DB
	resources *preview.ResourceStore
}

func NewHealthHandler(db *sql.DB, resources *preview.ResourceStore) *HealthHandler {
	return &HealthHandler{db: db, resources: resources}
}

func (h *HealthHandler) Check(c *gin.Context) {
	info, err := models.GetSystemInfo(c.Request.Context(), h.db)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "degraded",
			"message":   "Database unavailable",
			"timestamp": time.Now().Format(time.RFC3339),
		})
		return
	}

	count, size := h.resources.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   "Server is running",
		"timestamp": time.Now().Format(time.RFC3339),
		"system":    info,
		"resources": gin.H{"count": count, "bytes": size},
	})
}
