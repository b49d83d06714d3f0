package handlers

import "github.com/gin-gonic/gin"

// Handlers groups everything mounted under the API prefix.
type Handlers struct {
	Health    *HealthHandler
	Documents *DocumentHandler
	Previews  *PreviewHandler
}

// RegisterRoutes mounts the API on api.
func RegisterRoutes(api *gin.RouterGroup, h *Handlers) {
	api.GET("/health", h.Health.Check)

	api.POST("/documents", h.Documents.Upload)
	api.GET("/documents/:documentId", h.Documents.Get)
	api.GET("/documents/:documentId/download", h.Documents.Download)
	api.GET("/patients/:patientId/documents", h.Documents.ListByPatient)

	api.POST("/previews/:surfaceId/open", h.Previews.Open)
	api.GET("/previews/:surfaceId", h.Previews.State)
	api.GET("/previews/:surfaceId/events", h.Previews.Events)
	api.DELETE("/previews/:surfaceId", h.Previews.Close)

	api.GET("/resources/:resourceId", h.Previews.Resource)
}
