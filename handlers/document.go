package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"pms-api/models"
	"pms-api/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type uploadRequest struct {
	PatientID string `validate:"required,max=64"`
	FileName  string `validate:"required,max=255"`
}

// DocumentHandler serves document upload, metadata and download.
type DocumentHandler struct {
	store          *models.DocumentStore
	maxUploadBytes int64
	validate       *validator.Validate
	log            *slog.Logger
}

func NewDocumentHandler(store *models.DocumentStore, maxUploadBytes int64, log *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		store:          store,
		maxUploadBytes: maxUploadBytes,
		validate:       validator.New(),
		log:            log,
	}
}

// Upload stores a multipart "file" for the patient in "patientId".
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_request",
			"message": "File is required",
		})
		return
	}
	defer file.Close()

	req := uploadRequest{PatientID: c.PostForm("patientId"), FileName: filepath.Base(header.Filename)}
	if err := h.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "file_too_large",
			"message": fmt.Sprintf("File size exceeds %dMB limit", h.maxUploadBytes>>20),
			"maxSize": h.maxUploadBytes,
		})
		return
	}

	fileData, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "file_read_error",
			"message": err.Error(),
		})
		return
	}

	if int64(len(fileData)) > h.maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "file_too_large",
			"message": fmt.Sprintf("File size exceeds %dMB limit", h.maxUploadBytes>>20),
			"maxSize": h.maxUploadBytes,
		})
		return
	}

	hash := sha256.Sum256(fileData)
	doc := &models.Document{
		PatientID:   req.PatientID,
		FileName:    req.FileName,
		ContentType: declaredContentType(header.Header.Get("Content-Type"), fileData),
		Hash:        hex.EncodeToString(hash[:]),
	}
	if err := h.store.Create(c.Request.Context(), doc, fileData); err != nil {
		h.log.Error("Failed to store document", "patient_id", req.PatientID, "file_name", req.FileName, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "file_save_error",
			"message": "Failed to store document",
		})
		return
	}

	h.log.Info("Document uploaded", "document_id", doc.ID, "patient_id", doc.PatientID, "size", doc.Size)
	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "File uploaded successfully",
		"document": doc,
	})
}

// Get returns the metadata of a document.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"document": doc,
	})
}

// ListByPatient returns every document of a patient.
func (h *DocumentHandler) ListByPatient(c *gin.Context) {
	docs, err := h.store.ListByPatient(c.Request.Context(), c.Param("patientId"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
	})
}

// Download serves the stored bytes. Previewable types are sent inline so a
// delegated preview can open them in the browser.
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, ok := h.lookup(c)
	if !ok {
		return
	}

	fullPath := h.store.Path(doc)
	if !utils.FileExists(fullPath) {
		h.log.Warn("Document file missing on disk", "document_id", doc.ID, "path", fullPath)
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "file_not_found",
			"message": "File not found on disk",
		})
		return
	}

	contentType := doc.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = getContentType(strings.ToLower(filepath.Ext(doc.FileName)))
	}

	disposition := "attachment"
	if contentType == "application/pdf" || strings.HasPrefix(contentType, "image/") {
		disposition = "inline"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, doc.FileName))
	c.File(fullPath)
}

func (h *DocumentHandler) lookup(c *gin.Context) (*models.Document, bool) {
	documentID := c.Param("documentId")
	doc, err := h.store.Get(c.Request.Context(), documentID)
	if errors.Is(err, models.ErrDocumentNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "not_found",
			"message": "Document not found",
		})
		return nil, false
	}
	if err != nil {
		c.Error(err)
		return nil, false
	}
	return doc, true
}

// declaredContentType keeps the uploader's type and sniffs one only when it
// is missing or generic.
func declaredContentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return mimetype.Detect(data).String()
}

func getContentType(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	case ".webp":
		return "image/webp"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}
