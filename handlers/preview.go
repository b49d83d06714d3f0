package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"pms-api/preview"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const heartbeatInterval = 30 * time.Second

type openRequest struct {
	DocumentID string `json:"documentId" binding:"required,max=64"`
}

// PageView is one displayable page of a Ready preview.
type PageView struct {
	PageNumber  int    `json:"pageNumber"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

type ErrorView struct {
	Reason    preview.FailureKind `json:"reason"`
	Message   string              `json:"message"`
	Retryable bool                `json:"retryable"`
}

type ActionView struct {
	Kind     string `json:"kind"`
	FileName string `json:"fileName"`
	URL      string `json:"url"`
}

// StateView is the JSON form of a session state.
type StateView struct {
	State      preview.StateKind `json:"state"`
	DocumentID string            `json:"documentId,omitempty"`
	Format     string            `json:"format,omitempty"`
	Pages      []PageView        `json:"pages,omitempty"`
	TotalPages int               `json:"totalPages,omitempty"`
	Truncated  bool              `json:"truncated,omitempty"`
	Error      *ErrorView        `json:"error,omitempty"`
	Action     *ActionView       `json:"action,omitempty"`
}

// PreviewHandler keeps one preview session per surface ID.
type PreviewHandler struct {
	pipeline     *preview.Pipeline
	resourceBase string
	log          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*preview.Session
}

// NewPreviewHandler creates a handler. Page URLs are resourceBase followed
// by the resource ID.
func NewPreviewHandler(pipeline *preview.Pipeline, resourceBase string, log *slog.Logger) *PreviewHandler {
	return &PreviewHandler{
		pipeline:     pipeline,
		resourceBase: resourceBase,
		log:          log,
		sessions:     make(map[string]*preview.Session),
	}
}

// Open previews a document on a surface, replacing whatever it showed.
func (h *PreviewHandler) Open(c *gin.Context) {
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	// The preview outlives the request; a later Open or Close cancels it.
	session := h.session(c.Param("surfaceId"), true)
	state := session.Open(context.WithoutCancel(c.Request.Context()), req.DocumentID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"preview": h.view(state),
	})
}

// State returns the current state of a surface.
func (h *PreviewHandler) State(c *gin.Context) {
	session := h.session(c.Param("surfaceId"), false)
	if session == nil {
		surfaceNotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"preview": h.view(session.State()),
	})
}

// Events streams the states of a surface as server-sent events until the
// client goes away or the surface is closed.
func (h *PreviewHandler) Events(c *gin.Context) {
	surfaceID := c.Param("surfaceId")
	session := h.session(surfaceID, false)
	if session == nil {
		surfaceNotFound(c)
		return
	}

	states, unsubscribe := session.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case state, ok := <-states:
			if !ok {
				return false
			}
			c.SSEvent("state", h.view(state))
			_, isIdle := state.(preview.Idle)
			return !isIdle || h.session(surfaceID, false) == session
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Close releases a surface's pages and forgets it. Closing an unknown
// surface succeeds.
func (h *PreviewHandler) Close(c *gin.Context) {
	surfaceID := c.Param("surfaceId")

	h.mu.Lock()
	session := h.sessions[surfaceID]
	delete(h.sessions, surfaceID)
	h.mu.Unlock()

	if session != nil {
		session.Close()
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"preview": h.view(preview.Idle{}),
	})
}

// Resource serves a rendered page or pass-through document.
func (h *PreviewHandler) Resource(c *gin.Context) {
	res, ok := h.pipeline.Resources.Get(c.Param("resourceId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "resource_not_found",
			"message": "Resource not found or already released",
		})
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

// CloseAll closes every surface.
func (h *PreviewHandler) CloseAll() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*preview.Session)
	h.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

func (h *PreviewHandler) session(surfaceID string, create bool) *preview.Session {
	h.mu.Lock()
	defer h.mu.Unlock()

	session, exists := h.sessions[surfaceID]
	if !exists && create {
		session = preview.NewSession(h.pipeline, h.log.With("surface_id", surfaceID))
		h.sessions[surfaceID] = session
	}
	return session
}

func (h *PreviewHandler) view(state preview.State) StateView {
	view := StateView{State: state.Kind()}

	switch s := state.(type) {
	case preview.Loading:
		view.DocumentID = s.DocumentID
	case preview.Ready:
		view.DocumentID = s.DocumentID
		view.Format = s.Format.String()
		view.TotalPages = s.TotalPages
		view.Truncated = s.TotalPages > len(s.Pages)
		view.Pages = lo.Map(s.Pages, func(p preview.RenderedPage, _ int) PageView {
			return PageView{
				PageNumber:  p.PageNumber,
				URL:         h.resourceBase + p.Resource.ID,
				ContentType: p.Resource.ContentType,
				Width:       p.Resource.Width,
				Height:      p.Resource.Height,
			}
		})
	case preview.Failed:
		view.DocumentID = s.DocumentID
		view.Error = &ErrorView{Reason: s.Reason, Message: s.Message, Retryable: s.Retryable}
	case preview.Delegated:
		view.DocumentID = s.DocumentID
		view.Action = &ActionView{Kind: s.Action.Kind, FileName: s.Action.FileName, URL: s.Action.URL}
	}
	return view
}

func surfaceNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"error":   "surface_not_found",
		"message": "No preview is open on this surface",
	})
}
