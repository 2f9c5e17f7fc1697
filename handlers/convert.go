package handlers

import (
	"context"
	"net/http"
	"strings"

	"cadence/services"
	"cadence/types"
	"cadence/websocket"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ConversionHistory lists completed conversions
type ConversionHistory interface {
	ListConvertedFiles(ctx context.Context) ([]types.ConvertedFile, error)
}

// ConvertHandler handles conversion queue endpoints and the live channel
type ConvertHandler struct {
	worker  *services.ConversionWorker
	queue   services.JobQueue
	history ConversionHistory
	hub     websocket.Hub
	log     zerolog.Logger
}

// NewConvertHandler creates a new conversion handler
func NewConvertHandler(worker *services.ConversionWorker, queue services.JobQueue, history ConversionHistory, hub websocket.Hub, log zerolog.Logger) *ConvertHandler {
	return &ConvertHandler{
		worker:  worker,
		queue:   queue,
		history: history,
		hub:     hub,
		log:     log,
	}
}

// Add queues a track for conversion
func (h *ConvertHandler) Add(c *gin.Context) {
	var req types.ConvertAddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Track.Path) == "" {
		badRequest(c, "track path is required")
		return
	}
	if strings.TrimSpace(req.QualitySettings.Format) == "" {
		badRequest(c, "target format is required")
		return
	}

	job, err := h.worker.Enqueue(req.Track, req.QualitySettings)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Track added to queue.",
		"job":     job,
	})
}

// Start runs the next pending job if the worker is idle. Calling it while a
// job is running or the queue is paused changes nothing.
func (h *ConvertHandler) Start(c *gin.Context) {
	h.worker.Kick()
	c.JSON(http.StatusOK, gin.H{"message": "Conversion queue started."})
}

// Pause toggles the pause flag
func (h *ConvertHandler) Pause(c *gin.Context) {
	paused := h.worker.TogglePause()
	c.JSON(http.StatusOK, gin.H{"isPaused": paused})
}

// Clear drops every finished job
func (h *ConvertHandler) Clear(c *gin.Context) {
	removed := h.queue.ClearCompleted()
	c.JSON(http.StatusOK, gin.H{
		"message": "Cleared completed jobs.",
		"removed": removed,
	})
}

// Remove drops one pending or finished job
func (h *ConvertHandler) Remove(c *gin.Context) {
	var req types.ConvertRemoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "path is required")
		return
	}

	if err := h.queue.Remove(req.Path); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job removed from queue."})
}

// Queue returns the current queue
func (h *ConvertHandler) Queue(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"queue":    h.queue.Snapshot(),
		"isPaused": h.queue.IsPaused(),
	})
}

// History lists recorded conversions
func (h *ConvertHandler) History(c *gin.Context) {
	files, err := h.history.ListConvertedFiles(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, files)
}

// LiveChannel upgrades the connection to a live channel observer
func (h *ConvertHandler) LiveChannel(c *gin.Context) {
	if err := websocket.ServeWS(h.hub, c.Writer, c.Request, h.log); err != nil {
		// the upgrader has already written the HTTP error
		h.log.Warn().Err(err).Msg("live channel upgrade failed")
	}
}
