package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"

	"cadence/services"
	"cadence/types"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DirectoryStore manages the registered scan roots
type DirectoryStore interface {
	ListDirectories(ctx context.Context) ([]types.Directory, error)
	AddDirectory(ctx context.Context, path string) (types.Directory, error)
	RemoveDirectory(ctx context.Context, id uint) error
}

// LibraryHandler handles scan, library and directory endpoints
type LibraryHandler struct {
	library     *services.LibraryService
	directories DirectoryStore
	publisher   services.Publisher
	log         zerolog.Logger
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(library *services.LibraryService, directories DirectoryStore, publisher services.Publisher, log zerolog.Logger) *LibraryHandler {
	return &LibraryHandler{
		library:     library,
		directories: directories,
		publisher:   publisher,
		log:         log,
	}
}

// Scan rescans a registered directory and returns the full library
func (h *LibraryHandler) Scan(c *gin.Context) {
	var req types.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "directoryId and path are required")
		return
	}

	library, err := h.library.ScanDirectory(c.Request.Context(), req.DirectoryID, req.Path)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if h.publisher != nil {
		h.publisher.Publish(types.LibraryUpdate(library))
	}
	c.JSON(http.StatusOK, library)
}

// GetLibrary returns the stored library as a tree, or flattened with ?view=flat
func (h *LibraryHandler) GetLibrary(c *gin.Context) {
	library, err := h.library.Library(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if c.Query("view") == "flat" {
		c.JSON(http.StatusOK, types.Flatten(library))
		return
	}
	c.JSON(http.StatusOK, library)
}

// Compare classifies every stored track against target quality settings
func (h *LibraryHandler) Compare(c *gin.Context) {
	var req types.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	library, err := h.library.Library(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, services.CompareLibrary(library, req.QualitySettings))
}

// ListDirectories returns the registered scan roots
func (h *LibraryHandler) ListDirectories(c *gin.Context) {
	dirs, err := h.directories.ListDirectories(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, dirs)
}

// AddDirectory registers a scan root. Registering a known path returns the
// existing entry.
func (h *LibraryHandler) AddDirectory(c *gin.Context) {
	var req types.DirectoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "path is required")
		return
	}
	if !filepath.IsAbs(req.Path) {
		badRequest(c, "path must be absolute")
		return
	}

	dir, err := h.directories.AddDirectory(c.Request.Context(), filepath.Clean(req.Path))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Info().Uint("directory_id", dir.ID).Str("path", dir.Path).Msg("directory registered")
	c.JSON(http.StatusCreated, dir)
}

// RemoveDirectory unregisters a scan root and drops its library subtree
func (h *LibraryHandler) RemoveDirectory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid directory id")
		return
	}

	if err := h.directories.RemoveDirectory(c.Request.Context(), uint(id)); err != nil {
		respondError(c, h.log, err)
		return
	}

	library, err := h.library.Library(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if h.publisher != nil {
		h.publisher.Publish(types.LibraryUpdate(library))
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
