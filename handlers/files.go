package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cadence/services"
	"cadence/types"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PathOwner resolves the registered directory containing a path
type PathOwner interface {
	OwningDirectory(ctx context.Context, path string) (types.Directory, bool, error)
}

// FileHandler handles file management endpoints
type FileHandler struct {
	fileService services.FileService
	owner       PathOwner
	log         zerolog.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(fileService services.FileService, owner PathOwner, log zerolog.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		owner:       owner,
		log:         log,
	}
}

// Rename renames a file or folder within its parent directory
func (h *FileHandler) Rename(c *gin.Context) {
	var req types.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing old path or new name.")
		return
	}

	newPath, err := h.fileService.Rename(req.OldPath, req.NewName)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"newPath": newPath,
	})
}

// DeleteFiles removes the listed files. Failures are reported per path.
func (h *FileHandler) DeleteFiles(c *gin.Context) {
	var req types.DeleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.FilePaths) == 0 {
		badRequest(c, "filePaths must be a non-empty list")
		return
	}

	result := h.fileService.DeleteFiles(req.FilePaths)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"deleted": result.Deleted,
		"failed":  result.Failed,
	})
}

// FixUnnecessarySubfolder hoists the contents of an album's only subfolder
func (h *FileHandler) FixUnnecessarySubfolder(c *gin.Context) {
	var req types.SubfolderFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "albumPath is required")
		return
	}

	moved, err := h.fileService.FixUnnecessarySubfolder(req.AlbumPath)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"moved":   moved,
	})
}

// Browse lists the subdirectories of a path
func (h *FileHandler) Browse(c *gin.Context) {
	var req types.BrowseRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	resp, err := h.fileService.Browse(req.Path)
	if err != nil {
		h.log.Warn().Err(err).Str("path", req.Path).Msg("browse failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Could not read directory: %s. Please check server permissions.", resp.Path),
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StreamFile serves an audio file with range support. Only files inside a
// registered directory are served.
func (h *FileHandler) StreamFile(c *gin.Context) {
	requested := c.Query("path")
	if requested == "" || !filepath.IsAbs(requested) {
		badRequest(c, "an absolute path is required")
		return
	}
	requested = filepath.Clean(requested)

	if _, ok := streamableExtensions[strings.ToLower(filepath.Ext(requested))]; !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "file extension not allowed"})
		return
	}

	_, owned, err := h.owner.OwningDirectory(c.Request.Context(), requested)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if !owned {
		c.JSON(http.StatusForbidden, gin.H{"error": "path is outside every registered directory"})
		return
	}

	file, err := os.Open(requested)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		h.log.Error().Err(err).Str("path", requested).Msg("open stream file failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "file access error"})
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		badRequest(c, "path is not a file")
		return
	}

	c.Header("Content-Type", h.fileService.GetContentType(requested))
	c.Header("Cache-Control", "public, max-age=3600")
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), file)
}

var streamableExtensions = map[string]struct{}{
	".flac": {}, ".mp3": {}, ".m4a": {}, ".aac": {}, ".alac": {},
	".ogg": {}, ".opus": {}, ".wav": {}, ".aiff": {}, ".aif": {},
}
