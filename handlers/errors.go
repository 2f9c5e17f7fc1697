package handlers

import (
	"errors"
	"net/http"

	"cadence/types"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError maps a service error onto a status code and JSON body
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	var (
		scanErr     *types.ScanPathError
		renameErr   *types.RenameError
		conflictErr *types.QueueConflictError
		fixErr      *types.SubfolderFixError
	)

	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.As(err, &scanErr):
		message = scanErr.Error()
	case errors.As(err, &renameErr):
		message = renameErr.Message
		if renameErr.Invalid {
			status = http.StatusBadRequest
		}
	case errors.As(err, &conflictErr):
		status = http.StatusConflict
		message = "Track is already in the queue."
	case errors.As(err, &fixErr):
		status = http.StatusBadRequest
		if fixErr.Mutated {
			status = http.StatusInternalServerError
		}
		message = fixErr.Message
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, types.ErrUnsupportedFormat):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, types.ErrJobNotRemovable):
		status = http.StatusConflict
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request rejected")
	}
	c.JSON(status, gin.H{"error": message})
}

// badRequest rejects a malformed request body
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
