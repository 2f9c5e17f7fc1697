package types

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a directory, job or file does not exist
	ErrNotFound = errors.New("not found")
	// ErrJobNotRemovable is returned when removing a job that is converting
	ErrJobNotRemovable = errors.New("job is converting and cannot be removed")
	// ErrUnsupportedFormat is returned for a target format with no codec mapping
	ErrUnsupportedFormat = errors.New("unsupported target format")
)

// ScanPathError means the scan root itself could not be read
type ScanPathError struct {
	Path string
	Err  error
}

func (e *ScanPathError) Error() string {
	return fmt.Sprintf("Failed to scan %s. Please check path and permissions.", e.Path)
}

func (e *ScanPathError) Unwrap() error { return e.Err }

// MetadataReadError means one file's technical metadata could not be read
type MetadataReadError struct {
	Path string
	Err  error
}

func (e *MetadataReadError) Error() string {
	return fmt.Sprintf("read metadata %s: %v", e.Path, e.Err)
}

func (e *MetadataReadError) Unwrap() error { return e.Err }

// RenameError is either a validation failure on the new name (Invalid) or a
// filesystem failure while renaming.
type RenameError struct {
	Path    string
	Invalid bool
	Message string
	Err     error
}

func (e *RenameError) Error() string {
	return e.Message
}

func (e *RenameError) Unwrap() error { return e.Err }

// QueueConflictError means the source path already has a job in the queue
type QueueConflictError struct {
	Path string
}

func (e *QueueConflictError) Error() string {
	return fmt.Sprintf("%s is already in the conversion queue", e.Path)
}

// TranscodeError carries the external transcoder's failure message
type TranscodeError struct {
	Path    string
	Message string
	Err     error
}

func (e *TranscodeError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "transcode failed"
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// SubfolderFixError means an album folder could not be flattened. No
// filesystem change has been made when Mutated is false.
type SubfolderFixError struct {
	AlbumPath string
	Message   string
	Mutated   bool
	Err       error
}

func (e *SubfolderFixError) Error() string {
	return e.Message
}

func (e *SubfolderFixError) Unwrap() error { return e.Err }
