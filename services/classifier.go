package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"cadence/types"

	"github.com/rs/zerolog"
)

// Classification is the result of classifying one folder's files
type Classification struct {
	Tracks     []types.Track
	OtherFiles []types.UnexpectedItem
}

// DirectoryClassifier separates a folder's playable tracks from everything else
type DirectoryClassifier interface {
	Classify(ctx context.Context, dir string) (Classification, error)
}

type directoryClassifier struct {
	probe      MetadataProbe
	extensions map[string]bool
	log        zerolog.Logger
}

// NewDirectoryClassifier creates a classifier accepting the given
// lowercase, dot-prefixed extensions
func NewDirectoryClassifier(probe MetadataProbe, extensions []string, log zerolog.Logger) DirectoryClassifier {
	exts := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = true
	}
	return &directoryClassifier{probe: probe, extensions: exts, log: log}
}

// Classify lists the immediate files of dir without recursing. Probe
// failures become anomalies. Only a failure to list dir is returned.
func (c *directoryClassifier) Classify(ctx context.Context, dir string) (Classification, error) {
	result := Classification{
		Tracks:     []types.Track{},
		OtherFiles: []types.UnexpectedItem{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if isDir(dir, entry) {
			continue
		}

		name := entry.Name()
		path := filepath.Join(dir, name)
		ext := strings.ToLower(filepath.Ext(name))

		if !c.extensions[ext] {
			result.OtherFiles = append(result.OtherFiles, types.UnexpectedItem{
				Name: name, Path: path, Reason: types.ReasonUnsupportedType,
			})
			continue
		}

		quality, err := c.probe.Probe(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			var readErr *types.MetadataReadError
			if errors.As(err, &readErr) {
				c.log.Debug().Err(readErr.Err).Str("path", path).Msg("metadata unreadable")
			}
			result.OtherFiles = append(result.OtherFiles, types.UnexpectedItem{
				Name: name, Path: path, Reason: types.ReasonMetadataUnreadable,
			})
			continue
		}

		result.Tracks = append(result.Tracks, types.Track{
			Name:       name,
			Path:       path,
			Extension:  quality.Extension,
			BitDepth:   quality.BitDepth,
			SampleRate: quality.SampleRate,
			Bitrate:    quality.Bitrate,
		})
	}

	return result, nil
}

// isDir reports whether entry is a directory, following symlinks
func isDir(parent string, entry os.DirEntry) bool {
	if entry.IsDir() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(parent, entry.Name()))
	return err == nil && info.IsDir()
}
