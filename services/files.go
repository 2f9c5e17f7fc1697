package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cadence/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// invalidNameChars may not appear in a new file or folder name
const invalidNameChars = `\/:*?"<>|`

// FileService performs the library's filesystem edits
type FileService interface {
	Rename(oldPath, newName string) (string, error)
	DeleteFiles(paths []string) types.DeleteResult
	FixUnnecessarySubfolder(albumPath string) (int, error)
	Browse(path string) (types.BrowseResponse, error)
	GetContentType(path string) string
}

type fileService struct {
	log zerolog.Logger
}

// NewFileService creates a new file service
func NewFileService(log zerolog.Logger) FileService {
	return &fileService{log: log}
}

// Rename renames oldPath to newName within the same parent directory and
// returns the new path
func (fs *fileService) Rename(oldPath, newName string) (string, error) {
	if strings.TrimSpace(oldPath) == "" || strings.TrimSpace(newName) == "" {
		return "", &types.RenameError{Path: oldPath, Invalid: true, Message: "Missing old path or new name."}
	}
	if strings.ContainsAny(newName, invalidNameChars) || newName == "." || newName == ".." {
		return "", &types.RenameError{Path: oldPath, Invalid: true, Message: "New name contains invalid characters."}
	}

	newPath := filepath.Join(filepath.Dir(oldPath), newName)
	if newPath == filepath.Clean(oldPath) {
		return newPath, nil
	}
	if _, err := os.Lstat(newPath); err == nil {
		return "", &types.RenameError{Path: oldPath, Message: "Could not rename. Check permissions and if the directory is in use.", Err: os.ErrExist}
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		fs.log.Error().Err(err).Str("from", oldPath).Str("to", newPath).Msg("rename failed")
		return "", &types.RenameError{Path: oldPath, Message: "Could not rename. Check permissions and if the directory is in use.", Err: err}
	}

	fs.log.Info().Str("from", oldPath).Str("to", newPath).Msg("renamed")
	return newPath, nil
}

// DeleteFiles removes every listed file in parallel. Failures are reported
// per path and never stop the others.
func (fs *fileService) DeleteFiles(paths []string) types.DeleteResult {
	result := types.DeleteResult{Deleted: []string{}, Failed: []types.DeleteFailure{}}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(8)
	for _, p := range paths {
		g.Go(func() error {
			err := removeFile(p)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fs.log.Warn().Err(err).Str("path", p).Msg("delete failed")
				result.Failed = append(result.Failed, types.DeleteFailure{Path: p, Error: err.Error()})
				return nil
			}
			result.Deleted = append(result.Deleted, p)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Deleted)
	return result
}

func removeFile(path string) error {
	if !filepath.IsAbs(path) {
		return errors.New("path must be absolute")
	}
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("path is a directory")
	}
	return os.Remove(path)
}

// FixUnnecessarySubfolder moves the contents of an album's only subfolder
// up into the album and removes the emptied subfolder. It returns the
// number of entries moved.
func (fs *fileService) FixUnnecessarySubfolder(albumPath string) (int, error) {
	fail := func(msg string, err error) (int, error) {
		return 0, &types.SubfolderFixError{AlbumPath: albumPath, Message: msg, Err: err}
	}

	entries, err := os.ReadDir(albumPath)
	if err != nil {
		return fail(fmt.Sprintf("Could not read album folder: %s", albumPath), err)
	}

	var subfolders []os.DirEntry
	existing := make(map[string]bool)
	for _, e := range entries {
		existing[e.Name()] = true
		if e.IsDir() {
			subfolders = append(subfolders, e)
		}
	}
	switch {
	case len(subfolders) == 0:
		return fail("Album folder has no subfolder to remove.", nil)
	case len(subfolders) > 1:
		return fail("Album folder has more than one subfolder; nothing was changed.", nil)
	}

	subName := subfolders[0].Name()
	subPath := filepath.Join(albumPath, subName)
	children, err := os.ReadDir(subPath)
	if err != nil {
		return fail(fmt.Sprintf("Could not read subfolder: %s", subPath), err)
	}

	for _, c := range children {
		if c.Name() != subName && existing[c.Name()] {
			return fail(fmt.Sprintf("%s already exists in the album folder; nothing was changed.", c.Name()), os.ErrExist)
		}
	}

	// a child sharing the subfolder's name needs the subfolder out of the way
	source := subPath
	for _, c := range children {
		if c.Name() == subName {
			source = filepath.Join(albumPath, ".cadence-"+uuid.NewString())
			if err := os.Rename(subPath, source); err != nil {
				return fail("Could not move subfolder contents.", err)
			}
			break
		}
	}

	moved := 0
	for _, c := range children {
		if err := os.Rename(filepath.Join(source, c.Name()), filepath.Join(albumPath, c.Name())); err != nil {
			fs.log.Error().Err(err).Str("album", albumPath).Str("name", c.Name()).Msg("hoist failed")
			return moved, &types.SubfolderFixError{AlbumPath: albumPath, Message: "Could not move subfolder contents.", Mutated: moved > 0 || source != subPath, Err: err}
		}
		moved++
	}

	if err := os.Remove(source); err != nil {
		return moved, &types.SubfolderFixError{AlbumPath: albumPath, Message: "Moved files but could not remove the subfolder.", Mutated: true, Err: err}
	}

	fs.log.Info().Str("album", albumPath).Str("subfolder", subName).Int("moved", moved).Msg("subfolder flattened")
	return moved, nil
}

// Browse lists the subdirectories of path, defaulting to the home directory
func (fs *fileService) Browse(path string) (types.BrowseResponse, error) {
	if strings.TrimSpace(path) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return types.BrowseResponse{}, fmt.Errorf("resolve home directory: %w", err)
		}
		path = home
	}
	current, err := filepath.Abs(path)
	if err != nil {
		return types.BrowseResponse{}, err
	}

	entries, err := os.ReadDir(current)
	if err != nil {
		return types.BrowseResponse{Path: current}, fmt.Errorf("read directory %s: %w", current, err)
	}

	contents := make([]types.BrowseEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			contents = append(contents, types.BrowseEntry{
				Name: e.Name(),
				Type: "directory",
				Path: filepath.Join(current, e.Name()),
			})
		}
	}
	col := collate.New(language.Und)
	sort.SliceStable(contents, func(i, j int) bool {
		return col.CompareString(contents[i].Name, contents[j].Name) < 0
	})

	return types.BrowseResponse{
		Path:     current,
		Parent:   filepath.Dir(current),
		Contents: contents,
	}, nil
}

// GetContentType returns the MIME type for an audio file
func (fs *fileService) GetContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".alac", ".aac":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".opus":
		return "audio/opus"
	case ".wav":
		return "audio/wav"
	case ".aiff", ".aif":
		return "audio/aiff"
	default:
		return "application/octet-stream"
	}
}
