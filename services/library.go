package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cadence/metrics"
	"cadence/types"

	"github.com/rs/zerolog"
)

// LibraryStore is the persistence the library service needs
type LibraryStore interface {
	ListDirectories(ctx context.Context) ([]types.Directory, error)
	GetDirectory(ctx context.Context, id uint) (types.Directory, error)
	ReplaceDirectoryTree(ctx context.Context, directoryID uint, artists []types.Artist) error
	GetFullLibrary(ctx context.Context) ([]types.Artist, error)
	InsertConvertedFile(ctx context.Context, originalPath, convertedPath string) error
	AlbumPathForTrack(ctx context.Context, path string) (string, error)
}

// LibraryService scans registered directories into the store and resolves
// which directory owns a path
type LibraryService struct {
	scanner LibraryScanner
	store   LibraryStore
	metrics *metrics.Metrics
	log     zerolog.Logger

	// scans of one directory are serialized
	locksMu sync.Mutex
	locks   map[uint]*sync.Mutex
}

// NewLibraryService creates a library service
func NewLibraryService(scanner LibraryScanner, store LibraryStore, m *metrics.Metrics, log zerolog.Logger) *LibraryService {
	return &LibraryService{
		scanner: scanner,
		store:   store,
		metrics: m,
		log:     log,
		locks:   make(map[uint]*sync.Mutex),
	}
}

// ScanDirectory rescans path for the registered directory, replaces its
// stored tree, links converted files and returns the full library
func (l *LibraryService) ScanDirectory(ctx context.Context, directoryID uint, path string) ([]types.Artist, error) {
	if _, err := l.store.GetDirectory(ctx, directoryID); err != nil {
		return nil, err
	}

	lock := l.directoryLock(directoryID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	artists, err := l.scanner.Scan(ctx, path)
	l.metrics.ScanDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		l.metrics.ScansTotal.WithLabelValues("error").Inc()
		l.log.Error().Err(err).Str("root", path).Uint("directory_id", directoryID).Msg("scan failed")
		return nil, err
	}
	l.metrics.ScansTotal.WithLabelValues("ok").Inc()
	l.metrics.ScanAnomaliesTotal.Add(float64(countAnomalies(artists)))

	if err := l.store.ReplaceDirectoryTree(ctx, directoryID, artists); err != nil {
		return nil, err
	}
	l.linkConverted(ctx, artists)

	l.log.Info().
		Str("root", path).
		Uint("directory_id", directoryID).
		Int("artists", len(artists)).
		Dur("elapsed", time.Since(start)).
		Msg("directory scanned")

	return l.store.GetFullLibrary(ctx)
}

// Library returns the stored tree
func (l *LibraryService) Library(ctx context.Context) ([]types.Artist, error) {
	return l.store.GetFullLibrary(ctx)
}

// OwningDirectory returns the registered directory containing path. The
// longest matching directory wins.
func (l *LibraryService) OwningDirectory(ctx context.Context, path string) (types.Directory, bool, error) {
	dirs, err := l.store.ListDirectories(ctx)
	if err != nil {
		return types.Directory{}, false, err
	}
	clean := filepath.Clean(path)
	var best types.Directory
	found := false
	for _, d := range dirs {
		if isWithin(clean, filepath.Clean(d.Path)) && (!found || len(d.Path) > len(best.Path)) {
			best, found = d, true
		}
	}
	return best, found, nil
}

// RescanOwning rescans the directory owning trackPath. rescanned is false
// when no registered directory contains the path.
func (l *LibraryService) RescanOwning(ctx context.Context, trackPath string) (library []types.Artist, rescanned bool, err error) {
	dir, ok, err := l.OwningDirectory(ctx, trackPath)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		l.log.Warn().Str("path", trackPath).Msg("no registered directory owns path, skipping rescan")
		return nil, false, nil
	}
	library, err = l.ScanDirectory(ctx, dir.ID, dir.Path)
	if err != nil {
		return nil, false, err
	}
	return library, true, nil
}

// RecordConversion stores a conversion history entry
func (l *LibraryService) RecordConversion(ctx context.Context, originalPath, convertedPath string) error {
	return l.store.InsertConvertedFile(ctx, originalPath, convertedPath)
}

// ConversionOutputDir returns where the conversion of trackPath is written:
// the album's converted folder for root disc tracks and a subfolder named
// after the disc otherwise. Tracks outside the stored library fall back to
// a converted folder next to the track.
func (l *LibraryService) ConversionOutputDir(ctx context.Context, trackPath, convertedDir string) string {
	albumPath, err := l.store.AlbumPathForTrack(ctx, trackPath)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			l.log.Warn().Err(err).Str("path", trackPath).Msg("album lookup failed")
		}
		return filepath.Join(filepath.Dir(trackPath), convertedDir)
	}
	discDir := filepath.Dir(trackPath)
	if discDir == filepath.Clean(albumPath) {
		return filepath.Join(albumPath, convertedDir)
	}
	return filepath.Join(albumPath, convertedDir, filepath.Base(discDir))
}

// convertedKey identifies a track by disc folder and filename stem. Root
// disc tracks use an empty disc name.
type convertedKey struct {
	disc string
	stem string
}

// linkConverted records every converted-folder track against the album
// track it was made from. Files directly in the converted folder match the
// root disc; files in a converted subfolder match the disc of that name. A
// file directly in the converted folder with no root disc counterpart
// matches a disc track only when exactly one disc carries that stem.
func (l *LibraryService) linkConverted(ctx context.Context, artists []types.Artist) {
	for _, artist := range artists {
		for _, album := range artist.Albums {
			if len(album.Converted) == 0 {
				continue
			}
			originals := make(map[convertedKey]string)
			byStem := make(map[string][]string)
			for _, disc := range album.Discs {
				discName := disc.Name
				if disc.IsRoot {
					discName = ""
				}
				for _, t := range disc.Tracks {
					originals[convertedKey{disc: discName, stem: stem(t.Name)}] = t.Path
					if !disc.IsRoot {
						byStem[stem(t.Name)] = append(byStem[stem(t.Name)], t.Path)
					}
				}
			}

			for _, c := range album.Converted {
				key := convertedKey{stem: stem(c.Name)}
				folder := filepath.Dir(c.Path)
				if filepath.Dir(folder) != filepath.Clean(album.Path) {
					key.disc = filepath.Base(folder)
				}
				original, ok := originals[key]
				if !ok && key.disc == "" && len(byStem[key.stem]) == 1 {
					original, ok = byStem[key.stem][0], true
				}
				if !ok {
					continue
				}
				if err := l.store.InsertConvertedFile(ctx, original, c.Path); err != nil {
					l.log.Warn().Err(err).Str("path", c.Path).Msg("link converted file failed")
				}
			}
		}
	}
}

func (l *LibraryService) directoryLock(id uint) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// isWithin reports whether path equals dir or lies below it
func isWithin(path, dir string) bool {
	if path == dir {
		return true
	}
	prefix := dir
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, prefix)
}

func countAnomalies(artists []types.Artist) int {
	n := 0
	for _, a := range artists {
		n += len(a.UnexpectedItems)
		for _, al := range a.Albums {
			n += len(al.UnexpectedItems)
		}
	}
	return n
}
