package services

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"cadence/types"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// ScanProgressFunc is called after each artist folder finishes
type ScanProgressFunc func(done, total int, artist string)

// LibraryScanner walks a music root into an artist, album, disc, track tree
type LibraryScanner interface {
	Scan(ctx context.Context, root string) ([]types.Artist, error)
	ScanWithProgress(ctx context.Context, root string, progress ScanProgressFunc) ([]types.Artist, error)
}

type libraryScanner struct {
	classifier   DirectoryClassifier
	convertedDir string
	concurrency  int
	log          zerolog.Logger
}

// NewLibraryScanner creates a scanner. convertedDir names the reserved
// album subfolder holding conversion outputs, matched case-insensitively.
func NewLibraryScanner(classifier DirectoryClassifier, convertedDir string, concurrency int, log zerolog.Logger) LibraryScanner {
	if convertedDir == "" {
		convertedDir = "converted"
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &libraryScanner{
		classifier:   classifier,
		convertedDir: convertedDir,
		concurrency:  concurrency,
		log:          log,
	}
}

// Scan builds the tree for root
func (s *libraryScanner) Scan(ctx context.Context, root string) ([]types.Artist, error) {
	return s.ScanWithProgress(ctx, root, nil)
}

// ScanWithProgress builds the tree for root, reporting each finished
// artist. Only an unreadable root or a cancelled context fails the scan;
// unreadable subtrees are recorded as anomalies.
func (s *libraryScanner) ScanWithProgress(ctx context.Context, root string, progress ScanProgressFunc) ([]types.Artist, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &types.ScanPathError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &types.ScanPathError{Path: root, Err: os.ErrInvalid}
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &types.ScanPathError{Path: root, Err: err}
	}

	var artistDirs []os.DirEntry
	for _, e := range entries {
		if isDir(root, e) {
			artistDirs = append(artistDirs, e)
		}
	}

	results := make([]*types.Artist, len(artistDirs))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, e := range artistDirs {
		g.Go(func() error {
			artist, err := s.scanArtist(gctx, e.Name(), filepath.Join(root, e.Name()))
			if err != nil {
				return err
			}
			results[i] = artist
			if progress != nil {
				progress(int(done.Add(1)), len(artistDirs), e.Name())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	artists := make([]types.Artist, 0, len(results))
	for _, a := range results {
		if a != nil {
			artists = append(artists, *a)
		}
	}

	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(artists, func(i, j int) bool {
		return col.CompareString(artists[i].Name, artists[j].Name) < 0
	})
	s.log.Debug().Str("root", root).Int("artists", len(artists)).Msg("scan finished")
	return artists, nil
}

// scanArtist returns nil when the folder holds no albums and no anomalies
func (s *libraryScanner) scanArtist(ctx context.Context, name, path string) (*types.Artist, error) {
	artist := &types.Artist{
		Name:            name,
		Path:            path,
		UnexpectedItems: []types.UnexpectedItem{},
		Albums:          []types.Album{},
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.log.Warn().Err(err).Str("path", path).Msg("artist folder unreadable")
		artist.UnexpectedItems = append(artist.UnexpectedItems, types.UnexpectedItem{
			Name: name, Path: path, Reason: types.ReasonUnreadableDir,
		})
		return artist, nil
	}

	var albumDirs []os.DirEntry
	for _, e := range entries {
		if isDir(path, e) {
			albumDirs = append(albumDirs, e)
			continue
		}
		artist.UnexpectedItems = append(artist.UnexpectedItems, types.UnexpectedItem{
			Name: e.Name(), Path: filepath.Join(path, e.Name()), Reason: types.ReasonArtistFile,
		})
	}

	albums := make([]*types.Album, len(albumDirs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, e := range albumDirs {
		g.Go(func() error {
			album, err := s.scanAlbum(gctx, e.Name(), filepath.Join(path, e.Name()))
			if err != nil {
				return err
			}
			albums[i] = album
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, a := range albums {
		if a != nil {
			artist.Albums = append(artist.Albums, *a)
		}
	}
	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(artist.Albums, func(i, j int) bool {
		return col.CompareString(artist.Albums[i].Title, artist.Albums[j].Title) < 0
	})

	if len(artist.Albums) == 0 && len(artist.UnexpectedItems) == 0 {
		return nil, nil
	}
	return artist, nil
}

// scanAlbum returns nil when the folder holds no discs and no anomalies
func (s *libraryScanner) scanAlbum(ctx context.Context, title, path string) (*types.Album, error) {
	album := &types.Album{
		Title:           title,
		Path:            path,
		UnexpectedItems: []types.UnexpectedItem{},
		Discs:           []types.Disc{},
	}
	unreadable := func(name, p string, err error) {
		s.log.Warn().Err(err).Str("path", p).Msg("album folder unreadable")
		album.UnexpectedItems = append(album.UnexpectedItems, types.UnexpectedItem{
			Name: name, Path: p, Reason: types.ReasonUnreadableDir,
		})
	}

	rootFiles, err := s.classifier.Classify(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		unreadable(title, path, err)
		return album, nil
	}
	if len(rootFiles.Tracks) > 0 {
		album.Discs = append(album.Discs, types.Disc{
			Name:   title,
			Path:   path,
			IsRoot: true,
			Tracks: rootFiles.Tracks,
		})
	}
	for _, item := range rootFiles.OtherFiles {
		item.Reason = types.ReasonAlbumFile
		album.UnexpectedItems = append(album.UnexpectedItems, item)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		unreadable(title, path, err)
		return album, nil
	}

	for _, e := range entries {
		if !isDir(path, e) {
			continue
		}
		name := e.Name()
		subPath := filepath.Join(path, name)

		if strings.EqualFold(name, s.convertedDir) {
			converted, err := s.scanConverted(ctx, subPath)
			if err != nil {
				return nil, err
			}
			album.Converted = append(album.Converted, converted...)
			continue
		}

		discEntries, err := os.ReadDir(subPath)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			unreadable(name, subPath, err)
			continue
		}
		if hasSubdirectory(subPath, discEntries) {
			album.UnexpectedItems = append(album.UnexpectedItems, types.UnexpectedItem{
				Name: name, Path: subPath, Reason: types.ReasonNestedDisc,
			})
			continue
		}

		disc, err := s.classifier.Classify(ctx, subPath)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			unreadable(name, subPath, err)
			continue
		}
		if len(disc.Tracks) > 0 {
			album.Discs = append(album.Discs, types.Disc{
				Name:   name,
				Path:   subPath,
				IsRoot: false,
				Tracks: disc.Tracks,
			})
		}
		for _, item := range disc.OtherFiles {
			item.Reason = types.DiscFileReason(name)
			album.UnexpectedItems = append(album.UnexpectedItems, item)
		}
	}

	if len(album.Discs) == 0 && len(album.UnexpectedItems) == 0 {
		return nil, nil
	}
	return album, nil
}

// scanConverted collects the tracks of a converted folder and of its
// per-disc subfolders. Only a cancelled context is returned as an error.
func (s *libraryScanner) scanConverted(ctx context.Context, path string) ([]types.Track, error) {
	folders := []string{path}
	if entries, err := os.ReadDir(path); err == nil {
		for _, e := range entries {
			if isDir(path, e) {
				folders = append(folders, filepath.Join(path, e.Name()))
			}
		}
	}

	var tracks []types.Track
	for _, folder := range folders {
		converted, err := s.classifier.Classify(ctx, folder)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.log.Warn().Err(err).Str("path", folder).Msg("converted folder unreadable")
			continue
		}
		tracks = append(tracks, converted.Tracks...)
	}
	return tracks, nil
}

func hasSubdirectory(dir string, entries []os.DirEntry) bool {
	for _, e := range entries {
		if isDir(dir, e) {
			return true
		}
	}
	return false
}
