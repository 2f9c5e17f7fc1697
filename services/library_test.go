package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cadence/metrics"
	"cadence/store"
	"cadence/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type libraryFixture struct {
	service *LibraryService
	store   *store.Store
	metrics *metrics.Metrics
	root    string
}

func newLibraryFixture(t *testing.T) *libraryFixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "library.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m := metrics.New()
	return &libraryFixture{
		service: NewLibraryService(newTestScanner(newFakeProbe()), st, m, zerolog.Nop()),
		store:   st,
		metrics: m,
		root:    t.TempDir(),
	}
}

func TestLibraryService_ScanDirectoryPersists(t *testing.T) {
	f := newLibraryFixture(t)
	ctx := context.Background()
	album := filepath.Join(f.root, "ArtistA", "AlbumB")
	writeFile(t, filepath.Join(album, "01.flac"), "x")
	writeFile(t, filepath.Join(album, "02.flac"), "x")
	writeFile(t, filepath.Join(album, "notes.txt"), "x")

	dir, err := f.store.AddDirectory(ctx, f.root)
	require.NoError(t, err)

	library, err := f.service.ScanDirectory(ctx, dir.ID, dir.Path)
	require.NoError(t, err)
	require.Len(t, library, 1)
	require.Len(t, library[0].Albums, 1)
	require.Len(t, library[0].Albums[0].Discs, 1)
	assert.Len(t, library[0].Albums[0].Discs[0].Tracks, 2)
	assert.Len(t, library[0].Albums[0].UnexpectedItems, 1)

	stored, err := f.service.Library(ctx)
	require.NoError(t, err)
	assert.Equal(t, library, stored)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScansTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScanAnomaliesTotal))

	// a rescan fully replaces the directory's tree
	require.NoError(t, os.Remove(filepath.Join(album, "02.flac")))
	library, err = f.service.ScanDirectory(ctx, dir.ID, dir.Path)
	require.NoError(t, err)
	assert.Len(t, library[0].Albums[0].Discs[0].Tracks, 1)
}

func TestLibraryService_ScanUnknownDirectory(t *testing.T) {
	f := newLibraryFixture(t)

	_, err := f.service.ScanDirectory(context.Background(), 42, f.root)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestLibraryService_ScanMissingRoot(t *testing.T) {
	f := newLibraryFixture(t)
	ctx := context.Background()
	missing := filepath.Join(f.root, "gone")

	dir, err := f.store.AddDirectory(ctx, missing)
	require.NoError(t, err)

	_, err = f.service.ScanDirectory(ctx, dir.ID, dir.Path)
	var pathErr *types.ScanPathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScansTotal.WithLabelValues("error")))
}

func TestLibraryService_LinksConvertedFiles(t *testing.T) {
	f := newLibraryFixture(t)
	ctx := context.Background()
	album := filepath.Join(f.root, "ArtistA", "AlbumB")
	writeFile(t, filepath.Join(album, "01 Intro.flac"), "x")
	writeFile(t, filepath.Join(album, "converted", "01 Intro.mp3"), "x")
	writeFile(t, filepath.Join(album, "converted", "99 Orphan.mp3"), "x")

	dir, err := f.store.AddDirectory(ctx, f.root)
	require.NoError(t, err)
	_, err = f.service.ScanDirectory(ctx, dir.ID, dir.Path)
	require.NoError(t, err)

	history, err := f.store.ListConvertedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, filepath.Join(album, "01 Intro.flac"), history[0].OriginalPath)
	assert.Equal(t, filepath.Join(album, "converted", "01 Intro.mp3"), history[0].ConvertedPath)
	assert.NotNil(t, history[0].OriginalTrackID)
}

func TestLibraryService_OwningDirectory(t *testing.T) {
	f := newLibraryFixture(t)
	ctx := context.Background()
	outer := filepath.Join(f.root, "music")
	inner := filepath.Join(outer, "lossless")

	_, err := f.store.AddDirectory(ctx, outer)
	require.NoError(t, err)
	_, err = f.store.AddDirectory(ctx, inner)
	require.NoError(t, err)

	tests := []struct {
		path  string
		want  string
		owned bool
	}{
		{filepath.Join(inner, "A", "B", "1.flac"), inner, true},
		{filepath.Join(outer, "A", "B", "1.flac"), outer, true},
		{outer, outer, true},
		{filepath.Join(f.root, "musicbox", "1.flac"), "", false},
		{"/elsewhere/1.flac", "", false},
	}
	for _, tt := range tests {
		dir, ok, err := f.service.OwningDirectory(ctx, tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.owned, ok, tt.path)
		assert.Equal(t, tt.want, dir.Path, tt.path)
	}
}

func TestLibraryService_RescanOwning(t *testing.T) {
	f := newLibraryFixture(t)
	ctx := context.Background()
	trackPath := filepath.Join(f.root, "A", "B", "1.flac")
	writeFile(t, trackPath, "x")

	_, rescanned, err := f.service.RescanOwning(ctx, trackPath)
	require.NoError(t, err)
	assert.False(t, rescanned, "unregistered paths are not rescanned")

	_, err = f.store.AddDirectory(ctx, f.root)
	require.NoError(t, err)

	library, rescanned, err := f.service.RescanOwning(ctx, trackPath)
	require.NoError(t, err)
	assert.True(t, rescanned)
	require.Len(t, library, 1)
	assert.Equal(t, "A", library[0].Name)
}

func TestLibraryService_ConversionOutputDir(t *testing.T) {
	f := newLibraryFixture(t)
	ctx := context.Background()
	album := filepath.Join(f.root, "A", "B")
	writeFile(t, filepath.Join(album, "0.flac"), "x")
	writeFile(t, filepath.Join(album, "CD1", "1.flac"), "x")
	writeFile(t, filepath.Join(album, "CD2", "1.flac"), "x")

	dir, err := f.store.AddDirectory(ctx, f.root)
	require.NoError(t, err)
	_, err = f.service.ScanDirectory(ctx, dir.ID, dir.Path)
	require.NoError(t, err)

	tests := []struct {
		name  string
		track string
		want  string
	}{
		{"root disc", filepath.Join(album, "0.flac"), filepath.Join(album, "converted")},
		{"first disc", filepath.Join(album, "CD1", "1.flac"), filepath.Join(album, "converted", "CD1")},
		{"second disc", filepath.Join(album, "CD2", "1.flac"), filepath.Join(album, "converted", "CD2")},
		{"outside the library", "/loose/1.flac", filepath.Join("/loose", "converted")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.service.ConversionOutputDir(ctx, tt.track, "converted"))
		})
	}
}

func TestLibraryService_LinksConvertedFilesPerDisc(t *testing.T) {
	f := newLibraryFixture(t)
	ctx := context.Background()
	album := filepath.Join(f.root, "ArtistA", "AlbumB")
	writeFile(t, filepath.Join(album, "Disc 1", "01.flac"), "x")
	writeFile(t, filepath.Join(album, "Disc 2", "01.flac"), "x")
	writeFile(t, filepath.Join(album, "Disc 2", "02.flac"), "x")
	writeFile(t, filepath.Join(album, "converted", "Disc 1", "01.mp3"), "x")
	writeFile(t, filepath.Join(album, "converted", "Disc 2", "01.mp3"), "x")
	// a flat file still links when only one disc has the stem
	writeFile(t, filepath.Join(album, "converted", "02.mp3"), "x")

	dir, err := f.store.AddDirectory(ctx, f.root)
	require.NoError(t, err)
	library, err := f.service.ScanDirectory(ctx, dir.ID, dir.Path)
	require.NoError(t, err)
	require.Len(t, library, 1)
	require.Len(t, library[0].Albums, 1)
	assert.Len(t, library[0].Albums[0].Discs, 2)

	history, err := f.store.ListConvertedFiles(ctx)
	require.NoError(t, err)
	links := make(map[string]string)
	for _, h := range history {
		links[h.OriginalPath] = h.ConvertedPath
	}
	assert.Equal(t, map[string]string{
		filepath.Join(album, "Disc 1", "01.flac"): filepath.Join(album, "converted", "Disc 1", "01.mp3"),
		filepath.Join(album, "Disc 2", "01.flac"): filepath.Join(album, "converted", "Disc 2", "01.mp3"),
		filepath.Join(album, "Disc 2", "02.flac"): filepath.Join(album, "converted", "02.mp3"),
	}, links)
}
