package services

import (
	"os"
	"path/filepath"
	"testing"

	"cadence/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileService_Rename(t *testing.T) {
	fs := NewFileService(zerolog.Nop())
	dir := t.TempDir()
	old := filepath.Join(dir, "01 - trak.flac")
	writeFile(t, old, "x")

	newPath, err := fs.Rename(old, "01 - Track.flac")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "01 - Track.flac"), newPath)
	assert.FileExists(t, newPath)
	assert.NoFileExists(t, old)
}

func TestFileService_RenameRejectsInvalidNames(t *testing.T) {
	fs := NewFileService(zerolog.Nop())
	dir := t.TempDir()
	old := filepath.Join(dir, "a.flac")
	writeFile(t, old, "x")

	for _, name := range []string{"a/b.flac", `a\b.flac`, "a:b", "a*b", "a?b", `a"b`, "a<b", "a>b", "a|b", "..", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := fs.Rename(old, name)

			var renameErr *types.RenameError
			require.ErrorAs(t, err, &renameErr)
			assert.True(t, renameErr.Invalid)
			assert.FileExists(t, old)
		})
	}
}

func TestFileService_RenameFailure(t *testing.T) {
	fs := NewFileService(zerolog.Nop())
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.flac"), "x")
	writeFile(t, filepath.Join(dir, "b.flac"), "x")

	for name, old := range map[string]string{
		"missing source": filepath.Join(dir, "gone.flac"),
		"target exists":  filepath.Join(dir, "a.flac"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := fs.Rename(old, "b.flac")

			var renameErr *types.RenameError
			require.ErrorAs(t, err, &renameErr)
			assert.False(t, renameErr.Invalid)
			assert.Equal(t, "Could not rename. Check permissions and if the directory is in use.", renameErr.Message)
		})
	}
}

func TestFileService_DeleteFiles(t *testing.T) {
	fs := NewFileService(zerolog.Nop())
	dir := t.TempDir()
	a := filepath.Join(dir, "a.flac")
	b := filepath.Join(dir, "b.flac")
	writeFile(t, a, "x")
	writeFile(t, b, "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder"), 0o755))

	result := fs.DeleteFiles([]string{
		b,
		a,
		filepath.Join(dir, "missing.flac"),
		filepath.Join(dir, "folder"),
		"relative.flac",
	})

	assert.Equal(t, []string{a, b}, result.Deleted)
	assert.Len(t, result.Failed, 3)
	assert.NoFileExists(t, a)
	assert.NoFileExists(t, b)
	assert.DirExists(t, filepath.Join(dir, "folder"))
}

func TestFileService_FixUnnecessarySubfolder(t *testing.T) {
	fs := NewFileService(zerolog.Nop())
	album := filepath.Join(t.TempDir(), "Album")
	writeFile(t, filepath.Join(album, "cover.jpg"), "x")
	writeFile(t, filepath.Join(album, "Album [FLAC]", "01.flac"), "x")
	writeFile(t, filepath.Join(album, "Album [FLAC]", "02.flac"), "x")
	writeFile(t, filepath.Join(album, "Album [FLAC]", "Scans", "back.jpg"), "x")

	moved, err := fs.FixUnnecessarySubfolder(album)
	require.NoError(t, err)
	assert.Equal(t, 3, moved)

	assert.FileExists(t, filepath.Join(album, "01.flac"))
	assert.FileExists(t, filepath.Join(album, "02.flac"))
	assert.FileExists(t, filepath.Join(album, "Scans", "back.jpg"))
	assert.NoDirExists(t, filepath.Join(album, "Album [FLAC]"))
}

func TestFileService_FixUnnecessarySubfolderSameName(t *testing.T) {
	fs := NewFileService(zerolog.Nop())
	album := filepath.Join(t.TempDir(), "Album")
	writeFile(t, filepath.Join(album, "Disc", "Disc", "01.flac"), "x")
	writeFile(t, filepath.Join(album, "Disc", "02.flac"), "x")

	moved, err := fs.FixUnnecessarySubfolder(album)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.FileExists(t, filepath.Join(album, "Disc", "01.flac"))
	assert.FileExists(t, filepath.Join(album, "02.flac"))

	entries, err := os.ReadDir(album)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary folder is left behind")
}

func TestFileService_FixUnnecessarySubfolderRejects(t *testing.T) {
	fs := NewFileService(zerolog.Nop())

	t.Run("more than one subfolder", func(t *testing.T) {
		album := filepath.Join(t.TempDir(), "Album")
		writeFile(t, filepath.Join(album, "CD1", "01.flac"), "x")
		writeFile(t, filepath.Join(album, "CD2", "01.flac"), "x")

		_, err := fs.FixUnnecessarySubfolder(album)
		var fixErr *types.SubfolderFixError
		require.ErrorAs(t, err, &fixErr)
		assert.False(t, fixErr.Mutated)
		assert.FileExists(t, filepath.Join(album, "CD1", "01.flac"))
		assert.FileExists(t, filepath.Join(album, "CD2", "01.flac"))
	})

	t.Run("no subfolder", func(t *testing.T) {
		album := filepath.Join(t.TempDir(), "Album")
		writeFile(t, filepath.Join(album, "01.flac"), "x")

		_, err := fs.FixUnnecessarySubfolder(album)
		var fixErr *types.SubfolderFixError
		require.ErrorAs(t, err, &fixErr)
		assert.False(t, fixErr.Mutated)
	})

	t.Run("name collision", func(t *testing.T) {
		album := filepath.Join(t.TempDir(), "Album")
		writeFile(t, filepath.Join(album, "01.flac"), "root")
		writeFile(t, filepath.Join(album, "Sub", "01.flac"), "sub")
		writeFile(t, filepath.Join(album, "Sub", "02.flac"), "sub")

		_, err := fs.FixUnnecessarySubfolder(album)
		var fixErr *types.SubfolderFixError
		require.ErrorAs(t, err, &fixErr)
		assert.False(t, fixErr.Mutated)
		assert.FileExists(t, filepath.Join(album, "Sub", "02.flac"))
		assert.NoFileExists(t, filepath.Join(album, "02.flac"))
	})
}

func TestFileService_Browse(t *testing.T) {
	fs := NewFileService(zerolog.Nop())
	dir := t.TempDir()
	for _, name := range []string{"beta", "Alpha", "gamma"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}
	writeFile(t, filepath.Join(dir, "file.flac"), "x")

	resp, err := fs.Browse(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, resp.Path)
	assert.Equal(t, filepath.Dir(dir), resp.Parent)

	var names []string
	for _, e := range resp.Contents {
		names = append(names, e.Name)
		assert.Equal(t, "directory", e.Type)
		assert.Equal(t, filepath.Join(dir, e.Name), e.Path)
	}
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, names)

	_, err = fs.Browse(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFileService_BrowseDefaultsToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	resp, err := NewFileService(zerolog.Nop()).Browse("")
	require.NoError(t, err)
	assert.Equal(t, home, resp.Path)
	assert.Empty(t, resp.Contents)
}
