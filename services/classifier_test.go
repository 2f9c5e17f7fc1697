package services

import (
	"context"
	"path/filepath"
	"testing"

	"cadence/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryClassifier_Classify(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "01 - Intro.flac"), "x")
	writeFile(t, filepath.Join(dir, "02 - Song.MP3"), "x")
	writeFile(t, filepath.Join(dir, "03 - corrupt.flac"), "x")
	writeFile(t, filepath.Join(dir, "notes.txt"), "x")
	writeFile(t, filepath.Join(dir, "CD2", "01.flac"), "x")

	probe := newFakeProbe()
	c := NewDirectoryClassifier(probe, testExtensions(), zerolog.Nop())

	result, err := c.Classify(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, result.Tracks, 2)
	assert.Equal(t, "01 - Intro.flac", result.Tracks[0].Name)
	assert.Equal(t, filepath.Join(dir, "01 - Intro.flac"), result.Tracks[0].Path)
	assert.Equal(t, ".flac", result.Tracks[0].Extension)
	assert.Equal(t, "24-bit", result.Tracks[0].BitDepth)
	assert.Equal(t, "96 kHz", result.Tracks[0].SampleRate)
	assert.Equal(t, ".mp3", result.Tracks[1].Extension)

	require.Len(t, result.OtherFiles, 2)
	assert.Equal(t, types.UnexpectedItem{
		Name:   "03 - corrupt.flac",
		Path:   filepath.Join(dir, "03 - corrupt.flac"),
		Reason: types.ReasonMetadataUnreadable,
	}, result.OtherFiles[0])
	assert.Equal(t, types.ReasonUnsupportedType, result.OtherFiles[1].Reason)

	// subfolders are never entered and unsupported files never probed
	assert.Equal(t, int32(3), probe.calls.Load())
}

func TestDirectoryClassifier_EmptyFolder(t *testing.T) {
	c := NewDirectoryClassifier(newFakeProbe(), testExtensions(), zerolog.Nop())

	result, err := c.Classify(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, result.Tracks)
	assert.NotNil(t, result.OtherFiles)
	assert.Empty(t, result.Tracks)
	assert.Empty(t, result.OtherFiles)
}

func TestDirectoryClassifier_MissingFolder(t *testing.T) {
	c := NewDirectoryClassifier(newFakeProbe(), testExtensions(), zerolog.Nop())

	_, err := c.Classify(context.Background(), filepath.Join(t.TempDir(), "gone"))
	require.Error(t, err)
}

func TestDirectoryClassifier_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.flac"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewDirectoryClassifier(newFakeProbe(), testExtensions(), zerolog.Nop())
	_, err := c.Classify(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
