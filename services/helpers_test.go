package services

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"cadence/types"

	flac "github.com/go-flac/go-flac"
	"github.com/stretchr/testify/require"
)

// writeFile creates path and any missing parent folders
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeFLAC writes a metadata-only FLAC file with the given stream info
func writeFLAC(t *testing.T, path string, sampleRate, bitDepth int) {
	t.Helper()

	info := make([]byte, 34)
	binary.BigEndian.PutUint16(info[0:2], 4096)
	binary.BigEndian.PutUint16(info[2:4], 4096)
	const channels = 2
	const totalSamples = 44100 * 3
	packed := uint64(sampleRate)<<44 | uint64(channels-1)<<41 | uint64(bitDepth-1)<<36 | uint64(totalSamples)
	binary.BigEndian.PutUint64(info[10:18], packed)

	f := &flac.File{Meta: []*flac.MetaDataBlock{{Type: flac.StreamInfo, Data: info}}}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, f.Marshal(), 0o644))
}

// fakeProbe reports a fixed quality for every file and fails for names
// containing "corrupt"
type fakeProbe struct {
	quality types.Quality
	calls   atomic.Int32
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{quality: types.Quality{
		Bitrate:    types.NotAvailable,
		BitDepth:   "24-bit",
		SampleRate: "96 kHz",
	}}
}

func (p *fakeProbe) Probe(ctx context.Context, path string) (types.Quality, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return types.Quality{}, err
	}
	if strings.Contains(filepath.Base(path), "corrupt") {
		return types.Quality{}, &types.MetadataReadError{Path: path, Err: errors.New("bad header")}
	}
	q := p.quality
	q.Extension = strings.ToLower(filepath.Ext(path))
	return q, nil
}

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []types.Event
}

func (p *recordingPublisher) Publish(e types.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Event(nil), p.events...)
}

func (p *recordingPublisher) Types() []types.EventType {
	var out []types.EventType
	for _, e := range p.Events() {
		out = append(out, e.Type)
	}
	return out
}

func testExtensions() []string {
	return []string{".mp3", ".flac", ".alac", ".opus", ".m4a", ".ogg", ".wav", ".aiff", ".aif", ".aac"}
}
