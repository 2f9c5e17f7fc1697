package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cadence/types"

	"github.com/dhowden/tag"
	flac "github.com/go-flac/go-flac"
	"github.com/rs/zerolog"
)

// MetadataProbe reads the technical quality of one audio file
type MetadataProbe interface {
	Probe(ctx context.Context, path string) (types.Quality, error)
}

// metadataProbe sniffs the container with dhowden/tag, reads FLAC stream
// info natively and asks ffprobe about everything else.
type metadataProbe struct {
	ffprobePath string
	log         zerolog.Logger
}

// NewMetadataProbe creates a probe that shells out to ffprobePath for
// non-FLAC containers
func NewMetadataProbe(ffprobePath string, log zerolog.Logger) MetadataProbe {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &metadataProbe{ffprobePath: ffprobePath, log: log}
}

// lossless codecs report bit depth instead of bitrate
var losslessCodecs = map[string]bool{
	"flac":    true,
	"alac":    true,
	"wavpack": true,
	"ape":     true,
	"tta":     true,
	"mlp":     true,
	"truehd":  true,
}

// Probe returns the quality of the file at path. Every failure is a
// *types.MetadataReadError.
func (p *metadataProbe) Probe(ctx context.Context, path string) (types.Quality, error) {
	quality := types.Quality{
		Bitrate:    types.NotAvailable,
		BitDepth:   types.NotAvailable,
		SampleRate: types.NotAvailable,
		Extension:  strings.ToLower(filepath.Ext(path)),
	}

	file, err := os.Open(path)
	if err != nil {
		return quality, &types.MetadataReadError{Path: path, Err: err}
	}
	defer file.Close()

	// untagged containers such as plain WAV are left for ffprobe to identify
	_, fileType, err := tag.Identify(file)
	if errors.Is(err, tag.ErrNoTagsFound) {
		fileType, err = tag.UnknownFileType, nil
	}
	if err != nil {
		return quality, &types.MetadataReadError{Path: path, Err: fmt.Errorf("identify container: %w", err)}
	}

	if fileType == tag.FLAC {
		if err := readFLACQuality(file, &quality); err != nil {
			return quality, &types.MetadataReadError{Path: path, Err: err}
		}
		return quality, nil
	}

	probe, stream, err := runFFprobe(ctx, p.ffprobePath, path)
	if errors.Is(err, errFFprobeUnavailable) {
		return p.tagOnlyQuality(file, fileType, quality)
	}
	if err != nil {
		return quality, &types.MetadataReadError{Path: path, Err: err}
	}

	if hz, err := strconv.Atoi(stream.SampleRate); err == nil {
		quality.SampleRate = formatSampleRate(hz)
	}
	if losslessCodecs[stream.CodecName] || strings.HasPrefix(stream.CodecName, "pcm_") {
		if depth := stream.bitDepth(); depth > 0 {
			quality.BitDepth = formatBitDepth(depth)
		}
	} else if bps := stream.bitRate(probe.Format); bps > 0 {
		quality.Bitrate = formatBitrate(bps)
	}
	return quality, nil
}

// tagOnlyQuality validates a recognised container by parsing its tags when
// ffprobe is missing. Quality fields stay N/A.
func (p *metadataProbe) tagOnlyQuality(file *os.File, fileType tag.FileType, quality types.Quality) (types.Quality, error) {
	if fileType == tag.UnknownFileType {
		return quality, &types.MetadataReadError{Path: file.Name(), Err: errors.New("unrecognised audio container")}
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return quality, &types.MetadataReadError{Path: file.Name(), Err: err}
	}
	if _, err := tag.ReadFrom(file); err != nil && !errors.Is(err, tag.ErrNoTagsFound) {
		return quality, &types.MetadataReadError{Path: file.Name(), Err: err}
	}
	p.log.Debug().Str("path", file.Name()).Msg("ffprobe unavailable, quality unknown")
	return quality, nil
}

func readFLACQuality(r io.ReadSeeker, quality *types.Quality) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	f, err := flac.ParseMetadata(r)
	if err != nil {
		return fmt.Errorf("parse flac metadata: %w", err)
	}
	if len(f.Meta) == 0 {
		return flac.ErrorNoStreamInfo
	}
	info, err := f.GetStreamInfo()
	if err != nil {
		return fmt.Errorf("read flac stream info: %w", err)
	}
	if info.BitDepth > 0 {
		quality.BitDepth = formatBitDepth(info.BitDepth)
	}
	if info.SampleRate > 0 {
		quality.SampleRate = formatSampleRate(info.SampleRate)
	}
	return nil
}

// formatBitDepth renders 24 as "24-bit"
func formatBitDepth(bits int) string {
	return fmt.Sprintf("%d-bit", bits)
}

// formatSampleRate renders 44100 as "44.1 kHz"
func formatSampleRate(hz int) string {
	return strconv.FormatFloat(float64(hz)/1000, 'f', -1, 64) + " kHz"
}

// formatBitrate renders 320000 as "320 kbps"
func formatBitrate(bps int64) string {
	return fmt.Sprintf("%d kbps", int64(math.Round(float64(bps)/1000)))
}
