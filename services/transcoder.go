package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"cadence/types"

	"github.com/rs/zerolog"
)

// TranscodeRequest describes one conversion
type TranscodeRequest struct {
	Input    string
	Output   string
	Settings types.QualitySettings
}

// ProgressFunc receives percent-complete updates in [0, 100]
type ProgressFunc func(percent float64)

// Transcoder converts one audio file, reporting progress as it goes
type Transcoder interface {
	Transcode(ctx context.Context, req TranscodeRequest, progress ProgressFunc) error
}

// codecSpec maps a target format onto an ffmpeg encoder
type codecSpec struct {
	codec     string
	extension string
	lossy     bool
	// byDepth selects a different encoder or sample format per bit depth
	byDepth map[int]depthSpec
}

type depthSpec struct {
	codec     string
	sampleFmt string
	rawBits   int
}

var codecs = map[string]codecSpec{
	"flac": {codec: "flac", extension: ".flac", byDepth: map[int]depthSpec{
		16: {sampleFmt: "s16"},
		24: {sampleFmt: "s32", rawBits: 24},
	}},
	"alac": {codec: "alac", extension: ".m4a", byDepth: map[int]depthSpec{
		16: {sampleFmt: "s16p"},
		24: {sampleFmt: "s32p", rawBits: 24},
	}},
	"wav": {codec: "pcm_s16le", extension: ".wav", byDepth: map[int]depthSpec{
		16: {codec: "pcm_s16le"},
		24: {codec: "pcm_s24le"},
		32: {codec: "pcm_s32le"},
	}},
	"aiff": {codec: "pcm_s16be", extension: ".aiff", byDepth: map[int]depthSpec{
		16: {codec: "pcm_s16be"},
		24: {codec: "pcm_s24be"},
		32: {codec: "pcm_s32be"},
	}},
	"opus":   {codec: "libopus", extension: ".opus", lossy: true},
	"vorbis": {codec: "libvorbis", extension: ".ogg", lossy: true},
	"aac":    {codec: "aac", extension: ".m4a", lossy: true},
	"mp3":    {codec: "libmp3lame", extension: ".mp3", lossy: true},
}

func lookupCodec(format string) (codecSpec, error) {
	spec, ok := codecs[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return codecSpec{}, fmt.Errorf("%w %q", types.ErrUnsupportedFormat, format)
	}
	return spec, nil
}

// OutputExtension returns the file extension produced for a target format
func OutputExtension(format string) (string, error) {
	spec, err := lookupCodec(format)
	if err != nil {
		return "", err
	}
	return spec.extension, nil
}

// BuildFFmpegArgs returns the ffmpeg arguments for req. Bitrate is only
// applied to lossy codecs; sample rate whenever it is numeric.
func BuildFFmpegArgs(req TranscodeRequest) ([]string, error) {
	spec, err := lookupCodec(req.Settings.Format)
	if err != nil {
		return nil, err
	}

	codec := spec.codec
	var sampleFmt string
	var rawBits int
	if depth, ok := leadingNumber(req.Settings.BitDepth); ok && !spec.lossy {
		if d, ok := spec.byDepth[int(depth)]; ok {
			if d.codec != "" {
				codec = d.codec
			}
			sampleFmt = d.sampleFmt
			rawBits = d.rawBits
		}
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", req.Input,
		"-map", "0:a:0",
		"-map_metadata", "0",
		"-c:a", codec,
	}
	if sampleFmt != "" {
		args = append(args, "-sample_fmt", sampleFmt)
	}
	if rawBits > 0 {
		args = append(args, "-bits_per_raw_sample", strconv.Itoa(rawBits))
	}
	if spec.lossy {
		if kbps, ok := leadingNumber(req.Settings.Bitrate); ok && kbps > 0 {
			args = append(args, "-b:a", fmt.Sprintf("%dk", int(kbps)))
		}
	}
	if khz, ok := leadingNumber(req.Settings.SampleRate); ok && khz > 0 {
		args = append(args, "-ar", strconv.Itoa(int(khz*1000+0.5)))
	}
	args = append(args, "-progress", "pipe:1", "-nostats", req.Output)
	return args, nil
}

// leadingNumber parses the number at the start of values like "320 kbps"
// or "44.1 kHz"
func leadingNumber(s string) (float64, bool) {
	m := leadingFloat.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	return f, err == nil
}

// FFmpegTranscoder runs ffmpeg as an external process
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
	log         zerolog.Logger
}

// NewFFmpegTranscoder creates a transcoder using the given binaries
func NewFFmpegTranscoder(ffmpegPath, ffprobePath string, log zerolog.Logger) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, log: log}
}

// Transcode runs ffmpeg until it exits or ctx is done. Failures are
// returned as *types.TranscodeError carrying ffmpeg's last stderr lines.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, req TranscodeRequest, progress ProgressFunc) error {
	args, err := BuildFFmpegArgs(req)
	if err != nil {
		return &types.TranscodeError{Path: req.Input, Message: err.Error(), Err: err}
	}

	duration := probeDuration(ctx, t.ffprobePath, req.Input)

	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &types.TranscodeError{Path: req.Input, Message: "failed to attach to ffmpeg output", Err: err}
	}
	stderr := &tailBuffer{max: 8}
	cmd.Stderr = stderr

	t.log.Debug().Str("path", req.Input).Strs("args", args).Msg("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		return &types.TranscodeError{Path: req.Input, Message: fmt.Sprintf("failed to start ffmpeg: %v", err), Err: err}
	}

	parseProgress(stdout, duration, progress)

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &types.TranscodeError{Path: req.Input, Message: ctxErr.Error(), Err: ctxErr}
		}
		msg := "ffmpeg failed"
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg = fmt.Sprintf("ffmpeg exited with code %d", exitErr.ExitCode())
		}
		if tail := stderr.String(); tail != "" {
			msg += ": " + tail
		}
		return &types.TranscodeError{Path: req.Input, Message: msg, Err: err}
	}
	return nil
}

// parseProgress reads ffmpeg's -progress key=value stream. Percentages are
// derived from out_time_us against the input duration; progress=end
// reports 100.
func parseProgress(r io.Reader, durationSeconds float64, progress ProgressFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || progress == nil {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// both keys carry microseconds
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 || durationSeconds <= 0 {
				continue
			}
			pct := float64(us) / 1e6 / durationSeconds * 100
			if pct > 100 {
				pct = 100
			}
			progress(pct)
		case "progress":
			if value == "end" {
				progress(100)
			}
		}
	}
	// drain so ffmpeg never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// tailBuffer keeps the last max lines written to it
type tailBuffer struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial string
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.partial + string(p)
	parts := strings.Split(data, "\n")
	b.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		if line = strings.TrimSpace(line); line != "" {
			b.lines = append(b.lines, line)
		}
	}
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.lines
	if p := strings.TrimSpace(b.partial); p != "" {
		lines = append(append([]string{}, lines...), p)
	}
	return strings.Join(lines, "; ")
}
