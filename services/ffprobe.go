package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"
)

// ffprobeOutput is the subset of ffprobe's JSON output that is read
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecName        string `json:"codec_name"`
	CodecType        string `json:"codec_type"`
	SampleRate       string `json:"sample_rate"`
	Channels         int    `json:"channels"`
	BitsPerSample    int    `json:"bits_per_sample"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	BitRate          string `json:"bit_rate"`
	Duration         string `json:"duration"`
}

// errFFprobeUnavailable means the ffprobe binary could not be started
var errFFprobeUnavailable = errors.New("ffprobe not available")

// runFFprobe inspects the first audio stream of path
func runFFprobe(ctx context.Context, binary, path string) (*ffprobeOutput, *ffprobeStream, error) {
	cmd := exec.CommandContext(ctx, binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		"-select_streams", "a:0",
		path)

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %v", errFFprobeUnavailable, err)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr := strings.TrimSpace(string(exitErr.Stderr))
			return nil, nil, fmt.Errorf("ffprobe exited with code %d: %s", exitErr.ExitCode(), stderr)
		}
		return nil, nil, fmt.Errorf("run ffprobe: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "audio" {
			return &probe, &probe.Streams[i], nil
		}
	}
	return nil, nil, errors.New("no audio stream found")
}

// probeDuration returns the duration of path in seconds, or 0 when unknown
func probeDuration(ctx context.Context, binary, path string) float64 {
	probe, stream, err := runFFprobe(ctx, binary, path)
	if err != nil {
		return 0
	}
	for _, raw := range []string{stream.Duration, probe.Format.Duration} {
		if d, err := strconv.ParseFloat(raw, 64); err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// bitDepth returns the stream's bits per sample, or 0 when not reported
func (s *ffprobeStream) bitDepth() int {
	if n, err := strconv.Atoi(s.BitsPerRawSample); err == nil && n > 0 {
		return n
	}
	return s.BitsPerSample
}

// bitRate returns the stream bitrate in bits per second, falling back to
// the container's overall bitrate.
func (s *ffprobeStream) bitRate(format ffprobeFormat) int64 {
	for _, raw := range []string{s.BitRate, format.BitRate} {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
