package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"cadence/types"
)

// QualityTier classifies a track against target settings
type QualityTier string

const (
	QualityAbove  QualityTier = "above"
	QualityTarget QualityTier = "target"
	QualityBelow  QualityTier = "below"
)

var (
	leadingInt   = regexp.MustCompile(`^\s*[+-]?\d+`)
	leadingFloat = regexp.MustCompile(`^\s*[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// CompareTrackToTarget reports whether a track sits above, at or below the
// target settings. Bit depth is compared when both sides carry one,
// bitrate otherwise; sample rate is always compared. Unparseable values
// are neutral, and a mix of above and below counts as below.
func CompareTrackToTarget(track types.Track, target types.QualitySettings) QualityTier {
	trackDepth := parseQualityLevel(track.BitDepth)
	targetDepth := parseQualityLevel(target.BitDepth)

	var comparisons [2]float64
	if trackDepth > 0 && targetDepth > 0 {
		comparisons[0] = sign(trackDepth - targetDepth)
	} else {
		comparisons[0] = sign(parseQualityLevel(track.Bitrate) - parseQualityLevel(target.Bitrate))
	}
	comparisons[1] = sign(parseSampleRateHz(track.SampleRate) - parseSampleRateHz(target.SampleRate))

	var above, below bool
	for _, c := range comparisons {
		above = above || c > 0
		below = below || c < 0
	}

	switch {
	case below:
		return QualityBelow
	case above:
		return QualityAbove
	default:
		return QualityTarget
	}
}

// CompareLibrary classifies every stored track by path
func CompareLibrary(library []types.Artist, target types.QualitySettings) map[string]QualityTier {
	tiers := make(map[string]QualityTier)
	for _, t := range types.Flatten(library) {
		tiers[t.Path] = CompareTrackToTarget(t.Track, target)
	}
	return tiers
}

// parseQualityLevel reads the leading integer of values like "24-bit",
// "16 bit" or "320 kbps". Empty and N/A are 0, a "+" suffix ranks one
// higher and anything else without a leading number is NaN.
func parseQualityLevel(s string) float64 {
	if s == "" || s == types.NotAvailable {
		return 0
	}
	m := leadingInt.FindString(s)
	if m == "" {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return math.NaN()
	}
	if strings.Contains(s, "+") {
		n++
	}
	return n
}

// parseSampleRateHz reads "44.1 kHz" as 44100. Empty is 0.
func parseSampleRateHz(s string) float64 {
	if s == "" {
		return 0
	}
	m := leadingFloat.FindString(s)
	if m == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return math.NaN()
	}
	return f * 1000
}

func sign(f float64) float64 {
	switch {
	case f > 0:
		return 1
	case f < 0:
		return -1
	default:
		// zero or NaN
		return 0
	}
}
