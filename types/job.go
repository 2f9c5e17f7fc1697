package types

import (
	"strings"
	"time"
)

// JobStatus represents the current status of a conversion job
type JobStatus string

const (
	JobStatusPending    JobStatus = "Pending"
	JobStatusConverting JobStatus = "Converting"
	JobStatusComplete   JobStatus = "Complete"
	JobStatusError      JobStatus = "Error"
)

// Terminal reports whether no further transition leaves this status
func (s JobStatus) Terminal() bool {
	return s == JobStatusComplete || s == JobStatusError
}

// QualitySettings are the user's target output properties. Values use the
// display form, for example "FLAC", "320 kbps", "24 bit", "96 kHz".
type QualitySettings struct {
	Format     string `json:"format"`
	Bitrate    string `json:"bitrate"`
	BitDepth   string `json:"bitDepth"`
	SampleRate string `json:"sampleRate"`
}

// Summary renders the settings as a short label
func (q QualitySettings) Summary() string {
	return joinQuality(q.Format, q.BitDepth, q.SampleRate, q.Bitrate)
}

// QualitySummary renders a track's quality as a short label
func (t Track) QualitySummary() string {
	return joinQuality(strings.ToUpper(strings.TrimPrefix(t.Extension, ".")), t.BitDepth, t.SampleRate, t.Bitrate)
}

func joinQuality(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" && p != NotAvailable {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " / ")
}

// ConversionJob is one queued transcode. Jobs live in memory only.
type ConversionJob struct {
	ID              string          `json:"id"`
	Path            string          `json:"path"`
	Name            string          `json:"name"`
	OriginalQuality string          `json:"originalQuality"`
	TargetQuality   string          `json:"targetQuality"`
	Status          JobStatus       `json:"status"`
	TargetSettings  QualitySettings `json:"targetSettings"`
	Progress        float64         `json:"progress"`
	Reason          string          `json:"reason,omitempty"`
	OutputPath      string          `json:"outputPath,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
}
