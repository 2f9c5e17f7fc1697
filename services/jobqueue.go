package services

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cadence/metrics"
	"cadence/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Publisher fans events out to live channel observers
type Publisher interface {
	Publish(event types.Event)
}

// JobQueue is the ordered conversion job list plus the busy and pause
// flags. At most one job is Converting at any time.
type JobQueue interface {
	Enqueue(track types.Track, settings types.QualitySettings) (types.ConversionJob, error)
	Remove(path string) error
	ClearCompleted() int
	Snapshot() []types.ConversionJob
	TogglePause() bool
	SetPaused(paused bool)
	IsPaused() bool
	Busy() bool
	ClaimNext() (types.ConversionJob, bool)
	UpdateProgress(path string, percent float64)
	Finish(path string, status types.JobStatus, reason, outputPath string)
	Release()
}

// jobQueue guards its state with mu. pubMu is held from mutation through
// publishing so observers see events in mutation order.
type jobQueue struct {
	mu     sync.Mutex
	pubMu  sync.Mutex
	jobs   []*types.ConversionJob
	busy   bool
	paused bool

	publisher Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewJobQueue creates an empty, unpaused queue
func NewJobQueue(publisher Publisher, m *metrics.Metrics, log zerolog.Logger) JobQueue {
	return &jobQueue{
		jobs:      make([]*types.ConversionJob, 0),
		publisher: publisher,
		metrics:   m,
		log:       log,
	}
}

// mutate runs fn under the state lock and publishes the events it returns
func (q *jobQueue) mutate(fn func() []types.Event) {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	q.mu.Lock()
	events := fn()
	q.recordQueueLength()
	q.mu.Unlock()

	if q.publisher == nil {
		return
	}
	for _, e := range events {
		q.publisher.Publish(e)
	}
}

// Enqueue appends a Pending job. A path already present with any status is
// rejected with *types.QueueConflictError.
func (q *jobQueue) Enqueue(track types.Track, settings types.QualitySettings) (types.ConversionJob, error) {
	var job types.ConversionJob
	var err error

	q.mutate(func() []types.Event {
		if q.find(track.Path) >= 0 {
			err = &types.QueueConflictError{Path: track.Path}
			return nil
		}
		name := track.Name
		if name == "" {
			name = filepath.Base(track.Path)
		}
		j := &types.ConversionJob{
			ID:              uuid.New().String(),
			Path:            track.Path,
			Name:            name,
			OriginalQuality: track.QualitySummary(),
			TargetQuality:   settings.Summary(),
			Status:          types.JobStatusPending,
			TargetSettings:  settings,
			CreatedAt:       time.Now(),
		}
		q.jobs = append(q.jobs, j)
		job = *j
		return []types.Event{types.QueueUpdate(q.snapshotLocked())}
	})

	if err == nil {
		q.log.Info().Str("path", job.Path).Str("target", job.TargetQuality).Msg("conversion queued")
	}
	return job, err
}

// Remove drops a Pending or terminal job
func (q *jobQueue) Remove(path string) error {
	var err error
	q.mutate(func() []types.Event {
		i := q.find(path)
		if i < 0 {
			err = types.ErrNotFound
			return nil
		}
		if q.jobs[i].Status == types.JobStatusConverting {
			err = types.ErrJobNotRemovable
			return nil
		}
		q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
		return []types.Event{types.QueueUpdate(q.snapshotLocked())}
	})
	return err
}

// ClearCompleted removes Complete and Error jobs and returns how many were removed
func (q *jobQueue) ClearCompleted() int {
	removed := 0
	q.mutate(func() []types.Event {
		kept := q.jobs[:0]
		for _, j := range q.jobs {
			if j.Status.Terminal() {
				removed++
				continue
			}
			kept = append(kept, j)
		}
		q.jobs = kept
		return []types.Event{types.QueueUpdate(q.snapshotLocked())}
	})
	return removed
}

// Snapshot returns a copy of the queue in insertion order
func (q *jobQueue) Snapshot() []types.ConversionJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// TogglePause flips the pause flag and returns the new value
func (q *jobQueue) TogglePause() bool {
	var paused bool
	q.mutate(func() []types.Event {
		q.paused = !q.paused
		paused = q.paused
		return []types.Event{types.PauseUpdate(paused)}
	})
	return paused
}

// SetPaused sets the pause flag
func (q *jobQueue) SetPaused(paused bool) {
	q.mutate(func() []types.Event {
		if q.paused == paused {
			return nil
		}
		q.paused = paused
		return []types.Event{types.PauseUpdate(paused)}
	})
}

// IsPaused reports the pause flag
func (q *jobQueue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Busy reports whether a job has been claimed and not yet released
func (q *jobQueue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// ClaimNext marks the first Pending job Converting and sets the busy flag.
// It returns false when busy, paused or there is nothing pending.
func (q *jobQueue) ClaimNext() (types.ConversionJob, bool) {
	var job types.ConversionJob
	var ok bool
	q.mutate(func() []types.Event {
		if q.busy || q.paused {
			return nil
		}
		for _, j := range q.jobs {
			if j.Status != types.JobStatusPending {
				continue
			}
			now := time.Now()
			j.Status = types.JobStatusConverting
			j.StartedAt = &now
			j.Progress = 0
			q.busy = true
			job, ok = *j, true
			return []types.Event{types.StatusUpdate(j.Path, j.Status, "")}
		}
		return nil
	})
	return job, ok
}

// UpdateProgress records progress for a Converting job. Values that do not
// advance the job are ignored so observers see a monotonic sequence.
func (q *jobQueue) UpdateProgress(path string, percent float64) {
	if percent > 100 {
		percent = 100
	}
	q.mutate(func() []types.Event {
		i := q.find(path)
		if i < 0 {
			return nil
		}
		j := q.jobs[i]
		if j.Status != types.JobStatusConverting || percent <= j.Progress {
			return nil
		}
		j.Progress = percent
		return []types.Event{types.ProgressUpdate(path, percent)}
	})
}

// Finish moves a Converting job to a terminal status
func (q *jobQueue) Finish(path string, status types.JobStatus, reason, outputPath string) {
	q.mutate(func() []types.Event {
		i := q.find(path)
		if i < 0 {
			return nil
		}
		j := q.jobs[i]
		now := time.Now()
		j.Status = status
		j.Reason = reason
		j.OutputPath = outputPath
		j.CompletedAt = &now
		if status == types.JobStatusComplete {
			j.Progress = 100
		}
		return []types.Event{types.StatusUpdate(path, status, reason)}
	})
}

// Release clears the busy flag
func (q *jobQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.busy = false
}

func (q *jobQueue) find(path string) int {
	for i, j := range q.jobs {
		if j.Path == path {
			return i
		}
	}
	return -1
}

func (q *jobQueue) snapshotLocked() []types.ConversionJob {
	out := make([]types.ConversionJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	return out
}

func (q *jobQueue) recordQueueLength() {
	if q.metrics == nil {
		return
	}
	counts := map[types.JobStatus]int{
		types.JobStatusPending:    0,
		types.JobStatusConverting: 0,
		types.JobStatusComplete:   0,
		types.JobStatusError:      0,
	}
	for _, j := range q.jobs {
		counts[j.Status]++
	}
	for status, n := range counts {
		q.metrics.QueueLength.WithLabelValues(strings.ToLower(string(status))).Set(float64(n))
	}
}
