package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cadence/metrics"
	"cadence/types"

	"github.com/rs/zerolog"
)

// LibraryReconciler is what the worker needs from the library after a
// conversion
type LibraryReconciler interface {
	RescanOwning(ctx context.Context, trackPath string) ([]types.Artist, bool, error)
	RecordConversion(ctx context.Context, originalPath, convertedPath string) error
	ConversionOutputDir(ctx context.Context, trackPath, convertedDir string) string
}

// WorkerOptions configures a ConversionWorker
type WorkerOptions struct {
	// Timeout bounds a single transcode. Zero disables it.
	Timeout      time.Duration
	ConvertedDir string
}

// ConversionWorker runs queued conversions one at a time. Every trigger
// (enqueue, start, resume, job end) calls Kick, which is a no-op while a
// job is running or the queue is paused.
type ConversionWorker struct {
	queue      JobQueue
	transcoder Transcoder
	library    LibraryReconciler
	publisher  Publisher
	opts       WorkerOptions
	metrics    *metrics.Metrics
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConversionWorker creates a worker. Running jobs are cancelled by Shutdown.
func NewConversionWorker(queue JobQueue, transcoder Transcoder, library LibraryReconciler, publisher Publisher, opts WorkerOptions, m *metrics.Metrics, log zerolog.Logger) *ConversionWorker {
	if opts.ConvertedDir == "" {
		opts.ConvertedDir = "converted"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConversionWorker{
		queue:      queue,
		transcoder: transcoder,
		library:    library,
		publisher:  publisher,
		opts:       opts,
		metrics:    m,
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Enqueue adds a job and starts it if the worker is idle
func (w *ConversionWorker) Enqueue(track types.Track, settings types.QualitySettings) (types.ConversionJob, error) {
	if _, err := OutputExtension(settings.Format); err != nil {
		return types.ConversionJob{}, err
	}
	job, err := w.queue.Enqueue(track, settings)
	if err != nil {
		return job, err
	}
	w.Kick()
	return job, nil
}

// TogglePause flips the pause flag. Resuming starts the next pending job.
func (w *ConversionWorker) TogglePause() bool {
	paused := w.queue.TogglePause()
	if !paused {
		w.Kick()
	}
	return paused
}

// Kick starts the next pending job unless one is running or the queue is paused
func (w *ConversionWorker) Kick() {
	if w.ctx.Err() != nil {
		return
	}
	job, ok := w.queue.ClaimNext()
	if !ok {
		return
	}
	w.wg.Add(1)
	go w.run(job)
}

// Wait blocks until no job is running
func (w *ConversionWorker) Wait() {
	w.wg.Wait()
}

// Shutdown cancels the running job and waits for the worker to stop
func (w *ConversionWorker) Shutdown() {
	w.cancel()
	w.wg.Wait()
}

func (w *ConversionWorker) run(job types.ConversionJob) {
	defer w.wg.Done()
	w.process(job)
	w.queue.Release()
	w.Kick()
}

// process converts one job and, on success, reconciles the library before
// the busy flag is released
func (w *ConversionWorker) process(job types.ConversionJob) {
	log := w.log.With().Str("path", job.Path).Str("job_id", job.ID).Logger()
	start := time.Now()

	output, err := w.convert(job)
	w.metrics.ConversionDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Msg("conversion failed")
		w.metrics.ConversionsTotal.WithLabelValues(string(types.JobStatusError)).Inc()
		w.queue.Finish(job.Path, types.JobStatusError, err.Error(), "")
		return
	}

	w.queue.UpdateProgress(job.Path, 100)
	w.queue.Finish(job.Path, types.JobStatusComplete, "", output)
	w.metrics.ConversionsTotal.WithLabelValues(string(types.JobStatusComplete)).Inc()
	log.Info().Str("output", output).Dur("elapsed", time.Since(start)).Msg("conversion complete")

	library, rescanned, err := w.library.RescanOwning(w.ctx, job.Path)
	if err != nil {
		log.Error().Err(err).Msg("post-conversion rescan failed")
	}
	if err := w.library.RecordConversion(w.ctx, job.Path, output); err != nil {
		log.Error().Err(err).Msg("record conversion failed")
	}
	if rescanned && w.publisher != nil {
		w.publisher.Publish(types.LibraryUpdate(library))
	}
}

// convert runs the transcoder and returns the output path
func (w *ConversionWorker) convert(job types.ConversionJob) (string, error) {
	ext, err := OutputExtension(job.TargetSettings.Format)
	if err != nil {
		return "", err
	}

	ctx := w.ctx
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	outDir := w.library.ConversionOutputDir(ctx, job.Path, w.opts.ConvertedDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output folder: %w", err)
	}
	output := filepath.Join(outDir, stem(filepath.Base(job.Path))+ext)
	if owner, taken := w.outputOwner(output, job.Path); taken {
		return "", fmt.Errorf("output %s was already produced from %s", output, owner)
	}

	err = w.transcoder.Transcode(ctx, TranscodeRequest{
		Input:    job.Path,
		Output:   output,
		Settings: job.TargetSettings,
	}, func(percent float64) {
		w.queue.UpdateProgress(job.Path, percent)
	})
	if err != nil {
		_ = os.Remove(output)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("conversion timed out after %s", w.opts.Timeout)
		}
		return "", err
	}
	return output, nil
}

// outputOwner reports another queued job that already wrote output
func (w *ConversionWorker) outputOwner(output, path string) (string, bool) {
	for _, j := range w.queue.Snapshot() {
		if j.Path != path && j.OutputPath == output {
			return j.Path, true
		}
	}
	return "", false
}
