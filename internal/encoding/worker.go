package encoding

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/showreel/internal/metrics"
	"thirdcoast.systems/showreel/internal/objectstore"
	"thirdcoast.systems/showreel/internal/queue"
	"thirdcoast.systems/showreel/internal/store"
)

// maxStoredError bounds the error text persisted on a failed video.
const maxStoredError = 500

// Backend transcodes a single video end to end.
type Backend interface {
	IsAvailable() bool
	Encode(ctx context.Context, videoID uuid.UUID, rawKey string) (*Result, error)
}

// Worker drains the encoding queue with a fixed number of goroutines. Each
// goroutine wakes on the queue's signal channel or a poll tick, then works
// until the queue hands it nothing.
type Worker struct {
	queue   *queue.Queue
	videos  store.VideoStore
	backend Backend
	objects objectstore.ObjectStore
	layout  OutputLayout
	logger  *slog.Logger

	workers      int
	pollInterval time.Duration

	retention     time.Duration
	purgeInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type WorkerOptions struct {
	Workers       int
	PollInterval  time.Duration
	Retention     time.Duration
	PurgeInterval time.Duration
}

func NewWorker(q *queue.Queue, videos store.VideoStore, backend Backend, objects objectstore.ObjectStore, layout OutputLayout, logger *slog.Logger, opts WorkerOptions) *Worker {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.PurgeInterval <= 0 {
		opts.PurgeInterval = 10 * time.Minute
	}
	return &Worker{
		queue:         q,
		videos:        videos,
		backend:       backend,
		objects:       objects,
		layout:        layout,
		logger:        logger,
		workers:       opts.Workers,
		pollInterval:  opts.PollInterval,
		retention:     opts.Retention,
		purgeInterval: opts.PurgeInterval,
	}
}

// Start launches the worker goroutines and the purge loop.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.run(ctx, id)
		}(i)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.purgeLoop(ctx)
	}()
}

// Stop cancels the workers and waits for in-flight jobs, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) {
	if w.cancel != nil {
		w.cancel()
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("worker shutdown timed out with jobs in flight")
	}
}

func (w *Worker) run(ctx context.Context, id int) {
	logger := w.logger.With(slog.Int("worker", id))
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx, logger)

		select {
		case <-ctx.Done():
			return
		case <-w.queue.Signal():
		case <-ticker.C:
		}
	}
}

// drain processes jobs until the queue returns nil. A nil from the queue
// means empty or at the concurrency cap; either way this goroutine goes
// back to waiting. Jobs run detached from the loop context: shutdown stops
// dequeuing, but an in-flight encode ends only through its own wall-clock
// timeout.
func (w *Worker) drain(ctx context.Context, logger *slog.Logger) {
	jobCtx := context.WithoutCancel(ctx)
	for {
		if ctx.Err() != nil {
			return
		}
		job := w.queue.DequeueNext()
		if job == nil {
			return
		}
		w.process(jobCtx, logger, job)
		w.publishStats()
	}
}

func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	logger = logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("video_id", job.VideoID.String()),
		slog.Int("attempt", job.Attempts),
	)

	v, err := w.videos.Get(ctx, job.VideoID)
	if err != nil {
		logger.Error("loading video", slog.String("error", err.Error()))
		w.failJob(ctx, logger, job, err)
		return
	}
	update := store.EncodingUpdate{Status: store.StatusPtr(store.EncodingActive)}
	if v.EncodingStatus != store.EncodingActive {
		// Retries keep the original timestamp so the watchdog's stuck
		// clock spans all attempts.
		update.StartedAt = store.TimePtr(time.Now().UTC())
	}
	if err := w.videos.UpdateEncoding(ctx, job.VideoID, update); err != nil {
		logger.Error("marking video encoding", slog.String("error", err.Error()))
		w.failJob(ctx, logger, job, err)
		return
	}

	if !w.backend.IsAvailable() {
		w.passthrough(ctx, logger, job)
		return
	}

	started := time.Now()
	res, err := w.backend.Encode(ctx, job.VideoID, job.InputPath)
	if err != nil {
		logger.Warn("encode attempt failed", slog.String("error", err.Error()))
		w.failJob(ctx, logger, job, err)
		return
	}
	metrics.EncodeDuration.Observe(time.Since(started).Seconds())

	completed := time.Now().UTC()
	if err := w.videos.UpdateEncoding(ctx, job.VideoID, store.EncodingUpdate{
		Status:         store.StatusPtr(store.EncodingReady),
		CompletedAt:    store.TimePtr(completed),
		Error:          store.StrPtr(""),
		Tiers:          store.TiersPtr(store.TiersAll),
		ManifestURL:    store.StrPtr(res.ManifestURL),
		MP4FallbackURL: store.StrPtr(res.MP4FallbackURL),
	}); err != nil {
		logger.Error("persisting encode result", slog.String("error", err.Error()))
		w.failJob(ctx, logger, job, err)
		return
	}

	if err := w.queue.MarkComplete(job.ID); err != nil {
		logger.Error("completing job", slog.String("error", err.Error()))
	}
	metrics.JobsCompleted.Inc()
	logger.Info("encode complete", slog.Duration("took", time.Since(started)))
}

// passthrough serves the original file untranscoded when no encoder backend
// exists. The video is READY but degraded: playable, no adaptive tiers.
func (w *Worker) passthrough(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	destKey := w.layout.OriginalPassthroughKey(job.VideoID, path.Ext(job.InputPath))
	if err := w.objects.Copy(ctx, job.InputPath, destKey); err != nil {
		logger.Warn("passthrough copy failed", slog.String("error", err.Error()))
		w.failJob(ctx, logger, job, err)
		return
	}

	now := time.Now().UTC()
	if err := w.videos.UpdateEncoding(ctx, job.VideoID, store.EncodingUpdate{
		Status:         store.StatusPtr(store.EncodingReady),
		CompletedAt:    store.TimePtr(now),
		Error:          store.StrPtr(""),
		Tiers:          store.TiersPtr(store.TiersNone),
		MP4FallbackURL: store.StrPtr(w.layout.PublicURL(destKey)),
	}); err != nil {
		logger.Error("persisting passthrough result", slog.String("error", err.Error()))
		w.failJob(ctx, logger, job, err)
		return
	}

	if err := w.queue.MarkComplete(job.ID); err != nil {
		logger.Error("completing job", slog.String("error", err.Error()))
	}
	metrics.JobsCompleted.Inc()
	logger.Info("no encoder available, serving original untranscoded")
}

// failJob records the failure with the queue and, once retries are
// exhausted, marks the video FAILED with the truncated error.
func (w *Worker) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, cause error) {
	retryable := job.Attempts < job.MaxAttempts
	if err := w.queue.MarkFailed(job.ID, cause.Error(), true); err != nil {
		logger.Error("recording job failure", slog.String("error", err.Error()))
	}
	if retryable {
		// The job is back in the queue; leave the video in ENCODING so its
		// started-at timestamp keeps the watchdog honest about the retry.
		return
	}

	metrics.JobsFailed.Inc()
	msg := truncate(cause.Error(), maxStoredError)
	now := time.Now().UTC()
	if err := w.videos.UpdateEncoding(ctx, job.VideoID, store.EncodingUpdate{
		Status:      store.StatusPtr(store.EncodingFailed),
		CompletedAt: store.TimePtr(now),
		Error:       store.StrPtr(msg),
	}); err != nil {
		logger.Error("marking video failed", slog.String("error", err.Error()))
	}
	logger.Error("job failed permanently", slog.String("error", msg))
}

func (w *Worker) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := w.queue.PurgeOld(w.retention); n > 0 {
				w.logger.Debug("purged finished jobs", slog.Int("count", n))
			}
			w.publishStats()
		}
	}
}

func (w *Worker) publishStats() {
	stats := w.queue.Stats()
	metrics.SetQueueDepth(stats.Pending, stats.Processing, stats.Completed, stats.Failed)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
