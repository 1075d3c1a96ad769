// Package watchdog audits video state on a fixed schedule and repairs what
// the asynchronous paths lost: callbacks that never arrived and queue
// entries that died with a process restart.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"thirdcoast.systems/showreel/internal/encoding"
	"thirdcoast.systems/showreel/internal/metrics"
	"thirdcoast.systems/showreel/internal/objectstore"
	"thirdcoast.systems/showreel/internal/queue"
	"thirdcoast.systems/showreel/internal/store"
)

type Options struct {
	// Interval between sweep runs.
	Interval time.Duration
	// StuckThreshold is how long a video may sit in ENCODING before the
	// watchdog starts checking on it, and how long a PENDING video may
	// exist before it is presumed orphaned.
	StuckThreshold time.Duration
	// TimeoutThreshold is how long a video may sit in ENCODING with no
	// manifest before it is declared dead.
	TimeoutThreshold time.Duration
}

// Watchdog runs the recovery sweeps. Its writes are idempotent: it sets
// READY/FAILED fields from observed storage state, so racing a concurrent
// completion is harmless.
type Watchdog struct {
	videos  store.VideoStore
	objects objectstore.ObjectStore
	queue   *queue.Queue
	layout  encoding.OutputLayout
	logger  *slog.Logger
	opts    Options
}

func New(videos store.VideoStore, objects objectstore.ObjectStore, q *queue.Queue, layout encoding.OutputLayout, logger *slog.Logger, opts Options) *Watchdog {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.StuckThreshold <= 0 {
		opts.StuckThreshold = 30 * time.Minute
	}
	if opts.TimeoutThreshold <= 0 {
		opts.TimeoutThreshold = 60 * time.Minute
	}
	return &Watchdog{
		videos:  videos,
		objects: objects,
		queue:   q,
		layout:  layout,
		logger:  logger,
		opts:    opts,
	}
}

// Start runs sweeps until ctx is canceled.
func (w *Watchdog) Start(ctx context.Context) {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes both sweeps. Each sweep isolates per-video failures so
// one broken record never shadows the rest.
func (w *Watchdog) RunOnce(ctx context.Context) {
	w.sweepStuckEncoding(ctx)
	w.sweepOrphanedPending(ctx)
}

// sweepStuckEncoding looks at videos that have been in ENCODING past the
// stuck threshold. A manifest in storage means the completion callback was
// lost and the video is recoverable; no manifest past the timeout threshold
// means the encode is dead.
func (w *Watchdog) sweepStuckEncoding(ctx context.Context) {
	now := time.Now().UTC()
	videos, err := w.videos.ListStuckEncoding(ctx, now.Add(-w.opts.StuckThreshold))
	if err != nil {
		w.logger.Error("listing stuck videos", slog.String("error", err.Error()))
		return
	}

	for _, v := range videos {
		if err := w.recoverStuck(ctx, v, now); err != nil {
			w.logger.Error("recovering stuck video",
				slog.String("video_id", v.ID.String()),
				slog.String("error", err.Error()))
		}
	}
}

func (w *Watchdog) recoverStuck(ctx context.Context, v *store.Video, now time.Time) error {
	manifestKey := w.layout.MasterManifestKey(v.ID)
	exists, err := w.objects.Exists(ctx, manifestKey)
	if err != nil {
		return fmt.Errorf("checking manifest: %w", err)
	}

	if exists {
		w.logger.Info("recovering video with lost completion callback",
			slog.String("video_id", v.ID.String()))
		metrics.WatchdogRecoveries.WithLabelValues("recovered").Inc()
		return w.videos.UpdateEncoding(ctx, v.ID, store.EncodingUpdate{
			Status:      store.StatusPtr(store.EncodingReady),
			CompletedAt: store.TimePtr(now),
			Error:       store.StrPtr(""),
			Tiers:       store.TiersPtr(store.TiersPartial),
			ManifestURL: store.StrPtr(w.layout.PublicURL(manifestKey)),
		})
	}

	if v.EncodingStartedAt != nil && now.Sub(*v.EncodingStartedAt) > w.opts.TimeoutThreshold {
		w.logger.Warn("failing video stuck past timeout",
			slog.String("video_id", v.ID.String()),
			slog.Duration("encoding_for", now.Sub(*v.EncodingStartedAt)))
		metrics.WatchdogRecoveries.WithLabelValues("timed_out").Inc()
		return w.videos.UpdateEncoding(ctx, v.ID, store.EncodingUpdate{
			Status:      store.StatusPtr(store.EncodingFailed),
			CompletedAt: store.TimePtr(now),
			Tiers:       store.TiersPtr(store.TiersNone),
			Error:       store.StrPtr("encoding timed out with no output produced"),
		})
	}

	// Still inside the grace window.
	return nil
}

// sweepOrphanedPending re-enqueues PENDING videos whose queue entry was
// lost, which happens when the process restarts before the job is ever
// dequeued. The queue holds no state across restarts.
func (w *Watchdog) sweepOrphanedPending(ctx context.Context) {
	videos, err := w.videos.ListStalePending(ctx, time.Now().UTC().Add(-w.opts.StuckThreshold))
	if err != nil {
		w.logger.Error("listing stale pending videos", slog.String("error", err.Error()))
		return
	}

	for _, v := range videos {
		if _, exists := w.queue.FindByVideoID(v.ID); exists {
			continue
		}
		if v.RawPath == "" {
			w.logger.Error("pending video has no raw asset, manual intervention needed",
				slog.String("video_id", v.ID.String()))
			continue
		}
		w.logger.Info("re-enqueueing orphaned video", slog.String("video_id", v.ID.String()))
		metrics.WatchdogRecoveries.WithLabelValues("requeued").Inc()
		w.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)
	}
}
