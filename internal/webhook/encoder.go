// Package webhook receives asynchronous encoding callbacks and reduces them
// onto the stored video state. Handlers acknowledge before processing; the
// watchdog repairs anything lost after the ack.
package webhook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"thirdcoast.systems/showreel/internal/encoding"
	"thirdcoast.systems/showreel/internal/moderation"
	"thirdcoast.systems/showreel/internal/store"
)

const maxStoredError = 500

// EncoderEvent is one callback from the remote encoding provider. The video
// id, phase, and input reference arrive as query parameters on the callback
// URL, not in the body; the body only names the event.
type EncoderEvent struct {
	Event  string `json:"event"`
	JobID  string `json:"job_id"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PhaseSubmitter starts the follow-up encode after phase 1 lands.
type PhaseSubmitter interface {
	SubmitPhase2(ctx context.Context, videoID uuid.UUID, rawKey string) (string, error)
}

// EncoderReducer maps remote-provider events onto video-state transitions.
// Each (event, phase) pair has exactly one transition; everything else is
// logged and dropped.
type EncoderReducer struct {
	videos    store.VideoStore
	submitter PhaseSubmitter
	moderator moderation.Moderator
	layout    encoding.OutputLayout
	logger    *slog.Logger
}

func NewEncoderReducer(videos store.VideoStore, submitter PhaseSubmitter, moderator moderation.Moderator, layout encoding.OutputLayout, logger *slog.Logger) *EncoderReducer {
	return &EncoderReducer{
		videos:    videos,
		submitter: submitter,
		moderator: moderator,
		layout:    layout,
		logger:    logger,
	}
}

// Apply runs one event through the transition table. rawKey may be empty
// when the provider dropped the query parameter; only the phase 1
// completion path needs it.
func (r *EncoderReducer) Apply(ctx context.Context, videoID uuid.UUID, phase int, rawKey string, ev EncoderEvent) error {
	logger := r.logger.With(
		slog.String("video_id", videoID.String()),
		slog.String("event", ev.Event),
		slog.Int("phase", phase),
	)

	switch {
	case ev.Event == "job.completed" && phase == 1:
		return r.phase1Completed(ctx, logger, videoID, rawKey)
	case ev.Event == "job.completed" && phase == 2:
		return r.phase2Completed(ctx, logger, videoID)
	case ev.Event == "job.failed" && phase == 1:
		return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
			Status: store.StatusPtr(store.EncodingFailed),
			Tiers:  store.TiersPtr(store.TiersNone),
			Error:  store.StrPtr(truncate("remote encode failed: "+ev.Error, maxStoredError)),
		})
	case ev.Event == "job.failed" && phase == 2:
		// The low tier is gone but the video is watchable. Never regress
		// READY over a second-tier failure.
		logger.Warn("second-tier encode failed", slog.String("error", ev.Error))
		return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
			Tiers: store.TiersPtr(store.TiersPartialFailed),
		})
	case ev.Event == "output.completed" || ev.Event == "output.failed":
		logger.Info("output event", slog.String("output", ev.Output))
		return nil
	default:
		logger.Warn("unrecognized encoder event")
		return nil
	}
}

// phase1Completed makes the video watchable at its first tier, then kicks
// off moderation and the phase 2 encode.
func (r *EncoderReducer) phase1Completed(ctx context.Context, logger *slog.Logger, videoID uuid.UUID, rawKey string) error {
	now := nowUTC()
	err := r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
		Status:         store.StatusPtr(store.EncodingReady),
		CompletedAt:    store.TimePtr(now),
		Error:          store.StrPtr(""),
		Tiers:          store.TiersPtr(store.TiersPartial),
		ManifestURL:    store.StrPtr(r.layout.PublicURL(r.layout.MasterManifestKey(videoID))),
		MP4FallbackURL: store.StrPtr(""),
	})
	if err != nil {
		return fmt.Errorf("marking video ready: %w", err)
	}

	if err := r.moderator.QueueModeration(ctx, videoID); err != nil {
		logger.Warn("queueing moderation failed", slog.String("error", err.Error()))
	}

	if rawKey == "" {
		logger.Warn("callback carried no input reference, cannot start phase 2")
		return r.markPartialFailed(ctx, videoID)
	}
	if _, err := r.submitter.SubmitPhase2(ctx, videoID, rawKey); err != nil {
		logger.Warn("phase 2 submission failed", slog.String("error", err.Error()))
		return r.markPartialFailed(ctx, videoID)
	}
	return nil
}

// phase2Completed upgrades the tier status. A video that already failed at
// phase 1 stays failed; a stray late callback must not resurrect it.
func (r *EncoderReducer) phase2Completed(ctx context.Context, logger *slog.Logger, videoID uuid.UUID) error {
	v, err := r.videos.Get(ctx, videoID)
	if err != nil {
		return fmt.Errorf("loading video: %w", err)
	}
	if v.EncodingStatus != store.EncodingReady {
		logger.Warn("dropping phase 2 completion for non-ready video",
			slog.String("status", string(v.EncodingStatus)))
		return nil
	}
	return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
		Tiers: store.TiersPtr(store.TiersAll),
	})
}

func (r *EncoderReducer) markPartialFailed(ctx context.Context, videoID uuid.UUID) error {
	return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
		Tiers: store.TiersPtr(store.TiersPartialFailed),
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
