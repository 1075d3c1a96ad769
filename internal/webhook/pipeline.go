package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/showreel/internal/encoding"
	"thirdcoast.systems/showreel/internal/moderation"
	"thirdcoast.systems/showreel/internal/store"
)

// PipelineEvent is one entry in the batch posted by a generic job-state
// notifier. SubscriptionValidation events arrive once, when the
// subscription is created; everything after that is a state change.
type PipelineEvent struct {
	EventType string            `json:"eventType"`
	Data      PipelineEventData `json:"data"`
}

type PipelineEventData struct {
	ValidationCode string `json:"validationCode,omitempty"`
	VideoID        string `json:"videoId,omitempty"`
	State          string `json:"state,omitempty"`
	Error          string `json:"error,omitempty"`
}

const eventTypeSubscriptionValidation = "SubscriptionValidation"

// PipelineReducer maps notifier job states onto video-state transitions.
type PipelineReducer struct {
	videos    store.VideoStore
	moderator moderation.Moderator
	layout    encoding.OutputLayout
	logger    *slog.Logger
}

func NewPipelineReducer(videos store.VideoStore, moderator moderation.Moderator, layout encoding.OutputLayout, logger *slog.Logger) *PipelineReducer {
	return &PipelineReducer{
		videos:    videos,
		moderator: moderator,
		layout:    layout,
		logger:    logger,
	}
}

// Apply runs one state-change event. Validation events are handled by the
// HTTP layer before processing reaches here.
func (r *PipelineReducer) Apply(ctx context.Context, ev PipelineEvent) error {
	videoID, err := uuid.Parse(ev.Data.VideoID)
	if err != nil {
		return fmt.Errorf("event carries no valid video id: %w", err)
	}
	logger := r.logger.With(
		slog.String("video_id", videoID.String()),
		slog.String("state", ev.Data.State),
	)

	switch ev.Data.State {
	case "Processing":
		return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
			Status:    store.StatusPtr(store.EncodingActive),
			StartedAt: store.TimePtr(nowUTC()),
		})
	case "Finished":
		if err := r.finished(ctx, videoID); err != nil {
			logger.Error("completion handling failed", slog.String("error", err.Error()))
			return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
				Status: store.StatusPtr(store.EncodingFailed),
				Error:  store.StrPtr(truncate(err.Error(), maxStoredError)),
			})
		}
		if err := r.moderator.QueueModeration(ctx, videoID); err != nil {
			logger.Warn("queueing moderation failed", slog.String("error", err.Error()))
		}
		return nil
	case "Error", "Canceled":
		return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
			Status: store.StatusPtr(store.EncodingFailed),
			Tiers:  store.TiersPtr(store.TiersNone),
			Error:  store.StrPtr(truncate("encoding job "+ev.Data.State+": "+ev.Data.Error, maxStoredError)),
		})
	default:
		logger.Warn("unrecognized pipeline state")
		return nil
	}
}

func (r *PipelineReducer) finished(ctx context.Context, videoID uuid.UUID) error {
	return r.videos.UpdateEncoding(ctx, videoID, store.EncodingUpdate{
		Status:         store.StatusPtr(store.EncodingReady),
		CompletedAt:    store.TimePtr(nowUTC()),
		Error:          store.StrPtr(""),
		Tiers:          store.TiersPtr(store.TiersAll),
		ManifestURL:    store.StrPtr(r.layout.PublicURL(r.layout.MasterManifestKey(videoID))),
		MP4FallbackURL: store.StrPtr(r.layout.PublicURL(r.layout.FallbackKey(videoID))),
	})
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
