package webhook

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/showreel/internal/encoding"
	"thirdcoast.systems/showreel/internal/moderation"
	"thirdcoast.systems/showreel/internal/store"
)

func newPipelineFixture(t *testing.T) (*PipelineReducer, *store.MemoryStore) {
	t.Helper()
	videos := store.NewMemoryStore()
	layout := encoding.NewOutputLayout("https://cdn.example.com")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipelineReducer(videos, moderation.NewAutoApprover(videos), layout, logger), videos
}

func stateEvent(videoID uuid.UUID, state, errMsg string) PipelineEvent {
	return PipelineEvent{
		EventType: "JobStateChange",
		Data:      PipelineEventData{VideoID: videoID.String(), State: state, Error: errMsg},
	}
}

func TestPipelineReducer_Processing(t *testing.T) {
	reducer, videos := newPipelineFixture(t)
	v := &store.Video{ID: uuid.New(), EncodingStatus: store.EncodingPending, EncodingTiers: store.TiersNone, CreatedAt: time.Now()}
	require.NoError(t, videos.Create(context.Background(), v))

	require.NoError(t, reducer.Apply(context.Background(), stateEvent(v.ID, "Processing", "")))

	got, err := videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingActive, got.EncodingStatus)
	assert.NotNil(t, got.EncodingStartedAt)
}

func TestPipelineReducer_Finished(t *testing.T) {
	reducer, videos := newPipelineFixture(t)
	v := &store.Video{ID: uuid.New(), EncodingStatus: store.EncodingActive, EncodingTiers: store.TiersNone, Moderation: store.ModerationPending, CreatedAt: time.Now()}
	require.NoError(t, videos.Create(context.Background(), v))

	require.NoError(t, reducer.Apply(context.Background(), stateEvent(v.ID, "Finished", "")))

	got, err := videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus)
	assert.Equal(t, store.TiersAll, got.EncodingTiers)
	assert.Equal(t, "https://cdn.example.com/hls/"+v.ID.String()+"/master.m3u8", got.ManifestURL)
	assert.Equal(t, "https://cdn.example.com/hls/"+v.ID.String()+"/fallback.mp4", got.MP4FallbackURL)
	assert.Equal(t, store.ModerationApproved, got.Moderation)
}

func TestPipelineReducer_ErrorAndCanceled(t *testing.T) {
	for _, state := range []string{"Error", "Canceled"} {
		t.Run(state, func(t *testing.T) {
			reducer, videos := newPipelineFixture(t)
			v := &store.Video{ID: uuid.New(), EncodingStatus: store.EncodingActive, EncodingTiers: store.TiersNone, CreatedAt: time.Now()}
			require.NoError(t, videos.Create(context.Background(), v))

			require.NoError(t, reducer.Apply(context.Background(), stateEvent(v.ID, state, "node died")))

			got, err := videos.Get(context.Background(), v.ID)
			require.NoError(t, err)
			assert.Equal(t, store.EncodingFailed, got.EncodingStatus)
			assert.Contains(t, got.EncodingError, state)
			assert.Contains(t, got.EncodingError, "node died")
		})
	}
}

func TestPipelineReducer_RejectsEventWithoutVideoID(t *testing.T) {
	reducer, _ := newPipelineFixture(t)
	err := reducer.Apply(context.Background(), PipelineEvent{EventType: "JobStateChange", Data: PipelineEventData{State: "Finished"}})
	require.Error(t, err)
}
