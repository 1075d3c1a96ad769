package webhook

import (
	"context"
	"errors"
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

type fakeSubmitter struct {
	err     error
	calls   int
	lastKey string
}

func (f *fakeSubmitter) SubmitPhase2(ctx context.Context, videoID uuid.UUID, rawKey string) (string, error) {
	f.calls++
	f.lastKey = rawKey
	if f.err != nil {
		return "", f.err
	}
	return "job-phase2", nil
}

type encoderFixture struct {
	reducer   *EncoderReducer
	videos    *store.MemoryStore
	submitter *fakeSubmitter
}

func newEncoderFixture(t *testing.T) *encoderFixture {
	t.Helper()
	videos := store.NewMemoryStore()
	submitter := &fakeSubmitter{}
	layout := encoding.NewOutputLayout("https://cdn.example.com")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reducer := NewEncoderReducer(videos, submitter, moderation.NewAutoApprover(videos), layout, logger)
	return &encoderFixture{reducer: reducer, videos: videos, submitter: submitter}
}

func (f *encoderFixture) addVideo(t *testing.T, status store.EncodingStatus, tiers store.TiersStatus) *store.Video {
	t.Helper()
	v := &store.Video{
		ID:             uuid.New(),
		RawPath:        "raw/" + uuid.NewString() + "/clip.mp4",
		EncodingStatus: status,
		EncodingTiers:  tiers,
		Moderation:     store.ModerationPending,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.videos.Create(context.Background(), v))
	return v
}

func TestEncoderReducer_Phase1Completed(t *testing.T) {
	f := newEncoderFixture(t)
	v := f.addVideo(t, store.EncodingActive, store.TiersNone)

	err := f.reducer.Apply(context.Background(), v.ID, 1, v.RawPath, EncoderEvent{Event: "job.completed"})
	require.NoError(t, err)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus)
	assert.Equal(t, store.TiersPartial, got.EncodingTiers)
	assert.Equal(t, "https://cdn.example.com/hls/"+v.ID.String()+"/master.m3u8", got.ManifestURL)
	assert.Empty(t, got.MP4FallbackURL)
	assert.NotNil(t, got.EncodingCompletedAt)
	assert.Equal(t, store.ModerationApproved, got.Moderation)

	assert.Equal(t, 1, f.submitter.calls)
	assert.Equal(t, v.RawPath, f.submitter.lastKey)
}

func TestEncoderReducer_Phase1CompletedPhase2SubmitFails(t *testing.T) {
	f := newEncoderFixture(t)
	f.submitter.err = errors.New("provider is over quota")
	v := f.addVideo(t, store.EncodingActive, store.TiersNone)

	err := f.reducer.Apply(context.Background(), v.ID, 1, v.RawPath, EncoderEvent{Event: "job.completed"})
	require.NoError(t, err)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus, "video stays watchable")
	assert.Equal(t, store.TiersPartialFailed, got.EncodingTiers)
}

func TestEncoderReducer_Phase1CompletedMissingInputRef(t *testing.T) {
	f := newEncoderFixture(t)
	v := f.addVideo(t, store.EncodingActive, store.TiersNone)

	err := f.reducer.Apply(context.Background(), v.ID, 1, "", EncoderEvent{Event: "job.completed"})
	require.NoError(t, err)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus)
	assert.Equal(t, store.TiersPartialFailed, got.EncodingTiers)
	assert.Zero(t, f.submitter.calls)
}

func TestEncoderReducer_Phase2Completed(t *testing.T) {
	f := newEncoderFixture(t)
	v := f.addVideo(t, store.EncodingReady, store.TiersPartial)

	err := f.reducer.Apply(context.Background(), v.ID, 2, v.RawPath, EncoderEvent{Event: "job.completed"})
	require.NoError(t, err)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus)
	assert.Equal(t, store.TiersAll, got.EncodingTiers)
}

func TestEncoderReducer_Phase1Failed(t *testing.T) {
	f := newEncoderFixture(t)
	v := f.addVideo(t, store.EncodingActive, store.TiersNone)

	err := f.reducer.Apply(context.Background(), v.ID, 1, v.RawPath, EncoderEvent{Event: "job.failed", Error: "source stream is corrupt"})
	require.NoError(t, err)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingFailed, got.EncodingStatus)
	assert.Equal(t, store.TiersNone, got.EncodingTiers)
	assert.Contains(t, got.EncodingError, "source stream is corrupt")
}

func TestEncoderReducer_Phase2FailedNeverRegressesReady(t *testing.T) {
	f := newEncoderFixture(t)
	v := f.addVideo(t, store.EncodingActive, store.TiersNone)

	require.NoError(t, f.reducer.Apply(context.Background(), v.ID, 1, v.RawPath, EncoderEvent{Event: "job.completed"}))
	require.NoError(t, f.reducer.Apply(context.Background(), v.ID, 2, v.RawPath, EncoderEvent{Event: "job.failed", Error: "low tier crashed"}))

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus, "phase 2 failure must not fail the video")
	assert.Equal(t, store.TiersPartialFailed, got.EncodingTiers)
}

func TestEncoderReducer_LatePhase2CompletionCannotResurrectFailedVideo(t *testing.T) {
	f := newEncoderFixture(t)
	v := f.addVideo(t, store.EncodingActive, store.TiersNone)

	require.NoError(t, f.reducer.Apply(context.Background(), v.ID, 1, v.RawPath, EncoderEvent{Event: "job.failed", Error: "bad input"}))
	require.NoError(t, f.reducer.Apply(context.Background(), v.ID, 2, v.RawPath, EncoderEvent{Event: "job.completed"}))

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingFailed, got.EncodingStatus)
	assert.Equal(t, store.TiersNone, got.EncodingTiers)
}

func TestEncoderReducer_OutputEventsAreInformational(t *testing.T) {
	f := newEncoderFixture(t)
	v := f.addVideo(t, store.EncodingActive, store.TiersNone)

	for _, event := range []string{"output.completed", "output.failed"} {
		require.NoError(t, f.reducer.Apply(context.Background(), v.ID, 1, v.RawPath, EncoderEvent{Event: event, Output: "480p"}))
	}

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingActive, got.EncodingStatus)
	assert.Equal(t, store.TiersNone, got.EncodingTiers)
	assert.Zero(t, f.submitter.calls)
}
