package encoding

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

	"thirdcoast.systems/showreel/internal/objectstore"
	"thirdcoast.systems/showreel/internal/queue"
	"thirdcoast.systems/showreel/internal/store"
)

type fakeBackend struct {
	available bool
	res       *Result
	err       error
	delay     time.Duration
	calls     int
}

func (f *fakeBackend) IsAvailable() bool { return f.available }

func (f *fakeBackend) Encode(ctx context.Context, videoID uuid.UUID, rawKey string) (*Result, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

type workerFixture struct {
	worker  *Worker
	queue   *queue.Queue
	videos  *store.MemoryStore
	objects *objectstore.MemoryStore
	backend *fakeBackend
}

func newWorkerFixture(t *testing.T, backend *fakeBackend) *workerFixture {
	t.Helper()
	q := queue.New(2)
	videos := store.NewMemoryStore()
	objects := objectstore.NewMemoryStore()
	layout := NewOutputLayout("https://cdn.example.com")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(q, videos, backend, objects, layout, logger, WorkerOptions{})
	return &workerFixture{worker: w, queue: q, videos: videos, objects: objects, backend: backend}
}

func (f *workerFixture) addVideo(t *testing.T) *store.Video {
	t.Helper()
	v := &store.Video{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		RawPath:        "raw/" + uuid.NewString() + "/input.mp4",
		Filename:       "input.mp4",
		EncodingStatus: store.EncodingPending,
		EncodingTiers:  store.TiersNone,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.videos.Create(context.Background(), v))
	return v
}

func TestWorkerProcess_Success(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		res: &Result{
			ManifestURL:    "https://cdn.example.com/hls/x/master.m3u8",
			MP4FallbackURL: "https://cdn.example.com/hls/x/fallback.mp4",
		},
	}
	f := newWorkerFixture(t, backend)
	v := f.addVideo(t)

	f.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)
	job := f.queue.DequeueNext()
	require.NotNil(t, job)

	f.worker.process(context.Background(), f.worker.logger, job)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus)
	assert.Equal(t, store.TiersAll, got.EncodingTiers)
	assert.Equal(t, backend.res.ManifestURL, got.ManifestURL)
	assert.Equal(t, backend.res.MP4FallbackURL, got.MP4FallbackURL)
	assert.NotNil(t, got.EncodingStartedAt)
	assert.NotNil(t, got.EncodingCompletedAt)

	queued, ok := f.queue.FindByVideoID(v.ID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusCompleted, queued.Status)
}

func TestWorkerProcess_ExhaustsRetriesThenFailsVideo(t *testing.T) {
	backend := &fakeBackend{available: true, err: errors.New("segment muxer exploded")}
	f := newWorkerFixture(t, backend)
	v := f.addVideo(t)

	f.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)

	for i := 0; i < queue.DefaultMaxAttempts; i++ {
		job := f.queue.DequeueNext()
		require.NotNil(t, job, "attempt %d should dequeue", i+1)
		f.worker.process(context.Background(), f.worker.logger, job)
	}

	require.Nil(t, f.queue.DequeueNext(), "no attempts should remain")
	assert.Equal(t, queue.DefaultMaxAttempts, backend.calls)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingFailed, got.EncodingStatus)
	assert.Contains(t, got.EncodingError, "segment muxer exploded")

	queued, ok := f.queue.FindByVideoID(v.ID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusFailed, queued.Status)
}

func TestWorkerProcess_VideoStaysEncodingWhileRetriesRemain(t *testing.T) {
	backend := &fakeBackend{available: true, err: errors.New("transient")}
	f := newWorkerFixture(t, backend)
	v := f.addVideo(t)

	f.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)
	job := f.queue.DequeueNext()
	require.NotNil(t, job)
	f.worker.process(context.Background(), f.worker.logger, job)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingActive, got.EncodingStatus)
	assert.Empty(t, got.EncodingError)

	queued, ok := f.queue.FindByVideoID(v.ID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusPending, queued.Status)
}

func TestWorkerProcess_RetryKeepsOriginalStartTimestamp(t *testing.T) {
	backend := &fakeBackend{available: true, err: errors.New("transient")}
	f := newWorkerFixture(t, backend)
	v := f.addVideo(t)

	f.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)
	job := f.queue.DequeueNext()
	require.NotNil(t, job)
	f.worker.process(context.Background(), f.worker.logger, job)

	// Backdate the first attempt so a re-stamp on retry would be visible.
	firstStart := time.Now().UTC().Add(-40 * time.Minute)
	require.NoError(t, f.videos.UpdateEncoding(context.Background(), v.ID, store.EncodingUpdate{
		StartedAt: store.TimePtr(firstStart),
	}))

	job = f.queue.DequeueNext()
	require.NotNil(t, job)
	f.worker.process(context.Background(), f.worker.logger, job)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EncodingStartedAt)
	assert.True(t, got.EncodingStartedAt.Equal(firstStart),
		"retry must not restart the encode clock")
}

func TestWorkerPassthrough_NoBackendServesOriginal(t *testing.T) {
	backend := &fakeBackend{available: false}
	f := newWorkerFixture(t, backend)
	v := f.addVideo(t)

	require.NoError(t, f.objects.Upload(context.Background(), v.RawPath, []byte("raw bytes"), "video/mp4"))

	f.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)
	job := f.queue.DequeueNext()
	require.NotNil(t, job)
	f.worker.process(context.Background(), f.worker.logger, job)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus)
	assert.Equal(t, store.TiersNone, got.EncodingTiers)
	assert.Empty(t, got.ManifestURL)
	assert.Equal(t, "https://cdn.example.com/hls/"+v.ID.String()+"/original.mp4", got.MP4FallbackURL)

	copied, ok := f.objects.Get("hls/" + v.ID.String() + "/original.mp4")
	require.True(t, ok)
	assert.Equal(t, []byte("raw bytes"), copied)
	assert.Zero(t, backend.calls)
}

func TestWorkerStop_ReturnsAfterDrain(t *testing.T) {
	backend := &fakeBackend{available: true, res: &Result{ManifestURL: "m", MP4FallbackURL: "f"}}
	f := newWorkerFixture(t, backend)

	f.worker.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.worker.Stop(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerStop_InFlightEncodeSurvivesCancel(t *testing.T) {
	backend := &fakeBackend{
		available: true,
		delay:     300 * time.Millisecond,
		res: &Result{
			ManifestURL:    "https://cdn.example.com/hls/x/master.m3u8",
			MP4FallbackURL: "https://cdn.example.com/hls/x/fallback.mp4",
		},
	}
	f := newWorkerFixture(t, backend)
	v := f.addVideo(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)
	f.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)

	require.Eventually(t, func() bool {
		job, ok := f.queue.FindByVideoID(v.ID)
		return ok && job.Status == queue.StatusProcessing
	}, 2*time.Second, 10*time.Millisecond, "job should be picked up")

	// Parent cancellation must not abort the encode already in progress.
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	f.worker.Stop(stopCtx)

	got, err := f.videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.EncodingReady, got.EncodingStatus)
	assert.Equal(t, store.TiersAll, got.EncodingTiers)

	queued, ok := f.queue.FindByVideoID(v.ID)
	require.True(t, ok)
	assert.Equal(t, queue.StatusCompleted, queued.Status)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
}
