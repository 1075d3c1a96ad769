package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestVideo(status EncodingStatus) *Video {
	return &Video{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		RawPath:        "raw/abc/input.mp4",
		EncodingStatus: status,
		EncodingTiers:  TiersNone,
		Moderation:     ModerationPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_UpdateEncoding_OnlyTouchesSetFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	v := newTestVideo(EncodingActive)
	v.ManifestURL = "https://media.example.com/hls/x/master.m3u8"
	require.NoError(t, s.Create(ctx, v))

	require.NoError(t, s.UpdateEncoding(ctx, v.ID, EncodingUpdate{
		Tiers: TiersPtr(TiersAll),
	}))

	got, err := s.Get(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, TiersAll, got.EncodingTiers)
	// Untouched fields survive.
	require.Equal(t, EncodingActive, got.EncodingStatus)
	require.Equal(t, "https://media.example.com/hls/x/master.m3u8", got.ManifestURL)
}

func TestMemoryStore_ListStuckEncoding_FiltersByStartTime(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	old := newTestVideo(EncodingActive)
	old.EncodingStartedAt = TimePtr(time.Now().Add(-45 * time.Minute))
	require.NoError(t, s.Create(ctx, old))

	recent := newTestVideo(EncodingActive)
	recent.EncodingStartedAt = TimePtr(time.Now().Add(-5 * time.Minute))
	require.NoError(t, s.Create(ctx, recent))

	ready := newTestVideo(EncodingReady)
	ready.EncodingStartedAt = TimePtr(time.Now().Add(-90 * time.Minute))
	require.NoError(t, s.Create(ctx, ready))

	got, err := s.ListStuckEncoding(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, old.ID, got[0].ID)
}

func TestMemoryStore_ListStalePending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	stale := newTestVideo(EncodingPending)
	stale.CreatedAt = time.Now().Add(-31 * time.Minute)
	require.NoError(t, s.Create(ctx, stale))

	fresh := newTestVideo(EncodingPending)
	require.NoError(t, s.Create(ctx, fresh))

	got, err := s.ListStalePending(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, stale.ID, got[0].ID)
}
