package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/showreel/internal/store"
)

func TestAutoApprover_MarksApproved(t *testing.T) {
	videos := store.NewMemoryStore()
	v := &store.Video{ID: uuid.New(), EncodingStatus: store.EncodingReady, Moderation: store.ModerationPending, CreatedAt: time.Now()}
	require.NoError(t, videos.Create(context.Background(), v))

	require.NoError(t, NewAutoApprover(videos).QueueModeration(context.Background(), v.ID))

	got, err := videos.Get(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ModerationApproved, got.Moderation)
}

func TestServiceModerator_PostsVideoID(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	id := uuid.New()
	require.NoError(t, NewServiceModerator(srv.URL).QueueModeration(context.Background(), id))
	assert.Equal(t, id.String(), payload["videoId"])
}

func TestServiceModerator_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewServiceModerator(srv.URL).QueueModeration(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestSelect(t *testing.T) {
	videos := store.NewMemoryStore()

	assert.IsType(t, &ServiceModerator{}, Select("https://mod.example.com", true, videos))
	assert.IsType(t, &AutoApprover{}, Select("https://mod.example.com", false, videos))
	assert.IsType(t, &AutoApprover{}, Select("", true, videos))
}
