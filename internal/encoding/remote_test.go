package encoding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/showreel/internal/objectstore"
)

func newRemoteFixture(t *testing.T, handler http.HandlerFunc) (*RemoteEncoder, *objectstore.MemoryStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	objects := objectstore.NewMemoryStore()
	layout := NewOutputLayout("https://cdn.example.com")
	enc := NewRemoteEncoder(srv.URL, "test-key", "https://app.example.com", "hooksecret", objects, layout)
	return enc, objects, srv
}

func TestRemoteEncoder_SubmitPhase1(t *testing.T) {
	var captured remoteJobRequest
	var gotAuth string
	enc, objects, _ := newRemoteFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/jobs", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(remoteJobResponse{ID: "job-123"})
	})

	videoID := uuid.New()
	rawKey := "raw/" + videoID.String() + "/clip.mov"
	require.NoError(t, objects.Upload(context.Background(), rawKey, []byte("x"), "video/quicktime"))

	jobID, err := enc.SubmitPhase1(context.Background(), videoID, rawKey)
	require.NoError(t, err)
	assert.Equal(t, "job-123", jobID)
	assert.Equal(t, "Bearer test-key", gotAuth)

	require.Len(t, captured.Outputs, 1)
	assert.Equal(t, "480p", captured.Outputs[0].Name)
	assert.Equal(t, 854, captured.Outputs[0].Width)
	assert.Equal(t, "hls/"+videoID.String()+"/480p", captured.Outputs[0].Path)
	assert.NotEmpty(t, captured.Input)

	cb, err := url.Parse(captured.Webhook)
	require.NoError(t, err)
	assert.Equal(t, "/hooks/encoder/hooksecret", cb.Path)
	assert.Equal(t, videoID.String(), cb.Query().Get("videoId"))
	assert.Equal(t, "1", cb.Query().Get("phase"))
	assert.Equal(t, rawKey, cb.Query().Get("input"))
}

func TestRemoteEncoder_SubmitPhase2RequestsBothTiers(t *testing.T) {
	var captured remoteJobRequest
	enc, objects, _ := newRemoteFixture(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(remoteJobResponse{ID: "job-456"})
	})

	videoID := uuid.New()
	rawKey := "raw/" + videoID.String() + "/clip.mp4"
	require.NoError(t, objects.Upload(context.Background(), rawKey, []byte("x"), "video/mp4"))

	_, err := enc.SubmitPhase2(context.Background(), videoID, rawKey)
	require.NoError(t, err)

	require.Len(t, captured.Outputs, 2)
	assert.Equal(t, "480p", captured.Outputs[0].Name)
	assert.Equal(t, "360p", captured.Outputs[1].Name)

	cb, err := url.Parse(captured.Webhook)
	require.NoError(t, err)
	assert.Equal(t, "2", cb.Query().Get("phase"))
}

func TestRemoteEncoder_SubmitRejection(t *testing.T) {
	enc, objects, _ := newRemoteFixture(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid input url", http.StatusUnprocessableEntity)
	})

	videoID := uuid.New()
	rawKey := "raw/" + videoID.String() + "/clip.mp4"
	require.NoError(t, objects.Upload(context.Background(), rawKey, []byte("x"), "video/mp4"))

	_, err := enc.SubmitPhase1(context.Background(), videoID, rawKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "invalid input url")
}

func TestRemoteEncoder_IsAvailable(t *testing.T) {
	objects := objectstore.NewMemoryStore()
	layout := NewOutputLayout("https://cdn.example.com")

	assert.False(t, NewRemoteEncoder("", "", "https://app.example.com", "s", objects, layout).IsAvailable())
	assert.False(t, NewRemoteEncoder("https://enc.example.com", "", "https://app.example.com", "s", objects, layout).IsAvailable())
	assert.True(t, NewRemoteEncoder("https://enc.example.com", "k", "https://app.example.com", "s", objects, layout).IsAvailable())
}
