package encoding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/showreel/internal/objectstore"
)

// signedInputTTL must outlive the provider's queue wait plus the encode
// itself, or the provider fetches a dead link.
const signedInputTTL = 45 * time.Minute

// RemoteEncoder submits transcode jobs to an external encoding provider.
// The provider reports progress back through webhooks; this client only
// starts jobs and never blocks on their completion.
type RemoteEncoder struct {
	endpoint       string
	apiKey         string
	webhookBaseURL string
	webhookSecret  string
	objects        objectstore.ObjectStore
	layout         OutputLayout
	client         *http.Client
}

func NewRemoteEncoder(endpoint, apiKey, webhookBaseURL, webhookSecret string, objects objectstore.ObjectStore, layout OutputLayout) *RemoteEncoder {
	return &RemoteEncoder{
		endpoint:       endpoint,
		apiKey:         apiKey,
		webhookBaseURL: webhookBaseURL,
		webhookSecret:  webhookSecret,
		objects:        objects,
		layout:         layout,
		client:         &http.Client{Timeout: 30 * time.Second},
	}
}

// IsAvailable reports whether a remote provider is configured.
func (e *RemoteEncoder) IsAvailable() bool {
	return e.endpoint != "" && e.apiKey != ""
}

type remoteOutput struct {
	Name         string `json:"name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	VideoBitrate string `json:"video_bitrate"`
	AudioBitrate string `json:"audio_bitrate"`
	Path         string `json:"path"`
}

type remoteJobRequest struct {
	Input   string         `json:"input"`
	Webhook string         `json:"webhook"`
	Outputs []remoteOutput `json:"outputs"`
}

type remoteJobResponse struct {
	ID string `json:"id"`
}

// SubmitPhase1 requests the single fast rendition so the video becomes
// watchable as soon as possible.
func (e *RemoteEncoder) SubmitPhase1(ctx context.Context, videoID uuid.UUID, rawKey string) (string, error) {
	return e.submit(ctx, videoID, rawKey, 1, RemotePhase1Presets)
}

// SubmitPhase2 requests the full tier set. It is triggered from the phase 1
// completion webhook, which carries the raw input key back to us.
func (e *RemoteEncoder) SubmitPhase2(ctx context.Context, videoID uuid.UUID, rawKey string) (string, error) {
	return e.submit(ctx, videoID, rawKey, 2, RemotePhase2Presets)
}

func (e *RemoteEncoder) submit(ctx context.Context, videoID uuid.UUID, rawKey string, phase int, presets []Preset) (string, error) {
	inputURL, err := e.objects.SignedURL(ctx, rawKey, signedInputTTL)
	if err != nil {
		return "", fmt.Errorf("signing input url: %w", err)
	}

	outputs := make([]remoteOutput, 0, len(presets))
	for _, p := range presets {
		outputs = append(outputs, remoteOutput{
			Name:         p.Name,
			Width:        p.Width,
			Height:       p.Height,
			VideoBitrate: p.VideoBitrate(),
			AudioBitrate: p.AudioBitrate(),
			Path:         e.layout.VariantDir(videoID, p.Name),
		})
	}
	body, err := json.Marshal(remoteJobRequest{
		Input:   inputURL,
		Webhook: e.callbackURL(videoID, phase, rawKey),
		Outputs: outputs,
	})
	if err != nil {
		return "", fmt.Errorf("encoding job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting encode job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("encode job rejected: %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var jr remoteJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return "", fmt.Errorf("decoding job response: %w", err)
	}
	return jr.ID, nil
}

// callbackURL addresses our webhook receiver. The query parameters carry the
// context the completion handler needs, because the provider echoes the URL
// back verbatim with every event.
func (e *RemoteEncoder) callbackURL(videoID uuid.UUID, phase int, rawKey string) string {
	q := url.Values{}
	q.Set("videoId", videoID.String())
	q.Set("phase", strconv.Itoa(phase))
	q.Set("input", rawKey)
	return fmt.Sprintf("%s/hooks/encoder/%s?%s", e.webhookBaseURL, e.webhookSecret, q.Encode())
}
