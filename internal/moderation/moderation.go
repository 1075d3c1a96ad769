// Package moderation hands finished videos to content review. Moderation is
// best-effort from the encoder's point of view: callers log failures and
// move on, they never fail a video over it.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"thirdcoast.systems/showreel/internal/store"
)

// Moderator queues a video for content review.
type Moderator interface {
	QueueModeration(ctx context.Context, videoID uuid.UUID) error
}

// AutoApprover approves every video directly. Used outside production,
// where no moderation service exists.
type AutoApprover struct {
	videos store.VideoStore
}

func NewAutoApprover(videos store.VideoStore) *AutoApprover {
	return &AutoApprover{videos: videos}
}

func (a *AutoApprover) QueueModeration(ctx context.Context, videoID uuid.UUID) error {
	return a.videos.SetModeration(ctx, videoID, store.ModerationApproved)
}

// ServiceModerator submits videos to an external moderation service.
type ServiceModerator struct {
	url    string
	client *http.Client
}

func NewServiceModerator(url string) *ServiceModerator {
	return &ServiceModerator{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *ServiceModerator) QueueModeration(ctx context.Context, videoID uuid.UUID) error {
	body, err := json.Marshal(map[string]string{"videoId": videoID.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("submitting moderation request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("moderation service returned %s", resp.Status)
	}
	return nil
}

// Select picks the moderator for this deployment: the real service when a
// URL is configured and we are in production, the auto-approver otherwise.
func Select(moderationURL string, production bool, videos store.VideoStore) Moderator {
	if production && moderationURL != "" {
		return NewServiceModerator(moderationURL)
	}
	return NewAutoApprover(videos)
}
