package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/showreel/internal/ingest"
	"thirdcoast.systems/showreel/internal/store"
)

// videoView is the externally visible slice of a video record. Queue
// internals like retry counts stay internal.
type videoView struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Tiers          string     `json:"tiers"`
	ManifestURL    string     `json:"manifestUrl,omitempty"`
	MP4FallbackURL string     `json:"mp4FallbackUrl,omitempty"`
	ThumbnailURL   string     `json:"thumbnailUrl,omitempty"`
	Error          string     `json:"error,omitempty"`
	Duration       float64    `json:"duration,omitempty"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	Aspect         string     `json:"aspect,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func viewOf(v *store.Video) videoView {
	return videoView{
		ID:             v.ID.String(),
		Status:         string(v.EncodingStatus),
		Tiers:          string(v.EncodingTiers),
		ManifestURL:    v.ManifestURL,
		MP4FallbackURL: v.MP4FallbackURL,
		ThumbnailURL:   v.ThumbnailURL,
		Error:          v.EncodingError,
		Duration:       v.Duration,
		Width:          v.Width,
		Height:         v.Height,
		Aspect:         string(v.Aspect),
		CreatedAt:      v.CreatedAt,
		CompletedAt:    v.EncodingCompletedAt,
	}
}

func (s *Webserver) handleUpload(c echo.Context) error {
	userID, err := uuid.Parse(c.Request().Header.Get("X-User-ID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing or invalid X-User-ID header")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}

	v, err := s.ingest.Ingest(c.Request().Context(), userID, file)
	if err != nil {
		if ve, ok := ingest.IsValidationError(err); ok {
			return echo.NewHTTPError(validationStatus(ve.Reason), ve.Message)
		}
		s.logger.Error("ingest failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "upload could not be processed")
	}

	return c.JSON(http.StatusCreated, viewOf(v))
}

func validationStatus(reason string) int {
	switch reason {
	case "too_large":
		return http.StatusRequestEntityTooLarge
	case "unsupported_type":
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Webserver) handleVideoStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid video id")
	}

	v, err := s.videos.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "video not found")
		}
		s.logger.Error("loading video", "video_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError)
	}

	return c.JSON(http.StatusOK, viewOf(v))
}

func (s *Webserver) handleQueueStats(c echo.Context) error {
	stats := s.jobs.Stats()
	return c.JSON(http.StatusOK, map[string]int{
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"completed":  stats.Completed,
		"failed":     stats.Failed,
	})
}
