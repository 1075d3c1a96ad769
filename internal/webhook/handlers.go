package webhook

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"thirdcoast.systems/showreel/internal/metrics"
)

// processTimeout bounds the post-acknowledgment work for one callback.
const processTimeout = 2 * time.Minute

// Handler exposes the inbound webhook endpoints. Both endpoints acknowledge
// before processing: the provider gets its 200 and the reduction runs in a
// detached goroutine with its own deadline.
type Handler struct {
	secret   string
	encoder  *EncoderReducer
	pipeline *PipelineReducer
	logger   *slog.Logger
}

func NewHandler(secret string, encoder *EncoderReducer, pipeline *PipelineReducer, logger *slog.Logger) *Handler {
	return &Handler{
		secret:   secret,
		encoder:  encoder,
		pipeline: pipeline,
		logger:   logger,
	}
}

func (h *Handler) Register(e *echo.Echo) {
	e.POST("/hooks/encoder/:secret", h.HandleEncoder)
	e.POST("/hooks/pipeline", h.HandlePipeline)
}

// HandleEncoder receives remote-provider callbacks. The path secret is the
// only authentication the provider supports; a mismatch looks like any
// other unknown route. Once the secret checks out the answer is always 200,
// so the provider never retries into a processing failure.
func (h *Handler) HandleEncoder(c echo.Context) error {
	if subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.secret)) != 1 {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	metrics.WebhooksReceived.WithLabelValues("encoder").Inc()

	videoID, err := uuid.Parse(c.QueryParam("videoId"))
	if err != nil {
		h.logger.Warn("encoder callback with bad video id",
			slog.String("video_id", c.QueryParam("videoId")))
		return c.NoContent(http.StatusOK)
	}
	phase, err := strconv.Atoi(c.QueryParam("phase"))
	if err != nil || (phase != 1 && phase != 2) {
		// Without a trustworthy phase the event cannot be routed through
		// the transition table; guessing could fail a watchable video.
		h.logger.Warn("encoder callback with missing or invalid phase",
			slog.String("video_id", videoID.String()),
			slog.String("phase", c.QueryParam("phase")))
		return c.NoContent(http.StatusOK)
	}
	rawKey := c.QueryParam("input")

	var ev EncoderEvent
	if err := c.Bind(&ev); err != nil {
		h.logger.Warn("encoder callback with unreadable body",
			slog.String("video_id", videoID.String()),
			slog.String("error", err.Error()))
		return c.NoContent(http.StatusOK)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		if err := h.encoder.Apply(ctx, videoID, phase, rawKey, ev); err != nil {
			h.logger.Error("encoder callback processing failed",
				slog.String("video_id", videoID.String()),
				slog.String("event", ev.Event),
				slog.String("error", err.Error()))
		}
	}()

	return c.NoContent(http.StatusOK)
}

// HandlePipeline receives batched job-state events. A batch containing a
// SubscriptionValidation event is a handshake and must echo the validation
// code synchronously; state changes are acknowledged and processed after.
func (h *Handler) HandlePipeline(c echo.Context) error {
	var events []PipelineEvent
	if err := c.Bind(&events); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected an event array")
	}
	metrics.WebhooksReceived.WithLabelValues("pipeline").Inc()

	for _, ev := range events {
		if ev.EventType == eventTypeSubscriptionValidation {
			return c.JSON(http.StatusOK, map[string]string{
				"validationResponse": ev.Data.ValidationCode,
			})
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		for _, ev := range events {
			if err := h.pipeline.Apply(ctx, ev); err != nil {
				h.logger.Error("pipeline event processing failed",
					slog.String("state", ev.Data.State),
					slog.String("error", err.Error()))
			}
		}
	}()

	return c.NoContent(http.StatusOK)
}
