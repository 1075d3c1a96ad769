// Package web wires the HTTP surface: upload and status APIs, webhook
// receivers, health, and metrics.
package web

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thirdcoast.systems/showreel/internal/ingest"
	"thirdcoast.systems/showreel/internal/queue"
	"thirdcoast.systems/showreel/internal/store"
	"thirdcoast.systems/showreel/internal/webhook"
)

type Webserver struct {
	*echo.Echo
	videos store.VideoStore
	jobs   *queue.Queue
	ingest *ingest.Service
	hooks  *webhook.Handler
	logger *slog.Logger
}

func NewWebserver(videos store.VideoStore, jobs *queue.Queue, ingestSvc *ingest.Service, hooks *webhook.Handler, maxUploadSize string, logger *slog.Logger) *Webserver {
	s := &Webserver{
		Echo:   echo.New(),
		videos: videos,
		jobs:   jobs,
		ingest: ingestSvc,
		hooks:  hooks,
		logger: logger,
	}
	s.setupMiddleware(maxUploadSize)
	s.registerRoutes()
	return s
}

func (s *Webserver) registerRoutes() {
	s.POST("/api/videos", s.handleUpload)
	s.GET("/api/videos/:id", s.handleVideoStatus)
	s.GET("/api/queue/stats", s.handleQueueStats)

	s.hooks.Register(s.Echo)

	s.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Webserver) setupMiddleware(maxUploadSize string) {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.BodyLimit(maxUploadSize))
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/healthz", "/metrics":
				return true
			default:
				return false
			}
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			s.logger.Info("request", fields...)
			return nil
		},
	}))
}
