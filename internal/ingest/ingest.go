// Package ingest accepts uploads, validates and probes them, stages the raw
// asset and thumbnail in object storage, and hands the video to an encoder
// path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"thirdcoast.systems/showreel/internal/encoding"
	"thirdcoast.systems/showreel/internal/metrics"
	"thirdcoast.systems/showreel/internal/objectstore"
	"thirdcoast.systems/showreel/internal/queue"
	"thirdcoast.systems/showreel/internal/store"
	"thirdcoast.systems/showreel/pkg/ffmpeg"
)

// Limits bound what an upload may be. Violations are rejected synchronously
// and never reach the queue.
type Limits struct {
	MaxSizeBytes int64
	MaxDuration  time.Duration
	MinDimension int
}

func DefaultLimits() Limits {
	return Limits{
		MaxSizeBytes: 2 * humanize.GiByte,
		MaxDuration:  4 * time.Hour,
		MinDimension: 10,
	}
}

var allowedMIMETypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/x-msvideo":  true,
}

// ValidationError is a synchronous upload rejection. Reason is a stable
// machine-readable label; Message is for humans.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func rejectf(reason, format string, args ...any) error {
	metrics.IngestRejected.WithLabelValues(reason).Inc()
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// RemoteBackend is the remote encoder hand-off used at ingest time.
type RemoteBackend interface {
	IsAvailable() bool
	SubmitPhase1(ctx context.Context, videoID uuid.UUID, rawKey string) (string, error)
}

// Service runs the ingest pipeline for one upload at a time.
type Service struct {
	videos  store.VideoStore
	objects objectstore.ObjectStore
	queue   *queue.Queue
	remote  RemoteBackend
	layout  encoding.OutputLayout
	workDir string
	limits  Limits
	logger  *slog.Logger
}

func NewService(videos store.VideoStore, objects objectstore.ObjectStore, q *queue.Queue, remote RemoteBackend, layout encoding.OutputLayout, workDir string, limits Limits, logger *slog.Logger) *Service {
	return &Service{
		videos:  videos,
		objects: objects,
		queue:   q,
		remote:  remote,
		layout:  layout,
		workDir: workDir,
		limits:  limits,
		logger:  logger,
	}
}

// Ingest validates and stages one uploaded file, creates the PENDING video
// record, and hands it to an encoder path. The returned video reflects the
// record as stored, including the hand-off status transition.
func (s *Service) Ingest(ctx context.Context, userID uuid.UUID, file *multipart.FileHeader) (*store.Video, error) {
	if file.Size > s.limits.MaxSizeBytes {
		return nil, rejectf("too_large", "file is %s, limit is %s",
			humanize.IBytes(uint64(file.Size)), humanize.IBytes(uint64(s.limits.MaxSizeBytes)))
	}

	tmpPath, err := s.stageToDisk(file)
	if err != nil {
		return nil, fmt.Errorf("staging upload: %w", err)
	}
	defer os.Remove(tmpPath)

	if err := s.checkMIME(file, tmpPath); err != nil {
		return nil, err
	}

	videoID := uuid.New()
	v := &store.Video{
		ID:             videoID,
		UserID:         userID,
		RawPath:        s.layout.RawKey(videoID, file.Filename),
		Filename:       filepath.Base(file.Filename),
		OriginalSize:   file.Size,
		MimeType:       file.Header.Get("Content-Type"),
		EncodingStatus: store.EncodingPending,
		EncodingTiers:  store.TiersNone,
		Moderation:     store.ModerationPending,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.probeAndValidate(ctx, tmpPath, v); err != nil {
		return nil, err
	}

	if err := s.uploadRaw(ctx, tmpPath, v); err != nil {
		return nil, fmt.Errorf("storing raw asset: %w", err)
	}
	s.extractThumbnail(ctx, tmpPath, v)

	if err := s.videos.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("creating video record: %w", err)
	}
	metrics.VideosIngested.Inc()

	s.handOff(ctx, v)
	return v, nil
}

func (s *Service) stageToDisk(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp(s.workDir, "upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// checkMIME accepts a file when either the declared content type or the
// sniffed content of the file matches the allow-list. Browsers routinely
// misreport container types, so neither signal alone is trusted to reject.
func (s *Service) checkMIME(file *multipart.FileHeader, tmpPath string) error {
	declared := strings.ToLower(strings.TrimSpace(strings.Split(file.Header.Get("Content-Type"), ";")[0]))
	if allowedMIMETypes[declared] {
		return nil
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	sniffed := strings.Split(http.DetectContentType(head[:n]), ";")[0]
	if allowedMIMETypes[sniffed] {
		return nil
	}

	return rejectf("unsupported_type", "unsupported content type %q", declared)
}

// probeAndValidate fills the video's media metadata and enforces the
// duration and dimension limits. Without ffprobe on the host the upload is
// accepted unprobed; the degraded passthrough path serves it as-is.
func (s *Service) probeAndValidate(ctx context.Context, tmpPath string, v *store.Video) error {
	if !ffmpeg.ProbeAvailable() {
		s.logger.Warn("ffprobe not available, accepting upload without media validation",
			slog.String("video_id", v.ID.String()))
		return nil
	}

	probe, err := ffmpeg.Probe(ctx, tmpPath)
	if err != nil {
		return rejectf("unreadable", "file is not a readable video: %v", err)
	}
	if probe.VideoCodec == "" {
		return rejectf("no_video_stream", "file contains no video stream")
	}
	if dur := time.Duration(probe.Duration * float64(time.Second)); dur > s.limits.MaxDuration {
		return rejectf("too_long", "video runs %s, limit is %s", dur.Round(time.Second), s.limits.MaxDuration)
	}

	w, h := probe.DisplayDimensions()
	if w < s.limits.MinDimension || h < s.limits.MinDimension {
		return rejectf("too_small", "video is %dx%d, minimum is %dx%d",
			w, h, s.limits.MinDimension, s.limits.MinDimension)
	}

	v.Duration = probe.Duration
	v.Width = w
	v.Height = h
	v.Aspect = classifyAspect(w, h)
	return nil
}

func classifyAspect(w, h int) store.AspectClass {
	switch {
	case w > h:
		return store.AspectLandscape
	case h > w:
		return store.AspectPortrait
	default:
		return store.AspectSquare
	}
}

func (s *Service) uploadRaw(ctx context.Context, tmpPath string, v *store.Video) error {
	body, err := os.ReadFile(tmpPath)
	if err != nil {
		return err
	}
	contentType := v.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.objects.Upload(ctx, v.RawPath, body, contentType)
}

// extractThumbnail is best-effort: a video without a poster frame is still
// a valid video.
func (s *Service) extractThumbnail(ctx context.Context, tmpPath string, v *store.Video) {
	if !ffmpeg.Available() {
		return
	}
	thumbPath := tmpPath + ".jpg"
	defer os.Remove(thumbPath)

	if err := ffmpeg.ExtractThumbnail(ctx, tmpPath, thumbPath, nil); err != nil {
		s.logger.Warn("thumbnail extraction failed",
			slog.String("video_id", v.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	body, err := os.ReadFile(thumbPath)
	if err != nil {
		return
	}
	key := s.layout.ThumbnailKey(v.ID)
	if err := s.objects.Upload(ctx, key, body, "image/jpeg"); err != nil {
		s.logger.Warn("thumbnail upload failed",
			slog.String("video_id", v.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	v.ThumbnailURL = s.layout.PublicURL(key)
}

// handOff starts encoding: remote phase 1 when a provider is configured,
// the local queue otherwise. A remote submission failure falls back to the
// local queue rather than stranding the video.
func (s *Service) handOff(ctx context.Context, v *store.Video) {
	if s.remote != nil && s.remote.IsAvailable() {
		_, err := s.remote.SubmitPhase1(ctx, v.ID, v.RawPath)
		if err == nil {
			now := time.Now().UTC()
			update := store.EncodingUpdate{
				Status:    store.StatusPtr(store.EncodingActive),
				StartedAt: store.TimePtr(now),
			}
			if uerr := s.videos.UpdateEncoding(ctx, v.ID, update); uerr != nil {
				s.logger.Error("marking video encoding after remote submit",
					slog.String("video_id", v.ID.String()),
					slog.String("error", uerr.Error()))
				return
			}
			v.EncodingStatus = store.EncodingActive
			v.EncodingStartedAt = &now
			return
		}
		s.logger.Warn("remote submission failed, falling back to local queue",
			slog.String("video_id", v.ID.String()),
			slog.String("error", err.Error()))
	}

	if _, exists := s.queue.FindByVideoID(v.ID); exists {
		return
	}
	s.queue.Enqueue(v.ID, v.RawPath, queue.DefaultPriority)
}

// IsValidationError unwraps upload rejections for the HTTP layer.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
