package encoding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"thirdcoast.systems/showreel/internal/objectstore"
	"thirdcoast.systems/showreel/pkg/ffmpeg"
)

// Result carries the public URLs of a finished encode.
type Result struct {
	ManifestURL    string
	MP4FallbackURL string
}

// LocalEncoder transcodes with the host's ffmpeg binary, producing every
// preset in the ladder plus a progressive MP4 fallback.
type LocalEncoder struct {
	objects objectstore.ObjectStore
	layout  OutputLayout
	workDir string
	timeout time.Duration
	logger  *slog.Logger
}

func NewLocalEncoder(objects objectstore.ObjectStore, layout OutputLayout, workDir string, timeout time.Duration, logger *slog.Logger) *LocalEncoder {
	return &LocalEncoder{
		objects: objects,
		layout:  layout,
		workDir: workDir,
		timeout: timeout,
		logger:  logger,
	}
}

// IsAvailable reports whether ffmpeg can be invoked on this host.
func (e *LocalEncoder) IsAvailable() bool {
	return ffmpeg.Available()
}

// Encode produces all ladder presets for the raw object at rawKey. Any
// preset failure fails the whole job; partial output is never published.
func (e *LocalEncoder) Encode(ctx context.Context, videoID uuid.UUID, rawKey string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	inputURL, err := e.objects.SignedURL(ctx, rawKey, e.timeout+5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("signing input url: %w", err)
	}

	tmpDir, err := os.MkdirTemp(e.workDir, "encode-"+videoID.String()+"-")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, preset := range Ladder {
		outDir := filepath.Join(tmpDir, preset.Name)
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating preset dir: %w", err)
		}
		g.Go(func() error {
			opts := ffmpeg.HLSVariantOptions{
				Width:        preset.Width,
				Height:       preset.Height,
				VideoBitrate: preset.VideoBitrate(),
				AudioBitrate: preset.AudioBitrate(),
			}
			if err := ffmpeg.EncodeHLSVariant(gctx, inputURL, outDir, opts); err != nil {
				return fmt.Errorf("preset %s: %w", preset.Name, err)
			}
			return nil
		})
	}
	fallbackPath := filepath.Join(tmpDir, "fallback.mp4")
	g.Go(func() error {
		if err := e.encodeFallback(gctx, inputURL, fallbackPath); err != nil {
			return fmt.Errorf("mp4 fallback: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := e.writeMasterManifest(tmpDir); err != nil {
		return nil, err
	}
	if err := e.upload(ctx, videoID, tmpDir); err != nil {
		return nil, err
	}

	e.logger.Info("local encode finished",
		slog.String("video_id", videoID.String()),
		slog.Duration("took", time.Since(started)),
	)
	return &Result{
		ManifestURL:    e.layout.PublicURL(e.layout.MasterManifestKey(videoID)),
		MP4FallbackURL: e.layout.PublicURL(e.layout.FallbackKey(videoID)),
	}, nil
}

func (e *LocalEncoder) encodeFallback(ctx context.Context, inputURL, outPath string) error {
	best := Ladder[0]
	cmd := ffmpeg.NewCommand(inputURL, outPath,
		ffmpeg.VideoCodec("libx264"),
		ffmpeg.Preset("veryfast"),
		ffmpeg.PixelFormat("yuv420p"),
		ffmpeg.VideoBitrate(best.VideoBitrate()),
		ffmpeg.Letterbox(best.Width, best.Height),
		ffmpeg.AudioCodec("aac"),
		ffmpeg.AudioBitrate(best.AudioBitrate()),
	)
	return cmd.Run(ctx)
}

func (e *LocalEncoder) writeMasterManifest(tmpDir string) error {
	variants := make([]ffmpeg.VideoVariant, 0, len(Ladder))
	for _, preset := range Ladder {
		variants = append(variants, ffmpeg.VideoVariant{
			Width:        preset.Width,
			Height:       preset.Height,
			Bandwidth:    preset.Bandwidth(),
			PlaylistFile: preset.Name + "/index.m3u8",
		})
	}
	return ffmpeg.WriteMasterPlaylist(filepath.Join(tmpDir, "master.m3u8"), variants)
}

// upload walks the finished work dir and mirrors it under the video's HLS
// prefix, preserving the preset/file structure.
func (e *LocalEncoder) upload(ctx context.Context, videoID uuid.UUID, tmpDir string) error {
	prefix := filepath.Dir(e.layout.MasterManifestKey(videoID))
	return filepath.WalkDir(tmpDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(tmpDir, p)
		if err != nil {
			return err
		}
		body, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		key := prefix + "/" + filepath.ToSlash(rel)
		if err := e.objects.Upload(ctx, key, body, contentTypeFor(rel)); err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}
		return nil
	})
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
