package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HLSVariantOptions configures one quality variant of an HLS segment set.
type HLSVariantOptions struct {
	Width           int
	Height          int
	VideoBitrate    string // e.g. "2800k"
	AudioBitrate    string // e.g. "128k"
	SegmentDuration int    // target segment length in seconds (default 6)
}

// EncodeHLSVariant transcodes input into one HLS rendition under outputDir,
// producing index.m3u8 plus segment_NNN.ts files. The video is letterboxed to
// the exact target dimensions.
func EncodeHLSVariant(ctx context.Context, input, outputDir string, opts HLSVariantOptions) error {
	segmentDuration := opts.SegmentDuration
	if segmentDuration <= 0 {
		segmentDuration = 6
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("hls: mkdir %s: %w", outputDir, err)
	}

	playlistPath := filepath.Join(outputDir, "index.m3u8")
	segmentPattern := filepath.Join(outputDir, "segment_%03d.ts")

	cmd := NewCommand(input, playlistPath,
		VideoCodec("libx264"),
		Preset("veryfast"),
		PixelFormat("yuv420p"),
		VideoBitrate(opts.VideoBitrate),
		MaxRate(opts.VideoBitrate, opts.VideoBitrate),
		KeyframeInterval(48),
		Letterbox(opts.Width, opts.Height),
		AudioCodec("aac"),
		AudioBitrate(opts.AudioBitrate),
		ExtraArgs(
			"-f", "hls",
			"-hls_time", fmt.Sprintf("%d", segmentDuration),
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", segmentPattern,
		),
	)
	return cmd.Run(ctx)
}

// VideoVariant describes one video quality variant in the HLS master playlist.
type VideoVariant struct {
	Width        int    // video width in pixels
	Height       int    // video height in pixels
	Bandwidth    int    // bits per second
	PlaylistFile string // relative path from master.m3u8 (e.g. "720p/index.m3u8")
}

// MasterPlaylist renders an HLS master playlist referencing the given variants.
// Variants are written in the order given; callers that need a deterministic
// manifest pass them pre-ordered.
func MasterPlaylist(variants []VideoVariant) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n\n")

	for _, v := range variants {
		resStr := ""
		if v.Width > 0 && v.Height > 0 {
			resStr = fmt.Sprintf(",RESOLUTION=%dx%d", v.Width, v.Height)
		}
		b.WriteString(fmt.Sprintf(
			"#EXT-X-STREAM-INF:BANDWIDTH=%d%s\n%s\n",
			v.Bandwidth, resStr, v.PlaylistFile,
		))
	}

	return b.String()
}

// WriteMasterPlaylist writes an HLS master playlist to path.
func WriteMasterPlaylist(path string, variants []VideoVariant) error {
	return os.WriteFile(path, []byte(MasterPlaylist(variants)), 0o644)
}
