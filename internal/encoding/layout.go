package encoding

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// OutputLayout is the single source of truth for where encoded artifacts
// live in object storage and how their public URLs are formed. The encoder
// writes through it and the watchdog reads through it, so a recovered video
// always points at the same keys a normal completion would have produced.
type OutputLayout struct {
	// PublicBaseURL is the CDN or bucket base URL, without trailing slash.
	PublicBaseURL string
}

func NewOutputLayout(publicBaseURL string) OutputLayout {
	return OutputLayout{PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// RawKey is where the original upload is stored before any encoding.
func (l OutputLayout) RawKey(videoID uuid.UUID, filename string) string {
	return path.Join("raw", videoID.String(), path.Base(filename))
}

// MasterManifestKey is the entry-point HLS playlist for a video.
func (l OutputLayout) MasterManifestKey(videoID uuid.UUID) string {
	return path.Join("hls", videoID.String(), "master.m3u8")
}

// VariantDir holds one preset's playlist and segments.
func (l OutputLayout) VariantDir(videoID uuid.UUID, preset string) string {
	return path.Join("hls", videoID.String(), preset)
}

// VariantPlaylistKey is a preset's media playlist.
func (l OutputLayout) VariantPlaylistKey(videoID uuid.UUID, preset string) string {
	return path.Join(l.VariantDir(videoID, preset), "index.m3u8")
}

// FallbackKey is the progressive-download MP4 rendition.
func (l OutputLayout) FallbackKey(videoID uuid.UUID) string {
	return path.Join("hls", videoID.String(), "fallback.mp4")
}

// OriginalPassthroughKey is where the untranscoded original lands when no
// encoder backend is available and the source is served as-is.
func (l OutputLayout) OriginalPassthroughKey(videoID uuid.UUID, ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	return path.Join("hls", videoID.String(), "original"+ext)
}

// ThumbnailKey is the poster frame extracted at ingest.
func (l OutputLayout) ThumbnailKey(videoID uuid.UUID) string {
	return path.Join("thumbnails", videoID.String()+".jpg")
}

// PublicURL maps a storage key to its publicly served URL.
func (l OutputLayout) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s", l.PublicBaseURL, key)
}
