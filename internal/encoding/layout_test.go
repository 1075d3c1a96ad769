package encoding

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPresetBandwidth(t *testing.T) {
	p := Preset{Name: "720p", VideoKbps: 2800, AudioKbps: 128}
	// (2800 + 128) * 1000 * 1.1
	assert.Equal(t, 3220800, p.Bandwidth())
	assert.Equal(t, "2800k", p.VideoBitrate())
	assert.Equal(t, "128k", p.AudioBitrate())
}

func TestLadderOrderIsBestFirst(t *testing.T) {
	names := make([]string, 0, len(Ladder))
	for _, p := range Ladder {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"1080p", "720p", "480p", "360p"}, names)
}

func TestOutputLayoutKeys(t *testing.T) {
	layout := NewOutputLayout("https://cdn.example.com/")
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t, "raw/6ba7b810-9dad-11d1-80b4-00c04fd430c8/clip.mp4", layout.RawKey(id, "clip.mp4"))
	assert.Equal(t, "hls/6ba7b810-9dad-11d1-80b4-00c04fd430c8/master.m3u8", layout.MasterManifestKey(id))
	assert.Equal(t, "hls/6ba7b810-9dad-11d1-80b4-00c04fd430c8/720p/index.m3u8", layout.VariantPlaylistKey(id, "720p"))
	assert.Equal(t, "hls/6ba7b810-9dad-11d1-80b4-00c04fd430c8/fallback.mp4", layout.FallbackKey(id))
	assert.Equal(t, "hls/6ba7b810-9dad-11d1-80b4-00c04fd430c8/original.mov", layout.OriginalPassthroughKey(id, ".mov"))
	assert.Equal(t, "hls/6ba7b810-9dad-11d1-80b4-00c04fd430c8/original.mp4", layout.OriginalPassthroughKey(id, ""))
	assert.Equal(t, "thumbnails/6ba7b810-9dad-11d1-80b4-00c04fd430c8.jpg", layout.ThumbnailKey(id))
}

func TestOutputLayoutStripsPathTraversal(t *testing.T) {
	layout := NewOutputLayout("https://cdn.example.com")
	id := uuid.New()
	assert.Equal(t, "raw/"+id.String()+"/evil.mp4", layout.RawKey(id, "../../evil.mp4"))
}

func TestOutputLayoutPublicURL(t *testing.T) {
	layout := NewOutputLayout("https://cdn.example.com/")
	assert.Equal(t, "https://cdn.example.com/hls/x/master.m3u8", layout.PublicURL("hls/x/master.m3u8"))
}
