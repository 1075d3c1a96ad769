// Package encoding drives video transcoding: the local ffmpeg backend, the
// remote provider client, and the worker that feeds them from the job queue.
package encoding

import "fmt"

// Preset is one rung of the adaptive-bitrate ladder.
type Preset struct {
	Name      string
	Width     int
	Height    int
	VideoKbps int
	AudioKbps int
}

// Bandwidth is the EXT-X-STREAM-INF value for this preset: combined
// audio+video bitrate with 10% container overhead headroom.
func (p Preset) Bandwidth() int {
	return int(float64(p.VideoKbps+p.AudioKbps) * 1000 * 1.1)
}

// VideoBitrate renders the ffmpeg bitrate argument, e.g. "2800k".
func (p Preset) VideoBitrate() string {
	return fmt.Sprintf("%dk", p.VideoKbps)
}

// AudioBitrate renders the ffmpeg audio bitrate argument.
func (p Preset) AudioBitrate() string {
	return fmt.Sprintf("%dk", p.AudioKbps)
}

// Ladder is the fixed quality ladder, best first. The master manifest lists
// presets in exactly this order; the watchdog's recovery path depends on the
// layout these names produce.
var Ladder = []Preset{
	{Name: "1080p", Width: 1920, Height: 1080, VideoKbps: 5000, AudioKbps: 192},
	{Name: "720p", Width: 1280, Height: 720, VideoKbps: 2800, AudioKbps: 128},
	{Name: "480p", Width: 854, Height: 480, VideoKbps: 1400, AudioKbps: 128},
	{Name: "360p", Width: 640, Height: 360, VideoKbps: 800, AudioKbps: 96},
}

// RemotePhase1Presets is the single fast rendition requested from the remote
// provider to make a video watchable quickly.
var RemotePhase1Presets = []Preset{Ladder[2]}

// RemotePhase2Presets supersedes phase 1 with an additional lower tier.
var RemotePhase2Presets = []Preset{Ladder[2], Ladder[3]}
