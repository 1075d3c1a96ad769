package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// ProbeResult contains media file metadata.
type ProbeResult struct {
	// Video properties
	Width      int     // Video width in pixels (as stored, before rotation)
	Height     int     // Video height in pixels (as stored, before rotation)
	FPS        float64 // Frames per second
	VideoCodec string  // Video codec name (h264, vp9, etc.)
	Rotation   int     // Display rotation in degrees (0, 90, 180, 270)

	// Audio properties
	AudioCodec    string // Audio codec name (aac, opus, etc.)
	AudioChannels int    // Number of audio channels

	// File properties
	Duration   float64 // Duration in seconds
	Bitrate    int64   // Total bitrate in bits per second
	Size       int64   // File size in bytes
	FormatName string  // Container format (mp4, webm, mkv, etc.)

	// Stream counts
	VideoStreams int
	AudioStreams int
}

// DisplayDimensions returns width/height after applying display rotation.
// A 90- or 270-degree rotation swaps the stored dimensions.
func (r *ProbeResult) DisplayDimensions() (int, int) {
	if r.Rotation == 90 || r.Rotation == 270 {
		return r.Height, r.Width
	}
	return r.Width, r.Height
}

// ffprobeOutput matches ffprobe JSON output structure.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		Channels   int    `json:"channels"`
		Tags       struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// Probe runs ffprobe on a file and returns metadata.
func Probe(ctx context.Context, path string) (*ProbeResult, error) {
	args := []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe: %w: %s", err, stderr.String())
	}

	var output ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return nil, fmt.Errorf("ffprobe: failed to parse output: %w", err)
	}

	return parseProbeOutput(&output), nil
}

func parseProbeOutput(output *ffprobeOutput) *ProbeResult {
	result := &ProbeResult{}

	if output.Format.Duration != "" {
		result.Duration, _ = strconv.ParseFloat(output.Format.Duration, 64)
	}
	if output.Format.BitRate != "" {
		result.Bitrate, _ = strconv.ParseInt(output.Format.BitRate, 10, 64)
	}
	if output.Format.Size != "" {
		result.Size, _ = strconv.ParseInt(output.Format.Size, 10, 64)
	}
	result.FormatName = output.Format.FormatName

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			result.VideoStreams++
			// Only take first video stream metadata
			if result.VideoCodec == "" {
				result.Width = stream.Width
				result.Height = stream.Height
				result.VideoCodec = stream.CodecName
				result.FPS = parseFrameRate(stream.RFrameRate)
				result.Rotation = parseRotation(stream.Tags.Rotate, stream.SideDataList)
			}

		case "audio":
			result.AudioStreams++
			if result.AudioCodec == "" {
				result.AudioCodec = stream.CodecName
				result.AudioChannels = stream.Channels
			}
		}
	}

	return result
}

// parseFrameRate parses ffprobe frame rate format (e.g., "30/1" or "30000/1001").
func parseFrameRate(rate string) float64 {
	var num, den int
	_, err := fmt.Sscanf(rate, "%d/%d", &num, &den)
	if err != nil || den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// parseRotation resolves display rotation from either the legacy rotate tag or
// the display-matrix side data. Normalized to one of 0, 90, 180, 270.
func parseRotation(tag string, sideData []struct {
	Rotation float64 `json:"rotation"`
}) int {
	rotation := 0
	if tag != "" {
		if n, err := strconv.Atoi(tag); err == nil {
			rotation = n
		}
	}
	if rotation == 0 {
		for _, sd := range sideData {
			if sd.Rotation != 0 {
				rotation = int(sd.Rotation)
				break
			}
		}
	}
	rotation = ((rotation % 360) + 360) % 360
	// Round off-axis rotations to the nearest quadrant.
	return ((rotation + 45) / 90 % 4) * 90
}

// ProbeAvailable reports whether the ffprobe binary can be found on PATH.
func ProbeAvailable() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}
