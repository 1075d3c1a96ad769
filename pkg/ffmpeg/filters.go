package ffmpeg

import (
	"fmt"
)

// ScaleFilter represents a scale filter.
type ScaleFilter struct {
	Width  int // Use -1 or -2 for auto-calculate maintaining aspect ratio
	Height int // Use -2 to ensure even dimensions (required for h264)
}

// String returns the ffmpeg filter string.
func (s ScaleFilter) String() string {
	return fmt.Sprintf("scale=%d:%d", s.Width, s.Height)
}

// Scale adds a scale filter.
// Use -2 for width or height to auto-calculate while maintaining aspect ratio
// and ensuring even dimensions (required for h264).
func Scale(width, height int) Option {
	return Filter(ScaleFilter{width, height}.String())
}

// ScaleWidth scales to a specific width, auto-calculating height with even dimensions.
func ScaleWidth(width int) Option {
	return Scale(width, -2)
}

// LetterboxFilter scales to fit inside Width×Height preserving aspect ratio,
// then pads to exactly Width×Height with centered black bars. Both the scaled
// dimensions and the pad target are forced even; h264 rejects odd dimensions.
type LetterboxFilter struct {
	Width  int
	Height int
}

// String returns the ffmpeg filter string.
func (l LetterboxFilter) String() string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease:force_divisible_by=2,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		l.Width, l.Height, l.Width, l.Height,
	)
}

// Letterbox adds a letterbox-safe scale+pad filter targeting exact dimensions.
func Letterbox(width, height int) Option {
	return Filter(LetterboxFilter{width, height}.String())
}
