// Package timecode holds the stateless conversions shared by the timeline:
// seconds to frames, pixels to seconds at a zoom level, grid snapping and
// HH:MM:SS:FF formatting.
package timecode

import (
	"fmt"
	"math"
)

// DefaultFrameRate is used whenever a clip reports no usable frame rate.
const DefaultFrameRate = 30.0

// frameSlack absorbs float error when a time lands exactly on a frame boundary.
const frameSlack = 1e-6

// NormalizeFrameRate returns fps, or DefaultFrameRate when fps is not positive.
func NormalizeFrameRate(fps float64) float64 {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return DefaultFrameRate
	}
	return fps
}

// FrameDuration is the length of one frame in seconds. Never zero.
func FrameDuration(fps float64) float64 {
	return 1.0 / NormalizeFrameRate(fps)
}

// SecondsToFrames returns the index of the frame that contains seconds.
func SecondsToFrames(seconds, fps float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Floor(seconds*NormalizeFrameRate(fps) + frameSlack))
}

// FramesToSeconds returns the start time of frame.
func FramesToSeconds(frames int64, fps float64) float64 {
	return float64(frames) / NormalizeFrameRate(fps)
}

// PixelsToSeconds converts a pixel distance at the given zoom to seconds.
func PixelsToSeconds(px, pixelsPerSecond float64) float64 {
	if pixelsPerSecond <= 0 {
		return 0
	}
	return px / pixelsPerSecond
}

// SecondsToPixels converts seconds to a pixel distance at the given zoom.
func SecondsToPixels(seconds, pixelsPerSecond float64) float64 {
	return seconds * pixelsPerSecond
}

// Format renders seconds as HH:MM:SS:FF at the rounded frame rate.
func Format(seconds, fps float64) string {
	rate := int(math.Round(NormalizeFrameRate(fps)))
	if seconds < 0 {
		seconds = 0
	}
	totalFrames := int(math.Round(seconds * float64(rate)))
	frames := totalFrames % rate
	totalSeconds := totalFrames / rate
	secs := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, secs, frames)
}

// IsDropFrame reports whether fps is one of the NTSC drop-frame rates.
func IsDropFrame(fps float64) bool {
	return math.Abs(fps-29.97) < 0.01 || math.Abs(fps-59.94) < 0.01
}
