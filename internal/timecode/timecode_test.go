package timecode

import (
	"math"
	"testing"
)

func TestSecondsToFrames(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		fps     float64
		want    int64
	}{
		{"zero", 0, 30, 0},
		{"negative", -1, 30, 0},
		{"one second", 1, 30, 30},
		{"boundary float error", 0.1 * 3, 10, 3},
		{"mid frame", 1.01, 25, 25},
		{"ntsc", 1, 29.97, 29},
		{"missing rate", 2, 0, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SecondsToFrames(tt.seconds, tt.fps); got != tt.want {
				t.Errorf("SecondsToFrames(%v, %v) = %d, want %d", tt.seconds, tt.fps, got, tt.want)
			}
		})
	}
}

func TestFramesRoundTrip(t *testing.T) {
	for _, fps := range []float64{24, 25, 29.97, 30, 60} {
		for frame := int64(0); frame < 500; frame += 7 {
			sec := FramesToSeconds(frame, fps)
			if got := SecondsToFrames(sec, fps); got != frame {
				t.Fatalf("fps %v: frame %d -> %v s -> frame %d", fps, frame, sec, got)
			}
		}
	}
}

func TestFrameDurationNeverZero(t *testing.T) {
	for _, fps := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if d := FrameDuration(fps); d <= 0 {
			t.Errorf("FrameDuration(%v) = %v, want > 0", fps, d)
		}
	}
}

func TestPixelConversions(t *testing.T) {
	if got := PixelsToSeconds(150, 50); got != 3 {
		t.Errorf("PixelsToSeconds(150, 50) = %v, want 3", got)
	}
	if got := PixelsToSeconds(150, 0); got != 0 {
		t.Errorf("PixelsToSeconds with zero zoom = %v, want 0", got)
	}
	if got := SecondsToPixels(2.5, 40); got != 100 {
		t.Errorf("SecondsToPixels(2.5, 40) = %v, want 100", got)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		fps     float64
		want    string
	}{
		{"zero", 0, 30, "00:00:00:00"},
		{"one second", 1, 30, "00:00:01:00"},
		{"half second", 0.5, 30, "00:00:00:15"},
		{"one minute", 60, 30, "00:01:00:00"},
		{"one hour", 3600, 30, "01:00:00:00"},
		{"25 fps", 2.04, 25, "00:00:02:01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.seconds, tt.fps); got != tt.want {
				t.Errorf("Format(%v, %v) = %q, want %q", tt.seconds, tt.fps, got, tt.want)
			}
		})
	}
}

func TestIsDropFrame(t *testing.T) {
	if !IsDropFrame(29.97) || !IsDropFrame(59.94) {
		t.Error("29.97 and 59.94 should be drop frame")
	}
	if IsDropFrame(30) || IsDropFrame(25) {
		t.Error("30 and 25 should not be drop frame")
	}
}
