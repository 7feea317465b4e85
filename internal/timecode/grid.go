package timecode

import (
	"fmt"
	"math"
	"strings"
)

// GridMode selects which snap points a trim drag is attracted to.
type GridMode int

const (
	GridOff GridMode = iota
	GridFrame
	GridHalfSecond
	GridSecond
)

// ParseGridMode accepts off, frame, half and second.
func ParseGridMode(s string) (GridMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return GridOff, nil
	case "frame":
		return GridFrame, nil
	case "half", "500ms":
		return GridHalfSecond, nil
	case "second", "1s":
		return GridSecond, nil
	}
	return GridOff, fmt.Errorf("unknown grid mode %q", s)
}

func (m GridMode) String() string {
	switch m {
	case GridFrame:
		return "frame"
	case GridHalfSecond:
		return "half"
	case GridSecond:
		return "second"
	default:
		return "off"
	}
}

// Step returns the grid spacing in seconds, or 0 when snapping is off.
func (m GridMode) Step(fps float64) float64 {
	switch m {
	case GridFrame:
		return FrameDuration(fps)
	case GridHalfSecond:
		return 0.5
	case GridSecond:
		return 1.0
	default:
		return 0
	}
}

// SnapThreshold converts a pixel threshold to seconds at the given zoom.
func SnapThreshold(thresholdPx, pixelsPerSecond float64) float64 {
	return PixelsToSeconds(thresholdPx, pixelsPerSecond)
}

// SnapPoints generates every grid point in [from, to]. A limit of zero or less
// means unlimited; otherwise generation stops after limit points.
func SnapPoints(mode GridMode, fps, from, to float64, limit int) []float64 {
	step := mode.Step(fps)
	if step <= 0 || to < from {
		return nil
	}

	first := math.Ceil(from/step - frameSlack)
	var points []float64
	for i := first; ; i++ {
		p := i * step
		if p > to+frameSlack {
			break
		}
		points = append(points, p)
		if limit > 0 && len(points) >= limit {
			break
		}
	}
	return points
}

// Snap replaces value with the nearest grid point when that point lies within
// threshold seconds. The second result reports whether a snap happened.
func Snap(value float64, mode GridMode, fps, threshold float64) (float64, bool) {
	step := mode.Step(fps)
	if step <= 0 || threshold <= 0 {
		return value, false
	}
	nearest := math.Round(value/step) * step
	if math.Abs(nearest-value) <= threshold {
		return nearest, true
	}
	return value, false
}
