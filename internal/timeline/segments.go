package timeline

import (
	"fmt"
	"math"

	"github.com/framecut/framecut-engine/internal/timecode"
)

// DeriveSegments flattens an ordered placement list into contiguous timeline
// segments. Placements whose clip is missing or whose trimmed duration is not
// positive are skipped. The result depends only on its inputs.
func DeriveSegments(placements []Placement, clipsByID map[string]SourceClip) []Segment {
	segments := make([]Segment, 0, len(placements))
	cursor := 0.0
	for _, p := range placements {
		clip, ok := clipsByID[p.SourceClipID]
		if !ok {
			continue
		}
		d := p.Duration()
		if d <= 0 {
			continue
		}
		segments = append(segments, Segment{
			PlacementID:   p.InstanceID,
			SourceClipID:  p.SourceClipID,
			SourcePath:    clip.SourcePath,
			TrackID:       p.TrackID,
			TimelineStart: cursor,
			TimelineEnd:   cursor + d,
			SourceIn:      p.TrimIn,
			SourceOut:     p.TrimOut,
		})
		cursor += d
	}
	return segments
}

// TotalDuration is the largest TimelineEnd across every given segment list.
func TotalDuration(lists ...[]Segment) float64 {
	total := 0.0
	for _, segs := range lists {
		for _, s := range segs {
			if s.TimelineEnd > total {
				total = s.TimelineEnd
			}
		}
	}
	return total
}

// IndexAt scans segments for the one containing t and returns its index, or
// -1. Callers must pass the current list; indexes do not survive re-derivation.
func IndexAt(segments []Segment, t float64) int {
	for i, s := range segments {
		if s.Contains(t) {
			return i
		}
	}
	return -1
}

// IndexOf returns the index of the segment for placementID, or -1.
func IndexOf(segments []Segment, placementID string) int {
	for i, s := range segments {
		if s.PlacementID == placementID {
			return i
		}
	}
	return -1
}

// ActiveAt returns every segment containing t.
func ActiveAt(segments []Segment, t float64) []Segment {
	var active []Segment
	for _, s := range segments {
		if s.Contains(t) {
			active = append(active, s)
		}
	}
	return active
}

// BrokenPlacements lists placements whose source clip is not in clipsByID.
func BrokenPlacements(placements []Placement, clipsByID map[string]SourceClip) []Placement {
	var broken []Placement
	for _, p := range placements {
		if _, ok := clipsByID[p.SourceClipID]; !ok {
			broken = append(broken, p)
		}
	}
	return broken
}

// ValidateTrim checks 0 <= trimIn, trimIn + one frame <= trimOut and
// trimOut <= clip.TotalDuration.
func ValidateTrim(trimIn, trimOut float64, clip SourceClip) error {
	if math.IsNaN(trimIn) || math.IsNaN(trimOut) {
		return fmt.Errorf("%w: trim is not a number", ErrInvalidTrim)
	}
	if trimIn < 0 {
		return fmt.Errorf("%w: trim_in %.3f is negative", ErrInvalidTrim, trimIn)
	}
	if trimIn >= trimOut {
		return fmt.Errorf("%w: trim_in %.3f must be before trim_out %.3f", ErrInvalidTrim, trimIn, trimOut)
	}
	if trimOut > clip.TotalDuration+epsilonFor(clip) {
		return fmt.Errorf("%w: trim_out %.3f exceeds clip duration %.3f", ErrInvalidTrim, trimOut, clip.TotalDuration)
	}
	if trimOut-trimIn < clip.MinDuration()-epsilonFor(clip) {
		return fmt.Errorf("%w: trimmed duration is shorter than one frame", ErrInvalidTrim)
	}
	return nil
}

// ClampTrim forces a trim pair into the clip's valid range, keeping at least
// one frame between the edges.
func ClampTrim(trimIn, trimOut float64, clip SourceClip) (float64, float64) {
	minDur := clip.MinDuration()
	if minDur > clip.TotalDuration {
		minDur = clip.TotalDuration
	}
	trimIn = clamp(trimIn, 0, clip.TotalDuration-minDur)
	trimOut = clamp(trimOut, trimIn+minDur, clip.TotalDuration)
	return trimIn, trimOut
}

// Projection is a segment's pixel extent at a zoom level.
type Projection struct {
	Segment
	X     float64 `json:"x"`
	Width float64 `json:"width"`
}

// Project converts segments to pixel extents for clip-block rendering.
func Project(segments []Segment, pixelsPerSecond float64) []Projection {
	out := make([]Projection, len(segments))
	for i, s := range segments {
		out[i] = Projection{
			Segment: s,
			X:       timecode.SecondsToPixels(s.TimelineStart, pixelsPerSecond),
			Width:   timecode.SecondsToPixels(s.Duration(), pixelsPerSecond),
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// epsilonFor tolerates float noise from frame arithmetic on commit.
func epsilonFor(clip SourceClip) float64 {
	return clip.MinDuration() * 1e-6
}
