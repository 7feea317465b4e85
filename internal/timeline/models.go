package timeline

import (
	"errors"

	"github.com/framecut/framecut-engine/internal/timecode"
)

var (
	ErrMissingSourceClip  = errors.New("placement references a missing source clip")
	ErrInvalidTrim        = errors.New("invalid trim")
	ErrInvalidSplit       = errors.New("split point must lie strictly inside the trim range")
	ErrPlacementNotFound  = errors.New("placement not found")
	ErrTrackNotFound      = errors.New("track not found")
	ErrInvalidTrack       = errors.New("invalid track")
	ErrInvalidIndex       = errors.New("index out of range")
	ErrDuplicatePlacement = errors.New("placement instance already exists")
)

type TrackKind string

const (
	TrackMain    TrackKind = "main"
	TrackOverlay TrackKind = "overlay"
	TrackAudio   TrackKind = "audio"
)

func (k TrackKind) Valid() bool {
	return k == TrackMain || k == TrackOverlay || k == TrackAudio
}

// SourceClip is a pre-validated media file owned by the clip library.
type SourceClip struct {
	ID            string  `json:"id"`
	SourcePath    string  `json:"source_path"`
	TotalDuration float64 `json:"total_duration"`
	FrameRate     float64 `json:"frame_rate"`
	Codec         string  `json:"codec,omitempty"`
}

// MinDuration is one source frame; trims never get shorter than this.
func (c SourceClip) MinDuration() float64 {
	return timecode.FrameDuration(c.FrameRate)
}

// Placement is one instance of a source clip on a track. InstanceID is unique
// per placement; the same SourceClipID may appear in many placements.
type Placement struct {
	InstanceID   string  `json:"instance_id"`
	SourceClipID string  `json:"source_clip_id"`
	TrimIn       float64 `json:"trim_in"`
	TrimOut      float64 `json:"trim_out"`
	TrackID      string  `json:"track_id,omitempty"`
}

func (p Placement) Duration() float64 {
	return p.TrimOut - p.TrimIn
}

// Track is an ordered placement lane. Gain is nil until a per-track level is
// set, in which case the configured default applies.
type Track struct {
	ID         string      `json:"id"`
	Kind       TrackKind   `json:"kind"`
	Name       string      `json:"name"`
	Gain       *float64    `json:"gain,omitempty"`
	Placements []Placement `json:"placements"`
}

func (t Track) clone() Track {
	c := t
	c.Placements = append([]Placement(nil), t.Placements...)
	if t.Gain != nil {
		g := *t.Gain
		c.Gain = &g
	}
	return c
}

func (t Track) indexOf(placementID string) int {
	for i, p := range t.Placements {
		if p.InstanceID == placementID {
			return i
		}
	}
	return -1
}

// Segment is the derived, timeline-relative span of one placement's trimmed
// output. TimelineEnd-TimelineStart always equals SourceOut-SourceIn.
type Segment struct {
	PlacementID   string  `json:"placement_id"`
	SourceClipID  string  `json:"source_clip_id"`
	SourcePath    string  `json:"source_path"`
	TrackID       string  `json:"track_id,omitempty"`
	TimelineStart float64 `json:"timeline_start"`
	TimelineEnd   float64 `json:"timeline_end"`
	SourceIn      float64 `json:"source_in"`
	SourceOut     float64 `json:"source_out"`
}

func (s Segment) Duration() float64 {
	return s.TimelineEnd - s.TimelineStart
}

// Contains reports whether t lies in [TimelineStart, TimelineEnd).
func (s Segment) Contains(t float64) bool {
	return s.TimelineStart <= t && t < s.TimelineEnd
}

// SourceTime maps a timeline time to a time inside the source media.
func (s Segment) SourceTime(timelineTime float64) float64 {
	return s.SourceIn + (timelineTime - s.TimelineStart)
}

// TimelineTime maps a surface-reported source time back to the timeline.
func (s Segment) TimelineTime(sourceTime float64) float64 {
	return s.TimelineStart + (sourceTime - s.SourceIn)
}
