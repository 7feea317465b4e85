package api

import (
	"time"

	"github.com/framecut/framecut-engine/internal/library"
	"github.com/framecut/framecut-engine/internal/timeline"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type ClipRequest struct {
	SourcePath    string  `json:"source_path"`
	TotalDuration float64 `json:"total_duration"`
	FrameRate     float64 `json:"frame_rate"`
	Codec         string  `json:"codec,omitempty"`
}

type ClipResponse struct {
	ID            string  `json:"id"`
	SourcePath    string  `json:"source_path"`
	TotalDuration float64 `json:"total_duration"`
	FrameRate     float64 `json:"frame_rate"`
	Codec         string  `json:"codec,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type ClipsResponse struct {
	Clips []ClipResponse `json:"clips"`
}

type TrackRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

type TracksResponse struct {
	Tracks []timeline.Track `json:"tracks"`
}

type GainRequest struct {
	Gain *float64 `json:"gain"`
}

type SegmentsResponse struct {
	TrackID         string                `json:"track_id"`
	PixelsPerSecond float64               `json:"px_per_sec,omitempty"`
	Segments        []timeline.Segment    `json:"segments,omitempty"`
	Blocks          []timeline.Projection `json:"blocks,omitempty"`
}

// InsertRequest places a clip on a track. A nil Index appends.
type InsertRequest struct {
	InstanceID   string  `json:"instance_id,omitempty"`
	SourceClipID string  `json:"source_clip_id"`
	TrimIn       float64 `json:"trim_in"`
	TrimOut      float64 `json:"trim_out"`
	Index        *int    `json:"index,omitempty"`
}

type MoveRequest struct {
	Index int `json:"index"`
}

type TrimRequest struct {
	TrimIn  float64 `json:"trim_in"`
	TrimOut float64 `json:"trim_out"`
}

// SplitRequest carries a source time for /placements/{id}/split and a
// timeline time for /tracks/{id}/split.
type SplitRequest struct {
	At float64 `json:"at"`
}

type SplitResponse struct {
	Left  timeline.Placement `json:"left"`
	Right timeline.Placement `json:"right"`
}

type SeekRequest struct {
	Position float64 `json:"position"`
}

type BeginTrimRequest struct {
	PlacementID     string  `json:"placement_id"`
	Edge            string  `json:"edge"`
	PointerX        float64 `json:"pointer_x"`
	PixelsPerSecond float64 `json:"px_per_sec"`
}

type MoveTrimRequest struct {
	PointerX float64 `json:"pointer_x"`
}

type GridRequest struct {
	Mode string `json:"mode"`
}

type GridPointsResponse struct {
	Mode   string    `json:"mode"`
	Points []float64 `json:"points"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ClipToResponse(c *library.Clip) ClipResponse {
	return ClipResponse{
		ID:            c.ID,
		SourcePath:    c.SourcePath,
		TotalDuration: c.TotalDuration,
		FrameRate:     c.FrameRate,
		Codec:         c.Codec,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}
