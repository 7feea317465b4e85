package playback

import (
	"errors"
	"fmt"
)

// DefaultEpsilon is the smallest position delta that triggers a seek or a
// playhead update, in seconds.
const DefaultEpsilon = 0.05

// DefaultFollowTolerance is how far a follower surface may drift from the
// playhead during playback before it is re-seeked, in seconds.
const DefaultFollowTolerance = 0.25

var (
	ErrSurfaceFailed = errors.New("media surface failed")
	// ErrNothingToPlay is returned by Play when the driving track has no
	// playable segments.
	ErrNothingToPlay = errors.New("no playable segments on the main track")
)

// SurfaceError carries the decode failure a surface reported.
type SurfaceError struct {
	Surface string
	Message string
}

func (e *SurfaceError) Error() string {
	return fmt.Sprintf("surface %s: %s", e.Surface, e.Message)
}

func (e *SurfaceError) Is(target error) bool {
	return target == ErrSurfaceFailed
}

type State int

const (
	StateIdle State = iota
	StateLoading
	StateSeeking
	StatePlaying
	StatePaused
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSeeking:
		return "seeking"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Clock is the timeline clock shared by every driver of one preview context.
// Only the owning driver, or an explicit seek, moves Position.
type Clock struct {
	Position float64
	Playing  bool
	Total    float64
}

func (c *Clock) clampPosition() {
	if c.Position > c.Total {
		c.Position = c.Total
	}
	if c.Position < 0 {
		c.Position = 0
	}
}

type EventKind string

const (
	EventPosition  EventKind = "position"
	EventSegment   EventKind = "segment"
	EventState     EventKind = "state"
	EventBuffering EventKind = "buffering"
	EventError     EventKind = "error"
	EventEnded     EventKind = "ended"
)

type Event struct {
	Kind        EventKind `json:"kind"`
	Surface     string    `json:"surface,omitempty"`
	Position    float64   `json:"position"`
	Playing     bool      `json:"playing"`
	State       string    `json:"state,omitempty"`
	PlacementID string    `json:"placement_id,omitempty"`
	Buffering   bool      `json:"buffering,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// SurfaceStatus is a point-in-time view of one driver.
type SurfaceStatus struct {
	Surface     string  `json:"surface"`
	State       string  `json:"state"`
	PlacementID string  `json:"placement_id,omitempty"`
	Buffering   bool    `json:"buffering"`
	LastError   string  `json:"last_error,omitempty"`
	SurfaceTime float64 `json:"surface_time"`
}

// Status is a point-in-time view of a whole preview context.
type Status struct {
	Mode      string          `json:"mode"`
	Position  float64         `json:"position"`
	Playing   bool            `json:"playing"`
	Total     float64         `json:"total"`
	Buffering bool            `json:"buffering"`
	LastError string          `json:"last_error,omitempty"`
	Surfaces  []SurfaceStatus `json:"surfaces"`
	Handles   int             `json:"audio_handles"`
}

// SourceResolver maps a clip to the locator a surface should load.
type SourceResolver func(clipID, sourcePath string) string

func pathSource(_ string, sourcePath string) string {
	return sourcePath
}
