// Package gesture turns pointer drags on a segment edge into trim candidates
// and commits them to the timeline session on release.
package gesture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/timecode"
	"github.com/framecut/framecut-engine/internal/timeline"
)

var (
	ErrNoGesture     = errors.New("no trim gesture in progress")
	ErrGestureActive = errors.New("a trim gesture is already in progress")
	ErrInvalidZoom   = errors.New("pixels per second must be positive")
	ErrInvalidEdge   = errors.New("edge must be start or end")
)

type Edge int

const (
	EdgeStart Edge = iota
	EdgeEnd
)

func ParseEdge(s string) (Edge, error) {
	switch strings.ToLower(s) {
	case "start", "in":
		return EdgeStart, nil
	case "end", "out":
		return EdgeEnd, nil
	}
	return EdgeStart, fmt.Errorf("%w: %q", ErrInvalidEdge, s)
}

func (e Edge) String() string {
	if e == EdgeEnd {
		return "end"
	}
	return "start"
}

// Timeline is the part of the timeline session a gesture reads and commits to.
type Timeline interface {
	Placement(id string) (timeline.Placement, bool)
	Clip(id string) (timeline.SourceClip, bool)
	SetTrim(ctx context.Context, placementID string, trimIn, trimOut float64) (timeline.Placement, error)
	Split(ctx context.Context, placementID string, splitPoint float64) (timeline.Placement, timeline.Placement, error)
	SplitAt(ctx context.Context, trackID string, t float64) (timeline.Placement, timeline.Placement, error)
}

// Candidate is the optimistic trim shown while a drag is in progress.
type Candidate struct {
	PlacementID string  `json:"placement_id"`
	Edge        string  `json:"edge"`
	TrimIn      float64 `json:"trim_in"`
	TrimOut     float64 `json:"trim_out"`
	Snapped     bool    `json:"snapped"`
}

// state is captured at gesture start and never changes during the drag.
type state struct {
	placementID     string
	edge            Edge
	pointerOrigin   float64
	pixelsPerSecond float64
	originalTrimIn  float64
	originalTrimOut float64
	clip            timeline.SourceClip
}

type Options struct {
	Grid            timecode.GridMode
	SnapThresholdPx float64
	Logger          *slog.Logger
}

// Engine runs at most one trim gesture at a time. It is not safe for
// concurrent use.
type Engine struct {
	timeline Timeline
	opts     Options
	logger   *slog.Logger

	active    *state
	candidate Candidate
}

func New(tl Timeline, opts Options) *Engine {
	return &Engine{
		timeline: tl,
		opts:     opts,
		logger:   logging.WithComponent(logging.OrDiscard(opts.Logger), "gesture"),
	}
}

func (e *Engine) SetGrid(mode timecode.GridMode) {
	e.opts.Grid = mode
}

func (e *Engine) Grid() timecode.GridMode {
	return e.opts.Grid
}

func (e *Engine) Active() bool {
	return e.active != nil
}

// Candidate returns the current candidate while a gesture is active.
func (e *Engine) Candidate() (Candidate, bool) {
	if e.active == nil {
		return Candidate{}, false
	}
	return e.candidate, true
}

// Begin captures the committed trim of placementID as the drag origin.
func (e *Engine) Begin(placementID string, edge Edge, pointerX, pixelsPerSecond float64) (Candidate, error) {
	if e.active != nil {
		return Candidate{}, ErrGestureActive
	}
	if edge != EdgeStart && edge != EdgeEnd {
		return Candidate{}, ErrInvalidEdge
	}
	if pixelsPerSecond <= 0 || math.IsNaN(pixelsPerSecond) || math.IsInf(pixelsPerSecond, 0) {
		return Candidate{}, ErrInvalidZoom
	}
	p, ok := e.timeline.Placement(placementID)
	if !ok {
		return Candidate{}, timeline.ErrPlacementNotFound
	}
	clip, ok := e.timeline.Clip(p.SourceClipID)
	if !ok {
		return Candidate{}, fmt.Errorf("%w: %s", timeline.ErrMissingSourceClip, p.SourceClipID)
	}

	e.active = &state{
		placementID:     placementID,
		edge:            edge,
		pointerOrigin:   pointerX,
		pixelsPerSecond: pixelsPerSecond,
		originalTrimIn:  p.TrimIn,
		originalTrimOut: p.TrimOut,
		clip:            clip,
	}
	e.candidate = Candidate{PlacementID: placementID, Edge: edge.String(), TrimIn: p.TrimIn, TrimOut: p.TrimOut}
	e.logger.Debug("trim gesture started", "placement_id", placementID, "edge", edge.String())
	return e.candidate, nil
}

// Move recomputes the candidate for the pointer at pointerX. The committed
// placement is not touched.
func (e *Engine) Move(pointerX float64) (Candidate, error) {
	g := e.active
	if g == nil {
		return Candidate{}, ErrNoGesture
	}
	if math.IsNaN(pointerX) {
		return e.candidate, nil
	}

	delta := (pointerX - g.pointerOrigin) / g.pixelsPerSecond
	threshold := timecode.SnapThreshold(e.opts.SnapThresholdPx, g.pixelsPerSecond)
	minDur := g.clip.MinDuration()

	c := Candidate{
		PlacementID: g.placementID,
		Edge:        g.edge.String(),
		TrimIn:      g.originalTrimIn,
		TrimOut:     g.originalTrimOut,
	}
	switch g.edge {
	case EdgeStart:
		v, snapped := timecode.Snap(g.originalTrimIn+delta, e.opts.Grid, g.clip.FrameRate, threshold)
		c.TrimIn = clamp(v, 0, g.originalTrimOut-minDur)
		c.Snapped = snapped
	case EdgeEnd:
		v, snapped := timecode.Snap(g.originalTrimOut+delta, e.opts.Grid, g.clip.FrameRate, threshold)
		c.TrimOut = clamp(v, g.originalTrimIn+minDur, g.clip.TotalDuration)
		c.Snapped = snapped
	}

	e.candidate = c
	return c, nil
}

// Commit ends the gesture and writes the candidate to the timeline. On
// failure the committed placement keeps its previous trim.
func (e *Engine) Commit(ctx context.Context) (timeline.Placement, error) {
	g := e.active
	if g == nil {
		return timeline.Placement{}, ErrNoGesture
	}
	c := e.candidate
	e.active = nil

	if c.TrimIn == g.originalTrimIn && c.TrimOut == g.originalTrimOut {
		p, _ := e.timeline.Placement(g.placementID)
		return p, nil
	}

	p, err := e.timeline.SetTrim(ctx, g.placementID, c.TrimIn, c.TrimOut)
	if err != nil {
		e.logger.Warn("trim commit rejected", "placement_id", g.placementID, "error", err)
		return timeline.Placement{}, err
	}
	e.logger.Info("trim committed", "placement_id", g.placementID, "edge", g.edge.String(),
		"trim_in", p.TrimIn, "trim_out", p.TrimOut)
	return p, nil
}

// Abort drops the gesture; the committed trim was never changed.
func (e *Engine) Abort() {
	if e.active == nil {
		return
	}
	e.logger.Debug("trim gesture aborted", "placement_id", e.active.placementID)
	e.active = nil
	e.candidate = Candidate{}
}

// Split cuts placementID at splitPoint in source time.
func (e *Engine) Split(ctx context.Context, placementID string, splitPoint float64) (timeline.Placement, timeline.Placement, error) {
	if e.active != nil {
		return timeline.Placement{}, timeline.Placement{}, ErrGestureActive
	}
	return e.timeline.Split(ctx, placementID, splitPoint)
}

// SplitAt cuts the placement on trackID under timeline time t.
func (e *Engine) SplitAt(ctx context.Context, trackID string, t float64) (timeline.Placement, timeline.Placement, error) {
	if e.active != nil {
		return timeline.Placement{}, timeline.Placement{}, ErrGestureActive
	}
	return e.timeline.SplitAt(ctx, trackID, t)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
