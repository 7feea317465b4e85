package engine

import (
	"context"

	"github.com/framecut/framecut-engine/internal/gesture"
	"github.com/framecut/framecut-engine/internal/timecode"
	"github.com/framecut/framecut-engine/internal/timeline"
)

// Clip library

func (e *Engine) PutClip(ctx context.Context, clip timeline.SourceClip) error {
	return e.do(ctx, func() error {
		e.session.PutClip(clip)
		return nil
	})
}

func (e *Engine) RemoveClip(ctx context.Context, id string) error {
	return e.do(ctx, func() error {
		e.session.RemoveClip(id)
		return nil
	})
}

// Tracks

func (e *Engine) AddTrack(ctx context.Context, kind timeline.TrackKind, name string) (timeline.Track, error) {
	var t timeline.Track
	err := e.do(ctx, func() (err error) {
		t, err = e.session.AddTrack(ctx, kind, name)
		return err
	})
	return t, err
}

func (e *Engine) RemoveTrack(ctx context.Context, id string) error {
	return e.do(ctx, func() error {
		return e.session.RemoveTrack(ctx, id)
	})
}

func (e *Engine) SetTrackGain(ctx context.Context, id string, gain float64) error {
	return e.do(ctx, func() error {
		return e.session.SetTrackGain(ctx, id, gain)
	})
}

// Placements

func (e *Engine) Insert(ctx context.Context, trackID string, index int, p timeline.Placement) (timeline.Placement, error) {
	var out timeline.Placement
	err := e.do(ctx, func() (err error) {
		out, err = e.session.Insert(ctx, trackID, index, p)
		return err
	})
	return out, err
}

func (e *Engine) Delete(ctx context.Context, placementID string) error {
	return e.do(ctx, func() error {
		return e.session.Delete(ctx, placementID)
	})
}

func (e *Engine) Move(ctx context.Context, placementID string, index int) error {
	return e.do(ctx, func() error {
		return e.session.Move(ctx, placementID, index)
	})
}

func (e *Engine) SetTrim(ctx context.Context, placementID string, trimIn, trimOut float64) (timeline.Placement, error) {
	var out timeline.Placement
	err := e.do(ctx, func() (err error) {
		out, err = e.session.SetTrim(ctx, placementID, trimIn, trimOut)
		return err
	})
	return out, err
}

func (e *Engine) Split(ctx context.Context, placementID string, splitPoint float64) (timeline.Placement, timeline.Placement, error) {
	var left, right timeline.Placement
	err := e.do(ctx, func() (err error) {
		left, right, err = e.gestures.Split(ctx, placementID, splitPoint)
		return err
	})
	return left, right, err
}

func (e *Engine) SplitAt(ctx context.Context, trackID string, t float64) (timeline.Placement, timeline.Placement, error) {
	var left, right timeline.Placement
	err := e.do(ctx, func() (err error) {
		left, right, err = e.gestures.SplitAt(ctx, trackID, t)
		return err
	})
	return left, right, err
}

// Transport

func (e *Engine) Play(ctx context.Context) error {
	return e.do(ctx, e.preview.Play)
}

func (e *Engine) Pause(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.preview.Pause()
		e.savePlayhead(ctx)
		return nil
	})
}

// TogglePlay pauses a playing preview and plays a paused one. It reports
// whether the preview is playing afterwards.
func (e *Engine) TogglePlay(ctx context.Context) (bool, error) {
	var playing bool
	err := e.do(ctx, func() error {
		if e.preview.Playing() {
			e.preview.Pause()
			e.savePlayhead(ctx)
		} else if err := e.preview.Play(); err != nil {
			return err
		}
		playing = e.preview.Playing()
		return nil
	})
	return playing, err
}

func (e *Engine) Seek(ctx context.Context, t float64) error {
	return e.do(ctx, func() error {
		e.preview.Seek(t)
		e.savePlayhead(ctx)
		return nil
	})
}

// Reload re-issues every surface load, for when the shell that renders the
// surfaces reconnects.
func (e *Engine) Reload(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.preview.Reload()
		return nil
	})
}

// Trim gestures

func (e *Engine) BeginTrim(ctx context.Context, placementID string, edge gesture.Edge, pointerX, pixelsPerSecond float64) (gesture.Candidate, error) {
	var c gesture.Candidate
	err := e.do(ctx, func() (err error) {
		c, err = e.gestures.Begin(placementID, edge, pointerX, pixelsPerSecond)
		return err
	})
	return c, err
}

func (e *Engine) MoveTrim(ctx context.Context, pointerX float64) (gesture.Candidate, error) {
	var c gesture.Candidate
	err := e.do(ctx, func() (err error) {
		c, err = e.gestures.Move(pointerX)
		return err
	})
	return c, err
}

func (e *Engine) CommitTrim(ctx context.Context) (timeline.Placement, error) {
	var p timeline.Placement
	err := e.do(ctx, func() (err error) {
		p, err = e.gestures.Commit(ctx)
		return err
	})
	return p, err
}

func (e *Engine) AbortTrim(ctx context.Context) error {
	return e.do(ctx, func() error {
		e.gestures.Abort()
		return nil
	})
}

func (e *Engine) SetGrid(ctx context.Context, mode timecode.GridMode) error {
	return e.do(ctx, func() error {
		e.gestures.SetGrid(mode)
		return nil
	})
}

// Reads

func (e *Engine) Status(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.do(ctx, func() error {
		s = Snapshot{
			Status:    e.preview.Status(),
			SessionID: e.session.ID(),
			Broken:    e.session.BrokenPlacements(),
		}
		if c, ok := e.gestures.Candidate(); ok {
			s.Gesture = &c
		}
		return nil
	})
	return s, err
}

func (e *Engine) Tracks() []timeline.Track {
	return e.session.Tracks()
}

func (e *Engine) Segments(trackID string) ([]timeline.Segment, error) {
	if _, ok := e.session.Track(trackID); !ok {
		return nil, timeline.ErrTrackNotFound
	}
	return e.session.Segments(trackID), nil
}

// MainTimeline returns the main track's segments and the clips they reference,
// for export.
func (e *Engine) MainTimeline() ([]timeline.Segment, map[string]timeline.SourceClip) {
	return e.session.MainSegments(), e.session.Clips()
}

func (e *Engine) Grid(ctx context.Context) (timecode.GridMode, error) {
	var mode timecode.GridMode
	err := e.do(ctx, func() error {
		mode = e.gestures.Grid()
		return nil
	})
	return mode, err
}
