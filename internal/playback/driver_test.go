package playback

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/framecut/framecut-engine/internal/surface"
	"github.com/framecut/framecut-engine/internal/timeline"
)

type command struct {
	Op        string
	RequestID uint64
	ClipID    string
	At        float64
	Muted     bool
}

type fakeSurface struct {
	name     string
	commands []command
	failOn   string
	failErr  error
	onLoad   func(req surface.LoadRequest)
}

func newFakeSurface(name string) *fakeSurface {
	return &fakeSurface{name: name}
}

func (f *fakeSurface) record(c command) error {
	if f.failOn == c.Op {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("surface disconnected")
	}
	f.commands = append(f.commands, c)
	return nil
}

func (f *fakeSurface) Name() string { return f.name }

func (f *fakeSurface) Load(req surface.LoadRequest) error {
	if f.onLoad != nil {
		f.onLoad(req)
	}
	return f.record(command{Op: "load", RequestID: req.RequestID, ClipID: req.ClipID, At: req.At})
}

func (f *fakeSurface) Clear() error { return f.record(command{Op: "clear"}) }

func (f *fakeSurface) Seek(req surface.SeekRequest) error {
	return f.record(command{Op: "seek", RequestID: req.RequestID, At: req.At})
}

func (f *fakeSurface) Play() error  { return f.record(command{Op: "play"}) }
func (f *fakeSurface) Pause() error { return f.record(command{Op: "pause"}) }

func (f *fakeSurface) SetMuted(muted bool) error {
	return f.record(command{Op: "mute", Muted: muted})
}

func (f *fakeSurface) Release() error { return f.record(command{Op: "release"}) }

func (f *fakeSurface) last() command {
	if len(f.commands) == 0 {
		return command{}
	}
	return f.commands[len(f.commands)-1]
}

// lastOf returns the most recent command with the given op.
func (f *fakeSurface) lastOf(op string) (command, bool) {
	for i := len(f.commands) - 1; i >= 0; i-- {
		if f.commands[i].Op == op {
			return f.commands[i], true
		}
	}
	return command{}, false
}

func (f *fakeSurface) count(op string) int {
	n := 0
	for _, c := range f.commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

type eventLog struct {
	events []Event
}

func (l *eventLog) record(e Event) {
	l.events = append(l.events, e)
}

func (l *eventLog) positions() []float64 {
	var out []float64
	for _, e := range l.events {
		if e.Kind == EventPosition {
			out = append(out, e.Position)
		}
	}
	return out
}

func (l *eventLog) has(kind EventKind) bool {
	for _, e := range l.events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func testClips() map[string]timeline.SourceClip {
	return map[string]timeline.SourceClip{
		"clipA": {ID: "clipA", SourcePath: "/media/a.mp4", TotalDuration: 10, FrameRate: 25},
		"clipB": {ID: "clipB", SourcePath: "/media/b.mp4", TotalDuration: 10, FrameRate: 25},
		"clipC": {ID: "clipC", SourcePath: "/media/c.mov", TotalDuration: 30, FrameRate: 30},
	}
}

func segmentsOf(placements ...timeline.Placement) []timeline.Segment {
	return timeline.DeriveSegments(placements, testClips())
}

// twoClipSegments is [clipA 0..5] then [clipB 2..6]: timeline [0,5) and [5,9).
func twoClipSegments() []timeline.Segment {
	return segmentsOf(
		timeline.Placement{InstanceID: "p0", SourceClipID: "clipA", TrimIn: 0, TrimOut: 5},
		timeline.Placement{InstanceID: "p1", SourceClipID: "clipB", TrimIn: 2, TrimOut: 6},
	)
}

func newTestSingle(t *testing.T, segs []timeline.Segment) (*Single, *fakeSurface, *eventLog) {
	t.Helper()
	surf := newFakeSurface(surface.Main)
	log := &eventLog{}
	s := NewSingle(surf, PreviewOptions{OnEvent: log.record})
	s.SetTimeline(Timeline{Main: segs}, true)
	return s, surf, log
}

func notify(d *Driver, kind surface.NotificationKind, t float64) {
	d.HandleNotification(surface.Notification{Surface: d.Name(), Kind: kind, RequestID: d.RequestID(), Time: t})
}

func TestDriver_InitialLoad(t *testing.T) {
	s, surf, _ := newTestSingle(t, twoClipSegments())
	d := s.Driver()

	if d.State() != StateLoading {
		t.Fatalf("state = %v, want loading", d.State())
	}
	load, ok := surf.lastOf("load")
	if !ok || load.ClipID != "clipA" || load.At != 0 {
		t.Fatalf("initial load = %+v", load)
	}
	if surf.commands[0].Op != "clear" {
		t.Errorf("first command = %q, want clear before load", surf.commands[0].Op)
	}

	notify(d, surface.Ready, 0)
	if d.State() != StatePaused {
		t.Errorf("state after ready = %v, want paused", d.State())
	}
}

func TestDriver_SeekIntoSegment(t *testing.T) {
	segs := segmentsOf(timeline.Placement{InstanceID: "p0", SourceClipID: "clipA", TrimIn: 0, TrimOut: 10})
	s, surf, _ := newTestSingle(t, segs)
	d := s.Driver()
	notify(d, surface.Ready, 0)

	s.Seek(7.5)

	if d.ActiveIndex() != 0 {
		t.Errorf("active index = %d, want 0", d.ActiveIndex())
	}
	seek, ok := surf.lastOf("seek")
	if !ok || seek.At != 7.5 {
		t.Fatalf("surface target = %+v, want seek to 7.5", seek)
	}
	if s.Position() != 7.5 {
		t.Errorf("optimistic position = %v, want 7.5", s.Position())
	}

	notify(d, surface.Ready, 7.5)
	if math.Abs(s.Position()-7.5) > DefaultEpsilon {
		t.Errorf("position after ready = %v, want 7.5", s.Position())
	}
}

func TestDriver_SeekRoundTrip(t *testing.T) {
	targets := []float64{0, 1.25, 4.9, 5, 6.5, 8.99}

	for _, target := range targets {
		s, _, _ := newTestSingle(t, twoClipSegments())
		d := s.Driver()
		notify(d, surface.Ready, 0)

		s.Seek(target)
		seg, ok := d.ActiveSegment()
		if !ok {
			t.Fatalf("Seek(%v): no active segment", target)
		}
		if !seg.Contains(target) {
			t.Errorf("Seek(%v): active segment %s does not contain target", target, seg.PlacementID)
		}
		notify(d, surface.Ready, seg.SourceTime(target))

		if math.Abs(s.Position()-target) > DefaultEpsilon {
			t.Errorf("Seek(%v): read back %v", target, s.Position())
		}
	}
}

func TestDriver_LoadCrossSourceSeekSameSource(t *testing.T) {
	s, surf, _ := newTestSingle(t, twoClipSegments())
	d := s.Driver()
	notify(d, surface.Ready, 0)

	s.Seek(6.5)
	load, _ := surf.lastOf("load")
	if load.ClipID != "clipB" || load.At != 3.5 {
		t.Fatalf("cross-source seek load = %+v, want clipB at 3.5", load)
	}
	if surf.count("clear") != 2 {
		t.Errorf("clear count = %d, want a clear before every load", surf.count("clear"))
	}
	notify(d, surface.Ready, 3.5)

	s.Seek(7.5)
	if surf.count("load") != 2 {
		t.Error("seek within the loaded source reloaded the surface")
	}
	if seek, _ := surf.lastOf("seek"); seek.At != 4.5 {
		t.Errorf("in-source seek = %+v, want 4.5", seek)
	}
	notify(d, surface.Ready, 4.5)

	before := len(surf.commands)
	s.Seek(7.52)
	if len(surf.commands) != before {
		t.Errorf("sub-epsilon seek issued %v", surf.commands[before:])
	}
}

func TestDriver_LoadAppliesPendingSeekOnReady(t *testing.T) {
	s, surf, _ := newTestSingle(t, twoClipSegments())
	d := s.Driver()

	s.Seek(3)
	// Still loading clipA: only the pending target moves.
	if surf.count("load") != 1 || surf.count("seek") != 0 {
		t.Fatalf("commands while loading = %+v", surf.commands)
	}

	notify(d, surface.Ready, 0)
	seek, ok := surf.lastOf("seek")
	if !ok || seek.At != 3 {
		t.Fatalf("pending seek = %+v, want seek to 3", seek)
	}
	if d.State() != StateSeeking {
		t.Errorf("state = %v, want seeking", d.State())
	}

	notify(d, surface.Ready, 3)
	if d.State() != StatePaused || s.Position() != 3 {
		t.Errorf("after seek ready: state %v, position %v", d.State(), s.Position())
	}
}

func TestDriver_StaleReadyDiscarded(t *testing.T) {
	s, surf, _ := newTestSingle(t, twoClipSegments())
	d := s.Driver()
	notify(d, surface.Ready, 0)

	s.Seek(7)
	staleReq := d.RequestID()

	var activeAtLoad []int
	surf.onLoad = func(surface.LoadRequest) { activeAtLoad = append(activeAtLoad, d.ActiveIndex()) }
	s.Seek(1)

	if len(activeAtLoad) != 1 || activeAtLoad[0] != 0 {
		t.Errorf("active index at load time = %v, want [0]", activeAtLoad)
	}

	d.HandleNotification(surface.Notification{Surface: surface.Main, Kind: surface.Ready, RequestID: staleReq, Time: 5})
	if d.State() != StateLoading {
		t.Errorf("stale ready changed state to %v", d.State())
	}
	if s.Position() != 1 {
		t.Errorf("stale ready moved position to %v", s.Position())
	}

	notify(d, surface.Ready, 1)
	if d.State() != StatePaused {
		t.Errorf("state = %v, want paused", d.State())
	}
}

func TestDriver_TransitionWithoutRegression(t *testing.T) {
	s, surf, log := newTestSingle(t, twoClipSegments())
	d := s.Driver()

	if err := s.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	notify(d, surface.Ready, 0)
	if d.State() != StatePlaying {
		t.Fatalf("state = %v, want playing", d.State())
	}

	notify(d, surface.TimeUpdate, 2)
	notify(d, surface.TimeUpdate, 5-DefaultEpsilon/2)

	if d.ActiveIndex() != 1 {
		t.Fatalf("active index = %d, want 1", d.ActiveIndex())
	}
	load, _ := surf.lastOf("load")
	if load.ClipID != "clipB" || load.At != 2 {
		t.Errorf("next segment load = %+v, want clipB at sourceIn 2", load)
	}

	notify(d, surface.Ready, 2)
	notify(d, surface.TimeUpdate, 3)
	// A late, slightly earlier report must not move the playhead back.
	notify(d, surface.TimeUpdate, 2.9)

	positions := log.positions()
	for i := 1; i < len(positions); i++ {
		if positions[i] < positions[i-1] {
			t.Fatalf("position regressed: %v", positions)
		}
	}
	if s.Position() != 6 {
		t.Errorf("position = %v, want 6", s.Position())
	}
}

func TestDriver_ContiguousSameSourceNoReload(t *testing.T) {
	segs := segmentsOf(
		timeline.Placement{InstanceID: "left", SourceClipID: "clipA", TrimIn: 0, TrimOut: 4},
		timeline.Placement{InstanceID: "right", SourceClipID: "clipA", TrimIn: 4, TrimOut: 10},
	)
	s, surf, _ := newTestSingle(t, segs)
	d := s.Driver()
	s.Play()
	notify(d, surface.Ready, 0)

	before := len(surf.commands)
	notify(d, surface.TimeUpdate, 3.98)

	if d.ActiveIndex() != 1 {
		t.Fatalf("active index = %d, want 1", d.ActiveIndex())
	}
	if len(surf.commands) != before {
		t.Errorf("split halves caused surface commands %+v", surf.commands[before:])
	}
	if d.State() != StatePlaying {
		t.Errorf("state = %v, want playing", d.State())
	}
}

func TestDriver_EndOfTimeline(t *testing.T) {
	s, surf, log := newTestSingle(t, twoClipSegments())
	d := s.Driver()
	s.Seek(8)
	s.Play()
	notify(d, surface.Ready, 5)
	notify(d, surface.TimeUpdate, 6-DefaultEpsilon/4)

	if s.Playing() {
		t.Error("still playing past the last segment")
	}
	if s.Position() != 9 {
		t.Errorf("position = %v, want total 9", s.Position())
	}
	if !log.has(EventEnded) {
		t.Error("no ended event")
	}
	if surf.last().Op != "pause" {
		t.Errorf("last command = %q, want pause", surf.last().Op)
	}

	// Playing again restarts from the top.
	s.Play()
	if s.Position() != 0 || d.ActiveIndex() != 0 {
		t.Errorf("replay position %v index %d", s.Position(), d.ActiveIndex())
	}
}

func TestDriver_SeekPastEndParksOnLastFrame(t *testing.T) {
	s, surf, _ := newTestSingle(t, twoClipSegments())
	d := s.Driver()

	s.Seek(100)
	if s.Position() != 9 {
		t.Errorf("position = %v, want clamped to 9", s.Position())
	}
	if d.ActiveIndex() != 1 || !d.Ended() {
		t.Errorf("active %d ended %v, want last segment ended", d.ActiveIndex(), d.Ended())
	}
	if load, _ := surf.lastOf("load"); load.At != 6 {
		t.Errorf("load = %+v, want sourceOut 6", load)
	}
}

func TestDriver_SurfaceError(t *testing.T) {
	s, surf, log := newTestSingle(t, twoClipSegments())
	d := s.Driver()
	s.Play()
	notify(d, surface.Ready, 0)

	d.HandleNotification(surface.Notification{Surface: surface.Main, Kind: surface.Error, RequestID: d.RequestID(), Message: "decode failed"})

	if d.State() != StateError {
		t.Fatalf("state = %v, want error", d.State())
	}
	if s.Playing() {
		t.Error("playback not halted")
	}
	var se *SurfaceError
	if !errors.As(d.LastError(), &se) || se.Message != "decode failed" {
		t.Errorf("LastError() = %v", d.LastError())
	}
	if !log.has(EventError) {
		t.Error("no error event")
	}

	if err := s.Play(); !errors.Is(err, ErrSurfaceFailed) {
		t.Errorf("Play() in error = %v, want ErrSurfaceFailed", err)
	}
	loads := surf.count("load")

	// No automatic retry; seeking elsewhere recovers with a fresh load.
	s.Seek(6)
	if d.State() != StateLoading || surf.count("load") != loads+1 {
		t.Errorf("seek after error: state %v loads %d", d.State(), surf.count("load"))
	}
	if d.LastError() != nil {
		t.Errorf("LastError() after recovery = %v", d.LastError())
	}
}

func TestDriver_CommandDeliveryFailure(t *testing.T) {
	surf := newFakeSurface(surface.Main)
	surf.failOn = "load"
	s := NewSingle(surf, PreviewOptions{})
	s.SetTimeline(Timeline{Main: twoClipSegments()}, true)

	if s.Driver().State() != StateError {
		t.Fatalf("state = %v, want error", s.Driver().State())
	}
	if !errors.Is(s.Driver().LastError(), ErrSurfaceFailed) {
		t.Errorf("LastError() = %v, want ErrSurfaceFailed", s.Driver().LastError())
	}
}

func TestDriver_UndeliveredCommandIsNotFatal(t *testing.T) {
	surf := newFakeSurface(surface.Main)
	surf.failOn = "load"
	surf.failErr = fmt.Errorf("shell gone: %w", surface.ErrUndelivered)
	s := NewSingle(surf, PreviewOptions{})
	s.SetTimeline(Timeline{Main: twoClipSegments()}, true)

	d := s.Driver()
	if d.State() == StateError || d.LastError() != nil {
		t.Fatalf("state %v error %v after undelivered load", d.State(), d.LastError())
	}
	if err := s.Play(); err != nil {
		t.Errorf("Play() = %v, want nil", err)
	}
	s.Pause()

	// The shell is back: the load is issued again.
	surf.failOn = ""
	s.Reload()
	if surf.count("load") != 1 || d.State() != StateLoading {
		t.Errorf("after reload: loads %d state %v", surf.count("load"), d.State())
	}
	if load, _ := surf.lastOf("load"); load.ClipID != "clipA" {
		t.Errorf("reloaded clip = %q, want clipA", load.ClipID)
	}
}

func TestDriver_Buffering(t *testing.T) {
	s, _, log := newTestSingle(t, twoClipSegments())
	d := s.Driver()
	notify(d, surface.Ready, 0)

	d.HandleNotification(surface.Notification{Surface: surface.Main, Kind: surface.Buffering, RequestID: d.RequestID(), Buffering: true})
	if !d.Buffering() || !s.Status().Buffering {
		t.Error("buffering flag not set")
	}
	if !log.has(EventBuffering) {
		t.Error("no buffering event")
	}
	d.HandleNotification(surface.Notification{Surface: surface.Main, Kind: surface.Buffering, RequestID: d.RequestID()})
	if d.Buffering() {
		t.Error("buffering flag not cleared")
	}
}

func TestDriver_TrimRemapsActiveSegment(t *testing.T) {
	s, surf, _ := newTestSingle(t, twoClipSegments())
	d := s.Driver()
	s.Seek(6)
	notify(d, surface.Ready, 3)

	trimmed := segmentsOf(
		timeline.Placement{InstanceID: "p0", SourceClipID: "clipA", TrimIn: 0, TrimOut: 3},
		timeline.Placement{InstanceID: "p1", SourceClipID: "clipB", TrimIn: 2, TrimOut: 6},
	)
	s.SetTimeline(Timeline{Main: trimmed}, false)

	if d.ActiveIndex() != 1 {
		t.Fatalf("active index = %d, want 1", d.ActiveIndex())
	}
	if seek, ok := surf.lastOf("seek"); !ok || seek.At != 5 {
		t.Errorf("seek after trim = %+v, want 5", seek)
	}
	if s.Status().Total != 7 {
		t.Errorf("total = %v, want 7", s.Status().Total)
	}
}

func TestDriver_EmptyTimeline(t *testing.T) {
	s, surf, _ := newTestSingle(t, twoClipSegments())
	s.SetTimeline(Timeline{}, true)

	if s.Driver().State() != StateIdle {
		t.Errorf("state = %v, want idle", s.Driver().State())
	}
	if surf.last().Op != "clear" {
		t.Errorf("last command = %q, want clear", surf.last().Op)
	}
	if err := s.Play(); !errors.Is(err, ErrNothingToPlay) || s.Playing() {
		t.Errorf("Play() on empty = %v, playing %v, want ErrNothingToPlay", err, s.Playing())
	}
}

func TestDriver_ReloadReissuesLoad(t *testing.T) {
	single, surf, _ := newTestSingle(t, twoClipSegments())
	single.Seek(6)
	notify(single.Driver(), surface.Ready, 3)
	loads := surf.count("load")

	single.Driver().HandleNotification(surface.Notification{
		Surface: surface.Main, Kind: surface.Error, RequestID: single.Driver().RequestID(), Message: "gpu reset",
	})
	single.Reload()

	if surf.count("load") != loads+1 {
		t.Fatalf("load count = %d, want %d", surf.count("load"), loads+1)
	}
	load, _ := surf.lastOf("load")
	if load.ClipID != "clipB" || math.Abs(load.At-3) > 1e-9 {
		t.Errorf("reload = %+v, want clipB at 3", load)
	}
	if single.Driver().LastError() != nil || single.Driver().State() != StateLoading {
		t.Errorf("after reload state = %v, err = %v", single.Driver().State(), single.Driver().LastError())
	}
}
