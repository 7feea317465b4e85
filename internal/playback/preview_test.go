package playback

import (
	"errors"
	"testing"

	"github.com/framecut/framecut-engine/internal/surface"
	"github.com/framecut/framecut-engine/internal/timeline"
)

type fakeMixer struct {
	calls       []string
	lastSegs    []timeline.Segment
	lastPos     float64
	lastPlaying bool
	gains       map[string]float64
	observed    []surface.Notification
	handles     int
}

func (m *fakeMixer) SetGains(gains map[string]float64) {
	m.gains = gains
}

func (m *fakeMixer) Reconcile(segs []timeline.Segment, position float64, playing bool) error {
	m.calls = append(m.calls, "reconcile")
	m.lastSegs, m.lastPos, m.lastPlaying = segs, position, playing
	m.handles = len(timeline.ActiveAt(segs, position))
	return nil
}

func (m *fakeMixer) Start(segs []timeline.Segment, position float64) error {
	m.calls = append(m.calls, "start")
	m.lastSegs, m.lastPos, m.lastPlaying = segs, position, true
	return nil
}

func (m *fakeMixer) Pause() error {
	m.calls = append(m.calls, "pause")
	return nil
}

func (m *fakeMixer) Observe(n surface.Notification) {
	m.observed = append(m.observed, n)
}

func (m *fakeMixer) HandleCount() int { return m.handles }

func (m *fakeMixer) Release() error {
	m.calls = append(m.calls, "release")
	m.handles = 0
	return nil
}

func (m *fakeMixer) lastCall() string {
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}

type multitrackFixture struct {
	m       *Multitrack
	main    *fakeSurface
	overlay *fakeSurface
	mixer   *fakeMixer
	tl      Timeline
}

// newMultitrackFixture builds main = clipA [0,10), overlay = clipC [0,2),
// audio = clipB [0,3).
func newMultitrackFixture(t *testing.T) *multitrackFixture {
	t.Helper()
	f := &multitrackFixture{
		main:    newFakeSurface(surface.Main),
		overlay: newFakeSurface(surface.Overlay),
		mixer:   &fakeMixer{},
	}
	f.tl = Timeline{
		Main:    segmentsOf(timeline.Placement{InstanceID: "m0", SourceClipID: "clipA", TrimIn: 0, TrimOut: 10, TrackID: "v1"}),
		Overlay: segmentsOf(timeline.Placement{InstanceID: "o0", SourceClipID: "clipC", TrimIn: 0, TrimOut: 2, TrackID: "v2"}),
		Audio:   segmentsOf(timeline.Placement{InstanceID: "a0", SourceClipID: "clipB", TrimIn: 0, TrimOut: 3, TrackID: "a1"}),
		Total:   10,
		Gains:   map[string]float64{"a1": 0.8},
	}
	f.m = NewMultitrack(f.main, f.overlay, f.mixer, PreviewOptions{})
	f.m.SetTimeline(f.tl, true)
	return f
}

func mainNotify(f *multitrackFixture, kind surface.NotificationKind, t float64) {
	f.m.HandleNotification(surface.Notification{Surface: surface.Main, Kind: kind, RequestID: f.m.Main().RequestID(), Time: t})
}

func overlayNotify(f *multitrackFixture, kind surface.NotificationKind, t float64) {
	f.m.HandleNotification(surface.Notification{Surface: surface.Overlay, Kind: kind, RequestID: f.m.Overlay().RequestID(), Time: t})
}

func TestMultitrack_Setup(t *testing.T) {
	f := newMultitrackFixture(t)

	for _, surf := range []*fakeSurface{f.main, f.overlay} {
		if surf.count("mute") != 1 || surf.commands[0].Op != "mute" || !surf.commands[0].Muted {
			t.Errorf("%s surface not muted before its first load: %+v", surf.name, surf.commands)
		}
	}
	if load, _ := f.main.lastOf("load"); load.ClipID != "clipA" {
		t.Errorf("main load = %+v", load)
	}
	if load, _ := f.overlay.lastOf("load"); load.ClipID != "clipC" {
		t.Errorf("overlay load = %+v", load)
	}
	if f.mixer.gains["a1"] != 0.8 {
		t.Errorf("mixer gains = %v", f.mixer.gains)
	}
	if len(f.mixer.lastSegs) != 2 {
		t.Errorf("mixer voices %d segments, want audio + overlay", len(f.mixer.lastSegs))
	}
	if f.m.Status().Handles != 2 {
		t.Errorf("Status().Handles = %d, want 2", f.m.Status().Handles)
	}
}

func TestMultitrack_PlayOrdersSurfacesAndMixer(t *testing.T) {
	f := newMultitrackFixture(t)

	if err := f.m.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if f.mixer.lastCall() != "start" {
		t.Errorf("mixer calls = %v, want start last", f.mixer.calls)
	}

	// Surfaces need not be ready together.
	mainNotify(f, surface.Ready, 0)
	if f.m.Main().State() != StatePlaying {
		t.Errorf("main state = %v, want playing", f.m.Main().State())
	}
	if f.m.Overlay().State() != StateLoading {
		t.Errorf("overlay state = %v, want still loading", f.m.Overlay().State())
	}
	overlayNotify(f, surface.Ready, 0)
	if f.m.Overlay().State() != StatePlaying {
		t.Errorf("overlay state = %v, want playing", f.m.Overlay().State())
	}
}

func TestMultitrack_OverlayFollowsClock(t *testing.T) {
	f := newMultitrackFixture(t)
	f.m.Play()
	mainNotify(f, surface.Ready, 0)
	overlayNotify(f, surface.Ready, 0)

	overlayNotify(f, surface.TimeUpdate, 0.9)
	seeks := f.overlay.count("seek")
	mainNotify(f, surface.TimeUpdate, 1.0)

	if f.overlay.count("seek") != seeks {
		t.Error("overlay re-seeked within follow tolerance")
	}
	if f.mixer.lastPos != 1.0 || !f.mixer.lastPlaying {
		t.Errorf("mixer synced to %v playing %v", f.mixer.lastPos, f.mixer.lastPlaying)
	}

	mainNotify(f, surface.TimeUpdate, 2.5)

	if f.m.Overlay().ActiveIndex() != -1 {
		t.Errorf("overlay active index = %d past its segment", f.m.Overlay().ActiveIndex())
	}
	if f.overlay.last().Op != "pause" {
		t.Errorf("overlay last command = %q, want pause", f.overlay.last().Op)
	}
	if f.m.Position() != 2.5 {
		t.Errorf("position = %v, followers must not move the clock", f.m.Position())
	}
}

func TestMultitrack_OverlayDriftReseeks(t *testing.T) {
	f := newMultitrackFixture(t)
	f.m.Play()
	mainNotify(f, surface.Ready, 0)
	overlayNotify(f, surface.Ready, 0)

	overlayNotify(f, surface.TimeUpdate, 0.2)
	mainNotify(f, surface.TimeUpdate, 1.2)

	seek, ok := f.overlay.lastOf("seek")
	if !ok || seek.At != 1.2 {
		t.Errorf("overlay seek = %+v, want 1.2", seek)
	}
}

func TestMultitrack_SurfaceErrorHaltsEverything(t *testing.T) {
	f := newMultitrackFixture(t)
	f.m.Play()
	mainNotify(f, surface.Ready, 0)
	overlayNotify(f, surface.Ready, 0)

	f.m.HandleNotification(surface.Notification{
		Surface: surface.Overlay, Kind: surface.Error, RequestID: f.m.Overlay().RequestID(), Message: "bad codec",
	})

	if f.m.Playing() {
		t.Error("still playing after overlay failure")
	}
	if f.main.last().Op != "pause" {
		t.Errorf("main last command = %q, want pause", f.main.last().Op)
	}
	if f.mixer.lastCall() == "start" {
		t.Errorf("mixer not paused: %v", f.mixer.calls)
	}
	if f.m.Status().LastError == "" {
		t.Error("Status().LastError empty")
	}
	if err := f.m.Play(); !errors.Is(err, ErrSurfaceFailed) {
		t.Errorf("Play() = %v, want ErrSurfaceFailed", err)
	}

	f.m.Seek(1)
	if f.m.Overlay().State() == StateError {
		t.Error("seek did not clear overlay error")
	}
}

func TestMultitrack_AudioNotificationsGoToMixer(t *testing.T) {
	f := newMultitrackFixture(t)
	n := surface.Notification{Surface: "audio:a0", Kind: surface.TimeUpdate, Time: 1}
	f.m.HandleNotification(n)

	if len(f.mixer.observed) != 1 || f.mixer.observed[0] != n {
		t.Errorf("mixer observed %+v", f.mixer.observed)
	}
}

func TestMultitrack_Release(t *testing.T) {
	f := newMultitrackFixture(t)
	if err := f.m.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if f.main.last().Op != "release" || f.overlay.last().Op != "release" {
		t.Error("surfaces not released")
	}
	if f.mixer.lastCall() != "release" || f.m.Status().Handles != 0 {
		t.Error("mixer handles not released")
	}
}

func TestMultitrack_ReloadRebuildsEverything(t *testing.T) {
	f := newMultitrackFixture(t)
	mainLoads, overlayLoads := f.main.count("load"), f.overlay.count("load")

	f.m.Reload()

	if f.main.count("load") != mainLoads+1 || f.overlay.count("load") != overlayLoads+1 {
		t.Errorf("loads main %d overlay %d, want one more each", f.main.count("load"), f.overlay.count("load"))
	}
	if f.main.count("mute") != 2 || f.overlay.count("mute") != 2 {
		t.Errorf("mute counts main %d overlay %d, want 2 each", f.main.count("mute"), f.overlay.count("mute"))
	}
	n := len(f.mixer.calls)
	if n < 2 || f.mixer.calls[n-2] != "release" || f.mixer.calls[n-1] != "reconcile" {
		t.Errorf("mixer calls = %v, want release then reconcile", f.mixer.calls)
	}
}
