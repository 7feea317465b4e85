package playback

import (
	"errors"
	"log/slog"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/surface"
	"github.com/framecut/framecut-engine/internal/timeline"
)

const (
	ModeSingle     = "single"
	ModeMultitrack = "multitrack"
)

// Timeline is the derived state a preview context plays from.
type Timeline struct {
	Main    []timeline.Segment
	Overlay []timeline.Segment
	Audio   []timeline.Segment
	Total   float64
	Gains   map[string]float64
}

// AudioSources returns the segments the mixer voices: audio tracks plus
// overlay tracks.
func (t Timeline) AudioSources() []timeline.Segment {
	out := make([]timeline.Segment, 0, len(t.Audio)+len(t.Overlay))
	out = append(out, t.Audio...)
	return append(out, t.Overlay...)
}

// Preview is one preview context: it owns the playhead for its surfaces.
type Preview interface {
	Mode() string
	SetTimeline(tl Timeline, shapeChanged bool)
	Seek(t float64)
	Reload()
	Play() error
	Pause()
	HandleNotification(n surface.Notification)
	Position() float64
	Playing() bool
	Status() Status
	Release() error
}

// AudioMixer is the part of the mixer a multitrack preview drives.
type AudioMixer interface {
	SetGains(gains map[string]float64)
	Reconcile(segs []timeline.Segment, position float64, playing bool) error
	Start(segs []timeline.Segment, position float64) error
	Pause() error
	Observe(n surface.Notification)
	HandleCount() int
	Release() error
}

type PreviewOptions struct {
	Epsilon         float64
	FollowTolerance float64
	Resolve         SourceResolver
	OnEvent         func(Event)
	Logger          *slog.Logger
}

func (o PreviewOptions) driverOptions(follower bool) DriverOptions {
	return DriverOptions{
		Epsilon:         o.Epsilon,
		Follower:        follower,
		FollowTolerance: o.FollowTolerance,
		Resolve:         o.Resolve,
		OnEvent:         o.OnEvent,
		Logger:          o.Logger,
	}
}

// Single drives the single-track preview: the main track on one unmuted
// surface.
type Single struct {
	clock  Clock
	driver *Driver
}

func NewSingle(main surface.Surface, opts PreviewOptions) *Single {
	s := &Single{}
	s.driver = NewDriver(main, &s.clock, opts.driverOptions(false))
	return s
}

func (s *Single) Mode() string {
	return ModeSingle
}

func (s *Single) SetTimeline(tl Timeline, shapeChanged bool) {
	s.clock.Total = timeline.TotalDuration(tl.Main)
	s.clock.clampPosition()
	s.driver.SetSegments(tl.Main, shapeChanged)
}

func (s *Single) Seek(t float64) {
	s.driver.Seek(t)
}

func (s *Single) Reload() {
	s.driver.Reload()
}

func (s *Single) Play() error {
	return s.driver.Play()
}

func (s *Single) Pause() {
	s.driver.Pause()
}

func (s *Single) HandleNotification(n surface.Notification) {
	s.driver.HandleNotification(n)
}

func (s *Single) Position() float64 {
	return s.clock.Position
}

func (s *Single) Playing() bool {
	return s.clock.Playing
}

func (s *Single) Driver() *Driver {
	return s.driver
}

func (s *Single) Status() Status {
	st := s.driver.Status()
	return Status{
		Mode:      ModeSingle,
		Position:  s.clock.Position,
		Playing:   s.clock.Playing,
		Total:     s.clock.Total,
		Buffering: st.Buffering,
		LastError: st.LastError,
		Surfaces:  []SurfaceStatus{st},
	}
}

func (s *Single) Release() error {
	s.clock.Playing = false
	return s.driver.Release()
}

// Multitrack drives a muted main surface, a muted overlay surface that follows
// the shared clock, and the audio mixer.
type Multitrack struct {
	clock   Clock
	main    *Driver
	overlay *Driver
	mixer   AudioMixer
	tl      Timeline
	logger  *slog.Logger
}

func NewMultitrack(main, overlay surface.Surface, mixer AudioMixer, opts PreviewOptions) *Multitrack {
	m := &Multitrack{
		mixer:  mixer,
		logger: logging.WithComponent(logging.OrDiscard(opts.Logger), "multitrack"),
	}
	m.main = NewDriver(main, &m.clock, opts.driverOptions(false))
	m.overlay = NewDriver(overlay, &m.clock, opts.driverOptions(true))
	m.muteSurfaces()
	return m
}

// muteSurfaces silences both video surfaces; audio comes only from the mixer.
func (m *Multitrack) muteSurfaces() {
	for _, d := range []*Driver{m.main, m.overlay} {
		if err := d.SetMuted(true); err != nil {
			m.logger.Warn("failed to mute surface", "surface", d.Name(), "error", err)
		}
	}
}

func (m *Multitrack) Mode() string {
	return ModeMultitrack
}

func (m *Multitrack) Main() *Driver {
	return m.main
}

func (m *Multitrack) Overlay() *Driver {
	return m.overlay
}

func (m *Multitrack) SetTimeline(tl Timeline, shapeChanged bool) {
	m.tl = tl
	m.clock.Total = tl.Total
	m.clock.clampPosition()
	m.mixer.SetGains(tl.Gains)
	m.main.SetSegments(tl.Main, shapeChanged)
	m.overlay.SetSegments(tl.Overlay, shapeChanged)
	m.syncAudio()
}

func (m *Multitrack) Seek(t float64) {
	m.main.Seek(t)
	m.overlay.Seek(t)
	m.syncAudio()
}

// Reload re-issues every load and rebuilds the audio handles.
func (m *Multitrack) Reload() {
	m.main.Reload()
	m.overlay.Reload()
	m.muteSurfaces()
	if err := m.mixer.Release(); err != nil {
		m.logger.Debug("stale audio handles not released", "error", err)
	}
	if m.clock.Playing {
		if err := m.mixer.Start(m.tl.AudioSources(), m.clock.Position); err != nil {
			m.logger.Warn("mixer start failed", "error", err)
		}
		return
	}
	m.syncAudio()
}

func (m *Multitrack) Play() error {
	if m.overlay.State() == StateError {
		return m.overlay.Play()
	}
	if err := m.main.Play(); err != nil {
		return err
	}
	if !m.clock.Playing {
		return nil
	}
	if err := m.overlay.Play(); err != nil {
		m.Pause()
		return err
	}
	if err := m.mixer.Start(m.tl.AudioSources(), m.clock.Position); err != nil {
		m.logger.Warn("mixer start failed", "error", err)
	}
	return nil
}

func (m *Multitrack) Pause() {
	m.main.Pause()
	m.overlay.Pause()
	if err := m.mixer.Pause(); err != nil {
		m.logger.Warn("mixer pause failed", "error", err)
	}
}

// HandleNotification routes a notification to the surface it came from and
// lets the other voices catch up with any clock movement it caused.
func (m *Multitrack) HandleNotification(n surface.Notification) {
	before, wasPlaying := m.clock.Position, m.clock.Playing

	switch n.Surface {
	case m.main.Name():
		m.main.HandleNotification(n)
	case m.overlay.Name():
		m.overlay.HandleNotification(n)
	default:
		m.mixer.Observe(n)
		return
	}

	if wasPlaying && !m.clock.Playing {
		m.Pause()
	}
	if m.clock.Position != before {
		m.overlay.Reconcile()
		m.syncAudio()
	}
}

func (m *Multitrack) syncAudio() {
	if err := m.mixer.Reconcile(m.tl.AudioSources(), m.clock.Position, m.clock.Playing); err != nil {
		m.logger.Warn("mixer reconcile failed", "error", err)
	}
}

func (m *Multitrack) Position() float64 {
	return m.clock.Position
}

func (m *Multitrack) Playing() bool {
	return m.clock.Playing
}

func (m *Multitrack) Status() Status {
	mainSt, overlaySt := m.main.Status(), m.overlay.Status()
	st := Status{
		Mode:      ModeMultitrack,
		Position:  m.clock.Position,
		Playing:   m.clock.Playing,
		Total:     m.clock.Total,
		Buffering: mainSt.Buffering || overlaySt.Buffering,
		Surfaces:  []SurfaceStatus{mainSt, overlaySt},
		Handles:   m.mixer.HandleCount(),
	}
	switch {
	case mainSt.LastError != "":
		st.LastError = mainSt.LastError
	case overlaySt.LastError != "":
		st.LastError = overlaySt.LastError
	}
	return st
}

// Release frees both surfaces and every mixer handle.
func (m *Multitrack) Release() error {
	m.clock.Playing = false
	return errors.Join(m.mixer.Release(), m.main.Release(), m.overlay.Release())
}
