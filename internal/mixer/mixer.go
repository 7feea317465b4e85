package mixer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/surface"
	"github.com/framecut/framecut-engine/internal/timeline"
)

const (
	DefaultEpsilon        = 0.05
	DefaultDriftTolerance = 0.25
	DefaultGain           = 0.5
)

type Options struct {
	// DefaultGain is the level of tracks without an override.
	DefaultGain float64
	Epsilon     float64
	// DriftTolerance is how far a running source may wander from the playhead
	// before it is re-seeked.
	DriftTolerance float64
	Resolve        func(clipID, sourcePath string) string
	Logger         *slog.Logger
}

// Handle is one active segment's decode source and gain stage.
type Handle struct {
	RequestID uint64
	Segment   timeline.Segment
	Decoder   Decoder
	Gain      Gain

	level   float64
	started bool
	failed  bool
}

func (h *Handle) ID() string {
	return HandlePrefix + h.Segment.PlacementID
}

// Mixer owns every decode and gain handle of a multitrack preview. It is not
// safe for concurrent use.
type Mixer struct {
	graph  Graph
	opts   Options
	logger *slog.Logger

	handles map[string]*Handle
	gains   map[string]float64
	nextID  uint64
	running bool
}

func New(graph Graph, opts Options) *Mixer {
	if opts.DefaultGain < 0 {
		opts.DefaultGain = DefaultGain
	}
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.DriftTolerance <= 0 {
		opts.DriftTolerance = DefaultDriftTolerance
	}
	if opts.Resolve == nil {
		opts.Resolve = func(_, sourcePath string) string { return sourcePath }
	}
	return &Mixer{
		graph:   graph,
		opts:    opts,
		logger:  logging.WithComponent(logging.OrDiscard(opts.Logger), "mixer"),
		handles: make(map[string]*Handle),
		gains:   make(map[string]float64),
	}
}

// SetGains replaces the per-track levels and applies them to live handles.
func (m *Mixer) SetGains(gains map[string]float64) {
	m.gains = make(map[string]float64, len(gains))
	for id, g := range gains {
		m.gains[id] = g
	}
	for _, h := range m.handles {
		m.applyLevel(h)
	}
}

// Level returns the gain applied to segments of trackID.
func (m *Mixer) Level(trackID string) float64 {
	if g, ok := m.gains[trackID]; ok {
		return g
	}
	return m.opts.DefaultGain
}

func (m *Mixer) HandleCount() int {
	return len(m.handles)
}

// Handle returns the live handle for placementID.
func (m *Mixer) Handle(placementID string) (*Handle, bool) {
	h, ok := m.handles[placementID]
	return h, ok
}

// Reconcile brings the handle set in line with the segments under position:
// handles whose segment left the playhead are destroyed, newly covered
// segments get a handle, and surviving handles are re-synced when they drift.
func (m *Mixer) Reconcile(segs []timeline.Segment, position float64, playing bool) error {
	var errs []error
	if playing && !m.running {
		if err := m.resume(); err != nil {
			return err
		}
	}
	errs = append(errs, m.sync(segs, position, playing)...)
	if playing {
		errs = append(errs, m.startAll(position)...)
	} else {
		errs = append(errs, m.stopAll()...)
	}
	return errors.Join(errs...)
}

// Start resumes the graph, attaches and syncs every active source and only
// then starts them.
func (m *Mixer) Start(segs []timeline.Segment, position float64) error {
	if err := m.resume(); err != nil {
		return err
	}
	errs := m.sync(segs, position, false)
	errs = append(errs, m.startAll(position)...)
	return errors.Join(errs...)
}

// Pause stops every source but keeps the handles for a quick resume.
func (m *Mixer) Pause() error {
	return errors.Join(m.stopAll()...)
}

// Observe applies a notification from one of the mixer's decoders.
func (m *Mixer) Observe(n surface.Notification) {
	id, ok := strings.CutPrefix(n.Surface, HandlePrefix)
	if !ok {
		m.logger.Debug("notification for unknown surface", "surface", n.Surface)
		return
	}
	h, ok := m.handles[id]
	if !ok || h.RequestID != n.RequestID {
		m.logger.Debug("stale notification discarded", "surface", n.Surface, "kind", n.Kind, "request_id", n.RequestID)
		return
	}

	switch n.Kind {
	case surface.TimeUpdate, surface.Ready:
		h.Decoder.Report(n.Time)
	case surface.Ended:
		h.started = false
	case surface.Error:
		h.failed = true
		h.started = false
		m.logger.Error("audio source failed", "placement_id", id, "error", n.Message)
	}
}

// Release destroys every handle.
func (m *Mixer) Release() error {
	var errs []error
	for id, h := range m.handles {
		errs = append(errs, m.destroy(h))
		delete(m.handles, id)
	}
	m.running = false
	return errors.Join(errs...)
}

func (m *Mixer) resume() error {
	if err := m.graph.Resume(); err != nil {
		return fmt.Errorf("failed to resume mix graph: %w", err)
	}
	m.running = true
	return nil
}

func (m *Mixer) sync(segs []timeline.Segment, position float64, playing bool) []error {
	active := timeline.ActiveAt(segs, position)
	want := make(map[string]bool, len(active))
	for _, seg := range active {
		want[seg.PlacementID] = true
	}

	var errs []error
	for id, h := range m.handles {
		if !want[id] {
			errs = append(errs, m.destroy(h))
			delete(m.handles, id)
		}
	}

	for _, seg := range active {
		target := seg.SourceTime(position)
		h, ok := m.handles[seg.PlacementID]
		if !ok {
			created, err := m.create(seg, target)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			m.handles[seg.PlacementID] = created
			continue
		}

		h.Segment = seg
		m.applyLevel(h)
		tolerance := m.opts.Epsilon
		if playing && h.started {
			tolerance = m.opts.DriftTolerance
		}
		if math.Abs(h.Decoder.Position()-target) > tolerance {
			if err := h.Decoder.Seek(target); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

func (m *Mixer) create(seg timeline.Segment, target float64) (*Handle, error) {
	m.nextID++
	h := &Handle{RequestID: m.nextID, Segment: seg, level: m.Level(seg.TrackID)}

	dec, err := m.graph.NewSource(SourceRequest{
		RequestID: h.RequestID,
		HandleID:  h.ID(),
		ClipID:    seg.SourceClipID,
		Source:    m.opts.Resolve(seg.SourceClipID, seg.SourcePath),
		At:        target,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create audio source for %s: %w", seg.PlacementID, err)
	}
	h.Decoder = dec

	gain, err := m.graph.NewGain(h.ID(), h.level)
	if err != nil {
		err = fmt.Errorf("failed to create gain for %s: %w", seg.PlacementID, err)
		return nil, errors.Join(err, dec.Release())
	}
	h.Gain = gain

	if err := errors.Join(dec.Connect(gain), gain.ConnectDestination()); err != nil {
		err = fmt.Errorf("failed to route audio for %s: %w", seg.PlacementID, err)
		return nil, errors.Join(err, m.destroy(h))
	}

	m.logger.Debug("audio handle created", "placement_id", seg.PlacementID, "at", target, "gain", h.level)
	return h, nil
}

func (m *Mixer) destroy(h *Handle) error {
	var errs []error
	if h.started {
		errs = append(errs, h.Decoder.Stop())
		h.started = false
	}
	if h.Gain != nil {
		errs = append(errs, h.Gain.Disconnect())
	}
	errs = append(errs, h.Decoder.Release())
	if h.Gain != nil {
		errs = append(errs, h.Gain.Release())
	}
	m.logger.Debug("audio handle destroyed", "placement_id", h.Segment.PlacementID)
	return errors.Join(errs...)
}

func (m *Mixer) startAll(position float64) []error {
	var errs []error
	for _, h := range m.handles {
		if h.started || h.failed {
			continue
		}
		if err := h.Decoder.Start(h.Segment.SourceTime(position)); err != nil {
			errs = append(errs, err)
			continue
		}
		h.started = true
	}
	return errs
}

func (m *Mixer) stopAll() []error {
	var errs []error
	for _, h := range m.handles {
		if !h.started {
			continue
		}
		if err := h.Decoder.Stop(); err != nil {
			errs = append(errs, err)
		}
		h.started = false
	}
	return errs
}

func (m *Mixer) applyLevel(h *Handle) {
	level := m.Level(h.Segment.TrackID)
	if level == h.level {
		return
	}
	if err := h.Gain.SetLevel(level); err != nil {
		m.logger.Warn("failed to set gain", "placement_id", h.Segment.PlacementID, "error", err)
		return
	}
	h.level = level
}
