package playback

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/surface"
	"github.com/framecut/framecut-engine/internal/timeline"
)

type DriverOptions struct {
	// Epsilon is the position delta below which seeks and playhead updates
	// are suppressed.
	Epsilon float64
	// Follower drivers never move the clock; they track it.
	Follower        bool
	FollowTolerance float64
	Resolve         SourceResolver
	OnEvent         func(Event)
	Logger          *slog.Logger
}

// Driver keeps one media surface in step with the timeline clock. It is not
// safe for concurrent use; every call must come from the control thread.
type Driver struct {
	surface surface.Surface
	clock   *Clock
	opts    DriverOptions
	logger  *slog.Logger

	segments []timeline.Segment
	// active is the out-of-band segment index read by notification handlers.
	// It is written before any source-changing command is issued.
	active   int
	activeID string

	loadedClip  string
	requestID   uint64
	pending     float64
	hasPending  bool
	surfaceTime float64

	state     State
	buffering bool
	lastErr   error
	ended     bool
}

func NewDriver(s surface.Surface, clock *Clock, opts DriverOptions) *Driver {
	if opts.Epsilon <= 0 {
		opts.Epsilon = DefaultEpsilon
	}
	if opts.FollowTolerance <= 0 {
		opts.FollowTolerance = DefaultFollowTolerance
	}
	if opts.Resolve == nil {
		opts.Resolve = pathSource
	}
	logger := logging.WithComponent(logging.OrDiscard(opts.Logger), "playback")
	return &Driver{
		surface: s,
		clock:   clock,
		opts:    opts,
		logger:  logging.WithSurface(logger, s.Name()),
		active:  -1,
	}
}

func (d *Driver) Name() string {
	return d.surface.Name()
}

func (d *Driver) State() State {
	return d.state
}

func (d *Driver) ActiveIndex() int {
	return d.active
}

func (d *Driver) ActiveSegment() (timeline.Segment, bool) {
	if d.active < 0 || d.active >= len(d.segments) {
		return timeline.Segment{}, false
	}
	return d.segments[d.active], true
}

func (d *Driver) Buffering() bool {
	return d.buffering
}

func (d *Driver) LastError() error {
	return d.lastErr
}

func (d *Driver) Ended() bool {
	return d.ended
}

// RequestID is the id of the last load or seek issued to the surface.
func (d *Driver) RequestID() uint64 {
	return d.requestID
}

func (d *Driver) Status() SurfaceStatus {
	st := SurfaceStatus{
		Surface:     d.Name(),
		State:       d.state.String(),
		PlacementID: d.activeID,
		Buffering:   d.buffering,
		SurfaceTime: d.surfaceTime,
	}
	if d.lastErr != nil {
		st.LastError = d.lastErr.Error()
	}
	return st
}

// SetSegments installs a freshly derived segment list. A shape change drops
// every cached segment reference before the driver re-resolves by position.
func (d *Driver) SetSegments(segs []timeline.Segment, shapeChanged bool) {
	d.segments = segs
	if shapeChanged {
		d.active, d.activeID = -1, ""
		d.hasPending = false
		d.buffering = false
		d.ended = false
	}
	d.Reconcile()
}

// Reconcile resolves the active segment from the clock position by scanning
// the current segment list, then loads or seeks the surface as needed.
func (d *Driver) Reconcile() {
	if d.state == StateError {
		return
	}
	if len(d.segments) == 0 {
		d.deactivate()
		if d.loadedClip != "" {
			d.loadedClip = ""
			if err := d.surface.Clear(); err != nil {
				d.commandFailed(err)
			}
		}
		return
	}

	pos := d.clock.Position
	idx := timeline.IndexAt(d.segments, pos)
	var target float64
	switch {
	case idx >= 0:
		d.ended = false
		target = d.segments[idx].SourceTime(pos)
	case d.opts.Follower:
		d.deactivate()
		return
	default:
		// Past the end: park on the last frame.
		idx = len(d.segments) - 1
		d.ended = true
		target = d.segments[idx].SourceOut
	}

	d.activate(idx, target)
	d.applyPlayState()
}

// Seek moves the playhead to t and reconciles. Seeking is also how a driver
// leaves the Error state.
func (d *Driver) Seek(t float64) {
	if d.state == StateError {
		d.lastErr = nil
		d.loadedClip = ""
		d.setState(StateIdle)
	}
	if !d.opts.Follower {
		if math.IsNaN(t) {
			t = 0
		}
		d.clock.Position = t
		d.clock.clampPosition()
		d.ended = false
		d.emit(Event{Kind: EventPosition})
	}
	d.Reconcile()
}

// Reload forgets what the surface has loaded and reconciles from scratch. It
// is used when the platform surface was recreated behind the driver.
func (d *Driver) Reload() {
	d.lastErr = nil
	d.loadedClip = ""
	d.hasPending = false
	d.buffering = false
	d.setState(StateIdle)
	d.Reconcile()
}

func (d *Driver) Play() error {
	if d.state == StateError {
		return fmt.Errorf("%w: %v", ErrSurfaceFailed, d.lastErr)
	}
	if !d.opts.Follower {
		if len(d.segments) == 0 {
			return ErrNothingToPlay
		}
		if d.clock.Position >= timeline.TotalDuration(d.segments)-d.opts.Epsilon {
			d.clock.Position = 0
			d.emit(Event{Kind: EventPosition})
		}
		d.ended = false
	}
	d.clock.Playing = true
	d.Reconcile()
	if d.state == StateError {
		return d.lastErr
	}
	return nil
}

func (d *Driver) Pause() {
	d.clock.Playing = false
	if d.state == StatePlaying {
		if err := d.surface.Pause(); err != nil {
			d.commandFailed(err)
			return
		}
		d.setState(StatePaused)
	}
}

func (d *Driver) SetMuted(muted bool) error {
	return d.surface.SetMuted(muted)
}

// Release hands the surface back to the platform.
func (d *Driver) Release() error {
	d.active, d.activeID = -1, ""
	d.loadedClip = ""
	d.hasPending = false
	d.state = StateIdle
	return d.surface.Release()
}

// HandleNotification applies a surface notification. Notifications tagged
// with anything but the latest request are stale and dropped.
func (d *Driver) HandleNotification(n surface.Notification) {
	if n.RequestID != d.requestID {
		d.logger.Debug("stale notification discarded",
			"kind", n.Kind, "request_id", n.RequestID, "current_request_id", d.requestID)
		return
	}
	if d.state == StateError {
		return
	}

	switch n.Kind {
	case surface.Ready:
		d.onReady(n.Time)
	case surface.TimeUpdate:
		d.onTime(n.Time)
	case surface.Buffering:
		if d.buffering != n.Buffering {
			d.buffering = n.Buffering
			d.emit(Event{Kind: EventBuffering, Buffering: n.Buffering})
		}
	case surface.Ended:
		if d.state == StatePlaying && !d.opts.Follower {
			d.advance()
		}
	case surface.Error:
		d.fail(&SurfaceError{Surface: d.Name(), Message: n.Message})
	default:
		d.logger.Warn("unknown notification kind", "kind", n.Kind)
	}
}

func (d *Driver) onReady(t float64) {
	switch d.state {
	case StateLoading:
		d.surfaceTime = t
		if d.hasPending && math.Abs(t-d.pending) > d.opts.Epsilon {
			d.seek(d.pending)
			return
		}
	case StateSeeking:
		d.surfaceTime = t
	default:
		return
	}
	d.hasPending = false

	seg, ok := d.ActiveSegment()
	if !ok {
		d.setState(StateIdle)
		return
	}

	if !d.opts.Follower && !d.ended {
		mapped := seg.TimelineTime(t)
		if math.Abs(mapped-d.clock.Position) > d.opts.Epsilon {
			d.clock.Position = mapped
			d.clock.clampPosition()
			d.emit(Event{Kind: EventPosition})
		}
	}

	if d.clock.Playing && !d.ended {
		if err := d.surface.Play(); err != nil {
			d.commandFailed(err)
			return
		}
		d.setState(StatePlaying)
		return
	}
	d.setState(StatePaused)
}

func (d *Driver) onTime(t float64) {
	if d.state != StatePlaying && d.state != StatePaused {
		return
	}
	d.surfaceTime = t

	seg, ok := d.ActiveSegment()
	if !ok {
		return
	}
	if t >= seg.SourceOut-d.opts.Epsilon {
		if d.state == StatePlaying && !d.opts.Follower {
			d.advance()
		}
		return
	}
	if d.opts.Follower || d.state != StatePlaying {
		return
	}

	mapped := seg.TimelineTime(t)
	if mapped < d.clock.Position {
		return
	}
	if mapped-d.clock.Position > d.opts.Epsilon {
		d.clock.Position = mapped
		d.emit(Event{Kind: EventPosition})
	}
}

// advance moves playback onto the segment that starts where the active one
// ends, or stops at the end of the track.
func (d *Driver) advance() {
	cur, ok := d.ActiveSegment()
	if !ok {
		return
	}
	next := d.active + 1
	if next < len(d.segments) && d.segments[next].TimelineStart-cur.TimelineEnd <= d.opts.Epsilon {
		seg := d.segments[next]
		if seg.TimelineStart > d.clock.Position {
			d.clock.Position = seg.TimelineStart
		}
		d.emit(Event{Kind: EventPosition})
		d.activate(next, seg.SourceIn)
		d.applyPlayState()
		return
	}
	d.finish()
}

func (d *Driver) finish() {
	d.clock.Playing = false
	d.clock.Position = timeline.TotalDuration(d.segments)
	d.ended = true
	if err := d.surface.Pause(); err != nil {
		d.commandFailed(err)
		if d.state == StateError {
			return
		}
	}
	d.setState(StatePaused)
	d.logger.Info("playback reached end of timeline", "position", d.clock.Position)
	d.emit(Event{Kind: EventEnded})
}

func (d *Driver) activate(idx int, target float64) {
	seg := d.segments[idx]
	changed := seg.PlacementID != d.activeID
	d.active = idx
	d.activeID = seg.PlacementID
	if changed {
		d.emit(Event{Kind: EventSegment, PlacementID: seg.PlacementID})
	}

	switch {
	case seg.SourceClipID != d.loadedClip:
		d.load(seg, target)
	case d.state == StateLoading:
		d.pending, d.hasPending = target, true
	case d.state == StateIdle:
		d.seek(target)
	default:
		current := d.surfaceTime
		if d.hasPending {
			current = d.pending
		}
		tolerance := d.opts.Epsilon
		if d.opts.Follower && d.state == StatePlaying {
			tolerance = d.opts.FollowTolerance
		}
		if math.Abs(current-target) > tolerance {
			d.seek(target)
		}
	}
}

func (d *Driver) load(seg timeline.Segment, target float64) {
	d.requestID++
	d.loadedClip = seg.SourceClipID
	d.pending, d.hasPending = target, true
	d.buffering = false
	d.setState(StateLoading)

	req := surface.LoadRequest{
		RequestID: d.requestID,
		ClipID:    seg.SourceClipID,
		Source:    d.opts.Resolve(seg.SourceClipID, seg.SourcePath),
		At:        target,
	}
	d.logger.Debug("loading segment", "placement_id", seg.PlacementID, "request_id", req.RequestID, "at", target)

	if err := d.surface.Clear(); err != nil {
		d.commandFailed(err)
		return
	}
	if err := d.surface.Load(req); err != nil {
		d.commandFailed(err)
	}
}

func (d *Driver) seek(target float64) {
	d.requestID++
	d.pending, d.hasPending = target, true
	d.setState(StateSeeking)
	d.logger.Debug("seeking surface", "request_id", d.requestID, "at", target)
	if err := d.surface.Seek(surface.SeekRequest{RequestID: d.requestID, At: target}); err != nil {
		d.commandFailed(err)
	}
}

func (d *Driver) applyPlayState() {
	switch {
	case d.clock.Playing && d.state == StatePaused && !d.ended:
		if err := d.surface.Play(); err != nil {
			d.commandFailed(err)
			return
		}
		d.setState(StatePlaying)
	case !d.clock.Playing && d.state == StatePlaying:
		if err := d.surface.Pause(); err != nil {
			d.commandFailed(err)
			return
		}
		d.setState(StatePaused)
	}
}

func (d *Driver) deactivate() {
	if d.active < 0 && d.state == StateIdle {
		return
	}
	hadActive := d.active >= 0
	d.active, d.activeID = -1, ""
	d.hasPending = false
	if d.state == StatePlaying {
		if err := d.surface.Pause(); err != nil {
			d.commandFailed(err)
			return
		}
	}
	d.setState(StateIdle)
	if hadActive {
		d.emit(Event{Kind: EventSegment})
	}
}

// commandFailed handles a surface command that returned an error. An
// undelivered command leaves the driver as it was and forgets the loaded
// source, so the next reconcile or Reload issues a fresh load.
func (d *Driver) commandFailed(err error) {
	if errors.Is(err, surface.ErrUndelivered) {
		d.logger.Debug("surface command not delivered", "error", err)
		d.loadedClip = ""
		d.hasPending = false
		return
	}
	d.fail(err)
}

func (d *Driver) fail(err error) {
	var se *SurfaceError
	if !errors.As(err, &se) {
		err = &SurfaceError{Surface: d.Name(), Message: err.Error()}
	}
	d.lastErr = err
	d.hasPending = false
	d.buffering = false
	d.clock.Playing = false
	d.setState(StateError)
	if perr := d.surface.Pause(); perr != nil {
		d.logger.Debug("pause after failure not delivered", "error", perr)
	}
	d.logger.Error("media surface failed", "error", err)
	d.emit(Event{Kind: EventError, Error: err.Error()})
}

func (d *Driver) setState(s State) {
	if d.state == s {
		return
	}
	d.state = s
	d.emit(Event{Kind: EventState, State: s.String()})
}

func (d *Driver) emit(e Event) {
	if d.opts.OnEvent == nil {
		return
	}
	e.Surface = d.Name()
	e.Position = d.clock.Position
	e.Playing = d.clock.Playing
	d.opts.OnEvent(e)
}
