// Package engine runs the timeline control thread. Every placement mutation,
// transport command, trim gesture and surface notification is applied on one
// goroutine, in arrival order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/framecut/framecut-engine/internal/gesture"
	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/playback"
	"github.com/framecut/framecut-engine/internal/surface"
	"github.com/framecut/framecut-engine/internal/timeline"
)

var ErrEngineStopped = errors.New("engine stopped")

const notificationBuffer = 256

// Event names published in addition to the playback event kinds.
const (
	EventTimeline = "timeline"
)

// PlayheadStore persists the playhead per preview context.
type PlayheadStore interface {
	LoadPlayhead(ctx context.Context, previewContext string) (float64, error)
	SavePlayhead(ctx context.Context, previewContext string, position float64) error
}

// Publisher fans engine events out to connected clients. Publish must not
// block.
type Publisher interface {
	Publish(kind string, payload any)
}

type Options struct {
	// Mode is playback.ModeSingle or playback.ModeMultitrack.
	Mode     string
	Main     surface.Surface
	Overlay  surface.Surface
	Mixer    playback.AudioMixer
	Playback playback.PreviewOptions
	Gesture  gesture.Options

	Playhead  PlayheadStore
	Publisher Publisher
	Logger    *slog.Logger
}

// TimelineEvent is published after every committed timeline change.
type TimelineEvent struct {
	Change  string  `json:"change"`
	TrackID string  `json:"track_id,omitempty"`
	Total   float64 `json:"total"`
}

// Snapshot is the outbound state read by transport and overlay UIs.
type Snapshot struct {
	playback.Status
	SessionID string               `json:"session_id"`
	Broken    []timeline.Placement `json:"broken_placements,omitempty"`
	Gesture   *gesture.Candidate   `json:"gesture,omitempty"`
}

// Engine owns the timeline session, one preview context and the gesture
// engine.
type Engine struct {
	session  *timeline.Session
	preview  playback.Preview
	gestures *gesture.Engine
	playhead PlayheadStore
	pub      Publisher
	logger   *slog.Logger

	cmds    chan func()
	notes   chan surface.Notification
	done    chan struct{}
	started chan struct{}
}

func New(session *timeline.Session, opts Options) (*Engine, error) {
	if session == nil {
		return nil, errors.New("engine requires a timeline session")
	}
	if opts.Main == nil {
		return nil, errors.New("engine requires a main surface")
	}
	logger := logging.WithComponent(logging.OrDiscard(opts.Logger), "engine")

	e := &Engine{
		session:  session,
		playhead: opts.Playhead,
		pub:      opts.Publisher,
		logger:   logger,
		cmds:     make(chan func()),
		notes:    make(chan surface.Notification, notificationBuffer),
		done:     make(chan struct{}),
		started:  make(chan struct{}),
	}

	popts := opts.Playback
	if popts.Logger == nil {
		popts.Logger = opts.Logger
	}
	popts.OnEvent = e.handleEvent

	switch opts.Mode {
	case playback.ModeSingle, "":
		e.preview = playback.NewSingle(opts.Main, popts)
	case playback.ModeMultitrack:
		if opts.Overlay == nil || opts.Mixer == nil {
			return nil, errors.New("multitrack preview requires an overlay surface and a mixer")
		}
		e.preview = playback.NewMultitrack(opts.Main, opts.Overlay, opts.Mixer, popts)
	default:
		return nil, fmt.Errorf("unknown preview mode %q", opts.Mode)
	}

	gopts := opts.Gesture
	if gopts.Logger == nil {
		gopts.Logger = opts.Logger
	}
	e.gestures = gesture.New(session, gopts)

	session.Subscribe(e.onChange)
	return e, nil
}

func (e *Engine) Mode() string {
	return e.preview.Mode()
}

func (e *Engine) Session() *timeline.Session {
	return e.session
}

// Run applies commands and notifications until ctx is cancelled, then
// releases every surface and mixer handle.
func (e *Engine) Run(ctx context.Context) error {
	e.restore(ctx)
	close(e.started)
	e.logger.Info("engine started", "mode", e.preview.Mode(), "session_id", e.session.ID())

	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			e.stop()
			return nil
		case fn := <-e.cmds:
			fn()
		case n := <-e.notes:
			e.preview.HandleNotification(n)
		}
	}
}

// Started is closed once Run has installed the timeline.
func (e *Engine) Started() <-chan struct{} {
	return e.started
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Notify queues a surface notification. Time updates are dropped when the
// queue is full since the next one supersedes them; every other kind waits
// for room so a ready, ended or error report is never lost.
func (e *Engine) Notify(n surface.Notification) error {
	select {
	case <-e.done:
		return ErrEngineStopped
	default:
	}
	if n.Kind == surface.TimeUpdate {
		select {
		case e.notes <- n:
		default:
			e.logger.Debug("notification queue full, dropping time update", "surface", n.Surface)
		}
		return nil
	}
	select {
	case e.notes <- n:
		return nil
	case <-e.done:
		return ErrEngineStopped
	}
}

// do runs fn on the control thread and waits for its result.
func (e *Engine) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case e.cmds <- func() { errc <- fn() }:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) restore(ctx context.Context) {
	e.refresh(timeline.Change{Kind: timeline.ChangeShape})
	if e.playhead == nil {
		return
	}
	pos, err := e.playhead.LoadPlayhead(ctx, e.preview.Mode())
	if err != nil {
		e.logger.Warn("failed to restore playhead", "error", err)
		return
	}
	if pos > 0 {
		e.preview.Seek(pos)
		e.logger.Info("playhead restored", "position", pos)
	}
}

func (e *Engine) stop() {
	e.gestures.Abort()
	e.preview.Pause()
	e.savePlayhead(context.Background())
	if err := e.preview.Release(); err != nil {
		e.logger.Warn("failed to release preview", "error", err)
	}
	e.logger.Info("engine stopped", "position", e.preview.Position())
}

// onChange runs synchronously inside whichever session call committed the
// change. Mutations only happen on the control thread, so it does too.
func (e *Engine) onChange(c timeline.Change) {
	select {
	case <-e.started:
	default:
		return
	}
	e.refresh(c)
}

func (e *Engine) refresh(c timeline.Change) {
	tl := playback.Timeline{
		Main:    e.session.MainSegments(),
		Overlay: e.session.SegmentsOf(timeline.TrackOverlay),
		Audio:   e.session.SegmentsOf(timeline.TrackAudio),
		Total:   e.session.TotalDuration(),
		Gains:   e.session.TrackGains(),
	}
	e.preview.SetTimeline(tl, c.Kind == timeline.ChangeShape)
	e.publish(EventTimeline, TimelineEvent{Change: c.Kind.String(), TrackID: c.TrackID, Total: tl.Total})
}

func (e *Engine) handleEvent(ev playback.Event) {
	e.publish(string(ev.Kind), ev)
	if ev.Kind == playback.EventEnded {
		e.savePlayhead(context.Background())
	}
}

func (e *Engine) publish(kind string, payload any) {
	if e.pub != nil {
		e.pub.Publish(kind, payload)
	}
}

func (e *Engine) savePlayhead(ctx context.Context) {
	if e.playhead == nil {
		return
	}
	if err := e.playhead.SavePlayhead(ctx, e.preview.Mode(), e.preview.Position()); err != nil {
		e.logger.Warn("failed to save playhead", "error", err)
	}
}
