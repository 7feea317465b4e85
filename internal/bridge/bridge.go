// Package bridge implements media surfaces and the mix graph on top of the
// event hub: every command is published to the desktop shell, which owns the
// real decoders and reports back with notifications.
package bridge

import (
	"fmt"
	"log/slog"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/surface"
)

// TypeCommand is the outbound message type of every bridge command.
const TypeCommand = "command"

var ErrNotConnected = fmt.Errorf("no shell connected to receive commands: %w", surface.ErrUndelivered)

// Transport delivers commands to connected shells.
type Transport interface {
	Publish(kind string, payload any)
	ClientCount() int
}

// Command is one instruction for a remote surface or mix graph node.
type Command struct {
	Target    string  `json:"target"`
	Op        string  `json:"op"`
	RequestID uint64  `json:"request_id,omitempty"`
	ClipID    string  `json:"clip_id,omitempty"`
	Source    string  `json:"source,omitempty"`
	At        float64 `json:"at"`
	Muted     bool    `json:"muted,omitempty"`
	Level     float64 `json:"level"`
	Node      string  `json:"node,omitempty"`
}

type sender struct {
	transport Transport
	logger    *slog.Logger
}

func (s sender) send(cmd Command) error {
	if s.transport.ClientCount() == 0 {
		s.logger.Debug("command not delivered", "target", cmd.Target, "op", cmd.Op)
		return ErrNotConnected
	}
	s.transport.Publish(TypeCommand, cmd)
	return nil
}

// RemoteSurface is a video surface rendered by the shell.
type RemoteSurface struct {
	name string
	sender
}

func NewRemoteSurface(name string, t Transport, logger *slog.Logger) *RemoteSurface {
	return &RemoteSurface{
		name:   name,
		sender: sender{transport: t, logger: logging.WithSurface(logging.OrDiscard(logger), name)},
	}
}

func (s *RemoteSurface) Name() string {
	return s.name
}

func (s *RemoteSurface) Load(req surface.LoadRequest) error {
	return s.send(Command{Target: s.name, Op: "load", RequestID: req.RequestID, ClipID: req.ClipID, Source: req.Source, At: req.At})
}

func (s *RemoteSurface) Clear() error {
	return s.send(Command{Target: s.name, Op: "clear"})
}

func (s *RemoteSurface) Seek(req surface.SeekRequest) error {
	return s.send(Command{Target: s.name, Op: "seek", RequestID: req.RequestID, At: req.At})
}

func (s *RemoteSurface) Play() error {
	return s.send(Command{Target: s.name, Op: "play"})
}

func (s *RemoteSurface) Pause() error {
	return s.send(Command{Target: s.name, Op: "pause"})
}

func (s *RemoteSurface) SetMuted(muted bool) error {
	return s.send(Command{Target: s.name, Op: "mute", Muted: muted})
}

func (s *RemoteSurface) Release() error {
	return s.send(Command{Target: s.name, Op: "release"})
}
