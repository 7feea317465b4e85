// Package surface defines the contract between the timeline engine and the
// platform decode/render primitives it drives. Every command is
// fire-and-forget; completion is only observed through a later Notification
// carrying the RequestID of the command the surface last applied.
package surface

import (
	"errors"
	"fmt"
)

// ErrUndelivered is wrapped by surfaces whose command never reached the
// platform. It is a transport gap, not a decode failure.
var ErrUndelivered = errors.New("surface command not delivered")

const (
	Main    = "main"
	Overlay = "overlay"
)

type LoadRequest struct {
	RequestID uint64  `json:"request_id"`
	ClipID    string  `json:"clip_id"`
	Source    string  `json:"source"`
	At        float64 `json:"at"`
}

type SeekRequest struct {
	RequestID uint64  `json:"request_id"`
	At        float64 `json:"at"`
}

// Surface is one video/audio decode-and-render primitive. A returned error
// only means the command could not be delivered.
type Surface interface {
	Name() string
	Load(req LoadRequest) error
	Clear() error
	Seek(req SeekRequest) error
	Play() error
	Pause() error
	SetMuted(muted bool) error
	Release() error
}

type NotificationKind string

const (
	// Ready means metadata is loaded or a seek completed; Time is the
	// surface's current source time.
	Ready      NotificationKind = "ready"
	TimeUpdate NotificationKind = "time"
	Buffering  NotificationKind = "buffering"
	Ended      NotificationKind = "ended"
	Error      NotificationKind = "error"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case Ready, TimeUpdate, Buffering, Ended, Error:
		return true
	}
	return false
}

type Notification struct {
	Surface   string           `json:"surface"`
	Kind      NotificationKind `json:"kind"`
	RequestID uint64           `json:"request_id"`
	Time      float64          `json:"time,omitempty"`
	Buffering bool             `json:"buffering,omitempty"`
	Message   string           `json:"message,omitempty"`
}

func (n Notification) String() string {
	return fmt.Sprintf("%s/%s#%d@%.3f", n.Surface, n.Kind, n.RequestID, n.Time)
}
