// Package watcher notices source media that goes missing (an unmounted drive,
// a moved file) or comes back, so the timeline can mark the affected
// placements broken instead of failing on load.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/framecut/framecut-engine/internal/logging"
)

const DefaultInterval = 5 * time.Second

type EventType int

const (
	EventMissing EventType = iota
	EventRestored
)

func (e EventType) String() string {
	if e == EventRestored {
		return "restored"
	}
	return "missing"
}

// Target is one clip whose source file is watched.
type Target struct {
	ClipID string
	Path   string
}

// Watcher polls source files. Only transitions are reported; a clip that is
// missing on the first scan is reported once.
type Watcher struct {
	interval time.Duration
	logger   *slog.Logger
	exists   func(path string) bool

	mu       sync.Mutex
	callback func(clipID string, event EventType)
	missing  map[string]bool
}

func New(interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		interval: interval,
		logger:   logging.WithComponent(logging.OrDiscard(logger), "watcher"),
		exists:   fileExists,
		missing:  make(map[string]bool),
	}
}

func (w *Watcher) OnChange(callback func(clipID string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Watch scans the targets returned by list every interval until ctx is done.
func (w *Watcher) Watch(ctx context.Context, list func(ctx context.Context) ([]Target, error)) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		targets, err := list(ctx)
		if err != nil {
			w.logger.Warn("failed to list watch targets", "error", err)
		} else {
			w.Scan(targets)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan checks every target once and reports transitions.
func (w *Watcher) Scan(targets []Target) {
	w.mu.Lock()
	cb := w.callback
	var changes []Target
	var kinds []EventType
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		seen[t.ClipID] = true
		gone := !w.exists(t.Path)
		if gone == w.missing[t.ClipID] {
			continue
		}
		if gone {
			w.missing[t.ClipID] = true
			kinds = append(kinds, EventMissing)
		} else {
			delete(w.missing, t.ClipID)
			kinds = append(kinds, EventRestored)
		}
		changes = append(changes, t)
	}
	for id := range w.missing {
		if !seen[id] {
			delete(w.missing, id)
		}
	}
	w.mu.Unlock()

	for i, t := range changes {
		w.logger.Info("source media "+kinds[i].String(), "clip_id", t.ClipID, "path", logging.SanitizePath(t.Path))
		if cb != nil {
			cb(t.ClipID, kinds[i])
		}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
