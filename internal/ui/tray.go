package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/framecut/framecut-engine/internal/engine"
	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/timecode"
)

const defaultRefresh = time.Second

// Transport is the part of the engine the tray drives.
type Transport interface {
	TogglePlay(ctx context.Context) (bool, error)
	Status(ctx context.Context) (engine.Snapshot, error)
}

type Tray struct {
	transport Transport
	logger    *slog.Logger
	refresh   time.Duration

	statusItem *systray.MenuItem
	clientItem *systray.MenuItem
	playItem   *systray.MenuItem

	mu sync.Mutex

	clients func() int
	onQuit  func()
	stop    chan struct{}
}

type TrayConfig struct {
	Transport Transport
	// Clients reports how many shells are connected. Optional.
	Clients func() int
	Logger  *slog.Logger
	Refresh time.Duration
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	refresh := cfg.Refresh
	if refresh <= 0 {
		refresh = defaultRefresh
	}
	return &Tray{
		transport: cfg.Transport,
		clients:   cfg.Clients,
		logger:    logging.WithComponent(logging.OrDiscard(cfg.Logger), "tray"),
		refresh:   refresh,
		onQuit:    cfg.OnQuit,
		stop:      make(chan struct{}),
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Framecut")
	systray.SetTooltip("Framecut timeline engine")

	t.statusItem = systray.AddMenuItem("Stopped", "Playhead")
	t.statusItem.Disable()

	t.clientItem = systray.AddMenuItem("Shell: disconnected", "Connected shells")
	t.clientItem.Disable()

	systray.AddSeparator()

	t.playItem = systray.AddMenuItem("Play", "Toggle playback")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Framecut")

	go func() {
		ticker := time.NewTicker(t.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-t.playItem.ClickedCh:
				t.togglePlay()
			case <-ticker.C:
				t.update()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			case <-t.stop:
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePlay() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	playing, err := t.transport.TogglePlay(ctx)
	if err != nil {
		t.logger.Warn("toggle play failed", "error", err)
	}
	t.mu.Lock()
	t.playItem.SetTitle(playTitle(playing))
	t.mu.Unlock()
	t.update()
}

func (t *Tray) update() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, err := t.transport.Status(ctx)
	if err != nil {
		t.logger.Debug("tray status unavailable", "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusItem.SetTitle(statusLine(snap))
	t.playItem.SetTitle(playTitle(snap.Playing))
	if t.clients != nil {
		t.clientItem.SetTitle(clientLine(t.clients()))
	}
}

// Quit stops the refresh loop and removes the tray icon.
func (t *Tray) Quit() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	systray.Quit()
}

func playTitle(playing bool) string {
	if playing {
		return "Pause"
	}
	return "Play"
}

func statusLine(s engine.Snapshot) string {
	state := "Stopped"
	switch {
	case s.LastError != "":
		state = "Error"
	case s.Buffering:
		state = "Buffering"
	case s.Playing:
		state = "Playing"
	case s.Position > 0:
		state = "Paused"
	}
	return fmt.Sprintf("%s  %s / %s", state,
		timecode.Format(s.Position, timecode.DefaultFrameRate),
		timecode.Format(s.Total, timecode.DefaultFrameRate))
}

func clientLine(n int) string {
	switch n {
	case 0:
		return "Shell: disconnected"
	case 1:
		return "Shell: connected"
	}
	return fmt.Sprintf("Shell: %d connected", n)
}
