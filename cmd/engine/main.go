package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/framecut/framecut-engine/internal/api"
	"github.com/framecut/framecut-engine/internal/bridge"
	"github.com/framecut/framecut-engine/internal/config"
	"github.com/framecut/framecut-engine/internal/db"
	"github.com/framecut/framecut-engine/internal/engine"
	"github.com/framecut/framecut-engine/internal/events"
	"github.com/framecut/framecut-engine/internal/gesture"
	"github.com/framecut/framecut-engine/internal/library"
	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/mixer"
	"github.com/framecut/framecut-engine/internal/playback"
	"github.com/framecut/framecut-engine/internal/surface"
	"github.com/framecut/framecut-engine/internal/timecode"
	"github.com/framecut/framecut-engine/internal/timeline"
	"github.com/framecut/framecut-engine/internal/ui"
	"github.com/framecut/framecut-engine/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting framecut engine", "version", config.Version, "commit", config.GitCommit, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := library.NewRepository(database.Conn())

	deviceID, err := ensureConfigSecret(repo, library.ConfigDeviceID, 16)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureConfigSecret(repo, library.ConfigAuthToken, 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	grid, err := timecode.ParseGridMode(cfg.GridMode())
	if err != nil {
		return fmt.Errorf("invalid grid mode: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  FRAMECUT ENGINE v%-24s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Printf("║  Preview:    %-45s ║\n", cfg.PreviewMode())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	librarySvc := library.NewService(repo, logger)
	clips, err := librarySvc.SourceClips(ctx)
	if err != nil {
		return fmt.Errorf("failed to load clip library: %w", err)
	}

	store := timeline.NewStore(database.Conn())
	session := timeline.NewSession(store, logger)
	if err := session.Load(ctx, clips); err != nil {
		return fmt.Errorf("failed to load timeline: %w", err)
	}

	hub := events.NewHub(logger)
	mediaURL := playback.MediaURL(fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()), authToken)

	eng, err := engine.New(session, engine.Options{
		Mode:    cfg.PreviewMode(),
		Main:    bridge.NewRemoteSurface(surface.Main, hub, logger),
		Overlay: bridge.NewRemoteSurface(surface.Overlay, hub, logger),
		Mixer: mixer.New(bridge.NewRemoteGraph(hub, logger), mixer.Options{
			DefaultGain:    cfg.DefaultGain(),
			Epsilon:        cfg.SeekEpsilon().Seconds(),
			DriftTolerance: cfg.FollowTolerance().Seconds(),
			Resolve:        mediaURL,
			Logger:         logger,
		}),
		Playback: playback.PreviewOptions{
			Epsilon:         cfg.SeekEpsilon().Seconds(),
			FollowTolerance: cfg.FollowTolerance().Seconds(),
			Resolve:         mediaURL,
		},
		Gesture: gesture.Options{
			Grid:            grid,
			SnapThresholdPx: cfg.SnapThresholdPx(),
		},
		Playhead:  store,
		Publisher: hub,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	hub.SetSink(eng)
	hub.OnConnect(func() {
		if err := eng.Reload(ctx); err != nil {
			logger.Warn("failed to reload surfaces for new shell", "error", err)
		}
	})

	go eng.Run(ctx)
	<-eng.Started()

	mediaWatcher := watcher.New(watcher.DefaultInterval, logger)
	mediaWatcher.OnChange(func(clipID string, event watcher.EventType) {
		var err error
		switch event {
		case watcher.EventMissing:
			err = eng.RemoveClip(ctx, clipID)
		case watcher.EventRestored:
			var clip *library.Clip
			if clip, err = librarySvc.Get(ctx, clipID); err == nil {
				err = eng.PutClip(ctx, clip.SourceClip())
			}
		}
		if err != nil {
			logger.Warn("failed to apply source media change", "clip_id", clipID, "event", event.String(), "error", err)
		}
	})
	go mediaWatcher.Watch(ctx, watchTargets(librarySvc))

	apiServer := api.NewServer(api.ServerConfig{
		Port:        cfg.Port(),
		Engine:      eng,
		Library:     librarySvc,
		Repository:  repo,
		MediaServer: playback.NewMediaServer(librarySvc, logger),
		Events:      hub,
		Version:     config.Version,
		Logger:      logger,
		StartTime:   startTime,
		DeviceID:    deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	quit := sync.OnceFunc(func() { close(quitCh) })

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	var tray *ui.Tray
	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray = ui.NewTray(ui.TrayConfig{
			Transport: eng,
			Clients:   hub.ClientCount,
			Logger:    logger,
			OnQuit:    quit,
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	if tray != nil {
		tray.Quit()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	// The engine releases surfaces through the hub, so it stops first.
	cancel()
	select {
	case <-eng.Done():
	case <-shutdownCtx.Done():
		logger.Warn("engine did not stop in time")
	}
	hub.Close()

	logger.Info("shutdown complete")
	return nil
}

func watchTargets(svc library.ClipService) func(context.Context) ([]watcher.Target, error) {
	return func(ctx context.Context) ([]watcher.Target, error) {
		clips, err := svc.List(ctx)
		if err != nil {
			return nil, err
		}
		targets := make([]watcher.Target, len(clips))
		for i, c := range clips {
			targets[i] = watcher.Target{ClipID: c.ID, Path: c.SourcePath}
		}
		return targets, nil
	}
}

// ensureConfigSecret returns the stored value for key, generating and storing
// a random hex value of n bytes on first run.
func ensureConfigSecret(repo library.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}

	return value, nil
}
