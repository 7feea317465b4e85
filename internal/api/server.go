package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/framecut/framecut-engine/internal/engine"
	"github.com/framecut/framecut-engine/internal/gesture"
	"github.com/framecut/framecut-engine/internal/library"
	"github.com/framecut/framecut-engine/internal/playback"
	"github.com/framecut/framecut-engine/internal/timecode"
	"github.com/framecut/framecut-engine/internal/timeline"
)

// Engine is the timeline engine as seen by HTTP handlers.
type Engine interface {
	PutClip(ctx context.Context, clip timeline.SourceClip) error
	RemoveClip(ctx context.Context, id string) error

	AddTrack(ctx context.Context, kind timeline.TrackKind, name string) (timeline.Track, error)
	RemoveTrack(ctx context.Context, id string) error
	SetTrackGain(ctx context.Context, id string, gain float64) error

	Insert(ctx context.Context, trackID string, index int, p timeline.Placement) (timeline.Placement, error)
	Delete(ctx context.Context, placementID string) error
	Move(ctx context.Context, placementID string, index int) error
	SetTrim(ctx context.Context, placementID string, trimIn, trimOut float64) (timeline.Placement, error)
	Split(ctx context.Context, placementID string, splitPoint float64) (timeline.Placement, timeline.Placement, error)
	SplitAt(ctx context.Context, trackID string, t float64) (timeline.Placement, timeline.Placement, error)

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, t float64) error

	BeginTrim(ctx context.Context, placementID string, edge gesture.Edge, pointerX, pixelsPerSecond float64) (gesture.Candidate, error)
	MoveTrim(ctx context.Context, pointerX float64) (gesture.Candidate, error)
	CommitTrim(ctx context.Context) (timeline.Placement, error)
	AbortTrim(ctx context.Context) error
	SetGrid(ctx context.Context, mode timecode.GridMode) error
	Grid(ctx context.Context) (timecode.GridMode, error)

	Status(ctx context.Context) (engine.Snapshot, error)
	Tracks() []timeline.Track
	Segments(trackID string) ([]timeline.Segment, error)
	MainTimeline() ([]timeline.Segment, map[string]timeline.SourceClip)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port        int
	Engine      Engine
	Library     library.ClipService
	Repository  ConfigReader
	MediaServer playback.MediaService
	Events      http.Handler
	Version     string
	Logger      *slog.Logger
	StartTime   time.Time
	DeviceID    string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// BaseURL is the origin surfaces load media from.
func (s *Server) BaseURL() string {
	return "http://" + s.httpServer.Addr
}
