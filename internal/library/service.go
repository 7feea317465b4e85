package library

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/framecut/framecut-engine/internal/logging"
	"github.com/framecut/framecut-engine/internal/timecode"
	"github.com/framecut/framecut-engine/internal/timeline"
)

type ClipService interface {
	Register(ctx context.Context, req RegisterRequest) (*Clip, error)
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Clip, error)
	List(ctx context.Context) ([]*Clip, error)
	SourceClips(ctx context.Context) ([]timeline.SourceClip, error)
}

// RegisterRequest carries the media metadata the import collaborator already
// computed. The library does not decode media itself.
type RegisterRequest struct {
	SourcePath    string
	TotalDuration float64
	FrameRate     float64
	Codec         string
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.WithComponent(logging.OrDiscard(logger), "library")}
}

// Register records a clip. Registering the same path twice returns the
// existing record.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Clip, error) {
	absPath, err := filepath.Abs(req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid path: %v", ErrInvalidClip, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: path does not exist: %v", ErrInvalidClip, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: path is a directory", ErrInvalidClip)
	}
	if !IsMediaFile(absPath) {
		return nil, fmt.Errorf("%w: unsupported media type %q", ErrInvalidClip, filepath.Ext(absPath))
	}
	if math.IsNaN(req.TotalDuration) || req.TotalDuration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidClip)
	}

	existing, err := s.repo.GetClipByPath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	clip := &Clip{
		ID:            NewID(),
		SourcePath:    absPath,
		TotalDuration: req.TotalDuration,
		FrameRate:     timecode.NormalizeFrameRate(req.FrameRate),
		Codec:         req.Codec,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.CreateClip(ctx, clip); err != nil {
		return nil, err
	}

	s.logger.Info("clip registered", "clip_id", clip.ID, "path", logging.SanitizePath(absPath),
		"duration", clip.TotalDuration, "frame_rate", clip.FrameRate)
	return clip, nil
}

// Remove deletes the clip record. Placements that reference it are left
// alone and become broken.
func (s *Service) Remove(ctx context.Context, id string) error {
	clip, err := s.repo.GetClip(ctx, id)
	if err != nil {
		return err
	}
	if clip == nil {
		return ErrClipNotFound
	}
	if err := s.repo.DeleteClip(ctx, id); err != nil {
		return err
	}
	s.logger.Info("clip removed", "clip_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Clip, error) {
	clip, err := s.repo.GetClip(ctx, id)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, ErrClipNotFound
	}
	return clip, nil
}

func (s *Service) List(ctx context.Context) ([]*Clip, error) {
	return s.repo.ListClips(ctx)
}

// SourceClips returns the snapshot handed to the timeline session.
func (s *Service) SourceClips(ctx context.Context) ([]timeline.SourceClip, error) {
	clips, err := s.repo.ListClips(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]timeline.SourceClip, len(clips))
	for i, c := range clips {
		out[i] = c.SourceClip()
	}
	return out, nil
}

// ClipPath resolves a clip to its file for the media server. Unknown clips
// resolve to "".
func (s *Service) ClipPath(ctx context.Context, id string) (string, error) {
	clip, err := s.repo.GetClip(ctx, id)
	if err != nil || clip == nil {
		return "", err
	}
	return clip.SourcePath, nil
}
