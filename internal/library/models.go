package library

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/framecut/framecut-engine/internal/timeline"
)

var (
	ErrClipNotFound = errors.New("clip not found")
	ErrInvalidClip  = errors.New("invalid clip")
)

// Clip is a pre-validated source media record registered by the import
// collaborator.
type Clip struct {
	ID            string    `json:"id"`
	SourcePath    string    `json:"source_path"`
	TotalDuration float64   `json:"total_duration"`
	FrameRate     float64   `json:"frame_rate"`
	Codec         string    `json:"codec,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (c *Clip) SourceClip() timeline.SourceClip {
	return timeline.SourceClip{
		ID:            c.ID,
		SourcePath:    c.SourcePath,
		TotalDuration: c.TotalDuration,
		FrameRate:     c.FrameRate,
		Codec:         c.Codec,
	}
}

const (
	ConfigAuthToken = "auth_token"
	ConfigDeviceID  = "device_id"
)

var MediaExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
}

func NewID() string {
	return uuid.NewString()
}

func IsMediaFile(filename string) bool {
	return MediaExtensions[strings.ToLower(filepath.Ext(filename))]
}
