package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/framecut/framecut-engine/internal/logging"
)

// ClipLocator resolves a clip id to its file on disk.
type ClipLocator interface {
	ClipPath(ctx context.Context, clipID string) (string, error)
}

type MediaService interface {
	ServeClip(w http.ResponseWriter, r *http.Request, clipID string) error
	ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error
}

// MediaServer streams registered clips to webview surfaces with byte-range
// support so they can seek without downloading the whole file.
type MediaServer struct {
	clips  ClipLocator
	logger *slog.Logger
}

func NewMediaServer(clips ClipLocator, logger *slog.Logger) *MediaServer {
	return &MediaServer{clips: clips, logger: logging.WithComponent(logging.OrDiscard(logger), "media")}
}

// MediaURL is the SourceResolver for surfaces that load over HTTP from this
// server.
func MediaURL(baseURL, token string) SourceResolver {
	return func(clipID, _ string) string {
		if token == "" {
			return fmt.Sprintf("%s/media/%s", baseURL, clipID)
		}
		return fmt.Sprintf("%s/media/%s?token=%s", baseURL, clipID, token)
	}
}

func (s *MediaServer) ServeClip(w http.ResponseWriter, r *http.Request, clipID string) error {
	path, err := s.clips.ClipPath(r.Context(), clipID)
	if err != nil {
		return err
	}
	if path == "" {
		http.Error(w, "clip not found", http.StatusNotFound)
		return nil
	}
	return s.ServeFile(w, r, path)
}

func (s *MediaServer) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("media file missing", "path", logging.SanitizePath(filePath))
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	size := stat.Size()
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	parsedRange, err := ParseRange(r.Header.Get("Range"), size)
	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	}
	if err != nil && err != ErrInvalidRange {
		return err
	}

	if parsedRange == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, file)
		}
		return nil
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", parsedRange.ContentLength()))
	w.Header().Set("Content-Range", parsedRange.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := file.Seek(parsedRange.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}

	io.CopyN(w, file, parsedRange.ContentLength())
	return nil
}
