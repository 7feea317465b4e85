package playback

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

type mapLocator map[string]string

func (m mapLocator) ClipPath(_ context.Context, clipID string) (string, error) {
	return m[clipID], nil
}

func setupMediaServer(t *testing.T) *MediaServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("0123456789"), 0644); err != nil {
		t.Fatalf("failed to write media: %v", err)
	}
	return NewMediaServer(mapLocator{"clipA": path, "gone": filepath.Join(t.TempDir(), "missing.mp4")}, nil)
}

func TestMediaServer_ServeClip(t *testing.T) {
	srv := setupMediaServer(t)

	tests := []struct {
		name       string
		clipID     string
		rangeHdr   string
		wantStatus int
		wantBody   string
		wantRange  string
	}{
		{"whole file", "clipA", "", http.StatusOK, "0123456789", ""},
		{"partial", "clipA", "bytes=2-5", http.StatusPartialContent, "2345", "bytes 2-5/10"},
		{"suffix", "clipA", "bytes=-3", http.StatusPartialContent, "789", "bytes 7-9/10"},
		{"unsatisfiable", "clipA", "bytes=20-", http.StatusRequestedRangeNotSatisfiable, "", "bytes */10"},
		{"unknown clip", "nope", "", http.StatusNotFound, "", ""},
		{"file removed from disk", "gone", "", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/media/"+tt.clipID, nil)
			if tt.rangeHdr != "" {
				req.Header.Set("Range", tt.rangeHdr)
			}
			w := httptest.NewRecorder()

			if err := srv.ServeClip(w, req, tt.clipID); err != nil {
				t.Fatalf("ServeClip() error = %v", err)
			}

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" {
				body, _ := io.ReadAll(w.Body)
				if string(body) != tt.wantBody {
					t.Errorf("body = %q, want %q", body, tt.wantBody)
				}
			}
			if got := w.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantRange)
			}
		})
	}
}

func TestMediaURL(t *testing.T) {
	resolve := MediaURL("http://127.0.0.1:8797", "tok")
	if got := resolve("clipA", "/ignored.mp4"); got != "http://127.0.0.1:8797/media/clipA?token=tok" {
		t.Errorf("MediaURL() = %q", got)
	}
	if got := MediaURL("http://x", "")("c", ""); got != "http://x/media/c" {
		t.Errorf("MediaURL() without token = %q", got)
	}
}
