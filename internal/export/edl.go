package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/framecut/framecut-engine/internal/timecode"
	"github.com/framecut/framecut-engine/internal/timeline"
)

const (
	DefaultTitle     = "framecut_export"
	DefaultFrameRate = 30.0
)

// Events turns committed segments into EDL events. Segments whose clip is
// unknown are skipped.
func Events(segments []timeline.Segment, clips map[string]timeline.SourceClip) []Event {
	events := make([]Event, 0, len(segments))
	for _, s := range segments {
		clip, ok := clips[s.SourceClipID]
		if !ok {
			continue
		}
		base := filepath.Base(clip.SourcePath)
		name := SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)), 160)
		if name == "" {
			name = clip.ID
		}
		events = append(events, Event{
			PlacementID: s.PlacementID,
			ClipName:    name,
			MediaPath:   clip.SourcePath,
			SourceIn:    s.SourceIn,
			SourceOut:   s.SourceOut,
			RecordIn:    s.TimelineStart,
			RecordOut:   s.TimelineEnd,
		})
	}
	return events
}

// FrameRate picks the export rate: the requested one, else the rate of the
// first clip on the timeline.
func FrameRate(requested float64, segments []timeline.Segment, clips map[string]timeline.SourceClip) float64 {
	if requested > 0 {
		return requested
	}
	for _, s := range segments {
		if c, ok := clips[s.SourceClipID]; ok && c.FrameRate > 0 {
			return c.FrameRate
		}
	}
	return DefaultFrameRate
}

func GenerateEDL(events []Event, title string, frameRate float64) string {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if timecode.IsDropFrame(frameRate) {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	for i, ev := range events {
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				timecode.Format(ev.SourceIn, frameRate),
				timecode.Format(ev.SourceOut, frameRate),
				timecode.Format(ev.RecordIn, frameRate),
				timecode.Format(ev.RecordOut, frameRate),
			),
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes the EDL as <title>.edl inside dir and returns the path.
func WriteEDL(dir, title, edl string) (string, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, title+".edl")
	if err := os.WriteFile(path, []byte(edl), 0o644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
