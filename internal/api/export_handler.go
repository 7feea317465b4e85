package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut-engine/internal/export"
	"github.com/framecut/framecut-engine/internal/logging"
)

// exportEDLHandler renders the main track's committed segments as an EDL.
// GET reads title and frame_rate from the query; POST takes an
// export.Request and may also write the file to output_dir.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req export.Request
		if r.Method == http.MethodPost {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		} else {
			q := r.URL.Query()
			req.ProjectName = q.Get("title")
			if raw := q.Get("frame_rate"); raw != "" {
				fps, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					WriteError(w, http.StatusBadRequest, "frame_rate must be a number", "BAD_REQUEST")
					return
				}
				req.FrameRate = fps
			}
		}
		if req.FrameRate < 0 {
			WriteError(w, http.StatusBadRequest, "frame_rate must not be negative", "BAD_REQUEST")
			return
		}

		snap, err := cfg.Engine.Status(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		segs, clips := cfg.Engine.MainTimeline()

		title := export.Title(req.ProjectName)
		events := export.Events(segs, clips)
		edl := export.GenerateEDL(events, title, export.FrameRate(req.FrameRate, segs, clips))

		resp := export.Response{
			Status:           "ok",
			Format:           "edl",
			EventCount:       len(events),
			BrokenPlacements: make([]string, 0, len(snap.Broken)),
			EDL:              edl,
		}
		for _, p := range snap.Broken {
			resp.BrokenPlacements = append(resp.BrokenPlacements, p.InstanceID)
		}

		if req.OutputDir != "" {
			path, err := export.WriteEDL(req.OutputDir, title, edl)
			if errors.Is(err, export.ErrInvalidOutputDir) {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			if err != nil {
				cfg.Logger.Error("edl export failed", "error", err, "dir", logging.SanitizePath(req.OutputDir))
				WriteError(w, http.StatusInternalServerError, "failed to write export file", "INTERNAL_ERROR")
				return
			}
			resp.OutputPath = path
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clipID := chi.URLParam(r, "clipID")
		if err := cfg.MediaServer.ServeClip(w, r, clipID); err != nil {
			cfg.Logger.Error("media error", "error", err, "clip_id", clipID)
			WriteError(w, http.StatusInternalServerError, "failed to serve media", "INTERNAL_ERROR")
		}
	}
}
