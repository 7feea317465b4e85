package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut-engine/internal/engine"
	"github.com/framecut/framecut-engine/internal/gesture"
	"github.com/framecut/framecut-engine/internal/library"
	"github.com/framecut/framecut-engine/internal/playback"
	"github.com/framecut/framecut-engine/internal/timeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/clips", listClipsHandler(cfg))
		r.Post("/clips", registerClipHandler(cfg))
		r.Delete("/clips/{id}", removeClipHandler(cfg))

		r.Get("/tracks", listTracksHandler(cfg))
		r.Post("/tracks", addTrackHandler(cfg))
		r.Delete("/tracks/{id}", removeTrackHandler(cfg))
		r.Put("/tracks/{id}/gain", trackGainHandler(cfg))
		r.Get("/tracks/{id}/segments", segmentsHandler(cfg))
		r.Post("/tracks/{id}/placements", insertHandler(cfg))
		r.Post("/tracks/{id}/split", splitAtHandler(cfg))

		r.Delete("/placements/{id}", deletePlacementHandler(cfg))
		r.Post("/placements/{id}/move", movePlacementHandler(cfg))
		r.Put("/placements/{id}/trim", trimHandler(cfg))
		r.Post("/placements/{id}/split", splitHandler(cfg))

		r.Post("/transport/play", playHandler(cfg))
		r.Post("/transport/pause", pauseHandler(cfg))
		r.Post("/transport/seek", seekHandler(cfg))

		r.Post("/gestures/trim", beginTrimHandler(cfg))
		r.Post("/gestures/trim/move", moveTrimHandler(cfg))
		r.Post("/gestures/trim/commit", commitTrimHandler(cfg))
		r.Post("/gestures/trim/abort", abortTrimHandler(cfg))
		r.Get("/grid", gridPointsHandler(cfg))
		r.Put("/grid", setGridHandler(cfg))

		r.Get("/export/edl", exportEDLHandler(cfg))
		r.Post("/export/edl", exportEDLHandler(cfg))

		if cfg.Events != nil {
			r.Get("/ws", cfg.Events.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(LoopbackGuard())
			r.Get("/media/{clipID}", mediaHandler(cfg))
			r.Head("/media/{clipID}", mediaHandler(cfg))
		})
	})

	return r
}

// writeEngineError maps engine and timeline errors to HTTP responses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, timeline.ErrInvalidTrim), errors.Is(err, timeline.ErrInvalidSplit):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_TRIM")
	case errors.Is(err, timeline.ErrMissingSourceClip):
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), "MISSING_CLIP")
	case errors.Is(err, timeline.ErrPlacementNotFound),
		errors.Is(err, timeline.ErrTrackNotFound),
		errors.Is(err, library.ErrClipNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, timeline.ErrInvalidTrack),
		errors.Is(err, timeline.ErrInvalidIndex),
		errors.Is(err, timeline.ErrDuplicatePlacement),
		errors.Is(err, library.ErrInvalidClip),
		errors.Is(err, gesture.ErrInvalidZoom),
		errors.Is(err, gesture.ErrInvalidEdge):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	case errors.Is(err, gesture.ErrNoGesture),
		errors.Is(err, gesture.ErrGestureActive),
		errors.Is(err, playback.ErrSurfaceFailed),
		errors.Is(err, playback.ErrNothingToPlay):
		WriteError(w, http.StatusConflict, err.Error(), "CONFLICT")
	case errors.Is(err, engine.ErrEngineStopped):
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "INTERNAL_ERROR")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
		return false
	}
	return true
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := cfg.Engine.Status(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clips, err := cfg.Library.List(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list clips", "INTERNAL_ERROR")
			return
		}

		resp := ClipsResponse{Clips: make([]ClipResponse, len(clips))}
		for i, c := range clips {
			resp.Clips[i] = ClipToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func registerClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.SourcePath == "" {
			WriteError(w, http.StatusBadRequest, "source_path is required", "BAD_REQUEST")
			return
		}

		clip, err := cfg.Library.Register(r.Context(), library.RegisterRequest{
			SourcePath:    req.SourcePath,
			TotalDuration: req.TotalDuration,
			FrameRate:     req.FrameRate,
			Codec:         req.Codec,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if err := cfg.Engine.PutClip(r.Context(), clip.SourceClip()); err != nil {
			writeEngineError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, ClipToResponse(clip))
	}
}

func removeClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Library.Remove(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		if err := cfg.Engine.RemoveClip(r.Context(), id); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listTracksHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, TracksResponse{Tracks: cfg.Engine.Tracks()})
	}
}

func addTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		track, err := cfg.Engine.AddTrack(r.Context(), timeline.TrackKind(req.Kind), req.Name)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, track)
	}
}

func removeTrackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Engine.RemoveTrack(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func trackGainHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GainRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Gain == nil {
			WriteError(w, http.StatusBadRequest, "gain is required", "BAD_REQUEST")
			return
		}
		if err := cfg.Engine.SetTrackGain(r.Context(), chi.URLParam(r, "id"), *req.Gain); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// segmentsHandler returns a track's derived segments, or pixel blocks when
// px_per_sec is given.
func segmentsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID := chi.URLParam(r, "id")
		segs, err := cfg.Engine.Segments(trackID)
		if err != nil {
			writeEngineError(w, err)
			return
		}

		resp := SegmentsResponse{TrackID: trackID}
		if raw := r.URL.Query().Get("px_per_sec"); raw != "" {
			pps, err := strconv.ParseFloat(raw, 64)
			if err != nil || pps <= 0 {
				WriteError(w, http.StatusBadRequest, "px_per_sec must be a positive number", "BAD_REQUEST")
				return
			}
			resp.PixelsPerSecond = pps
			resp.Blocks = timeline.Project(segs, pps)
		} else {
			resp.Segments = segs
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
