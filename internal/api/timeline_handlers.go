package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/framecut/framecut-engine/internal/gesture"
	"github.com/framecut/framecut-engine/internal/timecode"
	"github.com/framecut/framecut-engine/internal/timeline"
)

// maxGridPoints bounds a /grid response for very wide ranges.
const maxGridPoints = 2000

func insertHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InsertRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.SourceClipID == "" {
			WriteError(w, http.StatusBadRequest, "source_clip_id is required", "BAD_REQUEST")
			return
		}
		index := -1
		if req.Index != nil {
			index = *req.Index
		}

		p, err := cfg.Engine.Insert(r.Context(), chi.URLParam(r, "id"), index, timeline.Placement{
			InstanceID:   req.InstanceID,
			SourceClipID: req.SourceClipID,
			TrimIn:       req.TrimIn,
			TrimOut:      req.TrimOut,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, p)
	}
}

func deletePlacementHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func movePlacementHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := cfg.Engine.Move(r.Context(), chi.URLParam(r, "id"), req.Index); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func trimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrimRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := cfg.Engine.SetTrim(r.Context(), chi.URLParam(r, "id"), req.TrimIn, req.TrimOut)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func splitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SplitRequest
		if !decodeBody(w, r, &req) {
			return
		}
		left, right, err := cfg.Engine.Split(r.Context(), chi.URLParam(r, "id"), req.At)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, SplitResponse{Left: left, Right: right})
	}
}

func splitAtHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SplitRequest
		if !decodeBody(w, r, &req) {
			return
		}
		left, right, err := cfg.Engine.SplitAt(r.Context(), chi.URLParam(r, "id"), req.At)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, SplitResponse{Left: left, Right: right})
	}
}

// Transport handlers answer with the snapshot taken after the command ran.

func transportHandler(cfg ServerConfig, run func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := run(r); err != nil {
			writeEngineError(w, err)
			return
		}
		snap, err := cfg.Engine.Status(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return transportHandler(cfg, func(r *http.Request) error {
		return cfg.Engine.Play(r.Context())
	})
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return transportHandler(cfg, func(r *http.Request) error {
		return cfg.Engine.Pause(r.Context())
	})
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if !decodeBody(w, r, &req) {
			return
		}
		transportHandler(cfg, func(r *http.Request) error {
			return cfg.Engine.Seek(r.Context(), req.Position)
		})(w, r)
	}
}

func beginTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BeginTrimRequest
		if !decodeBody(w, r, &req) {
			return
		}
		edge, err := gesture.ParseEdge(req.Edge)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		c, err := cfg.Engine.BeginTrim(r.Context(), req.PlacementID, edge, req.PointerX, req.PixelsPerSecond)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func moveTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MoveTrimRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := cfg.Engine.MoveTrim(r.Context(), req.PointerX)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func commitTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := cfg.Engine.CommitTrim(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, p)
	}
}

func abortTrimHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Engine.AbortTrim(r.Context()); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func setGridHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GridRequest
		if !decodeBody(w, r, &req) {
			return
		}
		mode, err := timecode.ParseGridMode(req.Mode)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err := cfg.Engine.SetGrid(r.Context(), mode); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// gridPointsHandler lists the snap points in [from, to] for the ruler.
func gridPointsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		from, errFrom := strconv.ParseFloat(q.Get("from"), 64)
		to, errTo := strconv.ParseFloat(q.Get("to"), 64)
		if errFrom != nil || errTo != nil || to < from {
			WriteError(w, http.StatusBadRequest, "from and to must be numbers with from <= to", "BAD_REQUEST")
			return
		}
		fps := timecode.DefaultFrameRate
		if raw := q.Get("fps"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
			fps = v
		}

		mode, err := cfg.Engine.Grid(r.Context())
		if err != nil {
			writeEngineError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, GridPointsResponse{
			Mode:   mode.String(),
			Points: timecode.SnapPoints(mode, fps, from, to, maxGridPoints),
		})
	}
}
