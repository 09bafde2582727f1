package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/export"
)

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		req := export.Request{
			VideoID: chi.URLParam(r, "id"),
			Format:  q.Get("format"),
		}
		if raw := q.Get("fps"); raw != "" {
			fps, err := strconv.ParseFloat(raw, 64)
			if err != nil || fps <= 0 {
				WriteError(w, http.StatusBadRequest, "fps must be a positive number", "BAD_REQUEST")
				return
			}
			req.FrameRate = fps
		}

		res, err := cfg.Exporter.Build(r.Context(), req)
		switch {
		case errors.Is(err, export.ErrUnknownFormat):
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		case errors.Is(err, export.ErrNoClips), errors.Is(err, export.ErrNoCaptions):
			WriteError(w, http.StatusUnprocessableEntity, err.Error(), "NOTHING_TO_EXPORT")
			return
		case err != nil:
			writeServiceError(w, cfg, err)
			return
		}

		h := w.Header()
		h.Set("Content-Type", res.ContentType)
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename}))
		h.Set("Content-Length", strconv.Itoa(len(res.Body)))
		h.Set("X-Export-Count", strconv.Itoa(res.Count))
		w.WriteHeader(http.StatusOK)
		w.Write(res.Body)
	}
}
