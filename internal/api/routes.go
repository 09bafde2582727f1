package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/library"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

const (
	defaultVersion  = "0.1.0"
	runHistoryLimit = 50
	// uploadFieldName is the multipart field POST /runs reads.
	uploadFieldName = "video"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Post("/runs", startRunHandler(cfg))
		r.Get("/runs", listRunsHandler(cfg))
		r.Get("/runs/current", currentRunHandler(cfg))
		r.Get("/runs/current/logs", currentLogsHandler(cfg))
		r.Delete("/runs/current", cancelRunHandler(cfg))
		r.Post("/runs/current/reset", resetRunHandler(cfg))
		r.Get("/runs/{id}/logs", runLogsHandler(cfg))

		r.Get("/videos", listVideosHandler(cfg))
		r.Patch("/videos/{id}", renameVideoHandler(cfg))
		r.Delete("/videos/{id}", deleteVideoHandler(cfg))
		r.Get("/videos/{id}/status", videoStatusHandler(cfg))
		r.Get("/videos/{id}/export", exportHandler(cfg))

		r.Get("/shorts", listShortsHandler(cfg))
		r.Delete("/shorts/{id}", deleteShortHandler(cfg))
		r.Get("/shorts/{id}/captions", getCaptionHandler(cfg))
		r.Put("/shorts/{id}/captions", setCaptionHandler(cfg))
	})

	// Media elements cannot send an Authorization header, so playback is
	// limited to loopback peers instead.
	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Get("/playback/shorts/{id}", playbackHandler(cfg))
		r.Head("/playback/shorts/{id}", playbackHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = defaultVersion
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: version,
			UptimeS: int64(time.Since(cfg.StartTime).Seconds()),
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Workflow.Snapshot()
		resp := StatusResponse{Phase: snap.Phase}
		if snap.RunID != "" || snap.Outcome != nil {
			resp.Run = &snap
		}
		if cfg.Session != nil {
			sess, err := cfg.Session.Load()
			if err != nil {
				cfg.Logger.Warn("failed to load session", "error", err)
			} else if sess.Valid() {
				resp.LoggedIn = true
				resp.User = sess.User.Username
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func startRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			task *media.Task
			err  error
		)
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType == "multipart/form-data" {
			// Leave headroom for the multipart framing around the file.
			r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+(1<<20))
			task, err = taskFromMultipart(r, cfg.UploadDir)
		} else {
			var req StartRunRequest
			if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
			if strings.TrimSpace(req.Path) == "" {
				WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
				return
			}
			task, err = media.OpenTask(req.Path)
			if err != nil {
				cfg.Logger.Debug("rejected local path", "path", logging.SanitizePath(req.Path), "error", err)
			}
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			switch {
			case media.IsValidation(err):
				WriteError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
			case errors.As(err, &maxErr):
				WriteError(w, http.StatusRequestEntityTooLarge, "file exceeds 500 MB", "VALIDATION_ERROR")
			case errors.Is(err, errNoUploadField):
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			default:
				cfg.Logger.Error("failed to accept upload", "error", err)
				WriteError(w, http.StatusInternalServerError, "failed to accept upload", "INTERNAL_ERROR")
			}
			return
		}

		requestID, _ := r.Context().Value(RequestIDKey).(string)
		runID, err := cfg.Workflow.Start(task)
		if err != nil {
			task.Release()
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		logging.WithRequestID(cfg.Logger, requestID).Info("run started", "run_id", runID, "file_name", task.Name)
		WriteJSON(w, http.StatusAccepted, StartRunResponse{
			RunID:    runID,
			FileName: task.Name,
			Phase:    cfg.Workflow.Snapshot().Phase,
		})
	}
}

var errNoUploadField = errors.New(`multipart field "video" is required`)

// taskFromMultipart streams the video part to disk without buffering the
// whole form in memory.
func taskFromMultipart(r *http.Request, dir string) (*media.Task, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoUploadField
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoUploadField
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != uploadFieldName {
			part.Close()
			continue
		}
		defer part.Close()
		return media.TaskFromReader(dir, part.FileName(), part)
	}
}

func currentRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Workflow.Snapshot())
	}
}

func currentLogsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since int64
		if raw := r.URL.Query().Get("since"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || n < 0 {
				WriteError(w, http.StatusBadRequest, "since must be a non-negative integer", "BAD_REQUEST")
				return
			}
			since = n
		}
		runID := r.URL.Query().Get("run_id")
		snap, entries := cfg.Workflow.LogSince(runID, since)
		if runID != "" && runID != snap.RunID {
			since = 0
		}
		WriteJSON(w, http.StatusOK, logsResponse(snap, entries, since))
	}
}

func cancelRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Workflow.Cancel(); err != nil {
			if errors.Is(err, workflow.ErrNoActiveRun) {
				WriteError(w, http.StatusConflict, err.Error(), "NO_ACTIVE_RUN")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func resetRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Workflow.Reset()
		w.WriteHeader(http.StatusNoContent)
	}
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := cfg.Library.ListRuns(r.Context(), runHistoryLimit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", "INTERNAL_ERROR")
			return
		}
		resp := RunsResponse{Runs: make([]RunResponse, len(runs))}
		for i, run := range runs {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func runLogsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		logs, err := cfg.Library.RunLogs(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		if logs == nil {
			logs = []library.RunLog{}
		}
		WriteJSON(w, http.StatusOK, RunLogsResponse{RunID: id, Entries: logs})
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp VideosResponse
		if wantSync(r) {
			res, err := cfg.Library.SyncVideos(r.Context())
			if err != nil {
				writeServiceError(w, cfg, err)
				return
			}
			resp.Sync = &res
		}
		videos, err := cfg.Library.ListVideos(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}
		if videos == nil {
			videos = []*library.Video{}
		}
		resp.Videos = videos
		WriteJSON(w, http.StatusOK, resp)
	}
}

func renameVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenameVideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		name := strings.TrimSpace(req.FileName)
		if name == "" {
			WriteError(w, http.StatusBadRequest, "file_name is required", "BAD_REQUEST")
			return
		}
		video, err := cfg.Library.RenameVideo(r.Context(), chi.URLParam(r, "id"), name)
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, video)
	}
}

func deleteVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Library.DeleteVideo(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func videoStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Status == nil {
			WriteError(w, http.StatusServiceUnavailable, "backend not configured", "BACKEND_UNAVAILABLE")
			return
		}
		id := chi.URLParam(r, "id")
		st, err := cfg.Status.VideoStatus(r.Context(), cloud.ID(id))
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, VideoStatusResponse{VideoID: id, Status: st.Status, Progress: st.Progress})
	}
}

func listShortsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := library.ShortFilter{
			Status:  q.Get("status"),
			Query:   q.Get("q"),
			VideoID: q.Get("video_id"),
		}
		shorts, err := cfg.Library.FilterShorts(r.Context(), filter)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list shorts", "INTERNAL_ERROR")
			return
		}
		if shorts == nil {
			shorts = []*library.Short{}
		}
		WriteJSON(w, http.StatusOK, ShortsResponse{Shorts: shorts})
	}
}

func deleteShortHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Library.DeleteShort(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getCaptionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := cfg.Library.GetShort(r.Context(), id); err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		c, err := cfg.Library.Caption(r.Context(), id)
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func setCaptionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CaptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		c, err := cfg.Library.SetCaption(r.Context(), chi.URLParam(r, "id"), req.Text)
		if err != nil {
			writeServiceError(w, cfg, err)
			return
		}
		WriteJSON(w, http.StatusOK, c)
	}
}

func playbackHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Playback.ServeShort(w, r, id); err != nil {
			if errors.Is(err, library.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "short not found", "NOT_FOUND")
				return
			}
			cfg.Logger.Error("playback error", "error", err, "short_id", id)
			WriteError(w, http.StatusBadGateway, "short could not be downloaded", "DOWNLOAD_FAILED")
		}
	}
}

func wantSync(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("sync"))
	return err == nil && v
}

// writeServiceError maps library and backend errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, cfg ServerConfig, err error) {
	var apiErr *cloud.APIError
	switch {
	case errors.Is(err, library.ErrNotFound), cloud.IsNotFound(err):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, cloud.ErrNotAuthenticated), errors.Is(err, cloud.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "backend login required", "BACKEND_UNAUTHORIZED")
	case errors.As(err, &apiErr):
		cfg.Logger.Warn("backend request failed", "error", err)
		WriteError(w, http.StatusBadGateway, err.Error(), "BACKEND_ERROR")
	default:
		cfg.Logger.Error("request failed", "error", err)
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
