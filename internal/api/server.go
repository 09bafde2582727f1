// Package api is the loopback HTTP surface of the agent. Browser pages and
// scripts on the same machine use it to start runs, follow their log and
// manage the synced library.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/library"
	"github.com/clipforge/clipforge-agent/internal/media"
	"github.com/clipforge/clipforge-agent/internal/session"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

// Runner drives upload-and-poll runs. *workflow.Workflow implements it.
type Runner interface {
	Start(task *media.Task) (string, error)
	Cancel() error
	Reset()
	Snapshot() workflow.Snapshot
	LogSince(runID string, seq int64) (workflow.Snapshot, []workflow.LogEntry)
}

// LibraryService is the part of the library the API exposes.
type LibraryService interface {
	SyncVideos(ctx context.Context) (library.SyncResult, error)
	ListVideos(ctx context.Context) ([]*library.Video, error)
	RenameVideo(ctx context.Context, id, fileName string) (*library.Video, error)
	DeleteVideo(ctx context.Context, id string) error
	FilterShorts(ctx context.Context, filter library.ShortFilter) ([]*library.Short, error)
	GetShort(ctx context.Context, id string) (*library.Short, error)
	DeleteShort(ctx context.Context, id string) error
	Caption(ctx context.Context, shortID string) (*library.Caption, error)
	SetCaption(ctx context.Context, shortID, text string) (*library.Caption, error)
	ListRuns(ctx context.Context, limit int) ([]*library.RunRecord, error)
	RunLogs(ctx context.Context, runID string) ([]library.RunLog, error)
}

// Exporter renders EDL and SRT exports.
type Exporter interface {
	Build(ctx context.Context, req export.Request) (*export.Result, error)
}

// PlaybackService serves a short's media with Range support.
type PlaybackService interface {
	ServeShort(w http.ResponseWriter, r *http.Request, shortID string) error
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port      int
	UploadDir string

	Workflow Runner
	Library  LibraryService
	Exporter Exporter
	Playback PlaybackService
	Status   workflow.StatusChecker
	Session  session.Store
	Tokens   TokenStore

	Logger    *slog.Logger
	StartTime time.Time
	Version   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler: router,
			// Uploads of up to 500 MB arrive on this server.
			ReadTimeout:  10 * time.Minute,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
