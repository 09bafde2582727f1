// Package library keeps a local SQLite mirror of the user's videos and
// shorts, together with caption edits and the history of workflow runs.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

// ErrNotFound is returned when a video, short or run is not in the library.
var ErrNotFound = errors.New("not found")

// Remote is the subset of the backend client the library talks to.
type Remote interface {
	ListVideos(ctx context.Context, page int) ([]cloud.Video, error)
	ListShorts(ctx context.Context, page int, status string) ([]cloud.Short, error)
	RenameVideo(ctx context.Context, id cloud.ID, fileName string) (*cloud.Video, error)
	DeleteVideo(ctx context.Context, id cloud.ID) error
	DeleteShort(ctx context.Context, id cloud.ID) error
	Download(ctx context.Context, fileURL string, w io.Writer) (int64, error)
}

// Option configures a Service.
type Option func(*Service)

// WithMaxPages bounds how many backend pages a sync reads.
func WithMaxPages(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithCacheDir sets where downloaded shorts are stored.
func WithCacheDir(dir string) Option {
	return func(s *Service) { s.cacheDir = dir }
}

type Service struct {
	repo     Repository
	remote   Remote
	logger   *slog.Logger
	maxPages int
	cacheDir string
}

// NewService creates a library service. remote may be nil for read-only use.
func NewService(repo Repository, remote Remote, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		repo:     repo,
		remote:   remote,
		logger:   logger.With("component", "library"),
		maxPages: 50,
		cacheDir: filepath.Join(os.TempDir(), "clipforge", "shorts"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Repo exposes the underlying repository.
func (s *Service) Repo() Repository {
	return s.repo
}

// SyncResult reports what a sync did.
type SyncResult struct {
	Fetched   int   `json:"fetched"`
	Pages     int   `json:"pages"`
	Truncated bool  `json:"truncated"`
	Pruned    int64 `json:"pruned"`
}

// SyncVideos pages through the backend video list and upserts every video.
// When the whole list was read, local videos missing remotely are removed.
func (s *Service) SyncVideos(ctx context.Context) (SyncResult, error) {
	if err := s.requireRemote(); err != nil {
		return SyncResult{}, err
	}
	var res SyncResult
	var seen []string
	truncated, err := s.paginate(ctx, &res, func(page int) (int, error) {
		videos, err := s.remote.ListVideos(ctx, page)
		if err != nil {
			return 0, err
		}
		for _, v := range videos {
			local := VideoFromCloud(v)
			if err := s.repo.UpsertVideo(ctx, local); err != nil {
				return 0, fmt.Errorf("store video %s: %w", local.ID, err)
			}
			seen = append(seen, local.ID)
		}
		return len(videos), nil
	})
	if err != nil {
		return res, err
	}
	res.Truncated = truncated
	if !truncated {
		pruned, err := s.repo.PruneVideos(ctx, seen)
		if err != nil {
			return res, fmt.Errorf("prune videos: %w", err)
		}
		res.Pruned = pruned
	}
	s.logger.Info("videos synced", "fetched", res.Fetched, "pages", res.Pages, "pruned", res.Pruned, "truncated", res.Truncated)
	return res, nil
}

// SyncShorts pages through the backend shorts list and upserts every short.
func (s *Service) SyncShorts(ctx context.Context) (SyncResult, error) {
	if err := s.requireRemote(); err != nil {
		return SyncResult{}, err
	}
	var res SyncResult
	truncated, err := s.paginate(ctx, &res, func(page int) (int, error) {
		shorts, err := s.remote.ListShorts(ctx, page, "")
		if err != nil {
			return 0, err
		}
		for _, sh := range shorts {
			local := ShortFromCloud(sh)
			if err := s.repo.UpsertShort(ctx, local); err != nil {
				return 0, fmt.Errorf("store short %s: %w", local.ID, err)
			}
		}
		return len(shorts), nil
	})
	res.Truncated = truncated
	if err != nil {
		return res, err
	}
	s.logger.Info("shorts synced", "fetched", res.Fetched, "pages", res.Pages, "truncated", res.Truncated)
	return res, nil
}

// paginate calls fetch for pages 1..maxPages until a page comes back empty
// or the backend answers 404 past the last page. It reports whether the
// page budget ran out first.
func (s *Service) paginate(ctx context.Context, res *SyncResult, fetch func(page int) (int, error)) (bool, error) {
	for page := 1; page <= s.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		n, err := fetch(page)
		if err != nil {
			if page > 1 && cloud.IsNotFound(err) {
				return false, nil
			}
			return false, fmt.Errorf("page %d: %w", page, err)
		}
		res.Pages++
		res.Fetched += n
		if n == 0 {
			return false, nil
		}
	}
	return true, nil
}

// StoreShorts upserts shorts fetched elsewhere, for example by a run.
func (s *Service) StoreShorts(ctx context.Context, shorts []cloud.Short) error {
	for _, sh := range shorts {
		if err := s.repo.UpsertShort(ctx, ShortFromCloud(sh)); err != nil {
			return fmt.Errorf("store short %s: %w", sh.ID, err)
		}
	}
	return nil
}

func (s *Service) ListVideos(ctx context.Context) ([]*Video, error) {
	return s.repo.ListVideos(ctx)
}

func (s *Service) GetVideo(ctx context.Context, id string) (*Video, error) {
	v, err := s.repo.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	return v, nil
}

// RenameVideo renames on the backend first, then locally.
func (s *Service) RenameVideo(ctx context.Context, id, fileName string) (*Video, error) {
	if fileName == "" {
		return nil, errors.New("file name is required")
	}
	if err := s.requireRemote(); err != nil {
		return nil, err
	}
	remote, err := s.remote.RenameVideo(ctx, cloud.ID(id), fileName)
	if err != nil {
		return nil, fmt.Errorf("rename video %s: %w", id, err)
	}

	local, err := s.repo.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	if local == nil {
		local = VideoFromCloud(*remote)
		local.FileName = fileName
		if err := s.repo.UpsertVideo(ctx, local); err != nil {
			return nil, err
		}
	}
	if err := s.repo.RenameVideo(ctx, id, fileName); err != nil {
		return nil, err
	}
	local.FileName = fileName
	s.logger.Info("video renamed", "video_id", id)
	return local, nil
}

// DeleteVideo deletes on the backend first, then removes the video, its
// shorts and their cached files locally. A video already gone remotely is
// still removed locally.
func (s *Service) DeleteVideo(ctx context.Context, id string) error {
	if err := s.requireRemote(); err != nil {
		return err
	}
	if err := s.remote.DeleteVideo(ctx, cloud.ID(id)); err != nil && !cloud.IsNotFound(err) {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	shorts, err := s.repo.ListShorts(ctx, ShortFilter{VideoID: id})
	if err != nil {
		return err
	}
	if err := s.repo.DeleteVideo(ctx, id); err != nil {
		return err
	}
	for _, sh := range shorts {
		s.removeCached(sh)
	}
	s.logger.Info("video deleted", "video_id", id, "shorts", len(shorts))
	return nil
}

func (s *Service) FilterShorts(ctx context.Context, filter ShortFilter) ([]*Short, error) {
	return s.repo.ListShorts(ctx, filter)
}

func (s *Service) GetShort(ctx context.Context, id string) (*Short, error) {
	sh, err := s.repo.GetShort(ctx, id)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, fmt.Errorf("short %s: %w", id, ErrNotFound)
	}
	return sh, nil
}

// DeleteShort deletes on the backend first, then locally.
func (s *Service) DeleteShort(ctx context.Context, id string) error {
	if err := s.requireRemote(); err != nil {
		return err
	}
	if err := s.remote.DeleteShort(ctx, cloud.ID(id)); err != nil && !cloud.IsNotFound(err) {
		return fmt.Errorf("delete short %s: %w", id, err)
	}
	sh, err := s.repo.GetShort(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteShort(ctx, id); err != nil {
		return err
	}
	if sh != nil {
		s.removeCached(sh)
	}
	return nil
}

// SetCaption stores the caption of a known short. Empty text is allowed and
// clears the caption.
func (s *Service) SetCaption(ctx context.Context, shortID, text string) (*Caption, error) {
	if _, err := s.GetShort(ctx, shortID); err != nil {
		return nil, err
	}
	return s.repo.SetCaption(ctx, shortID, text)
}

// Caption returns the caption of a short, or an empty caption.
func (s *Service) Caption(ctx context.Context, shortID string) (*Caption, error) {
	c, err := s.repo.GetCaption(ctx, shortID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return &Caption{ShortID: shortID}, nil
	}
	return c, nil
}

// Captions returns the video's shorts in segment order with their captions.
func (s *Service) Captions(ctx context.Context, videoID string) ([]*Short, map[string]*Caption, error) {
	shorts, err := s.repo.ListShorts(ctx, ShortFilter{VideoID: videoID})
	if err != nil {
		return nil, nil, err
	}
	captions, err := s.repo.CaptionsByVideo(ctx, videoID)
	if err != nil {
		return nil, nil, err
	}
	return shorts, captions, nil
}

// DownloadShort caches the clip under cacheDir/<id>.mp4 and returns its path.
// A cached file is reused.
func (s *Service) DownloadShort(ctx context.Context, id string) (string, error) {
	sh, err := s.GetShort(ctx, id)
	if err != nil {
		return "", err
	}
	if sh.LocalPath != "" {
		if info, err := os.Stat(sh.LocalPath); err == nil && info.Size() > 0 {
			return sh.LocalPath, nil
		}
	}
	if err := s.requireRemote(); err != nil {
		return "", err
	}
	if sh.FileURL == "" {
		return "", fmt.Errorf("short %s has no file yet", id)
	}

	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	dest := filepath.Join(s.cacheDir, cacheName(id))
	tmp, err := os.CreateTemp(s.cacheDir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	n, err := s.remote.Download(ctx, sh.FileURL, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download short %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	if err := s.repo.SetShortLocalPath(ctx, id, dest); err != nil {
		return "", err
	}
	s.logger.Info("short downloaded", "short_id", id, "bytes", n)
	return dest, nil
}

func (s *Service) removeCached(sh *Short) {
	if sh.LocalPath == "" {
		return
	}
	if err := os.Remove(sh.LocalPath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove cached short", "short_id", sh.ID, "error", err)
	}
}

func cacheName(id string) string {
	return filepath.Base(filepath.Clean("/"+id)) + ".mp4"
}

// StartRun records a run that has just begun.
func (s *Service) StartRun(ctx context.Context, runID, fileName string, startedAt time.Time) error {
	return s.repo.CreateRun(ctx, &RunRecord{
		ID:        runID,
		FileName:  fileName,
		Status:    RunStatusRunning,
		StartedAt: startedAt,
	})
}

// RecordRun stores the outcome and the log of a finished run. The run row is
// created if StartRun was never called for it.
func (s *Service) RecordRun(ctx context.Context, runID, fileName string, out workflow.Outcome, entries []workflow.LogEntry) error {
	now := time.Now().UTC()
	existing, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if existing == nil {
		started := now
		if len(entries) > 0 {
			started = entries[0].Time
		}
		if err := s.StartRun(ctx, runID, fileName, started); err != nil {
			return err
		}
	}

	logs := make([]RunLog, len(entries))
	for i, e := range entries {
		logs[i] = RunLog{RunID: runID, Seq: e.Seq, Level: string(e.Level), Message: e.Message, CreatedAt: e.Time}
	}
	if err := s.repo.AppendRunLogs(ctx, logs); err != nil {
		return fmt.Errorf("store run logs: %w", err)
	}

	if err := s.repo.FinishRun(ctx, &RunRecord{
		ID:          runID,
		VideoID:     out.VideoID.String(),
		Status:      string(out.Kind),
		Reason:      out.Reason,
		ShortsCount: len(out.Shorts),
		FinishedAt:  &now,
	}); err != nil {
		return err
	}
	if len(out.Shorts) > 0 {
		if err := s.StoreShorts(ctx, out.Shorts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	return s.repo.ListRuns(ctx, limit)
}

func (s *Service) RunLogs(ctx context.Context, runID string) ([]RunLog, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return s.repo.RunLogs(ctx, runID)
}

func (s *Service) requireRemote() error {
	if s.remote == nil {
		return errors.New("library: no backend configured")
	}
	return nil
}
