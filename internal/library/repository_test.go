package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipforge-agent/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, *SQLiteRepository) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database, NewRepository(database.Conn())
}

func seedShorts(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	shorts := []*Short{
		{ID: "1", VideoID: "10", VideoTitle: "Holiday Trip", StartSecond: 30, EndSecond: 60, Status: "ready", CreatedAt: "2025-01-01T10:00:00Z"},
		{ID: "2", VideoID: "10", VideoTitle: "Holiday Trip", StartSecond: 0, EndSecond: 30, Status: "generating", CreatedAt: "2025-01-01T10:01:00Z"},
		{ID: "3", VideoID: "11", VideoTitle: "Cooking Show", StartSecond: 5, EndSecond: 20, Status: "ready", CreatedAt: "2025-01-02T10:00:00Z"},
		{ID: "4", VideoID: "11", VideoTitle: "Cooking Show", StartSecond: 20, EndSecond: 50, Status: "failed", CreatedAt: "2025-01-02T10:01:00Z"},
	}
	for _, s := range shorts {
		if err := repo.UpsertShort(ctx, s); err != nil {
			t.Fatalf("UpsertShort(%s) error = %v", s.ID, err)
		}
	}
}

func TestRepository_ListShortsFilter(t *testing.T) {
	_, repo := setupTestDB(t)
	seedShorts(t, repo)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter ShortFilter
		want   []string
	}{
		{"all", ShortFilter{Status: FilterAll}, []string{"4", "3", "2", "1"}},
		{"empty status is all", ShortFilter{}, []string{"4", "3", "2", "1"}},
		{"completed means ready", ShortFilter{Status: "Completed"}, []string{"3", "1"}},
		{"processing means generating", ShortFilter{Status: FilterProcessing}, []string{"2"}},
		{"literal status", ShortFilter{Status: "failed"}, []string{"4"}},
		{"search is case insensitive", ShortFilter{Query: "holiday"}, []string{"2", "1"}},
		{"search and status", ShortFilter{Status: FilterCompleted, Query: "COOK"}, []string{"3"}},
		{"no match", ShortFilter{Query: "nothing"}, nil},
		{"by video in segment order", ShortFilter{VideoID: "10"}, []string{"2", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListShorts(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListShorts() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListShorts() returned %d shorts, want %d", len(got), len(tt.want))
			}
			for i, s := range got {
				if s.ID != tt.want[i] {
					t.Errorf("shorts[%d].ID = %s, want %s", i, s.ID, tt.want[i])
				}
			}
		})
	}
}

func TestRepository_UpsertShortKeepsLocalPath(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	s := &Short{ID: "1", VideoID: "10", Status: "generating"}
	if err := repo.UpsertShort(ctx, s); err != nil {
		t.Fatalf("UpsertShort() error = %v", err)
	}
	if err := repo.SetShortLocalPath(ctx, "1", "/cache/1.mp4"); err != nil {
		t.Fatalf("SetShortLocalPath() error = %v", err)
	}
	if err := repo.UpsertShort(ctx, &Short{ID: "1", VideoID: "10", Status: "ready", FileURL: "http://cdn/1.mp4"}); err != nil {
		t.Fatalf("UpsertShort() error = %v", err)
	}

	got, err := repo.GetShort(ctx, "1")
	if err != nil || got == nil {
		t.Fatalf("GetShort() = %v, %v", got, err)
	}
	if got.Status != "ready" || got.FileURL != "http://cdn/1.mp4" {
		t.Errorf("short not updated: %+v", got)
	}
	if got.LocalPath != "/cache/1.mp4" {
		t.Errorf("LocalPath = %q, want kept", got.LocalPath)
	}
}

func TestRepository_DeleteVideoRemovesShortsAndCaptions(t *testing.T) {
	_, repo := setupTestDB(t)
	seedShorts(t, repo)
	ctx := context.Background()

	if err := repo.UpsertVideo(ctx, &Video{ID: "10", FileName: "Holiday Trip"}); err != nil {
		t.Fatalf("UpsertVideo() error = %v", err)
	}
	if _, err := repo.SetCaption(ctx, "1", "sunset"); err != nil {
		t.Fatalf("SetCaption() error = %v", err)
	}
	if _, err := repo.SetCaption(ctx, "3", "onions"); err != nil {
		t.Fatalf("SetCaption() error = %v", err)
	}

	if err := repo.DeleteVideo(ctx, "10"); err != nil {
		t.Fatalf("DeleteVideo() error = %v", err)
	}

	if v, _ := repo.GetVideo(ctx, "10"); v != nil {
		t.Error("video still present")
	}
	if shorts, _ := repo.ListShorts(ctx, ShortFilter{VideoID: "10"}); len(shorts) != 0 {
		t.Errorf("shorts left = %d, want 0", len(shorts))
	}
	if c, _ := repo.GetCaption(ctx, "1"); c != nil {
		t.Error("caption of deleted short still present")
	}
	if c, _ := repo.GetCaption(ctx, "3"); c == nil || c.Text != "onions" {
		t.Errorf("unrelated caption = %+v", c)
	}
}

func TestRepository_RenameVideoUpdatesShortTitles(t *testing.T) {
	_, repo := setupTestDB(t)
	seedShorts(t, repo)
	ctx := context.Background()
	repo.UpsertVideo(ctx, &Video{ID: "10", FileName: "Holiday Trip"})

	if err := repo.RenameVideo(ctx, "10", "Summer 2025"); err != nil {
		t.Fatalf("RenameVideo() error = %v", err)
	}
	v, _ := repo.GetVideo(ctx, "10")
	if v.FileName != "Summer 2025" {
		t.Errorf("FileName = %q", v.FileName)
	}
	shorts, _ := repo.ListShorts(ctx, ShortFilter{Query: "summer"})
	if len(shorts) != 2 {
		t.Errorf("shorts with new title = %d, want 2", len(shorts))
	}
}

func TestRepository_Captions(t *testing.T) {
	_, repo := setupTestDB(t)
	seedShorts(t, repo)
	ctx := context.Background()

	if c, err := repo.GetCaption(ctx, "1"); err != nil || c != nil {
		t.Fatalf("GetCaption() before set = %v, %v", c, err)
	}
	repo.SetCaption(ctx, "1", "first")
	repo.SetCaption(ctx, "1", "second")
	repo.SetCaption(ctx, "2", "other")

	c, err := repo.GetCaption(ctx, "1")
	if err != nil || c == nil || c.Text != "second" {
		t.Fatalf("GetCaption() = %+v, %v", c, err)
	}
	if c.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	byVideo, err := repo.CaptionsByVideo(ctx, "10")
	if err != nil {
		t.Fatalf("CaptionsByVideo() error = %v", err)
	}
	if len(byVideo) != 2 || byVideo["2"].Text != "other" {
		t.Errorf("CaptionsByVideo() = %+v", byVideo)
	}
}

func TestRepository_Runs(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b"} {
		err := repo.CreateRun(ctx, &RunRecord{ID: id, FileName: "clip.mp4", StartedAt: start.Add(time.Duration(i) * time.Minute)})
		if err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}
	}

	finished := start.Add(2 * time.Minute)
	if err := repo.FinishRun(ctx, &RunRecord{ID: "run-a", VideoID: "7", Status: RunStatusSucceeded, ShortsCount: 3, FinishedAt: &finished}); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	if err := repo.FinishRun(ctx, &RunRecord{ID: "missing", Status: RunStatusFailed}); err == nil {
		t.Error("FinishRun() on unknown run should fail")
	}

	runs, err := repo.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" {
		t.Fatalf("ListRuns() = %+v, want newest first", runs)
	}
	if runs[0].Status != RunStatusRunning || runs[0].FinishedAt != nil {
		t.Errorf("unfinished run = %+v", runs[0])
	}
	a := runs[1]
	if a.Status != RunStatusSucceeded || a.VideoID != "7" || a.ShortsCount != 3 {
		t.Errorf("finished run = %+v", a)
	}
	if a.FinishedAt == nil || !a.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", a.FinishedAt, finished)
	}

	logs := []RunLog{
		{RunID: "run-a", Seq: 1, Level: "info", Message: "one", CreatedAt: start},
		{RunID: "run-a", Seq: 2, Level: "success", Message: "two", CreatedAt: start},
	}
	if err := repo.AppendRunLogs(ctx, logs); err != nil {
		t.Fatalf("AppendRunLogs() error = %v", err)
	}
	if err := repo.AppendRunLogs(ctx, logs[:1]); err != nil {
		t.Fatalf("AppendRunLogs() duplicate error = %v", err)
	}
	got, err := repo.RunLogs(ctx, "run-a")
	if err != nil {
		t.Fatalf("RunLogs() error = %v", err)
	}
	if len(got) != 2 || got[1].Message != "two" {
		t.Errorf("RunLogs() = %+v", got)
	}
}

func TestRepository_Config(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	if v, err := repo.GetConfig(ctx, ConfigKeyAPIToken); err != nil || v != "" {
		t.Fatalf("GetConfig() = %q, %v", v, err)
	}
	repo.SetConfig(ctx, ConfigKeyAPIToken, "abc")
	repo.SetConfig(ctx, ConfigKeyAPIToken, "def")
	if v, _ := repo.GetConfig(ctx, ConfigKeyAPIToken); v != "def" {
		t.Errorf("GetConfig() = %q, want def", v)
	}
}

func TestRepository_PruneVideos(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		repo.UpsertVideo(ctx, &Video{ID: id})
	}

	n, err := repo.PruneVideos(ctx, []string{"2"})
	if err != nil {
		t.Fatalf("PruneVideos() error = %v", err)
	}
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	videos, _ := repo.ListVideos(ctx)
	if len(videos) != 1 || videos[0].ID != "2" {
		t.Errorf("videos = %+v", videos)
	}
}
