package library

import (
	"strings"
	"time"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

// Video is the local mirror of a backend video.
type Video struct {
	ID              string    `json:"id"`
	FileName        string    `json:"file_name"`
	FileURL         string    `json:"file_url"`
	DurationSeconds float64   `json:"duration_seconds"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	AspectRatio     string    `json:"aspect_ratio"`
	FileSize        int64     `json:"file_size"`
	Status          string    `json:"status"`
	CreatedAt       string    `json:"created_at"`
	SyncedAt        time.Time `json:"synced_at"`
}

// Short is the local mirror of a generated short. LocalPath is set once the
// clip has been downloaded for playback.
type Short struct {
	ID              string    `json:"id"`
	VideoID         string    `json:"video_id"`
	VideoTitle      string    `json:"video_title"`
	FileURL         string    `json:"file_url"`
	CoverURL        string    `json:"cover_url"`
	StartSecond     float64   `json:"start_second"`
	EndSecond       float64   `json:"end_second"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          string    `json:"status"`
	CreatedAt       string    `json:"created_at"`
	LocalPath       string    `json:"local_path,omitempty"`
	SyncedAt        time.Time `json:"synced_at"`
}

// Caption is a local text edit attached to one short.
type Caption struct {
	ShortID   string    `json:"short_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Run status values. Finished runs carry the workflow outcome kind.
const (
	RunStatusRunning         = "running"
	RunStatusSucceeded       = string(workflow.Succeeded)
	RunStatusTimedOutEmpty   = string(workflow.TimedOutEmpty)
	RunStatusTimedOutPartial = string(workflow.TimedOutPartial)
	RunStatusFailed          = string(workflow.Failed)
	RunStatusCancelled       = string(workflow.Cancelled)
)

// RunRecord is the persisted history of one workflow run.
type RunRecord struct {
	ID          string     `json:"id"`
	FileName    string     `json:"file_name"`
	VideoID     string     `json:"video_id,omitempty"`
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	ShortsCount int        `json:"shorts_count"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RunLog is one persisted progress entry.
type RunLog struct {
	RunID     string    `json:"run_id"`
	Seq       int64     `json:"seq"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Short filters, as offered by the shorts library view.
const (
	FilterAll        = "all"
	FilterCompleted  = "completed"
	FilterProcessing = "processing"
)

// ShortFilter narrows ListShorts. Query matches video titles case-insensitively.
type ShortFilter struct {
	Status  string
	Query   string
	VideoID string
}

// StatusValue maps a filter name to the stored short status, or "" for all.
// Unknown names are treated as literal statuses.
func (f ShortFilter) StatusValue() string {
	switch s := strings.ToLower(strings.TrimSpace(f.Status)); s {
	case "", FilterAll:
		return ""
	case FilterCompleted:
		return cloud.ShortStatusReady
	case FilterProcessing:
		return cloud.ShortStatusGenerating
	default:
		return s
	}
}

// ConfigKeyAPIToken holds the bearer token of the local API.
const ConfigKeyAPIToken = "api_token"

// VideoFromCloud converts a backend video.
func VideoFromCloud(v cloud.Video) *Video {
	return &Video{
		ID:              v.ID.String(),
		FileName:        v.FileName,
		FileURL:         v.FileURL,
		DurationSeconds: v.DurationSeconds,
		Width:           v.Width,
		Height:          v.Height,
		AspectRatio:     v.AspectRatio,
		FileSize:        v.FileSize,
		Status:          v.Status,
		CreatedAt:       v.CreatedAt,
	}
}

// ShortFromCloud converts a backend short.
func ShortFromCloud(s cloud.Short) *Short {
	return &Short{
		ID:              s.ID.String(),
		VideoID:         s.Video.String(),
		VideoTitle:      s.VideoTitle,
		FileURL:         s.FileURL,
		CoverURL:        s.CoverURL,
		StartSecond:     s.StartSecond,
		EndSecond:       s.EndSecond,
		DurationSeconds: s.Duration(),
		Status:          s.Status,
		CreatedAt:       s.CreatedAt,
	}
}

// Duration returns the clip length.
func (s *Short) Duration() float64 {
	if s.DurationSeconds > 0 {
		return s.DurationSeconds
	}
	if d := s.EndSecond - s.StartSecond; d > 0 {
		return d
	}
	return 0
}
