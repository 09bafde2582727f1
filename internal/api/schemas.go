package api

import (
	"time"

	"github.com/clipforge/clipforge-agent/internal/library"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	Phase    workflow.Phase     `json:"phase"`
	Run      *workflow.Snapshot `json:"run,omitempty"`
	LoggedIn bool               `json:"logged_in"`
	User     string             `json:"user,omitempty"`
}

type StartRunRequest struct {
	Path string `json:"path"`
}

type StartRunResponse struct {
	RunID    string         `json:"run_id"`
	FileName string         `json:"file_name"`
	Phase    workflow.Phase `json:"phase"`
}

type LogsResponse struct {
	RunID   string              `json:"run_id,omitempty"`
	Phase   workflow.Phase      `json:"phase"`
	Entries []workflow.LogEntry `json:"entries"`
	LastSeq int64               `json:"last_seq"`
}

type RunResponse struct {
	ID          string  `json:"id"`
	FileName    string  `json:"file_name"`
	VideoID     string  `json:"video_id,omitempty"`
	Status      string  `json:"status"`
	Reason      string  `json:"reason,omitempty"`
	ShortsCount int     `json:"shorts_count"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  *string `json:"finished_at,omitempty"`
}

type RunsResponse struct {
	Runs []RunResponse `json:"runs"`
}

type RunLogsResponse struct {
	RunID   string           `json:"run_id"`
	Entries []library.RunLog `json:"entries"`
}

type VideosResponse struct {
	Videos []*library.Video    `json:"videos"`
	Sync   *library.SyncResult `json:"sync,omitempty"`
}

type RenameVideoRequest struct {
	FileName string `json:"file_name"`
}

type VideoStatusResponse struct {
	VideoID  string  `json:"video_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
}

type ShortsResponse struct {
	Shorts []*library.Short `json:"shorts"`
}

type CaptionRequest struct {
	Text string `json:"text"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RunToResponse(r *library.RunRecord) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		FileName:    r.FileName,
		VideoID:     r.VideoID,
		Status:      r.Status,
		Reason:      r.Reason,
		ShortsCount: r.ShortsCount,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		finished := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &finished
	}
	return resp
}

// logsResponse carries the cursor forward so an empty poll keeps since.
func logsResponse(snap workflow.Snapshot, entries []workflow.LogEntry, since int64) LogsResponse {
	resp := LogsResponse{RunID: snap.RunID, Phase: snap.Phase, Entries: entries, LastSeq: since}
	if n := len(entries); n > 0 {
		resp.LastSeq = entries[n-1].Seq
	}
	return resp
}
