package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/export"
	"github.com/clipforge/clipforge-agent/internal/library"
	"github.com/clipforge/clipforge-agent/internal/session"
	"github.com/clipforge/clipforge-agent/internal/workflow"
)

const testToken = "local-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// mp4Bytes is an ftyp box with padding, enough for MIME sniffing.
func mp4Bytes() []byte {
	b := []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0, 'i', 's', 'o', 'm', 'm', 'p', '4', '1'}
	return append(b, bytes.Repeat([]byte{0}, 64)...)
}

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) GetConfig(ctx context.Context, key string) (string, error) {
	if key != library.ConfigKeyAPIToken {
		return "", nil
	}
	return f.token, f.err
}

// gateBackend blocks uploads until the run context ends.
type gateBackend struct{}

func (gateBackend) UploadVideo(ctx context.Context, file cloud.UploadFile) (*cloud.UploadResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (gateBackend) ShortsByVideo(ctx context.Context, videoID cloud.ID, page int) ([]cloud.Short, error) {
	return nil, nil
}

type fakeLibrary struct {
	mu sync.Mutex

	videos   map[string]*library.Video
	shorts   map[string]*library.Short
	captions map[string]*library.Caption
	runs     []*library.RunRecord
	logs     map[string][]library.RunLog

	syncs      int
	lastFilter library.ShortFilter
	remoteErr  error
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		videos:   map[string]*library.Video{"7": {ID: "7", FileName: "trip.mp4", Status: "ready"}},
		shorts:   map[string]*library.Short{"1": {ID: "1", VideoID: "7", VideoTitle: "trip.mp4", StartSecond: 0, EndSecond: 30, Status: "ready"}},
		captions: map[string]*library.Caption{},
		logs:     map[string][]library.RunLog{},
	}
}

func (f *fakeLibrary) SyncVideos(ctx context.Context) (library.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return library.SyncResult{}, f.remoteErr
	}
	f.syncs++
	return library.SyncResult{Fetched: len(f.videos), Pages: 1}, nil
}

func (f *fakeLibrary) ListVideos(ctx context.Context) ([]*library.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*library.Video, 0, len(f.videos))
	for _, v := range f.videos {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeLibrary) RenameVideo(ctx context.Context, id, fileName string) (*library.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.videos[id]
	if !ok {
		return nil, &cloud.APIError{Method: "PATCH", Path: "/videos/" + id + "/", StatusCode: http.StatusNotFound}
	}
	v.FileName = fileName
	return v, nil
}

func (f *fakeLibrary) DeleteVideo(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	delete(f.videos, id)
	return nil
}

func (f *fakeLibrary) FilterShorts(ctx context.Context, filter library.ShortFilter) ([]*library.Short, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []*library.Short
	for _, s := range f.shorts {
		if filter.StatusValue() == "" || s.Status == filter.StatusValue() {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeLibrary) GetShort(ctx context.Context, id string) (*library.Short, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shorts[id]
	if !ok {
		return nil, library.ErrNotFound
	}
	return s, nil
}

func (f *fakeLibrary) DeleteShort(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.shorts, id)
	return nil
}

func (f *fakeLibrary) Caption(ctx context.Context, shortID string) (*library.Caption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.captions[shortID]; ok {
		return c, nil
	}
	return &library.Caption{ShortID: shortID}, nil
}

func (f *fakeLibrary) SetCaption(ctx context.Context, shortID, text string) (*library.Caption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shorts[shortID]; !ok {
		return nil, library.ErrNotFound
	}
	c := &library.Caption{ShortID: shortID, Text: text, UpdatedAt: time.Now()}
	f.captions[shortID] = c
	return c, nil
}

func (f *fakeLibrary) ListRuns(ctx context.Context, limit int) ([]*library.RunRecord, error) {
	return f.runs, nil
}

func (f *fakeLibrary) RunLogs(ctx context.Context, runID string) ([]library.RunLog, error) {
	logs, ok := f.logs[runID]
	if !ok {
		return nil, library.ErrNotFound
	}
	return logs, nil
}

type fakeStatus struct {
	status *cloud.VideoStatus
	err    error
}

func (f *fakeStatus) VideoStatus(ctx context.Context, id cloud.ID) (*cloud.VideoStatus, error) {
	return f.status, f.err
}

type fakePlayback struct {
	err error
}

func (f *fakePlayback) ServeShort(w http.ResponseWriter, r *http.Request, shortID string) error {
	if f.err != nil {
		return f.err
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write([]byte("clip-" + shortID))
	}
	return nil
}

type fakeExporter struct {
	res *export.Result
	err error
	got export.Request
}

func (f *fakeExporter) Build(ctx context.Context, req export.Request) (*export.Result, error) {
	f.got = req
	return f.res, f.err
}

type testEnv struct {
	cfg      ServerConfig
	router   http.Handler
	wf       *workflow.Workflow
	lib      *fakeLibrary
	exporter *fakeExporter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := gateBackend{}
	wf := workflow.New(backend, workflow.ShortsProbe{Lister: backend}, workflow.DefaultConfig(), testLogger(),
		workflow.WithClock(&workflow.InstantClock{}))
	t.Cleanup(wf.Reset)

	env := &testEnv{wf: wf, lib: newFakeLibrary(), exporter: &fakeExporter{}}
	env.cfg = ServerConfig{
		UploadDir: t.TempDir(),
		Workflow:  wf,
		Library:   env.lib,
		Exporter:  env.exporter,
		Playback:  &fakePlayback{},
		Status:    &fakeStatus{status: &cloud.VideoStatus{Status: "processing", Progress: 40}},
		Session: session.NewMemoryStore(session.Session{
			Token: "backend-token",
			User:  cloud.User{ID: "3", Username: "ana"},
		}),
		Tokens:    &fakeTokens{token: testToken},
		Logger:    testLogger(),
		StartTime: time.Now(),
	}
	env.router = NewRouter(env.cfg)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("json.Marshal error: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trip.mp4")
	if err := os.WriteFile(path, mp4Bytes(), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" || body["version"] != defaultVersion {
		t.Errorf("body = %v", body)
	}
}

func TestAuth_Rejects(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Token " + testToken},
		{"wrong token", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			env.router.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuth_MissingStoredToken(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Tokens = &fakeTokens{}
	router := NewRouter(env.cfg)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestStatus_IdleWithUser(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["phase"] != string(workflow.PhaseIdle) {
		t.Errorf("phase = %v, want idle", body["phase"])
	}
	if body["logged_in"] != true || body["user"] != "ana" {
		t.Errorf("session = %v / %v", body["logged_in"], body["user"])
	}
	if _, ok := body["run"]; ok {
		t.Error("run should be omitted before any run")
	}
}

func TestStartRun_PathCancelAndLogs(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/runs", StartRunRequest{Path: writeVideo(t)})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("POST /runs status = %d, body = %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["run_id"] == "" || body["phase"] != string(workflow.PhaseProcessing) || body["file_name"] != "trip.mp4" {
		t.Errorf("start body = %v", body)
	}

	waitFor(t, "upload log entry", func() bool { return env.wf.Log().Len() >= 1 })

	rr = env.do(t, http.MethodGet, "/runs/current/logs?since=0", nil)
	var logs LogsResponse
	if err := json.NewDecoder(rr.Body).Decode(&logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs.Entries) == 0 || logs.Entries[0].Message != workflow.MsgUploading {
		t.Fatalf("logs = %+v", logs)
	}
	if logs.LastSeq != logs.Entries[len(logs.Entries)-1].Seq {
		t.Errorf("LastSeq = %d", logs.LastSeq)
	}

	rr = env.do(t, http.MethodGet, "/runs/current/logs?since=99", nil)
	if err := json.NewDecoder(rr.Body).Decode(&logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(logs.Entries) != 0 || logs.LastSeq != 99 {
		t.Errorf("empty poll = %+v, want no entries and cursor 99", logs)
	}

	rr = env.do(t, http.MethodGet, "/runs/current/logs?since=99&run_id=earlier-run", nil)
	logs = LogsResponse{}
	if err := json.NewDecoder(rr.Body).Decode(&logs); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if logs.RunID != body["run_id"] || len(logs.Entries) == 0 || logs.Entries[0].Seq != 1 {
		t.Errorf("poll with another run's cursor = %+v, want current run from seq 1", logs)
	}

	if rr := env.do(t, http.MethodDelete, "/runs/current", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("DELETE /runs/current status = %d", rr.Code)
	}
	if got := env.wf.Phase(); got != workflow.PhaseIdle {
		t.Errorf("phase after cancel = %q, want idle", got)
	}
	if rr := env.do(t, http.MethodDelete, "/runs/current", nil); rr.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestStartRun_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	textPath := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(textPath, []byte("hello"), 0o644)
	fakeVideo := filepath.Join(t.TempDir(), "fake.mp4")
	os.WriteFile(fakeVideo, []byte("just some text, not a container"), 0o644)

	tests := []struct {
		name string
		body any
		want int
		code string
	}{
		{"bad json", "{", http.StatusBadRequest, "BAD_REQUEST"},
		{"empty path", StartRunRequest{}, http.StatusBadRequest, "BAD_REQUEST"},
		{"text extension", StartRunRequest{Path: textPath}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"text content", StartRunRequest{Path: fakeVideo}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing file", StartRunRequest{Path: "/nonexistent/clip.mp4"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/runs", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
			if body := decodeJSONBody(t, rr); body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
	if env.wf.Active() {
		t.Error("rejected uploads must not start a run")
	}
}

func multipartRequest(t *testing.T, field, name string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("note", "ignored")
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/runs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

func TestStartRun_Multipart(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, multipartRequest(t, "video", "beach.mp4", mp4Bytes()))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if got := env.wf.Snapshot().FileName; got != "beach.mp4" {
		t.Errorf("FileName = %q, want beach.mp4", got)
	}

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, multipartRequest(t, "video", "beach.mp4", []byte("plain text")))
	if rr.Code != http.StatusBadRequest || decodeJSONBody(t, rr)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("non-video status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, multipartRequest(t, "file", "beach.mp4", mp4Bytes()))
	if rr.Code != http.StatusBadRequest || decodeJSONBody(t, rr)["code"] != "BAD_REQUEST" {
		t.Fatalf("missing field status = %d", rr.Code)
	}

	// Only the accepted upload, still in flight, keeps its spooled copy.
	entries, _ := os.ReadDir(env.cfg.UploadDir)
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "upload-") {
		t.Errorf("upload dir = %v, want the accepted upload only", entries)
	}
}

func TestCurrentLogs_BadSince(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"abc", "-1"} {
		if rr := env.do(t, http.MethodGet, "/runs/current/logs?since="+q, nil); rr.Code != http.StatusBadRequest {
			t.Errorf("since=%s status = %d, want 400", q, rr.Code)
		}
	}
}

func TestResetRun(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/runs", StartRunRequest{Path: writeVideo(t)})
	waitFor(t, "upload log entry", func() bool { return env.wf.Log().Len() >= 1 })

	if rr := env.do(t, http.MethodPost, "/runs/current/reset", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d", rr.Code)
	}
	rr := env.do(t, http.MethodGet, "/runs/current", nil)
	var snap workflow.Snapshot
	json.NewDecoder(rr.Body).Decode(&snap)
	if snap.Phase != workflow.PhaseIdle || snap.RunID != "" || snap.LogLen != 0 {
		t.Errorf("snapshot after reset = %+v", snap)
	}
}

func TestRunHistory(t *testing.T) {
	env := newTestEnv(t)
	finished := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	env.lib.runs = []*library.RunRecord{{
		ID: "r1", FileName: "trip.mp4", VideoID: "7", Status: library.RunStatusSucceeded, ShortsCount: 3,
		StartedAt: finished.Add(-time.Minute), FinishedAt: &finished,
	}}
	env.lib.logs["r1"] = []library.RunLog{{RunID: "r1", Seq: 1, Level: "info", Message: workflow.MsgUploading}}

	rr := env.do(t, http.MethodGet, "/runs", nil)
	var runs RunsResponse
	json.NewDecoder(rr.Body).Decode(&runs)
	if len(runs.Runs) != 1 || runs.Runs[0].Status != "succeeded" || runs.Runs[0].FinishedAt == nil {
		t.Fatalf("runs = %+v", runs)
	}
	if *runs.Runs[0].FinishedAt != "2026-03-01T10:05:00Z" {
		t.Errorf("FinishedAt = %s", *runs.Runs[0].FinishedAt)
	}

	if rr := env.do(t, http.MethodGet, "/runs/r1/logs", nil); rr.Code != http.StatusOK {
		t.Errorf("run logs status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/runs/missing/logs", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want 404", rr.Code)
	}
}

func TestVideos(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/videos", nil)
	body := decodeJSONBody(t, rr)
	if videos, _ := body["videos"].([]any); len(videos) != 1 {
		t.Fatalf("videos = %v", body["videos"])
	}
	if _, ok := body["sync"]; ok || env.lib.syncs != 0 {
		t.Error("plain list must not sync")
	}

	rr = env.do(t, http.MethodGet, "/videos?sync=1", nil)
	if body := decodeJSONBody(t, rr); body["sync"] == nil || env.lib.syncs != 1 {
		t.Errorf("sync = %v, syncs = %d", body["sync"], env.lib.syncs)
	}

	if rr := env.do(t, http.MethodPatch, "/videos/7", RenameVideoRequest{FileName: "  "}); rr.Code != http.StatusBadRequest {
		t.Errorf("blank rename status = %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPatch, "/videos/404", RenameVideoRequest{FileName: "x.mp4"}); rr.Code != http.StatusNotFound {
		t.Errorf("unknown rename status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodPatch, "/videos/7", RenameVideoRequest{FileName: "Trip to Córdoba"})
	if body := decodeJSONBody(t, rr); rr.Code != http.StatusOK || body["file_name"] != "Trip to Córdoba" {
		t.Errorf("rename = %d %v", rr.Code, body)
	}

	if rr := env.do(t, http.MethodDelete, "/videos/7", nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rr.Code)
	}
}

func TestVideos_BackendErrors(t *testing.T) {
	env := newTestEnv(t)
	env.lib.remoteErr = cloud.ErrNotAuthenticated
	if rr := env.do(t, http.MethodGet, "/videos?sync=true", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("sync without login status = %d, want 401", rr.Code)
	}
	env.lib.remoteErr = &cloud.APIError{Method: "DELETE", Path: "/videos/7/", StatusCode: 500}
	rr := env.do(t, http.MethodDelete, "/videos/7", nil)
	if rr.Code != http.StatusBadGateway || decodeJSONBody(t, rr)["code"] != "BACKEND_ERROR" {
		t.Errorf("backend failure status = %d", rr.Code)
	}
	env.lib.remoteErr = errors.New("disk full")
	if rr := env.do(t, http.MethodDelete, "/videos/7", nil); rr.Code != http.StatusInternalServerError {
		t.Errorf("local failure status = %d", rr.Code)
	}
}

func TestVideoStatus(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/videos/7/status", nil)
	var st VideoStatusResponse
	json.NewDecoder(rr.Body).Decode(&st)
	if st.VideoID != "7" || st.Status != "processing" || st.Progress != 40 {
		t.Errorf("status = %+v", st)
	}

	env.cfg.Status = nil
	env.router = NewRouter(env.cfg)
	if rr := env.do(t, http.MethodGet, "/videos/7/status", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("no backend status = %d", rr.Code)
	}
}

func TestShorts(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/shorts?status=Completed&q=trip", nil)
	var shorts ShortsResponse
	json.NewDecoder(rr.Body).Decode(&shorts)
	if len(shorts.Shorts) != 1 {
		t.Fatalf("shorts = %+v", shorts)
	}
	if env.lib.lastFilter.Status != "Completed" || env.lib.lastFilter.Query != "trip" {
		t.Errorf("filter = %+v", env.lib.lastFilter)
	}

	rr = env.do(t, http.MethodGet, "/shorts?status=processing", nil)
	json.NewDecoder(rr.Body).Decode(&shorts)
	if shorts.Shorts == nil || len(shorts.Shorts) != 0 {
		t.Errorf("processing shorts = %+v, want empty list", shorts.Shorts)
	}

	if rr := env.do(t, http.MethodDelete, "/shorts/1", nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rr.Code)
	}
}

func TestCaptions(t *testing.T) {
	env := newTestEnv(t)

	if rr := env.do(t, http.MethodGet, "/shorts/99/captions", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown short status = %d, want 404", rr.Code)
	}
	rr := env.do(t, http.MethodGet, "/shorts/1/captions", nil)
	if body := decodeJSONBody(t, rr); body["short_id"] != "1" || body["text"] != "" {
		t.Errorf("empty caption = %v", body)
	}

	rr = env.do(t, http.MethodPut, "/shorts/1/captions", CaptionRequest{Text: "Arrival at dawn"})
	if rr.Code != http.StatusOK {
		t.Fatalf("put status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/shorts/1/captions", nil)
	if body := decodeJSONBody(t, rr); body["text"] != "Arrival at dawn" {
		t.Errorf("caption = %v", body)
	}
	if rr := env.do(t, http.MethodPut, "/shorts/99/captions", CaptionRequest{Text: "x"}); rr.Code != http.StatusNotFound {
		t.Errorf("put unknown status = %d", rr.Code)
	}
}

func TestPlayback_LoopbackOnly(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/playback/shorts/1", nil)
	req.RemoteAddr = "192.168.1.20:5000"
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("remote peer status = %d, want 403", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/playback/shorts/1", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "clip-1" {
		t.Fatalf("loopback status = %d, body = %q", rr.Code, rr.Body.String())
	}
}

func TestPlayback_Errors(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown short", library.ErrNotFound, http.StatusNotFound},
		{"download failed", errors.New("connection reset"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.cfg.Playback = &fakePlayback{err: tt.err}
			router := NewRouter(env.cfg)
			req := httptest.NewRequest(http.MethodGet, "/playback/shorts/1", nil)
			req.RemoteAddr = "[::1]:5000"
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestPlayback_HeadThroughServer(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodHead, server.URL+"/playback/shorts/1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
