package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/clipforge/clipforge-agent/internal/config"
)

// fakeBackend serves the subset of the shorts backend the CLI talks to.
type fakeBackend struct {
	mu      sync.Mutex
	shorts  int
	uploads int
	logouts int
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r.URL.Path != "/auth/login/" && r.URL.Path != "/auth/register/" &&
		r.Header.Get("Authorization") != "Token tok-1" {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Invalid token."}`)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/auth/login/":
		if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"non_field_errors":["Unable to log in with provided credentials."]}`)
			return
		}
		writeBody(w, map[string]any{
			"token": "tok-1",
			"user":  map[string]any{"id": 1, "username": r.PostForm.Get("username"), "email": "ana@example.com"},
		})
	case r.Method == http.MethodPatch && r.URL.Path == "/auth/profile/":
		var update map[string]string
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeBody(w, map[string]any{"id": 1, "username": "ana", "email": update["email"]})
	case r.Method == http.MethodPost && r.URL.Path == "/auth/logout/":
		b.logouts++
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/videos/":
		_, _ = io.Copy(io.Discard, r.Body)
		b.uploads++
		writeBody(w, map[string]any{"id": 42, "status": "uploaded"})
	case r.Method == http.MethodGet && r.URL.Path == "/videos/":
		results := []map[string]any{}
		if r.URL.Query().Get("page") == "1" {
			results = append(results, map[string]any{"id": 42, "file_name": "trip.mp4", "status": "ready", "duration_seconds": 95})
		}
		writeBody(w, map[string]any{"results": results})
	case r.Method == http.MethodGet && r.URL.Path == "/shorts/by_video/":
		shorts := make([]map[string]any, 0, b.shorts)
		for i := 0; i < b.shorts; i++ {
			shorts = append(shorts, map[string]any{
				"id":           100 + i,
				"video":        42,
				"video_title":  "trip.mp4",
				"status":       "ready",
				"start_second": float64(i * 20),
				"end_second":   float64(i*20 + 15),
				"file_url":     fmt.Sprintf("http://cdn.example/%d.mp4", 100+i),
			})
		}
		writeBody(w, map[string]any{"shorts": shorts})
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"Not found."}`)
	}
}

func (b *fakeBackend) counts() (uploads, logouts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uploads, b.logouts
}

func writeBody(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type cliTestEnv struct {
	backend    *fakeBackend
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	for _, key := range []string{config.EnvBaseURL, config.EnvLogLevel, config.EnvDataDir, config.EnvPort, config.EnvHeadless} {
		t.Setenv(key, "")
	}

	backend := &fakeBackend{shorts: 2}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[backend]
base_url = %q

[workflow]
max_attempts = 2
poll_delay_ms = 1
expected_shorts = 2

[paths]
data_dir = %q
cache_dir = %q
session_file = %q

[logging]
level = "error"
format = "text"
`, srv.URL, filepath.Join(base, "data"), filepath.Join(base, "cache"), filepath.Join(base, "session.json"))
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{backend: backend, configPath: configPath, baseDir: base}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *cliTestEnv) login(t *testing.T) {
	t.Helper()
	if _, stderr, err := runCLI(t, []string{"login", "ana", "--password", "secret"}, e.configPath); err != nil {
		t.Fatalf("login: %v (stderr: %s)", err, stderr)
	}
}

func (e *cliTestEnv) writeVideo(t *testing.T) string {
	t.Helper()
	b := []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0, 'i', 's', 'o', 'm', 'm', 'p', '4', '1'}
	b = append(b, bytes.Repeat([]byte{0}, 64)...)
	path := filepath.Join(e.baseDir, "trip.mp4")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Fatalf("output %q does not contain %q", got, want)
	}
}
