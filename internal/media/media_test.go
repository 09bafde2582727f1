package media

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mp4Header is a minimal ISO base media ftyp box.
func mp4Header() []byte {
	b := []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0, 'i', 's', 'o', 'm', 'm', 'p', '4', '1'}
	return append(b, bytes.Repeat([]byte{0}, 64)...)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestOpenTask_Video(t *testing.T) {
	path := writeFile(t, "demo.mp4", mp4Header())

	task, err := OpenTask(path)
	if err != nil {
		t.Fatalf("OpenTask: %v", err)
	}
	if task.Name != "demo.mp4" {
		t.Errorf("Name = %q, want demo.mp4", task.Name)
	}
	if task.MediaType != "video/mp4" {
		t.Errorf("MediaType = %q, want video/mp4", task.MediaType)
	}
	if task.Size != int64(len(mp4Header())) {
		t.Errorf("Size = %d", task.Size)
	}

	rc, err := task.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rc.Close()

	// Caller-owned files survive Release.
	if err := task.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("source file removed by Release: %v", err)
	}
}

func TestOpenTask_RejectsNonVideo(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    []byte
		wantMsg string
	}{
		{"text content", "notes.mp4", []byte("just some plain text, not a video at all\n"), "not a video"},
		{"text extension", "notes.txt", []byte("hello"), "unsupported extension"},
		{"empty", "empty.mp4", nil, "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.data)
			_, err := OpenTask(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsValidation(err) {
				t.Fatalf("err = %T %v, want *ValidationError", err, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestOpenTask_Missing(t *testing.T) {
	_, err := OpenTask(filepath.Join(t.TempDir(), "nope.mp4"))
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestTaskFromReader(t *testing.T) {
	dir := t.TempDir()
	task, err := TaskFromReader(dir, "../../clip.mp4", bytes.NewReader(mp4Header()))
	if err != nil {
		t.Fatalf("TaskFromReader: %v", err)
	}
	if task.Name != "clip.mp4" {
		t.Errorf("Name = %q, want clip.mp4", task.Name)
	}
	if filepath.Dir(task.Path) != dir {
		t.Errorf("Path = %q, want under %q", task.Path, dir)
	}
	if err := task.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(task.Path); !os.IsNotExist(err) {
		t.Errorf("temporary copy still present: %v", err)
	}
}

func TestTaskFromReader_RejectsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	_, err := TaskFromReader(dir, "doc.mp4", strings.NewReader("%PDF-1.4 not a video"))
	if !IsValidation(err) {
		t.Fatalf("err = %v, want validation error", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftovers", len(entries))
	}
}

func TestIsVideoType(t *testing.T) {
	if !IsVideoType("video/webm") || !IsVideoType(" Video/MP4") {
		t.Error("expected video types to match")
	}
	if IsVideoType("audio/mpeg") || IsVideoType("") {
		t.Error("non-video type matched")
	}
}
