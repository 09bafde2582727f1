// Package media validates user-selected files before they reach the upload
// workflow.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadBytes is the largest video the backend accepts.
const MaxUploadBytes int64 = 500 << 20

// AllowedExtensions lists the container formats the backend accepts.
var AllowedExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".webm"}

// ValidationError reports a file that must not be uploaded.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Task is a validated video ready for upload.
type Task struct {
	Name      string
	Path      string
	MediaType string
	Size      int64

	temp bool
}

// Open returns a fresh reader over the video.
func (t *Task) Open() (io.ReadCloser, error) {
	return os.Open(t.Path)
}

// Release removes the backing file when the task owns a temporary copy.
func (t *Task) Release() error {
	if t == nil || !t.temp {
		return nil
	}
	if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// OpenTask validates the file at path and returns a Task for it.
func OpenTask(path string) (*Task, error) {
	return openTask(path, filepath.Base(path), false)
}

// TaskFromReader copies r into a temporary file under dir and validates it
// under the given display name. The temporary copy is removed by Release, or
// immediately when validation fails.
func TaskFromReader(dir, name string, r io.Reader) (*Task, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, &ValidationError{Name: "upload", Reason: "missing file name"}
	}
	if err := checkExtension(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	// One byte past the limit is enough to reject oversized uploads.
	n, err := io.Copy(f, io.LimitReader(r, MaxUploadBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if n > MaxUploadBytes {
		os.Remove(tmpPath)
		return nil, &ValidationError{Name: name, Reason: "file exceeds 500 MB"}
	}

	task, err := openTask(tmpPath, name, true)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	return task, nil
}

func openTask(path, name string, temp bool) (*Task, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ValidationError{Name: name, Reason: "file does not exist"}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, &ValidationError{Name: name, Reason: "is a directory"}
	}
	if info.Size() == 0 {
		return nil, &ValidationError{Name: name, Reason: "file is empty"}
	}
	if info.Size() > MaxUploadBytes {
		return nil, &ValidationError{Name: name, Reason: "file exceeds 500 MB"}
	}
	if err := checkExtension(name); err != nil {
		return nil, err
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type of %s: %w", path, err)
	}
	if !IsVideoType(mtype.String()) {
		return nil, &ValidationError{Name: name, Reason: fmt.Sprintf("not a video (%s)", mtype.String())}
	}

	return &Task{
		Name:      name,
		Path:      path,
		MediaType: baseType(mtype.String()),
		Size:      info.Size(),
		temp:      temp,
	}, nil
}

// IsVideoType reports whether a MIME type is in the video category.
func IsVideoType(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mediaType)), "video/")
}

func checkExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return &ValidationError{
		Name:   name,
		Reason: fmt.Sprintf("unsupported extension %q (allowed: %s)", ext, strings.Join(AllowedExtensions, ", ")),
	}
}

func baseType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		return strings.TrimSpace(mediaType[:i])
	}
	return mediaType
}
