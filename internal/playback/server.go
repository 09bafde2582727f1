// Package playback serves downloaded shorts to local players with HTTP
// Range support.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
)

// Resolver returns the local path of a short, downloading it if needed.
type Resolver interface {
	DownloadShort(ctx context.Context, id string) (string, error)
}

type Server struct {
	resolver Resolver
	logger   *slog.Logger
}

func NewServer(resolver Resolver, logger *slog.Logger) *Server {
	return &Server{resolver: resolver, logger: logger}
}

// ServeShort resolves shortID to a cached file and serves it.
func (s *Server) ServeShort(w http.ResponseWriter, r *http.Request, shortID string) error {
	path, err := s.resolver.DownloadShort(r.Context(), shortID)
	if err != nil {
		return fmt.Errorf("resolve short %s: %w", shortID, err)
	}
	s.logger.Debug("serving short", "short_id", shortID, "method", r.Method, "range", r.Header.Get("Range"))
	return s.ServeFile(w, r, path)
}

// ServeFile writes filePath, honouring a single Range. A missing file is a 404.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", detectContentType(file))
	h.Set("Cache-Control", "private, max-age=3600")
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))

	parsed, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the whole body is sent.
		parsed = nil
	case err != nil:
		return err
	}

	body := io.Reader(file)
	status := http.StatusOK
	length := size
	if parsed != nil {
		if _, err := file.Seek(parsed.Start, io.SeekStart); err != nil {
			return fmt.Errorf("failed to seek: %w", err)
		}
		length = parsed.ContentLength()
		body = io.LimitReader(file, length)
		status = http.StatusPartialContent
		h.Set("Content-Range", parsed.ContentRange(size))
	}
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug("playback copy interrupted", "path", filePath, "error", err)
	}
	return nil
}

// detectContentType sniffs the file header and rewinds the file.
func detectContentType(f *os.File) string {
	defer f.Seek(0, io.SeekStart)
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
