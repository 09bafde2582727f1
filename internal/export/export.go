// Package export renders a video's shorts as an edit decision list or as
// SubRip captions.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/library"
)

var (
	ErrUnknownFormat = errors.New("format must be edl or srt")
	ErrNoClips       = errors.New("video has no usable shorts")
	ErrNoCaptions    = errors.New("video has no captions")
)

// Source is the part of the library an export reads.
type Source interface {
	GetVideo(ctx context.Context, id string) (*library.Video, error)
	Captions(ctx context.Context, videoID string) ([]*library.Short, map[string]*library.Caption, error)
}

type Exporter struct {
	src Source
}

func NewExporter(src Source) *Exporter {
	return &Exporter{src: src}
}

// Build renders the export described by req.
func (e *Exporter) Build(ctx context.Context, req Request) (*Result, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = FormatEDL
	}
	if format != FormatEDL && format != FormatSRT {
		return nil, ErrUnknownFormat
	}

	shorts, captions, err := e.src.Captions(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	title := e.title(ctx, req.VideoID, shorts)
	base := SanitizeName(title, 120)
	if base == "" {
		base = "clipforge_export"
	}

	switch format {
	case FormatSRT:
		cues := CuesFromShorts(shorts, captions)
		if len(cues) == 0 {
			return nil, ErrNoCaptions
		}
		return &Result{
			Format:      FormatSRT,
			Filename:    base + ".srt",
			ContentType: "application/x-subrip; charset=utf-8",
			Count:       len(cues),
			Body:        []byte(GenerateSRT(cues)),
		}, nil
	default:
		clips := ClipsFromShorts(title, shorts)
		if len(clips) == 0 {
			return nil, ErrNoClips
		}
		fps := req.FrameRate
		if fps <= 0 {
			fps = DefaultFrameRate
		}
		return &Result{
			Format:      FormatEDL,
			Filename:    base + ".edl",
			ContentType: "text/plain; charset=utf-8",
			Count:       len(clips),
			Body:        []byte(GenerateEDL(clips, title, fps)),
		}, nil
	}
}

// WriteFile renders req and writes it into req.OutputDir.
func (e *Exporter) WriteFile(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateOutputDir(req.OutputDir); err != nil {
		return nil, err
	}
	res, err := e.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	out := filepath.Join(req.OutputDir, res.Filename)
	if err := os.WriteFile(out, res.Body, 0o644); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}
	return &Response{Status: "ok", Format: res.Format, OutputPath: out, Count: res.Count}, nil
}

func (e *Exporter) title(ctx context.Context, videoID string, shorts []*library.Short) string {
	if v, err := e.src.GetVideo(ctx, videoID); err == nil && v != nil && v.FileName != "" {
		return v.FileName
	}
	for _, s := range shorts {
		if s.VideoTitle != "" {
			return s.VideoTitle
		}
	}
	return "video " + videoID
}

// ClipsFromShorts converts shorts with a positive segment into EDL clips.
// Downloaded shorts point at the local file, the rest at their URL.
func ClipsFromShorts(title string, shorts []*library.Short) []Clip {
	clips := make([]Clip, 0, len(shorts))
	for _, s := range shorts {
		start, end := secondsToMs(s.StartSecond), secondsToMs(s.EndSecond)
		if end <= start {
			continue
		}
		media := s.LocalPath
		if media == "" {
			media = s.FileURL
		}
		clips = append(clips, Clip{
			ShortID:   s.ID,
			Name:      SanitizeName(fmt.Sprintf("%s short %d", title, len(clips)+1), 160),
			MediaPath: media,
			StartMs:   start,
			EndMs:     end,
		})
	}
	return clips
}

// CuesFromShorts times each caption from its short's segment in the source video.
func CuesFromShorts(shorts []*library.Short, captions map[string]*library.Caption) []Cue {
	var cues []Cue
	for _, s := range shorts {
		c, ok := captions[s.ID]
		if !ok || strings.TrimSpace(c.Text) == "" {
			continue
		}
		start, end := secondsToMs(s.StartSecond), secondsToMs(s.EndSecond)
		if end <= start {
			continue
		}
		cues = append(cues, Cue{StartMs: start, EndMs: end, Text: c.Text})
	}
	return cues
}
