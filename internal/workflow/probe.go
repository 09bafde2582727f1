package workflow

import (
	"context"
	"fmt"

	"github.com/clipforge/clipforge-agent/internal/cloud"
)

// Uploader sends the video to the backend.
type Uploader interface {
	UploadVideo(ctx context.Context, file cloud.UploadFile) (*cloud.UploadResponse, error)
}

// ShortsLister lists the shorts generated for one video.
type ShortsLister interface {
	ShortsByVideo(ctx context.Context, videoID cloud.ID, page int) ([]cloud.Short, error)
}

// StatusChecker reports the processing status of one video.
type StatusChecker interface {
	VideoStatus(ctx context.Context, videoID cloud.ID) (*cloud.VideoStatus, error)
}

// Probe performs one poll attempt.
type Probe interface {
	Probe(ctx context.Context, videoID cloud.ID) (Observation, error)
}

// ShortsProbe counts the shorts listed for the video.
type ShortsProbe struct {
	Lister ShortsLister
}

func (p ShortsProbe) Probe(ctx context.Context, videoID cloud.ID) (Observation, error) {
	shorts, err := p.Lister.ShortsByVideo(ctx, videoID, 1)
	if err != nil {
		return Observation{}, err
	}
	return Observation{Shorts: shorts}, nil
}

// StatusProbe follows the video status endpoint. A failed status ends the
// run; a ready status fetches the shorts and completes it.
type StatusProbe struct {
	Status StatusChecker
	Lister ShortsLister
}

func (p StatusProbe) Probe(ctx context.Context, videoID cloud.ID) (Observation, error) {
	st, err := p.Status.VideoStatus(ctx, videoID)
	if err != nil {
		return Observation{}, err
	}
	switch st.Status {
	case cloud.VideoStatusFailed:
		return Observation{Failed: true, Reason: "backend reported processing failed", Progress: st.Progress}, nil
	case cloud.VideoStatusReady:
		shorts, err := p.Lister.ShortsByVideo(ctx, videoID, 1)
		if err != nil {
			return Observation{}, fmt.Errorf("fetch shorts for ready video: %w", err)
		}
		return Observation{Shorts: shorts, Ready: true, Progress: 100}, nil
	default:
		return Observation{Progress: st.Progress}, nil
	}
}

// Backend is the subset of the cloud client the workflow uses.
type Backend interface {
	Uploader
	ShortsLister
	StatusChecker
}

// NewProbe returns the probe for a poll mode: "status" or anything else for shorts.
func NewProbe(mode string, backend Backend) Probe {
	if mode == "status" {
		return StatusProbe{Status: backend, Lister: backend}
	}
	return ShortsProbe{Lister: backend}
}
