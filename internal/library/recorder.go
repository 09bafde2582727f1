package library

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/clipforge/clipforge-agent/internal/workflow"
)

// Reasons stored for runs that ended without an outcome.
const (
	ReasonCancelled  = "cancelled"
	ReasonSuperseded = "superseded by a newer run"
)

// Recorder persists workflow runs. Listen is registered as a workflow
// listener; events are queued and written by the loop started with Start so
// the workflow never waits on the database.
type Recorder struct {
	svc    *Service
	logger *slog.Logger

	events chan workflow.Event
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	pending map[string]*pendingRun
}

type pendingRun struct {
	fileName string
	entries  []workflow.LogEntry
}

func NewRecorder(svc *Service, logger *slog.Logger) *Recorder {
	return &Recorder{
		svc:     svc,
		logger:  logger.With("component", "recorder"),
		events:  make(chan workflow.Event, 256),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingRun),
	}
}

// Listen queues ev. It is safe to call after Close; the event is dropped.
func (r *Recorder) Listen(ev workflow.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.events <- ev
}

// Start runs the write loop until Close.
func (r *Recorder) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		for ev := range r.events {
			r.handle(ctx, ev)
		}
	}()
}

// Close stops accepting events and waits until queued ones are written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()
	<-r.done
}

func (r *Recorder) handle(ctx context.Context, ev workflow.Event) {
	switch ev.Kind {
	case workflow.EventReset:
		for id := range r.pending {
			if id != ev.RunID {
				r.finishWithoutOutcome(ctx, id, ReasonSuperseded)
			}
		}
		if _, ok := r.pending[ev.RunID]; ok {
			r.finishWithoutOutcome(ctx, ev.RunID, ReasonCancelled)
		}

	case workflow.EventPhase:
		switch ev.Phase {
		case workflow.PhaseProcessing:
			r.pending[ev.RunID] = &pendingRun{fileName: ev.FileName}
			if err := r.svc.StartRun(ctx, ev.RunID, ev.FileName, time.Now().UTC()); err != nil {
				r.logger.Error("failed to record run start", "run_id", ev.RunID, "error", err)
			}
		case workflow.PhaseIdle:
			if _, ok := r.pending[ev.RunID]; ok {
				r.finishWithoutOutcome(ctx, ev.RunID, ReasonCancelled)
			}
		}

	case workflow.EventLog:
		if p, ok := r.pending[ev.RunID]; ok && ev.Entry != nil {
			p.entries = append(p.entries, *ev.Entry)
		}

	case workflow.EventOutcome:
		p, ok := r.pending[ev.RunID]
		if !ok || ev.Outcome == nil {
			return
		}
		delete(r.pending, ev.RunID)
		if err := r.svc.RecordRun(ctx, ev.RunID, p.fileName, *ev.Outcome, p.entries); err != nil {
			r.logger.Error("failed to record run", "run_id", ev.RunID, "error", err)
			return
		}
		r.logger.Debug("run recorded", "run_id", ev.RunID, "outcome", ev.Outcome.Kind)
	}
}

func (r *Recorder) finishWithoutOutcome(ctx context.Context, runID, reason string) {
	p := r.pending[runID]
	delete(r.pending, runID)
	out := workflow.Outcome{Kind: workflow.Cancelled, Reason: reason}
	if err := r.svc.RecordRun(ctx, runID, p.fileName, out, p.entries); err != nil {
		r.logger.Error("failed to record cancelled run", "run_id", runID, "error", err)
	}
}
