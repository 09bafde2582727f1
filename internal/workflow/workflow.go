// Package workflow drives one video from upload to generated shorts: a
// single upload call followed by a bounded polling sequence, with an
// append-only progress log and cooperative cancellation.
//
// At most one run is active. Starting a run invalidates the previous one;
// every continuation of a run checks that its run id is still current before
// touching the log, the phase or the listeners, so a late response from a
// cancelled run is dropped.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge-agent/internal/cloud"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/media"
)

// Progress messages.
const (
	MsgUploading       = "Uploading video..."
	MsgUploaded        = "Video uploaded. Processing started..."
	MsgWaiting         = "Waiting for shorts to be generated..."
	MsgTakingLonger    = "Processing is taking longer than expected."
	MsgGenerated       = "Shorts generated successfully!"
	MsgMissingID       = "Video ID not found in response"
	msgUploadFailed    = "Error uploading video"
	msgProcessingError = "Error processing video"
)

var (
	// ErrNilTask is returned by Start and Run without a task.
	ErrNilTask = errors.New("no video selected")

	// ErrNoActiveRun is returned by Cancel and Wait when nothing is running.
	ErrNoActiveRun = errors.New("no active run")
)

// Phase is what the presentation layer should show.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseProcessing Phase = "processing"
	PhaseResults    Phase = "results"
	PhaseWarning    Phase = "warning"
	PhaseError      Phase = "error"
)

// EventKind classifies listener events.
type EventKind string

const (
	EventReset   EventKind = "reset"
	EventLog     EventKind = "log"
	EventPhase   EventKind = "phase"
	EventOutcome EventKind = "outcome"
)

// Event is delivered to listeners for the current run only.
type Event struct {
	Kind     EventKind `json:"kind"`
	RunID    string    `json:"run_id"`
	FileName string    `json:"file_name,omitempty"`
	Phase    Phase     `json:"phase,omitempty"`
	Entry    *LogEntry `json:"entry,omitempty"`
	Outcome  *Outcome  `json:"outcome,omitempty"`
}

// Listener receives workflow events. It is called synchronously from the
// goroutine that produced the event and must not call Start, Cancel or Reset.
type Listener func(Event)

// Config is the polling budget.
type Config struct {
	MaxAttempts    int
	Delay          time.Duration
	ExpectedShorts int
}

// DefaultConfig polls 20 times, 3s apart, for 3 shorts. Zero or negative
// fields in a Config fall back to these values.
func DefaultConfig() Config {
	return Config{MaxAttempts: 20, Delay: 3 * time.Second, ExpectedShorts: 3}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Delay <= 0 {
		c.Delay = d.Delay
	}
	if c.ExpectedShorts <= 0 {
		c.ExpectedShorts = d.ExpectedShorts
	}
	return c
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithClock replaces the real clock.
func WithClock(clock Clock) Option {
	return func(w *Workflow) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// WithListener registers a listener at construction.
func WithListener(l Listener) Option {
	return func(w *Workflow) {
		if l != nil {
			w.listeners = append(w.listeners, listenerSlot{id: w.nextListener, fn: l})
			w.nextListener++
		}
	}
}

// Snapshot is a read-only view of the workflow state.
type Snapshot struct {
	RunID       string     `json:"run_id,omitempty"`
	Phase       Phase      `json:"phase"`
	FileName    string     `json:"file_name,omitempty"`
	VideoID     cloud.ID   `json:"video_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	ShortsSeen  int        `json:"shorts_seen"`
	Expected    int        `json:"expected_shorts"`
	Progress    float64    `json:"progress"`
	Outcome     *Outcome   `json:"outcome,omitempty"`
	LogLen      int        `json:"log_len"`
}

type run struct {
	id       string
	fileName string
	cancel   context.CancelFunc
	done     chan struct{}
	outcome  Outcome

	// guarded by Workflow.mu
	invalid    bool
	finished   bool
	videoID    cloud.ID
	startedAt  time.Time
	finishedAt time.Time
	attempt    int
	shortsSeen int
	progress   float64
}

type listenerSlot struct {
	id int
	fn Listener
}

// Workflow runs upload-and-poll sequences, one at a time.
type Workflow struct {
	uploader Uploader
	probe    Probe
	cfg      Config
	clock    Clock
	logger   *slog.Logger
	log      Log

	// notifyMu serialises listener delivery so a stale event can never be
	// delivered after the reset of a newer run.
	notifyMu sync.Mutex

	mu           sync.Mutex
	current      *run
	phase        Phase
	last         *Outcome
	listeners    []listenerSlot
	nextListener int
}

// New creates a workflow. probe decides how completion is detected.
func New(uploader Uploader, probe Probe, cfg Config, logger *slog.Logger, opts ...Option) *Workflow {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Workflow{
		uploader: uploader,
		probe:    probe,
		cfg:      cfg.withDefaults(),
		clock:    RealClock(),
		logger:   logging.WithComponent(logger, "workflow"),
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns the effective polling budget.
func (w *Workflow) Config() Config {
	return w.cfg
}

// Log returns the progress log of the current run.
func (w *Workflow) Log() *Log {
	return &w.log
}

// Subscribe registers a listener and returns a func that removes it.
func (w *Workflow) Subscribe(l Listener) func() {
	w.mu.Lock()
	id := w.nextListener
	w.nextListener++
	w.listeners = append(w.listeners, listenerSlot{id: id, fn: l})
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, s := range w.listeners {
			if s.id == id {
				w.listeners = append(w.listeners[:i], w.listeners[i+1:]...)
				return
			}
		}
	}
}

// Start cancels any active run, clears the log, moves to the processing
// phase and runs the task in the background. It returns the new run id.
// The task must already be validated as a video.
func (w *Workflow) Start(task *media.Task) (string, error) {
	if task == nil {
		return "", ErrNilTask
	}
	r, ctx := w.begin(context.Background(), task)
	go w.execute(ctx, r, task)
	return r.id, nil
}

// Run is Start in the foreground: it blocks until the run ends and returns
// its outcome. A run invalidated by ctx, Cancel or a newer Start returns an
// outcome of kind Cancelled that was never published.
func (w *Workflow) Run(ctx context.Context, task *media.Task) (Outcome, error) {
	if task == nil {
		return Outcome{}, ErrNilTask
	}
	r, runCtx := w.begin(ctx, task)
	w.execute(runCtx, r, task)
	return r.outcome, nil
}

// Cancel invalidates the active run. Its in-flight requests are aborted and
// any late response is discarded. The log is kept until the next Start or Reset.
func (w *Workflow) Cancel() error {
	w.mu.Lock()
	r := w.current
	if r == nil || r.invalid || r.finished {
		w.mu.Unlock()
		return ErrNoActiveRun
	}
	r.invalid = true
	r.cancel()
	w.phase = PhaseIdle
	w.mu.Unlock()

	w.logger.Info("run cancelled", "run_id", r.id)
	w.broadcast(Event{Kind: EventPhase, RunID: r.id, Phase: PhaseIdle})
	return nil
}

// Reset cancels any active run, clears the log and returns to idle.
func (w *Workflow) Reset() {
	w.mu.Lock()
	var runID string
	if r := w.current; r != nil {
		runID = r.id
		if !r.invalid && !r.finished {
			r.cancel()
		}
		r.invalid = true
	}
	w.current = nil
	w.log.reset()
	w.phase = PhaseIdle
	w.last = nil
	w.mu.Unlock()

	w.broadcast(Event{Kind: EventReset, RunID: runID})
	w.broadcast(Event{Kind: EventPhase, RunID: runID, Phase: PhaseIdle})
}

// Wait blocks until the most recent run finishes and returns its outcome.
// After Reset there is no run to wait for.
func (w *Workflow) Wait(ctx context.Context) (Outcome, error) {
	w.mu.Lock()
	r := w.current
	w.mu.Unlock()
	if r == nil {
		return Outcome{}, ErrNoActiveRun
	}
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Phase returns the current presentation phase.
func (w *Workflow) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Snapshot returns the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// LogSince returns the current state together with the log entries after
// seq, read atomically. A cursor taken from another run starts from the
// beginning of the current log.
func (w *Workflow) LogSince(runID string, seq int64) (Snapshot, []LogEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.snapshotLocked()
	if runID != "" && runID != s.RunID {
		seq = 0
	}
	return s, w.log.Since(seq)
}

func (w *Workflow) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:       w.phase,
		MaxAttempts: w.cfg.MaxAttempts,
		Expected:    w.cfg.ExpectedShorts,
		LogLen:      w.log.Len(),
	}
	if w.last != nil {
		out := *w.last
		s.Outcome = &out
	}
	if r := w.current; r != nil {
		s.RunID = r.id
		s.FileName = r.fileName
		s.VideoID = r.videoID
		started := r.startedAt
		s.StartedAt = &started
		if r.finished {
			finished := r.finishedAt
			s.FinishedAt = &finished
		}
		s.Attempt = r.attempt
		s.ShortsSeen = r.shortsSeen
		s.Progress = r.progress
	}
	return s
}

// Active reports whether a run is in flight.
func (w *Workflow) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current != nil && !w.current.invalid && !w.current.finished
}

func (w *Workflow) begin(parent context.Context, task *media.Task) (*run, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r := &run{
		id:       uuid.NewString(),
		fileName: task.Name,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	w.mu.Lock()
	if prev := w.current; prev != nil && !prev.invalid && !prev.finished {
		prev.invalid = true
		prev.cancel()
		w.logger.Info("run superseded", "run_id", prev.id)
	}
	r.startedAt = w.clock.Now()
	w.current = r
	w.log.reset()
	w.phase = PhaseProcessing
	w.last = nil
	w.mu.Unlock()

	w.emit(r.id, Event{Kind: EventReset, RunID: r.id, FileName: r.fileName})
	w.emit(r.id, Event{Kind: EventPhase, RunID: r.id, FileName: r.fileName, Phase: PhaseProcessing})
	return r, ctx
}

func (w *Workflow) execute(ctx context.Context, r *run, task *media.Task) {
	defer close(r.done)
	defer func() {
		if err := task.Release(); err != nil {
			w.logger.Warn("failed to release upload", "run_id", r.id, "error", err)
		}
	}()

	logger := logging.WithRunID(w.logger, r.id)
	logger.Info("run started", "file_name", task.Name, "size", task.Size, "media_type", task.MediaType)

	out := w.run(ctx, r, task, logger)
	r.outcome = out
	r.cancel()

	if out.Kind == Cancelled {
		// A foreground run whose caller context ended was never invalidated.
		w.mu.Lock()
		orphaned := w.current == r && !r.invalid
		if orphaned {
			r.invalid = true
			w.phase = PhaseIdle
		}
		w.mu.Unlock()
		if orphaned {
			w.broadcast(Event{Kind: EventPhase, RunID: r.id, Phase: PhaseIdle})
		}
		logger.Info("run ended after cancellation")
		return
	}

	w.mu.Lock()
	if w.current != r || r.invalid {
		w.mu.Unlock()
		return
	}
	r.finished = true
	r.finishedAt = w.clock.Now()
	w.phase = out.Phase()
	w.last = &out
	w.mu.Unlock()

	logger.Info("run finished", "outcome", out.Kind, "shorts", len(out.Shorts), "attempts", out.Attempts, "reason", out.Reason)
	w.emit(r.id, Event{Kind: EventPhase, RunID: r.id, FileName: r.fileName, Phase: out.Phase()})
	w.emit(r.id, Event{Kind: EventOutcome, RunID: r.id, FileName: r.fileName, Outcome: &out})
}

func (w *Workflow) run(ctx context.Context, r *run, task *media.Task, logger *slog.Logger) Outcome {
	cancelled := func(attempts int) Outcome {
		return Outcome{Kind: Cancelled, Attempts: attempts}
	}

	if !w.append(r, LevelInfo, MsgUploading) {
		return cancelled(0)
	}

	resp, err := w.uploader.UploadVideo(ctx, cloud.UploadFile{
		Name:      task.Name,
		MediaType: task.MediaType,
		Open:      task.Open,
	})
	if ctx.Err() != nil || !w.live(r) {
		return cancelled(0)
	}
	if err != nil {
		logger.Error("upload failed", "error", err)
		w.append(r, LevelError, fmt.Sprintf("%s: %v", msgUploadFailed, err))
		return Outcome{Kind: Failed, Reason: err.Error()}
	}

	videoID := resp.Identifier()
	if videoID == "" {
		logger.Error("upload response has no video id")
		w.append(r, LevelError, MsgMissingID)
		return Outcome{Kind: Failed, Reason: ReasonMissingID}
	}
	w.update(r, func(r *run) { r.videoID = videoID })
	logger = logging.WithVideoID(logger, videoID.String())

	if !w.append(r, LevelInfo, MsgUploaded) || !w.append(r, LevelInfo, MsgWaiting) {
		return cancelled(0)
	}

	state := NewPollState(w.cfg)
	var lastShorts []cloud.Short
	for {
		obs, err := w.probe.Probe(ctx, videoID)
		if ctx.Err() != nil || !w.live(r) {
			return cancelled(state.Attempt)
		}
		if err != nil {
			logger.Error("poll failed", "attempt", state.Attempt+1, "error", err)
			w.append(r, LevelError, fmt.Sprintf("%s: %v", msgProcessingError, err))
			return Outcome{Kind: Failed, Reason: err.Error(), VideoID: videoID, Attempts: state.Attempt + 1, Shorts: lastShorts}
		}
		if len(obs.Shorts) > 0 {
			lastShorts = obs.Shorts
		}

		verdict := state.Step(obs)
		w.update(r, func(r *run) {
			r.attempt = state.Attempt
			r.shortsSeen = len(obs.Shorts)
			r.progress = obs.Progress
		})
		logger.Debug("poll attempt", "attempt", state.Attempt, "shorts", len(obs.Shorts), "verdict", verdict.String())

		switch verdict {
		case VerdictSucceeded:
			w.append(r, LevelSuccess, MsgGenerated)
			return Outcome{Kind: Succeeded, Shorts: obs.Shorts, VideoID: videoID, Attempts: state.Attempt}
		case VerdictFailed:
			w.append(r, LevelError, fmt.Sprintf("%s: %s", msgProcessingError, obs.Reason))
			return Outcome{Kind: Failed, Reason: obs.Reason, VideoID: videoID, Attempts: state.Attempt}
		case VerdictExhausted:
			if len(lastShorts) == 0 {
				w.append(r, LevelWarning, MsgTakingLonger)
				return Outcome{Kind: TimedOutEmpty, VideoID: videoID, Attempts: state.Attempt}
			}
			w.append(r, LevelWarning, fmt.Sprintf("%s %d of %d shorts are ready.", MsgTakingLonger, len(lastShorts), state.Expected))
			return Outcome{Kind: TimedOutPartial, Shorts: lastShorts, VideoID: videoID, Attempts: state.Attempt}
		}

		if err := w.clock.Sleep(ctx, state.Delay); err != nil {
			return cancelled(state.Attempt)
		}
	}
}

// live reports whether r is still the current, valid run.
func (w *Workflow) live(r *run) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current == r && !r.invalid
}

func (w *Workflow) update(r *run, fn func(*run)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(r)
}

// append adds a log entry for r if it is still live. The liveness check and
// the append happen under the same lock so a superseded run can never write
// into a newer run's log.
func (w *Workflow) append(r *run, level Level, msg string) bool {
	w.mu.Lock()
	if w.current != r || r.invalid {
		w.mu.Unlock()
		return false
	}
	entry := w.log.append(w.clock.Now(), level, msg)
	w.mu.Unlock()

	w.emit(r.id, Event{Kind: EventLog, RunID: r.id, FileName: r.fileName, Entry: &entry})
	return true
}

// emit delivers ev if runID is still the current valid run.
func (w *Workflow) emit(runID string, ev Event) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	ok := w.current != nil && w.current.id == runID && !w.current.invalid
	listeners := w.snapshotListenersLocked()
	w.mu.Unlock()
	if !ok {
		return
	}
	for _, l := range listeners {
		l(ev)
	}
}

// broadcast delivers ev unconditionally. Used by Cancel and Reset.
func (w *Workflow) broadcast(ev Event) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	listeners := w.snapshotListenersLocked()
	w.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

func (w *Workflow) snapshotListenersLocked() []Listener {
	out := make([]Listener, len(w.listeners))
	for i, s := range w.listeners {
		out[i] = s.fn
	}
	return out
}
