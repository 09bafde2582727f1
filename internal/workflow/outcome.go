package workflow

import (
	"github.com/clipforge/clipforge-agent/internal/cloud"
)

// OutcomeKind is the terminal state of one run.
type OutcomeKind string

const (
	Succeeded       OutcomeKind = "succeeded"
	TimedOutEmpty   OutcomeKind = "timed_out_empty"
	TimedOutPartial OutcomeKind = "timed_out_partial"
	Failed          OutcomeKind = "failed"

	// Cancelled marks a run that was invalidated. It is never published to
	// listeners.
	Cancelled OutcomeKind = "cancelled"
)

// ReasonMissingID is the failure reason when the upload response carries no
// video identifier.
const ReasonMissingID = "missing id"

// Outcome is the terminal result of one run.
type Outcome struct {
	Kind     OutcomeKind   `json:"kind"`
	Shorts   []cloud.Short `json:"shorts,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	VideoID  cloud.ID      `json:"video_id,omitempty"`
	Attempts int           `json:"attempts"`
}

// TimedOut reports whether the poll budget ran out.
func (o Outcome) TimedOut() bool {
	return o.Kind == TimedOutEmpty || o.Kind == TimedOutPartial
}

// OK reports whether the run produced the expected shorts.
func (o Outcome) OK() bool {
	return o.Kind == Succeeded
}

// Phase maps the outcome to the presentation phase shown after the run.
func (o Outcome) Phase() Phase {
	switch o.Kind {
	case Succeeded:
		return PhaseResults
	case TimedOutEmpty, TimedOutPartial:
		return PhaseWarning
	case Failed:
		return PhaseError
	default:
		return PhaseIdle
	}
}
