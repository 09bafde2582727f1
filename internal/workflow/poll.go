package workflow

import (
	"time"

	"github.com/clipforge/clipforge-agent/internal/cloud"
)

// Observation is what one poll attempt saw.
type Observation struct {
	Shorts []cloud.Short
	// Ready means the backend declared the video complete, whatever the count.
	Ready bool
	// Failed means the backend declared processing failed.
	Failed   bool
	Reason   string
	Progress float64
}

// Verdict is the decision after one poll attempt.
type Verdict int

const (
	// VerdictWait means wait Delay and poll again.
	VerdictWait Verdict = iota
	VerdictSucceeded
	VerdictExhausted
	VerdictFailed
)

func (v Verdict) String() string {
	switch v {
	case VerdictWait:
		return "wait"
	case VerdictSucceeded:
		return "succeeded"
	case VerdictExhausted:
		return "exhausted"
	case VerdictFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PollState is the bounded retry budget of one run. It knows nothing about
// timers; the caller waits Delay between attempts when Step says so.
type PollState struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Expected    int
}

// NewPollState returns a fresh budget for cfg.
func NewPollState(cfg Config) PollState {
	cfg = cfg.withDefaults()
	return PollState{
		MaxAttempts: cfg.MaxAttempts,
		Delay:       cfg.Delay,
		Expected:    cfg.ExpectedShorts,
	}
}

// Step records one attempt and decides what happens next. No wait follows
// the final attempt.
func (p *PollState) Step(obs Observation) Verdict {
	p.Attempt++
	switch {
	case obs.Failed:
		return VerdictFailed
	case obs.Ready || len(obs.Shorts) >= p.Expected:
		return VerdictSucceeded
	case p.Attempt >= p.MaxAttempts:
		return VerdictExhausted
	default:
		return VerdictWait
	}
}

// Remaining returns the attempts left in the budget.
func (p PollState) Remaining() int {
	if r := p.MaxAttempts - p.Attempt; r > 0 {
		return r
	}
	return 0
}

// MaxWait is the longest total wait the budget allows.
func (p PollState) MaxWait() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Delay
}
