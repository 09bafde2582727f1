package workflow

import (
	"sync"
	"time"
)

// Level classifies a log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEntry is one progress message. Entries are never mutated once appended.
type LogEntry struct {
	Seq     int64     `json:"seq"`
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Log is the append-only progress log of the current run. It is cleared
// only when a new run starts or the workflow is reset.
type Log struct {
	mu      sync.RWMutex
	nextSeq int64
	entries []LogEntry
}

func (l *Log) append(at time.Time, level Level, msg string) LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	entry := LogEntry{Seq: l.nextSeq, Time: at.UTC(), Level: level, Message: msg}
	l.entries = append(l.entries, entry)
	return entry
}

func (l *Log) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSeq = 0
	l.entries = nil
}

// Entries returns a copy of all entries in insertion order.
func (l *Log) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]LogEntry(nil), l.entries...)
}

// Since returns entries with sequence strictly greater than seq.
func (l *Log) Since(seq int64) []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
