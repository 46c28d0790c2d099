package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LogEntry is a single human-readable progress or error message.
type LogEntry struct {
	Time  time.Time  `json:"time"`
	Level slog.Level `json:"level"`
	Text  string     `json:"text"`
}

// String renders the entry the way the status API shows it.
func (e LogEntry) String() string {
	return fmt.Sprintf("%s - %s", e.Time.Format(time.TimeOnly), e.Text)
}

// RunLog collects the messages one component produced during one cycle.
// Every entry is also written to slog. It is safe for concurrent use.
type RunLog struct {
	component string
	now       func() time.Time
	mu        sync.Mutex
	entries   []LogEntry
}

// NewRunLog returns an empty log for the named component.
func NewRunLog(component string) *RunLog {
	return &RunLog{component: component, now: time.Now}
}

func (l *RunLog) Infof(format string, args ...any) {
	l.add(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func (l *RunLog) Warnf(format string, args ...any) {
	l.add(slog.LevelWarn, fmt.Sprintf(format, args...))
}

func (l *RunLog) Errorf(format string, args ...any) {
	l.add(slog.LevelError, fmt.Sprintf(format, args...))
}

func (l *RunLog) add(level slog.Level, text string) {
	entry := LogEntry{Time: l.now(), Level: level, Text: text}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	slog.Log(context.Background(), level, text, "component", l.component)
}

// Entries returns a copy of the entries in the order they were added.
func (l *RunLog) Entries() []LogEntry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Messages returns the rendered entries.
func (l *RunLog) Messages() []string {
	entries := l.Entries()
	msgs := make([]string, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, e.String())
	}
	return msgs
}

// Errors counts the entries logged at error level.
func (l *RunLog) Errors() int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level >= slog.LevelError {
			n++
		}
	}
	return n
}
