// Package audit appends security-relevant events (logins, signups, denied
// access, admin actions) to a JSON-lines file, separate from the access log.
package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

type Event struct {
	RequestID string
	Actor     string
	Action    string
	Target    string
	Outcome   string
	// Reason is internal detail such as why a login failed. It is only ever
	// written here, never returned to a caller.
	Reason string
	IP     string
}

type Logger struct {
	mu     sync.Mutex
	out    zerolog.Logger
	closer io.Closer
}

// NewLogger opens path for appending. An empty path yields a Logger that
// drops every event.
func NewLogger(path string) (*Logger, error) {
	if path == "" {
		return &Logger{out: zerolog.Nop()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log file: %w", err)
	}
	l := newLogger(f)
	l.closer = f
	return l, nil
}

func newLogger(w io.Writer) *Logger {
	return &Logger{out: zerolog.New(w).With().Timestamp().Logger()}
}

func (l *Logger) Record(e Event) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := l.out.Log().
		Str("actor", e.Actor).
		Str("action", e.Action).
		Str("outcome", e.Outcome)
	if e.RequestID != "" {
		ev = ev.Str("request_id", e.RequestID)
	}
	if e.Target != "" {
		ev = ev.Str("target", e.Target)
	}
	if e.Reason != "" {
		ev = ev.Str("reason", e.Reason)
	}
	if e.IP != "" {
		ev = ev.Str("ip", e.IP)
	}
	ev.Msg("")
}

func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
