// Package notify carries transient user-facing messages (the "toasts").
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"iaeco.app/internal/obs"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is one message for the user.
type Notice struct {
	Level   Level
	Message string
	At      time.Time
}

// Notifier shows notices to the user. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Success sends a success notice.
func Success(ctx context.Context, n Notifier, msg string) {
	send(ctx, n, LevelSuccess, msg)
}

// Error sends an error notice.
func Error(ctx context.Context, n Notifier, msg string) {
	send(ctx, n, LevelError, msg)
}

// Info sends an informational notice.
func Info(ctx context.Context, n Notifier, msg string) {
	send(ctx, n, LevelInfo, msg)
}

func send(ctx context.Context, n Notifier, level Level, msg string) {
	if n == nil {
		return
	}
	n.Notify(ctx, Notice{Level: level, Message: msg, At: time.Now().UTC()})
}

// Log writes notices to the structured log.
type Log struct{}

func (Log) Notify(_ context.Context, n Notice) {
	level := "info"
	if n.Level == LevelError {
		level = "warn"
	}
	obs.Log(level, "notice", map[string]any{"notice_level": string(n.Level), "message": n.Message})
}

// Writer prints notices as plain lines, for terminals.
type Writer struct {
	mu sync.Mutex
	W  io.Writer
}

func (w *Writer) Notify(_ context.Context, n Notice) {
	w.mu.Lock()
	defer w.mu.Unlock()
	prefix := "ok"
	switch n.Level {
	case LevelError:
		prefix = "error"
	case LevelInfo:
		prefix = "info"
	}
	fmt.Fprintf(w.W, "[%s] %s\n", prefix, n.Message)
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, x := range m {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of what was recorded.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Last returns the most recent notice.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
