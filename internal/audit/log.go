package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"iaeco.app/internal/obs"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor"
)

// Actor identifies the signed-in user an event is attributed to.
type Actor struct {
	Name      string
	CompanyID int64
}

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting user to the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func actorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	v, ok := ctx.Value(actorKey).(Actor)
	return v, ok
}

// LogEvent writes an audit line enriched with request and actor context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if actor, ok := actorFromContext(ctx); ok {
		entry["user"] = actor.Name
		entry["company_id"] = actor.CompanyID
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	obs.LogEntry(entry)
	return nil
}

// Violation records a suspected tampering attempt, e.g. access to a company outside
// the user's scope. Errors are swallowed: auditing never blocks the caller.
func Violation(ctx context.Context, action string, details map[string]any) {
	fields := map[string]any{"action": action}
	for k, v := range details {
		fields[k] = v
	}
	_ = LogEvent(ctx, "security.violation", fields)
}
