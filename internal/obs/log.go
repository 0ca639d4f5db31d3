package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the client.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stderr, "", 0)
	})
	return logger
}

// Log emits one JSON line with ts, level and msg plus the given fields.
func Log(level, msg string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level
	entry["msg"] = msg
	LogEntry(entry)
}

// Info is shorthand for Log("info", ...).
func Info(msg string, fields map[string]any) { Log("info", msg, fields) }

// Warn is shorthand for Log("warn", ...).
func Warn(msg string, fields map[string]any) { Log("warn", msg, fields) }

// Error is shorthand for Log("error", ...).
func Error(msg string, fields map[string]any) { Log("error", msg, fields) }

// LogEntry marshals a prepared entry as a single line.
func LogEntry(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
