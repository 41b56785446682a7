package observability

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

type Logger struct {
	base *log.Logger

	mu   sync.Mutex
	once map[string]struct{}
}

func NewLogger() *Logger {
	return &Logger{
		base: log.New(os.Stdout, "", 0),
		once: make(map[string]struct{}),
	}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.write("info", message, fields)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.write("warn", message, fields)
}

// WarnOnce emits a warning at most once per message for the lifetime of the
// logger. Used for degradations that would otherwise flood the log, such as
// an unprovisioned table hit on every request.
func (l *Logger) WarnOnce(message string, fields map[string]any) {
	l.mu.Lock()
	_, seen := l.once[message]
	if !seen {
		l.once[message] = struct{}{}
	}
	l.mu.Unlock()

	if !seen {
		l.write("warn", message, fields)
	}
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.write("error", message, fields)
}

func (l *Logger) write(level, message string, fields map[string]any) {
	payload := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"message":   message,
	}
	for k, v := range fields {
		payload[k] = v
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		l.base.Println(`{"level":"error","message":"failed to encode log"}`)
		return
	}

	l.base.Println(string(encoded))
}
