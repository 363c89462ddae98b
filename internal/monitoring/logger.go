// Package monitoring holds the process-wide diagnostic logger used by the
// receiver. Components log through Logger (structured) or Logf (printf
// style); both may be replaced by tests.
package monitoring

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured logger for frame outcomes and lifecycle events.
var Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Logf is the printf-style diagnostic logger. It writes through Logger at
// info level by default.
var Logf func(format string, v ...interface{}) = func(format string, v ...interface{}) {
	Logger.Info(fmt.Sprintf(format, v...))
}

// SetLogger replaces the structured logger. Passing nil discards all output.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	Logger = l
}

// SetLogf replaces the printf logger. Passing nil will set a no-op logger.
func SetLogf(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

var logLevels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

// ParseLevel maps a level name (case-insensitive) to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	l, ok := logLevels[strings.ToUpper(strings.TrimSpace(level))]
	if !ok {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// NewLogger builds a logger writing to w. format is "text" or "json".
func NewLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q: expected text or json", format)
	}
}
