// Package logger wires structured logging for the filesys tools (cmd/mkfs,
// cmd/fsshell) through log/slog, with custom severity levels, a
// "severity="-keyed text or JSON renderer, and an optional rotating file
// sink via gopkg.in/natefinch/lumberjack.v2 fed through an AsyncLogger so a
// slow disk never blocks a caller.
//
// The package-level defaultLogger is rebuilt under a mutex whenever the
// format or output sink changes; a level change takes effect through the
// shared slog.LevelVar without a rebuild.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Severity levels, finer-grained than slog's built-in four: TRACE sits
// below DEBUG and OFF sits above ERROR so it suppresses everything.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

var levelNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
	LevelOff:   "OFF",
}

// ParseLevel maps a severity name (case-insensitive) to its slog.Level,
// defaulting to LevelInfo for an unrecognized name.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARNING", "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

var (
	mu            sync.Mutex
	programLevel  = new(slog.LevelVar)
	format        = "text"
	output        io.Writer = os.Stderr
	fileWriter    *AsyncLogger
	defaultLogger = slog.New(newHandler(os.Stderr, programLevel, format))
)

func newHandler(w io.Writer, level *slog.LevelVar, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl := a.Value.Any().(slog.Level)
				name, ok := levelNames[lvl]
				if !ok {
					name = lvl.String()
				}
				return slog.String("severity", name)
			}
			return a
		},
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func rebuild() {
	defaultLogger = slog.New(newHandler(output, programLevel, format))
}

// SetLevel sets the minimum severity that is logged; name is matched
// case-insensitively against TRACE/DEBUG/INFO/WARNING/ERROR/OFF.
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()
	programLevel.Set(ParseLevel(name))
}

// SetFormat selects "text" or "json" rendering.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	format = f
	rebuild()
}

// RotateConfig configures the rotating log file lumberjack.Logger manages.
type RotateConfig struct {
	MaxSizeMB  int
	MaxBackups int
	Compress   bool
}

// InitLogFile redirects logging to a rotating file at path, buffered
// through an AsyncLogger so writes never block on disk I/O. Call Close to
// flush and release the file when done.
func InitLogFile(path string, rotate RotateConfig) error {
	mu.Lock()
	defer mu.Unlock()

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotate.MaxSizeMB,
		MaxBackups: rotate.MaxBackups,
		Compress:   rotate.Compress,
	}
	fileWriter = NewAsyncLogger(lj, 1024)
	output = fileWriter
	rebuild()
	return nil
}

// Close flushes and releases any open log file. It is a no-op if
// InitLogFile was never called.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	output = os.Stderr
	rebuild()
	return err
}

func logf(ctx context.Context, level slog.Level, format string, args ...any) {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...any) { logf(context.Background(), LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(context.Background(), LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(context.Background(), LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(context.Background(), LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(context.Background(), LevelError, format, args...) }
