package logger

import (
	"io"
	"log/slog"
	"os"
)

// Log is the package-wide logger. It defaults to slog's default so
// packages can log before Init runs (e.g. in tests that never call it);
// Init and Named both read and write through this same var, so a Named
// child picks up whatever handler the most recent Init installed.
var Log = slog.Default()

// Named returns a child logger tagged with a "component" attribute, the
// way each subsystem (conn, acceptor, ...) identifies its own log lines
// without repeating the tag at every call site.
func Named(component string) *slog.Logger {
	return Log.With("component", component)
}

func levelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// Init replaces Log with a handler writing to stdout and, if logFile is
// non-empty, also appending to that file. Callers that already took a
// *slog.Logger from Named before Init ran keep logging against the old
// handler — Init is meant to run once, early, in cmd/ampd's main before
// any subsystem starts.
func Init(level string, logFile string) error {
	writers := []io.Writer{os.Stdout}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: levelFromString(level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String("time", a.Value.Time().Format("15:04:05"))
			}
			return a
		},
	})

	Log = slog.New(handler)
	slog.SetDefault(Log)
	return nil
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Log.Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Log.Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Log.Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Log.Error(msg, args...)
}
