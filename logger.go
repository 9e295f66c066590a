package rush

//
// Logging
//

import (
	"fmt"
	"os"

	apexlog "github.com/apex/log"
)

// Logger is the logging interface used throughout the engine. All apps and
// the engine itself accept a Logger rather than writing to stderr directly.
type Logger interface {
	// Debugf formats and emits a debug message.
	Debugf(format string, v ...any)

	// Debug emits a debug message.
	Debug(message string)

	// Infof formats and emits an informational message.
	Infof(format string, v ...any)

	// Info emits an informational message.
	Info(message string)

	// Warnf formats and emits a warning message.
	Warnf(format string, v ...any)

	// Warn emits a warning message.
	Warn(message string)
}

// NullLogger is a [Logger] that discards every message.
type NullLogger struct{}

var _ Logger = &NullLogger{}

func (*NullLogger) Debug(string)           {}
func (*NullLogger) Debugf(string, ...any)  {}
func (*NullLogger) Info(string)            {}
func (*NullLogger) Infof(string, ...any)   {}
func (*NullLogger) Warn(string)            {}
func (*NullLogger) Warnf(string, ...any)   {}

// ApexLogger is a [Logger] backed by github.com/apex/log. Configuration and
// runtime diagnostics are always written to standard error, never stdout,
// per the error-handling design.
type ApexLogger struct {
	entry *apexlog.Entry
}

var _ Logger = &ApexLogger{}

// NewApexLogger creates a [Logger] logging at the given level (any name
// apex/log's ParseLevel accepts, e.g. "debug", "info", "warn"; a name it
// rejects falls back to "info").
func NewApexLogger(level string) *ApexLogger {
	lvl, err := apexlog.ParseLevel(level)
	if err != nil {
		lvl = apexlog.InfoLevel
	}
	logger := &apexlog.Logger{
		Handler: &stderrHandler{},
		Level:   lvl,
	}
	return &ApexLogger{entry: apexlog.NewEntry(logger)}
}

func (l *ApexLogger) Debug(message string)          { l.entry.Debug(message) }
func (l *ApexLogger) Debugf(format string, v ...any) { l.entry.Debugf(format, v...) }
func (l *ApexLogger) Info(message string)            { l.entry.Info(message) }
func (l *ApexLogger) Infof(format string, v ...any)  { l.entry.Infof(format, v...) }
func (l *ApexLogger) Warn(message string)            { l.entry.Warn(message) }
func (l *ApexLogger) Warnf(format string, v ...any)  { l.entry.Warnf(format, v...) }

// stderrHandler is a minimal apex/log handler writing one line per entry to
// stderr. apex/log's built-in CLI handler writes to stdout, which conflicts
// with the requirement that diagnostics never pollute stdout.
type stderrHandler struct{}

func (*stderrHandler) HandleLog(e *apexlog.Entry) error {
	line := fmt.Sprintf("%-5s %s", e.Level.String(), e.Message)
	names := e.Fields.Names()
	for _, name := range names {
		line += fmt.Sprintf(" %s=%v", name, e.Fields.Get(name))
	}
	_, err := fmt.Fprintln(os.Stderr, line)
	return err
}
