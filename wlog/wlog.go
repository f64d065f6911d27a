// Package wlog is the structured logger used throughout synthesis and
// reconstruction: it mirrors every entry to stderr via log.Printf in the
// bracketed-tag convention and appends it to a per-run log file under
// <workflows_root>/logs.
package wlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger writes to both stderr (via the standard log package, so it
// interleaves with every other component's log.Printf calls) and a
// dedicated per-run file.
type Logger struct {
	component string
	file      *os.File
}

// New opens <workflowsRoot>/logs/workflow_generation_<timestamp>.log and
// returns a Logger tagged with component. If the log directory cannot be
// created, file writes are silently skipped — logging must never fail the
// run it's observing.
func New(workflowsRoot, component string) *Logger {
	l := &Logger{component: component}

	logsDir := filepath.Join(workflowsRoot, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		log.Printf("⚠️ [WLOG] could not create logs dir %s: %v", logsDir, err)
		return l
	}

	path := filepath.Join(logsDir, fmt.Sprintf("workflow_generation_%s.log", time.Now().Format("20060102_150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("⚠️ [WLOG] could not open log file %s: %v", path, err)
		return l
	}
	l.file = f
	return l
}

// WithComponent returns a Logger sharing the same file handle but tagged
// with a different component name, matching the teacher's
// "[TAG] message"-per-subsystem convention.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component, file: l.file}
}

func (l *Logger) emit(emoji, format string, args ...interface{}) {
	line := fmt.Sprintf("%s [%s] %s", emoji, l.component, fmt.Sprintf(format, args...))
	log.Print(line)
	l.writeFile(line)
}

func (l *Logger) writeFile(line string) {
	if l.file == nil {
		return
	}
	stamped := fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), line)
	if _, err := l.file.WriteString(stamped); err != nil {
		log.Printf("⚠️ [WLOG] could not append to log file: %v", err)
	}
}

func (l *Logger) Info(format string, args ...interface{})  { l.emit("📝", format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.emit("⚠️", format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.emit("❌", format, args...) }
func (l *Logger) OK(format string, args ...interface{})    { l.emit("✅", format, args...) }

// Close releases the underlying file handle, if one was opened.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Writer exposes the log file as an io.Writer for callers (e.g. capturing
// subprocess stderr) that want raw bytes alongside the tagged entries.
func (l *Logger) Writer() io.Writer {
	if l.file == nil {
		return io.Discard
	}
	return l.file
}
