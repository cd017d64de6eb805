// Package logging provides structured debug logging for webpilot components.
// Each run writes to its own file under the log directory; multiple
// components share the file, distinguished by a component tag.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	runID     string
	runIDOnce sync.Once
)

// RunID returns the identifier shared by all loggers in this process.
func RunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

// Logger writes leveled, component-tagged entries to a run-specific file,
// falling back to stderr when the file cannot be opened.
type Logger struct {
	component string
	mu        sync.Mutex
	logger    *log.Logger
	file      *os.File
	closeOnce sync.Once
}

// New creates a logger for a component, writing to <dir>/<run-id>.log. When
// dir is empty it defaults to ~/.webpilot/logs. On any setup failure the
// returned logger writes to stderr and the error reports why.
func New(component, dir string) (*Logger, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fallback(component), fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".webpilot", "logs")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fallback(component), fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, RunID()+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fallback(component), fmt.Errorf("failed to open log file: %w", err)
	}

	return &Logger{
		component: component,
		logger:    log.New(file, "", 0),
		file:      file,
	}, nil
}

func fallback(component string) *Logger {
	return &Logger{
		component: component,
		logger:    log.New(os.Stderr, "", 0),
	}
}

func (l *Logger) write(level, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message.
func (l *Logger) Debugf(format string, v ...any) { l.write("DEBUG", format, v...) }

// Infof logs an info-level message.
func (l *Logger) Infof(format string, v ...any) { l.write("INFO", format, v...) }

// Warnf logs a warning-level message.
func (l *Logger) Warnf(format string, v ...any) { l.write("WARN", format, v...) }

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, v ...any) { l.write("ERROR", format, v...) }

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
