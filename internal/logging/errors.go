package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrorLogger appends diagnostics to a local file. It keeps failures of
// remote log destinations from disappearing silently.
type ErrorLogger struct {
	file *os.File
	mu   sync.Mutex
}

// NewErrorLogger opens the log file at path, creating parent
// directories as needed and appending if the file exists.
func NewErrorLogger(path string) (*ErrorLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	return &ErrorLogger{file: file}, nil
}

// Logf writes a formatted entry tagged with the component name.
// Nil-safe.
func (l *ErrorLogger) Logf(component, format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format(time.RFC3339)
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(l.file, "%s [%s] %s\n", timestamp, component, msg)
}

// Close closes the log file.
func (l *ErrorLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}
