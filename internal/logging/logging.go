// Package logging forwards launcher diagnostics to remote destinations.
package logging

import (
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is a single diagnostic record.
type Entry struct {
	Timestamp time.Time
	Level     Level
	Component string
	Message   string
	Fields    map[string]any
}

// Writer is the interface for log destinations.
type Writer interface {
	// Write sends a log entry to the destination.
	Write(entry *Entry) error

	// Close flushes any buffered data and closes the writer.
	Close() error
}

// Dispatcher fans out entries to every registered writer.
type Dispatcher struct {
	writers     []Writer
	errorLogger *ErrorLogger
	mu          sync.RWMutex
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{writers: make([]Writer, 0)}
}

// AddWriter registers a writer.
func (d *Dispatcher) AddWriter(w Writer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writers = append(d.writers, w)
}

// Write sends an entry to all registered writers. A failing writer
// never blocks delivery to the others.
func (d *Dispatcher) Write(entry *Entry) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, w := range d.writers {
		_ = w.Write(entry)
	}
	return nil
}

// Close closes all writers and the internal error logger.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range d.writers {
		_ = w.Close()
	}
	if d.errorLogger != nil {
		_ = d.errorLogger.Close()
	}
	d.writers = nil
	return nil
}

// HasWriters reports whether any writers are registered.
func (d *Dispatcher) HasWriters() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.writers) > 0
}
