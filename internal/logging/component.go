package logging

import (
	"fmt"
	"time"
)

// Logger provides scoped logging for a launcher component (image,
// firewall, container, ...). It writes to a local ErrorLogger file and
// to remote destinations via the Dispatcher when configured. Nil-safe:
// a nil *Logger drops everything.
type Logger struct {
	component   string
	fields      map[string]any
	errorLogger *ErrorLogger
	dispatcher  *Dispatcher
}

// Logger creates a scoped logger for the given component. The receiver
// may be nil, in which case only the errorLogger is used. When no
// explicit errorLogger is passed, the dispatcher's own error log file
// serves as the local destination, so warnings and errors still land
// somewhere even with no receivers configured.
func (d *Dispatcher) Logger(component string, errorLogger *ErrorLogger) *Logger {
	if errorLogger == nil && d != nil {
		errorLogger = d.errorLogger
	}
	return &Logger{
		component:   component,
		errorLogger: errorLogger,
		dispatcher:  d,
	}
}

// With returns a logger that adds the given field to every entry.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	fields := make(map[string]any, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{
		component:   l.component,
		fields:      fields,
		errorLogger: l.errorLogger,
		dispatcher:  l.dispatcher,
	}
}

// Debugf logs a debug message.
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }

// Infof logs an informational message.
func (l *Logger) Infof(format string, args ...any) { l.log(LevelInfo, format, args...) }

// Warnf logs a warning message.
func (l *Logger) Warnf(format string, args ...any) { l.log(LevelWarn, format, args...) }

// Errorf logs an error message.
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *Logger) log(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.writeLocal(level, msg)
	l.dispatch(level, msg)
}

func (l *Logger) writeLocal(level Level, msg string) {
	if l.errorLogger == nil {
		return
	}
	switch level {
	case LevelError:
		l.errorLogger.Logf(l.component, "ERROR %s", msg)
	case LevelWarn:
		l.errorLogger.Logf(l.component, "WARN %s", msg)
	default:
		l.errorLogger.Logf(l.component, "%s", msg)
	}
}

func (l *Logger) dispatch(level Level, msg string) {
	if l.dispatcher == nil {
		return
	}
	_ = l.dispatcher.Write(&Entry{
		Timestamp: time.Now(),
		Level:     level,
		Component: l.component,
		Message:   msg,
		Fields:    l.fields,
	})
}
