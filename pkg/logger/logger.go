// Package logger fans log calls out to every configured backend.
//
// Messages carry a bracketed component prefix, e.g. "[Resolver] Match",
// followed by key/value pairs. With returns an Entry that prepends fixed
// pairs, which is how a calculation or a queue job tags everything it logs.
package logger

import "sync"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

var (
	mu        sync.RWMutex
	singleton *Logger
)

// Init initializes the global logger with one or more logging backends.
// Calls made before Init are dropped.
func Init(instances ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	singleton = &Logger{
		instances: instances,
	}
}

func each(fn func(LoggerInstance)) {
	mu.RLock()
	l := singleton
	mu.RUnlock()
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		fn(instance)
	}
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Log(message, keyvals...) })
}

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Info(message, keyvals...) })
}

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Warn(message, keyvals...) })
}

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Error(message, keyvals...) })
}

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Debug(message, keyvals...) })
}

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) {
	each(func(i LoggerInstance) { i.Fatal(message, keyvals...) })
}

// Entry logs through the global backends with a fixed set of leading
// key/value pairs.
type Entry struct {
	fields []any
}

// With returns an Entry that prepends keyvals to every call.
func With(keyvals ...any) *Entry {
	return &Entry{fields: keyvals}
}

// With returns a copy of e extended by keyvals.
func (e *Entry) With(keyvals ...any) *Entry {
	return &Entry{fields: e.merge(keyvals)}
}

func (e *Entry) merge(keyvals []any) []any {
	if e == nil || len(e.fields) == 0 {
		return keyvals
	}
	out := make([]any, 0, len(e.fields)+len(keyvals))
	out = append(out, e.fields...)
	return append(out, keyvals...)
}

func (e *Entry) Debug(message string, keyvals ...any) { Debug(message, e.merge(keyvals)...) }
func (e *Entry) Info(message string, keyvals ...any)  { Info(message, e.merge(keyvals)...) }
func (e *Entry) Warn(message string, keyvals ...any)  { Warn(message, e.merge(keyvals)...) }
func (e *Entry) Error(message string, keyvals ...any) { Error(message, e.merge(keyvals)...) }
