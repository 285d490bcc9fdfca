// Package logger writes JSON log lines with a fixed field layout so Loki
// can index service, env and level as labels.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"compliance/observability/types"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// contextKeys are copied from the context into every entry when present.
var contextKeys = []types.ContextKey{
	types.TraceIDKey,
	types.SpanIDKey,
	types.RequestIDKey,
	types.ProjectIDKey,
	types.WorkerKey,
	types.PlatformKey,
}

// ParseLevel converts a string representation to a LogLevel.
// Unrecognized levels fall back to InfoLevel.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

// LokiLogger implements types.Logger.
// Each entry carries timestamp, level, service, env, hostname and message,
// followed by context values, persistent fields and call fields, in that
// order of precedence.
type LokiLogger struct {
	mu               sync.RWMutex
	output           io.Writer
	serviceName      string
	environment      string
	hostname         string
	minLevel         LogLevel
	persistentFields types.Fields
}

// New creates a LokiLogger. A nil output writes to os.Stdout.
//
// Example:
//
//	logger := New(
//		"compliance-engine.probe.mfa",
//		"production",
//		"info",
//		os.Stdout,
//		types.Fields{"version": "1.0.0"},
//	)
func New(serviceName, environment, logLevel string, output io.Writer, additionalFields types.Fields) *LokiLogger {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	if output == nil {
		output = os.Stdout
	}

	return &LokiLogger{
		output:           output,
		serviceName:      serviceName,
		environment:      environment,
		hostname:         hostname,
		minLevel:         ParseLevel(logLevel),
		persistentFields: additionalFields,
	}
}

// Info logs at INFO level.
func (l *LokiLogger) Info(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > InfoLevel {
		return
	}
	l.log(ctx, InfoLevel, msg, nil, fields)
}

// Error logs at ERROR level, adding the error text and its Go type.
func (l *LokiLogger) Error(ctx context.Context, msg string, err error, fields types.Fields) {
	if l.minLevel > ErrorLevel {
		return
	}
	l.log(ctx, ErrorLevel, msg, err, fields)
}

// Warn logs at WARN level.
func (l *LokiLogger) Warn(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > WarnLevel {
		return
	}
	l.log(ctx, WarnLevel, msg, nil, fields)
}

// Debug logs at DEBUG level.
func (l *LokiLogger) Debug(ctx context.Context, msg string, fields types.Fields) {
	if l.minLevel > DebugLevel {
		return
	}
	l.log(ctx, DebugLevel, msg, nil, fields)
}

// WithFields returns a child logger sharing the output and level, with
// fields merged over the parent's persistent fields.
//
// Example:
//
//	checkLogger := logger.WithFields(types.Fields{
//		"project_id": projectID,
//		"check_type": "pitr",
//	})
func (l *LokiLogger) WithFields(fields types.Fields) types.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	merged := make(types.Fields, len(l.persistentFields)+len(fields))
	for k, v := range l.persistentFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	return &LokiLogger{
		output:           l.output,
		serviceName:      l.serviceName,
		environment:      l.environment,
		hostname:         l.hostname,
		minLevel:         l.minLevel,
		persistentFields: merged,
	}
}

func (l *LokiLogger) log(ctx context.Context, level LogLevel, msg string, err error, fields types.Fields) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry := types.Fields{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level.String(),
		"service":   l.serviceName,
		"env":       l.environment,
		"hostname":  l.hostname,
		"message":   msg,
	}

	if ctx != nil {
		for _, key := range contextKeys {
			if value, ok := ctx.Value(key).(string); ok && value != "" {
				entry[string(key)] = value
			}
		}
	}

	if err != nil {
		entry["error"] = err.Error()
		entry["error_type"] = fmt.Sprintf("%T", err)
	}

	for k, v := range l.persistentFields {
		entry[k] = v
	}
	for k, v := range fields {
		entry[k] = v
	}

	line, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		return
	}
	l.output.Write(append(line, '\n'))
}
