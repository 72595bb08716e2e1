package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides structured logging capabilities
type Logger struct {
	logger zerolog.Logger
	file   *os.File
}

// Global logger instance
var defaultLogger *Logger

// Config holds logger configuration
type Config struct {
	Level       string // debug, info, warn, error
	Prefix      string
	Pretty      bool
	LogToFile   bool
	LogFilePath string
	Output      io.Writer // console writer, os.Stdout when nil
}

// NewLogger creates a new logger instance
func NewLogger(config Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	if config.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02 15:04:05.000"}
	}

	writers := []io.Writer{out}
	logger := &Logger{}

	// Set up file logging if enabled
	if config.LogToFile {
		if config.LogFilePath == "" {
			config.LogFilePath = "logs/agent.log"
		}

		if err := os.MkdirAll(filepath.Dir(config.LogFilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(config.LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}

		logger.file = file
		writers = append(writers, file)
	}

	ctx := zerolog.New(io.MultiWriter(writers...)).Level(level).With().Timestamp()
	if config.Prefix != "" {
		ctx = ctx.Str("component", config.Prefix)
	}
	logger.logger = ctx.Logger()

	return logger, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// InitDefaultLogger initializes the global logger
func InitDefaultLogger(config Config) error {
	logger, err := NewLogger(config)
	if err != nil {
		return err
	}
	SetDefaultLogger(logger)
	return nil
}

// SetDefaultLogger replaces the global logger
func SetDefaultLogger(l *Logger) {
	defaultLogger = l
}

// Close closes the logger and any open files
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Zerolog exposes the underlying zerolog logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

func (l *Logger) log(level zerolog.Level, msg string, context map[string]interface{}) {
	event := l.logger.WithLevel(level)
	if event == nil {
		return
	}

	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := context[k].(type) {
		case error:
			event = event.AnErr(k, v)
		case time.Duration:
			event = event.Dur(k, v)
		default:
			event = event.Interface(k, v)
		}
	}
	event.Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, context ...map[string]interface{}) {
	l.log(zerolog.DebugLevel, msg, mergeContext(context...))
}

// Info logs an info message
func (l *Logger) Info(msg string, context ...map[string]interface{}) {
	l.log(zerolog.InfoLevel, msg, mergeContext(context...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, context ...map[string]interface{}) {
	l.log(zerolog.WarnLevel, msg, mergeContext(context...))
}

// Error logs an error message
func (l *Logger) Error(msg string, context ...map[string]interface{}) {
	l.log(zerolog.ErrorLevel, msg, mergeContext(context...))
}

// Convenience functions for global logger
func Debug(msg string, context ...map[string]interface{}) {
	if defaultLogger != nil {
		defaultLogger.Debug(msg, context...)
	}
}

func Info(msg string, context ...map[string]interface{}) {
	if defaultLogger != nil {
		defaultLogger.Info(msg, context...)
	}
}

func Warn(msg string, context ...map[string]interface{}) {
	if defaultLogger != nil {
		defaultLogger.Warn(msg, context...)
	}
}

func Error(msg string, context ...map[string]interface{}) {
	if defaultLogger != nil {
		defaultLogger.Error(msg, context...)
	}
}

// mergeContext merges multiple context maps into one
func mergeContext(contexts ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, ctx := range contexts {
		for k, v := range ctx {
			result[k] = v
		}
	}
	return result
}

// LogExceptions logs a failed operation with its context and hands the error
// back unchanged. A nil err is a no-op.
func LogExceptions(op string, err error, details ...map[string]interface{}) error {
	if err == nil {
		return nil
	}
	context := mergeContext(details...)
	context["operation"] = op
	context["error"] = err
	Error("Operation failed", context)
	return err
}

// LogSessionEvent logs session lifecycle events for a participant
func LogSessionEvent(event string, participantID string, details map[string]interface{}) {
	context := map[string]interface{}{
		"event":          event,
		"participant_id": participantID,
	}
	for k, v := range details {
		context[k] = v
	}
	Info("Session Event", context)
}

// LogRPCEvent logs remote procedure calls received from a room
func LogRPCEvent(event string, method string, callerID string, details map[string]interface{}) {
	context := map[string]interface{}{
		"event":     event,
		"method":    method,
		"caller_id": callerID,
	}
	for k, v := range details {
		context[k] = v
	}
	Info("RPC Event", context)
}

// LogModelEvent logs realtime model connection events
func LogModelEvent(event string, backend string, details map[string]interface{}) {
	context := map[string]interface{}{
		"event":   event,
		"backend": backend,
	}
	for k, v := range details {
		context[k] = v
	}
	Debug("Model Event", context)
}

// LogWebSocketEvent logs WebSocket events with standardized format
func LogWebSocketEvent(event string, roomName string, participantID string, details map[string]interface{}) {
	context := map[string]interface{}{
		"event":          event,
		"room":           roomName,
		"participant_id": participantID,
	}
	for k, v := range details {
		context[k] = v
	}
	Debug("WebSocket Event", context)
}

// LogHTTPRequest logs HTTP requests
func LogHTTPRequest(method string, path string, statusCode int, duration time.Duration, details map[string]interface{}) {
	context := map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}
	for k, v := range details {
		context[k] = v
	}
	Info("HTTP Request", context)
}

// GetDefaultLogger returns the default logger instance
func GetDefaultLogger() *Logger {
	return defaultLogger
}
