package logging

import (
	"log"
	"os"
)

// Level represents different logging verbosity levels
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Logger provides leveled logging
type Logger struct {
	level Level
}

// NewLogger creates a new logger with the specified level
func NewLogger(level Level) *Logger {
	return &Logger{level: level}
}

// NewDefaultLogger creates a logger based on LOG_LEVEL environment variable
func NewDefaultLogger() *Logger {
	level := LevelInfo // default
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		switch levelStr {
		case "ERROR":
			level = LevelError
		case "WARN":
			level = LevelWarn
		case "INFO":
			level = LevelInfo
		case "DEBUG":
			level = LevelDebug
		case "TRACE":
			level = LevelTrace
		}
	}
	return &Logger{level: level}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	if l.level >= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Info logs info messages
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Trace logs trace messages
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.level >= LevelTrace {
		log.Printf("[TRACE] "+format, args...)
	}
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() Level {
	return l.level
}

// DefaultLogger is the shared process-wide logger.
var DefaultLogger = NewDefaultLogger()

// Error logs an error message on the default logger.
func Error(format string, args ...interface{}) { DefaultLogger.Error(format, args...) }

// Warn logs a warning message on the default logger.
func Warn(format string, args ...interface{}) { DefaultLogger.Warn(format, args...) }

// Info logs an info message on the default logger.
func Info(format string, args ...interface{}) { DefaultLogger.Info(format, args...) }

// Debug logs a debug message on the default logger.
func Debug(format string, args ...interface{}) { DefaultLogger.Debug(format, args...) }

// Trace logs a trace message on the default logger.
func Trace(format string, args ...interface{}) { DefaultLogger.Trace(format, args...) }
