// Package observability holds the structured logger and Prometheus metrics
// used across build, insert, and query, carried over from the teacher's
// pkg/observability with its HTTP/tenant/cache vocabulary replaced by this
// module's own (build phases, graph insert, quantizer training, query
// iteration). AccessLogger is dropped: this module has no HTTP/gRPC access
// log boundary of its own.
package observability

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger provides structured logging with an immutable field-builder chain.
type Logger struct {
	level      LogLevel
	output     io.Writer
	fields     map[string]interface{}
	timeFormat string
}

// NewLogger creates a logger writing to output at the given minimum level.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	return &Logger{level: level, output: output, fields: make(map[string]interface{}), timeFormat: time.RFC3339}
}

// NewDefaultLogger creates an INFO-level logger writing to stdout.
func NewDefaultLogger() *Logger {
	return NewLogger(INFO, os.Stdout)
}

// WithFields returns a new logger with additional fields merged in.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{})
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &Logger{level: l.level, output: l.output, fields: newFields, timeFormat: l.timeFormat}
}

// WithField returns a new logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

func (l *Logger) SetLevel(level LogLevel) { l.level = level }

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) { l.log(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...map[string]interface{})  { l.log(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...map[string]interface{})  { l.log(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...map[string]interface{}) { l.log(ERROR, msg, fields...) }

func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	l.log(FATAL, msg, fields...)
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, msg string, extraFields ...map[string]interface{}) {
	if level < l.level {
		return
	}
	allFields := make(map[string]interface{})
	for k, v := range l.fields {
		allFields[k] = v
	}
	for _, fields := range extraFields {
		for k, v := range fields {
			allFields[k] = v
		}
	}
	_, file, line, ok := runtime.Caller(2)
	if ok {
		allFields["file"] = fmt.Sprintf("%s:%d", file, line)
	}
	timestamp := time.Now().Format(l.timeFormat)
	entry := fmt.Sprintf("[%s] %s: %s", timestamp, level.String(), msg)
	if len(allFields) > 0 {
		entry += " |"
		for k, v := range allFields {
			entry += fmt.Sprintf(" %s=%v", k, v)
		}
	}
	entry += "\n"
	l.output.Write([]byte(entry))
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.Fatal(fmt.Sprintf(format, args...)) }

// LogOperation logs the start, duration, and outcome of fn under a named
// operation, used to bracket a build phase or a query scan.
func (l *Logger) LogOperation(operation string, fn func() error) error {
	start := time.Now()
	l.Info(fmt.Sprintf("starting %s", operation))
	err := fn()
	duration := time.Since(start)
	if err != nil {
		l.Error(fmt.Sprintf("%s failed", operation), map[string]interface{}{"duration": duration, "error": err.Error()})
	} else {
		l.Info(fmt.Sprintf("%s completed", operation), map[string]interface{}{"duration": duration})
	}
	return err
}

func (l *Logger) LogOperationWithFields(operation string, fields map[string]interface{}, fn func() error) error {
	return l.WithFields(fields).LogOperation(operation, fn)
}

var globalLogger = NewDefaultLogger()

func SetGlobalLogger(logger *Logger) { globalLogger = logger }
func GetGlobalLogger() *Logger       { return globalLogger }

func Debug(msg string, fields ...map[string]interface{}) { globalLogger.Debug(msg, fields...) }
func Info(msg string, fields ...map[string]interface{})  { globalLogger.Info(msg, fields...) }
func Warn(msg string, fields ...map[string]interface{})  { globalLogger.Warn(msg, fields...) }
func Error(msg string, fields ...map[string]interface{}) { globalLogger.Error(msg, fields...) }
func Fatal(msg string, fields ...map[string]interface{}) { globalLogger.Fatal(msg, fields...) }

func ParseLogLevel(level string) LogLevel {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	case "FATAL", "fatal":
		return FATAL
	default:
		log.Printf("unknown log level %q, defaulting to INFO", level)
		return INFO
	}
}
