package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the logging level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
}

// Logger writes leveled lines to one or more sinks.
type Logger struct {
	level  Level
	logger *log.Logger
	closer io.Closer
}

var (
	mu           sync.RWMutex
	globalLogger *Logger
)

// Init initializes the process-wide logger. A disabled logger drops
// everything; with no file and console off, output goes to stdout.
func Init(enabled bool, levelStr, logFile string, console bool) error {
	if !enabled {
		swap(nil)
		return nil
	}

	var writers []io.Writer
	var closer io.Closer
	if logFile != "" {
		dir := filepath.Dir(logFile)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	swap(&Logger{
		level:  ParseLevel(levelStr),
		logger: log.New(io.MultiWriter(writers...), "", 0),
		closer: closer,
	})
	return nil
}

// SetOutput routes log lines to w at the given level.
func SetOutput(w io.Writer, level Level) {
	swap(&Logger{level: level, logger: log.New(w, "", 0)})
}

// Close flushes and closes the log file, if any, and disables logging.
func Close() error {
	return swap(nil)
}

func swap(next *Logger) error {
	mu.Lock()
	prev := globalLogger
	globalLogger = next
	mu.Unlock()
	if prev != nil && prev.closer != nil {
		return prev.closer.Close()
	}
	return nil
}

// ParseLevel maps a config string to a Level, defaulting to Info.
func ParseLevel(levelStr string) Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

func formatMessage(level Level, format string, args ...interface{}) string {
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] %s", ts, levelNames[level], fmt.Sprintf(format, args...))
}

func logf(level Level, format string, args ...interface{}) {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil || l.level > level {
		return
	}
	l.logger.Println(formatMessage(level, format, args...))
}

// Debugf logs a debug message.
func Debugf(format string, args ...interface{}) { logf(Debug, format, args...) }

// Infof logs an info message.
func Infof(format string, args ...interface{}) { logf(Info, format, args...) }

// Warnf logs a warning.
func Warnf(format string, args ...interface{}) { logf(Warn, format, args...) }

// Errorf logs an error message.
func Errorf(format string, args ...interface{}) { logf(Error, format, args...) }
