// Package logging provides component loggers for chartsweep. Every logger
// writes to a rotating log file and, optionally, to stderr in either text or
// JSON form.
//
// Basic usage:
//
//	if err := logging.Init(logging.Config{Level: "info", ConsoleLevel: "warn"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("merge")
//	logger.Info("pair resolved", "source", src, "target", dst)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default file log level.
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to level overrides.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level. Empty disables it.
	ConsoleLevel string

	// ConsoleJSON writes console lines as JSON objects instead of text.
	ConsoleJSON bool

	// Buffered disables the console and keeps recent entries in a ring
	// buffer instead, for use while a progress view owns the terminal.
	Buffered bool
}

// LogEntry is a single buffered log entry.
type LogEntry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// Logger wraps charmbracelet/log with component identification.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	logTo(l.file, level, msg, args...)
	if l.console != nil {
		logTo(l.console, level, msg, args...)
	}
	globalState.record(LogEntry{
		Time:      time.Now(),
		Level:     level,
		Component: l.component,
		Message:   msg,
	})
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a new logger with additional key/value context.
func (l *Logger) With(args ...interface{}) *Logger {
	nl := &Logger{
		file:      l.file.With(args...),
		component: l.component,
	}
	if l.console != nil {
		nl.console = l.console.With(args...)
	}
	return nl
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	loggers     map[string]*Logger

	consoleEnabled bool
	consoleLevel   Level
	consoleJSON    bool
	consoleOut     io.Writer

	buffer *LogBuffer
}

var globalState = &state{
	loggers:    make(map[string]*Logger),
	components: make(map[string]Level),
	consoleOut: os.Stderr,
}

// Init initializes the logging system. Loggers obtained before Init are
// rebuilt against the new configuration; until then they write nowhere.
func Init(cfg Config) error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if globalState.initialized && globalState.writer != nil {
		if err := globalState.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
		globalState.writer = nil
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	globalState.level = level

	globalState.components = make(map[string]Level)
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		globalState.components[comp] = parsed
	}

	globalState.consoleEnabled = false
	globalState.consoleJSON = cfg.ConsoleJSON
	if cfg.ConsoleLevel != "" && !cfg.Buffered {
		consoleLevel, err := ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		globalState.consoleLevel = consoleLevel
		globalState.consoleEnabled = true
	}

	globalState.buffer = nil
	if cfg.Buffered {
		globalState.buffer = NewLogBuffer(DefaultBufferSize)
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}
	globalState.writer = writer
	globalState.initialized = true

	for component := range globalState.loggers {
		globalState.loggers[component] = createLogger(component)
	}
	return nil
}

// Get returns the logger for the given component.
func Get(component string) *Logger {
	globalState.mu.RLock()
	if logger, ok := globalState.loggers[component]; ok {
		globalState.mu.RUnlock()
		return logger
	}
	globalState.mu.RUnlock()

	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if logger, ok := globalState.loggers[component]; ok {
		return logger
	}
	logger := createLogger(component)
	globalState.loggers[component] = logger
	return logger
}

// createLogger must be called with globalState.mu held.
func createLogger(component string) *Logger {
	level := globalState.level
	if compLevel, ok := globalState.components[component]; ok {
		level = compLevel
	}

	if !globalState.initialized {
		return &Logger{
			file: log.NewWithOptions(io.Discard, log.Options{
				Level:  level.charm(),
				Prefix: component,
			}),
			component: component,
		}
	}

	logger := &Logger{
		file: log.NewWithOptions(globalState.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		component: component,
	}

	if globalState.consoleEnabled {
		opts := log.Options{
			Level:           globalState.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		}
		if globalState.consoleJSON {
			opts.Formatter = log.JSONFormatter
			opts.TimeFormat = time.RFC3339
		}
		logger.console = log.NewWithOptions(globalState.consoleOut, opts)
	}

	return logger
}

// Close flushes and closes the log file.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	if globalState.writer != nil {
		if err := globalState.writer.Close(); err != nil {
			return fmt.Errorf("closing log writer: %w", err)
		}
		globalState.writer = nil
	}

	globalState.initialized = false
	globalState.buffer = nil
	globalState.loggers = make(map[string]*Logger)
	globalState.components = make(map[string]Level)
	return nil
}

func (s *state) record(entry LogEntry) {
	s.mu.RLock()
	buf := s.buffer
	s.mu.RUnlock()
	if buf != nil {
		buf.Add(entry)
	}
}

// Buffer returns the ring buffer, or nil unless Init ran with Buffered set.
func Buffer() *LogBuffer {
	globalState.mu.RLock()
	defer globalState.mu.RUnlock()
	return globalState.buffer
}

// DefaultLogPath returns $XDG_STATE_HOME/chartsweep/chartsweep.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "chartsweep", "chartsweep.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:        "info",
		Path:         DefaultLogPath(),
		Rotation:     DefaultRotationConfig(),
		ConsoleLevel: "warn",
	}
}
