package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const filePrefix = "echocap-"

// Config holds logger configuration
type Config struct {
	LogDir        string
	Level         slog.Level
	RetentionDays int
	// Stderr mirrors every record to standard error
	Stderr bool
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return Config{
		LogDir:        filepath.Join(homeDir, "echocap", "logs"),
		Level:         slog.LevelInfo,
		RetentionDays: 7,
		Stderr:        true,
	}
}

// ParseLevel converts a config level name into a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn or error)", s)
	}
}

// FileName returns the log file name for the day of t
func FileName(t time.Time) string {
	return filePrefix + t.Format("20060102") + ".log"
}

// Logger is an io.Writer that appends to one file per day and prunes old
// files. Slog returns a structured logger on top of it.
type Logger struct {
	mu            sync.Mutex
	file          *os.File
	logDir        string
	currentDay    string
	retentionDays int
	stderr        io.Writer
	now           func() time.Time

	level *slog.LevelVar
	slog  *slog.Logger
}

// New creates a new logger
func New(config Config) (*Logger, error) {
	l := &Logger{
		logDir:        config.LogDir,
		retentionDays: config.RetentionDays,
		now:           time.Now,
		level:         new(slog.LevelVar),
	}
	l.level.Set(config.Level)
	if config.Stderr {
		l.stderr = os.Stderr
	}

	l.mu.Lock()
	err := l.rotate()
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	l.slog = slog.New(slog.NewTextHandler(l, &slog.HandlerOptions{Level: l.level}))
	return l, nil
}

// Slog returns the structured logger writing through l
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Write appends one formatted record, switching files when the day changes
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.currentDay != l.now().Format("20060102") {
		if err := l.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}

	if l.stderr != nil {
		l.stderr.Write(p)
	}
	if l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// rotate opens today's file; l.mu must be held
func (l *Logger) rotate() error {
	today := l.now().Format("20060102")
	if l.currentDay == today && l.file != nil {
		return nil
	}

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if err := os.MkdirAll(l.logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(l.logDir, FileName(l.now()))
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = file
	l.currentDay = today

	if err := l.cleanOldLogs(); err != nil {
		fmt.Fprintf(l.file, "failed to clean old logs: %v\n", err)
	}
	return nil
}

// cleanOldLogs deletes our log files older than retentionDays
func (l *Logger) cleanOldLogs() error {
	if l.retentionDays <= 0 {
		return nil
	}
	cutoff := l.now().AddDate(0, 0, -l.retentionDays)

	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || filepath.Ext(name) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(l.logDir, name))
		}
	}
	return nil
}

// Path returns the file currently written to
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Level returns the current logging level
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
