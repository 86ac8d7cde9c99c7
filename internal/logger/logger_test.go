package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, dir string, level slog.Level) *Logger {
	t.Helper()
	l, err := New(Config{LogDir: dir, Level: level, RetentionDays: 7})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	return string(content)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Level != slog.LevelInfo {
		t.Errorf("Expected default level INFO, got %v", config.Level)
	}
	if config.RetentionDays != 7 {
		t.Errorf("Expected retention days 7, got %d", config.RetentionDays)
	}
	if config.LogDir == "" {
		t.Error("Expected non-empty log directory")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if level != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()
	l := newTestLogger(t, tempDir, slog.LevelInfo)

	logPath := filepath.Join(tempDir, FileName(time.Now()))
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Errorf("Log file was not created: %s", logPath)
	}
	if l.Path() != logPath {
		t.Errorf("Expected path %s, got %s", logPath, l.Path())
	}
}

func TestFileName(t *testing.T) {
	day := time.Date(2024, 3, 9, 23, 59, 0, 0, time.Local)
	if got := FileName(day); got != "echocap-20240309.log" {
		t.Errorf("Expected echocap-20240309.log, got %s", got)
	}
}

func TestLogging(t *testing.T) {
	tempDir := t.TempDir()
	l := newTestLogger(t, tempDir, slog.LevelDebug)

	log := l.Slog()
	log.Debug("debug message")
	log.Info("segment finalized", "timestamp", 1700000000)
	log.Warn("warn message")
	log.Error("error message")

	content := readLog(t, l.Path())

	for _, want := range []string{
		"level=DEBUG", "debug message",
		"level=INFO", `msg="segment finalized"`, "timestamp=1700000000",
		"level=WARN", "level=ERROR",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Expected log to contain %q", want)
		}
	}
}

func TestLogLevel(t *testing.T) {
	tempDir := t.TempDir()
	l := newTestLogger(t, tempDir, slog.LevelWarn)

	log := l.Slog()
	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")

	content := readLog(t, l.Path())
	if strings.Contains(content, "debug message") || strings.Contains(content, "info message") {
		t.Error("Messages below WARN should not be logged")
	}
	if !strings.Contains(content, "warn message") {
		t.Error("Warn message not found in log")
	}
}

func TestSetLevel(t *testing.T) {
	tempDir := t.TempDir()
	l := newTestLogger(t, tempDir, slog.LevelInfo)

	if l.Level() != slog.LevelInfo {
		t.Errorf("Expected initial level INFO, got %v", l.Level())
	}

	l.SetLevel(slog.LevelDebug)
	if l.Level() != slog.LevelDebug {
		t.Errorf("Expected level DEBUG, got %v", l.Level())
	}

	l.Slog().Debug("now visible")
	if !strings.Contains(readLog(t, l.Path()), "now visible") {
		t.Error("Expected debug message after SetLevel")
	}
}

func TestRotation(t *testing.T) {
	tempDir := t.TempDir()
	l := newTestLogger(t, tempDir, slog.LevelInfo)

	first := l.Path()
	tomorrow := time.Now().AddDate(0, 0, 1)
	l.mu.Lock()
	l.now = func() time.Time { return tomorrow }
	l.mu.Unlock()

	l.Slog().Info("after midnight")

	second := filepath.Join(tempDir, FileName(tomorrow))
	if l.Path() != second {
		t.Fatalf("Expected rotation to %s, got %s", second, l.Path())
	}
	if !strings.Contains(readLog(t, second), "after midnight") {
		t.Error("Expected message in the new day's file")
	}
	if strings.Contains(readLog(t, first), "after midnight") {
		t.Error("Expected previous file to be left alone")
	}
}

func TestCleanOldLogs(t *testing.T) {
	tempDir := t.TempDir()
	tenDaysAgo := time.Now().AddDate(0, 0, -10)

	oldLog := filepath.Join(tempDir, FileName(tenDaysAgo))
	foreign := filepath.Join(tempDir, "other.log")
	for _, path := range []string{oldLog, foreign} {
		if err := os.WriteFile(path, []byte("old log"), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", path, err)
		}
		if err := os.Chtimes(path, tenDaysAgo, tenDaysAgo); err != nil {
			t.Fatalf("Failed to change file times: %v", err)
		}
	}

	newTestLogger(t, tempDir, slog.LevelInfo)

	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Error("Old log file should have been deleted")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Errorf("Unrelated .log file should be kept: %v", err)
	}
}
