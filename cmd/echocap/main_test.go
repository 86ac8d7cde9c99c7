package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yok-tottii/echocap/internal/store"
)

// writeTestConfig points the data directory at a temp dir
func writeTestConfig(t *testing.T) (cfgPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	cfgPath = filepath.Join(dir, "config.json")

	body := fmt.Sprintf(`{"data_dir": %q, "log": {"level": "info", "dir": %q, "retention_days": 7}}`,
		dataDir, filepath.Join(dir, "logs"))
	if err := os.WriteFile(cfgPath, []byte(body), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return cfgPath, dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestListJSON(t *testing.T) {
	cfgPath, dataDir := writeTestConfig(t)

	st, err := store.Open(dataDir, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	st.Recordings().Append(store.Record{Timestamp: 1700000010, WavFilename: store.WavName(1700000010), Text: "first"})
	st.Recordings().Append(store.Record{Timestamp: 1700000020, WavFilename: store.WavName(1700000020), Text: "second"})
	for _, ts := range []int64{1700000010, 1700000020} {
		if err := os.WriteFile(st.Recordings().Path(store.WavName(ts)), []byte("RIFF"), 0644); err != nil {
			t.Fatalf("Failed to write wav: %v", err)
		}
	}

	out, err := execute(t, "-c", cfgPath, "list", "--json")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	var records []store.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("Failed to decode output %q: %v", out, err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].Timestamp != 1700000020 {
		t.Errorf("Expected newest first, got %d", records[0].Timestamp)
	}

	out, err = execute(t, "-c", cfgPath, "list", "--favorites", "--json")
	if err != nil {
		t.Fatalf("list --favorites failed: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("Expected empty favorites, got %q", out)
	}
}

func TestListWithoutSessions(t *testing.T) {
	cfgPath, dataDir := writeTestConfig(t)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		t.Fatalf("Failed to create data dir: %v", err)
	}

	if _, err := execute(t, "-c", cfgPath, "list", "--json"); err == nil {
		t.Error("Expected an error without sessions")
	}
	if _, err := execute(t, "-c", cfgPath, "list", "--session", "session_1", "--json"); err == nil {
		t.Error("Expected an error for a missing session")
	}
}

func TestInvalidLogLevelFlag(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)

	_, err := execute(t, "-c", cfgPath, "--log-level", "verbose", "list")
	if err == nil || !strings.Contains(err.Error(), "log-level") {
		t.Errorf("Expected a --log-level error, got %v", err)
	}
}

func TestFirstRunWritesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "nested", "config.json")

	ctx := newCommandContext(&cfgPath, new(string), new(bool))
	if _, err := ctx.ensureConfig(); err != nil {
		t.Fatalf("ensureConfig failed: %v", err)
	}
	if !ctx.firstRun {
		t.Error("Expected first run")
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("Expected default config to be written: %v", err)
	}

	again := newCommandContext(&cfgPath, new(string), new(bool))
	if _, err := again.ensureConfig(); err != nil {
		t.Fatalf("ensureConfig failed: %v", err)
	}
	if again.firstRun {
		t.Error("Expected the second load not to be a first run")
	}
}

func TestRecordRows(t *testing.T) {
	rows := recordRows([]store.Record{{
		Timestamp:   1700000000,
		Name:        "intro",
		Text:        strings.Repeat("word ", 30),
		MP3Filename: store.MP3Name(1700000000),
	}})
	if len(rows) != 1 || len(rows[0]) != 5 {
		t.Fatalf("Expected one row of 5 columns, got %v", rows)
	}
	if rows[0][0] != "1700000000" || rows[0][2] != "intro" || rows[0][4] != "yes" {
		t.Errorf("Unexpected row %v", rows[0])
	}
	if n := len([]rune(rows[0][3])); n != 60 {
		t.Errorf("Expected transcript truncated to 60 runes, got %d", n)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		max      int
		expected string
	}{
		{"short", 10, "short"},
		{"line one\nline two", 20, "line one line two"},
		{"abcdefghij", 5, "abcd…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.max); got != tt.expected {
			t.Errorf("truncate(%q, %d): expected %q, got %q", tt.input, tt.max, tt.expected, got)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"ID", "Name"}, [][]string{{"1", "Speakers"}, {"2"}}, []columnAlignment{alignRight})
	if !strings.Contains(out, "Speakers") || !strings.Contains(out, "ID") {
		t.Errorf("Expected headers and rows in table, got:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("Expected empty output without headers")
	}
}
