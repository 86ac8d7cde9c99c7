package clipboard

import (
	"errors"
	"testing"
)

type memoryBackend struct {
	content string
	err     error
	writes  int
}

func (b *memoryBackend) ReadAll() (string, error) {
	return b.content, b.err
}

func (b *memoryBackend) WriteAll(text string) error {
	if b.err != nil {
		return b.err
	}
	b.writes++
	b.content = text
	return nil
}

func TestNewManager(t *testing.T) {
	if NewManager() == nil {
		t.Fatal("Expected manager to be created")
	}
}

func TestCopy(t *testing.T) {
	b := &memoryBackend{}
	m := NewWithBackend(b)

	if err := m.Copy("  hello world \n"); err != nil {
		t.Fatalf("Failed to copy: %v", err)
	}

	got, err := m.Content()
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	if got != "hello world" {
		t.Errorf("Expected 'hello world', got '%s'", got)
	}
}

func TestCopyEmpty(t *testing.T) {
	b := &memoryBackend{}
	m := NewWithBackend(b)

	if err := m.Copy("   "); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
	if b.writes != 0 {
		t.Errorf("Expected no clipboard writes, got %d", b.writes)
	}
}

func TestCopyBackendError(t *testing.T) {
	m := NewWithBackend(&memoryBackend{err: errors.New("no display")})

	if err := m.Copy("text"); err == nil {
		t.Error("Expected backend error")
	}
	if _, err := m.Content(); err == nil {
		t.Error("Expected backend error on read")
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		eol      string
		expected string
	}{
		{"trim", "  a  ", "\n", "a"},
		{"crlf to lf", "a\r\nb", "\n", "a\nb"},
		{"lf to crlf", "a\nb", "\r\n", "a\r\nb"},
		{"mixed to crlf", "a\r\nb\nc", "\r\n", "a\r\nb\r\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prepare(tt.input, tt.eol); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
